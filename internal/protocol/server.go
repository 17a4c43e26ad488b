// Package protocol implements the line-delimited JSON control protocol on
// stdin/stdout. Each inbound line is one command object; each outbound line
// is one response, event, or status object. Log output goes to stderr so the
// stdout stream stays machine-readable.
package protocol

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/auricle-ai/auricle/internal/conversation"
	"github.com/auricle-ai/auricle/internal/inline"
	"github.com/auricle-ai/auricle/internal/metrics"
)

// Outbound line prefixes. Responses to commands carry no prefix;
// asynchronous notifications are prefixed so clients can route them
// without parsing every line.
const (
	eventPrefix  = "EVENT: "
	statusPrefix = "STATUS: "
)

// Controller is the assistant surface the protocol server drives.
// [github.com/auricle-ai/auricle/internal/assistant.Assistant] implements it.
type Controller interface {
	Start() error
	Stop() error
	Interrupt()
	ClearConversation()
	Status() string
	ConversationInfo() conversation.Info
	MetricsSnapshot() metrics.Snapshot
}

// Inliner runs the inline text transforms. [inline.Service] implements it.
type Inliner interface {
	Rewrite(ctx context.Context, text, tone string) *inline.Result
	Summarize(ctx context.Context, text string, maxSentences int) *inline.Result
	Proofread(ctx context.Context, text string, showChanges bool) *inline.Result
	Format(ctx context.Context, text, kind string, opts inline.FormatOptions) *inline.Result
	Compose(ctx context.Context, prompt, contextText string, maxLength int, temperature float64) *inline.Result
}

// Server reads commands from in and writes responses, events, and status
// broadcasts to out. All writes go through a single mutex so concurrent
// emitters never interleave partial lines.
type Server struct {
	in       io.Reader
	ctrl     Controller
	inline   Inliner
	defaults InlineDefaults

	outMu sync.Mutex
	out   io.Writer
}

// InlineDefaults supplies the values used when an inline command omits the
// corresponding field. Zero MaxPoints and ComposeMaxLength leave those
// choices to the model.
type InlineDefaults struct {
	MaxSentences     int
	ShowChanges      bool
	MaxPoints        int
	ComposeMaxLength int
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithInlineDefaults replaces the built-in inline command defaults
// (3 sentences, changes shown).
func WithInlineDefaults(d InlineDefaults) ServerOption {
	return func(s *Server) { s.defaults = d }
}

// NewServer creates a protocol server. inliner may be nil, in which case the
// inline commands respond with an error envelope.
func NewServer(in io.Reader, out io.Writer, ctrl Controller, inliner Inliner, opts ...ServerOption) *Server {
	s := &Server{
		in:       in,
		out:      out,
		ctrl:     ctrl,
		inline:   inliner,
		defaults: InlineDefaults{MaxSentences: 3, ShowChanges: true},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// command is the union of all inbound command fields.
type command struct {
	Command string `json:"command"`

	// Inline transform fields.
	Text         string   `json:"text"`
	Tone         string   `json:"tone"`
	MaxSentences int      `json:"max_sentences"`
	ShowChanges  *bool    `json:"show_changes"`
	Format       string   `json:"format"`
	MaxPoints    int      `json:"max_points"`
	Columns      []string `json:"columns"`
	Prompt       string   `json:"prompt"`
	Context      string   `json:"context"`
	MaxLength    int      `json:"max_length"`
	Temperature  float64  `json:"temperature"`
}

// maxLineBytes caps one inbound line. Longer lines are consumed up to the
// next newline and skipped so a runaway writer cannot kill the read loop.
const maxLineBytes = 1 << 20

var errLineTooLong = errors.New("line exceeds size limit")

// Run reads stdin line by line until EOF or ctx cancellation and dispatches
// each command. Malformed and oversized lines are logged and skipped; they
// never stop the loop or leak onto stdout.
func (s *Server) Run(ctx context.Context) error {
	reader := bufio.NewReaderSize(s.in, 64*1024)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line, err := readLine(reader)
		if errors.Is(err, errLineTooLong) {
			slog.Warn("protocol: skipping oversized input line", "limit_bytes", maxLineBytes)
			continue
		}
		if len(line) > 0 {
			s.handleLine(ctx, line)
		}
		if err == io.EOF {
			return ctx.Err()
		}
		if err != nil {
			return fmt.Errorf("protocol: read stdin: %w", err)
		}
	}
}

// readLine returns the next line, reassembling the fragments the buffered
// reader produces for lines longer than its buffer. Lines over maxLineBytes
// are drained and reported as errLineTooLong.
func readLine(r *bufio.Reader) ([]byte, error) {
	var buf []byte
	for {
		frag, isPrefix, err := r.ReadLine()
		if len(buf)+len(frag) > maxLineBytes {
			for isPrefix && err == nil {
				_, isPrefix, err = r.ReadLine()
			}
			if err != nil && err != io.EOF {
				return nil, err
			}
			return nil, errLineTooLong
		}
		buf = append(buf, frag...)
		if err != nil || !isPrefix {
			return buf, err
		}
	}
}

func (s *Server) handleLine(ctx context.Context, line []byte) {
	var cmd command
	if err := json.Unmarshal(line, &cmd); err != nil {
		slog.Warn("protocol: skipping malformed input line", "err", err)
		return
	}
	if cmd.Command == "" {
		slog.Warn("protocol: skipping line without a command field")
		return
	}
	s.dispatch(ctx, cmd)
}

func (s *Server) dispatch(ctx context.Context, cmd command) {
	slog.Debug("protocol: command received", "command", cmd.Command)

	switch cmd.Command {
	case "start":
		s.ack(cmd.Command, s.ctrl.Start())
	case "stop":
		s.ack(cmd.Command, s.ctrl.Stop())
	case "interrupt":
		s.ctrl.Interrupt()
		s.ack(cmd.Command, nil)
	case "clear_conversation":
		s.ctrl.ClearConversation()
		s.ack(cmd.Command, nil)
	case "get_status":
		info := s.ctrl.ConversationInfo()
		s.writeLine("", map[string]any{
			"response": "status",
			"status":   s.ctrl.Status(),
			"conversation": map[string]any{
				"message_count":    info.MessageCount,
				"estimated_tokens": info.EstimatedTokens,
				"last_activity":    formatTime(info.LastActivity),
			},
		})
	case "get_metrics":
		s.writeLine("", map[string]any{
			"response": "metrics",
			"metrics":  s.ctrl.MetricsSnapshot(),
		})
	case "rewrite_text", "summarize_text", "proofread_text", "format_text", "compose_text":
		s.runInline(ctx, cmd)
	default:
		s.writeLine("", map[string]any{
			"response": "error",
			"error":    fmt.Sprintf("unknown command %q", cmd.Command),
		})
	}
}

// ack reports the outcome of a lifecycle command.
func (s *Server) ack(command string, err error) {
	if err != nil {
		s.writeLine("", map[string]any{
			"response": "error",
			"command":  command,
			"error":    err.Error(),
		})
		return
	}
	s.writeLine("", map[string]any{"response": "ok", "command": command})
}

func (s *Server) runInline(ctx context.Context, cmd command) {
	if s.inline == nil {
		s.inlineError(cmd.Command, fmt.Errorf("inline transforms are not configured"))
		return
	}

	switch cmd.Command {
	case "rewrite_text":
		res := s.inline.Rewrite(ctx, cmd.Text, cmd.Tone)
		s.inlineComplete(cmd.Command, res, map[string]any{
			"original":  cmd.Text,
			"rewritten": res.Output,
			"tone":      cmd.Tone,
		})
	case "summarize_text":
		maxSentences := cmd.MaxSentences
		if maxSentences <= 0 {
			maxSentences = s.defaults.MaxSentences
		}
		if maxSentences <= 0 {
			maxSentences = 3
		}
		res := s.inline.Summarize(ctx, cmd.Text, maxSentences)
		s.inlineComplete(cmd.Command, res, map[string]any{
			"original":      cmd.Text,
			"summary":       res.Output,
			"max_sentences": maxSentences,
		})
	case "proofread_text":
		showChanges := s.defaults.ShowChanges
		if cmd.ShowChanges != nil {
			showChanges = *cmd.ShowChanges
		}
		res := s.inline.Proofread(ctx, cmd.Text, showChanges)
		fields := map[string]any{
			"original":  cmd.Text,
			"corrected": res.Output,
		}
		if changes, ok := res.Metadata["changes"]; ok {
			fields["changes"] = changes
		}
		s.inlineComplete(cmd.Command, res, fields)
	case "format_text":
		maxPoints := cmd.MaxPoints
		if maxPoints <= 0 {
			maxPoints = s.defaults.MaxPoints
		}
		opts := inline.FormatOptions{MaxPoints: maxPoints, Columns: cmd.Columns}
		res := s.inline.Format(ctx, cmd.Text, cmd.Format, opts)
		s.inlineComplete(cmd.Command, res, map[string]any{
			"original":  cmd.Text,
			"formatted": res.Output,
			"format":    cmd.Format,
		})
	case "compose_text":
		maxLength := cmd.MaxLength
		if maxLength <= 0 {
			maxLength = s.defaults.ComposeMaxLength
		}
		res := s.inline.Compose(ctx, cmd.Prompt, cmd.Context, maxLength, cmd.Temperature)
		s.inlineComplete(cmd.Command, res, map[string]any{
			"prompt":  cmd.Prompt,
			"content": res.Output,
		})
	}
}

// inlineComplete writes a <op>_complete envelope on success or an
// inline_ai_error envelope on failure. The command name "rewrite_text"
// maps to the envelope type "rewrite_complete".
func (s *Server) inlineComplete(command string, res *inline.Result, fields map[string]any) {
	if !res.Success {
		s.inlineError(command, fmt.Errorf("%s", res.Err))
		return
	}
	envelope := map[string]any{
		"type":          completionType(command),
		"tokens_used":   res.TokensUsed,
		"processing_ms": res.ProcessingMs,
	}
	for k, v := range fields {
		envelope[k] = v
	}
	s.writeLine("", envelope)
}

func (s *Server) inlineError(command string, err error) {
	s.writeLine("", map[string]any{
		"type":    "inline_ai_error",
		"command": command,
		"error":   err.Error(),
	})
}

// completionType converts "rewrite_text" into "rewrite_complete".
func completionType(command string) string {
	if op, ok := strings.CutSuffix(command, "_text"); ok {
		return op + "_complete"
	}
	return command + "_complete"
}

// EmitEvent writes an asynchronous event line. The name becomes the "type"
// field; fields may be nil.
func (s *Server) EmitEvent(name string, fields map[string]any) {
	envelope := map[string]any{"type": name}
	for k, v := range fields {
		envelope[k] = v
	}
	s.writeLine(eventPrefix, envelope)
}

// BroadcastStatus writes a status_update line. Wire this into the
// assistant's status callback.
func (s *Server) BroadcastStatus(status string) {
	s.writeLine(statusPrefix, map[string]any{
		"type":      "status_update",
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) writeLine(prefix string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("protocol: marshal outbound line", "err", err)
		return
	}

	s.outMu.Lock()
	defer s.outMu.Unlock()
	if _, err := fmt.Fprintf(s.out, "%s%s\n", prefix, data); err != nil {
		slog.Warn("protocol: write stdout", "err", err)
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
