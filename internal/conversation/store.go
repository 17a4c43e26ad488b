// Package conversation keeps the assistant's rolling dialogue history: the
// system prompt, recent user/assistant turns, tool exchanges, and free-form
// metadata. The store enforces a turn cap and a token budget so requests sent
// to the LLM stay bounded, and lazily resets itself after a period of
// inactivity so a stale exchange from hours ago never leaks into a new one.
package conversation

import (
	"sync"
	"time"

	"github.com/auricle-ai/auricle/pkg/types"
)

// charsPerToken is the heuristic ratio used for token estimation.
// English text averages roughly 4 characters per token across common
// LLM tokenizers. This avoids pulling in a tokenizer dependency.
const charsPerToken = 4

// Config holds the store's pruning knobs.
type Config struct {
	// MaxTurns is the number of user/assistant exchanges to keep. The store
	// retains at most 2×MaxTurns non-system messages. Defaults to 10.
	MaxTurns int

	// MaxTokens is the estimated-token budget for the whole history,
	// system prompt included. Zero disables the token cap.
	MaxTokens int

	// IdleTimeout resets the history (keeping the system prompt) when no
	// message has been added for this long. Zero disables idle reset.
	IdleTimeout time.Duration
}

// Store is the conversation history. All methods are safe for concurrent
// use; pruning runs after every append so readers always see a history
// within budget.
type Store struct {
	cfg Config

	mu           sync.Mutex
	system       *types.Message
	messages     []types.Message
	metadata     map[string]string
	lastActivity time.Time
	now          func() time.Time // test seam
}

// NewStore creates a Store. A zero MaxTurns defaults to 10.
func NewStore(cfg Config) *Store {
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = 10
	}
	return &Store{
		cfg:      cfg,
		metadata: make(map[string]string),
		now:      time.Now,
	}
}

// SetSystemPrompt installs or replaces the system message. It does not count
// against the turn cap and survives both Clear and idle reset.
func (s *Store) SetSystemPrompt(prompt string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prompt == "" {
		s.system = nil
		return
	}
	s.system = &types.Message{Role: "system", Content: prompt}
}

// AddUserMessage appends a user turn.
func (s *Store) AddUserMessage(content string) {
	s.append(types.Message{Role: "user", Content: content})
}

// AddAssistantMessage appends an assistant turn, including any tool calls it
// requested.
func (s *Store) AddAssistantMessage(content string, toolCalls []types.ToolCall) {
	s.append(types.Message{Role: "assistant", Content: content, ToolCalls: toolCalls})
}

// AddToolResult appends a tool-role message answering the given tool call.
func (s *Store) AddToolResult(name, content, toolCallID string) {
	s.append(types.Message{Role: "tool", Name: name, Content: content, ToolCallID: toolCallID})
}

// AddExchange appends a user turn and its assistant reply as one unit.
// Pruning runs once after both are in, so the pair is never split by the
// turn cap.
func (s *Store) AddExchange(user, assistant string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maybeIdleResetLocked()
	s.messages = append(s.messages,
		types.Message{Role: "user", Content: user},
		types.Message{Role: "assistant", Content: assistant},
	)
	s.lastActivity = s.now()
	s.pruneLocked()
}

// RecentTurns returns the messages belonging to the last n exchanges,
// excluding the system prompt. An exchange starts at a user message, so the
// result never opens mid-reply. n <= 0 returns nil.
func (s *Store) RecentTurns(n int) []types.Message {
	if n <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maybeIdleResetLocked()

	start := len(s.messages)
	seen := 0
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].Role == "user" {
			seen++
			start = i
			if seen == n {
				break
			}
		}
	}
	if seen == 0 {
		return nil
	}
	out := make([]types.Message, len(s.messages)-start)
	copy(out, s.messages[start:])
	return out
}

// Messages returns the history ready to send to the LLM: the system prompt
// (when set) followed by the retained turns. The returned slice is a copy.
func (s *Store) Messages() []types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maybeIdleResetLocked()

	out := make([]types.Message, 0, len(s.messages)+1)
	if s.system != nil {
		out = append(out, *s.system)
	}
	out = append(out, s.messages...)
	return out
}

// Clear discards all turns and metadata, keeping the system prompt.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
	s.metadata = make(map[string]string)
}

// ResetSession clears the history like Clear and additionally zeroes the
// activity timestamp, so the next Stats reads as a brand-new session rather
// than an emptied one.
func (s *Store) ResetSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
	s.metadata = make(map[string]string)
	s.lastActivity = time.Time{}
}

// SetMetadata stores a string value under key.
func (s *Store) SetMetadata(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata[key] = value
}

// Metadata returns the value under key and whether it exists.
func (s *Store) Metadata(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.metadata[key]
	return v, ok
}

// Info summarises the store's current state.
type Info struct {
	// MessageCount is the number of retained non-system messages.
	MessageCount int

	// EstimatedTokens is the token estimate for the full history,
	// system prompt included.
	EstimatedTokens int

	// LastActivity is when the last message was appended; zero when the
	// history is empty.
	LastActivity time.Time
}

// Stats returns a snapshot of the store's state. It applies the idle reset
// first, so a stale history reports as empty.
func (s *Store) Stats() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maybeIdleResetLocked()

	tokens := 0
	if s.system != nil {
		tokens += estimateTokens(*s.system)
	}
	for _, m := range s.messages {
		tokens += estimateTokens(m)
	}
	return Info{
		MessageCount:    len(s.messages),
		EstimatedTokens: tokens,
		LastActivity:    s.lastActivity,
	}
}

// append adds a message, stamps activity, and prunes to budget.
func (s *Store) append(m types.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maybeIdleResetLocked()
	s.messages = append(s.messages, m)
	s.lastActivity = s.now()
	s.pruneLocked()
}

// maybeIdleResetLocked drops stale turns on first touch after the idle
// window. Caller must hold s.mu.
func (s *Store) maybeIdleResetLocked() {
	if s.cfg.IdleTimeout <= 0 || s.lastActivity.IsZero() || len(s.messages) == 0 {
		return
	}
	if s.now().Sub(s.lastActivity) >= s.cfg.IdleTimeout {
		s.messages = nil
		s.metadata = make(map[string]string)
	}
}

// pruneLocked enforces the turn cap and token budget, oldest first. Tool
// messages are dropped together with the assistant message that provoked
// them so the history never starts with an orphaned tool result. Caller must
// hold s.mu.
func (s *Store) pruneLocked() {
	maxMessages := 2 * s.cfg.MaxTurns
	for len(s.messages) > maxMessages {
		s.dropOldestLocked()
	}

	if s.cfg.MaxTokens <= 0 {
		return
	}
	budget := s.cfg.MaxTokens
	if s.system != nil {
		budget -= estimateTokens(*s.system)
	}
	for len(s.messages) > 0 && s.totalTokensLocked() > budget {
		s.dropOldestLocked()
	}
}

func (s *Store) dropOldestLocked() {
	if len(s.messages) == 0 {
		return
	}
	s.messages = s.messages[1:]
	// Never leave a tool result at the head without its assistant turn.
	for len(s.messages) > 0 && s.messages[0].Role == "tool" {
		s.messages = s.messages[1:]
	}
}

func (s *Store) totalTokensLocked() int {
	total := 0
	for _, m := range s.messages {
		total += estimateTokens(m)
	}
	return total
}

// estimateTokens returns a rough token count for a single message using
// the 1-token-per-4-characters heuristic.
func estimateTokens(m types.Message) int {
	chars := len(m.Content) + len(m.Role)
	for _, tc := range m.ToolCalls {
		chars += len(tc.Name) + len(tc.Arguments) + len(tc.ID)
	}
	tokens := chars / charsPerToken
	if tokens == 0 && chars > 0 {
		tokens = 1
	}
	return tokens
}
