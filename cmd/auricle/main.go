// Command auricle is the voice assistant backend. It listens for a wake
// word or hotkey, transcribes captured speech, completes it against an LLM
// with tool support, and speaks the answer, while serving a line-JSON
// control protocol on stdin/stdout.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"go.opentelemetry.io/otel"

	"github.com/auricle-ai/auricle/internal/assistant"
	"github.com/auricle-ai/auricle/internal/audio"
	"github.com/auricle-ai/auricle/internal/config"
	"github.com/auricle-ai/auricle/internal/inline"
	"github.com/auricle-ai/auricle/internal/metrics"
	"github.com/auricle-ai/auricle/internal/protocol"
	"github.com/auricle-ai/auricle/internal/resilience"
	"github.com/auricle-ai/auricle/internal/stt"
	"github.com/auricle-ai/auricle/internal/tools"
	"github.com/auricle-ai/auricle/pkg/provider/llm"
	"github.com/auricle-ai/auricle/pkg/provider/llm/anyllm"
	oai "github.com/auricle-ai/auricle/pkg/provider/llm/openai"
	"github.com/auricle-ai/auricle/pkg/provider/tts"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	envFile := flag.String("env", "", "optional .env file with API keys")
	flag.Parse()

	// API keys commonly live in a .env during development; a missing file
	// is not an error.
	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			fmt.Fprintf(os.Stderr, "auricle: load %q: %v\n", *envFile, err)
			return 1
		}
	} else {
		_ = godotenv.Load()
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "auricle: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "auricle: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	// Stdout carries the control protocol, so all logging goes to stderr.
	// The LevelVar lets config hot reload change verbosity in place.
	levelVar := new(slog.LevelVar)
	levelVar.Set(slogLevel(cfg.App.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar}))
	slog.SetDefault(logger)

	slog.Info("auricle starting",
		"config", *configPath,
		"log_level", cfg.App.LogLevel,
		"llm_backend", cfg.LLM.Backend,
		"tts_engine", cfg.TTS.Engine,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Metrics ───────────────────────────────────────────────────────────────
	collector := buildCollector(ctx, cfg)

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinBackends(reg)
	registerBuiltinEngines(reg)

	provider, err := reg.CreateLLM(cfg.LLM.Backend, &cfg.LLM)
	if err != nil {
		slog.Error("failed to create LLM backend", "backend", cfg.LLM.Backend, "err", err)
		return 1
	}
	if cfg.ErrorHandling.RetryOnFailure {
		provider = resilience.NewRetryingProvider(provider, resilience.DefaultLLMRetry)
	}

	// Failover to the secondary backend is opt-in; naming one without
	// enabling the flag leaves it cold.
	var fallback llm.Provider
	if cfg.FallbackEnabled() {
		fallback, err = reg.CreateLLM(cfg.LLM.FallbackBackend, &cfg.LLM)
		if err != nil {
			slog.Warn("failed to create fallback LLM backend, continuing without",
				"backend", cfg.LLM.FallbackBackend, "err", err)
			fallback = nil
		}
	}

	transcriber, err := buildTranscriber(cfg)
	if err != nil {
		slog.Error("failed to create transcriber", "err", err)
		return 1
	}

	speaker, err := reg.CreateTTS(cfg.TTS.Engine, &cfg.TTS)
	if err != nil {
		slog.Warn("failed to create TTS engine, responses will be text-only",
			"engine", cfg.TTS.Engine, "err", err)
		speaker = nil
	}

	broker := buildBroker(ctx, cfg)
	device := buildDevice(cfg)

	// ── Assistant ─────────────────────────────────────────────────────────────
	asst := assistant.New(cfg, assistant.Deps{
		Transcriber: transcriber,
		Provider:    provider,
		Fallback:    fallback,
		Speaker:     speaker,
		Broker:      broker,
		Collector:   collector,
		Device:      device,
	})
	if err := asst.Initialize(); err != nil {
		slog.Error("failed to initialise assistant", "err", err)
		return 1
	}

	// Inline text operations share the voice backends but carry their own
	// failover: a circuit-breaker group instead of the spoken error policy.
	inlineProvider := provider
	if fallback != nil {
		lf := resilience.NewLLMFallback(provider, cfg.LLM.Backend, resilience.FallbackConfig{})
		lf.AddFallback(cfg.LLM.FallbackBackend, fallback)
		inlineProvider = lf
	}

	var inlineOpts []inline.Option
	if cfg.InlineAI.MaxTokens > 0 {
		inlineOpts = append(inlineOpts, inline.WithMaxTokens(cfg.InlineAI.MaxTokens))
	}
	if cfg.InlineAI.Temperature > 0 {
		inlineOpts = append(inlineOpts, inline.WithTemperature(cfg.InlineAI.Temperature))
	}

	// ── Control protocol ──────────────────────────────────────────────────────
	srv := protocol.NewServer(os.Stdin, os.Stdout, asst,
		inline.NewService(inlineProvider, inlineOpts...),
		protocol.WithInlineDefaults(protocol.InlineDefaults{
			MaxSentences:     cfg.InlineAI.Formatting.SummaryLength,
			ShowChanges:      cfg.InlineAI.Proofread.ShowChanges,
			MaxPoints:        cfg.InlineAI.Formatting.KeyPointsCount,
			ComposeMaxLength: cfg.InlineAI.Compose.MaxLength,
		}))
	asst.SetStatusCallback(func(s assistant.Status) { srv.BroadcastStatus(string(s)) })
	asst.SetEventCallback(srv.EmitEvent)

	if err := asst.Start(); err != nil {
		slog.Error("failed to start assistant", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		applyReload(config.Diff(old, new), levelVar, asst, speaker)
	})
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	if cfg.Performance.EnableMetrics {
		go collector.RunSummaryLoop(ctx, time.Duration(cfg.Performance.MetricsLogIntervalSeconds)*time.Second)
	}

	slog.Info("auricle ready")

	// Run until stdin closes or a shutdown signal arrives.
	protoErr := make(chan error, 1)
	go func() { protoErr <- srv.Run(ctx) }()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-protoErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("protocol loop error", "err", err)
		} else {
			slog.Info("stdin closed, shutting down")
		}
	}

	if err := asst.Cleanup(); err != nil {
		slog.Warn("cleanup error", "err", err)
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// anyllmBackends are the backend names served by the any-llm-go adapter.
// "openai" is handled separately by the native client.
var anyllmBackends = []string{
	"anthropic", "gemini", "ollama", "deepseek",
	"mistral", "groq", "llamacpp", "llamafile",
}

// registerBuiltinBackends wires all built-in LLM backend factories into reg.
func registerBuiltinBackends(reg *config.Registry) {
	reg.RegisterLLM("openai", func(_ string, entry config.LLMBackendConfig) (llm.Provider, error) {
		var opts []oai.Option
		if entry.BaseURL != "" {
			opts = append(opts, oai.WithBaseURL(entry.BaseURL))
		}
		if entry.TimeoutSeconds > 0 {
			opts = append(opts, oai.WithTimeout(time.Duration(entry.TimeoutSeconds)*time.Second))
		}
		return oai.New(apiKey(entry, "OPENAI_API_KEY"), entry.Model, opts...)
	})

	for _, name := range anyllmBackends {
		reg.RegisterLLM(name, func(name string, entry config.LLMBackendConfig) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if key := apiKey(entry, ""); key != "" {
				opts = append(opts, anyllmlib.WithAPIKey(key))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(name, entry.Model, opts...)
		})
	}
}

// registerBuiltinEngines wires TTS engine factories into reg.
func registerBuiltinEngines(reg *config.Registry) {
	reg.RegisterTTS("say", func(_ string, entry config.TTSEngineConfig) (tts.Speaker, error) {
		var opts []tts.SayOption
		if entry.Voice != "" {
			opts = append(opts, tts.WithVoice(entry.Voice))
		}
		if entry.Rate != 0 {
			opts = append(opts, tts.WithRate(entry.Rate))
		}
		if entry.Volume != 0 {
			opts = append(opts, tts.WithVolume(entry.Volume))
		}
		return tts.NewSaySpeaker(opts...)
	})
}

// apiKey resolves the backend's API key: an explicit api_key_env wins, then
// the conventional environment variable for the backend.
func apiKey(entry config.LLMBackendConfig, conventional string) string {
	if entry.APIKeyEnv != "" {
		return os.Getenv(entry.APIKeyEnv)
	}
	if conventional != "" {
		return os.Getenv(conventional)
	}
	return ""
}

func buildTranscriber(cfg *config.Config) (stt.Transcriber, error) {
	binary := cfg.STT.BinaryPath
	if binary == "" {
		binary = "whisper-cli"
	}

	opts := []stt.ProcessOption{
		stt.WithLanguage(cfg.STT.Language),
		stt.WithSilenceTrim(),
	}
	if cfg.STT.ModelID != "" {
		opts = append(opts, stt.WithModel(cfg.STT.ModelID))
	}
	if cfg.STT.Threads > 0 {
		opts = append(opts, stt.WithExtraArgs("-t", fmt.Sprint(cfg.STT.Threads)))
	}
	if cfg.STT.EnableCache {
		cache, err := stt.NewCache(cfg.STT.CacheDir, cfg.STT.Language, cfg.STT.ModelID)
		if err != nil {
			slog.Warn("transcription cache disabled", "err", err)
		} else {
			opts = append(opts, stt.WithCache(cache))
		}
	}
	return stt.NewProcessTranscriber(binary, opts...)
}

// buildBroker connects the configured MCP servers. Returns nil when no
// servers are configured; individual connection failures are logged and
// skipped so one bad server does not take the assistant down.
func buildBroker(ctx context.Context, cfg *config.Config) tools.Broker {
	if len(cfg.Tools.Servers) == 0 {
		return nil
	}

	broker := tools.New()
	connected := 0
	for _, srv := range cfg.Tools.Servers {
		err := broker.RegisterServer(ctx, tools.ServerConfig{
			Name:      srv.Name,
			Transport: tools.Transport(srv.Transport),
			Command:   srv.Command,
			Env:       srv.Env,
			URL:       srv.URL,
		})
		if err != nil {
			slog.Warn("failed to connect tool server", "server", srv.Name, "err", err)
			continue
		}
		connected++
	}
	if connected == 0 {
		_ = broker.Close()
		return nil
	}
	slog.Info("tool servers connected", "count", connected)
	return broker
}

// buildDevice opens the capture device. A missing device is not fatal: the
// assistant still serves the control protocol and programmatic audio.
func buildDevice(cfg *config.Config) audio.Device {
	selector := audio.DeviceSelector(cfg.Audio.DeviceName, cfg.Audio.DeviceIndex)
	device, err := audio.NewMalgoDevice(selector, cfg.Audio.SampleRate)
	if err != nil {
		slog.Warn("audio capture unavailable, running protocol-only", "err", err)
		return nil
	}
	return device
}

func buildCollector(ctx context.Context, cfg *config.Config) *metrics.Collector {
	if !cfg.Performance.EnableMetrics {
		return metrics.NewCollector(nil)
	}
	shutdown, err := metrics.InitProvider(ctx, metrics.ProviderConfig{ServiceName: "auricle"})
	if err != nil {
		slog.Warn("telemetry provider init failed, using in-process metrics only", "err", err)
		return metrics.NewCollector(nil)
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(shutdownCtx)
	}()

	inst, err := metrics.NewInstruments(otel.GetMeterProvider())
	if err != nil {
		slog.Warn("otel instruments unavailable", "err", err)
		return metrics.NewCollector(nil)
	}
	return metrics.NewCollector(inst)
}

// applyReload applies the hot-reloadable subset of a config change.
func applyReload(d config.ConfigDiff, levelVar *slog.LevelVar, asst *assistant.Assistant, speaker tts.Speaker) {
	if !d.Any() {
		return
	}
	if d.LogLevelChanged {
		levelVar.Set(slogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.TTSChanged && speaker != nil {
		speaker.SetVoice(d.NewVoice)
		if d.NewRate != 0 {
			speaker.SetRate(d.NewRate)
		}
		speaker.SetVolume(d.NewVolume)
		slog.Info("tts parameters changed", "voice", d.NewVoice, "rate", d.NewRate, "volume", d.NewVolume)
	}
	if d.SensitivityChanged {
		asst.SetWakeSensitivity(d.NewSensitivity)
		slog.Info("wake sensitivity changed", "sensitivity", d.NewSensitivity)
	}
	if d.SystemPromptChanged {
		asst.SetSystemPrompt(d.NewSystemPrompt)
		slog.Info("system prompt changed", "length", len(d.NewSystemPrompt))
	}
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
