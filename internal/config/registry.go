package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/auricle-ai/auricle/pkg/provider/llm"
	"github.com/auricle-ai/auricle/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps LLM backend names and TTS engine names to their constructor
// functions. Built-in factories are registered at startup; additional ones
// may be registered at runtime before the assistant is started. It is safe
// for concurrent use.
type Registry struct {
	mu  sync.RWMutex
	llm map[string]func(name string, entry LLMBackendConfig) (llm.Provider, error)
	tts map[string]func(name string, entry TTSEngineConfig) (tts.Speaker, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		llm: make(map[string]func(string, LLMBackendConfig) (llm.Provider, error)),
		tts: make(map[string]func(string, TTSEngineConfig) (tts.Speaker, error)),
	}
}

// RegisterLLM registers an LLM backend factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterLLM(name string, factory func(name string, entry LLMBackendConfig) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// RegisterTTS registers a TTS engine factory under name.
func (r *Registry) RegisterTTS(name string, factory func(name string, entry TTSEngineConfig) (tts.Speaker, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts[name] = factory
}

// LLMBackends returns the names of all registered LLM backends.
func (r *Registry) LLMBackends() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.llm))
	for name := range r.llm {
		names = append(names, name)
	}
	return names
}

// TTSEngines returns the names of all registered TTS engines.
func (r *Registry) TTSEngines() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tts))
	for name := range r.tts {
		names = append(names, name)
	}
	return names
}

// CreateLLM instantiates the LLM backend registered under name using its
// config block from cfg. Returns [ErrProviderNotRegistered] if no factory
// has been registered for that name.
func (r *Registry) CreateLLM(name string, cfg *LLMConfig) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.llm[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: llm/%q", ErrProviderNotRegistered, name)
	}
	return factory(name, cfg.Backends[name])
}

// CreateTTS instantiates the TTS engine registered under name using its
// config block from cfg.
func (r *Registry) CreateTTS(name string, cfg *TTSConfig) (tts.Speaker, error) {
	r.mu.RLock()
	factory, ok := r.tts[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: tts/%q", ErrProviderNotRegistered, name)
	}
	return factory(name, cfg.Engines[name])
}
