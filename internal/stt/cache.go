package stt

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/auricle-ai/auricle/pkg/types"
)

// Cache is a content-addressed store of transcription results. Keys are
// derived from the raw audio samples plus the parameters that influence the
// transcript (sample rate, language, model), so a hit is only possible for a
// byte-identical request.
type Cache struct {
	dir      string
	language string
	model    string
}

// NewCache creates a cache rooted at dir, creating the directory if needed.
// language and model are mixed into every key so that switching either
// invalidates prior entries naturally.
func NewCache(dir, language, model string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("stt: create cache dir: %w", err)
	}
	return &Cache{dir: dir, language: language, model: model}, nil
}

// Key computes the cache key for a chunk: hex SHA-256 over the raw
// little-endian sample bytes followed by "|<rate>|<language>|<model>".
func (c *Cache) Key(chunk types.AudioChunk) string {
	h := sha256.New()
	buf := make([]byte, 2)
	for _, s := range chunk.Samples {
		binary.LittleEndian.PutUint16(buf, uint16(s))
		h.Write(buf)
	}
	fmt.Fprintf(h, "|%d|%s|%s", chunk.SampleRate, c.language, c.model)
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached result for key, or (nil, false) on a miss. Corrupt
// entries are removed and treated as misses.
func (c *Cache) Get(key string) (*Result, bool) {
	data, err := os.ReadFile(c.path(key))
	if err != nil {
		return nil, false
	}
	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		slog.Warn("stt: removing corrupt cache entry", "key", key, "error", err)
		_ = os.Remove(c.path(key))
		return nil, false
	}
	res.CacheHit = true
	return &res, true
}

// Put stores a result under key. Write failures are logged, not returned:
// the cache is an optimisation and must never fail a transcription.
func (c *Cache) Put(key string, res *Result) {
	data, err := json.Marshal(res)
	if err != nil {
		slog.Warn("stt: cache marshal failed", "key", key, "error", err)
		return
	}
	if err := os.WriteFile(c.path(key), data, 0o644); err != nil {
		slog.Warn("stt: cache write failed", "key", key, "error", err)
	}
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.dir, key+".json")
}
