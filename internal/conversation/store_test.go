package conversation

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/auricle-ai/auricle/pkg/types"
)

func TestStoreBasicFlow(t *testing.T) {
	s := NewStore(Config{MaxTurns: 10})
	s.SetSystemPrompt("You are a voice assistant.")
	s.AddUserMessage("hello")
	s.AddAssistantMessage("hi there", nil)

	msgs := s.Messages()
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	if msgs[0].Role != "system" {
		t.Errorf("first message role = %q, want system", msgs[0].Role)
	}
	if msgs[1].Content != "hello" || msgs[2].Content != "hi there" {
		t.Error("turn order not preserved")
	}
}

func TestStoreTurnCap(t *testing.T) {
	s := NewStore(Config{MaxTurns: 3})
	s.SetSystemPrompt("sys")

	for i := 0; i < 10; i++ {
		s.AddUserMessage(fmt.Sprintf("question %d", i))
		s.AddAssistantMessage(fmt.Sprintf("answer %d", i), nil)
	}

	msgs := s.Messages()
	// System + 2×MaxTurns.
	if len(msgs) != 1+6 {
		t.Fatalf("got %d messages, want 7", len(msgs))
	}
	if msgs[0].Role != "system" {
		t.Error("system prompt lost during pruning")
	}
	if msgs[1].Content != "question 7" {
		t.Errorf("oldest retained = %q, want 'question 7'", msgs[1].Content)
	}
}

func TestStoreTokenBudget(t *testing.T) {
	// Each message is ~250 tokens (1000 chars / 4); budget 600 keeps two.
	s := NewStore(Config{MaxTurns: 50, MaxTokens: 600})
	big := strings.Repeat("x", 1000)
	for i := 0; i < 5; i++ {
		s.AddUserMessage(big)
	}

	info := s.Stats()
	if info.EstimatedTokens > 600 {
		t.Errorf("estimated tokens = %d, want ≤ 600", info.EstimatedTokens)
	}
	if info.MessageCount == 0 {
		t.Error("token pruning removed everything")
	}
}

func TestStoreTokenBudgetKeepsLatest(t *testing.T) {
	s := NewStore(Config{MaxTurns: 50, MaxTokens: 10})
	s.AddUserMessage(strings.Repeat("a", 400))
	s.AddUserMessage("latest")

	msgs := s.Messages()
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1 (only the latest survives)", len(msgs))
	}
	if msgs[0].Content != "latest" {
		t.Errorf("survivor = %q, want 'latest'", msgs[0].Content)
	}
}

func TestStoreTokenBudgetPrunesLoneOversizedMessage(t *testing.T) {
	// A single message that alone blows the budget must not be retained
	// just because it is the last one standing.
	s := NewStore(Config{MaxTurns: 10, MaxTokens: 10})
	s.SetSystemPrompt("sys")
	s.AddUserMessage(strings.Repeat("a", 400))

	info := s.Stats()
	if info.MessageCount != 0 {
		t.Errorf("MessageCount = %d, want 0", info.MessageCount)
	}
	if info.EstimatedTokens > 10 {
		t.Errorf("estimated tokens = %d, want ≤ 10", info.EstimatedTokens)
	}
	msgs := s.Messages()
	if len(msgs) != 1 || msgs[0].Role != "system" {
		t.Errorf("got %d messages, want only the system prompt", len(msgs))
	}
}

func TestStoreAddExchange(t *testing.T) {
	s := NewStore(Config{MaxTurns: 2})
	s.AddExchange("q1", "a1")
	s.AddExchange("q2", "a2")
	s.AddExchange("q3", "a3")

	msgs := s.Messages()
	if len(msgs) != 4 {
		t.Fatalf("got %d messages, want 4", len(msgs))
	}
	// The oldest pair falls off together.
	if msgs[0].Role != "user" || msgs[0].Content != "q2" {
		t.Errorf("oldest retained = %s %q, want user 'q2'", msgs[0].Role, msgs[0].Content)
	}
	if msgs[3].Role != "assistant" || msgs[3].Content != "a3" {
		t.Errorf("newest retained = %s %q, want assistant 'a3'", msgs[3].Role, msgs[3].Content)
	}
}

func TestStoreRecentTurns(t *testing.T) {
	s := NewStore(Config{MaxTurns: 10})
	s.SetSystemPrompt("sys")
	s.AddExchange("q1", "a1")
	s.AddExchange("q2", "a2")
	s.AddExchange("q3", "a3")

	turns := s.RecentTurns(2)
	if len(turns) != 4 {
		t.Fatalf("RecentTurns(2) returned %d messages, want 4", len(turns))
	}
	if turns[0].Role != "user" || turns[0].Content != "q2" {
		t.Errorf("window opens with %s %q, want user 'q2'", turns[0].Role, turns[0].Content)
	}
	for _, m := range turns {
		if m.Role == "system" {
			t.Error("system prompt leaked into RecentTurns")
		}
	}

	// Asking for more turns than exist returns everything.
	if got := len(s.RecentTurns(99)); got != 6 {
		t.Errorf("RecentTurns(99) returned %d messages, want 6", got)
	}
	if s.RecentTurns(0) != nil {
		t.Error("RecentTurns(0) should be nil")
	}
}

func TestStoreResetSession(t *testing.T) {
	s := NewStore(Config{MaxTurns: 10})
	s.SetSystemPrompt("sys")
	s.AddUserMessage("hello")
	s.SetMetadata("k", "v")
	s.ResetSession()

	msgs := s.Messages()
	if len(msgs) != 1 || msgs[0].Role != "system" {
		t.Errorf("after reset: %d messages, want just the system prompt", len(msgs))
	}
	if _, ok := s.Metadata("k"); ok {
		t.Error("metadata survived reset")
	}
	if got := s.Stats(); !got.LastActivity.IsZero() {
		t.Errorf("LastActivity = %v after reset, want zero", got.LastActivity)
	}
}

func TestStoreToolResultNeverOrphaned(t *testing.T) {
	s := NewStore(Config{MaxTurns: 1})
	s.AddUserMessage("old question")
	s.AddAssistantMessage("", []types.ToolCall{{ID: "c1", Name: "get_time"}})
	s.AddToolResult("get_time", "14:32", "c1")
	s.AddAssistantMessage("It is 14:32.", nil)

	msgs := s.Messages()
	if len(msgs) == 0 {
		t.Fatal("history empty")
	}
	if msgs[0].Role == "tool" {
		t.Error("history starts with an orphaned tool result")
	}
}

func TestStoreClearKeepsSystemPrompt(t *testing.T) {
	s := NewStore(Config{MaxTurns: 10})
	s.SetSystemPrompt("sys")
	s.AddUserMessage("hello")
	s.SetMetadata("last_topic", "weather")
	s.Clear()

	msgs := s.Messages()
	if len(msgs) != 1 || msgs[0].Role != "system" {
		t.Errorf("after Clear: %d messages, want just the system prompt", len(msgs))
	}
	if _, ok := s.Metadata("last_topic"); ok {
		t.Error("metadata survived Clear")
	}
}

func TestStoreIdleReset(t *testing.T) {
	s := NewStore(Config{MaxTurns: 10, IdleTimeout: 5 * time.Minute})
	s.SetSystemPrompt("sys")

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	s.AddUserMessage("hello")
	s.AddAssistantMessage("hi", nil)

	// Just under the idle window: history intact.
	clock = clock.Add(4 * time.Minute)
	if got := len(s.Messages()); got != 3 {
		t.Fatalf("before timeout: %d messages, want 3", got)
	}

	// Reading does not refresh the activity stamp, so the window still
	// expires relative to the last append.
	clock = clock.Add(2 * time.Minute)
	msgs := s.Messages()
	if len(msgs) != 1 || msgs[0].Role != "system" {
		t.Fatalf("after timeout: %d messages, want only the system prompt", len(msgs))
	}
}

func TestStoreIdleResetOnAppend(t *testing.T) {
	s := NewStore(Config{MaxTurns: 10, IdleTimeout: time.Minute})
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	s.AddUserMessage("stale question")
	clock = clock.Add(time.Hour)
	s.AddUserMessage("fresh question")

	msgs := s.Messages()
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if msgs[0].Content != "fresh question" {
		t.Errorf("retained = %q, want 'fresh question'", msgs[0].Content)
	}
}

func TestStoreMetadata(t *testing.T) {
	s := NewStore(Config{})
	s.SetMetadata("k", "v")
	if v, ok := s.Metadata("k"); !ok || v != "v" {
		t.Errorf("Metadata(k) = %q, %v", v, ok)
	}
	if _, ok := s.Metadata("missing"); ok {
		t.Error("missing key reported as present")
	}
}

func TestStoreStats(t *testing.T) {
	s := NewStore(Config{MaxTurns: 10})
	if got := s.Stats(); got.MessageCount != 0 || !got.LastActivity.IsZero() {
		t.Errorf("empty store stats = %+v", got)
	}
	s.AddUserMessage("test")
	got := s.Stats()
	if got.MessageCount != 1 {
		t.Errorf("MessageCount = %d, want 1", got.MessageCount)
	}
	if got.EstimatedTokens == 0 {
		t.Error("EstimatedTokens = 0 for non-empty history")
	}
	if got.LastActivity.IsZero() {
		t.Error("LastActivity not stamped")
	}
}
