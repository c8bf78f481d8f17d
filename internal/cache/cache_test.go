package cache

import (
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/xynenyx/relay/internal/provider"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func testMessages() []provider.Message {
	return []provider.Message{
		{Role: provider.RoleSystem, Content: "You are helpful."},
		{Role: provider.RoleUser, Content: "Hi"},
	}
}

func testCompletion(content string) provider.Completion {
	return provider.Completion{
		Provider: "openai",
		Content:  content,
		Model:    "gpt-4o-mini",
		Usage:    provider.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}
}

func TestGetAfterSet_Deterministic(t *testing.T) {
	c := New(time.Hour, testLogger())
	messages := testMessages()

	c.Set(messages, testCompletion("hello"), 0.1)

	for i := 0; i < 2; i++ {
		got, ok := c.Get(messages, 0.1)
		if !ok {
			t.Fatalf("read %d: expected cache hit", i)
		}
		if got.Content != "hello" {
			t.Errorf("read %d: got content %q, want %q", i, got.Content, "hello")
		}
	}
}

func TestHighTemperature_NeverCached(t *testing.T) {
	c := New(time.Hour, testLogger())
	messages := testMessages()

	c.Set(messages, testCompletion("hot"), 0.9)

	if _, ok := c.Get(messages, 0.9); ok {
		t.Error("expected miss for temperature above threshold")
	}
	if c.Size() != 0 {
		t.Errorf("expected empty cache, got %d entries", c.Size())
	}
}

func TestThresholdBoundary(t *testing.T) {
	c := New(time.Hour, testLogger())
	messages := testMessages()

	// Exactly at the threshold is still eligible.
	c.Set(messages, testCompletion("boundary"), EligibilityThreshold)
	if _, ok := c.Get(messages, EligibilityThreshold); !ok {
		t.Error("expected hit at exactly the eligibility threshold")
	}

	c.Clear()
	c.Set(messages, testCompletion("over"), EligibilityThreshold+0.01)
	if c.Size() != 0 {
		t.Error("expected no entry just above the threshold")
	}
}

func TestKeySensitivity(t *testing.T) {
	base := testMessages()

	reordered := []provider.Message{base[1], base[0]}
	changedContent := []provider.Message{base[0], {Role: provider.RoleUser, Content: "Hi!"}}
	changedRole := []provider.Message{base[0], {Role: provider.RoleAssistant, Content: "Hi"}}

	tests := []struct {
		name        string
		messages    []provider.Message
		temperature float64
	}{
		{"reordered messages", reordered, 0.1},
		{"changed content", changedContent, 0.1},
		{"changed role", changedRole, 0.1},
		{"changed temperature", base, 0.2},
	}

	c := New(time.Hour, testLogger())
	c.Set(base, testCompletion("original"), 0.1)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := c.Get(tt.messages, tt.temperature); ok {
				t.Error("expected distinct cache key, got a hit")
			}
		})
	}
}

func TestTTLExpiry_LazyEviction(t *testing.T) {
	c := New(time.Hour, testLogger())
	messages := testMessages()

	now := time.Now()
	c.now = func() time.Time { return now }

	c.Set(messages, testCompletion("fresh"), 0.1)

	// Still valid just inside the TTL.
	c.now = func() time.Time { return now.Add(59 * time.Minute) }
	if _, ok := c.Get(messages, 0.1); !ok {
		t.Fatal("expected hit inside TTL")
	}

	// Expired: the read itself must evict.
	c.now = func() time.Time { return now.Add(61 * time.Minute) }
	if _, ok := c.Get(messages, 0.1); ok {
		t.Fatal("expected miss after TTL")
	}
	if c.Size() != 0 {
		t.Errorf("expected expired entry to be evicted on read, size=%d", c.Size())
	}
}

func TestSet_Overwrites(t *testing.T) {
	c := New(time.Hour, testLogger())
	messages := testMessages()

	c.Set(messages, testCompletion("first"), 0.1)
	c.Set(messages, testCompletion("second"), 0.1)

	got, ok := c.Get(messages, 0.1)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.Content != "second" {
		t.Errorf("expected last write to win, got %q", got.Content)
	}
	if c.Size() != 1 {
		t.Errorf("expected 1 entry, got %d", c.Size())
	}
}

func TestClearAndSize(t *testing.T) {
	c := New(time.Hour, testLogger())

	c.Set(testMessages(), testCompletion("a"), 0.1)
	c.Set([]provider.Message{{Role: provider.RoleUser, Content: "other"}}, testCompletion("b"), 0.2)

	if c.Size() != 2 {
		t.Fatalf("expected 2 entries, got %d", c.Size())
	}

	c.Clear()
	if c.Size() != 0 {
		t.Errorf("expected empty cache after clear, got %d", c.Size())
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := New(time.Hour, testLogger())
	messages := testMessages()

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 100; j++ {
				c.Set(messages, testCompletion("racy"), 0.1)
				c.Get(messages, 0.1)
				c.Size()
			}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}

	if got, ok := c.Get(messages, 0.1); !ok || got.Content != "racy" {
		t.Error("expected cache to survive concurrent access")
	}
}
