package llm

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"assistant-backend/internal/metrics"
	"assistant-backend/internal/store"
)

type fakeCompleter struct {
	reply string
	err   error
	seen  []openai.ChatCompletionMessage
}

func (f *fakeCompleter) Complete(_ context.Context, msgs []openai.ChatCompletionMessage) (string, error) {
	f.seen = msgs
	return f.reply, f.err
}

func TestCategorizeNormalizesLabel(t *testing.T) {
	c := NewCategorizer(&fakeCompleter{reply: "  Invoice \n"}, slog.Default(), metrics.Registry("test"))

	got, err := c.Categorize(context.Background(), "scan001.pdf", "application/pdf", 2048)
	if err != nil {
		t.Fatalf("categorize: %v", err)
	}
	if got != "invoice" {
		t.Errorf("category = %q, want invoice", got)
	}
}

func TestCategorizeProviderFailureFallsBack(t *testing.T) {
	c := NewCategorizer(&fakeCompleter{err: errors.New("upstream down")}, slog.Default(), metrics.Registry("test"))

	got, err := c.Categorize(context.Background(), "scan.pdf", "application/pdf", 10)
	if err == nil {
		t.Fatal("expected error to be surfaced")
	}
	if got != CategoryOther {
		t.Errorf("category = %q, want other", got)
	}
}

func TestCategorizeUnrecognizedLabelFallsBack(t *testing.T) {
	c := NewCategorizer(&fakeCompleter{reply: "spreadsheet"}, slog.Default(), metrics.Registry("test"))

	got, err := c.Categorize(context.Background(), "q3.xlsx", "application/vnd.ms-excel", 10)
	if err == nil {
		t.Fatal("expected error for unknown label")
	}
	if got != CategoryOther {
		t.Errorf("category = %q, want other", got)
	}
}

type fakeChatStore struct {
	history  []store.ChatMessage
	inserted []store.ChatMessage
}

func (f *fakeChatStore) InsertChatMessage(_ context.Context, m store.ChatMessage) error {
	f.inserted = append(f.inserted, m)
	return nil
}

func (f *fakeChatStore) ListRecentChatMessages(_ context.Context, _ string, limit int) ([]store.ChatMessage, error) {
	if len(f.history) > limit {
		return f.history[:limit], nil
	}
	return f.history, nil
}

type fakeRecorder struct {
	count int
}

func (f *fakeRecorder) RecordAIGeneration(context.Context, string) error {
	f.count++
	return nil
}

func TestChatReplaysHistoryOldestFirst(t *testing.T) {
	now := time.Now()
	st := &fakeChatStore{
		// Newest first, as the store returns them.
		history: []store.ChatMessage{
			{Role: "assistant", Content: "second reply", CreatedAt: now},
			{Role: "user", Content: "second question", CreatedAt: now.Add(-time.Minute)},
			{Role: "assistant", Content: "first reply", CreatedAt: now.Add(-2 * time.Minute)},
			{Role: "user", Content: "first question", CreatedAt: now.Add(-3 * time.Minute)},
		},
	}
	completer := &fakeCompleter{reply: "third reply"}
	chat := NewChat(completer, st, &fakeRecorder{}, slog.Default(), metrics.Registry("test"))

	reply, err := chat.Respond(context.Background(), "user-1", "conv-1", "third question")
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if reply != "third reply" {
		t.Errorf("reply = %q", reply)
	}

	wantOrder := []string{
		chatSystemPrompt,
		"first question", "first reply",
		"second question", "second reply",
		"third question",
	}
	if len(completer.seen) != len(wantOrder) {
		t.Fatalf("context window has %d messages, want %d", len(completer.seen), len(wantOrder))
	}
	for i, want := range wantOrder {
		if completer.seen[i].Content != want {
			t.Errorf("msg[%d] = %q, want %q", i, completer.seen[i].Content, want)
		}
	}
}

func TestChatPersistsBothSides(t *testing.T) {
	st := &fakeChatStore{}
	rec := &fakeRecorder{}
	chat := NewChat(&fakeCompleter{reply: "hello back"}, st, rec, slog.Default(), metrics.Registry("test"))

	if _, err := chat.Respond(context.Background(), "user-1", "conv-1", "hello"); err != nil {
		t.Fatalf("respond: %v", err)
	}

	if len(st.inserted) != 2 {
		t.Fatalf("inserted %d messages, want 2", len(st.inserted))
	}
	if st.inserted[0].Role != "user" || st.inserted[1].Role != "assistant" {
		t.Errorf("roles = %s, %s", st.inserted[0].Role, st.inserted[1].Role)
	}
	if rec.count != 1 {
		t.Errorf("usage recorded %d times, want 1", rec.count)
	}
}

func TestChatStatelessWithoutConversation(t *testing.T) {
	st := &fakeChatStore{}
	chat := NewChat(&fakeCompleter{reply: "ok"}, st, &fakeRecorder{}, slog.Default(), metrics.Registry("test"))

	if _, err := chat.Respond(context.Background(), "user-1", "", "one-off question"); err != nil {
		t.Fatalf("respond: %v", err)
	}
	if len(st.inserted) != 0 {
		t.Errorf("stateless turn persisted %d messages", len(st.inserted))
	}
}
