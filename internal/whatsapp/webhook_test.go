package whatsapp

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"assistant-backend/internal/metrics"
	"assistant-backend/internal/store"
)

type fakeMessageStore struct {
	links    map[string]string
	inserted []store.Expense
}

func (f *fakeMessageStore) LookupIntegrationUser(_ context.Context, channel, externalID string) (string, error) {
	if channel != "whatsapp" {
		return "", nil
	}
	return f.links[externalID], nil
}

func (f *fakeMessageStore) InsertExpense(_ context.Context, e store.Expense) (*store.Expense, error) {
	e.ID = "exp-1"
	f.inserted = append(f.inserted, e)
	return &e, nil
}

type fakeSender struct {
	sent []string
}

func (f *fakeSender) SendText(_ context.Context, to, body string) error {
	f.sent = append(f.sent, body)
	return nil
}

func newTestHandler(st *fakeMessageStore, sender *fakeSender) *WebhookHandler {
	proc := NewProcessor(st, sender, slog.Default(), metrics.Registry("test"))
	return NewWebhookHandler("verify-secret", proc, slog.Default())
}

func TestVerifyHandshake(t *testing.T) {
	h := newTestHandler(&fakeMessageStore{}, &fakeSender{})

	req := httptest.NewRequest(http.MethodGet,
		"/webhook/whatsapp?hub.mode=subscribe&hub.verify_token=verify-secret&hub.challenge=12345", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.String() != "12345" {
		t.Errorf("body = %q, want raw challenge", rec.Body.String())
	}
}

func TestVerifyRejectsBadToken(t *testing.T) {
	h := newTestHandler(&fakeMessageStore{}, &fakeSender{})

	req := httptest.NewRequest(http.MethodGet,
		"/webhook/whatsapp?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestVerifyRejectsWrongMode(t *testing.T) {
	h := newTestHandler(&fakeMessageStore{}, &fakeSender{})

	req := httptest.NewRequest(http.MethodGet,
		"/webhook/whatsapp?hub.mode=unsubscribe&hub.verify_token=verify-secret&hub.challenge=12345", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func envelopeWith(text string) string {
	return `{"entry":[{"changes":[{"value":{"messages":[{"from":"15550001111","type":"text","text":{"body":"` + text + `"}}]}}]}]}`
}

func TestInboundExpenseRecorded(t *testing.T) {
	st := &fakeMessageStore{links: map[string]string{"15550001111": "user-1"}}
	sender := &fakeSender{}
	h := newTestHandler(st, sender)

	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp",
		strings.NewReader(envelopeWith("spent $25 on lunch")))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Fatalf("status = %d, body = %q", rec.Code, rec.Body.String())
	}

	if len(st.inserted) != 1 {
		t.Fatalf("inserted %d expenses", len(st.inserted))
	}
	e := st.inserted[0]
	if e.UserID != "user-1" || e.Amount != 25 || e.Source != store.ExpenseSourceWhatsApp {
		t.Errorf("expense = %+v", e)
	}
	if e.Category != store.CategoryMeals {
		t.Errorf("category = %s, want meals", e.Category)
	}

	if len(sender.sent) != 1 || !strings.Contains(sender.sent[0], "$25.00") {
		t.Errorf("replies = %v", sender.sent)
	}
}

func TestInboundExpenseUnlinkedNumber(t *testing.T) {
	st := &fakeMessageStore{}
	sender := &fakeSender{}
	h := newTestHandler(st, sender)

	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp",
		strings.NewReader(envelopeWith("spent $25 on lunch")))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(st.inserted) != 0 {
		t.Error("expense recorded for unlinked number")
	}
	if len(sender.sent) != 1 || sender.sent[0] != replyNotLinked {
		t.Errorf("replies = %v", sender.sent)
	}
}

func TestInboundGeneralQuery(t *testing.T) {
	sender := &fakeSender{}
	h := newTestHandler(&fakeMessageStore{}, sender)

	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp",
		strings.NewReader(envelopeWith("How do I reset my password")))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if len(sender.sent) != 1 || sender.sent[0] != replyGeneralQuery {
		t.Errorf("replies = %v", sender.sent)
	}
}

func TestInboundMalformedEnvelope(t *testing.T) {
	h := newTestHandler(&fakeMessageStore{}, &fakeSender{})

	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
