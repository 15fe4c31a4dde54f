package billing

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v76"

	"assistant-backend/internal/metrics"
	"assistant-backend/internal/store"
)

const testWebhookSecret = "whsec_test"

func signPayload(secret string, payload []byte, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

type recordingProcessor struct {
	events []stripe.Event
}

func (r *recordingProcessor) HandleEvent(_ context.Context, ev stripe.Event) error {
	r.events = append(r.events, ev)
	return nil
}

func TestWebhookRejectsInvalidSignature(t *testing.T) {
	proc := &recordingProcessor{}
	h := NewWebhookHandler(testWebhookSecret, proc, testLogger(), metrics.Registry("test"))

	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{}}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signPayload("whsec_wrong", payload, time.Now()))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if len(proc.events) != 0 {
		t.Errorf("processor ran on forged payload")
	}
}

func TestWebhookAcceptsSignedEvent(t *testing.T) {
	proc := &recordingProcessor{}
	h := NewWebhookHandler(testWebhookSecret, proc, testLogger(), metrics.Registry("test"))

	payload := []byte(`{"id":"evt_1","type":"customer.subscription.deleted","data":{"object":{"id":"sub_1"}}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signPayload(testWebhookSecret, payload, time.Now()))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp map[string]bool
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp["received"] {
		t.Errorf("response = %s, want received:true", rec.Body.String())
	}
	if len(proc.events) != 1 || string(proc.events[0].Type) != EventSubscriptionDeleted {
		t.Errorf("events = %+v", proc.events)
	}
}

func TestWebhookMethodNotAllowed(t *testing.T) {
	h := NewWebhookHandler(testWebhookSecret, &recordingProcessor{}, testLogger(), metrics.Registry("test"))

	req := httptest.NewRequest(http.MethodGet, "/webhook/stripe", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

// subscriptionStore fakes just the subscription slice of the Store interface.
type subscriptionStore struct {
	store.Store
	rows map[string]store.Subscription // keyed by user id
}

func newSubscriptionStore() *subscriptionStore {
	return &subscriptionStore{rows: map[string]store.Subscription{}}
}

func (s *subscriptionStore) GetSubscriptionByUser(_ context.Context, userID string) (*store.Subscription, error) {
	if row, ok := s.rows[userID]; ok {
		return &row, nil
	}
	return nil, nil
}

func (s *subscriptionStore) GetSubscriptionByStripeID(_ context.Context, stripeID string) (*store.Subscription, error) {
	for _, row := range s.rows {
		if row.StripeSubscriptionID == stripeID {
			return &row, nil
		}
	}
	return nil, nil
}

func (s *subscriptionStore) UpsertSubscription(_ context.Context, sub store.Subscription) (*store.Subscription, error) {
	s.rows[sub.UserID] = sub
	return &sub, nil
}

func checkoutEvent(t *testing.T) stripe.Event {
	t.Helper()
	raw := `{"id":"cs_1","customer":"cus_1","subscription":"sub_1","metadata":{"user_id":"user-1","plan_name":"pro"}}`
	return stripe.Event{
		Type: stripe.EventType(EventCheckoutCompleted),
		Data: &stripe.EventData{Raw: json.RawMessage(raw)},
	}
}

func TestProcessorCheckoutCompleted(t *testing.T) {
	st := newSubscriptionStore()
	p := NewProcessor(st, newFakeProvider(), testLogger())

	if err := p.HandleEvent(context.Background(), checkoutEvent(t)); err != nil {
		t.Fatalf("handle event: %v", err)
	}

	row, ok := st.rows["user-1"]
	if !ok {
		t.Fatal("no row upserted for user-1")
	}
	if row.Status != store.StatusActive || row.Plan != "pro" {
		t.Errorf("row = %+v", row)
	}
	if row.StripeSubscriptionID != "sub_1" || row.StripeCustomerID != "cus_1" {
		t.Errorf("provider ids = %s / %s", row.StripeSubscriptionID, row.StripeCustomerID)
	}

	// Replay must converge, not duplicate.
	if err := p.HandleEvent(context.Background(), checkoutEvent(t)); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(st.rows) != 1 {
		t.Errorf("rows = %d, want 1", len(st.rows))
	}
}

func TestProcessorIgnoresUnknownType(t *testing.T) {
	st := newSubscriptionStore()
	p := NewProcessor(st, newFakeProvider(), testLogger())

	ev := stripe.Event{
		Type: "charge.refunded",
		Data: &stripe.EventData{Raw: json.RawMessage(`{}`)},
	}
	if err := p.HandleEvent(context.Background(), ev); err != nil {
		t.Fatalf("unknown type should be ignored, got %v", err)
	}
	if len(st.rows) != 0 {
		t.Errorf("unexpected state change: %+v", st.rows)
	}
}

func TestProcessorSkipsUnmatchedUpdate(t *testing.T) {
	st := newSubscriptionStore()
	p := NewProcessor(st, newFakeProvider(), testLogger())

	ev := stripe.Event{
		Type: stripe.EventType(EventSubscriptionUpdated),
		Data: &stripe.EventData{Raw: json.RawMessage(`{"id":"sub_missing","status":"active"}`)},
	}
	if err := p.HandleEvent(context.Background(), ev); err != nil {
		t.Fatalf("unmatched update should be skipped, got %v", err)
	}
	if len(st.rows) != 0 {
		t.Errorf("unexpected state change: %+v", st.rows)
	}
}
