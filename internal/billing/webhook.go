package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"assistant-backend/internal/metrics"
	"assistant-backend/internal/store"
)

const maxWebhookBody = 1 << 20

// EventProcessor consumes verified webhook events.
type EventProcessor interface {
	HandleEvent(ctx context.Context, event stripe.Event) error
}

// WebhookHandler verifies webhook signatures before handing events to the
// processor. An invalid signature is rejected with 400 and no state change.
type WebhookHandler struct {
	secret    string
	processor EventProcessor
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewWebhookHandler builds the signed-webhook endpoint.
func NewWebhookHandler(secret string, processor EventProcessor, logger *slog.Logger, m *metrics.Metrics) *WebhookHandler {
	return &WebhookHandler{
		secret:    secret,
		processor: processor,
		logger:    logger.With("component", "billing_webhook"),
		metrics:   m,
	}
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "read body failed", http.StatusBadRequest)
		return
	}

	event, err := webhook.ConstructEvent(payload, r.Header.Get("Stripe-Signature"), h.secret)
	if err != nil {
		h.logger.Warn("webhook signature verification failed", "error", err)
		h.metrics.WebhookEvents.WithLabelValues("unknown", "invalid_signature").Inc()
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	if err := h.processor.HandleEvent(r.Context(), event); err != nil {
		h.logger.Error("webhook event processing failed", "type", event.Type, "error", err)
		h.metrics.WebhookEvents.WithLabelValues(string(event.Type), "error").Inc()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	h.metrics.WebhookEvents.WithLabelValues(string(event.Type), "ok").Inc()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"received": true})
}

// Processor reconciles local subscription rows from verified webhook events.
type Processor struct {
	store    store.Store
	provider Provider
	logger   *slog.Logger
	now      func() time.Time
}

// NewProcessor wires the webhook event processor.
func NewProcessor(st store.Store, provider Provider, logger *slog.Logger) *Processor {
	return &Processor{
		store:    st,
		provider: provider,
		logger:   logger.With("component", "billing_processor"),
		now:      time.Now,
	}
}

// HandleEvent dispatches one verified event by type. Unrecognized types are
// logged and ignored.
func (p *Processor) HandleEvent(ctx context.Context, event stripe.Event) error {
	switch string(event.Type) {
	case EventCheckoutCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return fmt.Errorf("decode checkout session: %w", err)
		}
		ev := Event{
			Type:     EventCheckoutCompleted,
			UserID:   sess.Metadata["user_id"],
			PlanName: sess.Metadata["plan_name"],
		}
		if sess.Customer != nil {
			ev.CustomerID = sess.Customer.ID
		}
		if sess.Subscription != nil {
			ev.SubscriptionID = sess.Subscription.ID
		}
		if ev.UserID == "" {
			return ErrMissingUserID
		}
		current, err := p.store.GetSubscriptionByUser(ctx, ev.UserID)
		if err != nil {
			return err
		}
		return p.apply(ctx, current, ev)

	case EventSubscriptionUpdated, EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("decode subscription: %w", err)
		}
		ev := Event{
			Type:              string(event.Type),
			UserID:            sub.Metadata["user_id"],
			SubscriptionID:    sub.ID,
			Status:            string(sub.Status),
			PeriodStart:       time.Unix(sub.CurrentPeriodStart, 0).UTC(),
			PeriodEnd:         time.Unix(sub.CurrentPeriodEnd, 0).UTC(),
			CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		}
		if sub.Customer != nil {
			ev.CustomerID = sub.Customer.ID
		}
		return p.applyToMatched(ctx, ev)

	case EventPaymentSucceeded:
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return fmt.Errorf("decode invoice: %w", err)
		}
		if inv.Subscription == nil {
			p.logger.Info("invoice without subscription, ignoring", "invoice", inv.ID)
			return nil
		}
		// Re-fetch so the refreshed period bounds come from the provider's
		// authoritative snapshot, not the invoice.
		snap, err := p.provider.GetSubscription(ctx, inv.Subscription.ID)
		if err != nil {
			return fmt.Errorf("refresh subscription: %w", err)
		}
		ev := Event{
			Type:           EventPaymentSucceeded,
			SubscriptionID: snap.ID,
			PeriodStart:    snap.CurrentPeriodStart,
			PeriodEnd:      snap.CurrentPeriodEnd,
		}
		return p.applyToMatched(ctx, ev)

	case EventPaymentFailed:
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return fmt.Errorf("decode invoice: %w", err)
		}
		if inv.Subscription == nil {
			p.logger.Info("invoice without subscription, ignoring", "invoice", inv.ID)
			return nil
		}
		ev := Event{
			Type:           EventPaymentFailed,
			SubscriptionID: inv.Subscription.ID,
		}
		return p.applyToMatched(ctx, ev)

	default:
		p.logger.Info("ignoring unhandled webhook event", "type", event.Type)
		return nil
	}
}

// applyToMatched handles the paths that match a row by the provider's
// subscription id. A missing row with no user attribution is skipped, not
// failed, since update/cancel events for unknown subscriptions carry no way
// to create one.
func (p *Processor) applyToMatched(ctx context.Context, ev Event) error {
	current, err := p.store.GetSubscriptionByStripeID(ctx, ev.SubscriptionID)
	if err != nil {
		return err
	}
	if current == nil {
		if ev.UserID == "" {
			p.logger.Warn("no subscription row for event, skipping",
				"type", ev.Type, "subscription_id", ev.SubscriptionID)
			return nil
		}
		current = &store.Subscription{
			UserID:               ev.UserID,
			StripeCustomerID:     ev.CustomerID,
			StripeSubscriptionID: ev.SubscriptionID,
		}
	}
	return p.apply(ctx, current, ev)
}

func (p *Processor) apply(ctx context.Context, current *store.Subscription, ev Event) error {
	next, err := Reconcile(current, ev, p.now())
	if err != nil {
		return err
	}
	if _, err := p.store.UpsertSubscription(ctx, next); err != nil {
		return err
	}
	p.logger.Info("subscription reconciled",
		"type", ev.Type, "user_id", next.UserID, "status", next.Status)
	return nil
}
