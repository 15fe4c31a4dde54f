package billing

import (
	"errors"
	"fmt"
	"time"

	"assistant-backend/internal/store"
)

// Webhook event types the reconciler understands.
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
	EventPaymentSucceeded    = "invoice.payment_succeeded"
	EventPaymentFailed       = "invoice.payment_failed"
)

// Checkout completion does not carry period bounds, so the row gets a
// synthetic window until the first subscription.updated event refreshes it.
const syntheticPeriod = 30 * 24 * time.Hour

// ErrMissingUserID marks a checkout completion without user attribution.
// Without it the subscription can never be tied to an account, so the event
// fails hard instead of being skipped.
var ErrMissingUserID = errors.New("checkout event has no user_id metadata")

// ErrUnmatchedEvent marks update/cancel events for a subscription we have no
// row for and no user attribution to create one. Callers skip these.
var ErrUnmatchedEvent = errors.New("no subscription row matches event")

// Event is the provider-agnostic webhook payload the reconciler consumes.
// Each event carries the provider's authoritative snapshot, not a delta.
type Event struct {
	Type              string
	UserID            string
	PlanName          string
	CustomerID        string
	SubscriptionID    string
	Status            string
	PeriodStart       time.Time
	PeriodEnd         time.Time
	CancelAtPeriodEnd bool
}

// Reconcile computes the next subscription row from the current row and one
// webhook event. Pure function, no I/O; replaying the same event converges
// to the same row, which is what makes at-least-once delivery safe.
func Reconcile(current *store.Subscription, ev Event, now time.Time) (store.Subscription, error) {
	var next store.Subscription
	if current != nil {
		next = *current
	}

	switch ev.Type {
	case EventCheckoutCompleted:
		if ev.UserID == "" {
			return store.Subscription{}, ErrMissingUserID
		}
		next.UserID = ev.UserID
		if ev.PlanName != "" {
			next.Plan = ev.PlanName
		}
		next.Status = store.StatusActive
		next.StripeCustomerID = ev.CustomerID
		next.StripeSubscriptionID = ev.SubscriptionID
		next.CurrentPeriodStart = now
		next.CurrentPeriodEnd = now.Add(syntheticPeriod)
		next.CancelAtPeriodEnd = false

	case EventSubscriptionUpdated:
		if current == nil {
			return store.Subscription{}, ErrUnmatchedEvent
		}
		next.Status = mapProviderStatus(ev.Status)
		if !ev.PeriodStart.IsZero() {
			next.CurrentPeriodStart = ev.PeriodStart
		}
		if !ev.PeriodEnd.IsZero() {
			next.CurrentPeriodEnd = ev.PeriodEnd
		}
		next.CancelAtPeriodEnd = ev.CancelAtPeriodEnd
		if ev.CustomerID != "" {
			next.StripeCustomerID = ev.CustomerID
		}

	case EventSubscriptionDeleted:
		if current == nil {
			return store.Subscription{}, ErrUnmatchedEvent
		}
		next.Status = store.StatusCancelled

	case EventPaymentSucceeded:
		if current == nil {
			return store.Subscription{}, ErrUnmatchedEvent
		}
		next.Status = store.StatusActive
		if !ev.PeriodStart.IsZero() {
			next.CurrentPeriodStart = ev.PeriodStart
		}
		if !ev.PeriodEnd.IsZero() {
			next.CurrentPeriodEnd = ev.PeriodEnd
		}

	case EventPaymentFailed:
		if current == nil {
			return store.Subscription{}, ErrUnmatchedEvent
		}
		next.Status = store.StatusPastDue

	default:
		return store.Subscription{}, fmt.Errorf("unhandled event type %q", ev.Type)
	}

	return next, nil
}

// mapProviderStatus translates the provider's status vocabulary into the
// local enum.
func mapProviderStatus(s string) store.SubscriptionStatus {
	switch s {
	case "active":
		return store.StatusActive
	case "trialing":
		return store.StatusTrialing
	case "past_due", "unpaid":
		return store.StatusPastDue
	case "canceled", "cancelled", "incomplete_expired":
		return store.StatusCancelled
	default:
		return store.StatusIncomplete
	}
}
