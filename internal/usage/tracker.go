package usage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"assistant-backend/internal/cache"
	"assistant-backend/internal/store"
)

// FreeReceiptLimit is the monthly receipt upload quota on the free plan.
const FreeReceiptLimit = 5

// Unlimited is the sentinel for quotas paid plans do not enforce.
const Unlimited = -1

const subscriptionCacheTTL = 60 * time.Second

// ErrLimitReached blocks uploads past the free quota. Descriptive by design
// so handlers can surface it directly.
var ErrLimitReached = errors.New("monthly receipt upload limit reached: upgrade your plan to continue")

// Store is the slice of the data store the tracker needs.
type Store interface {
	GetSubscriptionByUser(ctx context.Context, userID string) (*store.Subscription, error)
	IncrementUsage(ctx context.Context, userID string, period int, field store.UsageField) error
	GetUsage(ctx context.Context, userID string, period int) (store.UsageCounters, error)
}

// Period collapses a timestamp into a month index. Counters key on it, so
// month rollover needs no reset job: a new month simply reads a missing row
// as zero.
func Period(t time.Time) int {
	return t.Year()*12 + int(t.Month())
}

// Report is the usage snapshot returned to clients.
type Report struct {
	Period         int  `json:"period"`
	ReceiptUploads int  `json:"receipt_uploads"`
	ReceiptLimit   int  `json:"receipt_limit"`
	AIGenerations  int  `json:"ai_generations"`
	AILimit        int  `json:"ai_limit"`
	Subscribed     bool `json:"subscribed"`
}

// Tracker enforces per-user monthly quotas.
type Tracker struct {
	store  Store
	cache  *cache.Redis
	logger *slog.Logger
	now    func() time.Time
}

// NewTracker wires the usage tracker.
func NewTracker(st Store, c *cache.Redis, logger *slog.Logger) *Tracker {
	return &Tracker{
		store:  st,
		cache:  c,
		logger: logger.With("component", "usage"),
		now:    time.Now,
	}
}

type cachedPlan struct {
	Subscribed bool `json:"subscribed"`
}

// subscribed reports whether the user is on a paid plan, via a short-lived
// cache so webhook-driven changes show up within a minute.
func (t *Tracker) subscribed(ctx context.Context, userID string) (bool, error) {
	key := "usage:plan:" + userID

	var cached cachedPlan
	if hit, err := t.cache.GetJSON(ctx, key, &cached); err != nil {
		t.logger.Warn("plan cache read failed", "error", err)
	} else if hit {
		return cached.Subscribed, nil
	}

	sub, err := t.store.GetSubscriptionByUser(ctx, userID)
	if err != nil {
		return false, err
	}
	active := sub.Active()

	if err := t.cache.SetJSON(ctx, key, cachedPlan{Subscribed: active}, subscriptionCacheTTL); err != nil {
		t.logger.Warn("plan cache write failed", "error", err)
	}
	return active, nil
}

// CanUploadReceipt is true when the user is subscribed or still under the
// free monthly quota.
func (t *Tracker) CanUploadReceipt(ctx context.Context, userID string) (bool, error) {
	paid, err := t.subscribed(ctx, userID)
	if err != nil {
		return false, err
	}
	if paid {
		return true, nil
	}

	counters, err := t.store.GetUsage(ctx, userID, Period(t.now()))
	if err != nil {
		return false, err
	}
	return counters.ReceiptUploads < FreeReceiptLimit, nil
}

// RecordReceiptUpload counts one upload, rejecting with ErrLimitReached when
// the free quota is exhausted rather than silently clamping.
func (t *Tracker) RecordReceiptUpload(ctx context.Context, userID string) error {
	ok, err := t.CanUploadReceipt(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w (%d/%d this month)", ErrLimitReached, FreeReceiptLimit, FreeReceiptLimit)
	}
	return t.store.IncrementUsage(ctx, userID, Period(t.now()), store.UsageReceiptUploads)
}

// CanGenerateAI always allows. The limit exists in the data model but is
// unconditionally bypassed; current behavior, not long-term policy.
func (t *Tracker) CanGenerateAI(ctx context.Context, userID string) (bool, error) {
	return true, nil
}

// RecordAIGeneration counts one generation even though the gate never blocks.
func (t *Tracker) RecordAIGeneration(ctx context.Context, userID string) error {
	return t.store.IncrementUsage(ctx, userID, Period(t.now()), store.UsageAIGenerations)
}

// Snapshot returns the user's counters and effective limits for the current
// month.
func (t *Tracker) Snapshot(ctx context.Context, userID string) (Report, error) {
	paid, err := t.subscribed(ctx, userID)
	if err != nil {
		return Report{}, err
	}

	period := Period(t.now())
	counters, err := t.store.GetUsage(ctx, userID, period)
	if err != nil {
		return Report{}, err
	}

	report := Report{
		Period:         period,
		ReceiptUploads: counters.ReceiptUploads,
		ReceiptLimit:   FreeReceiptLimit,
		AIGenerations:  counters.AIGenerations,
		AILimit:        Unlimited,
		Subscribed:     paid,
	}
	if paid {
		report.ReceiptLimit = Unlimited
	}
	return report, nil
}
