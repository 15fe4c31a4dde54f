package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"assistant-backend/internal/metrics"
	"assistant-backend/internal/store"
)

// Dispatch outcomes.
const (
	StatusSent    = "sent"
	StatusFailed  = "failed"
	StatusPending = "pending"
	StatusSkipped = "skipped"
)

// Request describes one notification to dispatch.
type Request struct {
	UserID  string         `json:"user_id"`
	Type    string         `json:"type"`
	Title   string         `json:"title"`
	Message string         `json:"message"`
	Channel string         `json:"channel"`
	Data    map[string]any `json:"data,omitempty"`
}

// Result reports what the dispatcher did with a request.
type Result struct {
	Status       string     `json:"status"`
	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
}

// PrefsStore is the store slice the dispatcher needs.
type PrefsStore interface {
	GetNotificationPreferences(ctx context.Context, userID string) (*store.NotificationPreferences, error)
	InsertNotificationRecord(ctx context.Context, rec store.NotificationRecord) error
}

// Dispatcher routes notifications through user preferences, quiet hours and
// the channel senders, appending each attempted delivery to history.
// Preference-based skips are silent successes with no history row.
type Dispatcher struct {
	store   PrefsStore
	senders map[string]ChannelSender
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewDispatcher wires the notification dispatcher.
func NewDispatcher(st PrefsStore, senders []ChannelSender, logger *slog.Logger, m *metrics.Metrics) *Dispatcher {
	byName := make(map[string]ChannelSender, len(senders))
	for _, s := range senders {
		byName[s.Name()] = s
	}
	return &Dispatcher{
		store:   st,
		senders: byName,
		logger:  logger.With("component", "notify"),
		metrics: m,
		now:     time.Now,
	}
}

// Dispatch handles one notification request.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (Result, error) {
	if req.UserID == "" || req.Channel == "" {
		return Result{}, errors.New("user_id and channel are required")
	}
	sender, ok := d.senders[req.Channel]
	if !ok {
		return Result{}, fmt.Errorf("unknown channel %q", req.Channel)
	}

	prefs, err := d.store.GetNotificationPreferences(ctx, req.UserID)
	if err != nil {
		return Result{}, err
	}

	if !channelEnabled(prefs, req.Channel) || !typeEnabled(prefs, req.Type) {
		d.metrics.Notifications.WithLabelValues(req.Channel, StatusSkipped).Inc()
		d.logger.Info("notification skipped by preferences",
			"user_id", req.UserID, "channel", req.Channel, "type", req.Type)
		return Result{Status: StatusSkipped}, nil
	}

	now := d.now()
	if inQuietHours(now, prefs.QuietHoursStart, prefs.QuietHoursEnd) {
		scheduledFor := nextQuietHoursEnd(now, prefs.QuietHoursEnd)
		rec := store.NotificationRecord{
			UserID:       req.UserID,
			Type:         req.Type,
			Title:        req.Title,
			Message:      req.Message,
			Channel:      req.Channel,
			Status:       StatusPending,
			ScheduledFor: &scheduledFor,
		}
		if err := d.store.InsertNotificationRecord(ctx, rec); err != nil {
			return Result{}, err
		}
		d.metrics.Notifications.WithLabelValues(req.Channel, StatusPending).Inc()
		return Result{Status: StatusPending, ScheduledFor: &scheduledFor}, nil
	}

	status := StatusSent
	if err := sender.Send(ctx, req.UserID, req.Title, req.Message); err != nil {
		status = StatusFailed
		d.logger.Error("notification delivery failed",
			"user_id", req.UserID, "channel", req.Channel, "error", err)
	}

	rec := store.NotificationRecord{
		UserID:  req.UserID,
		Type:    req.Type,
		Title:   req.Title,
		Message: req.Message,
		Channel: req.Channel,
		Status:  status,
	}
	if err := d.store.InsertNotificationRecord(ctx, rec); err != nil {
		return Result{}, err
	}

	d.metrics.Notifications.WithLabelValues(req.Channel, status).Inc()
	return Result{Status: status}, nil
}

func channelEnabled(prefs *store.NotificationPreferences, channel string) bool {
	switch channel {
	case ChannelEmail:
		return prefs.EmailEnabled
	case ChannelPush:
		return prefs.PushEnabled
	case ChannelSMS:
		return prefs.SMSEnabled
	default:
		return false
	}
}

// typeEnabled treats unset type flags as enabled.
func typeEnabled(prefs *store.NotificationPreferences, notifType string) bool {
	if notifType == "" || prefs.TypeFlags == nil {
		return true
	}
	enabled, ok := prefs.TypeFlags[notifType]
	if !ok {
		return true
	}
	return enabled
}
