package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"assistant-backend/internal/metrics"
	"assistant-backend/internal/store"
)

// Cleanup entry statuses.
const (
	CleanupSuccess = "success"
	CleanupWarning = "warning"
	CleanupError   = "error"
)

// CleanupEntry reports the outcome of one table or bucket cleanup step.
type CleanupEntry struct {
	Table  string `json:"table"`
	Status string `json:"status"`
	Rows   int64  `json:"rows,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// Report is the full deletion outcome returned to the caller. Success
// tracks identity deletion only: data cleanup is best-effort, but a user
// who can still log in must be reported as a failure.
type Report struct {
	Success          bool           `json:"success"`
	Message          string         `json:"message,omitempty"`
	Error            string         `json:"error,omitempty"`
	DataCleanup      []CleanupEntry `json:"dataCleanup"`
	IdentityStrategy string         `json:"identityStrategy,omitempty"`
}

// DataStore is the store slice the deleter needs.
type DataStore interface {
	DeleteUserRows(ctx context.Context, table, userID string) (int64, error)
	DeleteAuthUser(ctx context.Context, userID string) (int64, error)
}

// BucketCleaner removes all objects under a user's prefix in one bucket.
type BucketCleaner interface {
	RemovePrefix(ctx context.Context, prefix string) error
}

// Bucket pairs a bucket name with its cleaner for reporting.
type Bucket struct {
	Name    string
	Cleaner BucketCleaner
}

// Strategy is one way to delete the authentication identity.
type Strategy struct {
	Name string
	Run  func(ctx context.Context, userID string) error
}

// Deleter orchestrates account deletion: verify the caller, bulk-delete
// their data, then remove the identity itself. Data first, identity last,
// since identity deletion invalidates the session and must not interrupt
// mid-cleanup.
type Deleter struct {
	verifier   *TokenVerifier
	store      DataStore
	buckets    []Bucket
	strategies []Strategy
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewDeleter wires the orchestrator with the standard identity strategy
// chain: admin API, then RPC, then direct auth table delete.
func NewDeleter(verifier *TokenVerifier, st DataStore, buckets []Bucket, admin *AdminClient, logger *slog.Logger, m *metrics.Metrics) *Deleter {
	strategies := []Strategy{
		{Name: "admin_api", Run: admin.DeleteAuthUser},
		{Name: "rpc", Run: admin.CallDeleteUserRPC},
		{Name: "direct_delete", Run: func(ctx context.Context, userID string) error {
			rows, err := st.DeleteAuthUser(ctx, userID)
			if err != nil {
				return err
			}
			if rows == 0 {
				return errors.New("no auth row deleted")
			}
			return nil
		}},
	}
	return &Deleter{
		verifier:   verifier,
		store:      st,
		buckets:    buckets,
		strategies: strategies,
		logger:     logger.With("component", "account"),
		metrics:    m,
	}
}

// Delete verifies the bearer token and runs the full deletion. A non-nil
// error means the token failed verification; everything past that point is
// reported in the Report, not the error.
func (d *Deleter) Delete(ctx context.Context, token string) (*Report, error) {
	userID, err := d.verifier.Verify(token)
	if err != nil {
		return nil, err
	}

	report := &Report{
		DataCleanup: d.cleanupData(ctx, userID),
	}

	for _, strategy := range d.strategies {
		if err := strategy.Run(ctx, userID); err != nil {
			d.logger.Warn("identity deletion strategy failed",
				"strategy", strategy.Name, "user_id", userID, "error", err)
			continue
		}
		report.Success = true
		report.IdentityStrategy = strategy.Name
		report.Message = fmt.Sprintf("account deleted via %s", strategy.Name)
		break
	}

	if !report.Success {
		report.Error = "account data was cleaned up but the login identity could not be deleted"
		d.metrics.AccountDeletions.WithLabelValues("identity_failed").Inc()
		d.logger.Error("all identity deletion strategies failed", "user_id", userID)
		return report, nil
	}

	d.metrics.AccountDeletions.WithLabelValues("ok").Inc()
	d.logger.Info("account deleted", "user_id", userID, "strategy", report.IdentityStrategy)
	return report, nil
}

// cleanupData deletes rows table by table, children before parents, and
// clears storage prefixes. Failures are collected, never aborted on.
func (d *Deleter) cleanupData(ctx context.Context, userID string) []CleanupEntry {
	entries := make([]CleanupEntry, 0, len(store.UserOwnedTables)+len(d.buckets))

	for _, table := range store.UserOwnedTables {
		rows, err := d.store.DeleteUserRows(ctx, table, userID)
		if err != nil {
			d.logger.Warn("table cleanup failed", "table", table, "user_id", userID, "error", err)
			entries = append(entries, CleanupEntry{Table: table, Status: CleanupError, Detail: err.Error()})
			continue
		}
		entries = append(entries, CleanupEntry{Table: table, Status: CleanupSuccess, Rows: rows})
	}

	for _, bucket := range d.buckets {
		entry := CleanupEntry{Table: "storage:" + bucket.Name, Status: CleanupSuccess}
		if err := bucket.Cleaner.RemovePrefix(ctx, userID); err != nil {
			d.logger.Warn("bucket cleanup failed", "bucket", bucket.Name, "user_id", userID, "error", err)
			entry.Status = CleanupWarning
			entry.Detail = err.Error()
		}
		entries = append(entries, entry)
	}

	return entries
}
