package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLite backs the same Store interface with a local file database for
// development and tests. The auth schema does not exist here, so the direct
// identity-delete strategy is unavailable.
type SQLite struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLite opens a connection to the SQLite database at the given path.
func NewSQLite(ctx context.Context, databasePath string, logger *slog.Logger) (*SQLite, error) {
	path := strings.TrimSpace(databasePath)
	if path == "" {
		return nil, fmt.Errorf("sqlite database path is empty")
	}
	// Busy timeout and WAL mode are recommended for SQLite concurrency.
	dsn := path
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	dsn = fmt.Sprintf("%s%s_pragma=busy_timeout=10000&_pragma=journal_mode=WAL&_pragma=foreign_keys=ON", dsn, sep)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLite{
		db:     db,
		logger: logger.With("component", "store_sqlite"),
	}, nil
}

// Close releases the database connection.
func (s *SQLite) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

// Ping ensures the database is reachable.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// RunMigrations applies the SQLite schema variant.
func (s *SQLite) RunMigrations(ctx context.Context, filesystem fs.FS) error {
	sqlContent, err := fs.ReadFile(filesystem, "sqlite/001_init.sql")
	if err != nil {
		return fmt.Errorf("read migration: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, string(sqlContent)); err != nil {
		return fmt.Errorf("apply migration: %w", err)
	}
	return nil
}

func (s *SQLite) scanSubscriptionRow(row *sql.Row) (*Subscription, error) {
	var sub Subscription
	err := row.Scan(&sub.ID, &sub.UserID, &sub.Plan, &sub.Status, &sub.StripeCustomerID, &sub.StripeSubscriptionID,
		&sub.CurrentPeriodStart, &sub.CurrentPeriodEnd, &sub.CancelAtPeriodEnd, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan subscription: %w", err)
	}
	return &sub, nil
}

func (s *SQLite) GetSubscriptionByUser(ctx context.Context, userID string) (*Subscription, error) {
	q := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE user_id = ?;`
	return s.scanSubscriptionRow(s.db.QueryRowContext(ctx, q, userID))
}

func (s *SQLite) GetSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*Subscription, error) {
	q := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE stripe_subscription_id = ?;`
	return s.scanSubscriptionRow(s.db.QueryRowContext(ctx, q, stripeSubscriptionID))
}

func (s *SQLite) UpsertSubscription(ctx context.Context, sub Subscription) (*Subscription, error) {
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	q := `
INSERT INTO subscriptions (id, user_id, plan, status, stripe_customer_id, stripe_subscription_id,
    current_period_start, current_period_end, cancel_at_period_end, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT (user_id) DO UPDATE SET
    plan = excluded.plan,
    status = excluded.status,
    stripe_customer_id = excluded.stripe_customer_id,
    stripe_subscription_id = excluded.stripe_subscription_id,
    current_period_start = excluded.current_period_start,
    current_period_end = excluded.current_period_end,
    cancel_at_period_end = excluded.cancel_at_period_end,
    updated_at = CURRENT_TIMESTAMP
RETURNING ` + subscriptionColumns + `;`
	row := s.db.QueryRowContext(ctx, q, sub.ID, sub.UserID, sub.Plan, sub.Status, sub.StripeCustomerID,
		sub.StripeSubscriptionID, sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.CancelAtPeriodEnd)
	out, err := s.scanSubscriptionRow(row)
	if err != nil {
		return nil, fmt.Errorf("upsert subscription: %w", err)
	}
	return out, nil
}

func (s *SQLite) InsertExpense(ctx context.Context, e Expense) (*Expense, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	const q = `
INSERT INTO expenses (id, user_id, amount, category, title, description, expense_date, source, receipt_url, vendor)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING created_at;
`
	err := s.db.QueryRowContext(ctx, q, e.ID, e.UserID, e.Amount, e.Category, e.Title, e.Description,
		e.Date, e.Source, e.ReceiptURL, e.Vendor).Scan(&e.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert expense: %w", err)
	}
	return &e, nil
}

func (s *SQLite) ListExpenses(ctx context.Context, userID string, limit int) ([]Expense, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
SELECT id, user_id, amount, category, title, description, expense_date, source, receipt_url, vendor, created_at
FROM expenses
WHERE user_id = ?
ORDER BY expense_date DESC, created_at DESC
LIMIT ?;
`
	rows, err := s.db.QueryContext(ctx, q, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var out []Expense
	for rows.Next() {
		var e Expense
		if err := rows.Scan(&e.ID, &e.UserID, &e.Amount, &e.Category, &e.Title, &e.Description,
			&e.Date, &e.Source, &e.ReceiptURL, &e.Vendor, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	return out, nil
}

func (s *SQLite) InsertKnowledgeEntry(ctx context.Context, e KnowledgeEntry) (*KnowledgeEntry, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	tags, err := json.Marshal(e.Tags)
	if err != nil {
		return nil, fmt.Errorf("marshal tags: %w", err)
	}
	const q = `
INSERT INTO knowledge_entries (id, user_id, business_name, industry, target_audience, products_services, tags)
VALUES (?, ?, ?, ?, ?, ?, ?)
RETURNING created_at;
`
	err = s.db.QueryRowContext(ctx, q, e.ID, e.UserID, e.BusinessName, e.Industry, e.TargetAudience,
		e.ProductsServices, string(tags)).Scan(&e.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert knowledge entry: %w", err)
	}
	return &e, nil
}

func (s *SQLite) ListKnowledgeEntries(ctx context.Context, userID string) ([]KnowledgeEntry, error) {
	const q = `
SELECT id, user_id, business_name, industry, target_audience, products_services, tags, created_at
FROM knowledge_entries
WHERE user_id = ?
ORDER BY created_at ASC;
`
	rows, err := s.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list knowledge entries: %w", err)
	}
	defer rows.Close()

	var out []KnowledgeEntry
	for rows.Next() {
		var e KnowledgeEntry
		var tags []byte
		if err := rows.Scan(&e.ID, &e.UserID, &e.BusinessName, &e.Industry, &e.TargetAudience,
			&e.ProductsServices, &tags, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan knowledge entry: %w", err)
		}
		if len(tags) > 0 {
			if err := json.Unmarshal(tags, &e.Tags); err != nil {
				return nil, fmt.Errorf("unmarshal tags: %w", err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate knowledge entries: %w", err)
	}
	return out, nil
}

func (s *SQLite) CreateConversation(ctx context.Context, userID, title string) (*Conversation, error) {
	c := Conversation{ID: uuid.New().String(), UserID: userID, Title: title}
	const q = `
INSERT INTO conversations (id, user_id, title)
VALUES (?, ?, ?)
RETURNING created_at;
`
	if err := s.db.QueryRowContext(ctx, q, c.ID, c.UserID, c.Title).Scan(&c.CreatedAt); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return &c, nil
}

func (s *SQLite) InsertChatMessage(ctx context.Context, m ChatMessage) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	const q = `
INSERT INTO messages (id, conversation_id, user_id, role, content)
VALUES (?, ?, ?, ?, ?);
`
	if _, err := s.db.ExecContext(ctx, q, m.ID, m.ConversationID, m.UserID, m.Role, m.Content); err != nil {
		return fmt.Errorf("insert chat message: %w", err)
	}
	return nil
}

func (s *SQLite) ListRecentChatMessages(ctx context.Context, conversationID string, limit int) ([]ChatMessage, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT id, conversation_id, user_id, role, content, created_at
FROM messages
WHERE conversation_id = ?
ORDER BY created_at DESC
LIMIT ?;
`
	rows, err := s.db.QueryContext(ctx, q, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent messages: %w", err)
	}
	defer rows.Close()

	var out []ChatMessage
	for rows.Next() {
		var m ChatMessage
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.UserID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat messages: %w", err)
	}
	return out, nil
}

func (s *SQLite) IncrementUsage(ctx context.Context, userID string, period int, field UsageField) error {
	col, err := usageColumn(field)
	if err != nil {
		return err
	}
	q := fmt.Sprintf(`
INSERT INTO usage_counters (user_id, period, %[1]s)
VALUES (?, ?, 1)
ON CONFLICT (user_id, period) DO UPDATE SET %[1]s = usage_counters.%[1]s + 1;
`, col)
	if _, err := s.db.ExecContext(ctx, q, userID, period); err != nil {
		return fmt.Errorf("increment usage %s: %w", field, err)
	}
	return nil
}

func (s *SQLite) GetUsage(ctx context.Context, userID string, period int) (UsageCounters, error) {
	u := UsageCounters{UserID: userID, Period: period}
	const q = `
SELECT receipt_uploads, ai_generations
FROM usage_counters
WHERE user_id = ? AND period = ?;
`
	err := s.db.QueryRowContext(ctx, q, userID, period).Scan(&u.ReceiptUploads, &u.AIGenerations)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return u, nil
		}
		return u, fmt.Errorf("get usage: %w", err)
	}
	return u, nil
}

func (s *SQLite) GetNotificationPreferences(ctx context.Context, userID string) (*NotificationPreferences, error) {
	const q = `
SELECT email_enabled, push_enabled, sms_enabled, type_flags, quiet_hours_start, quiet_hours_end
FROM notification_preferences
WHERE user_id = ?;
`
	prefs := NotificationPreferences{UserID: userID}
	var flags []byte
	err := s.db.QueryRowContext(ctx, q, userID).Scan(&prefs.EmailEnabled, &prefs.PushEnabled, &prefs.SMSEnabled,
		&flags, &prefs.QuietHoursStart, &prefs.QuietHoursEnd)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return DefaultNotificationPreferences(userID), nil
		}
		return nil, fmt.Errorf("get notification preferences: %w", err)
	}
	if len(flags) > 0 {
		if err := json.Unmarshal(flags, &prefs.TypeFlags); err != nil {
			return nil, fmt.Errorf("unmarshal type flags: %w", err)
		}
	}
	return &prefs, nil
}

func (s *SQLite) InsertNotificationRecord(ctx context.Context, rec NotificationRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	const q = `
INSERT INTO notification_history (id, user_id, type, title, message, channel, status, scheduled_for)
VALUES (?, ?, ?, ?, ?, ?, ?, ?);
`
	_, err := s.db.ExecContext(ctx, q, rec.ID, rec.UserID, rec.Type, rec.Title, rec.Message,
		rec.Channel, rec.Status, rec.ScheduledFor)
	if err != nil {
		return fmt.Errorf("insert notification record: %w", err)
	}
	return nil
}

func (s *SQLite) UpsertIntegration(ctx context.Context, in Integration) (*Integration, error) {
	if in.ID == "" {
		in.ID = uuid.New().String()
	}
	const q = `
INSERT INTO integrations (id, user_id, channel, external_id, credential, enabled)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (user_id, channel) DO UPDATE SET
    external_id = excluded.external_id,
    credential = excluded.credential,
    enabled = excluded.enabled
RETURNING id, created_at;
`
	err := s.db.QueryRowContext(ctx, q, in.ID, in.UserID, in.Channel, in.ExternalID, in.Credential, in.Enabled).
		Scan(&in.ID, &in.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert integration: %w", err)
	}
	return &in, nil
}

func (s *SQLite) LookupIntegrationUser(ctx context.Context, channel, externalID string) (string, error) {
	const q = `
SELECT user_id FROM integrations
WHERE channel = ? AND external_id = ? AND enabled = 1;
`
	var userID string
	err := s.db.QueryRowContext(ctx, q, channel, externalID).Scan(&userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("lookup integration user: %w", err)
	}
	return userID, nil
}

func (s *SQLite) DeleteUserRows(ctx context.Context, table, userID string) (int64, error) {
	if err := checkUserOwnedTable(table); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE user_id = ?;`, table), userID)
	if err != nil {
		return 0, fmt.Errorf("delete rows from %s: %w", table, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// DeleteAuthUser is unsupported on SQLite since the auth schema lives in
// Supabase Postgres only.
func (s *SQLite) DeleteAuthUser(ctx context.Context, userID string) (int64, error) {
	return 0, fmt.Errorf("auth schema is not managed by the sqlite backend")
}
