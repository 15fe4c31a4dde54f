package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres provides typed access to Supabase (Postgres) resources.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	schema string
}

// NewPostgres opens a new connection pool to the database with the desired
// search_path.
func NewPostgres(ctx context.Context, databaseURL, schema string, logger *slog.Logger) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	if cfg.ConnConfig.RuntimeParams == nil {
		cfg.ConnConfig.RuntimeParams = map[string]string{}
	}
	if schema != "" {
		cfg.ConnConfig.RuntimeParams["search_path"] = schema + ", auth"
	}
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	p := &Postgres{
		pool:   pool,
		logger: logger.With("component", "store"),
		schema: schema,
	}

	if err := p.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return p, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

// Ping ensures the database is reachable.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// RunMigrations applies schema migrations on the connected database.
func (p *Postgres) RunMigrations(ctx context.Context, filesystem fs.FS) error {
	return ApplyMigrations(ctx, p.pool, filesystem)
}

const subscriptionColumns = `id, user_id, plan, status, stripe_customer_id, stripe_subscription_id,
current_period_start, current_period_end, cancel_at_period_end, created_at, updated_at`

func scanSubscription(row pgx.Row) (*Subscription, error) {
	var s Subscription
	err := row.Scan(&s.ID, &s.UserID, &s.Plan, &s.Status, &s.StripeCustomerID, &s.StripeSubscriptionID,
		&s.CurrentPeriodStart, &s.CurrentPeriodEnd, &s.CancelAtPeriodEnd, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan subscription: %w", err)
	}
	return &s, nil
}

// GetSubscriptionByUser returns the user's subscription row, or nil when the
// user has never subscribed (free plan).
func (p *Postgres) GetSubscriptionByUser(ctx context.Context, userID string) (*Subscription, error) {
	q := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE user_id = $1;`
	return scanSubscription(p.pool.QueryRow(ctx, q, userID))
}

// GetSubscriptionByStripeID matches a row by the billing provider's
// subscription id.
func (p *Postgres) GetSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*Subscription, error) {
	q := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE stripe_subscription_id = $1;`
	return scanSubscription(p.pool.QueryRow(ctx, q, stripeSubscriptionID))
}

// UpsertSubscription creates or overwrites the user's subscription row.
// Overwrite semantics (not increments) keep webhook replays idempotent.
func (p *Postgres) UpsertSubscription(ctx context.Context, sub Subscription) (*Subscription, error) {
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	q := `
INSERT INTO subscriptions (id, user_id, plan, status, stripe_customer_id, stripe_subscription_id,
    current_period_start, current_period_end, cancel_at_period_end, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
ON CONFLICT (user_id) DO UPDATE SET
    plan = EXCLUDED.plan,
    status = EXCLUDED.status,
    stripe_customer_id = EXCLUDED.stripe_customer_id,
    stripe_subscription_id = EXCLUDED.stripe_subscription_id,
    current_period_start = EXCLUDED.current_period_start,
    current_period_end = EXCLUDED.current_period_end,
    cancel_at_period_end = EXCLUDED.cancel_at_period_end,
    updated_at = NOW()
RETURNING ` + subscriptionColumns + `;`
	row := p.pool.QueryRow(ctx, q, sub.ID, sub.UserID, sub.Plan, sub.Status, sub.StripeCustomerID,
		sub.StripeSubscriptionID, sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.CancelAtPeriodEnd)
	out, err := scanSubscription(row)
	if err != nil {
		return nil, fmt.Errorf("upsert subscription: %w", err)
	}
	return out, nil
}

// InsertExpense creates a new expense record.
func (p *Postgres) InsertExpense(ctx context.Context, e Expense) (*Expense, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	const q = `
INSERT INTO expenses (id, user_id, amount, category, title, description, expense_date, source, receipt_url, vendor)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING created_at;
`
	err := p.pool.QueryRow(ctx, q, e.ID, e.UserID, e.Amount, e.Category, e.Title, e.Description,
		e.Date, e.Source, e.ReceiptURL, e.Vendor).Scan(&e.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert expense: %w", err)
	}
	return &e, nil
}

// ListExpenses returns the user's most recent expenses.
func (p *Postgres) ListExpenses(ctx context.Context, userID string, limit int) ([]Expense, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
SELECT id, user_id, amount, category, title, description, expense_date, source, receipt_url, vendor, created_at
FROM expenses
WHERE user_id = $1
ORDER BY expense_date DESC, created_at DESC
LIMIT $2;
`
	rows, err := p.pool.Query(ctx, q, userID, limit)
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

// InsertKnowledgeEntry stores a business profile fact.
func (p *Postgres) InsertKnowledgeEntry(ctx context.Context, e KnowledgeEntry) (*KnowledgeEntry, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	const q = `
INSERT INTO knowledge_entries (id, user_id, business_name, industry, target_audience, products_services, tags)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING created_at;
`
	err := p.pool.QueryRow(ctx, q, e.ID, e.UserID, e.BusinessName, e.Industry, e.TargetAudience,
		e.ProductsServices, e.Tags).Scan(&e.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert knowledge entry: %w", err)
	}
	return &e, nil
}

// ListKnowledgeEntries returns all profile facts for the user.
func (p *Postgres) ListKnowledgeEntries(ctx context.Context, userID string) ([]KnowledgeEntry, error) {
	const q = `
SELECT id, user_id, business_name, industry, target_audience, products_services, tags, created_at
FROM knowledge_entries
WHERE user_id = $1
ORDER BY created_at ASC;
`
	rows, err := p.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list knowledge entries: %w", err)
	}
	defer rows.Close()

	var out []KnowledgeEntry
	for rows.Next() {
		var e KnowledgeEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.BusinessName, &e.Industry, &e.TargetAudience,
			&e.ProductsServices, &e.Tags, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan knowledge entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate knowledge entries: %w", err)
	}
	return out, nil
}

// CreateConversation opens a new conversation for the user.
func (p *Postgres) CreateConversation(ctx context.Context, userID, title string) (*Conversation, error) {
	c := Conversation{ID: uuid.New().String(), UserID: userID, Title: title}
	const q = `
INSERT INTO conversations (id, user_id, title)
VALUES ($1, $2, $3)
RETURNING created_at;
`
	if err := p.pool.QueryRow(ctx, q, c.ID, c.UserID, c.Title).Scan(&c.CreatedAt); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return &c, nil
}

// InsertChatMessage appends a message to a conversation.
func (p *Postgres) InsertChatMessage(ctx context.Context, m ChatMessage) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	const q = `
INSERT INTO messages (id, conversation_id, user_id, role, content)
VALUES ($1, $2, $3, $4, $5);
`
	if _, err := p.pool.Exec(ctx, q, m.ID, m.ConversationID, m.UserID, m.Role, m.Content); err != nil {
		return fmt.Errorf("insert chat message: %w", err)
	}
	return nil
}

// ListRecentChatMessages returns the latest messages in a conversation,
// newest first. Callers reverse the slice to build LLM context oldest first.
func (p *Postgres) ListRecentChatMessages(ctx context.Context, conversationID string, limit int) ([]ChatMessage, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT id, conversation_id, user_id, role, content, created_at
FROM messages
WHERE conversation_id = $1
ORDER BY created_at DESC
LIMIT $2;
`
	rows, err := p.pool.Query(ctx, q, conversationID, limit)
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

func usageColumn(field UsageField) (string, error) {
	switch field {
	case UsageReceiptUploads:
		return "receipt_uploads", nil
	case UsageAIGenerations:
		return "ai_generations", nil
	default:
		return "", fmt.Errorf("unknown usage field: %s", field)
	}
}

// IncrementUsage bumps a per-month counter with a single server-side atomic
// update, avoiding read-modify-write races across concurrent requests.
func (p *Postgres) IncrementUsage(ctx context.Context, userID string, period int, field UsageField) error {
	col, err := usageColumn(field)
	if err != nil {
		return err
	}
	q := fmt.Sprintf(`
INSERT INTO usage_counters (user_id, period, %[1]s)
VALUES ($1, $2, 1)
ON CONFLICT (user_id, period) DO UPDATE SET %[1]s = usage_counters.%[1]s + 1;
`, col)
	if _, err := p.pool.Exec(ctx, q, userID, period); err != nil {
		return fmt.Errorf("increment usage %s: %w", field, err)
	}
	return nil
}

// GetUsage returns the counters for the given month; a missing row reads as
// zero, which is how the month rollover works without an explicit reset.
func (p *Postgres) GetUsage(ctx context.Context, userID string, period int) (UsageCounters, error) {
	u := UsageCounters{UserID: userID, Period: period}
	const q = `
SELECT receipt_uploads, ai_generations
FROM usage_counters
WHERE user_id = $1 AND period = $2;
`
	err := p.pool.QueryRow(ctx, q, userID, period).Scan(&u.ReceiptUploads, &u.AIGenerations)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return u, nil
		}
		return u, fmt.Errorf("get usage: %w", err)
	}
	return u, nil
}

// GetNotificationPreferences loads the user's preferences, falling back to
// the permissive defaults when no row exists.
func (p *Postgres) GetNotificationPreferences(ctx context.Context, userID string) (*NotificationPreferences, error) {
	const q = `
SELECT email_enabled, push_enabled, sms_enabled, type_flags, quiet_hours_start, quiet_hours_end
FROM notification_preferences
WHERE user_id = $1;
`
	prefs := NotificationPreferences{UserID: userID}
	err := p.pool.QueryRow(ctx, q, userID).Scan(&prefs.EmailEnabled, &prefs.PushEnabled, &prefs.SMSEnabled,
		&prefs.TypeFlags, &prefs.QuietHoursStart, &prefs.QuietHoursEnd)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DefaultNotificationPreferences(userID), nil
		}
		return nil, fmt.Errorf("get notification preferences: %w", err)
	}
	return &prefs, nil
}

// InsertNotificationRecord appends a delivery attempt to the history log.
func (p *Postgres) InsertNotificationRecord(ctx context.Context, rec NotificationRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	const q = `
INSERT INTO notification_history (id, user_id, type, title, message, channel, status, scheduled_for)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
`
	_, err := p.pool.Exec(ctx, q, rec.ID, rec.UserID, rec.Type, rec.Title, rec.Message,
		rec.Channel, rec.Status, rec.ScheduledFor)
	if err != nil {
		return fmt.Errorf("insert notification record: %w", err)
	}
	return nil
}

// UpsertIntegration stores or updates a connected channel keyed by
// (user, channel).
func (p *Postgres) UpsertIntegration(ctx context.Context, in Integration) (*Integration, error) {
	if in.ID == "" {
		in.ID = uuid.New().String()
	}
	const q = `
INSERT INTO integrations (id, user_id, channel, external_id, credential, enabled)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (user_id, channel) DO UPDATE SET
    external_id = EXCLUDED.external_id,
    credential = EXCLUDED.credential,
    enabled = EXCLUDED.enabled
RETURNING id, created_at;
`
	err := p.pool.QueryRow(ctx, q, in.ID, in.UserID, in.Channel, in.ExternalID, in.Credential, in.Enabled).
		Scan(&in.ID, &in.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert integration: %w", err)
	}
	return &in, nil
}

// LookupIntegrationUser resolves an external channel identity (e.g. a
// WhatsApp phone number) to the owning user id. Empty when unmapped.
func (p *Postgres) LookupIntegrationUser(ctx context.Context, channel, externalID string) (string, error) {
	const q = `
SELECT user_id FROM integrations
WHERE channel = $1 AND external_id = $2 AND enabled;
`
	var userID string
	err := p.pool.QueryRow(ctx, q, channel, externalID).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("lookup integration user: %w", err)
	}
	return userID, nil
}

// DeleteUserRows removes every row the user owns in one table. The table
// name is checked against the fixed user-owned list before interpolation.
func (p *Postgres) DeleteUserRows(ctx context.Context, table, userID string) (int64, error) {
	if err := checkUserOwnedTable(table); err != nil {
		return 0, err
	}
	ct, err := p.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE user_id = $1;`, table), userID)
	if err != nil {
		return 0, fmt.Errorf("delete rows from %s: %w", table, err)
	}
	return ct.RowsAffected(), nil
}

// DeleteAuthUser removes the authentication identity row directly. This is
// the last-resort strategy when the admin API and RPC both fail.
func (p *Postgres) DeleteAuthUser(ctx context.Context, userID string) (int64, error) {
	ct, err := p.pool.Exec(ctx, `DELETE FROM auth.users WHERE id = $1;`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete auth user: %w", err)
	}
	return ct.RowsAffected(), nil
}
