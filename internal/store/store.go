package store

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnknownTable is returned when a bulk delete targets a table outside the
// fixed user-owned set.
var ErrUnknownTable = errors.New("unknown user-owned table")

// UserOwnedTables is the fixed ordered list of tables holding per-user rows,
// children before parents so foreign keys are respected during account
// deletion.
var UserOwnedTables = []string{
	"messages",
	"conversations",
	"expenses",
	"knowledge_entries",
	"usage_counters",
	"notification_history",
	"notification_preferences",
	"integrations",
	"subscriptions",
}

var userOwnedSet = func() map[string]bool {
	m := make(map[string]bool, len(UserOwnedTables))
	for _, t := range UserOwnedTables {
		m[t] = true
	}
	return m
}()

func checkUserOwnedTable(table string) error {
	if !userOwnedSet[table] {
		return fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	return nil
}

// Store defines the interface for data persistence. Two backends implement
// it: Postgres (pgx pool) and SQLite for local development.
type Store interface {
	// Lifecycle
	Close()
	Ping(ctx context.Context) error

	// Subscriptions
	GetSubscriptionByUser(ctx context.Context, userID string) (*Subscription, error)
	GetSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*Subscription, error)
	UpsertSubscription(ctx context.Context, sub Subscription) (*Subscription, error)

	// Expenses
	InsertExpense(ctx context.Context, e Expense) (*Expense, error)
	ListExpenses(ctx context.Context, userID string, limit int) ([]Expense, error)

	// Knowledge base
	InsertKnowledgeEntry(ctx context.Context, e KnowledgeEntry) (*KnowledgeEntry, error)
	ListKnowledgeEntries(ctx context.Context, userID string) ([]KnowledgeEntry, error)

	// Conversations
	CreateConversation(ctx context.Context, userID, title string) (*Conversation, error)
	InsertChatMessage(ctx context.Context, m ChatMessage) error
	ListRecentChatMessages(ctx context.Context, conversationID string, limit int) ([]ChatMessage, error)

	// Usage counters
	IncrementUsage(ctx context.Context, userID string, period int, field UsageField) error
	GetUsage(ctx context.Context, userID string, period int) (UsageCounters, error)

	// Notifications
	GetNotificationPreferences(ctx context.Context, userID string) (*NotificationPreferences, error)
	InsertNotificationRecord(ctx context.Context, rec NotificationRecord) error

	// Integrations
	UpsertIntegration(ctx context.Context, in Integration) (*Integration, error)
	LookupIntegrationUser(ctx context.Context, channel, externalID string) (string, error)

	// Account deletion
	DeleteUserRows(ctx context.Context, table, userID string) (int64, error)
	DeleteAuthUser(ctx context.Context, userID string) (int64, error)
}
