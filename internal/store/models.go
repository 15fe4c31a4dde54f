package store

import (
	"strings"
	"time"
)

// SubscriptionStatus is the local billing state enum. Transitions are driven
// exclusively by billing-provider webhook events; "no row" means free plan.
type SubscriptionStatus string

const (
	StatusActive     SubscriptionStatus = "active"
	StatusTrialing   SubscriptionStatus = "trialing"
	StatusPastDue    SubscriptionStatus = "past_due"
	StatusCancelled  SubscriptionStatus = "cancelled"
	StatusIncomplete SubscriptionStatus = "incomplete"
)

// Subscription is the one logical billing row per user. Rows are upserted
// keyed by user and matched by the provider's subscription id on webhook
// updates; they are never hard-deleted, only flipped to cancelled.
type Subscription struct {
	ID                   string
	UserID               string
	Plan                 string
	Status               SubscriptionStatus
	StripeCustomerID     string
	StripeSubscriptionID string
	CurrentPeriodStart   time.Time
	CurrentPeriodEnd     time.Time
	CancelAtPeriodEnd    bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Active reports whether the subscription grants paid-plan access.
func (s *Subscription) Active() bool {
	if s == nil {
		return false
	}
	return s.Status == StatusActive || s.Status == StatusTrialing
}

// ExpenseCategory is the fixed expense category enum. Unrecognized free-text
// categories fall back to CategoryOther via NormalizeCategory.
type ExpenseCategory string

const (
	CategoryOfficeSupplies       ExpenseCategory = "office_supplies"
	CategoryTravel               ExpenseCategory = "travel"
	CategoryMeals                ExpenseCategory = "meals"
	CategorySoftware             ExpenseCategory = "software"
	CategoryMarketing            ExpenseCategory = "marketing"
	CategoryEquipment            ExpenseCategory = "equipment"
	CategoryProfessionalServices ExpenseCategory = "professional_services"
	CategoryUtilities            ExpenseCategory = "utilities"
	CategoryOther                ExpenseCategory = "other"
)

var categorySynonyms = map[string]ExpenseCategory{
	"office":          CategoryOfficeSupplies,
	"office_supplies": CategoryOfficeSupplies,
	"supplies":        CategoryOfficeSupplies,
	"stationery":      CategoryOfficeSupplies,

	"travel":         CategoryTravel,
	"transport":      CategoryTravel,
	"transportation": CategoryTravel,
	"flight":         CategoryTravel,
	"hotel":          CategoryTravel,
	"taxi":           CategoryTravel,
	"fuel":           CategoryTravel,
	"gas":            CategoryTravel,

	"meals":      CategoryMeals,
	"meal":       CategoryMeals,
	"food":       CategoryMeals,
	"lunch":      CategoryMeals,
	"dinner":     CategoryMeals,
	"restaurant": CategoryMeals,
	"coffee":     CategoryMeals,

	"software":     CategorySoftware,
	"saas":         CategorySoftware,
	"subscription": CategorySoftware,

	"marketing":   CategoryMarketing,
	"advertising": CategoryMarketing,
	"ads":         CategoryMarketing,
	"promotion":   CategoryMarketing,

	"equipment": CategoryEquipment,
	"hardware":  CategoryEquipment,
	"computer":  CategoryEquipment,
	"furniture": CategoryEquipment,

	"professional_services": CategoryProfessionalServices,
	"professional":          CategoryProfessionalServices,
	"legal":                 CategoryProfessionalServices,
	"accounting":            CategoryProfessionalServices,
	"consulting":            CategoryProfessionalServices,

	"utilities":   CategoryUtilities,
	"utility":     CategoryUtilities,
	"electricity": CategoryUtilities,
	"internet":    CategoryUtilities,
	"phone":       CategoryUtilities,
	"rent":        CategoryUtilities,

	"other": CategoryOther,
}

// NormalizeCategory maps free-text category labels into the fixed enum.
func NormalizeCategory(raw string) ExpenseCategory {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.ReplaceAll(key, " ", "_")
	if cat, ok := categorySynonyms[key]; ok {
		return cat
	}
	return CategoryOther
}

// Expense source tags.
const (
	ExpenseSourceManual   = "manual"
	ExpenseSourceReceipt  = "receipt"
	ExpenseSourceWhatsApp = "whatsapp"
)

// Expense represents a row in the expenses table.
type Expense struct {
	ID          string
	UserID      string
	Amount      float64
	Category    ExpenseCategory
	Title       string
	Description string
	Date        time.Time
	Source      string
	ReceiptURL  *string
	Vendor      *string
	CreatedAt   time.Time
}

// KnowledgeEntry is a business profile fact used as context for AI responses.
type KnowledgeEntry struct {
	ID               string
	UserID           string
	BusinessName     string
	Industry         string
	TargetAudience   string
	ProductsServices string
	Tags             []string
	CreatedAt        time.Time
}

// Conversation groups ordered chat messages for a user.
type Conversation struct {
	ID        string
	UserID    string
	Title     string
	CreatedAt time.Time
}

// ChatMessage is a single user or assistant turn within a conversation.
type ChatMessage struct {
	ID             string
	ConversationID string
	UserID         string
	Role           string
	Content        string
	CreatedAt      time.Time
}

// UsageField selects which per-month counter to bump.
type UsageField string

const (
	UsageReceiptUploads UsageField = "receipt_uploads"
	UsageAIGenerations  UsageField = "ai_generations"
)

// UsageCounters holds per-user counters for one calendar month. Period is
// year*12 + month so rollover needs no calendar arithmetic.
type UsageCounters struct {
	UserID         string
	Period         int
	ReceiptUploads int
	AIGenerations  int
}

// NotificationPreferences holds per-user channel and type toggles plus the
// quiet-hours window as local time-of-day strings ("22:00:00").
type NotificationPreferences struct {
	UserID          string
	EmailEnabled    bool
	PushEnabled     bool
	SMSEnabled      bool
	TypeFlags       map[string]bool
	QuietHoursStart string
	QuietHoursEnd   string
}

// DefaultNotificationPreferences is used when a user has no stored row:
// every channel on, no quiet hours.
func DefaultNotificationPreferences(userID string) *NotificationPreferences {
	return &NotificationPreferences{
		UserID:       userID,
		EmailEnabled: true,
		PushEnabled:  true,
		SMSEnabled:   true,
	}
}

// NotificationRecord is an append-only log entry of an attempted delivery.
type NotificationRecord struct {
	ID           string
	UserID       string
	Type         string
	Title        string
	Message      string
	Channel      string
	Status       string
	ScheduledFor *time.Time
	CreatedAt    time.Time
}

// Integration is a connected external channel with an encrypted credential.
type Integration struct {
	ID         string
	UserID     string
	Channel    string
	ExternalID string
	Credential string
	Enabled    bool
	CreatedAt  time.Time
}
