package billing

import (
	"context"
	"time"
)

// Customer is the minimal billing-provider customer projection we need.
type Customer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// CheckoutParams describes a hosted subscription checkout session. Metadata
// is attached to both the session and the resulting subscription so webhook
// events can be attributed back to the user.
type CheckoutParams struct {
	CustomerID string
	PriceID    string
	SuccessURL string
	CancelURL  string
	Metadata   map[string]string
}

// ProviderSubscription is the provider's authoritative subscription snapshot.
type ProviderSubscription struct {
	ID                 string
	CustomerID         string
	Status             string
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	CancelAtPeriodEnd  bool
}

// Provider abstracts the billing backend so checkout, portal and webhook
// reconciliation can be tested against fakes.
type Provider interface {
	FindCustomerByEmail(ctx context.Context, email string) (*Customer, error)
	CreateCustomer(ctx context.Context, email, userID string) (*Customer, error)
	FindCustomerByUserID(ctx context.Context, userID string) (*Customer, error)
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (string, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*ProviderSubscription, error)
}
