package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"assistant-backend/internal/cache"
)

// ErrCustomerNotFound means the user has no billing customer yet, i.e. they
// never completed a checkout.
var ErrCustomerNotFound = errors.New("Customer not found")

const customerCacheTTL = 10 * time.Minute

// CheckoutRequest carries everything needed to open a hosted checkout.
type CheckoutRequest struct {
	PriceID    string            `json:"price_id"`
	UserID     string            `json:"user_id"`
	UserEmail  string            `json:"user_email"`
	PlanName   string            `json:"plan_name"`
	SuccessURL string            `json:"success_url"`
	CancelURL  string            `json:"cancel_url"`
	Metadata   map[string]string `json:"metadata"`
}

// Checkout drives hosted checkout and portal session creation against the
// billing provider, with a Redis-backed customer lookup cache.
type Checkout struct {
	provider Provider
	cache    *cache.Redis
	logger   *slog.Logger
}

// NewCheckout wires the checkout service.
func NewCheckout(provider Provider, c *cache.Redis, logger *slog.Logger) *Checkout {
	return &Checkout{
		provider: provider,
		cache:    c,
		logger:   logger.With("component", "billing"),
	}
}

// CreateSession finds or creates the billing customer for the user's email
// and opens a subscription checkout session. Returns the session id for
// client-side redirect.
func (c *Checkout) CreateSession(ctx context.Context, req CheckoutRequest) (string, error) {
	if req.PriceID == "" || req.UserID == "" || req.UserEmail == "" {
		return "", errors.New("price_id, user_id and user_email are required")
	}

	cust, err := c.resolveCustomer(ctx, req.UserEmail, req.UserID)
	if err != nil {
		return "", err
	}

	metadata := map[string]string{
		"user_id":   req.UserID,
		"plan_name": req.PlanName,
	}
	for k, v := range req.Metadata {
		metadata[k] = v
	}

	sessionID, err := c.provider.CreateCheckoutSession(ctx, CheckoutParams{
		CustomerID: cust.ID,
		PriceID:    req.PriceID,
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
		Metadata:   metadata,
	})
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}

	c.logger.Info("checkout session created", "user_id", req.UserID, "plan", req.PlanName)
	return sessionID, nil
}

// CreatePortalSession opens a self-service portal for the user's customer.
func (c *Checkout) CreatePortalSession(ctx context.Context, userID, returnURL string) (string, error) {
	if userID == "" {
		return "", errors.New("user_id is required")
	}

	cust, err := c.provider.FindCustomerByUserID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("find customer: %w", err)
	}
	if cust == nil {
		return "", ErrCustomerNotFound
	}

	url, err := c.provider.CreatePortalSession(ctx, cust.ID, returnURL)
	if err != nil {
		return "", fmt.Errorf("create portal session: %w", err)
	}
	return url, nil
}

// resolveCustomer is idempotent: repeated checkouts for the same email reuse
// the same customer. The cache only short-circuits the provider lookup.
func (c *Checkout) resolveCustomer(ctx context.Context, email, userID string) (*Customer, error) {
	key := "billing:customer:" + email

	var cached Customer
	if hit, err := c.cache.GetJSON(ctx, key, &cached); err != nil {
		c.logger.Warn("customer cache read failed", "error", err)
	} else if hit {
		return &cached, nil
	}

	cust, err := c.provider.FindCustomerByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("find customer: %w", err)
	}
	if cust == nil {
		cust, err = c.provider.CreateCustomer(ctx, email, userID)
		if err != nil {
			return nil, fmt.Errorf("create customer: %w", err)
		}
	}

	if err := c.cache.SetJSON(ctx, key, cust, customerCacheTTL); err != nil {
		c.logger.Warn("customer cache write failed", "error", err)
	}
	return cust, nil
}
