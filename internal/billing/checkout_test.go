package billing

import (
	"context"
	"errors"
	"log/slog"
	"testing"
)

type fakeProvider struct {
	customers      map[string]*Customer
	created        int
	lastCheckout   CheckoutParams
	portalCustomer string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{customers: map[string]*Customer{}}
}

func (f *fakeProvider) FindCustomerByEmail(_ context.Context, email string) (*Customer, error) {
	return f.customers[email], nil
}

func (f *fakeProvider) CreateCustomer(_ context.Context, email, userID string) (*Customer, error) {
	f.created++
	c := &Customer{ID: "cus_" + userID, Email: email}
	f.customers[email] = c
	return c, nil
}

func (f *fakeProvider) FindCustomerByUserID(_ context.Context, userID string) (*Customer, error) {
	for _, c := range f.customers {
		if c.ID == "cus_"+userID {
			return c, nil
		}
	}
	return nil, nil
}

func (f *fakeProvider) CreateCheckoutSession(_ context.Context, params CheckoutParams) (string, error) {
	f.lastCheckout = params
	return "cs_test_1", nil
}

func (f *fakeProvider) CreatePortalSession(_ context.Context, customerID, returnURL string) (string, error) {
	f.portalCustomer = customerID
	return "https://billing.example.com/session", nil
}

func (f *fakeProvider) GetSubscription(context.Context, string) (*ProviderSubscription, error) {
	return nil, errors.New("not implemented")
}

func testLogger() *slog.Logger {
	return slog.Default()
}

func TestCreateSessionReusesCustomer(t *testing.T) {
	provider := newFakeProvider()
	svc := NewCheckout(provider, nil, testLogger())

	req := CheckoutRequest{
		PriceID:    "price_1",
		UserID:     "user-1",
		UserEmail:  "owner@example.com",
		PlanName:   "pro",
		SuccessURL: "https://app.example.com/ok",
		CancelURL:  "https://app.example.com/cancel",
	}

	if _, err := svc.CreateSession(context.Background(), req); err != nil {
		t.Fatalf("first checkout: %v", err)
	}
	if _, err := svc.CreateSession(context.Background(), req); err != nil {
		t.Fatalf("second checkout: %v", err)
	}

	if provider.created != 1 {
		t.Errorf("customers created = %d, want 1", provider.created)
	}
}

func TestCreateSessionAttachesMetadata(t *testing.T) {
	provider := newFakeProvider()
	svc := NewCheckout(provider, nil, testLogger())

	_, err := svc.CreateSession(context.Background(), CheckoutRequest{
		PriceID:   "price_1",
		UserID:    "user-1",
		UserEmail: "owner@example.com",
		PlanName:  "pro",
		Metadata:  map[string]string{"campaign": "launch"},
	})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	md := provider.lastCheckout.Metadata
	if md["user_id"] != "user-1" || md["plan_name"] != "pro" || md["campaign"] != "launch" {
		t.Errorf("metadata = %v", md)
	}
}

func TestCreateSessionValidatesInput(t *testing.T) {
	svc := NewCheckout(newFakeProvider(), nil, testLogger())
	if _, err := svc.CreateSession(context.Background(), CheckoutRequest{PriceID: "price_1"}); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestPortalSessionUnknownCustomer(t *testing.T) {
	svc := NewCheckout(newFakeProvider(), nil, testLogger())

	_, err := svc.CreatePortalSession(context.Background(), "user-unknown", "https://app.example.com")
	if !errors.Is(err, ErrCustomerNotFound) {
		t.Fatalf("err = %v, want ErrCustomerNotFound", err)
	}
}

func TestPortalSessionFindsCustomer(t *testing.T) {
	provider := newFakeProvider()
	provider.customers["owner@example.com"] = &Customer{ID: "cus_user-1", Email: "owner@example.com"}
	svc := NewCheckout(provider, nil, testLogger())

	url, err := svc.CreatePortalSession(context.Background(), "user-1", "https://app.example.com")
	if err != nil {
		t.Fatalf("portal: %v", err)
	}
	if url == "" || provider.portalCustomer != "cus_user-1" {
		t.Errorf("url=%q customer=%q", url, provider.portalCustomer)
	}
}
