package account

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"assistant-backend/internal/metrics"
	"assistant-backend/internal/store"
)

const testJWTSecret = "jwt-test-secret"

func signedToken(t *testing.T, subject string) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

type fakeDataStore struct {
	failTables map[string]error
	deleted    []string
	authRows   int64
	authErr    error
}

func (f *fakeDataStore) DeleteUserRows(_ context.Context, table, _ string) (int64, error) {
	if err, ok := f.failTables[table]; ok {
		return 0, err
	}
	f.deleted = append(f.deleted, table)
	return 2, nil
}

func (f *fakeDataStore) DeleteAuthUser(context.Context, string) (int64, error) {
	return f.authRows, f.authErr
}

type fakeCleaner struct {
	err error
}

func (f *fakeCleaner) RemovePrefix(context.Context, string) error { return f.err }

func newTestDeleter(st DataStore, buckets []Bucket, strategies []Strategy) *Deleter {
	d := NewDeleter(NewTokenVerifier(testJWTSecret), st, buckets,
		NewAdminClient("http://supabase.invalid", "service-key"), slog.Default(), metrics.Registry("test"))
	if strategies != nil {
		d.strategies = strategies
	}
	return d
}

func TestDeleteFallsBackToRPC(t *testing.T) {
	st := &fakeDataStore{}
	var used []string
	strategies := []Strategy{
		{Name: "admin_api", Run: func(context.Context, string) error {
			used = append(used, "admin_api")
			return errors.New("admin api unavailable")
		}},
		{Name: "rpc", Run: func(context.Context, string) error {
			used = append(used, "rpc")
			return nil
		}},
		{Name: "direct_delete", Run: func(context.Context, string) error {
			used = append(used, "direct_delete")
			return nil
		}},
	}
	d := newTestDeleter(st, nil, strategies)

	report, err := d.Delete(context.Background(), signedToken(t, "user-1"))
	if err != nil {
		t.Fatalf("delete: %v", err)
	}

	if !report.Success {
		t.Errorf("success = false, want true: %+v", report)
	}
	if report.IdentityStrategy != "rpc" {
		t.Errorf("strategy = %q, want rpc", report.IdentityStrategy)
	}
	if len(used) != 2 {
		t.Errorf("strategies tried = %v, first success should stop the chain", used)
	}
	if len(st.deleted) != len(store.UserOwnedTables) {
		t.Errorf("cleaned %d tables, want %d", len(st.deleted), len(store.UserOwnedTables))
	}
}

func TestDeleteAllStrategiesFail(t *testing.T) {
	st := &fakeDataStore{}
	fail := func(context.Context, string) error { return errors.New("nope") }
	strategies := []Strategy{
		{Name: "admin_api", Run: fail},
		{Name: "rpc", Run: fail},
		{Name: "direct_delete", Run: fail},
	}
	d := newTestDeleter(st, nil, strategies)

	report, err := d.Delete(context.Background(), signedToken(t, "user-1"))
	if err != nil {
		t.Fatalf("delete: %v", err)
	}

	if report.Success {
		t.Error("success = true despite identity deletion failing everywhere")
	}
	if report.Error == "" {
		t.Error("error message missing")
	}
	// Data cleanup still ran and succeeded.
	for _, entry := range report.DataCleanup {
		if entry.Status != CleanupSuccess {
			t.Errorf("cleanup entry %s = %s", entry.Table, entry.Status)
		}
	}
}

func TestDeleteCollectsTableErrors(t *testing.T) {
	st := &fakeDataStore{failTables: map[string]error{"expenses": errors.New("fk violation")}}
	ok := func(context.Context, string) error { return nil }
	d := newTestDeleter(st, nil, []Strategy{{Name: "admin_api", Run: ok}})

	report, err := d.Delete(context.Background(), signedToken(t, "user-1"))
	if err != nil {
		t.Fatalf("delete: %v", err)
	}

	var failed, succeeded int
	for _, entry := range report.DataCleanup {
		switch entry.Status {
		case CleanupError:
			failed++
			if entry.Table != "expenses" {
				t.Errorf("unexpected failed table %s", entry.Table)
			}
		case CleanupSuccess:
			succeeded++
		}
	}
	if failed != 1 {
		t.Errorf("failed entries = %d, want 1", failed)
	}
	if succeeded != len(store.UserOwnedTables)-1 {
		t.Errorf("cleanup did not continue past the failing table")
	}
	if !report.Success {
		t.Error("table errors must not fail the overall deletion")
	}
}

func TestDeleteBucketFailureIsWarning(t *testing.T) {
	ok := func(context.Context, string) error { return nil }
	buckets := []Bucket{{Name: "receipts", Cleaner: &fakeCleaner{err: errors.New("bucket gone")}}}
	d := newTestDeleter(&fakeDataStore{}, buckets, []Strategy{{Name: "admin_api", Run: ok}})

	report, err := d.Delete(context.Background(), signedToken(t, "user-1"))
	if err != nil {
		t.Fatalf("delete: %v", err)
	}

	last := report.DataCleanup[len(report.DataCleanup)-1]
	if last.Table != "storage:receipts" || last.Status != CleanupWarning {
		t.Errorf("bucket entry = %+v", last)
	}
}

func TestDeleteRejectsInvalidToken(t *testing.T) {
	d := newTestDeleter(&fakeDataStore{}, nil, nil)

	if _, err := d.Delete(context.Background(), "not.a.token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	claims := jwt.RegisteredClaims{Subject: "user-1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("other-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := NewTokenVerifier(testJWTSecret).Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}
