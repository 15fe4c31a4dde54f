package receipts

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"testing"

	"assistant-backend/internal/metrics"
	"assistant-backend/internal/store"
)

type fakeGate struct {
	allowed  bool
	recorded int
}

func (f *fakeGate) CanUploadReceipt(context.Context, string) (bool, error) {
	return f.allowed, nil
}

func (f *fakeGate) RecordReceiptUpload(context.Context, string) error {
	f.recorded++
	return nil
}

type fakeExpenseStore struct {
	inserted []store.Expense
}

func (f *fakeExpenseStore) InsertExpense(_ context.Context, e store.Expense) (*store.Expense, error) {
	e.ID = "exp-1"
	f.inserted = append(f.inserted, e)
	return &e, nil
}

type fakeStorage struct {
	uploads int
	err     error
}

func (f *fakeStorage) Upload(context.Context, string, []byte, string) (string, error) {
	f.uploads++
	if f.err != nil {
		return "", f.err
	}
	return "https://storage.example.com/receipts/img.jpg", nil
}

func (f *fakeStorage) RemovePrefix(context.Context, string) error { return nil }

func testImage() string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString([]byte("fake image bytes"))
}

func newTestProcessor(st ExpenseStore, storage ObjectStorage, gate Gate) *Processor {
	return NewProcessor(st, NewMockExtractor(), storage, gate, slog.Default(), metrics.Registry("test"))
}

func TestProcessStoresExpense(t *testing.T) {
	st := &fakeExpenseStore{}
	gate := &fakeGate{allowed: true}
	p := newTestProcessor(st, &fakeStorage{}, gate)

	result, err := p.Process(context.Background(), "user-1", testImage(), "lunch receipt.jpg")
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	if len(st.inserted) != 1 {
		t.Fatalf("inserted %d expenses, want 1", len(st.inserted))
	}
	e := st.inserted[0]
	if e.Source != store.ExpenseSourceReceipt {
		t.Errorf("source = %s", e.Source)
	}
	if e.Category != store.CategoryMeals {
		t.Errorf("category = %s, want meals", e.Category)
	}
	if e.ReceiptURL == nil || *e.ReceiptURL == "" {
		t.Error("receipt url not attached")
	}
	if e.Amount <= 0 {
		t.Errorf("amount = %v", e.Amount)
	}

	if result.Confidence != ConfidenceMedium {
		t.Errorf("confidence = %s", result.Confidence)
	}
	if gate.recorded != 1 {
		t.Errorf("uploads recorded = %d, want 1", gate.recorded)
	}
}

func TestProcessStorageFailureIsNonFatal(t *testing.T) {
	st := &fakeExpenseStore{}
	p := newTestProcessor(st, &fakeStorage{err: errors.New("bucket gone")}, &fakeGate{allowed: true})

	result, err := p.Process(context.Background(), "user-1", testImage(), "r.jpg")
	if err != nil {
		t.Fatalf("storage failure must not fail processing: %v", err)
	}
	if result.ReceiptURL != "" {
		t.Errorf("receipt url = %q, want empty on storage failure", result.ReceiptURL)
	}
	if len(st.inserted) != 1 {
		t.Errorf("expense not stored despite storage failure")
	}
	if st.inserted[0].ReceiptURL != nil {
		t.Error("expense carries a receipt url that was never stored")
	}
}

func TestProcessBlockedByQuota(t *testing.T) {
	st := &fakeExpenseStore{}
	p := newTestProcessor(st, &fakeStorage{}, &fakeGate{allowed: false})

	if _, err := p.Process(context.Background(), "user-1", testImage(), "r.jpg"); err == nil {
		t.Fatal("expected quota block")
	}
	if len(st.inserted) != 0 {
		t.Errorf("expense stored despite quota block")
	}
}

func TestProcessRejectsBadBase64(t *testing.T) {
	p := newTestProcessor(&fakeExpenseStore{}, nil, &fakeGate{allowed: true})

	if _, err := p.Process(context.Background(), "user-1", "data:image/jpeg;base64,!!!", "r.jpg"); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestDecodeImageWithoutPrefix(t *testing.T) {
	raw := base64.StdEncoding.EncodeToString([]byte("bytes"))
	data, err := decodeImage(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(data) != "bytes" {
		t.Errorf("decoded = %q", data)
	}
}
