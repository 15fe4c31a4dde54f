package receipts

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"assistant-backend/internal/metrics"
	"assistant-backend/internal/store"
)

// Gate is the usage-tracker slice the processor enforces quotas through.
type Gate interface {
	CanUploadReceipt(ctx context.Context, userID string) (bool, error)
	RecordReceiptUpload(ctx context.Context, userID string) error
}

// ExpenseStore persists extracted expenses.
type ExpenseStore interface {
	InsertExpense(ctx context.Context, e store.Expense) (*store.Expense, error)
}

// Result is the receipt processing outcome returned to the client.
type Result struct {
	Expenses   []store.Expense `json:"expenses"`
	ReceiptURL string          `json:"receiptUrl,omitempty"`
	Confidence Confidence      `json:"confidence"`
	Raw        map[string]any  `json:"rawExtraction,omitempty"`
}

// Processor runs the receipt pipeline: quota gate, decode, optional storage
// upload, extraction, expense persistence.
type Processor struct {
	store     ExpenseStore
	extractor Extractor
	storage   ObjectStorage
	gate      Gate
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewProcessor wires the receipt processor. Storage may be nil when no
// bucket is configured; uploads are then skipped.
func NewProcessor(st ExpenseStore, extractor Extractor, storage ObjectStorage, gate Gate, logger *slog.Logger, m *metrics.Metrics) *Processor {
	return &Processor{
		store:     st,
		extractor: extractor,
		storage:   storage,
		gate:      gate,
		logger:    logger.With("component", "receipts"),
		metrics:   m,
		now:       time.Now,
	}
}

// Process handles one uploaded receipt image for the user.
func (p *Processor) Process(ctx context.Context, userID, imageBase64, fileName string) (*Result, error) {
	if userID == "" || imageBase64 == "" {
		return nil, errors.New("userId and imageBase64 are required")
	}

	ok, err := p.gate.CanUploadReceipt(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		p.metrics.ReceiptsProcessed.WithLabelValues("limit").Inc()
		return nil, fmt.Errorf("receipt upload blocked: monthly limit reached")
	}

	image, err := decodeImage(imageBase64)
	if err != nil {
		p.metrics.ReceiptsProcessed.WithLabelValues("bad_image").Inc()
		return nil, err
	}

	// Storage failure loses the raw image but not the expense data, so it
	// is logged and the pipeline continues.
	var receiptURL string
	if p.storage != nil {
		path := fmt.Sprintf("%s/%s-%s", userID, uuid.New().String(), sanitizeFileName(fileName))
		url, err := p.storage.Upload(ctx, path, image, "image/jpeg")
		if err != nil {
			p.logger.Warn("receipt image upload failed", "user_id", userID, "error", err)
		} else {
			receiptURL = url
		}
	}

	extraction, err := p.extractor.Extract(ctx, image, fileName)
	if err != nil {
		p.metrics.ReceiptsProcessed.WithLabelValues("extract_error").Inc()
		return nil, fmt.Errorf("extract receipt: %w", err)
	}

	var expenses []store.Expense
	for _, cand := range extraction.Candidates {
		date := cand.Date
		if date.IsZero() {
			date = p.now()
		}
		e := store.Expense{
			UserID:      userID,
			Amount:      cand.Amount,
			Category:    store.NormalizeCategory(cand.Category),
			Title:       cand.Title,
			Description: cand.Description,
			Date:        date,
			Source:      store.ExpenseSourceReceipt,
		}
		if receiptURL != "" {
			e.ReceiptURL = &receiptURL
		}
		if cand.Vendor != "" {
			vendor := cand.Vendor
			e.Vendor = &vendor
		}
		inserted, err := p.store.InsertExpense(ctx, e)
		if err != nil {
			p.metrics.ReceiptsProcessed.WithLabelValues("store_error").Inc()
			return nil, fmt.Errorf("store expense: %w", err)
		}
		expenses = append(expenses, *inserted)
	}

	if err := p.gate.RecordReceiptUpload(ctx, userID); err != nil {
		return nil, err
	}

	p.metrics.ReceiptsProcessed.WithLabelValues("ok").Inc()
	return &Result{
		Expenses:   expenses,
		ReceiptURL: receiptURL,
		Confidence: extraction.Confidence,
		Raw:        extraction.Raw,
	}, nil
}

// decodeImage strips an optional data-URL prefix and decodes the base64
// payload.
func decodeImage(imageBase64 string) ([]byte, error) {
	encoded := imageBase64
	if idx := strings.Index(encoded, ";base64,"); idx >= 0 {
		encoded = encoded[idx+len(";base64,"):]
	}
	image, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if len(image) == 0 {
		return nil, errors.New("empty image payload")
	}
	return image, nil
}

func sanitizeFileName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "receipt"
	}
	name = strings.ReplaceAll(name, "/", "_")
	return strings.ReplaceAll(name, " ", "_")
}
