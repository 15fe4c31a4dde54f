package receipts

import (
	"context"
	"time"
)

// Confidence grades how trustworthy an extraction is.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ExpenseCandidate is one structured expense pulled out of a receipt image.
type ExpenseCandidate struct {
	Amount      float64   `json:"amount"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category"`
	Date        time.Time `json:"date"`
	Vendor      string    `json:"vendor,omitempty"`
	Tax         float64   `json:"tax,omitempty"`
	Subtotal    float64   `json:"subtotal,omitempty"`
	Currency    string    `json:"currency,omitempty"`
}

// Extraction is the full result of one receipt analysis.
type Extraction struct {
	Candidates []ExpenseCandidate `json:"candidates"`
	Confidence Confidence         `json:"confidence"`
	Raw        map[string]any     `json:"raw,omitempty"`
}

// Extractor turns receipt image bytes into structured expense candidates.
// A real implementation calls an OCR/ML endpoint; the contract is what
// matters, not the mock values.
type Extractor interface {
	Extract(ctx context.Context, image []byte, fileName string) (*Extraction, error)
}

// MockExtractor fabricates a plausible extraction. It stands in for the OCR
// integration point during development.
type MockExtractor struct {
	now func() time.Time
}

// NewMockExtractor builds the stub extractor.
func NewMockExtractor() *MockExtractor {
	return &MockExtractor{now: time.Now}
}

// Extract returns a fixed-shape candidate derived from the upload.
func (m *MockExtractor) Extract(_ context.Context, image []byte, fileName string) (*Extraction, error) {
	candidate := ExpenseCandidate{
		Amount:      42.50,
		Title:       "Receipt purchase",
		Description: "Extracted from " + fileName,
		Category:    "meals",
		Date:        m.now(),
		Vendor:      "Corner Store",
		Tax:         3.50,
		Subtotal:    39.00,
		Currency:    "USD",
	}
	return &Extraction{
		Candidates: []ExpenseCandidate{candidate},
		Confidence: ConfidenceMedium,
		Raw: map[string]any{
			"engine":     "mock",
			"file_name":  fileName,
			"byte_count": len(image),
		},
	}, nil
}
