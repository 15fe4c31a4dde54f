package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"assistant-backend/internal/metrics"
)

// CategoryOther is the fallback label every categorizer failure degrades to.
const CategoryOther = "other"

// documentCategories is the closed label set the model is constrained to.
var documentCategories = map[string]bool{
	"invoice":   true,
	"receipt":   true,
	"contract":  true,
	"report":    true,
	"tax":       true,
	"payroll":   true,
	"marketing": true,
	"legal":     true,
	"financial": true,
	CategoryOther: true,
}

const categorizeSystemPrompt = `You are a document classifier for a small-business assistant.
Classify the document into exactly one of these categories:
invoice, receipt, contract, report, tax, payroll, marketing, legal, financial, other.
Respond with only the category name in lowercase, nothing else.`

// Categorizer asks the language model to label uploaded documents. It is
// best-effort metadata: every failure returns "other" alongside the error so
// callers can report the failure while still using the fallback.
type Categorizer struct {
	completer Completer
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewCategorizer wires the document categorizer.
func NewCategorizer(completer Completer, logger *slog.Logger, m *metrics.Metrics) *Categorizer {
	return &Categorizer{
		completer: completer,
		logger:    logger.With("component", "categorizer"),
		metrics:   m,
	}
}

// Categorize classifies a filename/MIME/size triple into one category label.
func (c *Categorizer) Categorize(ctx context.Context, fileName, fileType string, fileSize int64) (string, error) {
	start := time.Now()
	reply, err := c.completer.Complete(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: categorizeSystemPrompt},
		{
			Role:    openai.ChatMessageRoleUser,
			Content: fmt.Sprintf("File name: %s\nMIME type: %s\nSize: %d bytes", fileName, fileType, fileSize),
		},
	})
	c.metrics.LLMLatency.WithLabelValues("categorize").Observe(time.Since(start).Seconds())

	if err != nil {
		c.metrics.LLMRequests.WithLabelValues("categorize", "error").Inc()
		c.logger.Warn("categorization failed, falling back", "file", fileName, "error", err)
		return CategoryOther, err
	}

	label := strings.ToLower(strings.TrimSpace(reply))
	if !documentCategories[label] {
		c.metrics.LLMRequests.WithLabelValues("categorize", "unrecognized").Inc()
		c.logger.Warn("unrecognized category label", "file", fileName, "label", label)
		return CategoryOther, fmt.Errorf("unrecognized category label %q", label)
	}

	c.metrics.LLMRequests.WithLabelValues("categorize", "ok").Inc()
	return label, nil
}
