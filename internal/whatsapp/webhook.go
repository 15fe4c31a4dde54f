package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"assistant-backend/internal/metrics"
	"assistant-backend/internal/store"
)

// Canned replies. Outbound text is best-effort; failures are logged, never
// retried.
const (
	replyExpenseRecorded = "Got it! Recorded a $%.2f %s expense."
	replyGeneralQuery    = "Thanks for reaching out! You can log expenses by texting things like \"spent $12 on lunch\". For anything else, check your dashboard."
	replyHelp            = "Hi! I can track expenses for you. Try texting \"spent $12 on lunch\" or ask me a question."
	replyNotLinked       = "This number isn't linked to an account yet. Connect WhatsApp from your dashboard integrations page first."
)

// Envelope mirrors the Meta webhook payload shape, pared down to text
// messages.
type Envelope struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []InboundMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// InboundMessage is one message within a webhook delivery.
type InboundMessage struct {
	From string `json:"from"`
	Type string `json:"type"`
	Text struct {
		Body string `json:"body"`
	} `json:"text"`
}

// MessageStore is the store slice the processor needs.
type MessageStore interface {
	LookupIntegrationUser(ctx context.Context, channel, externalID string) (string, error)
	InsertExpense(ctx context.Context, e store.Expense) (*store.Expense, error)
}

/// Processor reacts to inbound messages: records expenses, answers general
// queries with canned text, and sends help otherwise.
type Processor struct {
	store   MessageStore
	sender  Sender
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewProcessor wires the inbound message processor.
func NewProcessor(st MessageStore, sender Sender, logger *slog.Logger, m *metrics.Metrics) *Processor {
	return &Processor{
		store:   st,
		sender:  sender,
		logger:  logger.With("component", "whatsapp"),
		metrics: m,
		now:     time.Now,
	}
}

// HandleMessage processes one inbound text message.
func (p *Processor) HandleMessage(ctx context.Context, msg InboundMessage) error {
	if msg.Type != "text" || msg.Text.Body == "" {
		return nil
	}

	c := Classify(msg.Text.Body)
	p.metrics.WAInboundMessages.WithLabelValues(string(c.Intent)).Inc()

	switch c.Intent {
	case IntentExpense:
		return p.handleExpense(ctx, msg.From, c)
	case IntentGeneralQuery:
		p.reply(ctx, msg.From, replyGeneralQuery)
		return nil
	default:
		p.reply(ctx, msg.From, replyHelp)
		return nil
	}
}

func (p *Processor) handleExpense(ctx context.Context, from string, c Classification) error {
	userID, err := p.store.LookupIntegrationUser(ctx, "whatsapp", from)
	if err != nil {
		return fmt.Errorf("lookup whatsapp user: %w", err)
	}
	if userID == "" {
		p.logger.Info("expense from unlinked number", "from", from)
		p.reply(ctx, from, replyNotLinked)
		return nil
	}

	_, err = p.store.InsertExpense(ctx, store.Expense{
		UserID:      userID,
		Amount:      c.Amount,
		Category:    store.NormalizeCategory(c.Category),
		Title:       c.Description,
		Description: c.Description,
		Date:        p.now(),
		Source:      store.ExpenseSourceWhatsApp,
	})
	if err != nil {
		return fmt.Errorf("record whatsapp expense: %w", err)
	}

	p.logger.Info("whatsapp expense recorded", "user_id", userID, "amount", c.Amount, "category", c.Category)
	p.reply(ctx, from, fmt.Sprintf(replyExpenseRecorded, c.Amount, c.Category))
	return nil
}

func (p *Processor) reply(ctx context.Context, to, body string) {
	if err := p.sender.SendText(ctx, to, body); err != nil {
		p.metrics.WAOutboundReplies.WithLabelValues("failed").Inc()
		p.logger.Error("whatsapp reply failed", "to", to, "error", err)
		return
	}
	p.metrics.WAOutboundReplies.WithLabelValues("sent").Inc()
}

// WebhookHandler serves the Meta verification handshake on GET and inbound
// message batches on POST.
type WebhookHandler struct {
	verifyToken string
	processor   *Processor
	logger      *slog.Logger
}

// NewWebhookHandler wires the webhook endpoint.
func NewWebhookHandler(verifyToken string, processor *Processor, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		verifyToken: verifyToken,
		processor:   processor,
		logger:      logger.With("component", "whatsapp_webhook"),
	}
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.verify(w, r)
	case http.MethodPost:
		h.receive(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// verify echoes the challenge only for a subscribe request with the right
// token.
func (h *WebhookHandler) verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode != "subscribe" || token != h.verifyToken {
		h.logger.Warn("webhook verification rejected", "mode", mode)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(challenge))
}

func (h *WebhookHandler) receive(w http.ResponseWriter, r *http.Request) {
	var env Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	for _, entry := range env.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				if err := h.processor.HandleMessage(r.Context(), msg); err != nil {
					h.logger.Error("inbound message handling failed", "from", msg.From, "error", err)
				}
			}
		}
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
