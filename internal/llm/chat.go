package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"assistant-backend/internal/metrics"
	"assistant-backend/internal/store"
)

// historyWindow caps how many stored messages are replayed into the model
// context.
const historyWindow = 20

const chatSystemPrompt = `You are a helpful AI assistant for small-business owners.
You help with bookkeeping questions, expense tracking, customer communication and
day-to-day business advice. Keep answers short and practical.`

// UsageRecorder counts AI generations against the per-month usage counters.
type UsageRecorder interface {
	RecordAIGeneration(ctx context.Context, userID string) error
}

// ChatStore is the conversation persistence slice of the store.
type ChatStore interface {
	InsertChatMessage(ctx context.Context, m store.ChatMessage) error
	ListRecentChatMessages(ctx context.Context, conversationID string, limit int) ([]store.ChatMessage, error)
}

// Chat proxies user messages to the language model, replaying recent
// conversation history and persisting both sides of the exchange.
type Chat struct {
	completer Completer
	store     ChatStore
	usage     UsageRecorder
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewChat wires the chat proxy.
func NewChat(completer Completer, st ChatStore, usage UsageRecorder, logger *slog.Logger, m *metrics.Metrics) *Chat {
	return &Chat{
		completer: completer,
		store:     st,
		usage:     usage,
		logger:    logger.With("component", "chat"),
		metrics:   m,
	}
}

// Respond answers one user message. With a conversation id the exchange is
// persisted and recent history is replayed; without one it is a stateless
// single turn.
func (c *Chat) Respond(ctx context.Context, userID, conversationID, message string) (string, error) {
	if message == "" {
		return "", errors.New("message is required")
	}

	msgs := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: chatSystemPrompt},
	}

	if conversationID != "" {
		history, err := c.store.ListRecentChatMessages(ctx, conversationID, historyWindow)
		if err != nil {
			return "", err
		}
		// Stored newest first; the model wants oldest first.
		for i := len(history) - 1; i >= 0; i-- {
			msgs = append(msgs, openai.ChatCompletionMessage{
				Role:    history[i].Role,
				Content: history[i].Content,
			})
		}
	}
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: message,
	})

	if conversationID != "" {
		err := c.store.InsertChatMessage(ctx, store.ChatMessage{
			ConversationID: conversationID,
			UserID:         userID,
			Role:           openai.ChatMessageRoleUser,
			Content:        message,
		})
		if err != nil {
			return "", err
		}
	}

	start := time.Now()
	reply, err := c.completer.Complete(ctx, msgs)
	c.metrics.LLMLatency.WithLabelValues("chat").Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.LLMRequests.WithLabelValues("chat", "error").Inc()
		return "", err
	}
	c.metrics.LLMRequests.WithLabelValues("chat", "ok").Inc()

	if conversationID != "" {
		err := c.store.InsertChatMessage(ctx, store.ChatMessage{
			ConversationID: conversationID,
			UserID:         userID,
			Role:           openai.ChatMessageRoleAssistant,
			Content:        reply,
		})
		if err != nil {
			c.logger.Error("persist assistant reply failed", "conversation", conversationID, "error", err)
		}
	}

	if err := c.usage.RecordAIGeneration(ctx, userID); err != nil {
		c.logger.Warn("usage counting failed", "user_id", userID, "error", err)
	}

	return reply, nil
}
