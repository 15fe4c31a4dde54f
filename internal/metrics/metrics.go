package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics stores Prometheus collectors used across the service.
type Metrics struct {
	WebhookEvents     *prometheus.CounterVec
	LLMRequests       *prometheus.CounterVec
	LLMLatency        *prometheus.HistogramVec
	VoiceCalls        *prometheus.CounterVec
	WAInboundMessages *prometheus.CounterVec
	WAOutboundReplies *prometheus.CounterVec
	Notifications     *prometheus.CounterVec
	ReceiptsProcessed *prometheus.CounterVec
	AccountDeletions  *prometheus.CounterVec
	Errors            *prometheus.CounterVec
}

var (
	regOnce         sync.Once
	metricsInstance *Metrics
)

// Registry builds and registers the metrics singleton with optional namespace.
func Registry(namespace string) *Metrics {
	regOnce.Do(func() {
		metricsInstance = &Metrics{
			WebhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "billing_webhook_events_total",
				Help:      "Total billing webhook events by type and outcome.",
			}, []string{"type", "outcome"}),
			LLMRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_requests_total",
				Help:      "Total language-model API requests by purpose and status.",
			}, []string{"purpose", "status"}),
			LLMLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "llm_request_duration_seconds",
				Help:      "Latency distribution for language-model API calls.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"purpose"}),
			VoiceCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "voice_web_calls_total",
				Help:      "Total voice web-call sessions requested by status.",
			}, []string{"status"}),
			WAInboundMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "whatsapp_inbound_messages_total",
				Help:      "Total inbound WhatsApp messages by detected intent.",
			}, []string{"intent"}),
			WAOutboundReplies: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "whatsapp_outbound_replies_total",
				Help:      "Total outbound WhatsApp replies by status.",
			}, []string{"status"}),
			Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_total",
				Help:      "Total notification dispatch attempts by channel and status.",
			}, []string{"channel", "status"}),
			ReceiptsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "receipts_processed_total",
				Help:      "Total receipt uploads processed by outcome.",
			}, []string{"outcome"}),
			AccountDeletions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "account_deletions_total",
				Help:      "Total account deletion requests by outcome.",
			}, []string{"outcome"}),
			Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total errors grouped by component.",
			}, []string{"component"}),
		}

		prometheus.MustRegister(
			metricsInstance.WebhookEvents,
			metricsInstance.LLMRequests,
			metricsInstance.LLMLatency,
			metricsInstance.VoiceCalls,
			metricsInstance.WAInboundMessages,
			metricsInstance.WAOutboundReplies,
			metricsInstance.Notifications,
			metricsInstance.ReceiptsProcessed,
			metricsInstance.AccountDeletions,
			metricsInstance.Errors,
		)
	})
	return metricsInstance
}
