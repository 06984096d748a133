package metrics

import "github.com/prometheus/client_golang/prometheus"

// WebhookMetrics exposes counters/histograms for webhook ingestion flows.
type WebhookMetrics struct {
	inboundTotal    *prometheus.CounterVec
	notifyTotal     *prometheus.CounterVec
	webhookLatency  *prometheus.HistogramVec
	mediaResolution *prometheus.CounterVec
}

func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	m := &WebhookMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rentdesk",
			Subsystem: "webhook",
			Name:      "inbound_total",
			Help:      "Total inbound WhatsApp webhook changes",
		}, []string{"field", "status"}),
		notifyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rentdesk",
			Subsystem: "webhook",
			Name:      "notifications_total",
			Help:      "Total realtime notifications pushed",
		}, []string{"type"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rentdesk",
			Subsystem: "webhook",
			Name:      "latency_seconds",
			Help:      "Latency of WhatsApp webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"field"}),
		mediaResolution: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rentdesk",
			Subsystem: "media",
			Name:      "resolution_total",
			Help:      "Media resolution attempts by outcome",
		}, []string{"outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.notifyTotal, m.webhookLatency, m.mediaResolution)
	return m
}

func (m *WebhookMetrics) ObserveInbound(field, status string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(field, status).Inc()
}

func (m *WebhookMetrics) ObserveNotification(eventType string) {
	if m == nil {
		return
	}
	m.notifyTotal.WithLabelValues(eventType).Inc()
}

func (m *WebhookMetrics) ObserveLatency(field string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(field).Observe(seconds)
}

func (m *WebhookMetrics) ObserveMediaResolution(outcome string) {
	if m == nil {
		return
	}
	m.mediaResolution.WithLabelValues(outcome).Inc()
}
