package metrics

import "github.com/prometheus/client_golang/prometheus"

// RelayMetrics counts webhook, dispatch and lead outcomes. A nil
// *RelayMetrics is valid and records nothing.
type RelayMetrics struct {
	webhooksTotal   *prometheus.CounterVec
	dispatchTotal   *prometheus.CounterVec
	leadsTotal      *prometheus.CounterVec
	webhookDuration prometheus.Histogram
}

func New(reg prometheus.Registerer) *RelayMetrics {
	m := &RelayMetrics{
		webhooksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wacrm",
			Subsystem: "relay",
			Name:      "webhooks_total",
			Help:      "Inbound WhatsApp webhooks by outcome",
		}, []string{"status"}),
		dispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wacrm",
			Subsystem: "relay",
			Name:      "dispatch_total",
			Help:      "Outbound WhatsApp sends by outcome",
		}, []string{"status"}),
		leadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wacrm",
			Subsystem: "relay",
			Name:      "leads_created_total",
			Help:      "Leads recorded by intent",
		}, []string{"intent"}),
		webhookDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "wacrm",
			Subsystem: "relay",
			Name:      "webhook_duration_seconds",
			Help:      "Time spent processing a valid inbound message",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.webhooksTotal, m.dispatchTotal, m.leadsTotal, m.webhookDuration)
	return m
}

func (m *RelayMetrics) ObserveWebhook(status string) {
	if m == nil {
		return
	}
	m.webhooksTotal.WithLabelValues(status).Inc()
}

func (m *RelayMetrics) ObserveDispatch(status string) {
	if m == nil {
		return
	}
	m.dispatchTotal.WithLabelValues(status).Inc()
}

func (m *RelayMetrics) ObserveLead(intent string) {
	if m == nil {
		return
	}
	m.leadsTotal.WithLabelValues(intent).Inc()
}

func (m *RelayMetrics) ObserveWebhookDuration(seconds float64) {
	if m == nil {
		return
	}
	m.webhookDuration.Observe(seconds)
}
