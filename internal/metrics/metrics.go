package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the intake workflow.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Submissions   *prometheus.CounterVec
	Extractions   *prometheus.CounterVec
	Notifications *prometheus.CounterVec
	Redemptions   *prometheus.CounterVec
	BoxSignals    *prometheus.CounterVec
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lostcard_submissions_total",
			Help: "Found-card reports received, by source",
		}, []string{"source"}),
		Extractions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lostcard_extractions_total",
			Help: "Photo extractions, by whether any field was found",
		}, []string{"result"}),
		Notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lostcard_notifications_total",
			Help: "Owner notification attempts, by result",
		}, []string{"result"}),
		Redemptions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lostcard_redemptions_total",
			Help: "Pickup code redemptions, by result",
		}, []string{"result"}),
		BoxSignals: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lostcard_box_signals_total",
			Help: "Pickup code deliveries to drop boxes, by result",
		}, []string{"result"}),
	}
}

// IncSubmission counts a new report
func (m *Metrics) IncSubmission(source string) {
	if m == nil {
		return
	}
	m.Submissions.WithLabelValues(source).Inc()
}

// IncExtraction counts a photo extraction
func (m *Metrics) IncExtraction(found bool) {
	if m == nil {
		return
	}
	m.Extractions.WithLabelValues(hitLabel(found)).Inc()
}

// IncNotification counts a notification attempt
func (m *Metrics) IncNotification(sent bool) {
	if m == nil {
		return
	}
	if sent {
		m.Notifications.WithLabelValues("sent").Inc()
		return
	}
	m.Notifications.WithLabelValues("failed").Inc()
}

// IncRedemption counts a redemption with its outcome reason
func (m *Metrics) IncRedemption(result string) {
	if m == nil {
		return
	}
	m.Redemptions.WithLabelValues(result).Inc()
}

// IncBoxSignal counts a box delivery attempt
func (m *Metrics) IncBoxSignal(delivered bool) {
	if m == nil {
		return
	}
	if delivered {
		m.BoxSignals.WithLabelValues("delivered").Inc()
		return
	}
	m.BoxSignals.WithLabelValues("failed").Inc()
}

func hitLabel(found bool) string {
	if found {
		return "found"
	}
	return "empty"
}
