package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the task service collectors.
type Metrics struct {
	transitions   *prometheus.CounterVec
	rejections    *prometheus.CounterVec
	notifications *prometheus.CounterVec
	tasksCreated  *prometheus.CounterVec
	overdue       prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered, which is what tests want.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "casetasks",
				Name:      "transitions_total",
				Help:      "Total number of applied status transitions",
			},
			[]string{"action", "to"},
		),
		rejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "casetasks",
				Name:      "rejections_total",
				Help:      "Total number of rejected task operations by error code",
			},
			[]string{"code"},
		),
		notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "casetasks",
				Name:      "notifications_total",
				Help:      "Total number of notifications by kind and result",
			},
			[]string{"kind", "result"},
		),
		tasksCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "casetasks",
				Name:      "tasks_created_total",
				Help:      "Total number of created tasks by origin",
			},
			[]string{"origin"},
		),
		overdue: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "casetasks",
				Name:      "tasks_overdue",
				Help:      "Number of overdue tasks seen by the last reminder scan",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(m.transitions, m.rejections, m.notifications, m.tasksCreated, m.overdue)
	}
	return m
}

func (m *Metrics) RecordTransition(action, to string) {
	m.transitions.WithLabelValues(action, to).Inc()
}

func (m *Metrics) RecordRejection(code string) {
	m.rejections.WithLabelValues(code).Inc()
}

func (m *Metrics) RecordNotification(kind string, ok bool) {
	result := "sent"
	if !ok {
		result = "failed"
	}
	m.notifications.WithLabelValues(kind, result).Inc()
}

// RecordCreated counts a new task; origin is "request", "template" or "recurrence".
func (m *Metrics) RecordCreated(origin string) {
	m.tasksCreated.WithLabelValues(origin).Inc()
}

func (m *Metrics) SetOverdue(n int) {
	m.overdue.Set(float64(n))
}
