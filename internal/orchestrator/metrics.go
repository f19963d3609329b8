package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/shaiso/smoothie-dispatch/internal/domain"
)

// Metrics — метрики оркестратора.
type Metrics struct {
	reg prometheus.Registerer

	submitted prometheus.Counter
	completed *prometheus.CounterVec
	active    prometheus.Gauge
	duration  *prometheus.HistogramVec
	signals   *prometheus.CounterVec
}

// NewMetrics регистрирует метрики в reg.
// nil — отдельный реестр (для тестов и нескольких Engine в одном процессе).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		reg: reg,
		submitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "smoothie_orders_submitted_total",
			Help: "Принятые заказы.",
		}),
		completed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "smoothie_orders_completed_total",
			Help: "Завершённые заказы по итогу и причине.",
		}, []string{"outcome", "reason"}),
		active: factory.NewGauge(prometheus.GaugeOpts{
			Name: "smoothie_workflows_active",
			Help: "Выполняющиеся workflow.",
		}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "smoothie_order_duration_seconds",
			Help:    "Время от приёма заказа до итога.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 15, 30, 60},
		}, []string{"outcome"}),
		signals: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "smoothie_completion_signals_total",
			Help: "Сигналы завершения: resolved — разбудили workflow, ignored — повторные и запоздавшие.",
		}, []string{"result"}),
	}
}

// observePending экспортирует число ожидающих continuation.
func (m *Metrics) observePending(pending func() int) {
	promauto.With(m.reg).NewGaugeFunc(prometheus.GaugeOpts{
		Name: "smoothie_continuations_pending",
		Help: "Continuation, ожидающие сигнала или таймаута.",
	}, func() float64 { return float64(pending()) })
}

func (m *Metrics) orderSubmitted() {
	m.submitted.Inc()
}

func (m *Metrics) orderFinished(order *domain.WorkOrder) {
	m.completed.WithLabelValues(string(order.Outcome), reasonLabel(order.Reason)).Inc()
	m.duration.WithLabelValues(string(order.Outcome)).Observe(order.Duration().Seconds())
}

func (m *Metrics) signal(resolved bool) {
	if resolved {
		m.signals.WithLabelValues("resolved").Inc()
		return
	}
	m.signals.WithLabelValues("ignored").Inc()
}

func (m *Metrics) workflowStarted() func() {
	m.active.Inc()
	return m.active.Dec
}

func reasonLabel(r domain.FailureReason) string {
	if r == domain.ReasonNone {
		return "none"
	}
	return string(r)
}
