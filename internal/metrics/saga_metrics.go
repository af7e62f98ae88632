package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Операции саги, используемые как значение label "operation".
const (
	OperationPlaceOrder      = "place_order"
	OperationFinalizePayment = "finalize_payment"
	OperationProcessPayment  = "process_payment"
)

// SagaMetrics содержит метрики для saga операций.
type SagaMetrics struct {
	sagaStarted   *prometheus.CounterVec
	sagaCompleted *prometheus.CounterVec
	sagaFailed    *prometheus.CounterVec

	sagaDuration *prometheus.HistogramVec
	stepDuration *prometheus.HistogramVec

	// Шаги, результат которых передан в очередь сверки.
	reconciliations *prometheus.CounterVec
	// Повторные финализации уже подтверждённого заказа.
	finalizeReplays prometheus.Counter
	payments        *prometheus.CounterVec

	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter

	activeSagas prometheus.Gauge
}

// NewSagaMetrics создаёт метрики саг в глобальном реестре Prometheus.
func NewSagaMetrics() *SagaMetrics {
	return NewSagaMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewSagaMetricsWithRegisterer создаёт метрики в указанном реестре (в тестах: отдельный registry).
func NewSagaMetricsWithRegisterer(registerer prometheus.Registerer) *SagaMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &SagaMetrics{
		sagaStarted: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "checkout_saga_started_total",
			Help: "Total number of saga operations started",
		}, []string{"operation"}),
		sagaCompleted: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "checkout_saga_completed_total",
			Help: "Total number of saga operations completed successfully",
		}, []string{"operation"}),
		sagaFailed: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "checkout_saga_failed_total",
			Help: "Total number of saga operations failed, by the step that failed",
		}, []string{"operation", "step"}),
		sagaDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "checkout_saga_duration_seconds",
			Help:    "Duration of saga operations in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		stepDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "checkout_saga_step_duration_seconds",
			Help:    "Duration of individual saga steps in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"step"}),
		reconciliations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "checkout_saga_reconciliation_total",
			Help: "Downstream side effects that failed during a saga and were queued for reconciliation",
		}, []string{"step"}),
		finalizeReplays: registerCounter(registerer, prometheus.CounterOpts{
			Name: "checkout_finalize_replays_total",
			Help: "Finalize calls for orders that were already finalized",
		}),
		payments: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "checkout_payments_total",
			Help: "Payment attempts grouped by resulting status",
		}, []string{"status"}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "checkout_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "checkout_outbox_events_total",
			Help: "Total number of outbox events enqueued",
		}),
		activeSagas: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "checkout_active_sagas",
			Help: "Number of currently active saga operations",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordSagaStarted увеличивает счётчик запущенных саг и число активных.
func (m *SagaMetrics) RecordSagaStarted(operation string) {
	m.sagaStarted.WithLabelValues(operation).Inc()
	m.activeSagas.Inc()
}

// RecordSagaCompleted фиксирует успешное завершение саги.
func (m *SagaMetrics) RecordSagaCompleted(operation string, duration time.Duration) {
	m.sagaCompleted.WithLabelValues(operation).Inc()
	m.finish(operation, duration)
}

// RecordSagaFailed фиксирует неудачу саги на шаге step.
func (m *SagaMetrics) RecordSagaFailed(operation, step string, duration time.Duration) {
	m.sagaFailed.WithLabelValues(operation, step).Inc()
	m.finish(operation, duration)
}

func (m *SagaMetrics) finish(operation string, duration time.Duration) {
	m.activeSagas.Dec()
	m.sagaDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordStepDuration записывает время выполнения шага саги.
func (m *SagaMetrics) RecordStepDuration(step string, duration time.Duration) {
	m.stepDuration.WithLabelValues(step).Observe(duration.Seconds())
}

// RecordReconciliation: побочный эффект шага step не выполнен и ушёл в очередь сверки.
func (m *SagaMetrics) RecordReconciliation(step string) {
	m.reconciliations.WithLabelValues(step).Inc()
}

// RecordFinalizeReplay: финализация пришла для уже финализированного заказа.
func (m *SagaMetrics) RecordFinalizeReplay() {
	m.finalizeReplays.Inc()
}

// RecordPayment увеличивает счётчик платежей с итоговым статусом.
func (m *SagaMetrics) RecordPayment(status string) {
	m.payments.WithLabelValues(status).Inc()
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *SagaMetrics) RecordTimelineEvent() {
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *SagaMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}
