package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal: запросы к HTTP-сервисам (склад, корзина).
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"service", "method", "endpoint", "status"})

	// HTTPRequestDuration: длительность обработки HTTP-запросов.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "checkout_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"service", "method", "endpoint"})

	// CircuitBreakerState: состояние circuit breaker (0=closed, 1=open, 2=half-open).
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "checkout_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"client", "circuit"})

	// CircuitBreakerFailures: вызовы, завершившиеся ошибкой через breaker.
	CircuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_circuit_breaker_failures_total",
		Help: "Total number of calls that failed through a circuit breaker",
	}, []string{"client", "circuit"})

	// DownstreamTasks: размер очереди сверки по состояниям.
	DownstreamTasks = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "checkout_downstream_tasks",
		Help: "Downstream reconciliation tasks grouped by status",
	}, []string{"status"})
)

// GinMiddleware собирает метрики HTTP-запросов для gin-роутера.
func GinMiddleware(service string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		HTTPRequestsTotal.WithLabelValues(service, c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(service, c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}
