// Package httpx: общая обвязка gin для HTTP-сервисов склада и корзины:
// request id, логирование, метрики, health-эндпоинты и единый формат ошибок.
package httpx

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	checkoutv1 "github.com/vladislavdragonenkov/checkout/api/checkout/v1"
	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/health"
	"github.com/vladislavdragonenkov/checkout/internal/metrics"
)

// RequestIDHeader: заголовок корреляции запросов между сервисами.
const RequestIDHeader = "X-Request-ID"

const requestIDKey = "request_id"

// NewRouter создаёт gin.Engine с recovery, request id, логированием и метриками.
func NewRouter(service string, logger *log.Entry) *gin.Engine {
	if logger == nil {
		logger = log.WithField("component", service)
	}
	router := gin.New()
	router.Use(gin.Recovery(), RequestID(), Logger(logger), metrics.GinMiddleware(service))
	return router
}

// RegisterOps подключает /metrics, /healthz, /livez и /readyz.
func RegisterOps(router gin.IRouter, healthHandler *health.Handler) {
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", gin.WrapH(healthHandler))
	router.GET("/livez", gin.WrapF(health.LivenessHandler))
	router.GET("/readyz", gin.WrapF(healthHandler.ReadinessHandler))
}

// RequestID проставляет X-Request-ID, если клиент его не передал.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// Logger пишет одну запись на запрос.
func Logger(logger *log.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := logger.WithFields(log.Fields{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  c.GetString(requestIDKey),
		})
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			entry.Warn("http request failed")
		default:
			entry.Debug("http request")
		}
	}
}

// WriteError отвечает конвертом ошибки с HTTP-кодом по классу доменной ошибки.
func WriteError(c *gin.Context, err error) {
	status, code := classify(err)
	resp := checkoutv1.NewErrorResponse(code, err.Error())
	resp.RequestID = c.GetString(requestIDKey)
	c.AbortWithStatusJSON(status, resp)
}

// BadRequest отвечает 400 с заданным сообщением.
func BadRequest(c *gin.Context, message string) {
	resp := checkoutv1.NewErrorResponse(checkoutv1.ErrCodeInvalidRequest, message)
	resp.RequestID = c.GetString(requestIDKey)
	c.AbortWithStatusJSON(http.StatusBadRequest, resp)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInsufficientLotQuantity), errors.Is(err, domain.ErrInsufficientStock):
		return http.StatusConflict, checkoutv1.ErrCodeInsufficientQuantity
	case errors.Is(err, domain.ErrLotExists):
		return http.StatusConflict, checkoutv1.ErrCodeConflict
	case errors.Is(err, domain.ErrLotNotFound):
		return http.StatusNotFound, checkoutv1.ErrCodeNotFound
	case errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrItemRequired),
		errors.Is(err, domain.ErrItemPriceInvalid),
		errors.Is(err, domain.ErrUserRequired):
		return http.StatusBadRequest, checkoutv1.ErrCodeInvalidRequest
	case domain.IsRetryable(err):
		return http.StatusServiceUnavailable, checkoutv1.ErrCodeUnavailable
	default:
		return http.StatusInternalServerError, checkoutv1.ErrCodeInternal
	}
}
