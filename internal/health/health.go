// Package health отдаёт /healthz, /readyz и /livez для сервисов checkout.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"
)

// DefaultCheckTimeout ограничивает одну проверку, если запрос не несёт более короткого дедлайна.
const DefaultCheckTimeout = 2 * time.Second

// Status: итог проверки компонента или сервиса целиком.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// ErrDegraded помечает ошибку проверки, при которой сервис продолжает принимать трафик.
var ErrDegraded = errors.New("degraded")

// Check: результат одной проверки.
type Check struct {
	Name       string `json:"name"`
	Status     Status `json:"status"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Response: тело /healthz.
type Response struct {
	Status        Status           `json:"status"`
	Timestamp     time.Time        `json:"timestamp"`
	Checks        map[string]Check `json:"checks,omitempty"`
	Version       string           `json:"version,omitempty"`
	UptimeSeconds int64            `json:"uptime_seconds"`
}

// Checker проверяет одну зависимость сервиса.
type Checker interface {
	Check(ctx context.Context) Check
}

// Handler собирает проверки сервиса и выполняет их параллельно на каждый запрос.
type Handler struct {
	mu       sync.RWMutex
	checkers map[string]Checker
	version  string
	started  time.Time
	timeout  time.Duration
}

func NewHandler(version string) *Handler {
	return &Handler{
		checkers: make(map[string]Checker),
		version:  version,
		started:  time.Now(),
		timeout:  DefaultCheckTimeout,
	}
}

// RegisterChecker добавляет или заменяет проверку с именем name.
func (h *Handler) RegisterChecker(name string, checker Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[name] = checker
}

// Evaluate выполняет все проверки и сводит их к общему статусу: худший из статусов компонентов.
func (h *Handler) Evaluate(ctx context.Context) Response {
	h.mu.RLock()
	names := make([]string, 0, len(h.checkers))
	for name := range h.checkers {
		names = append(names, name)
	}
	checkers := make([]Checker, len(names))
	sort.Strings(names)
	for i, name := range names {
		checkers[i] = h.checkers[name]
	}
	h.mu.RUnlock()

	results := make([]Check, len(checkers))
	var wg sync.WaitGroup
	for i, checker := range checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
			defer cancel()
			results[i] = checker.Check(checkCtx)
		}()
	}
	wg.Wait()

	resp := Response{
		Status:        StatusHealthy,
		Timestamp:     time.Now().UTC(),
		Checks:        make(map[string]Check, len(results)),
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
	}
	for i, check := range results {
		resp.Checks[names[i]] = check
		resp.Status = worse(resp.Status, check.Status)
	}
	return resp
}

// ServeHTTP отвечает 503 только при unhealthy: degraded сервис остаётся в балансировке.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := h.Evaluate(r.Context())
	code := http.StatusOK
	if resp.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}

// ReadinessHandler отвечает "ready", пока ни одна проверка не unhealthy.
func (h *Handler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if h.Evaluate(r.Context()).Status == StatusUnhealthy {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	_, _ = w.Write([]byte("ready"))
}

// LivenessHandler отвечает 200, пока процесс обслуживает HTTP.
func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("ok"))
}

func worse(a, b Status) Status {
	rank := map[Status]int{StatusHealthy: 0, StatusDegraded: 1, StatusUnhealthy: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// SimpleChecker превращает функцию в проверку. nil означает healthy, ошибка с ErrDegraded даёт
// degraded, любая другая ошибка даёт unhealthy.
type SimpleChecker struct {
	name  string
	probe func(ctx context.Context) error
}

func NewSimpleChecker(name string, probe func(ctx context.Context) error) *SimpleChecker {
	return &SimpleChecker{name: name, probe: probe}
}

func (c *SimpleChecker) Check(ctx context.Context) Check {
	start := time.Now()
	err := c.probe(ctx)
	check := Check{Name: c.name, Status: StatusHealthy, DurationMs: time.Since(start).Milliseconds()}
	switch {
	case err == nil:
	case errors.Is(err, ErrDegraded):
		check.Status, check.Message = StatusDegraded, err.Error()
	default:
		check.Status, check.Message = StatusUnhealthy, err.Error()
	}
	return check
}

// NewThresholdChecker считает компонент degraded, когда наблюдаемое значение достигает
// threshold. Так отслеживаются backlog outbox и мёртвые задачи сверки. threshold<=0 отключает порог.
func NewThresholdChecker(name string, threshold int, observe func(ctx context.Context) (int, error)) *SimpleChecker {
	return NewSimpleChecker(name, func(ctx context.Context) error {
		value, err := observe(ctx)
		if err != nil {
			return err
		}
		if threshold > 0 && value >= threshold {
			return fmt.Errorf("%w: %s is %d, threshold %d", ErrDegraded, name, value, threshold)
		}
		return nil
	})
}
