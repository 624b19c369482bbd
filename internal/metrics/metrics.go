// Package metrics содержит prometheus метрики сервиса склада.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Epky/GA-Enterprice-sub001/internal/repository"
)

const namespace = "stock"

// Metrics регистрирует и обновляет метрики в собственном registry
// (без глобального prometheus.DefaultRegisterer, чтобы тесты не конфликтовали).
type Metrics struct {
	registry *prometheus.Registry

	operations       *prometheus.CounterVec
	movements        *prometheus.CounterVec
	movementQuantity *prometheus.CounterVec
	outboxEvents     *prometheus.CounterVec
	consumerMessages *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

// New создаёт Metrics и регистрирует все коллекторы
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Ledger operations by operation and result.",
		}, []string{"op", "result"}),
		movements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "movements_total",
			Help:      "Recorded stock movements by kind.",
		}, []string{"kind"}),
		movementQuantity: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "movement_quantity_total",
			Help:      "Absolute quantity moved by movement kind.",
		}, []string{"kind"}),
		outboxEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "events_total",
			Help:      "Outbox events processed by the dispatcher by result.",
		}, []string{"result"}),
		consumerMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consumer",
			Name:      "messages_total",
			Help:      "Consumed Kafka messages by topic and result.",
		}, []string{"topic", "result"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route and status code.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "code"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.operations,
		m.movements,
		m.movementQuantity,
		m.outboxEvents,
		m.consumerMessages,
		m.httpDuration,
	)
	return m
}

// ObserveOperation учитывает результат операции журнала
func (m *Metrics) ObserveOperation(op, result string) {
	m.operations.WithLabelValues(op, result).Inc()
}

// ObserveMovement учитывает записанное движение
func (m *Metrics) ObserveMovement(kind repository.MovementKind, delta int32) {
	if delta < 0 {
		delta = -delta
	}
	m.movements.WithLabelValues(string(kind)).Inc()
	m.movementQuantity.WithLabelValues(string(kind)).Add(float64(delta))
}

// ObserveOutboxEvent учитывает результат публикации outbox события (sent/failed)
func (m *Metrics) ObserveOutboxEvent(result string) {
	m.outboxEvents.WithLabelValues(result).Inc()
}

// ObserveConsumedMessage учитывает обработанное сообщение Kafka (processed/duplicate/dlq/retry)
func (m *Metrics) ObserveConsumedMessage(topic, result string) {
	m.consumerMessages.WithLabelValues(topic, result).Inc()
}

// Handler отдаёт метрики в формате prometheus
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// HTTPMiddleware измеряет время обработки запросов. route - шаблон chi ("/reservations/{id}"),
// чтобы id не раздували кардинальность.
func (m *Metrics) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		m.httpDuration.
			WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).
			Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
