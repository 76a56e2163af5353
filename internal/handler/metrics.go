package handler

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"github.com/mathieu-neron/chanwatch/internal/control"
	"github.com/mathieu-neron/chanwatch/internal/middleware"
	"github.com/mathieu-neron/chanwatch/internal/model"
	"github.com/mathieu-neron/chanwatch/internal/service"
)

// Metrics holds all Prometheus collectors for the watcher.
var Metrics = struct {
	CommandsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge
	StatsFlushes     prometheus.CounterFunc
	DBPoolActive     prometheus.GaugeFunc
	DBPoolIdle       prometheus.GaugeFunc
}{}

// InitMetrics registers all Prometheus metrics. Call once at startup.
// workers feeds the per-channel collector; flushes reports completed stats flushes.
func InitMetrics(workers func() []model.WorkerState, flushes func() int, pool *pgxpool.Pool) {
	Metrics.CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chanwatch_commands_total",
			Help: "Control commands executed, by command and result.",
		},
		[]string{"command", "result"},
	)

	Metrics.RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chanwatch_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds, by route and method.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method", "status"},
	)

	Metrics.RequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chanwatch_requests_in_flight",
			Help: "Number of HTTP requests currently being served.",
		},
	)

	Metrics.StatsFlushes = prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "chanwatch_stats_flushes_total",
			Help: "Completed stats flushes.",
		},
		func() float64 { return float64(flushes()) },
	)

	// DB pool gauges read live stats from pgxpool
	if pool != nil {
		Metrics.DBPoolActive = prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "chanwatch_db_connection_pool_active",
				Help: "Number of active database connections.",
			},
			func() float64 {
				return float64(pool.Stat().AcquiredConns())
			},
		)

		Metrics.DBPoolIdle = prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "chanwatch_db_connection_pool_idle",
				Help: "Number of idle database connections.",
			},
			func() float64 {
				return float64(pool.Stat().IdleConns())
			},
		)

		prometheus.MustRegister(Metrics.DBPoolActive)
		prometheus.MustRegister(Metrics.DBPoolIdle)
	}

	prometheus.MustRegister(
		Metrics.CommandsTotal,
		Metrics.RequestDuration,
		Metrics.RequestsInFlight,
		Metrics.StatsFlushes,
		NewWorkerCollector(workers),
	)
}

var (
	workersDesc = prometheus.NewDesc(
		"chanwatch_workers", "Workers currently in the table.", nil, nil)
	workerPointsDesc = prometheus.NewDesc(
		"chanwatch_worker_points", "Accrued points per channel, by kind.",
		[]string{"channel", "kind"}, nil)
	workerRetriesDesc = prometheus.NewDesc(
		"chanwatch_worker_retry_count", "Consecutive failures of the channel's worker.",
		[]string{"channel"}, nil)
	workerStateDesc = prometheus.NewDesc(
		"chanwatch_worker_state", "1 for the worker's current state.",
		[]string{"channel", "state"}, nil)
)

// WorkerCollector reads worker snapshots at scrape time.
type WorkerCollector struct {
	source func() []model.WorkerState
}

func NewWorkerCollector(source func() []model.WorkerState) *WorkerCollector {
	return &WorkerCollector{source: source}
}

func (wc *WorkerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- workersDesc
	ch <- workerPointsDesc
	ch <- workerRetriesDesc
	ch <- workerStateDesc
}

func (wc *WorkerCollector) Collect(ch chan<- prometheus.Metric) {
	states := wc.source()
	ch <- prometheus.MustNewConstMetric(workersDesc, prometheus.GaugeValue, float64(len(states)))
	for _, s := range states {
		ch <- prometheus.MustNewConstMetric(workerPointsDesc, prometheus.GaugeValue, s.ViewingPoints, s.Channel, "viewing")
		ch <- prometheus.MustNewConstMetric(workerPointsDesc, prometheus.GaugeValue, s.ClaimedPoints, s.Channel, "claimed")
		ch <- prometheus.MustNewConstMetric(workerRetriesDesc, prometheus.GaugeValue, float64(s.RetryCount), s.Channel)
		ch <- prometheus.MustNewConstMetric(workerStateDesc, prometheus.GaugeValue, 1, s.Channel, s.State.String())
	}
}

// recordCommand counts a control command outcome. No-op before InitMetrics.
func recordCommand(kind control.Kind, err error) {
	if Metrics.CommandsTotal == nil {
		return
	}
	Metrics.CommandsTotal.WithLabelValues(kind.String(), commandResult(err)).Inc()
}

func commandResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, service.ErrNotReady):
		return "not_ready"
	case control.IsUserError(err):
		return "rejected"
	default:
		return "error"
	}
}

// MetricsMiddleware records request duration and in-flight count for Prometheus.
func MetricsMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		// Don't instrument the /metrics endpoint itself
		if c.Path() == "/metrics" {
			return c.Next()
		}

		// Copy path and method into owned strings BEFORE c.Next(). Fiber
		// returns slices backed by the fasthttp buffer which can be reused
		// or overwritten by handlers (especially fasthttpadaptor).
		path := string([]byte(c.Path()))
		method := string([]byte(c.Method()))
		endpoint := middleware.RoutePattern(path)

		Metrics.RequestsInFlight.Inc()
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		code := c.Response().StatusCode()
		status := strconv.Itoa(code)
		if code == fiber.StatusNotFound && !knownRoute(endpoint) {
			endpoint = "unmatched"
		}

		Metrics.RequestDuration.WithLabelValues(endpoint, method, status).Observe(duration)
		Metrics.RequestsInFlight.Dec()

		return err
	}
}

func knownRoute(endpoint string) bool {
	switch endpoint {
	case "/health", "/health/ready", "/help", "/status", "/list", "/exit", "/stats", "/stats/history",
		"/status/:channel", "/add/:channel", "/remove/:channel", "/change/:channel":
		return true
	}
	return false
}

// MetricsHandler serves the Prometheus /metrics endpoint via Fiber.
func MetricsHandler() fiber.Handler {
	httpHandler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	return func(c fiber.Ctx) error {
		httpHandler(c.RequestCtx())
		return nil
	}
}
