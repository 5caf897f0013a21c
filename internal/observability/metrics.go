package observability

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/candidate-intel-backend/internal/platform/envutil"
	"github.com/yungbote/candidate-intel-backend/internal/platform/logger"
)

type collector interface {
	WritePrometheus(w io.Writer) error
}

type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec
	apiInflight *Gauge

	llmRequests *CounterVec
	llmLatency  *HistogramVec
	llmTokens   *CounterVec

	vectorOps     *CounterVec
	vectorLatency *HistogramVec

	jobRuns    *CounterVec
	jobLatency *HistogramVec
	queueDepth *GaugeVec

	chatStreams *CounterVec

	pgStats   *GaugeVec
	redisUp   *Gauge
	redisPing *Gauge

	all []collector
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", false)
}

func Current() *Metrics {
	return instance
}

func scrapeInterval() time.Duration {
	secs := envutil.PositiveInt("METRICS_SCRAPE_INTERVAL_SECONDS", 15)
	return time.Duration(secs) * time.Second
}

// Init builds the process-wide registry. Returns nil when METRICS_ENABLED is off;
// every method is nil-safe so callers never branch on it.
func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = newMetrics()
		if log != nil {
			log.Info("metrics enabled")
		}
	})
	return instance
}

func newMetrics() *Metrics {
	latency := []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30}
	m := &Metrics{
		apiRequests: NewCounterVec("ci_api_requests_total", "Total API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency:  NewHistogramVec("ci_api_request_duration_seconds", "API request latency in seconds.", []string{"method", "route", "status"}, latency),
		apiInflight: NewGauge("ci_api_inflight_requests", "In-flight API requests."),

		llmRequests: NewCounterVec("ci_llm_requests_total", "Model provider requests by model/endpoint/status.", []string{"model", "endpoint", "status"}),
		llmLatency:  NewHistogramVec("ci_llm_request_duration_seconds", "Model provider latency in seconds.", []string{"model", "endpoint", "status"}, []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120}),
		llmTokens:   NewCounterVec("ci_llm_tokens_total", "Model provider tokens by model/kind.", []string{"model", "kind"}),

		vectorOps:     NewCounterVec("ci_vector_store_operations_total", "Vector index operations by provider/operation/status.", []string{"provider", "operation", "status"}),
		vectorLatency: NewHistogramVec("ci_vector_store_operation_duration_seconds", "Vector index latency in seconds.", []string{"provider", "operation", "status"}, latency),

		jobRuns:    NewCounterVec("ci_job_runs_total", "Finished background jobs by type/status.", []string{"job_type", "status"}),
		jobLatency: NewHistogramVec("ci_job_run_duration_seconds", "Background job duration in seconds.", []string{"job_type", "status"}, []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300}),
		queueDepth: NewGaugeVec("ci_job_queue_depth", "Job rows by status.", []string{"status"}),

		chatStreams: NewCounterVec("ci_chat_streams_total", "Chat streams by outcome.", []string{"outcome"}),

		pgStats:   NewGaugeVec("ci_db_pool", "database/sql pool stats.", []string{"stat"}),
		redisUp:   NewGauge("ci_redis_up", "Redis reachability (1/0)."),
		redisPing: NewGauge("ci_redis_ping_seconds", "Redis ping latency in seconds."),
	}
	m.all = []collector{
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.llmRequests, m.llmLatency, m.llmTokens,
		m.vectorOps, m.vectorLatency,
		m.jobRuns, m.jobLatency, m.queueDepth,
		m.chatStreams,
		m.pgStats, m.redisUp, m.redisPing,
	}
	return m
}

func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           http.HandlerFunc(m.WriteHTTP),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Error("metrics server failed", "error", err, "addr", addr)
			}
		}
	}()
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	for _, c := range m.all {
		if err := c.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	method = orDefault(method, "UNKNOWN")
	route = orDefault(route, "unknown")
	status = orDefault(status, "0")
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route, status)
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) ObserveLLMRequest(model, endpoint, status string, dur time.Duration, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	model = orDefault(model, "unknown")
	endpoint = orDefault(endpoint, "unknown")
	status = orDefault(status, "0")
	m.llmRequests.Inc(model, endpoint, status)
	if dur > 0 {
		m.llmLatency.Observe(dur.Seconds(), model, endpoint, status)
	}
	if inputTokens > 0 {
		m.llmTokens.Add(float64(inputTokens), model, "input")
	}
	if outputTokens > 0 {
		m.llmTokens.Add(float64(outputTokens), model, "output")
	}
}

func (m *Metrics) ObserveVectorStoreOperation(provider, operation, status string, dur time.Duration) {
	if m == nil {
		return
	}
	provider = orDefault(provider, "unknown")
	operation = orDefault(operation, "unknown")
	status = orDefault(status, "unknown")
	m.vectorOps.Inc(provider, operation, status)
	m.vectorLatency.Observe(dur.Seconds(), provider, operation, status)
}

func (m *Metrics) ObserveJob(jobType, status string, dur time.Duration) {
	if m == nil {
		return
	}
	jobType = orDefault(jobType, "unknown")
	status = orDefault(status, "unknown")
	m.jobRuns.Inc(jobType, status)
	m.jobLatency.Observe(dur.Seconds(), jobType, status)
}

// ObserveChatStream counts terminal chat outcomes: completed, failed, canceled,
// grounding_missing.
func (m *Metrics) ObserveChatStream(outcome string) {
	if m == nil {
		return
	}
	m.chatStreams.Inc(orDefault(outcome, "unknown"))
}

func (m *Metrics) StartDBCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sqlDB, err := db.DB()
				if err != nil {
					if log != nil {
						log.Warn("metrics: db stats unavailable", "error", err)
					}
					continue
				}
				stats := sqlDB.Stats()
				m.pgStats.Set(float64(stats.OpenConnections), "open_connections")
				m.pgStats.Set(float64(stats.InUse), "in_use")
				m.pgStats.Set(float64(stats.Idle), "idle")
				m.pgStats.Set(float64(stats.WaitCount), "wait_count")
				m.pgStats.Set(stats.WaitDuration.Seconds(), "wait_duration_seconds")
			}
		}
	}()
}

func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	interval := scrapeInterval()
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = rdb.Close()
				return
			case <-ticker.C:
				start := time.Now()
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
		}
	}()
}

// StartJobQueueCollector samples job_run counts per status. table is passed in
// so this package stays free of domain imports.
func (m *Metrics) StartJobQueueCollector(ctx context.Context, log *logger.Logger, db *gorm.DB, table string) {
	if m == nil || db == nil || strings.TrimSpace(table) == "" {
		return
	}
	interval := scrapeInterval()
	statuses := []string{"queued", "running", "succeeded", "failed"}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, s := range statuses {
					m.queueDepth.Set(0, s)
				}
				var rows []struct {
					Status string
					Count  int64
				}
				if err := db.WithContext(ctx).
					Table(table).
					Select("status, count(*) as count").
					Group("status").
					Scan(&rows).Error; err != nil {
					if log != nil {
						log.Warn("metrics: job queue depth query failed", "error", err)
					}
					continue
				}
				for _, row := range rows {
					m.queueDepth.Set(float64(row.Count), orDefault(row.Status, "unknown"))
				}
			}
		}
	}()
}

func orDefault(v, def string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	return v
}
