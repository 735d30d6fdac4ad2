package observability

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	types "github.com/MartinPaviot/Nareo-sub004/internal/domain"
	"github.com/MartinPaviot/Nareo-sub004/internal/platform/logger"
)

// Metrics holds the Prometheus collectors of one process. All methods are
// no-ops on a nil receiver so callers never check Enabled themselves.
type Metrics struct {
	registry *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge

	llmRequests *prometheus.CounterVec
	llmLatency  *prometheus.HistogramVec
	llmTokens   *prometheus.CounterVec

	genCallLatency  *prometheus.HistogramVec
	genRuns         *prometheus.CounterVec
	genItems        *prometheus.CounterVec
	genChapterFails prometheus.Counter

	streamsActive *prometheus.GaugeVec
	streamEvents  *prometheus.CounterVec

	jobDuration *prometheus.HistogramVec
	queueDepth  *prometheus.GaugeVec
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	v := strings.TrimSpace(os.Getenv("METRICS_ENABLED"))
	if v == "" {
		return false
	}
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

func Current() *Metrics {
	return instance
}

// Init builds the process-wide collectors when METRICS_ENABLED is set.
func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = New()
		if log != nil {
			log.Info("metrics enabled")
		}
	})
	return instance
}

// New returns collectors bound to a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nareo_api_requests_total",
			Help: "Total API requests by method/route/status.",
		}, []string{"method", "route", "status"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nareo_api_request_duration_seconds",
			Help:    "API request latency in seconds by method/route/status.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"method", "route", "status"}),
		apiInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nareo_api_inflight_requests",
			Help: "In-flight API requests.",
		}),
		llmRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nareo_llm_requests_total",
			Help: "LLM requests by provider/model/status.",
		}, []string{"provider", "model", "status"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nareo_llm_request_duration_seconds",
			Help:    "LLM request latency in seconds by provider/model/status.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"provider", "model", "status"}),
		llmTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nareo_llm_tokens_total",
			Help: "LLM tokens by provider/model/direction.",
		}, []string{"provider", "model", "direction"}),
		genCallLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nareo_generation_call_duration_seconds",
			Help:    "Generation backend call latency by provider/item type/status.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300},
		}, []string{"provider", "type", "status"}),
		genRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nareo_generation_runs_total",
			Help: "Generation runs by terminal status.",
		}, []string{"status"}),
		genItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nareo_generation_items_total",
			Help: "Generated items by outcome (accepted or the drop reason).",
		}, []string{"outcome"}),
		genChapterFails: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nareo_generation_chapter_failures_total",
			Help: "Chapters skipped because generation failed.",
		}),
		streamsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nareo_sse_streams_active",
			Help: "Open SSE streams by mode.",
		}, []string{"mode"}),
		streamEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nareo_sse_events_total",
			Help: "SSE events written by mode/event.",
		}, []string{"mode", "event"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nareo_job_duration_seconds",
			Help:    "Background job duration in seconds by type/status.",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600, 1200},
		}, []string{"job_type", "status"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nareo_job_queue_depth",
			Help: "Job runs by status.",
		}, []string{"status"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.llmRequests, m.llmLatency, m.llmTokens,
		m.genCallLatency, m.genRuns, m.genItems, m.genChapterFails,
		m.streamsActive, m.streamEvents,
		m.jobDuration, m.queueDepth,
	)
	return m
}

// Handler serves the scrape endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	m.Handler().ServeHTTP(w, r)
}

// Registry exposes the underlying registry (tests, custom collectors).
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	method = orUnknown(method, "UNKNOWN")
	route = orUnknown(route, "unknown")
	status = orUnknown(status, "0")
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiLatency.WithLabelValues(method, route, status).Observe(dur.Seconds())
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

func (m *Metrics) ObserveLLMRequest(provider, model, status string, dur time.Duration, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	provider = orUnknown(provider, "unknown")
	model = orUnknown(model, "unknown")
	status = orUnknown(status, "0")
	m.llmRequests.WithLabelValues(provider, model, status).Inc()
	if dur > 0 {
		m.llmLatency.WithLabelValues(provider, model, status).Observe(dur.Seconds())
	}
	if inputTokens > 0 {
		m.llmTokens.WithLabelValues(provider, model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.llmTokens.WithLabelValues(provider, model, "output").Add(float64(outputTokens))
	}
}

func (m *Metrics) ObserveGenerationCall(provider, itemType, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.genCallLatency.WithLabelValues(orUnknown(provider, "unknown"), orUnknown(itemType, "unknown"), orUnknown(status, "unknown")).Observe(dur.Seconds())
}

func (m *Metrics) IncGenerationRun(status string) {
	if m == nil {
		return
	}
	m.genRuns.WithLabelValues(orUnknown(status, "unknown")).Inc()
}

// AddGenerationItems counts items by outcome: "accepted" or a drop reason
// such as "administrative", "duplicate", "parse" or "persist".
func (m *Metrics) AddGenerationItems(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.genItems.WithLabelValues(orUnknown(outcome, "unknown")).Add(float64(n))
}

func (m *Metrics) IncChapterFailure() {
	if m == nil {
		return
	}
	m.genChapterFails.Inc()
}

func (m *Metrics) StreamOpened(mode string) {
	if m == nil {
		return
	}
	m.streamsActive.WithLabelValues(orUnknown(mode, "unknown")).Inc()
}

func (m *Metrics) StreamClosed(mode string) {
	if m == nil {
		return
	}
	m.streamsActive.WithLabelValues(orUnknown(mode, "unknown")).Dec()
}

func (m *Metrics) IncStreamEvent(mode, event string) {
	if m == nil {
		return
	}
	m.streamEvents.WithLabelValues(orUnknown(mode, "unknown"), orUnknown(event, "unknown")).Inc()
}

func (m *Metrics) ObserveJob(jobType, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(orUnknown(jobType, "unknown"), orUnknown(status, "unknown")).Observe(dur.Seconds())
}

// StartJobQueueCollector refreshes the queue depth gauge until ctx is done.
func (m *Metrics) StartJobQueueCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	interval := scrapeInterval()
	statuses := []string{types.JobStatusQueued, types.JobStatusRunning, types.JobStatusSucceeded, types.JobStatusFailed, types.JobStatusCanceled}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, s := range statuses {
					m.queueDepth.WithLabelValues(s).Set(0)
				}
				var rows []struct {
					Status string
					Count  int64
				}
				if err := db.WithContext(ctx).
					Model(&types.JobRun{}).
					Select("status, count(*) as count").
					Group("status").
					Scan(&rows).Error; err != nil {
					if log != nil {
						log.Warn("metrics: job queue depth query failed", "error", err)
					}
					continue
				}
				for _, row := range rows {
					m.queueDepth.WithLabelValues(orUnknown(row.Status, "unknown")).Set(float64(row.Count))
				}
			}
		}
	}()
}

func scrapeInterval() time.Duration {
	v := strings.TrimSpace(os.Getenv("METRICS_SCRAPE_INTERVAL_SECONDS"))
	if v == "" {
		return 10 * time.Second
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 10 * time.Second
	}
	return time.Duration(n) * time.Second
}

func orUnknown(v, fallback string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return fallback
	}
	return v
}
