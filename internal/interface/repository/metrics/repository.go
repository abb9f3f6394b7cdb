package metrics

import (
	"encoding/json"
	"os"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"linkpreview/internal/domain"
)

const namespace = "linkpreview"

// Repository はメトリクスのリポジトリ実装.
// JSONスナップショット用のアトミックカウンタと、Prometheus用のコレクタを併せ持つ.
type Repository struct {
	metricsFile string
	startTime   time.Time

	inFlight     atomic.Int64
	requests     atomic.Int64
	bytes        atomic.Int64
	cacheHits    atomic.Int64
	cacheMisses  atomic.Int64
	rateLimited  atomic.Int64
	invalidInput atomic.Int64
	fetchErrors  map[domain.FetchErrorKind]*atomic.Int64

	registry        *prometheus.Registry
	promRequests    prometheus.Counter
	promCache       *prometheus.CounterVec
	promRateLimited prometheus.Counter
	promInvalid     prometheus.Counter
	promFetchErrors *prometheus.CounterVec
	promBytes       prometheus.Counter
	promInFlight    prometheus.Gauge
}

// インターフェースの実装を検証
var _ domain.MetricsCollector = (*Repository)(nil)

// New は新しいRepositoryインスタンスを作成. metricsFile が空ならファイル保存しない.
func New(metricsFile string) *Repository {
	r := &Repository{
		metricsFile: metricsFile,
		startTime:   time.Now(),
		fetchErrors: make(map[domain.FetchErrorKind]*atomic.Int64, len(domain.FetchErrorKinds)),
		registry:    prometheus.NewRegistry(),
		promRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of preview requests received.",
		}),
		promCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Result cache lookups by outcome.",
		}, []string{"result"}),
		promRateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		}),
		promInvalid: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invalid_input_total",
			Help:      "Requests rejected because of a missing or invalid url parameter.",
		}),
		promFetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_errors_total",
			Help:      "Failed outbound fetches by cause.",
		}, []string{"kind"}),
		promBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetched_bytes_total",
			Help:      "Bytes of HTML received from fetched pages.",
		}),
		promInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "in_flight_fetches",
			Help:      "Outbound fetches currently in progress.",
		}),
	}

	for _, kind := range domain.FetchErrorKinds {
		r.fetchErrors[kind] = new(atomic.Int64)
		r.promFetchErrors.WithLabelValues(string(kind))
	}
	r.promCache.WithLabelValues("hit")
	r.promCache.WithLabelValues("miss")

	r.registry.MustRegister(
		r.promRequests,
		r.promCache,
		r.promRateLimited,
		r.promInvalid,
		r.promFetchErrors,
		r.promBytes,
		r.promInFlight,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return r
}

// Registry はPrometheusのレジストリを返す
func (r *Repository) Registry() *prometheus.Registry {
	return r.registry
}

// SaveMetrics はメトリクスをファイルに保存
func (r *Repository) SaveMetrics(snapshot *domain.MetricsSnapshot) error {
	if r.metricsFile == "" {
		return nil
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}

	tempFile := r.metricsFile + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return err
	}

	return os.Rename(tempFile, r.metricsFile)
}

// 以下、MetricsCollector インターフェースの実装
func (r *Repository) RecordRequest() {
	r.requests.Add(1)
	r.promRequests.Inc()
}

func (r *Repository) RecordCacheHit() {
	r.cacheHits.Add(1)
	r.promCache.WithLabelValues("hit").Inc()
}

func (r *Repository) RecordCacheMiss() {
	r.cacheMisses.Add(1)
	r.promCache.WithLabelValues("miss").Inc()
}

func (r *Repository) RecordRateLimited() {
	r.rateLimited.Add(1)
	r.promRateLimited.Inc()
}

func (r *Repository) RecordInvalidInput() {
	r.invalidInput.Add(1)
	r.promInvalid.Inc()
}

func (r *Repository) RecordFetchError(kind domain.FetchErrorKind) {
	counter, ok := r.fetchErrors[kind]
	if !ok {
		kind = domain.FetchNetwork
		counter = r.fetchErrors[kind]
	}
	counter.Add(1)
	r.promFetchErrors.WithLabelValues(string(kind)).Inc()
}

func (r *Repository) AddBytesFetched(bytes int64) {
	r.bytes.Add(bytes)
	r.promBytes.Add(float64(bytes))
}

func (r *Repository) IncrementInFlight() {
	r.inFlight.Add(1)
	r.promInFlight.Inc()
}

func (r *Repository) DecrementInFlight() {
	r.inFlight.Add(-1)
	r.promInFlight.Dec()
}

func (r *Repository) Snapshot() domain.MetricsSnapshot {
	errs := make(map[string]int64, len(r.fetchErrors))
	for kind, counter := range r.fetchErrors {
		errs[string(kind)] = counter.Load()
	}

	return domain.MetricsSnapshot{
		Timestamp:     time.Now(),
		StartTime:     r.startTime,
		InFlight:      r.inFlight.Load(),
		TotalRequests: r.requests.Load(),
		BytesFetched:  r.bytes.Load(),
		CacheHits:     r.cacheHits.Load(),
		CacheMisses:   r.cacheMisses.Load(),
		RateLimited:   r.rateLimited.Load(),
		InvalidInput:  r.invalidInput.Load(),
		FetchErrors:   errs,
		Uptime:        time.Since(r.startTime).String(),
	}
}
