package domain

import "time"

// MetricsCollector はメトリクス収集のインターフェース
type MetricsCollector interface {
	RecordRequest()
	RecordCacheHit()
	RecordCacheMiss()
	RecordRateLimited()
	RecordInvalidInput()
	RecordFetchError(kind FetchErrorKind)
	AddBytesFetched(bytes int64)
	IncrementInFlight()
	DecrementInFlight()
	Snapshot() MetricsSnapshot
}

// MetricsSnapshot はメトリクスのスナップショットを表す
type MetricsSnapshot struct {
	Timestamp     time.Time        `json:"timestamp"`
	StartTime     time.Time        `json:"start_time"`
	InFlight      int64            `json:"in_flight_fetches"`
	TotalRequests int64            `json:"total_requests"`
	BytesFetched  int64            `json:"bytes_fetched"`
	CacheHits     int64            `json:"cache_hits"`
	CacheMisses   int64            `json:"cache_misses"`
	RateLimited   int64            `json:"rate_limited"`
	InvalidInput  int64            `json:"invalid_input"`
	FetchErrors   map[string]int64 `json:"fetch_errors"`
	Uptime        string           `json:"uptime"`
}
