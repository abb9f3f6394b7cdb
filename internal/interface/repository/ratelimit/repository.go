package ratelimit

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"linkpreview/internal/domain"
)

const (
	// DefaultLimit はウィンドウあたりの許可数
	DefaultLimit = 10
	// DefaultWindow はウィンドウの長さ
	DefaultWindow = time.Minute

	shardCount = 32
)

// Repository は固定ウィンドウ方式のレートリミッタ.
// キーごとのバケットはシャード単位の排他で保護する.
type Repository struct {
	limit  int
	window time.Duration
	now    func() time.Time
	shards [shardCount]*shard
}

type shard struct {
	mu      sync.Mutex
	buckets map[string]*Bucket
}

// Verify interface implementation
var _ domain.RateLimiter = (*Repository)(nil)

// Option はRepositoryの設定関数
type Option func(*Repository)

// WithClock は時刻取得関数を差し替える
func WithClock(now func() time.Time) Option {
	return func(r *Repository) {
		r.now = now
	}
}

// New は新しいRepositoryインスタンスを作成
func New(limit int, window time.Duration, opts ...Option) *Repository {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}

	r := &Repository{
		limit:  limit,
		window: window,
		now:    time.Now,
	}
	for i := range r.shards {
		r.shards[i] = &shard{buckets: make(map[string]*Bucket)}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// TryConsume はキーに対する1回分の試行を判定する.
// 拒否時は状態を変更せず、現在のウィンドウの終了時刻を返す.
func (r *Repository) TryConsume(key string) domain.RateDecision {
	now := r.now()

	s := r.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	if !ok || b.expired(now) {
		b = &Bucket{Count: 1, ResetAt: now.Add(r.window)}
		s.buckets[key] = b
		return domain.RateDecision{Allowed: true, Remaining: r.limit - 1, ResetAt: b.ResetAt}
	}

	if b.Count < r.limit {
		b.Count++
		return domain.RateDecision{Allowed: true, Remaining: r.limit - b.Count, ResetAt: b.ResetAt}
	}

	return domain.RateDecision{Allowed: false, Remaining: 0, ResetAt: b.ResetAt}
}

// Prune は期限切れのバケットを削除し、削除数を返す
func (r *Repository) Prune() int {
	now := r.now()
	removed := 0
	for _, s := range r.shards {
		s.mu.Lock()
		for key, b := range s.buckets {
			if b.expired(now) {
				delete(s.buckets, key)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Len は保持しているバケット数を返す
func (r *Repository) Len() int {
	total := 0
	for _, s := range r.shards {
		s.mu.Lock()
		total += len(s.buckets)
		s.mu.Unlock()
	}
	return total
}

// RunPruner は ctx が終了するまで定期的に Prune を実行する
func (r *Repository) RunPruner(ctx context.Context, interval time.Duration, logger domain.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := r.Prune(); n > 0 && logger != nil {
				logger.Debug("Pruned expired rate buckets", map[string]interface{}{"removed": n})
			}
		case <-ctx.Done():
			return
		}
	}
}

func (r *Repository) shardFor(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return r.shards[h.Sum32()%shardCount]
}
