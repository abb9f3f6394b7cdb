package cache

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/golang/groupcache/lru"

	"linkpreview/internal/domain"
)

const (
	// DefaultTTL はSetでTTLが指定されない場合の有効期間
	DefaultTTL = 10 * time.Minute

	shardCount = 16
)

// Repository はシャード化したインメモリTTLキャッシュ.
// 期限切れエントリはGet時に遅延削除する.
type Repository struct {
	shards     [shardCount]*shard
	defaultTTL time.Duration
	now        func() time.Time
}

type shard struct {
	mu      sync.Mutex
	entries *lru.Cache
}

// Verify interface implementation
var _ domain.ResultCache = (*Repository)(nil)

// Option はRepositoryの設定関数
type Option func(*Repository)

// WithClock は時刻取得関数を差し替える
func WithClock(now func() time.Time) Option {
	return func(r *Repository) {
		r.now = now
	}
}

// New は新しいRepositoryインスタンスを作成.
// maxEntries が0以下の場合は上限なし、正の場合はシャードごとにLRUで追い出す.
func New(defaultTTL time.Duration, maxEntries int, opts ...Option) *Repository {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}

	perShard := 0
	if maxEntries > 0 {
		perShard = (maxEntries + shardCount - 1) / shardCount
	}

	r := &Repository{
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
	for i := range r.shards {
		r.shards[i] = &shard{entries: lru.New(perShard)}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get はキャッシュから値を取得
func (r *Repository) Get(key string) (domain.Metadata, bool) {
	s := r.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.entries.Get(key)
	if !ok {
		return domain.Metadata{}, false
	}

	entry := v.(*Entry)
	if entry.IsExpired(r.now()) {
		s.entries.Remove(key)
		return domain.Metadata{}, false
	}
	return entry.Value, true
}

// Set はキャッシュに値を保存. 既存エントリは置き換える.
func (r *Repository) Set(key string, value domain.Metadata, ttl time.Duration) {
	if ttl <= 0 {
		ttl = r.defaultTTL
	}
	value.Cached = false

	entry := NewEntry(value, r.now(), ttl)

	s := r.shardFor(key)
	s.mu.Lock()
	s.entries.Add(key, entry)
	s.mu.Unlock()
}

// Has は有効なエントリが存在するか確認
func (r *Repository) Has(key string) bool {
	_, ok := r.Get(key)
	return ok
}

// Delete はキャッシュからエントリを削除
func (r *Repository) Delete(key string) {
	s := r.shardFor(key)
	s.mu.Lock()
	s.entries.Remove(key)
	s.mu.Unlock()
}

// Len は保持しているエントリ数を返す. 期限切れで未削除のものも含む.
func (r *Repository) Len() int {
	total := 0
	for _, s := range r.shards {
		s.mu.Lock()
		total += s.entries.Len()
		s.mu.Unlock()
	}
	return total
}

func (r *Repository) shardFor(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return r.shards[h.Sum32()%shardCount]
}
