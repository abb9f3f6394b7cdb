package cache

import (
	"time"

	"linkpreview/internal/domain"
)

// Entry はキャッシュエントリを表す. 作成後は変更しない.
type Entry struct {
	Value     domain.Metadata
	CreatedAt time.Time
	ExpiresAt time.Time
}

// NewEntry は新しいEntryインスタンスを作成
func NewEntry(value domain.Metadata, now time.Time, ttl time.Duration) *Entry {
	return &Entry{
		Value:     value,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// IsExpired はエントリが期限切れかどうかを確認. ExpiresAt ちょうどで期限切れとみなす.
func (e *Entry) IsExpired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}
