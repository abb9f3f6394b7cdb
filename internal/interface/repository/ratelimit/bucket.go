package ratelimit

import "time"

// Bucket はクライアントキーごとの固定ウィンドウの状態
type Bucket struct {
	Count   int
	ResetAt time.Time
}

// expired はウィンドウが終了したか確認
func (b *Bucket) expired(now time.Time) bool {
	return now.After(b.ResetAt)
}
