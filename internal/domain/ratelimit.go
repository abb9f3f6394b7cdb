package domain

import "time"

// RateDecision はレートリミット判定の結果.
type RateDecision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// RateLimiter はクライアントキー単位の固定ウィンドウ制限のインターフェース.
type RateLimiter interface {
	TryConsume(key string) RateDecision
}
