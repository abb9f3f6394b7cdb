package domain

import "time"

// ResultCache は抽出結果のTTLキャッシュのインターフェース.
type ResultCache interface {
	Get(key string) (Metadata, bool)
	// Set は ttl <= 0 の場合デフォルトTTLを使う.
	Set(key string, value Metadata, ttl time.Duration)
	Has(key string) bool
}
