package domain

import "context"

// FetchResult はフェッチ結果を表す. 抽出後すぐに破棄される.
type FetchResult struct {
	Body        string
	ContentType string
	FinalURL    string
	StatusCode  int
}

// Fetcher は外向きHTTP GETのインターフェース.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*FetchResult, error)
}

// Extractor はHTMLからメタデータを抽出するインターフェース.
// 実装は純粋関数であり、失敗しない.
type Extractor interface {
	Extract(html, contentType, sourceURL string) Metadata
}
