package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html/charset"
	"golang.org/x/sync/semaphore"

	"linkpreview/internal/domain"
	"linkpreview/internal/interface/connection"
)

const (
	DefaultTimeout       = 7 * time.Second
	DefaultMaxRedirects  = 5
	DefaultMaxBodyBytes  = 2 << 20 // 2 MiB
	DefaultMaxConcurrent = 64
	DefaultUserAgent     = "linkpreview/1.0 (+https://github.com/linkpreview/linkpreview; metadata fetcher)"
	DefaultAccept        = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
)

// Config はFetcherの設定
type Config struct {
	Timeout       time.Duration
	MaxRedirects  int
	MaxBodyBytes  int64
	MaxConcurrent int
	UserAgent     string
	Accept        string
	// Access は最初のURLとリダイレクト先の全ホストに適用する. nil ならホストは制限しない.
	Access        domain.AccessController
}

func (c *Config) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	switch {
	case c.MaxRedirects == 0:
		c.MaxRedirects = DefaultMaxRedirects
	case c.MaxRedirects < 0:
		// 負の値はリダイレクトを一切追わない
		c.MaxRedirects = 0
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = DefaultMaxConcurrent
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.Accept == "" {
		c.Accept = DefaultAccept
	}
}

// Fetcher はSSRFガード・タイムアウト・サイズ上限付きのHTTP GETを行う
type Fetcher struct {
	cfg    Config
	client *http.Client
	sem    *semaphore.Weighted
}

// Verify interface implementation
var _ domain.Fetcher = (*Fetcher)(nil)

// New は新しいFetcherインスタンスを作成
func New(cfg Config, guard *connection.Guard) *Fetcher {
	cfg.applyDefaults()

	transport := http.DefaultTransport.(*http.Transport).Clone()
	// プロキシ経由だとガードがプロキシのアドレスしか検証できない
	transport.Proxy = nil
	transport.DialContext = guard.DialContext
	transport.MaxResponseHeaderBytes = 64 << 10

	maxRedirects := cfg.MaxRedirects
	access := cfg.Access
	client := &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > maxRedirects {
				return fmt.Errorf("%w: more than %d", domain.ErrTooManyRedirects, maxRedirects)
			}
			if !domain.IsAllowedScheme(req.URL.Scheme) {
				return fmt.Errorf("%w: %s", domain.ErrDisallowedScheme, req.URL.Scheme)
			}
			if access != nil && !access.IsHostAllowed(req.URL.Hostname()) {
				return fmt.Errorf("%w: %s", domain.ErrBlockedHost, req.URL.Hostname())
			}
			return nil
		},
	}

	return &Fetcher{
		cfg:    cfg,
		client: client,
		sem:    semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
	}
}

// Fetch は rawURL を取得する. 全ての失敗は *domain.FetchError として返す.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*domain.FetchResult, error) {
	target, err := domain.ParseTarget(rawURL)
	if err != nil {
		return nil, err
	}
	rawURL = target.String()

	if f.cfg.Access != nil && !f.cfg.Access.IsHostAllowed(target.Hostname()) {
		return nil, &domain.FetchError{
			Kind: domain.FetchBlocked,
			URL:  rawURL,
			Err:  fmt.Errorf("%w: %s", domain.ErrBlockedHost, target.Hostname()),
		}
	}

	if err := f.sem.Acquire(ctx, 1); err != nil {
		return nil, &domain.FetchError{Kind: domain.FetchCanceled, URL: rawURL, Err: err}
	}
	defer f.sem.Release(1)

	fetchCtx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &domain.FetchError{Kind: domain.FetchNetwork, URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", f.cfg.Accept)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classify(ctx, rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return nil, &domain.FetchError{
			Kind: domain.FetchBadStatus,
			URL:  rawURL,
			Err:  fmt.Errorf("status %d", resp.StatusCode),
		}
	}

	contentType := resp.Header.Get("Content-Type")
	if !IsHTMLContentType(contentType) {
		return nil, &domain.FetchError{
			Kind: domain.FetchContentType,
			URL:  rawURL,
			Err:  fmt.Errorf("%w: %q", domain.ErrUnsupportedContentType, contentType),
		}
	}

	if resp.ContentLength > f.cfg.MaxBodyBytes {
		return nil, &domain.FetchError{Kind: domain.FetchSizeLimit, URL: rawURL, Err: domain.ErrBodyTooLarge}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes+1))
	if err != nil {
		return nil, classify(ctx, rawURL, err)
	}
	if int64(len(raw)) > f.cfg.MaxBodyBytes {
		return nil, &domain.FetchError{Kind: domain.FetchSizeLimit, URL: rawURL, Err: domain.ErrBodyTooLarge}
	}

	return &domain.FetchResult{
		Body:        decode(raw, contentType),
		ContentType: contentType,
		FinalURL:    resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
	}, nil
}

// IsHTMLContentType はtext/htmlまたはapplication/xhtml+xmlか判定
func IsHTMLContentType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		lower := strings.ToLower(contentType)
		return strings.Contains(lower, "text/html") || strings.Contains(lower, "application/xhtml+xml")
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

// decode は宣言された文字コードからUTF-8へ変換する. 失敗時は生のバイト列を使う.
func decode(raw []byte, contentType string) string {
	r, err := charset.NewReader(bytes.NewReader(raw), contentType)
	if err != nil {
		return string(raw)
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return string(raw)
	}
	return string(decoded)
}

// classify はHTTPクライアントのエラーを失敗種別に分類する
func classify(parent context.Context, rawURL string, err error) *domain.FetchError {
	kind := domain.FetchNetwork

	var netErr net.Error
	switch {
	case errors.Is(err, domain.ErrBlockedHost):
		kind = domain.FetchBlocked
	case errors.Is(err, domain.ErrTooManyRedirects):
		kind = domain.FetchRedirectLimit
	case errors.Is(err, domain.ErrBlockedAddress), errors.Is(err, domain.ErrDisallowedScheme):
		kind = domain.FetchSSRFBlocked
	case parent.Err() != nil:
		// 呼び出し元の取り消しはタイムアウトと区別する
		kind = domain.FetchCanceled
		if errors.Is(parent.Err(), context.DeadlineExceeded) {
			kind = domain.FetchTimeout
		}
	case errors.Is(err, context.DeadlineExceeded):
		kind = domain.FetchTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = domain.FetchTimeout
	}

	return &domain.FetchError{Kind: kind, URL: rawURL, Err: err}
}
