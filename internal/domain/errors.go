package domain

import (
	"errors"
	"fmt"
	"time"
)

// InputError は不正なURLパラメータを表す. ネットワーク層には到達しない.
type InputError struct {
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid input: %s", e.Reason)
}

// RateLimitError はレートリミット超過エラー.
type RateLimitError struct {
	Key        string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry after %s", e.Key, e.RetryAfter)
}

// FetchErrorKind はフェッチ失敗の原因.
type FetchErrorKind string

const (
	FetchTimeout       FetchErrorKind = "timeout"
	FetchRedirectLimit FetchErrorKind = "redirect_limit"
	FetchSizeLimit     FetchErrorKind = "size_limit"
	FetchBadStatus     FetchErrorKind = "bad_status"
	FetchContentType   FetchErrorKind = "content_type"
	FetchSSRFBlocked   FetchErrorKind = "ssrf_blocked"
	FetchBlocked       FetchErrorKind = "blocked"
	FetchNetwork       FetchErrorKind = "network"
	FetchCanceled      FetchErrorKind = "canceled"
)

// FetchErrorKinds は全ての失敗種別.
var FetchErrorKinds = []FetchErrorKind{
	FetchTimeout,
	FetchRedirectLimit,
	FetchSizeLimit,
	FetchBadStatus,
	FetchContentType,
	FetchSSRFBlocked,
	FetchBlocked,
	FetchNetwork,
	FetchCanceled,
}

// FetchError はフェッチ失敗エラー.
type FetchError struct {
	Kind FetchErrorKind
	URL  string
	Err  error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("fetch %s failed: %s", e.URL, e.Kind)
	}
	return fmt.Sprintf("fetch %s failed: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ErrUnsupportedContentType はHTML以外のContent-Typeを表す.
var ErrUnsupportedContentType = errors.New("unsupported content type")

// ErrTooManyRedirects はリダイレクト上限超過を表す.
var ErrTooManyRedirects = errors.New("too many redirects")

// ErrBodyTooLarge はレスポンスサイズ上限超過を表す.
var ErrBodyTooLarge = errors.New("response body too large")

// ErrBlockedAddress はSSRFガードによる接続拒否を表す.
var ErrBlockedAddress = errors.New("destination address is not allowed")

// ErrBlockedHost はオペレーターのブロックリストに載ったホストを表す.
var ErrBlockedHost = errors.New("host is blocklisted")

// IsFetchKind は err が指定種別の FetchError か判定する.
func IsFetchKind(err error, kind FetchErrorKind) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == kind
}

// ErrDisallowedScheme はhttp/https以外へのリダイレクトを表す.
var ErrDisallowedScheme = errors.New("redirect to disallowed scheme")
