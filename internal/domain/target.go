package domain

import (
	"net/url"
	"strings"
)

// ParseTarget はフェッチ対象URLを検証する. http/https以外はInputErrorとなる.
func ParseTarget(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, &InputError{Reason: "missing url parameter"}
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, &InputError{Reason: "invalid url"}
	}
	if !IsAllowedScheme(u.Scheme) {
		return nil, &InputError{Reason: "only http and https urls are allowed"}
	}
	if u.Hostname() == "" {
		return nil, &InputError{Reason: "url has no host"}
	}
	return u, nil
}

// IsAllowedScheme はhttp/httpsか判定する
func IsAllowedScheme(scheme string) bool {
	switch strings.ToLower(scheme) {
	case "http", "https":
		return true
	}
	return false
}

// NormalizeTarget はキャッシュキー用にURLを正規化する.
// スキームとホストを小文字化し、フラグメントと既定ポートを除去する.
func NormalizeTarget(u *url.URL) string {
	n := *u
	n.Scheme = strings.ToLower(n.Scheme)
	host := strings.ToLower(n.Hostname())
	port := n.Port()
	if (n.Scheme == "http" && port == "80") || (n.Scheme == "https" && port == "443") {
		port = ""
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		host += ":" + port
	}
	n.Host = host
	n.Fragment = ""
	n.RawFragment = ""
	n.User = nil
	if n.Path == "" && n.RawPath == "" {
		n.Path = "/"
	}
	return n.String()
}

// CacheKey はクライアントキーと正規化済みURLからキャッシュキーを作る
func CacheKey(clientKey string, u *url.URL) string {
	return clientKey + "|" + NormalizeTarget(u)
}
