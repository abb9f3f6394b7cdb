package handler

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// DefaultForwardedHeader は信頼済みプロキシが付与するクライアントアドレスのヘッダ
const DefaultForwardedHeader = "X-Forwarded-For"

// ClientIPResolver はレートリミットとキャッシュに使うクライアントキーを決める.
// 接続元が信頼済みプロキシの場合だけ転送ヘッダを参照する.
type ClientIPResolver struct {
	trusted []*net.IPNet
	header  string
}

// NewClientIPResolver は新しいClientIPResolverインスタンスを作成.
// trusted にはアドレスかCIDRを指定する.
func NewClientIPResolver(trusted []string, header string) (*ClientIPResolver, error) {
	if header == "" {
		header = DefaultForwardedHeader
	}

	r := &ClientIPResolver{header: http.CanonicalHeaderKey(header)}
	for _, entry := range trusted {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			ip := net.ParseIP(entry)
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted proxy %q", entry)
			}
			bits := 128
			if ip.To4() != nil {
				ip = ip.To4()
				bits = 32
			}
			r.trusted = append(r.trusted, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, ipNet, err := net.ParseCIDR(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
		}
		r.trusted = append(r.trusted, ipNet)
	}
	return r, nil
}

// Resolve はリクエストのクライアントキーを返す
func (r *ClientIPResolver) Resolve(req *http.Request) string {
	remote := req.RemoteAddr
	if host, _, err := net.SplitHostPort(remote); err == nil {
		remote = host
	}

	remoteIP := net.ParseIP(remote)
	if remoteIP == nil || !r.isTrusted(remoteIP) {
		return remote
	}

	// 右端が直前のプロキシ. 信頼済みでない最初のアドレスがクライアント
	hops := forwardedHops(req.Header.Values(r.header))
	for i := len(hops) - 1; i >= 0; i-- {
		ip := net.ParseIP(hops[i])
		if ip == nil {
			break
		}
		if !r.isTrusted(ip) {
			return ip.String()
		}
	}
	return remoteIP.String()
}

func (r *ClientIPResolver) isTrusted(ip net.IP) bool {
	for _, n := range r.trusted {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func forwardedHops(values []string) []string {
	var hops []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				hops = append(hops, part)
			}
		}
	}
	return hops
}
