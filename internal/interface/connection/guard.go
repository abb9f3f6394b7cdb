package connection

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"linkpreview/internal/domain"
)

// DefaultLookupTimeout はDNS解決のタイムアウト
const DefaultLookupTimeout = 5 * time.Second

// privateRanges は起動時に一度だけ解析する
var privateRanges []*net.IPNet

func init() {
	for _, cidr := range []string{
		"0.0.0.0/8",      // unspecified
		"10.0.0.0/8",     // RFC 1918
		"100.64.0.0/10",  // carrier-grade NAT
		"127.0.0.0/8",    // IPv4 loopback
		"169.254.0.0/16", // link-local / cloud metadata
		"172.16.0.0/12",  // RFC 1918
		"192.168.0.0/16", // RFC 1918
		"::1/128",        // IPv6 loopback
		"64:ff9b::/96",   // NAT64 well-known prefix
		"64:ff9b:1::/48", // NAT64 local-use prefix
		"fc00::/7",       // IPv6 unique local
		"fe80::/10",      // IPv6 link-local
	} {
		_, ipNet, _ := net.ParseCIDR(cidr)
		privateRanges = append(privateRanges, ipNet)
	}
}

// IsPrivateIP はループバック・プライベート・リンクローカル・ユニークローカル等のアドレスか判定
func IsPrivateIP(ip net.IP) bool {
	if ip == nil {
		return true
	}
	if ip.IsUnspecified() || ip.IsLoopback() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsInterfaceLocalMulticast() {
		return true
	}
	for _, cidr := range privateRanges {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}

// Resolver はホスト名解決のインターフェース. テストで差し替える.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Config はGuardの設定
type Config struct {
	// AllowPrivate はプライベートアドレスへの接続を許可する. テスト用.
	AllowPrivate  bool
	LookupTimeout time.Duration
	DialTimeout   time.Duration
	Access        domain.AccessController
	Resolver      Resolver
}

// Guard はSSRF対策済みのダイヤラ.
// 名前解決したアドレスを検証し、検証済みのIPに固定して接続する.
type Guard struct {
	allowPrivate  bool
	lookupTimeout time.Duration
	access        domain.AccessController
	resolver      Resolver
	dialer        *net.Dialer
}

// NewGuard は新しいGuardインスタンスを作成
func NewGuard(cfg Config) *Guard {
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = DefaultLookupTimeout
	}
	if cfg.Resolver == nil {
		cfg.Resolver = net.DefaultResolver
	}

	return &Guard{
		allowPrivate:  cfg.AllowPrivate,
		lookupTimeout: cfg.LookupTimeout,
		access:        cfg.Access,
		resolver:      cfg.Resolver,
		dialer: &net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: 30 * time.Second,
		},
	}
}

// Allowed は接続先IPが許可されているか確認
func (g *Guard) Allowed(ip net.IP) bool {
	if g.access != nil && g.access.IsIPBlocked(ip) {
		return false
	}
	return g.allowPrivate || !IsPrivateIP(ip)
}

// Resolve はホストを解決し、許可されたIPのみを返す
func (g *Guard) Resolve(ctx context.Context, host string) ([]net.IP, error) {
	normalized := strings.Trim(strings.TrimSpace(host), "[]")
	if normalized == "" {
		return nil, fmt.Errorf("%w: empty hostname", domain.ErrBlockedAddress)
	}
	// ゾーン識別子は除去してから判定する
	if idx := strings.IndexByte(normalized, '%'); idx != -1 {
		normalized = normalized[:idx]
	}

	if ip := net.ParseIP(normalized); ip != nil {
		if !g.Allowed(ip) {
			return nil, fmt.Errorf("%w: %s", domain.ErrBlockedAddress, ip)
		}
		return []net.IP{ip}, nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, g.lookupTimeout)
	defer cancel()

	addrs, err := g.resolver.LookupIPAddr(lookupCtx, normalized)
	if err != nil {
		return nil, fmt.Errorf("DNS lookup failed for %q: %w", host, err)
	}

	var allowed []net.IP
	for _, addr := range addrs {
		if addr.IP != nil && g.Allowed(addr.IP) {
			allowed = append(allowed, addr.IP)
		}
	}
	if len(allowed) == 0 {
		return nil, fmt.Errorf("%w: %q resolves only to disallowed addresses", domain.ErrBlockedAddress, host)
	}
	return allowed, nil
}

// DialContext は http.Transport.DialContext として使う.
// リダイレクト先を含む全ての接続で検証が行われる.
func (g *Guard) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid address %s", domain.ErrBlockedAddress, addr)
	}

	ips, err := g.Resolve(ctx, host)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, ip := range ips {
		conn, err := g.dialer.DialContext(ctx, network, net.JoinHostPort(ip.String(), port))
		if err == nil {
			return conn, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}
