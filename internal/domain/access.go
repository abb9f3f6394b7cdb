package domain

import "net"

// AccessController はオペレーターが設定するフェッチ先ブロックリスト.
type AccessController interface {
	IsHostAllowed(host string) bool
	IsIPBlocked(ip net.IP) bool
	Reload() error
}
