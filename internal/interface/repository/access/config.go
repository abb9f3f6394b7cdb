package access

import (
	"fmt"
	"net"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type accessConfig struct {
	BlockedDomains []string `yaml:"blocked_domains"`
	BlockedIPs     []string `yaml:"blocked_ips"`
}

func loadConfigFile(path string) (*accessConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &accessConfig{}, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config accessConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &config, nil
}

// prepare は設定データを正規化する. IPエントリは単一アドレスもCIDRとして扱う.
func (c *accessConfig) prepare() (map[string]bool, []*net.IPNet, error) {
	domains := make(map[string]bool)
	for _, domain := range c.BlockedDomains {
		domain = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(domain)), ".")
		if domain != "" {
			domains[domain] = true
		}
	}

	var nets []*net.IPNet
	for _, entry := range c.BlockedIPs {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			ip := net.ParseIP(entry)
			if ip == nil {
				return nil, nil, fmt.Errorf("invalid blocked ip %q", entry)
			}
			bits := 128
			if ip.To4() != nil {
				ip = ip.To4()
				bits = 32
			}
			nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, ipNet, err := net.ParseCIDR(entry)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid blocked cidr %q: %w", entry, err)
		}
		nets = append(nets, ipNet)
	}

	return domains, nets, nil
}
