package access

import (
	"context"
	"net"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"linkpreview/internal/domain"
)

// Repository はフェッチ先ブロックリストのリポジトリ実装
type Repository struct {
	mu             sync.RWMutex
	configFile     string
	blockedDomains map[string]bool
	blockedNets    []*net.IPNet
	logger         domain.Logger
}

var _ domain.AccessController = (*Repository)(nil)

// New は新しいRepositoryインスタンスを作成. configFile が空なら何もブロックしない.
func New(configFile string, logger domain.Logger) (*Repository, error) {
	r := &Repository{
		configFile:     configFile,
		blockedDomains: make(map[string]bool),
		logger:         logger,
	}

	if configFile == "" {
		return r, nil
	}
	if err := r.loadConfig(); err != nil {
		return nil, err
	}
	return r, nil
}

// IsHostAllowed はホストがブロックリストに含まれていないか確認
func (r *Repository) IsHostAllowed(host string) bool {
	host = strings.TrimSuffix(strings.ToLower(strings.Trim(host, "[]")), ".")

	if ip := net.ParseIP(host); ip != nil {
		return !r.IsIPBlocked(ip)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.blockedDomains[host] {
		return false
	}

	// ワイルドカードドメインのチェック
	parts := strings.Split(host, ".")
	for i := 0; i < len(parts)-1; i++ {
		wildcard := "*." + strings.Join(parts[i+1:], ".")
		if r.blockedDomains[wildcard] {
			return false
		}
	}

	return true
}

// IsIPBlocked はIPがブロック対象のレンジに含まれるか確認
func (r *Repository) IsIPBlocked(ip net.IP) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, n := range r.blockedNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// Reload は設定を再読み込み
func (r *Repository) Reload() error {
	if r.configFile == "" {
		return nil
	}
	return r.loadConfig()
}

// loadConfig は設定ファイルから設定を読み込む. 失敗時は既存の設定を維持する.
func (r *Repository) loadConfig() error {
	config, err := loadConfigFile(r.configFile)
	if err != nil {
		return err
	}

	domains, nets, err := config.prepare()
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.blockedDomains = domains
	r.blockedNets = nets
	r.mu.Unlock()

	r.info("Loaded target blocklist", map[string]interface{}{
		"file":    r.configFile,
		"domains": len(domains),
		"ips":     len(nets),
	})
	return nil
}

// Watch は設定ファイルの変更を監視し、ctx が終了するまで再読み込みを行う.
// エディタの置き換え保存にも対応するためディレクトリを監視する.
func (r *Repository) Watch(ctx context.Context) error {
	if r.configFile == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(r.configFile)); err != nil {
		return err
	}

	target := filepath.Clean(r.configFile)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if err := r.loadConfig(); err != nil && r.logger != nil {
				r.logger.Error("Failed to reload target blocklist", err, map[string]interface{}{"file": r.configFile})
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if r.logger != nil {
				r.logger.Error("Blocklist watcher error", err, nil)
			}
		}
	}
}

func (r *Repository) info(msg string, fields map[string]interface{}) {
	if r.logger != nil {
		r.logger.Info(msg, fields)
	}
}
