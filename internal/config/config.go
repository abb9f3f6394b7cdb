package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix は環境変数による上書きの接頭辞
const EnvPrefix = "LINKPREVIEW"

// Config はlinkpreviewの全設定
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Cache     CacheConfig     `mapstructure:"cache"`
	ClientIP  ClientIPConfig  `mapstructure:"clientip"`
	Access    AccessConfig    `mapstructure:"access"`
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// ServerConfig はAPIサーバーとメトリクスサーバーの設定
type ServerConfig struct {
	Addr              string        `mapstructure:"addr"`
	MetricsAddr       string        `mapstructure:"metrics_addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

// FetchConfig は外向きフェッチの設定
type FetchConfig struct {
	Timeout              time.Duration `mapstructure:"timeout"`
	MaxRedirects         int           `mapstructure:"max_redirects"`
	MaxBodyBytes         int64         `mapstructure:"max_body_bytes"`
	UserAgent            string        `mapstructure:"user_agent"`
	Accept               string        `mapstructure:"accept"`
	MaxConcurrent        int           `mapstructure:"max_concurrent"`
	AllowPrivateNetworks bool          `mapstructure:"allow_private_networks"`
}

// RateLimitConfig は固定ウィンドウ制限の設定
type RateLimitConfig struct {
	Limit         int           `mapstructure:"limit"`
	Window        time.Duration `mapstructure:"window"`
	PruneInterval time.Duration `mapstructure:"prune_interval"`
}

// CacheConfig は結果キャッシュの設定. MaxEntries が0なら上限なし.
type CacheConfig struct {
	TTL        time.Duration `mapstructure:"ttl"`
	MaxEntries int           `mapstructure:"max_entries"`
}

// ClientIPConfig はクライアントキー決定の設定
type ClientIPConfig struct {
	TrustedProxies []string `mapstructure:"trusted_proxies"`
	Header         string   `mapstructure:"header"`
}

// AccessConfig はフェッチ先ブロックリストの設定
type AccessConfig struct {
	BlocklistFile string `mapstructure:"blocklist_file"`
}

// LogConfig はロガーの設定. Dir が空なら標準エラーに出力する.
type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
	Dir   string `mapstructure:"dir"`
	File  string `mapstructure:"file"`
}

// MetricsConfig はメトリクススナップショットの設定. File が空なら保存しない.
type MetricsConfig struct {
	File         string        `mapstructure:"file"`
	SaveInterval time.Duration `mapstructure:"save_interval"`
}

var defaultConfig = Config{
	Server: ServerConfig{
		Addr:              ":8080",
		MetricsAddr:       ":8081",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   30 * time.Second,
	},
	Fetch: FetchConfig{
		Timeout:       7 * time.Second,
		MaxRedirects:  5,
		MaxBodyBytes:  2 << 20,
		UserAgent:     "linkpreview/1.0 (+https://github.com/linkpreview/linkpreview; metadata fetcher)",
		Accept:        "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		MaxConcurrent: 64,
	},
	RateLimit: RateLimitConfig{
		Limit:         10,
		Window:        60 * time.Second,
		PruneInterval: 5 * time.Minute,
	},
	Cache: CacheConfig{
		TTL: 10 * time.Minute,
	},
	ClientIP: ClientIPConfig{
		TrustedProxies: []string{},
		Header:         "X-Forwarded-For",
	},
	Log: LogConfig{
		Level: "info",
		File:  "linkpreview.log",
	},
	Metrics: MetricsConfig{
		SaveInterval: time.Minute,
	},
}

// Default はデフォルト設定のコピーを返す
func Default() Config {
	c := defaultConfig
	c.ClientIP.TrustedProxies = append([]string{}, defaultConfig.ClientIP.TrustedProxies...)
	return c
}

// New はデフォルト値と環境変数の設定を済ませたviperインスタンスを作成
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault("server.addr", defaultConfig.Server.Addr)
	v.SetDefault("server.metrics_addr", defaultConfig.Server.MetricsAddr)
	v.SetDefault("server.read_header_timeout", defaultConfig.Server.ReadHeaderTimeout)
	v.SetDefault("server.shutdown_timeout", defaultConfig.Server.ShutdownTimeout)

	v.SetDefault("fetch.timeout", defaultConfig.Fetch.Timeout)
	v.SetDefault("fetch.max_redirects", defaultConfig.Fetch.MaxRedirects)
	v.SetDefault("fetch.max_body_bytes", defaultConfig.Fetch.MaxBodyBytes)
	v.SetDefault("fetch.user_agent", defaultConfig.Fetch.UserAgent)
	v.SetDefault("fetch.accept", defaultConfig.Fetch.Accept)
	v.SetDefault("fetch.max_concurrent", defaultConfig.Fetch.MaxConcurrent)
	v.SetDefault("fetch.allow_private_networks", defaultConfig.Fetch.AllowPrivateNetworks)

	v.SetDefault("ratelimit.limit", defaultConfig.RateLimit.Limit)
	v.SetDefault("ratelimit.window", defaultConfig.RateLimit.Window)
	v.SetDefault("ratelimit.prune_interval", defaultConfig.RateLimit.PruneInterval)

	v.SetDefault("cache.ttl", defaultConfig.Cache.TTL)
	v.SetDefault("cache.max_entries", defaultConfig.Cache.MaxEntries)

	v.SetDefault("clientip.trusted_proxies", defaultConfig.ClientIP.TrustedProxies)
	v.SetDefault("clientip.header", defaultConfig.ClientIP.Header)

	v.SetDefault("access.blocklist_file", defaultConfig.Access.BlocklistFile)

	v.SetDefault("log.level", defaultConfig.Log.Level)
	v.SetDefault("log.json", defaultConfig.Log.JSON)
	v.SetDefault("log.dir", defaultConfig.Log.Dir)
	v.SetDefault("log.file", defaultConfig.Log.File)

	v.SetDefault("metrics.file", defaultConfig.Metrics.File)
	v.SetDefault("metrics.save_interval", defaultConfig.Metrics.SaveInterval)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Load は設定ファイルを読み込み、検証済みのConfigを返す.
// configFile が空なら linkpreview.yaml をカレントディレクトリと $HOME から探し、無ければデフォルトのまま.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("linkpreview")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate は値の範囲を検証する
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr must not be empty"))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
	}
	if c.Fetch.Timeout <= 0 {
		errs = append(errs, errors.New("fetch.timeout must be positive"))
	}
	if c.Fetch.MaxRedirects < 0 {
		errs = append(errs, errors.New("fetch.max_redirects must not be negative"))
	}
	if c.Fetch.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("fetch.max_body_bytes must be positive"))
	}
	if c.Fetch.MaxConcurrent <= 0 {
		errs = append(errs, errors.New("fetch.max_concurrent must be positive"))
	}
	if c.RateLimit.Limit <= 0 {
		errs = append(errs, errors.New("ratelimit.limit must be positive"))
	}
	if c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("ratelimit.window must be positive"))
	}
	if c.RateLimit.PruneInterval <= 0 {
		errs = append(errs, errors.New("ratelimit.prune_interval must be positive"))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, errors.New("cache.ttl must be positive"))
	}
	if c.Cache.MaxEntries < 0 {
		errs = append(errs, errors.New("cache.max_entries must not be negative"))
	}
	if c.Metrics.SaveInterval <= 0 {
		errs = append(errs, errors.New("metrics.save_interval must be positive"))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}
