package config

import (
	"os"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/sigwatch/sigwatch-monitor/pkg/logger"
)

type Monitor struct {
	CheckInterval    time.Duration `toml:"check_interval"`
	DefaultVenue     string        `toml:"default_venue"`
	HealthServerAddr string        `toml:"health_server_addr"`
}

type MySQL struct {
	DSN                string   `toml:"dsn"`
	SlaveAddr          []string `toml:"slave_addr"`
	MaxIdleConnections int      `toml:"max_idle_connections"`
	MaxOpenConnections int      `toml:"max_open_connections"`
	SetConnMaxLifetime int      `toml:"set_conn_max_lifetime"`
	SetConnMaxIdleTime int      `toml:"set_conn_max_idle_time"`
	ProxyEnabled       bool     `toml:"proxy_enabled"`
	ProxyAddr          string   `toml:"proxy_addr"`
}

type NATS struct {
	Endpoint string `toml:"endpoint"`
}

type Logger struct {
	Level      string `toml:"level"`
	Path       string `toml:"path"`
	MaxSize    int    `toml:"max_size"`
	MaxBackups int    `toml:"max_backups"`
	MaxAge     int    `toml:"max_age"`
	Compress   bool   `toml:"compress"`
	Console    bool   `toml:"console"`
}

// Venues 行情源配置
// Order 决定 fallback 顺序，第一个同时作为未指定 venue 时的默认值
type Venues struct {
	Order            []string      `toml:"order"`
	RequestTimeout   time.Duration `toml:"request_timeout"`
	QuoteCacheTTL    time.Duration `toml:"quote_cache_ttl"`
	ProxyEnabled     bool          `toml:"proxy_enabled"`
	ProxyAddr        string        `toml:"proxy_addr"`
	BinanceAPIKey    string        `toml:"binance_api_key"`
	BinanceAPISecret string        `toml:"binance_api_secret"`
	BybitBaseURL     string        `toml:"bybit_base_url"`
}

type Pushover struct {
	APIToken       string        `toml:"api_token"`
	Retry          time.Duration `toml:"retry"`
	Expire         time.Duration `toml:"expire"`
	RequestTimeout time.Duration `toml:"request_timeout"`
}

// Recipient 中心配置的通知接收人
// 保留 "default" 作为兜底接收人
type Recipient struct {
	UserKey string `toml:"user_key"`
	Name    string `toml:"name"`
	Enabled bool   `toml:"enabled"`
}

type Feed struct {
	Path           string        `toml:"path"`
	ReloadInterval time.Duration `toml:"reload_interval"`
}

type Cleaner struct {
	Interval  time.Duration `toml:"interval"`
	Retention time.Duration `toml:"retention"`
}

type Config struct {
	Monitor    Monitor              `toml:"monitor"`
	MySQL      MySQL                `toml:"mysql"`
	NATS       NATS                 `toml:"nats"`
	Logger     Logger               `toml:"log"`
	Venues     Venues               `toml:"venues"`
	Pushover   Pushover             `toml:"pushover"`
	Recipients map[string]Recipient `toml:"recipients"`
	Feed       Feed                 `toml:"feed"`
	Cleaner    Cleaner              `toml:"cleaner"`
}

var (
	cfg         *Config
	cfgPath     string
	cfgLock     sync.RWMutex
	lastModTime time.Time
	stopChan    chan struct{}
)

func Default() *Config {
	return &Config{
		Monitor: Monitor{
			CheckInterval:    time.Minute,
			DefaultVenue:     "binance",
			HealthServerAddr: "0.0.0.0:16810",
		},
		MySQL: MySQL{
			DSN:                "root:password@tcp(localhost:3306)/sigwatch?charset=utf8mb4&parseTime=True&loc=Local",
			SlaveAddr:          []string{},
			MaxIdleConnections: 16,
			MaxOpenConnections: 64,
			SetConnMaxLifetime: 7200,
			SetConnMaxIdleTime: 3600,
			ProxyEnabled:       false,
			ProxyAddr:          "127.0.0.1:7890",
		},
		NATS: NATS{
			Endpoint: "nats://localhost:4222",
		},
		Logger: Logger{
			Level:      "info",
			Path:       "logs/monitor.log",
			MaxSize:    10,
			MaxBackups: 60,
			MaxAge:     7,
			Compress:   false,
			Console:    false,
		},
		Venues: Venues{
			Order:          []string{"binance", "bybit", "coinpaprika"},
			RequestTimeout: 10 * time.Second,
			QuoteCacheTTL:  5 * time.Second,
			BybitBaseURL:   "https://api.bybit.com",
		},
		Pushover: Pushover{
			Retry:          30 * time.Second,
			Expire:         time.Hour,
			RequestTimeout: 10 * time.Second,
		},
		Recipients: map[string]Recipient{},
		Feed: Feed{
			Path:           "signals.csv",
			ReloadInterval: time.Minute,
		},
		Cleaner: Cleaner{
			Interval:  time.Hour,
			Retention: 7 * 24 * time.Hour,
		},
	}
}

func Load(path string) error {
	c := Default()
	if _, err := toml.DecodeFile(path, c); err != nil {
		return err
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	cfgLock.Lock()
	defer cfgLock.Unlock()
	cfg = c
	cfgPath = path
	lastModTime = info.ModTime()

	return nil
}

func Get() *Config {
	cfgLock.RLock()
	defer cfgLock.RUnlock()
	return cfg
}

// Init 初始化配置并启动定期重载（默认10秒）
func Init(path string) error {
	return InitWithInterval(path, 10*time.Second)
}

// InitWithInterval 初始化配置并指定重载间隔
func InitWithInterval(path string, interval time.Duration) error {
	if err := Load(path); err != nil {
		return err
	}

	stopChan = make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				reloadIfNeeded()
			case <-stopChan:
				return
			}
		}
	}()

	return nil
}

// Stop 停止配置重载
func Stop() {
	if stopChan != nil {
		close(stopChan)
	}
}

// reloadIfNeeded 仅在文件修改时重载
func reloadIfNeeded() {
	cfgLock.RLock()
	path := cfgPath
	lastMod := lastModTime
	cfgLock.RUnlock()

	if path == "" {
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		logger.Error().Err(err).Msg("config stat failed")
		return
	}

	if info.ModTime().After(lastMod) {
		if err = Load(path); err != nil {
			logger.Error().Err(err).Msg("config reload failed")
		} else {
			logger.Info().Msg("config reloaded")
		}
	}
}
