package venue

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"

	"golang.org/x/net/proxy"

	"github.com/sigwatch/sigwatch-monitor/config"
	"github.com/sigwatch/sigwatch-monitor/internal/models"
	"github.com/sigwatch/sigwatch-monitor/pkg/goplus"
)

// Adapter 行情源适配器统一能力集
// 符号归一化（BTCUSDT / BTC-USDT / BTC/USDT）由各实现自行处理
type Adapter interface {
	Name() string
	Connect(ctx context.Context) error
	FetchOne(ctx context.Context, symbol string) (*models.PriceQuote, error)
	FetchMany(ctx context.Context, symbols []string) []*models.PriceQuote
	ValidateSymbol(ctx context.Context, symbol string) bool
	Close() error
}

// Factory 按配置构造适配器
type Factory func(cfg *config.Venues) (Adapter, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register 注册适配器工厂，各实现在 init 中调用
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

// Names 返回已注册的适配器名称
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build 按配置顺序构造适配器列表
// 顺序即 fallback 顺序，未注册的名称视为配置错误
func Build(cfg *config.Venues) ([]Adapter, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	registered := make([]string, 0, len(registry))
	for name := range registry {
		registered = append(registered, name)
	}
	sort.Strings(registered)

	adapters := make([]Adapter, 0, len(cfg.Order))
	for _, name := range cfg.Order {
		factory, ok := registry[name]
		if !ok {
			return nil, fmt.Errorf("unknown venue %q, registered: %v", name, registered)
		}
		a, err := factory(cfg)
		if err != nil {
			return nil, fmt.Errorf("build venue %s failed: %w", name, err)
		}
		adapters = append(adapters, a)
	}
	return adapters, nil
}

// newHTTPClient 构造共享 HTTP 客户端，可选 SOCKS5 代理
func newHTTPClient(cfg *config.Venues) (*http.Client, error) {
	client := &http.Client{Timeout: cfg.RequestTimeout}

	if cfg.ProxyEnabled {
		dialer, err := proxy.SOCKS5("tcp", cfg.ProxyAddr, nil, &net.Dialer{})
		if err != nil {
			return nil, fmt.Errorf("create venue proxy dialer failed: %w", err)
		}
		client.Transport = &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			},
		}
	}

	return client, nil
}

// fetchAll 并发抓取多个交易对，只收集成功项
// 部分失败不是错误，调用方需容忍缺失条目
func fetchAll(ctx context.Context, a Adapter, symbols []string) []*models.PriceQuote {
	var (
		mu     sync.Mutex
		quotes = make([]*models.PriceQuote, 0, len(symbols))
		wg     = goplus.NewWaitGroup()
	)

	for _, symbol := range symbols {
		wg.Go(func() {
			quote, err := a.FetchOne(ctx, symbol)
			if err != nil || quote == nil {
				return
			}
			mu.Lock()
			quotes = append(quotes, quote)
			mu.Unlock()
		})
	}

	wg.Wait()
	return quotes
}
