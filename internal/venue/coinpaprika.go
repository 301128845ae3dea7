package venue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/coinpaprika/coinpaprika-api-go-client/v2/coinpaprika"
	gocache "github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"

	"github.com/sigwatch/sigwatch-monitor/config"
	"github.com/sigwatch/sigwatch-monitor/internal/models"
	"github.com/sigwatch/sigwatch-monitor/pkg/logger"
)

const NameCoinpaprika = "coinpaprika"

// coin ID 解析结果缓存时长，映射基本不变
const coinIDCacheTTL = time.Hour

// 计价币后缀，报价统一按 USD 处理
var quoteSuffixes = []string{"USDT", "USDC", "BUSD", "USD"}

func init() {
	Register(NameCoinpaprika, func(cfg *config.Venues) (Adapter, error) {
		return NewCoinpaprika(cfg)
	})
}

// Coinpaprika 聚合行情适配器
// 交易对先归一化为 base 币种，再解析 coinpaprika coin ID（带缓存）
type Coinpaprika struct {
	cli     *coinpaprika.Client
	idCache *gocache.Cache // base 币种 -> coin ID
	timeout time.Duration
}

func NewCoinpaprika(cfg *config.Venues) (*Coinpaprika, error) {
	httpClient, err := newHTTPClient(cfg)
	if err != nil {
		return nil, err
	}

	return &Coinpaprika{
		cli:     coinpaprika.NewClient(httpClient),
		idCache: gocache.New(coinIDCacheTTL, 2*coinIDCacheTTL),
		timeout: cfg.RequestTimeout,
	}, nil
}

func (c *Coinpaprika) Name() string {
	return NameCoinpaprika
}

// Connect 连通性探测
func (c *Coinpaprika) Connect(ctx context.Context) error {
	if _, err := c.cli.Tickers.GetByID("btc-bitcoin", &coinpaprika.TickersOptions{Quotes: "USD"}); err != nil {
		return fmt.Errorf("coinpaprika ping failed: %w", err)
	}
	return nil
}

// FetchOne 获取单个交易对的 USD 报价
func (c *Coinpaprika) FetchOne(ctx context.Context, symbol string) (*models.PriceQuote, error) {
	coinID, err := c.resolveCoinID(symbol)
	if err != nil {
		return nil, err
	}

	ticker, err := c.cli.Tickers.GetByID(coinID, &coinpaprika.TickersOptions{Quotes: "USD"})
	if err != nil {
		return nil, fmt.Errorf("coinpaprika ticker %s failed: %w", coinID, err)
	}

	quote, ok := ticker.Quotes["USD"]
	if !ok || quote.Price == nil {
		return nil, fmt.Errorf("coinpaprika returned no USD quote for %s", symbol)
	}

	result := &models.PriceQuote{
		Venue:  NameCoinpaprika,
		Symbol: symbol,
		Price:  decimal.NewFromFloat(*quote.Price),
		AsOf:   time.Now(),
	}
	if quote.Volume24h != nil {
		result.Volume24h = decimal.NewFromFloat(*quote.Volume24h)
	}

	return result, nil
}

// FetchMany 并发抓取多个交易对，只返回成功项
func (c *Coinpaprika) FetchMany(ctx context.Context, symbols []string) []*models.PriceQuote {
	return fetchAll(ctx, c, symbols)
}

// ValidateSymbol 能解析出 coin ID 即视为有效
func (c *Coinpaprika) ValidateSymbol(ctx context.Context, symbol string) bool {
	_, err := c.resolveCoinID(symbol)
	if err != nil {
		logger.Debug().Err(err).Str("symbol", symbol).Msg("coinpaprika symbol validation failed")
	}
	return err == nil
}

func (c *Coinpaprika) Close() error {
	c.idCache.Flush()
	return nil
}

// resolveCoinID base 币种 -> coinpaprika coin ID，结果缓存
func (c *Coinpaprika) resolveCoinID(symbol string) (string, error) {
	base := c.baseAsset(symbol)

	if cached, ok := c.idCache.Get(base); ok {
		return cached.(string), nil
	}

	result, err := c.cli.Search.Search(&coinpaprika.SearchOptions{
		Query:      base,
		Categories: "currencies",
		Modifier:   "symbol_search",
	})
	if err != nil {
		return "", fmt.Errorf("coinpaprika search %s failed: %w", base, err)
	}
	if len(result.Currencies) == 0 || result.Currencies[0].ID == nil {
		return "", fmt.Errorf("coinpaprika has no currency for %s", base)
	}

	coinID := *result.Currencies[0].ID
	c.idCache.Set(base, coinID, gocache.DefaultExpiration)
	return coinID, nil
}

// baseAsset BTCUSDT / BTC-USDT / BTC/USDT -> BTC
func (c *Coinpaprika) baseAsset(symbol string) string {
	s := strings.ToUpper(symbol)

	for _, sep := range []string{"/", "-"} {
		if base, _, found := strings.Cut(s, sep); found {
			return base
		}
	}
	for _, suffix := range quoteSuffixes {
		if base, ok := strings.CutSuffix(s, suffix); ok && base != "" {
			return base
		}
	}
	return s
}
