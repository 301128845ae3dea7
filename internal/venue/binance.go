package venue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"

	"github.com/sigwatch/sigwatch-monitor/config"
	"github.com/sigwatch/sigwatch-monitor/internal/models"
	"github.com/sigwatch/sigwatch-monitor/pkg/logger"
)

const NameBinance = "binance"

func init() {
	Register(NameBinance, func(cfg *config.Venues) (Adapter, error) {
		return NewBinance(cfg)
	})
}

// Binance 币安现货行情适配器
type Binance struct {
	cli     *binance.Client
	timeout time.Duration
}

func NewBinance(cfg *config.Venues) (*Binance, error) {
	cli := binance.NewClient(cfg.BinanceAPIKey, cfg.BinanceAPISecret)

	httpClient, err := newHTTPClient(cfg)
	if err != nil {
		return nil, err
	}
	cli.HTTPClient = httpClient

	return &Binance{
		cli:     cli,
		timeout: cfg.RequestTimeout,
	}, nil
}

func (b *Binance) Name() string {
	return NameBinance
}

// Connect 连通性探测，公开行情接口不要求 API key
func (b *Binance) Connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	if err := b.cli.NewPingService().Do(ctx); err != nil {
		return fmt.Errorf("binance ping failed: %w", err)
	}
	return nil
}

// FetchOne 获取单个交易对的 24h 行情
func (b *Binance) FetchOne(ctx context.Context, symbol string) (*models.PriceQuote, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	stats, err := b.cli.NewListPriceChangeStatsService().
		Symbol(b.normalize(symbol)).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance ticker %s failed: %w", symbol, err)
	}
	if len(stats) == 0 {
		return nil, fmt.Errorf("binance returned no data for %s", symbol)
	}

	st := stats[0]
	price, err := decimal.NewFromString(st.LastPrice)
	if err != nil {
		return nil, fmt.Errorf("binance price %q for %s unparseable: %w", st.LastPrice, symbol, err)
	}

	quote := &models.PriceQuote{
		Venue:  NameBinance,
		Symbol: symbol,
		Price:  price,
		AsOf:   time.Now(),
	}
	// 附加字段解析失败不致命
	quote.Volume24h, _ = decimal.NewFromString(st.Volume)
	quote.High24h, _ = decimal.NewFromString(st.HighPrice)
	quote.Low24h, _ = decimal.NewFromString(st.LowPrice)

	return quote, nil
}

// FetchMany 并发抓取多个交易对，只返回成功项
func (b *Binance) FetchMany(ctx context.Context, symbols []string) []*models.PriceQuote {
	return fetchAll(ctx, b, symbols)
}

// ValidateSymbol 检查交易对是否存在
func (b *Binance) ValidateSymbol(ctx context.Context, symbol string) bool {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	prices, err := b.cli.NewListPricesService().
		Symbol(b.normalize(symbol)).
		Do(ctx)
	if err != nil {
		logger.Debug().Err(err).Str("symbol", symbol).Msg("binance symbol validation failed")
		return false
	}
	return len(prices) > 0
}

func (b *Binance) Close() error {
	return nil
}

// normalize BTC/USDT、BTC-USDT -> BTCUSDT
func (b *Binance) normalize(symbol string) string {
	symbol = strings.ReplaceAll(symbol, "/", "")
	symbol = strings.ReplaceAll(symbol, "-", "")
	return strings.ToUpper(symbol)
}
