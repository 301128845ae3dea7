package venue

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/sigwatch/sigwatch-monitor/config"
	"github.com/sigwatch/sigwatch-monitor/internal/models"
)

const NameBybit = "bybit"

func init() {
	Register(NameBybit, func(cfg *config.Venues) (Adapter, error) {
		return NewBybit(cfg)
	})
}

// Bybit V5 现货行情适配器，直连公开 REST 接口
type Bybit struct {
	baseURL string
	cli     *http.Client
	timeout time.Duration
}

func NewBybit(cfg *config.Venues) (*Bybit, error) {
	httpClient, err := newHTTPClient(cfg)
	if err != nil {
		return nil, err
	}

	baseURL := cfg.BybitBaseURL
	if baseURL == "" {
		baseURL = "https://api.bybit.com"
	}

	return &Bybit{
		baseURL: strings.TrimRight(baseURL, "/"),
		cli:     httpClient,
		timeout: cfg.RequestTimeout,
	}, nil
}

func (b *Bybit) Name() string {
	return NameBybit
}

// Connect 连通性探测
func (b *Bybit) Connect(ctx context.Context) error {
	body, err := b.get(ctx, "/v5/market/time", nil)
	if err != nil {
		return fmt.Errorf("bybit ping failed: %w", err)
	}
	if gjson.GetBytes(body, "retCode").Int() != 0 {
		return fmt.Errorf("bybit ping rejected: %s", gjson.GetBytes(body, "retMsg").String())
	}
	return nil
}

// FetchOne 获取单个现货交易对行情
func (b *Bybit) FetchOne(ctx context.Context, symbol string) (*models.PriceQuote, error) {
	body, err := b.get(ctx, "/v5/market/tickers", url.Values{
		"category": {"spot"},
		"symbol":   {b.normalize(symbol)},
	})
	if err != nil {
		return nil, fmt.Errorf("bybit ticker %s failed: %w", symbol, err)
	}

	if code := gjson.GetBytes(body, "retCode").Int(); code != 0 {
		return nil, fmt.Errorf("bybit ticker %s rejected: code=%d msg=%s",
			symbol, code, gjson.GetBytes(body, "retMsg").String())
	}

	ticker := gjson.GetBytes(body, "result.list.0")
	if !ticker.Exists() {
		return nil, fmt.Errorf("bybit returned no data for %s", symbol)
	}

	lastPrice := ticker.Get("lastPrice").String()
	price, err := decimal.NewFromString(lastPrice)
	if err != nil {
		return nil, fmt.Errorf("bybit price %q for %s unparseable: %w", lastPrice, symbol, err)
	}

	quote := &models.PriceQuote{
		Venue:  NameBybit,
		Symbol: symbol,
		Price:  price,
		AsOf:   time.Now(),
	}
	quote.Volume24h, _ = decimal.NewFromString(ticker.Get("volume24h").String())
	quote.High24h, _ = decimal.NewFromString(ticker.Get("highPrice24h").String())
	quote.Low24h, _ = decimal.NewFromString(ticker.Get("lowPrice24h").String())

	return quote, nil
}

// FetchMany 并发抓取多个交易对，只返回成功项
func (b *Bybit) FetchMany(ctx context.Context, symbols []string) []*models.PriceQuote {
	return fetchAll(ctx, b, symbols)
}

// ValidateSymbol 检查交易对是否存在
func (b *Bybit) ValidateSymbol(ctx context.Context, symbol string) bool {
	_, err := b.FetchOne(ctx, symbol)
	return err == nil
}

func (b *Bybit) Close() error {
	b.cli.CloseIdleConnections()
	return nil
}

func (b *Bybit) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	u := b.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := b.cli.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

// normalize BTC/USDT、BTC-USDT -> BTCUSDT
func (b *Bybit) normalize(symbol string) string {
	symbol = strings.ReplaceAll(symbol, "/", "")
	symbol = strings.ReplaceAll(symbol, "-", "")
	return strings.ToUpper(symbol)
}
