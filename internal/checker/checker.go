package checker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	gocache "github.com/patrickmn/go-cache"

	"github.com/sigwatch/sigwatch-monitor/internal/models"
	"github.com/sigwatch/sigwatch-monitor/internal/monitor"
	"github.com/sigwatch/sigwatch-monitor/internal/venue"
	"github.com/sigwatch/sigwatch-monitor/pkg/logger"
)

// ErrNoPrice 所有行情源都取不到价格
var ErrNoPrice = errors.New("no venue could provide a price")

// Checker 行情聚合器
// 请求的行情源失败时，按配置顺序依次尝试其余行情源
type Checker struct {
	adapters []venue.Adapter // 配置顺序即 fallback 顺序
	byName   map[string]venue.Adapter
	cache    *gocache.Cache // "venue:symbol" -> *models.PriceQuote
	pool     *ants.Pool
}

// New 创建行情聚合器
// quoteTTL 为同一轮内重复查询的短时缓存时长
func New(adapters []venue.Adapter, quoteTTL time.Duration) (*Checker, error) {
	if len(adapters) == 0 {
		return nil, errors.New("no venues configured")
	}
	if quoteTTL <= 0 {
		quoteTTL = 5 * time.Second
	}

	pool, err := ants.NewPool(30)
	if err != nil {
		return nil, fmt.Errorf("create checker pool failed: %w", err)
	}

	byName := make(map[string]venue.Adapter, len(adapters))
	for _, a := range adapters {
		byName[a.Name()] = a
	}

	return &Checker{
		adapters: adapters,
		byName:   byName,
		cache:    gocache.New(quoteTTL, 2*quoteTTL),
		pool:     pool,
	}, nil
}

// DefaultVenue 返回配置顺序里的第一个行情源
func (c *Checker) DefaultVenue() string {
	return c.adapters[0].Name()
}

// HasVenue 行情源是否已配置
func (c *Checker) HasVenue(name string) bool {
	_, ok := c.byName[name]
	return ok
}

// Fetch 获取单个交易对价格，带跨行情源 fallback
// 请求的行情源优先；失败后按配置顺序尝试其余行情源，取第一个成功结果
func (c *Checker) Fetch(ctx context.Context, venueName, symbol string) (*models.PriceQuote, error) {
	if quote, ok := c.cached(venueName, symbol); ok {
		return quote, nil
	}

	requested, ok := c.byName[venueName]
	if !ok {
		logger.Error().Str("venue", venueName).Str("symbol", symbol).Msg("requested venue not configured")
	} else {
		quote, err := requested.FetchOne(ctx, symbol)
		if err == nil && quote != nil {
			c.store(quote)
			return quote, nil
		}
		monitor.IncVenueError(venueName)
		logger.Warn().Err(err).
			Str("venue", venueName).
			Str("symbol", symbol).
			Msg("price fetch failed, trying fallback venues")
	}

	return c.fallback(ctx, venueName, symbol)
}

// FetchMany 批量获取一个行情源上的多组交易对价格
// 每个交易对独立抓取，只返回成功项；缺失的交易对再走 fallback
func (c *Checker) FetchMany(ctx context.Context, venueName string, symbols []string) []*models.PriceQuote {
	found := make(map[string]*models.PriceQuote, len(symbols))

	// 先吃缓存
	var pending []string
	for _, symbol := range symbols {
		if quote, ok := c.cached(venueName, symbol); ok {
			found[symbol] = quote
		} else {
			pending = append(pending, symbol)
		}
	}

	// 请求的行情源批量抓取
	if adapter, ok := c.byName[venueName]; ok && len(pending) > 0 {
		for _, quote := range adapter.FetchMany(ctx, pending) {
			c.store(quote)
			found[quote.Symbol] = quote
		}
	}

	// 缺失的交易对逐个走 fallback，互不影响
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, symbol := range pending {
		if _, ok := found[symbol]; ok {
			continue
		}

		wg.Add(1)
		if err := c.pool.Submit(func() {
			defer wg.Done()
			quote, err := c.fallback(ctx, venueName, symbol)
			if err != nil {
				return
			}
			mu.Lock()
			found[symbol] = quote
			mu.Unlock()
		}); err != nil {
			wg.Done()
			logger.Error().Err(err).Str("symbol", symbol).Msg("submit fallback fetch failed")
		}
	}
	wg.Wait()

	quotes := make([]*models.PriceQuote, 0, len(found))
	for _, symbol := range symbols {
		if quote, ok := found[symbol]; ok {
			quotes = append(quotes, quote)
		}
	}
	return quotes
}

// Close 释放协程池
func (c *Checker) Close() {
	c.pool.Release()
}

// fallback 按配置顺序尝试除 skip 外的行情源，取第一个成功结果
func (c *Checker) fallback(ctx context.Context, skip, symbol string) (*models.PriceQuote, error) {
	for _, a := range c.adapters {
		if a.Name() == skip {
			continue
		}

		quote, err := a.FetchOne(ctx, symbol)
		if err != nil || quote == nil {
			monitor.IncVenueError(a.Name())
			logger.Warn().Err(err).
				Str("venue", a.Name()).
				Str("symbol", symbol).
				Msg("fallback venue failed")
			continue
		}

		monitor.IncVenueFallback(a.Name())
		logger.Info().
			Str("venue", a.Name()).
			Str("symbol", symbol).
			Str("price", quote.Price.String()).
			Msg("fallback venue succeeded")
		c.store(quote)
		// 同时登记到请求的行情源键位，TTL 内不再反复探测失败的行情源
		if skip != a.Name() {
			c.cache.Set(c.cacheKey(skip, symbol), quote, gocache.DefaultExpiration)
		}
		return quote, nil
	}

	logger.Error().Str("symbol", symbol).Msg("all venues failed")
	return nil, fmt.Errorf("%w: %s", ErrNoPrice, symbol)
}

func (c *Checker) cached(venueName, symbol string) (*models.PriceQuote, bool) {
	value, ok := c.cache.Get(c.cacheKey(venueName, symbol))
	if !ok {
		monitor.IncQuoteCacheMiss()
		return nil, false
	}
	monitor.IncQuoteCacheHit()
	return value.(*models.PriceQuote), true
}

func (c *Checker) store(quote *models.PriceQuote) {
	c.cache.Set(c.cacheKey(quote.Venue, quote.Symbol), quote, gocache.DefaultExpiration)
}

func (c *Checker) cacheKey(venueName, symbol string) string {
	return venueName + ":" + symbol
}
