package manager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/sigwatch/sigwatch-monitor/config"
	"github.com/sigwatch/sigwatch-monitor/internal/checker"
	"github.com/sigwatch/sigwatch-monitor/internal/dao"
	"github.com/sigwatch/sigwatch-monitor/internal/models"
	"github.com/sigwatch/sigwatch-monitor/internal/notify"
	"github.com/sigwatch/sigwatch-monitor/internal/venue"
)

// stubAdapter 测试用行情源，固定价格表
type stubAdapter struct {
	name   string
	prices map[string]decimal.Decimal
}

func (s *stubAdapter) Name() string                  { return s.name }
func (s *stubAdapter) Connect(context.Context) error { return nil }
func (s *stubAdapter) Close() error                  { return nil }

func (s *stubAdapter) FetchOne(_ context.Context, symbol string) (*models.PriceQuote, error) {
	price, ok := s.prices[symbol]
	if !ok {
		return nil, errors.New("symbol not available")
	}
	return &models.PriceQuote{Venue: s.name, Symbol: symbol, Price: price, AsOf: time.Now()}, nil
}

func (s *stubAdapter) FetchMany(ctx context.Context, symbols []string) []*models.PriceQuote {
	var quotes []*models.PriceQuote
	for _, symbol := range symbols {
		if q, err := s.FetchOne(ctx, symbol); err == nil {
			quotes = append(quotes, q)
		}
	}
	return quotes
}

func (s *stubAdapter) ValidateSymbol(_ context.Context, symbol string) bool {
	_, ok := s.prices[symbol]
	return ok
}

func setupManager(t *testing.T, prices map[string]decimal.Decimal) (*Manager, *dao.SignalDAO) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(&models.StoreEntity{}))

	// 内存库写入走单连接，避免并发落库时表锁冲突
	sqlDB, err := db.DB()
	assert.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	signalDAO := dao.NewSignalDAO(db)

	chk, err := checker.New([]venue.Adapter{
		&stubAdapter{name: "binance", prices: prices},
	}, time.Millisecond)
	assert.NoError(t, err)
	t.Cleanup(chk.Close)

	m, err := NewManager(signalDAO, chk, nil, nil)
	assert.NoError(t, err)
	t.Cleanup(m.Close)

	return m, signalDAO
}

func saveSignal(t *testing.T, d *dao.SignalDAO, sig *models.Signal) *models.Signal {
	assert.NoError(t, d.Save(sig))
	return sig
}

func TestManager_TriggerAbove(t *testing.T) {
	m, signalDAO := setupManager(t, map[string]decimal.Decimal{
		"BTCUSDT": decimal.NewFromInt(101000),
	})
	saveSignal(t, signalDAO, &models.Signal{
		Name:        "btc high",
		Venue:       "binance",
		Symbol:      "BTCUSDT",
		Condition:   models.ConditionAbove,
		TargetPrice: decimal.NewFromInt(100000),
		Active:      true,
	})

	outcomes := m.EvaluateCycle(context.Background())
	assert.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Triggered)
	assert.True(t, outcomes[0].ObservedPrice.Equal(decimal.NewFromInt(101000)))

	// 触发后停用并落库
	loaded, err := signalDAO.LoadAll()
	assert.NoError(t, err)
	assert.Len(t, loaded, 1)
	assert.False(t, loaded[0].Active)
	assert.Equal(t, 1, loaded[0].TriggeredCount)
	assert.NotNil(t, loaded[0].LastTriggeredAt)
}

func TestManager_TriggerAtMostOnce(t *testing.T) {
	m, signalDAO := setupManager(t, map[string]decimal.Decimal{
		"BTCUSDT": decimal.NewFromInt(101000),
	})
	saveSignal(t, signalDAO, &models.Signal{
		Name:        "btc high",
		Venue:       "binance",
		Symbol:      "BTCUSDT",
		Condition:   models.ConditionAbove,
		TargetPrice: decimal.NewFromInt(100000),
		Active:      true,
	})

	first := m.EvaluateCycle(context.Background())
	assert.Len(t, first, 1)
	assert.True(t, first[0].Triggered)

	// 第二轮信号已停用，不再评估
	second := m.EvaluateCycle(context.Background())
	assert.Empty(t, second)

	loaded, err := signalDAO.LoadAll()
	assert.NoError(t, err)
	assert.Equal(t, 1, loaded[0].TriggeredCount)
}

func TestManager_UntriggeredUnchanged(t *testing.T) {
	m, signalDAO := setupManager(t, map[string]decimal.Decimal{
		"BTCUSDT": decimal.NewFromInt(99000),
	})
	saveSignal(t, signalDAO, &models.Signal{
		Name:        "btc high",
		Venue:       "binance",
		Symbol:      "BTCUSDT",
		Condition:   models.ConditionAbove,
		TargetPrice: decimal.NewFromInt(100000),
		Active:      true,
	})

	outcomes := m.EvaluateCycle(context.Background())
	assert.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Triggered)

	// 未触发的信号保持原状
	loaded, err := signalDAO.LoadAll()
	assert.NoError(t, err)
	assert.True(t, loaded[0].Active)
	assert.Equal(t, 0, loaded[0].TriggeredCount)
	assert.Nil(t, loaded[0].LastTriggeredAt)
}

func TestManager_Conditions(t *testing.T) {
	m, signalDAO := setupManager(t, map[string]decimal.Decimal{
		"BTCUSDT": decimal.NewFromInt(100000),
		"ETHUSDT": decimal.NewFromInt(3900),
	})

	// equal 精确相等才触发
	saveSignal(t, signalDAO, &models.Signal{
		Name:        "btc exact",
		Venue:       "binance",
		Symbol:      "BTCUSDT",
		Condition:   models.ConditionEqual,
		TargetPrice: decimal.NewFromInt(100000),
		Active:      true,
	})
	// below
	saveSignal(t, signalDAO, &models.Signal{
		Name:        "eth dip",
		Venue:       "binance",
		Symbol:      "ETHUSDT",
		Condition:   models.ConditionBelow,
		TargetPrice: decimal.NewFromInt(4000),
		Active:      true,
	})

	outcomes := m.EvaluateCycle(context.Background())
	assert.Len(t, outcomes, 2)
	for _, o := range outcomes {
		assert.True(t, o.Triggered, o.Signal.Name)
	}
}

func TestManager_PercentChangeNeverTriggers(t *testing.T) {
	m, signalDAO := setupManager(t, map[string]decimal.Decimal{
		"BTCUSDT": decimal.NewFromInt(100000),
	})
	threshold := decimal.NewFromInt(5)
	saveSignal(t, signalDAO, &models.Signal{
		Name:             "btc swing",
		Venue:            "binance",
		Symbol:           "BTCUSDT",
		Condition:        models.ConditionPercentChange,
		TargetPrice:      decimal.NewFromInt(100000),
		PercentThreshold: &threshold,
		Active:           true,
	})

	outcomes := m.EvaluateCycle(context.Background())
	assert.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Triggered)
}

func TestManager_SkipsSignalWithoutPrice(t *testing.T) {
	m, signalDAO := setupManager(t, map[string]decimal.Decimal{
		"BTCUSDT": decimal.NewFromInt(101000),
	})
	saveSignal(t, signalDAO, &models.Signal{
		Name:        "btc high",
		Venue:       "binance",
		Symbol:      "BTCUSDT",
		Condition:   models.ConditionAbove,
		TargetPrice: decimal.NewFromInt(100000),
		Active:      true,
	})
	saveSignal(t, signalDAO, &models.Signal{
		Name:        "unknown pair",
		Venue:       "binance",
		Symbol:      "NOPEUSDT",
		Condition:   models.ConditionAbove,
		TargetPrice: decimal.NewFromInt(1),
		Active:      true,
	})

	// 取不到价的信号跳过本轮，不影响其余信号
	outcomes := m.EvaluateCycle(context.Background())
	assert.Len(t, outcomes, 1)
	assert.Equal(t, "BTCUSDT", outcomes[0].Signal.Symbol)

	// 被跳过的信号保持可评估状态
	loaded, err := signalDAO.LoadAll()
	assert.NoError(t, err)
	for _, s := range loaded {
		if s.Symbol == "NOPEUSDT" {
			assert.True(t, s.Active)
		}
	}
}

func TestManager_DefaultVenueFallback(t *testing.T) {
	m, signalDAO := setupManager(t, map[string]decimal.Decimal{
		"BTCUSDT": decimal.NewFromInt(101000),
	})
	// 未指定交易所的信号落到默认行情源
	saveSignal(t, signalDAO, &models.Signal{
		Name:        "btc high",
		Symbol:      "BTCUSDT",
		Condition:   models.ConditionAbove,
		TargetPrice: decimal.NewFromInt(100000),
		Active:      true,
	})

	outcomes := m.EvaluateCycle(context.Background())
	assert.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Triggered)
	assert.Equal(t, "binance", outcomes[0].Signal.Venue)

	assert.Equal(t, 1, m.SignalCount())
	assert.False(t, m.LastCycleAt().IsZero())
}

func TestManager_NotifyFailureStillDeactivates(t *testing.T) {
	// 空的接收人配置，通知必然失败
	cfgPath := filepath.Join(t.TempDir(), "cfg.toml")
	assert.NoError(t, os.WriteFile(cfgPath, []byte("[pushover]\napi_token = \"tok\"\n"), 0644))
	assert.NoError(t, config.Load(cfgPath))

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(&models.StoreEntity{}))
	sqlDB, err := db.DB()
	assert.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	signalDAO := dao.NewSignalDAO(db)

	chk, err := checker.New([]venue.Adapter{
		&stubAdapter{name: "binance", prices: map[string]decimal.Decimal{
			"BTCUSDT": decimal.NewFromInt(101000),
		}},
	}, time.Millisecond)
	assert.NoError(t, err)
	t.Cleanup(chk.Close)

	m, err := NewManager(signalDAO, chk, nil, notify.NewDispatcher(dao.NewUserDAO(db)))
	assert.NoError(t, err)
	t.Cleanup(m.Close)

	saveSignal(t, signalDAO, &models.Signal{
		Name:        "btc high",
		Venue:       "binance",
		Symbol:      "BTCUSDT",
		Condition:   models.ConditionAbove,
		TargetPrice: decimal.NewFromInt(100000),
		Active:      true,
	})

	outcomes := m.EvaluateCycle(context.Background())
	assert.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Triggered)

	// 通知失败不回滚停用
	loaded, err := signalDAO.LoadAll()
	assert.NoError(t, err)
	assert.False(t, loaded[0].Active)
	assert.Equal(t, 1, loaded[0].TriggeredCount)
}

func TestManager_MaxTriggersExpiry(t *testing.T) {
	m, signalDAO := setupManager(t, map[string]decimal.Decimal{
		"BTCUSDT": decimal.NewFromInt(101000),
	})
	saveSignal(t, signalDAO, &models.Signal{
		Name:           "already spent",
		Venue:          "binance",
		Symbol:         "BTCUSDT",
		Condition:      models.ConditionAbove,
		TargetPrice:    decimal.NewFromInt(100000),
		Active:         true,
		MaxTriggers:    2,
		TriggeredCount: 2,
	})

	// 已达最大触发次数的信号不参与评估
	outcomes := m.EvaluateCycle(context.Background())
	assert.Empty(t, outcomes)
}
