package manager

import (
	"context"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/sigwatch/sigwatch-monitor/internal/checker"
	"github.com/sigwatch/sigwatch-monitor/internal/dao"
	"github.com/sigwatch/sigwatch-monitor/internal/models"
	"github.com/sigwatch/sigwatch-monitor/internal/monitor"
	"github.com/sigwatch/sigwatch-monitor/internal/nats"
	"github.com/sigwatch/sigwatch-monitor/internal/notify"
	"github.com/sigwatch/sigwatch-monitor/pkg/concurrent"
	"github.com/sigwatch/sigwatch-monitor/pkg/goplus"
	"github.com/sigwatch/sigwatch-monitor/pkg/logger"
)

// Manager 信号评估管理器
// 每轮评估拉取全部信号，按交易所批量取价后逐个比对，
// 触发的信号先发通知再落库停用
type Manager struct {
	signalDAO  *dao.SignalDAO
	checker    *checker.Checker
	publisher  *nats.Publisher
	dispatcher *notify.Dispatcher

	pool *ants.Pool

	mu          sync.RWMutex
	lastCycleAt time.Time
	signalCount int
}

// NewManager 创建信号评估管理器
func NewManager(signalDAO *dao.SignalDAO, chk *checker.Checker, publisher *nats.Publisher, dispatcher *notify.Dispatcher) (*Manager, error) {
	pool, err := ants.NewPool(10)
	if err != nil {
		return nil, err
	}
	return &Manager{
		signalDAO:  signalDAO,
		checker:    chk,
		publisher:  publisher,
		dispatcher: dispatcher,
		pool:       pool,
	}, nil
}

// Close 释放资源
func (m *Manager) Close() {
	m.pool.Release()
}

// LastCycleAt 最近一轮评估时间
func (m *Manager) LastCycleAt() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastCycleAt
}

// SignalCount 最近一轮参与评估的信号数量
func (m *Manager) SignalCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.signalCount
}

// EvaluateCycle 执行一轮完整评估
// 返回所有取到价格的信号的评估结果，取不到价格的信号跳过本轮
func (m *Manager) EvaluateCycle(ctx context.Context) []*models.EvaluationOutcome {
	start := time.Now()
	defer func() {
		monitor.ObserveCycle(time.Since(start))
	}()

	signals, err := m.signalDAO.LoadAll()
	if err != nil {
		logger.Error().Err(err).Msg("load signals failed")
		return nil
	}

	runnable := lo.Filter(signals, func(s *models.Signal, _ int) bool {
		return s.Runnable()
	})

	m.mu.Lock()
	m.lastCycleAt = start
	m.signalCount = len(runnable)
	m.mu.Unlock()
	monitor.SetRunnableSignals(len(runnable))

	if len(runnable) == 0 {
		logger.Debug().Msg("no runnable signals")
		return nil
	}

	// 未指定交易所时落到默认行情源
	defaultVenue := m.checker.DefaultVenue()
	for _, s := range runnable {
		if s.Venue == "" {
			s.Venue = defaultVenue
		}
	}

	prices := m.fetchPrices(ctx, runnable)

	outcomes := make([]*models.EvaluationOutcome, 0, len(runnable))
	for _, s := range runnable {
		quote, ok := prices.Load(priceKey(s.Venue, s.Symbol))
		if !ok {
			logger.Warn().
				Str("signal_id", s.ID).
				Str("venue", s.Venue).
				Str("symbol", s.Symbol).
				Msg("no price this cycle, skipping")
			monitor.IncSignalEvaluated("no_price")
			continue
		}

		outcome := &models.EvaluationOutcome{
			Signal:        s,
			ObservedPrice: quote.Price,
			Triggered:     m.evaluate(s, quote.Price),
			ObservedAt:    time.Now(),
		}
		outcomes = append(outcomes, outcome)

		if outcome.Triggered {
			monitor.IncSignalEvaluated("triggered")
		} else {
			monitor.IncSignalEvaluated("untriggered")
		}

		if m.publisher != nil {
			_ = m.publisher.PublishOutcome(outcome)
		}
	}

	triggered := lo.Filter(outcomes, func(o *models.EvaluationOutcome, _ int) bool {
		return o.Triggered
	})
	if len(triggered) > 0 {
		m.handleTriggered(ctx, triggered)
	}

	logger.Info().
		Int("runnable", len(runnable)).
		Int("evaluated", len(outcomes)).
		Int("triggered", len(triggered)).
		Dur("elapsed", time.Since(start)).
		Msg("evaluation cycle finished")

	return outcomes
}

// fetchPrices 按交易所分组批量取价
func (m *Manager) fetchPrices(ctx context.Context, signals []*models.Signal) *concurrent.Map[string, *models.PriceQuote] {
	prices := &concurrent.Map[string, *models.PriceQuote]{}

	byVenue := lo.GroupBy(signals, func(s *models.Signal) string {
		return s.Venue
	})

	group := goplus.NewWaitGroup()
	for venueName, venueSignals := range byVenue {
		symbols := lo.Uniq(lo.Map(venueSignals, func(s *models.Signal, _ int) string {
			return s.Symbol
		}))
		group.Go(func() {
			for _, quote := range m.checker.FetchMany(ctx, venueName, symbols) {
				// 回退取到的价格同时按请求交易所登记，信号按自己的交易所查表
				prices.Store(priceKey(venueName, quote.Symbol), quote)
			}
		})
	}
	group.Wait()

	return prices
}

// evaluate 比对单个信号
func (m *Manager) evaluate(s *models.Signal, price decimal.Decimal) bool {
	switch s.Condition {
	case models.ConditionAbove:
		return price.GreaterThan(s.TargetPrice)
	case models.ConditionBelow:
		return price.LessThan(s.TargetPrice)
	case models.ConditionEqual:
		return price.Equal(s.TargetPrice)
	case models.ConditionPercentChange:
		// 需要基准价序列，当前轮次只有即时价，无法计算涨跌幅
		logger.Warn().
			Str("signal_id", s.ID).
			Msg("percent_change condition not evaluable without baseline, skipping")
		return false
	default:
		return false
	}
}

// handleTriggered 处理触发的信号：并发发通知，随后更新状态落库
// 通知失败不阻断停用，保证同一信号至多触发一次
func (m *Manager) handleTriggered(ctx context.Context, triggered []*models.EvaluationOutcome) {
	var wg sync.WaitGroup
	for _, outcome := range triggered {
		wg.Add(1)
		if err := m.pool.Submit(func() {
			defer wg.Done()
			defer goplus.Recover()
			if m.dispatcher != nil {
				_ = m.dispatcher.Send(ctx, outcome)
			}
		}); err != nil {
			wg.Done()
			logger.Error().Err(err).Str("signal_id", outcome.Signal.ID).Msg("submit notify task failed")
		}
	}
	wg.Wait()

	now := time.Now()
	var persistWG sync.WaitGroup
	for _, outcome := range triggered {
		s := outcome.Signal
		s.TriggeredCount++
		s.LastTriggeredAt = &now
		s.Active = false

		persistWG.Add(1)
		if err := m.pool.Submit(func() {
			defer persistWG.Done()
			defer goplus.Recover()
			if err := m.signalDAO.Update(s); err != nil {
				logger.Error().Err(err).Str("signal_id", s.ID).Msg("persist triggered signal failed")
				monitor.IncPersistError()
				return
			}
			logger.Info().
				Str("signal_id", s.ID).
				Str("symbol", s.Symbol).
				Str("observed", outcome.ObservedPrice.String()).
				Str("target", s.TargetPrice.String()).
				Msg("signal triggered and deactivated")
		}); err != nil {
			persistWG.Done()
			logger.Error().Err(err).Str("signal_id", s.ID).Msg("submit persist task failed")
			monitor.IncPersistError()
		}
	}
	persistWG.Wait()
}

func priceKey(venueName, symbol string) string {
	return venueName + ":" + symbol
}
