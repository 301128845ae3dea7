package cleaner

import (
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/sigwatch/sigwatch-monitor/internal/dao"
	"github.com/sigwatch/sigwatch-monitor/internal/models"
	"github.com/sigwatch/sigwatch-monitor/pkg/goplus"
	"github.com/sigwatch/sigwatch-monitor/pkg/logger"
)

// Cleaner 数据清理器，定时清理历史信号
type Cleaner struct {
	signalDAO *dao.SignalDAO
	interval  time.Duration // 清理间隔
	retention time.Duration // 已触发信号保留时长
	done      chan struct{} // 停止信号
}

// NewCleaner 创建清理器
func NewCleaner(signalDAO *dao.SignalDAO, interval, retention time.Duration) *Cleaner {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Cleaner{
		signalDAO: signalDAO,
		interval:  interval,
		retention: retention,
		done:      make(chan struct{}),
	}
}

// Start 启动清理任务
func (c *Cleaner) Start() {
	goplus.Go(func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		logger.Info().Msg("cleaner started")

		// 启动时立即执行一次
		c.clean()

		for {
			select {
			case <-ticker.C:
				c.clean()
			case <-c.done:
				logger.Info().Msg("cleaner stopped")
				return
			}
		}
	})
}

// Stop 停止清理器
func (c *Cleaner) Stop() {
	close(c.done)
}

// clean 执行清理任务
func (c *Cleaner) clean() {
	logger.Debug().Msg("running cleanup task")

	signals, err := c.signalDAO.LoadAll()
	if err != nil {
		logger.Error().Err(err).Msg("load signals for cleanup failed")
		return
	}

	if err := c.cleanTriggered(signals); err != nil {
		logger.Error().Err(err).Msg("clean triggered signals failed")
	}
	if err := c.cleanDuplicates(signals); err != nil {
		logger.Error().Err(err).Msg("clean duplicate signals failed")
	}
}

// cleanTriggered 删除已触发停用且超过保留期的信号
func (c *Cleaner) cleanTriggered(signals []*models.Signal) error {
	if c.retention <= 0 {
		return nil
	}
	cutoff := time.Now().Add(-c.retention)

	var deleted int
	for _, s := range signals {
		if s.Active || s.TriggeredCount == 0 || s.LastTriggeredAt == nil {
			continue
		}
		if s.LastTriggeredAt.After(cutoff) {
			continue
		}
		if err := c.signalDAO.Delete(s.ID); err != nil {
			return err
		}
		deleted++
	}

	if deleted > 0 {
		logger.Info().
			Int("deleted", deleted).
			Time("cutoff", cutoff).
			Msg("cleaned expired triggered signals")
	}
	return nil
}

// cleanDuplicates 合并同一监控目标的重复记录
// 历史数据可能存在同目标不同 ID 的记录，保留创建最早的一条
func (c *Cleaner) cleanDuplicates(signals []*models.Signal) error {
	groups := lo.GroupBy(signals, identityKey)

	var deleted int
	for _, group := range groups {
		if len(group) < 2 {
			continue
		}

		keep := lo.MinBy(group, func(a, b *models.Signal) bool {
			return a.CreatedAt.Before(b.CreatedAt)
		})
		for _, s := range group {
			if s.ID == keep.ID {
				continue
			}
			if err := c.signalDAO.Delete(s.ID); err != nil {
				return err
			}
			deleted++
		}
	}

	if deleted > 0 {
		logger.Info().
			Int("deleted", deleted).
			Msg("cleaned duplicate signals")
	}
	return nil
}

// identityKey 信号的监控目标标识
func identityKey(s *models.Signal) string {
	venue := s.Venue
	if venue == "" {
		venue = "any"
	}
	owner := s.Owner
	if owner == "" {
		owner = models.DefaultOwner
	}
	return strings.Join([]string{venue, s.Symbol, string(s.Condition), s.TargetPrice.String(), owner}, "|")
}
