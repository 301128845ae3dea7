package dao

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sigwatch/sigwatch-monitor/internal/models"
	"github.com/sigwatch/sigwatch-monitor/pkg/logger"
)

// SignalDAO 信号持久化
// Save 的读-改-写不在事务内，同一 ID 并发写入为 last-writer-wins，
// created_at 保留依赖写前读取；部署假定单实例 evaluator
type SignalDAO struct {
	db *gorm.DB
}

var (
	_signal     *SignalDAO
	_signalOnce sync.Once
)

// InitSignalDAO 初始化 SignalDAO
func InitSignalDAO(db *gorm.DB) {
	_signalOnce.Do(func() {
		_signal = NewSignalDAO(db)
	})
}

// Signals 获取 SignalDAO 单例
func Signals() *SignalDAO {
	return _signal
}

func NewSignalDAO(db *gorm.DB) *SignalDAO {
	return &SignalDAO{db: db}
}

// LoadAll 加载全部信号，不区分归属人
// 优先走 kind 索引查询，查询失败时降级为全表扫描后内存过滤
func (d *SignalDAO) LoadAll() ([]*models.Signal, error) {
	var rows []*models.StoreEntity

	err := d.db.Where("kind = ?", models.KindSignal).Find(&rows).Error
	if err != nil {
		logger.Warn().Err(err).Msg("kind-indexed query failed, falling back to full scan")

		var all []*models.StoreEntity
		if err = d.db.Find(&all).Error; err != nil {
			return nil, fmt.Errorf("load signals failed: %w", err)
		}
		rows = rows[:0]
		for _, row := range all {
			if row.Kind == models.KindSignal {
				rows = append(rows, row)
			}
		}
	}

	signals := make([]*models.Signal, 0, len(rows))
	for _, row := range rows {
		var sig models.Signal
		if err := json.Unmarshal([]byte(row.Payload), &sig); err != nil {
			logger.Warn().Err(err).Str("entity_id", row.EntityID).Msg("skip malformed signal payload")
			continue
		}
		signals = append(signals, &sig)
	}

	logger.Debug().Int("count", len(signals)).Msg("signals loaded")
	return signals, nil
}

// Save 保存或更新信号（upsert）
// 已存在同 ID 记录时保留其 created_at，其余字段整体覆盖
func (d *SignalDAO) Save(sig *models.Signal) error {
	if sig.ID == "" {
		sig.ID = sig.GenerateID()
	}

	now := time.Now()

	var existing models.StoreEntity
	err := d.db.Where("kind = ? AND entity_id = ?", models.KindSignal, sig.ID).
		First(&existing).Error
	switch {
	case err == nil:
		// upsert：沿用首次写入时间
		sig.CreatedAt = existing.CreatedAt
	case errors.Is(err, gorm.ErrRecordNotFound):
		if sig.CreatedAt.IsZero() {
			sig.CreatedAt = now
		}
	default:
		return fmt.Errorf("lookup signal %s failed: %w", sig.ID, err)
	}

	sig.UpdatedAt = now

	payload, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("marshal signal %s failed: %w", sig.ID, err)
	}

	entity := &models.StoreEntity{
		Kind:      models.KindSignal,
		EntityID:  sig.ID,
		Payload:   string(payload),
		CreatedAt: sig.CreatedAt,
		UpdatedAt: sig.UpdatedAt,
	}

	if err = d.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(entity).Error; err != nil {
		return fmt.Errorf("save signal %s failed: %w", sig.ID, err)
	}

	logger.Debug().Str("id", sig.ID).Str("name", sig.Name).Msg("signal saved")
	return nil
}

// Update 更新信号，语义与 Save 相同（整体覆盖 upsert）
func (d *SignalDAO) Update(sig *models.Signal) error {
	return d.Save(sig)
}

// Delete 按 ID 删除信号
func (d *SignalDAO) Delete(id string) error {
	err := d.db.Where("kind = ? AND entity_id = ?", models.KindSignal, id).
		Delete(&models.StoreEntity{}).Error
	if err != nil {
		return fmt.Errorf("delete signal %s failed: %w", id, err)
	}
	return nil
}

// DB 返回底层连接，供维护任务使用
func (d *SignalDAO) DB() *gorm.DB {
	return d.db
}
