package models

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Condition 信号触发条件
type Condition string

const (
	ConditionAbove         Condition = "above"
	ConditionBelow         Condition = "below"
	ConditionEqual         Condition = "equal"
	ConditionPercentChange Condition = "percent_change"
)

// DefaultOwner 未指定归属人时的兜底标识
const DefaultOwner = "default"

// ParseCondition 解析条件字符串
// 兼容配置源里的 ">" / "<" 简写
func ParseCondition(s string) (Condition, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "above", ">", ">=":
		return ConditionAbove, nil
	case "below", "<", "<=":
		return ConditionBelow, nil
	case "equal", "=", "==":
		return ConditionEqual, nil
	case "percent_change":
		return ConditionPercentChange, nil
	default:
		return "", fmt.Errorf("unknown condition %q", s)
	}
}

// Signal 价格监控目标
// ID 由关键字段确定性派生，重复提交同一目标不会产生新记录
type Signal struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// 监控目标
	Venue       string          `json:"venue,omitempty"` // 为空时由 evaluator 替换为默认行情源
	Symbol      string          `json:"symbol"`          // 大写交易对，如 BTCUSDT
	Condition   Condition       `json:"condition"`
	TargetPrice decimal.Decimal `json:"target_price"`

	// percent_change 条件专用
	PercentThreshold *decimal.Decimal `json:"percent_threshold,omitempty"`

	// 生命周期
	Active          bool       `json:"active"`
	MaxTriggers     int        `json:"max_triggers,omitempty"` // 0 表示不限
	TriggeredCount  int        `json:"triggered_count"`
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty"`

	Owner string `json:"owner,omitempty"`
	Notes string `json:"notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GenerateID 基于关键属性生成确定性 ID
// 同一配置永远得到同一 ID，前 16 位十六进制
func (s *Signal) GenerateID() string {
	venue := s.Venue
	if venue == "" {
		venue = "any"
	}
	owner := s.Owner
	if owner == "" {
		owner = DefaultOwner
	}

	input := strings.Join([]string{
		venue,
		s.Symbol,
		string(s.Condition),
		s.TargetPrice.String(),
		owner,
	}, "|")

	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])[:16]
}

// Expired 是否已达到最大触发次数
func (s *Signal) Expired() bool {
	return s.MaxTriggers > 0 && s.TriggeredCount >= s.MaxTriggers
}

// Runnable 是否参与本轮评估
func (s *Signal) Runnable() bool {
	return s.Active && !s.Expired()
}

// Validate 校验信号配置
func (s *Signal) Validate() error {
	if s.Name == "" {
		return errors.New("signal name is required")
	}
	if s.Symbol == "" {
		return errors.New("signal symbol is required")
	}
	if s.Symbol != strings.ToUpper(s.Symbol) {
		return fmt.Errorf("symbol %q must be uppercase", s.Symbol)
	}
	if !s.TargetPrice.IsPositive() {
		return fmt.Errorf("target price must be positive, got %s", s.TargetPrice)
	}

	switch s.Condition {
	case ConditionAbove, ConditionBelow, ConditionEqual:
	case ConditionPercentChange:
		if s.PercentThreshold == nil {
			return errors.New("percent_threshold required for percent_change condition")
		}
		t := *s.PercentThreshold
		if !t.IsPositive() || t.GreaterThan(decimal.NewFromInt(100)) {
			return fmt.Errorf("percent_threshold must be in (0, 100], got %s", t)
		}
	default:
		return fmt.Errorf("unknown condition %q", s.Condition)
	}

	return nil
}
