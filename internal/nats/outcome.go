package nats

import (
	"encoding/json"

	"github.com/sigwatch/sigwatch-monitor/pkg/logger"
)

const TopicEvaluationOutcome = "signal.evaluation.outcome"

// EvaluationOutcomeMsg 信号评估结果消息
type EvaluationOutcomeMsg struct {
	SignalID      string `json:"signal_id"`      // 信号ID
	Name          string `json:"name"`           // 信号名称
	Venue         string `json:"venue"`          // 交易所
	Symbol        string `json:"symbol"`         // 交易对
	Condition     string `json:"condition"`      // 触发条件
	TargetPrice   string `json:"target_price"`   // 目标价格
	ObservedPrice string `json:"observed_price"` // 观测价格
	Triggered     bool   `json:"triggered"`      // 是否触发
	Owner         string `json:"owner"`          // 归属用户
	Timestamp     int64  `json:"timestamp"`      // 观测时间戳 毫秒
}

// Marshal 序列化消息
func (m *EvaluationOutcomeMsg) Marshal() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		logger.Error().Err(err).Msg("marshal outcome failed")
		return nil, err
	}
	return data, nil
}
