package nats

import (
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/sigwatch/sigwatch-monitor/internal/models"
	"github.com/sigwatch/sigwatch-monitor/internal/monitor"
	"github.com/sigwatch/sigwatch-monitor/pkg/logger"
)

// Publisher NATS 发布器
type Publisher struct {
	*nats.Conn
	mu     sync.RWMutex
	closed bool
}

// NewPublisher 创建 NATS 发布器
func NewPublisher(url string) (*Publisher, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, err
	}

	p := &Publisher{
		Conn: conn,
	}

	// 更新指标
	monitor.SetNATSConnected(true)

	return p, nil
}

// PublishOutcome 发布信号评估结果
func (p *Publisher) PublishOutcome(outcome *models.EvaluationOutcome) error {
	msg := &EvaluationOutcomeMsg{
		SignalID:      outcome.Signal.ID,
		Name:          outcome.Signal.Name,
		Venue:         outcome.Signal.Venue,
		Symbol:        outcome.Signal.Symbol,
		Condition:     string(outcome.Signal.Condition),
		TargetPrice:   outcome.Signal.TargetPrice.String(),
		ObservedPrice: outcome.ObservedPrice.String(),
		Triggered:     outcome.Triggered,
		Owner:         outcome.Signal.Owner,
		Timestamp:     outcome.ObservedAt.UnixMilli(),
	}

	data, err := msg.Marshal()
	if err != nil {
		return err
	}

	if err := p.Publish(TopicEvaluationOutcome, data); err != nil {
		logger.Error().Err(err).Str("signal_id", msg.SignalID).Msg("publish outcome failed")
		return err
	}

	monitor.IncOutcomePublished()
	return nil
}

// IsConnected 检查发布器是否已连接
func (p *Publisher) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return !p.closed && p.Conn != nil && !p.Conn.IsClosed()
}

// Close 关闭连接
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true

	// 更新指标
	monitor.SetNATSConnected(false)

	if p.Conn != nil {
		p.Conn.Close()
	}
	return nil
}
