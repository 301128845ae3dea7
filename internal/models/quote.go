package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceQuote 某一时刻的行情快照，不做历史存储
type PriceQuote struct {
	Venue  string          `json:"venue"`
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`

	Volume24h decimal.Decimal `json:"volume_24h,omitempty"`
	High24h   decimal.Decimal `json:"high_24h,omitempty"`
	Low24h    decimal.Decimal `json:"low_24h,omitempty"`

	AsOf time.Time `json:"as_of"`
}

// EvaluationOutcome 单个信号的单轮评估结果
// 无论是否触发都会生成，供下游审计消费
type EvaluationOutcome struct {
	Signal        *Signal         `json:"signal"`
	ObservedPrice decimal.Decimal `json:"observed_price"`
	Triggered     bool            `json:"triggered"`
	ObservedAt    time.Time       `json:"observed_at"`
}
