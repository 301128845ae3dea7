package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestSignal_GenerateID_Deterministic(t *testing.T) {
	s1 := &Signal{
		Venue:       "binance",
		Symbol:      "BTCUSDT",
		Condition:   ConditionAbove,
		TargetPrice: decimal.NewFromInt(100000),
		Owner:       "alice",
	}
	s2 := &Signal{
		Venue:       "binance",
		Symbol:      "BTCUSDT",
		Condition:   ConditionAbove,
		TargetPrice: decimal.NewFromInt(100000),
		Owner:       "alice",
	}

	// 同一目标生成同一 ID
	assert.Equal(t, s1.GenerateID(), s2.GenerateID())
	assert.Len(t, s1.GenerateID(), 16)
}

func TestSignal_GenerateID_FieldChange(t *testing.T) {
	base := Signal{
		Venue:       "binance",
		Symbol:      "BTCUSDT",
		Condition:   ConditionAbove,
		TargetPrice: decimal.NewFromInt(100000),
		Owner:       "alice",
	}

	// 任一关键字段变化都得到不同 ID
	changed := base
	changed.Symbol = "ETHUSDT"
	assert.NotEqual(t, base.GenerateID(), changed.GenerateID())

	changed = base
	changed.Condition = ConditionBelow
	assert.NotEqual(t, base.GenerateID(), changed.GenerateID())

	changed = base
	changed.TargetPrice = decimal.NewFromInt(99999)
	assert.NotEqual(t, base.GenerateID(), changed.GenerateID())

	changed = base
	changed.Owner = "bob"
	assert.NotEqual(t, base.GenerateID(), changed.GenerateID())

	// 非关键字段不影响 ID
	changed = base
	changed.Name = "renamed"
	changed.Notes = "whatever"
	changed.Active = true
	assert.Equal(t, base.GenerateID(), changed.GenerateID())
}

func TestSignal_GenerateID_Placeholders(t *testing.T) {
	// venue/owner 为空时使用占位符，与显式占位符等价
	implicit := &Signal{
		Symbol:      "BTCUSDT",
		Condition:   ConditionAbove,
		TargetPrice: decimal.NewFromInt(100000),
	}
	explicit := &Signal{
		Venue:       "binance",
		Symbol:      "BTCUSDT",
		Condition:   ConditionAbove,
		TargetPrice: decimal.NewFromInt(100000),
	}
	assert.NotEqual(t, implicit.GenerateID(), explicit.GenerateID())
}

func TestParseCondition(t *testing.T) {
	cases := []struct {
		in   string
		want Condition
	}{
		{"above", ConditionAbove},
		{">", ConditionAbove},
		{">=", ConditionAbove},
		{"Below", ConditionBelow},
		{"<", ConditionBelow},
		{"equal", ConditionEqual},
		{"=", ConditionEqual},
		{"==", ConditionEqual},
		{" percent_change ", ConditionPercentChange},
	}
	for _, c := range cases {
		got, err := ParseCondition(c.in)
		assert.NoError(t, err, c.in)
		assert.Equal(t, c.want, got, c.in)
	}

	_, err := ParseCondition("crosses")
	assert.Error(t, err)
	_, err = ParseCondition("")
	assert.Error(t, err)
}

func TestSignal_Validate(t *testing.T) {
	valid := Signal{
		Name:        "btc high",
		Symbol:      "BTCUSDT",
		Condition:   ConditionAbove,
		TargetPrice: decimal.NewFromInt(100000),
	}
	assert.NoError(t, valid.Validate())

	// 缺少交易对
	s := valid
	s.Symbol = ""
	assert.Error(t, s.Validate())

	// 交易对必须大写
	s = valid
	s.Symbol = "btcusdt"
	assert.Error(t, s.Validate())

	// 目标价必须为正
	s = valid
	s.TargetPrice = decimal.Zero
	assert.Error(t, s.Validate())

	// percent_change 必须带阈值
	s = valid
	s.Condition = ConditionPercentChange
	assert.Error(t, s.Validate())

	threshold := decimal.NewFromInt(5)
	s.PercentThreshold = &threshold
	assert.NoError(t, s.Validate())

	// 阈值超出范围
	bad := decimal.NewFromInt(150)
	s.PercentThreshold = &bad
	assert.Error(t, s.Validate())
}

func TestSignal_Runnable(t *testing.T) {
	s := Signal{Active: true}
	assert.True(t, s.Runnable())

	// 停用后不参与评估
	s.Active = false
	assert.False(t, s.Runnable())

	// 达到最大触发次数后过期
	s = Signal{Active: true, MaxTriggers: 1, TriggeredCount: 1}
	assert.True(t, s.Expired())
	assert.False(t, s.Runnable())

	// MaxTriggers 为 0 表示不限
	now := time.Now()
	s = Signal{Active: true, MaxTriggers: 0, TriggeredCount: 10, LastTriggeredAt: &now}
	assert.False(t, s.Expired())
	assert.True(t, s.Runnable())
}
