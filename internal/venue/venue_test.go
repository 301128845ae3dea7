package venue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sigwatch/sigwatch-monitor/config"
)

func TestBinance_Normalize(t *testing.T) {
	b := &Binance{}

	assert.Equal(t, "BTCUSDT", b.normalize("BTCUSDT"))
	assert.Equal(t, "BTCUSDT", b.normalize("btc/usdt"))
	assert.Equal(t, "BTCUSDT", b.normalize("BTC-USDT"))
	assert.Equal(t, "ETHUSDC", b.normalize("eth-usdc"))
}

func TestBybit_Normalize(t *testing.T) {
	b := &Bybit{}

	assert.Equal(t, "BTCUSDT", b.normalize("btc/usdt"))
	assert.Equal(t, "BTCUSDT", b.normalize("BTC-USDT"))
}

func TestCoinpaprika_BaseAsset(t *testing.T) {
	c := &Coinpaprika{}

	// 分隔符优先
	assert.Equal(t, "BTC", c.baseAsset("BTC/USDT"))
	assert.Equal(t, "BTC", c.baseAsset("btc-usdt"))

	// 常见计价后缀剥离
	assert.Equal(t, "BTC", c.baseAsset("BTCUSDT"))
	assert.Equal(t, "ETH", c.baseAsset("ETHUSD"))
	assert.Equal(t, "SOL", c.baseAsset("SOLBUSD"))

	// 无法识别时原样返回
	assert.Equal(t, "BTC", c.baseAsset("BTC"))
}

func TestBuild_OrderAndUnknown(t *testing.T) {
	cfg := &config.Venues{
		Order:          []string{NameBybit, NameBinance},
		RequestTimeout: 5 * time.Second,
	}

	adapters, err := Build(cfg)
	assert.NoError(t, err)
	assert.Len(t, adapters, 2)
	// 配置顺序即 fallback 顺序
	assert.Equal(t, NameBybit, adapters[0].Name())
	assert.Equal(t, NameBinance, adapters[1].Name())

	cfg.Order = []string{"kraken"}
	_, err = Build(cfg)
	assert.Error(t, err)
	// 报错里列出已注册的行情源，便于排查配置
	assert.Contains(t, err.Error(), NameBinance)
	assert.Contains(t, err.Error(), NameBybit)
	assert.Contains(t, err.Error(), NameCoinpaprika)
}
