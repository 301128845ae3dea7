package feed

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/sigwatch/sigwatch-monitor/internal/dao"
	"github.com/sigwatch/sigwatch-monitor/internal/models"
)

func setupLoader(t *testing.T, csv string) (*Loader, *dao.SignalDAO, *dao.UserDAO) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(&models.StoreEntity{}))

	path := filepath.Join(t.TempDir(), "signals.csv")
	assert.NoError(t, os.WriteFile(path, []byte(csv), 0644))

	signalDAO := dao.NewSignalDAO(db)
	userDAO := dao.NewUserDAO(db)
	return NewLoader(path, 0, signalDAO, userDAO), signalDAO, userDAO
}

func TestLoader_ImportRows(t *testing.T) {
	csv := "name,venue,symbol,condition,target_price,max_triggers,active,owner,pushover_key\n" +
		"btc high,binance,BTCUSDT,above,100000,1,true,alice,u-alice\n" +
		"eth dip,bybit,ethusdt,<,3500,,true,bob,\n"

	l, signalDAO, userDAO := setupLoader(t, csv)
	assert.NoError(t, l.loadOnce())

	signals, err := signalDAO.LoadAll()
	assert.NoError(t, err)
	assert.Len(t, signals, 2)

	bySymbol := map[string]*models.Signal{}
	for _, s := range signals {
		bySymbol[s.Symbol] = s
	}

	btc := bySymbol["BTCUSDT"]
	assert.Equal(t, "btc high", btc.Name)
	assert.Equal(t, models.ConditionAbove, btc.Condition)
	assert.True(t, btc.TargetPrice.Equal(decimal.NewFromInt(100000)))
	assert.Equal(t, 1, btc.MaxTriggers)
	assert.Equal(t, "alice", btc.Owner)

	// 交易对统一转大写，"<" 简写解析为 below
	eth := bySymbol["ETHUSDT"]
	assert.Equal(t, models.ConditionBelow, eth.Condition)

	// 行内携带的 pushover_key 登记到用户记录
	data, err := userDAO.Get("alice")
	assert.NoError(t, err)
	assert.Equal(t, "u-alice", data[dao.UserKeyPushover])
}

func TestLoader_SkipsBadRows(t *testing.T) {
	csv := "name,venue,symbol,condition,target_price\n" +
		"good,binance,BTCUSDT,above,100000\n" +
		"no symbol,binance,,above,100000\n" +
		"bad condition,binance,ETHUSDT,crosses,4000\n" +
		"bad price,binance,ETHUSDT,above,not-a-number\n" +
		"zero price,binance,ETHUSDT,above,0\n"

	l, signalDAO, _ := setupLoader(t, csv)
	assert.NoError(t, l.loadOnce())

	// 坏行全部跳过，好行正常导入
	signals, err := signalDAO.LoadAll()
	assert.NoError(t, err)
	assert.Len(t, signals, 1)
	assert.Equal(t, "good", signals[0].Name)
}

func TestLoader_SkipsInactiveRows(t *testing.T) {
	csv := "name,venue,symbol,condition,target_price,active\n" +
		"live,binance,BTCUSDT,above,100000,true\n" +
		"paused,binance,ETHUSDT,above,4000,false\n" +
		"paused short,binance,SOLUSDT,above,300,n\n" +
		"paused numeric,binance,XRPUSDT,above,2,0\n"

	l, signalDAO, _ := setupLoader(t, csv)
	assert.NoError(t, l.loadOnce())

	// 停用行不导入，也不产生记录
	signals, err := signalDAO.LoadAll()
	assert.NoError(t, err)
	assert.Len(t, signals, 1)
	assert.Equal(t, "live", signals[0].Name)
}

func TestLoader_InactiveRowDoesNotTouchExisting(t *testing.T) {
	active := "name,venue,symbol,condition,target_price,active\n" +
		"btc high,binance,BTCUSDT,above,100000,true\n"
	l, signalDAO, _ := setupLoader(t, active)
	assert.NoError(t, l.loadOnce())

	// 同一目标随后被标记停用：该行跳过，已导入的信号保持原状
	inactive := "name,venue,symbol,condition,target_price,active\n" +
		"btc high,binance,BTCUSDT,above,100000,false\n"
	assert.NoError(t, os.WriteFile(l.path, []byte(inactive), 0644))
	assert.NoError(t, l.loadOnce())

	signals, err := signalDAO.LoadAll()
	assert.NoError(t, err)
	assert.Len(t, signals, 1)
	assert.True(t, signals[0].Active)
}

func TestLoader_ReloadIsIdempotent(t *testing.T) {
	csv := "name,venue,symbol,condition,target_price\n" +
		"btc high,binance,BTCUSDT,above,100000\n"

	l, signalDAO, _ := setupLoader(t, csv)
	assert.NoError(t, l.loadOnce())
	assert.NoError(t, l.loadOnce())

	// 同一目标重复导入不产生新记录
	signals, err := signalDAO.LoadAll()
	assert.NoError(t, err)
	assert.Len(t, signals, 1)
}

func TestLoader_DefaultName(t *testing.T) {
	csv := "name,venue,symbol,condition,target_price\n" +
		",binance,BTCUSDT,above,100000\n"

	l, signalDAO, _ := setupLoader(t, csv)
	assert.NoError(t, l.loadOnce())

	signals, err := signalDAO.LoadAll()
	assert.NoError(t, err)
	assert.Len(t, signals, 1)
	assert.NotEmpty(t, signals[0].Name)
}

func TestLoader_MissingFile(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(&models.StoreEntity{}))

	l := NewLoader("/nonexistent/signals.csv", 0, dao.NewSignalDAO(db), dao.NewUserDAO(db))
	assert.Error(t, l.Start())
}
