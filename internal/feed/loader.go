package feed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"

	"github.com/sigwatch/sigwatch-monitor/internal/dao"
	"github.com/sigwatch/sigwatch-monitor/internal/models"
	"github.com/sigwatch/sigwatch-monitor/internal/monitor"
	"github.com/sigwatch/sigwatch-monitor/pkg/goplus"
	"github.com/sigwatch/sigwatch-monitor/pkg/logger"
)

// 标记为停用的行不导入
var errInactiveRow = errors.New("row marked inactive")

// Loader 信号数据源加载器 - 从 CSV 文件导入监控信号
// 坏行和停用行跳过，不影响其余行
type Loader struct {
	path      string
	interval  time.Duration
	signalDAO *dao.SignalDAO
	userDAO   *dao.UserDAO

	ctx    context.Context
	cancel context.CancelFunc
}

// NewLoader 创建数据源加载器
func NewLoader(path string, interval time.Duration, signalDAO *dao.SignalDAO, userDAO *dao.UserDAO) *Loader {
	ctx, cancel := context.WithCancel(context.Background())
	return &Loader{
		path:      path,
		interval:  interval,
		signalDAO: signalDAO,
		userDAO:   userDAO,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start 启动加载器
func (l *Loader) Start() error {
	if err := l.loadOnce(); err != nil {
		return err
	}

	if l.interval > 0 {
		goplus.Go(func() {
			l.periodicReload()
		})
	}
	return nil
}

// Stop 停止加载器
func (l *Loader) Stop() {
	l.cancel()
}

func (l *Loader) periodicReload() {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-ticker.C:
			if err := l.loadOnce(); err != nil {
				logger.Error().Err(err).Msg("feed reload failed")
			}
		}
	}
}

// loadOnce 读取并导入整个文件
func (l *Loader) loadOnce() error {
	f, err := os.Open(l.path)
	if err != nil {
		return fmt.Errorf("open feed file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("read feed header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}

	var imported, skipped int
	for line := 2; ; line++ {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			logger.Warn().Err(err).Int("line", line).Msg("malformed feed row, skipping")
			monitor.IncFeedRow("skipped")
			skipped++
			continue
		}

		if err := l.importRow(cols, record); err != nil {
			if errors.Is(err, errInactiveRow) {
				logger.Debug().Int("line", line).Msg("skipping inactive signal")
				monitor.IncFeedRow("inactive")
			} else {
				logger.Warn().Err(err).Int("line", line).Msg("feed row rejected, skipping")
				monitor.IncFeedRow("skipped")
			}
			skipped++
			continue
		}
		monitor.IncFeedRow("ok")
		imported++
	}

	logger.Info().
		Str("path", l.path).
		Int("imported", imported).
		Int("skipped", skipped).
		Msg("feed load finished")
	return nil
}

// importRow 解析单行并落库
func (l *Loader) importRow(cols map[string]int, record []string) error {
	field := func(name string) string {
		idx, ok := cols[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	symbol := strings.ToUpper(field("symbol"))
	if symbol == "" {
		return fmt.Errorf("missing symbol")
	}

	condition, err := models.ParseCondition(field("condition"))
	if err != nil {
		return err
	}

	rawTarget := field("target_price")
	if rawTarget == "" {
		return fmt.Errorf("missing target_price")
	}
	target, err := decimal.NewFromString(rawTarget)
	if err != nil {
		return fmt.Errorf("bad target_price %q: %w", rawTarget, err)
	}

	sig := &models.Signal{
		Name:        field("name"),
		Venue:       strings.ToLower(field("venue")),
		Symbol:      symbol,
		Condition:   condition,
		TargetPrice: target,
		Active:      true,
		MaxTriggers: cast.ToInt(field("max_triggers")),
		Owner:       field("owner"),
		Notes:       field("notes"),
	}
	if sig.Name == "" {
		sig.Name = fmt.Sprintf("%s %s %s", symbol, condition, target.String())
	}
	switch strings.ToLower(field("active")) {
	case "false", "no", "0", "n", "f", "off":
		return errInactiveRow
	}
	if raw := field("percent_threshold"); raw != "" {
		t, err := decimal.NewFromString(raw)
		if err != nil {
			return fmt.Errorf("bad percent_threshold %q: %w", raw, err)
		}
		sig.PercentThreshold = &t
	}

	if err := sig.Validate(); err != nil {
		return err
	}

	if err := l.signalDAO.Save(sig); err != nil {
		return fmt.Errorf("save signal: %w", err)
	}

	// 行内携带的 pushover_key 顺带登记到用户记录
	if key := field("pushover_key"); key != "" {
		owner := sig.Owner
		if owner == "" {
			owner = models.DefaultOwner
		}
		if err := l.userDAO.Set(owner, map[string]string{dao.UserKeyPushover: key}); err != nil {
			logger.Warn().Err(err).Str("owner", owner).Msg("save pushover key failed")
		}
	}

	return nil
}
