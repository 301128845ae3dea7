package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/sigwatch/sigwatch-monitor/config"
	"github.com/sigwatch/sigwatch-monitor/internal/dao"
	"github.com/sigwatch/sigwatch-monitor/internal/models"
	"github.com/sigwatch/sigwatch-monitor/internal/monitor"
	"github.com/sigwatch/sigwatch-monitor/pkg/logger"
)

const pushoverAPIURL = "https://api.pushover.net/1/messages.json"

var (
	ErrNoAPIToken  = errors.New("pushover api token not configured")
	ErrNoRecipient = errors.New("no recipient key for owner")
)

// Dispatcher 通知分发器
// 通知失败只记录日志，不重试，不影响信号状态流转
type Dispatcher struct {
	cli     *http.Client
	userDAO *dao.UserDAO
	apiURL  string
}

// NewDispatcher 创建通知分发器
func NewDispatcher(userDAO *dao.UserDAO) *Dispatcher {
	timeout := config.Get().Pushover.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		cli:     &http.Client{Timeout: timeout},
		userDAO: userDAO,
		apiURL:  pushoverAPIURL,
	}
}

// Send 发送触发通知
func (d *Dispatcher) Send(ctx context.Context, outcome *models.EvaluationOutcome) error {
	sig := outcome.Signal

	userKey, err := d.resolveUserKey(sig.Owner)
	if err != nil {
		logger.Error().Err(err).
			Str("signal_id", sig.ID).
			Str("owner", sig.Owner).
			Msg("resolve recipient failed")
		monitor.IncNotify("no_recipient")
		return err
	}

	cfg := config.Get().Pushover
	if cfg.APIToken == "" {
		logger.Error().Str("signal_id", sig.ID).Msg("pushover api token missing")
		monitor.IncNotify("no_token")
		return ErrNoAPIToken
	}

	title := fmt.Sprintf("Alert: %s", sig.Name)
	message := fmt.Sprintf("%s %s price %s reached target %s (%s)",
		strings.ToUpper(sig.Venue), sig.Symbol,
		outcome.ObservedPrice.String(), sig.TargetPrice.String(), sig.Condition)

	form := url.Values{}
	form.Set("token", cfg.APIToken)
	form.Set("user", userKey)
	form.Set("title", title)
	form.Set("message", message)
	form.Set("sound", "persistent")
	form.Set("priority", "2")
	form.Set("retry", strconv.Itoa(int(cfg.Retry.Seconds())))
	form.Set("expire", strconv.Itoa(int(cfg.Expire.Seconds())))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		monitor.IncNotify("failed")
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := d.cli.Do(req)
	if err != nil {
		logger.Error().Err(err).Str("signal_id", sig.ID).Msg("pushover request failed")
		monitor.IncNotify("failed")
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		monitor.IncNotify("failed")
		return err
	}

	if resp.StatusCode != http.StatusOK || gjson.GetBytes(body, "status").Int() != 1 {
		logger.Error().
			Str("signal_id", sig.ID).
			Int("http_status", resp.StatusCode).
			Str("body", string(body)).
			Msg("pushover rejected message")
		monitor.IncNotify("failed")
		return fmt.Errorf("pushover rejected: http %d", resp.StatusCode)
	}

	logger.Info().
		Str("signal_id", sig.ID).
		Str("owner", sig.Owner).
		Str("symbol", sig.Symbol).
		Msg("notification sent")
	monitor.IncNotify("sent")
	return nil
}

// resolveUserKey 解析接收人的 Pushover user key
// 先查中心配置的接收人目录：归属人在目录中缺席时兜底 default 接收人；
// 归属人存在但被停用则不碰 default，直接回退到存储中的用户记录
func (d *Dispatcher) resolveUserKey(owner string) (string, error) {
	recipients := config.Get().Recipients

	if r, ok := recipients[owner]; ok {
		if r.Enabled && r.UserKey != "" {
			return r.UserKey, nil
		}
	} else if r, ok := recipients[models.DefaultOwner]; ok && r.Enabled && r.UserKey != "" {
		return r.UserKey, nil
	}

	data, err := d.userDAO.Get(owner)
	if err != nil {
		return "", err
	}
	if key := data[dao.UserKeyPushover]; key != "" {
		return key, nil
	}

	return "", ErrNoRecipient
}
