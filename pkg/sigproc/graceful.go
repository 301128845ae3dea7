package sigproc

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sigwatch/sigwatch-monitor/pkg/goplus"
	"github.com/sigwatch/sigwatch-monitor/pkg/logger"
)

type HandlerFunc func(os.Signal)

// GracefulShutdown 注册信号处理，最多等待 30 秒后强制退出
func GracefulShutdown(shutdown HandlerFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	goplus.Go(func() {
		sig := <-sigChan
		logger.Info().Str("signal", sig.String()).Msg("received signal")

		goplus.Go(func() {
			shutdown(sig)
		})

		<-time.After(30 * time.Second)

		os.Exit(0)
	})
}
