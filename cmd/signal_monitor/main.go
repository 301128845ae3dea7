package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/sigwatch/sigwatch-monitor/config"
	"github.com/sigwatch/sigwatch-monitor/internal/checker"
	"github.com/sigwatch/sigwatch-monitor/internal/cleaner"
	"github.com/sigwatch/sigwatch-monitor/internal/dal"
	"github.com/sigwatch/sigwatch-monitor/internal/dao"
	"github.com/sigwatch/sigwatch-monitor/internal/feed"
	"github.com/sigwatch/sigwatch-monitor/internal/manager"
	"github.com/sigwatch/sigwatch-monitor/internal/monitor"
	"github.com/sigwatch/sigwatch-monitor/internal/nats"
	"github.com/sigwatch/sigwatch-monitor/internal/notify"
	"github.com/sigwatch/sigwatch-monitor/internal/venue"
	"github.com/sigwatch/sigwatch-monitor/pkg/goplus"
	"github.com/sigwatch/sigwatch-monitor/pkg/logger"
	"github.com/sigwatch/sigwatch-monitor/pkg/sigproc"
)

func main() {
	var configFile string
	flag.StringVar(&configFile, "config", "cfg.toml", "config file path")
	flag.Parse()

	// 加载配置
	if err := config.Init(configFile); err != nil {
		panic(err)
	}
	cfg := config.Get()

	// 初始化日志
	if err := initLogger(cfg); err != nil {
		panic("init logger failed: " + err.Error())
	}
	defer logger.Close()

	logger.Info().Msg("signal_monitor service starting...")

	// 初始化指标
	monitor.InitMetrics()

	// 初始化数据库
	dal.InitMysqlDB(cfg.MySQL)

	// 自动迁移表结构
	dal.AutoMigrate()

	// 初始化 DAO
	dao.InitDAO(dal.MySQL())

	// 创建数据清理器
	dataCleaner := cleaner.NewCleaner(dao.Signals(), cfg.Cleaner.Interval, cfg.Cleaner.Retention)
	dataCleaner.Start()

	// 初始化 NATS
	publisher, err := nats.NewPublisher(cfg.NATS.Endpoint)
	if err != nil {
		logger.Fatal().Err(err).Msg("init nats publisher failed")
	}
	defer publisher.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 构造行情源适配器，连不上的剔除
	adapters, err := venue.Build(&cfg.Venues)
	if err != nil {
		logger.Fatal().Err(err).Msg("build venue adapters failed")
	}
	var connected []venue.Adapter
	for _, a := range adapters {
		if err := a.Connect(ctx); err != nil {
			logger.Error().Err(err).Str("venue", a.Name()).Msg("venue unreachable, excluding")
			continue
		}
		connected = append(connected, a)
	}
	if len(connected) == 0 {
		logger.Fatal().Msg("no venue reachable")
	}

	// 配置的默认行情源排到首位，未指定 venue 的信号落到它头上
	for i, a := range connected {
		if a.Name() == cfg.Monitor.DefaultVenue && i > 0 {
			rest := append(connected[:i:i], connected[i+1:]...)
			connected = append([]venue.Adapter{a}, rest...)
			break
		}
	}

	// 创建行情聚合器
	priceChecker, err := checker.New(connected, cfg.Venues.QuoteCacheTTL)
	if err != nil {
		logger.Fatal().Err(err).Msg("init price checker failed")
	}

	// 创建通知分发器
	dispatcher := notify.NewDispatcher(dao.Users())

	// 创建信号评估管理器
	signalManager, err := manager.NewManager(dao.Signals(), priceChecker, publisher, dispatcher)
	if err != nil {
		logger.Fatal().Err(err).Msg("init signal manager failed")
	}

	// 启动信号数据源加载器
	var feedLoader *feed.Loader
	if cfg.Feed.Path != "" {
		feedLoader = feed.NewLoader(cfg.Feed.Path, cfg.Feed.ReloadInterval, dao.Signals(), dao.Users())
		if err := feedLoader.Start(); err != nil {
			logger.Error().Err(err).Str("path", cfg.Feed.Path).Msg("start feed loader failed")
		}
	}

	// 初始化健康检查服务器
	healthServer := monitor.NewHealthServer(cfg.Monitor.HealthServerAddr, publisher, signalManager)
	healthServer.Start()

	logger.Info().
		Str("default_venue", priceChecker.DefaultVenue()).
		Str("health_addr", cfg.Monitor.HealthServerAddr).
		Dur("check_interval", cfg.Monitor.CheckInterval).
		Msg("signal_monitor service started successfully")

	// 评估主循环
	goplus.Go(func() {
		ticker := time.NewTicker(cfg.Monitor.CheckInterval)
		defer ticker.Stop()

		signalManager.EvaluateCycle(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				signalManager.EvaluateCycle(ctx)
			}
		}
	})

	// 优雅关闭
	sigproc.GracefulShutdown(func(sig os.Signal) {
		logger.Info().Str("signal", sig.String()).Msg("shutting down...")

		// 停止评估循环
		cancel()

		// 停止数据清理器
		dataCleaner.Stop()

		// 停止数据源加载器
		if feedLoader != nil {
			feedLoader.Stop()
		}

		// 关闭评估管理器和行情聚合器
		signalManager.Close()
		priceChecker.Close()
		for _, a := range connected {
			_ = a.Close()
		}

		// 关闭健康检查服务器
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = healthServer.Stop(shutdownCtx)

		// 关闭配置重载
		config.Stop()

		// 关闭数据库
		dal.CloseMySQL()

		logger.Info().Msg("signal_monitor service stopped")
	})

	<-ctx.Done()
}

func initLogger(cfg *config.Config) error {
	return logger.NewBuilder().
		SetPath(cfg.Logger.Path).
		SetMaxSize(cfg.Logger.MaxSize).
		SetMaxBackups(cfg.Logger.MaxBackups).
		SetMaxAge(cfg.Logger.MaxAge).
		SetLevel(cfg.Logger.Level).
		EnableCompression(cfg.Logger.Compress).
		EnableConsoleOutput(cfg.Logger.Console).
		Build()
}
