package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"coinvault.com/internal/creditor"
	"coinvault.com/internal/creditor/domain"
	"coinvault.com/internal/creditor/oracle"
	"coinvault.com/internal/creditor/oracle/bitcoin"
	"coinvault.com/internal/creditor/oracle/ethereum"
	"coinvault.com/internal/creditor/persistence"
	"coinvault.com/internal/creditor/scheduler"
	"coinvault.com/internal/creditor/service"
	"coinvault.com/pkg/config"
	"coinvault.com/pkg/logger"
	"coinvault.com/pkg/metrics"
	"coinvault.com/pkg/orm"
	"coinvault.com/pkg/safe"
	"coinvault.com/pkg/xredis"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	// ========= 0) 全局上下文 & 优雅退出 =========
	// DB/Redis/调度器都挂在这个 ctx 上，收到 SIGINT/SIGTERM 时统一取消
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========= 1) 配置 & 日志 =========
	var cfg = &creditor.Cfg{}
	_, err := config.LoadAndWatch("creditor-service", cfg)
	if err != nil {
		panic(fmt.Sprintf("加载配置出错: %+v", err))
	}

	logger.Init(cfg.Name, cfg.LogLevel)
	defer logger.Sync()
	logger.Info(ctx, "服务开始启动")

	// ========= 2) 基础设施 =========
	db := orm.NewMySQL(&orm.Config{
		DSN:         cfg.Mysql.DSN,
		MaxIdle:     cfg.Mysql.MaxIdle,
		MaxOpen:     cfg.Mysql.MaxOpen,
		MaxLifetime: cfg.Mysql.MaxLifetime,
	})
	repo := persistence.New(db)

	var lease *xredis.MasterLease
	if cfg.Redis.Enabled {
		rdb := xredis.NewRedis(&xredis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		lease = xredis.NewMasterLease(rdb)
		logger.Info(ctx, "多实例租约已启用", zap.String("node", lease.NodeID()))
	}

	logger.Info(ctx, "✅ Infrastructure initialized")

	// ========= 3) 预言机 (每条链一个，统一套熔断) =========
	btcAdapter, err := bitcoin.New(cfg.Bitcoin.Host, cfg.Bitcoin.User, cfg.Bitcoin.Pass)
	if err != nil {
		logger.Fatal(ctx, "BTC oracle init failed", zap.Error(err))
	}
	defer btcAdapter.Shutdown()

	ethAdapter, err := ethereum.New(cfg.Ethereum.Url)
	if err != nil {
		logger.Fatal(ctx, "ETH oracle init failed", zap.Error(err))
	}
	defer ethAdapter.Close()

	oracles := map[domain.Currency]domain.ConfirmationOracle{
		domain.CurrencyBTC: oracle.WithBreaker("btc-oracle", btcAdapter),
		domain.CurrencyETH: oracle.WithBreaker("eth-oracle", ethAdapter),
		// USDT 走 ERC20，确认语义和 ETH 一致
		domain.CurrencyUSDT: oracle.WithBreaker("usdt-oracle", ethAdapter),
	}

	// ========= 4) 确认流水线 & 调度器 =========
	svc := service.New(repo, oracles, service.Config{
		BatchSize:    cfg.Confirm.BatchSize,
		Workers:      cfg.Confirm.Workers,
		ConfirmNum:   cfg.Confirm.ConfirmNum,
		ExpiryWindow: time.Duration(cfg.Confirm.ExpiryHours) * time.Hour,
		LockLease:    time.Duration(cfg.Confirm.LeaseSeconds) * time.Second,
		OracleQPS:    cfg.Confirm.OracleQPS,
	})

	sched := scheduler.New(svc, lease, scheduler.Config{
		Interval: time.Duration(cfg.Confirm.IntervalSeconds) * time.Second,
	})

	// ========= 5) 指标 =========
	metrics.MustRegister()
	safe.Go(func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "metrics server exited", zap.Error(err))
		}
	})

	// ========= 6) 启动 =========
	if err := sched.Start(ctx); err != nil {
		logger.Error(ctx, "scheduler exited", zap.Error(err))
	}

	logger.Info(ctx, "服务已退出")
}
