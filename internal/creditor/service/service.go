package service

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"coinvault.com/internal/creditor/domain"
	"coinvault.com/internal/creditor/engine"
	"coinvault.com/pkg/logger"
	"coinvault.com/pkg/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Config 确认流水线参数
type Config struct {
	BatchSize    int           // 每周期最多认领多少条
	Workers      int           // 同时查预言机的 worker 数（尊重外部限流）
	ConfirmNum   int64         // 确认数阈值
	ExpiryWindow time.Duration // 申报后超过该窗口未到账转 expired
	LockLease    time.Duration // 认领租约时长，worker 崩溃后锁自动过期
	OracleQPS    float64       // 预言机查询限速
}

// Service 充值确认流水线
// 认领 -> 查链 -> 状态机 -> 入账 -> 释放，每周期跑一轮
type Service struct {
	store    Store
	oracles  map[domain.Currency]domain.ConfirmationOracle
	creditor *LedgerCreditor
	limiter  *rate.Limiter
	cfg      Config
}

func New(store Store, oracles map[domain.Currency]domain.ConfirmationOracle, cfg Config) *Service {
	// 对默认配置进行兜底
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 5
	}
	if cfg.ConfirmNum <= 0 {
		cfg.ConfirmNum = 3
	}
	if cfg.LockLease <= 0 {
		cfg.LockLease = 5 * time.Minute
	}
	if cfg.OracleQPS <= 0 {
		cfg.OracleQPS = 10
	}

	return &Service{
		store:    store,
		oracles:  oracles,
		creditor: NewLedgerCreditor(store),
		limiter:  rate.NewLimiter(rate.Limit(cfg.OracleQPS), 1),
		cfg:      cfg,
	}
}

// RunConfirmationCycle 跑一轮确认周期，cron 触发或手动调用都行
// 没有可处理记录时是空转
func (s *Service) RunConfirmationCycle(ctx context.Context) error {
	start := time.Now()

	batch, err := s.store.ClaimBatch(ctx, s.cfg.BatchSize, s.cfg.LockLease)
	if err != nil {
		return err
	}
	metrics.ClaimedBatchSize.Set(float64(len(batch)))
	if len(batch) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(batch))
	for _, dep := range batch {
		ids = append(ids, dep.ID)
	}

	logger.Info(ctx, "🔒 认领批次", zap.Int("count", len(batch)))

	// 锁必须释放：不管单条处理成功失败、甚至 tick 的 ctx 被取消
	defer func() {
		if err := s.store.Release(context.WithoutCancel(ctx), ids); err != nil {
			// 释放失败也不致命，租约到期后记录会被重新认领
			logger.Error(ctx, "release claimed deposits failed", zap.Error(err))
		}
		metrics.CycleDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	// 限流标记：预言机返回 429 后，本批次剩余记录直接放弃
	var paused atomic.Bool

	g := new(errgroup.Group)
	g.SetLimit(s.cfg.Workers)
	for _, dep := range batch {
		dep := dep
		g.Go(func() error {
			if paused.Load() || ctx.Err() != nil {
				return nil
			}
			s.processOne(ctx, dep, &paused)
			return nil
		})
	}
	// 单条失败只打日志不冒泡，g.Wait 只等收尾
	_ = g.Wait()

	return nil
}

// processOne 处理一条已认领的充值记录
// 任何分支都不返回错误：单条的失败就是"这周期没处理成"，下周期重来
func (s *Service) processOne(ctx context.Context, dep *domain.Deposit, paused *atomic.Bool) {
	oracle, ok := s.oracles[dep.Currency]
	if !ok {
		logger.Error(ctx, "no oracle configured for currency",
			zap.String("currency", string(dep.Currency)),
			zap.Int64("deposit_id", dep.ID))
		return
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return
	}

	res, oracleErr := oracle.Confirmations(ctx, dep.TxRef)
	if oracleErr != nil {
		kind := "transient"
		switch {
		case errors.Is(oracleErr, domain.ErrRateLimited):
			kind = "rate_limited"
			// 429：暂停本批次剩余记录，别把预言机打死
			paused.Store(true)
		case domain.IsPermanentOracleErr(oracleErr):
			kind = "permanent"
		}
		metrics.OracleErrorTotal.WithLabelValues(string(dep.Currency), kind).Inc()
		if kind != "permanent" {
			logger.Warn(ctx, "oracle lookup failed, retry next cycle",
				zap.Int64("deposit_id", dep.ID),
				zap.String("kind", kind),
				zap.Error(oracleErr))
			return
		}
		// 永久错误继续往下走，由状态机流转到终态 error
	}

	tr := engine.Next(dep, res, oracleErr, time.Now(), engine.Config{
		ConfirmNum:   s.cfg.ConfirmNum,
		ExpiryWindow: s.cfg.ExpiryWindow,
	})
	s.apply(ctx, dep, tr)
}

// apply 把状态机结果落库
func (s *Service) apply(ctx context.Context, dep *domain.Deposit, tr engine.Transition) {
	switch {
	case tr.ShouldCredit:
		// 确认数先单调推进，状态翻转留给入账事务原子完成
		if err := s.store.UpdateConfirmations(ctx, dep.ID, tr.Confirmations); err != nil {
			logger.Error(ctx, "update confirmations failed", zap.Int64("deposit_id", dep.ID), zap.Error(err))
			return
		}
		if err := s.creditor.CreditOnce(ctx, dep.ID); err != nil {
			// 入账事务整体回滚了，记录还在入账前状态，下周期重试安全
			logger.Error(ctx, "❌ 入账失败，下周期重试",
				zap.Int64("deposit_id", dep.ID), zap.Error(err))
			return
		}
		metrics.DepositCreditedTotal.WithLabelValues(string(dep.Currency)).Inc()

	case tr.Status == dep.Status:
		// 状态没变，最多推进一下确认数
		if tr.Confirmations > dep.Confirmations {
			if err := s.store.UpdateConfirmations(ctx, dep.ID, tr.Confirmations); err != nil {
				logger.Error(ctx, "update confirmations failed", zap.Int64("deposit_id", dep.ID), zap.Error(err))
			}
		}

	default:
		// confirming / expired / error 流转
		err := s.store.SaveTransition(ctx, dep.ID, dep.Status, tr.Status, tr.Confirmations, tr.ErrorMsg)
		if err != nil {
			// 条件更新输了 = 别的 worker 已经流转过，不算业务失败
			logger.Warn(ctx, "transition lost the race",
				zap.Int64("deposit_id", dep.ID),
				zap.String("from", dep.Status.String()),
				zap.String("to", tr.Status.String()),
				zap.Error(err))
			return
		}
		switch tr.Status {
		case domain.DepositStatusExpired:
			metrics.DepositExpiredTotal.WithLabelValues(string(dep.Currency)).Inc()
			logger.Warn(ctx, "⏰ 充值超时作废", zap.Int64("deposit_id", dep.ID))
		case domain.DepositStatusError:
			metrics.DepositErroredTotal.WithLabelValues(string(dep.Currency)).Inc()
			logger.Error(ctx, "🚨 充值进入终态 error，需人工介入",
				zap.Int64("deposit_id", dep.ID),
				zap.String("reason", tr.ErrorMsg))
		}
	}
}
