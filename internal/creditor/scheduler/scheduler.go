package scheduler

import (
	"context"
	"time"

	"coinvault.com/internal/creditor/service"
	"coinvault.com/pkg/logger"
	"coinvault.com/pkg/xredis"
	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

type Config struct {
	Interval      time.Duration // 周期间隔
	MasterLockKey string        // redis 主节点租约 key
	MasterLockTTL time.Duration // 租约 TTL，挂掉后别的实例接管
}

// Scheduler 周期触发器
// 多实例部署时用 redis 租约做单飞：同一时刻只有主节点跑周期。
// 租约只是省预言机调用量的优化，就算两个实例同时跑，
// 认领锁也保证不会双处理
type Scheduler struct {
	svc   *service.Service
	lease *xredis.MasterLease // 单实例部署可以为 nil
	cfg   Config
}

func New(svc *service.Service, lease *xredis.MasterLease, cfg Config) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.MasterLockKey == "" {
		cfg.MasterLockKey = "creditor:confirm:master"
	}
	if cfg.MasterLockTTL <= 0 {
		cfg.MasterLockTTL = 2 * cfg.Interval
	}
	return &Scheduler{
		svc:   svc,
		lease: lease,
		cfg:   cfg,
	}
}

// Start 阻塞运行，ctx 取消后优雅停机
func (s *Scheduler) Start(ctx context.Context) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(s.cfg.Interval),
		gocron.NewTask(func() {
			s.tick(ctx)
		}),
		// 上一轮还没跑完就不叠加新的一轮
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return err
	}

	sched.Start()
	logger.Info(ctx, "🚀 确认调度器启动", zap.Duration("interval", s.cfg.Interval))

	<-ctx.Done()
	logger.Info(ctx, "🛑 确认调度器停止中...")
	return sched.Shutdown()
}

func (s *Scheduler) tick(ctx context.Context) {
	if s.lease != nil {
		ok, err := s.lease.TryAcquire(ctx, s.cfg.MasterLockKey, s.cfg.MasterLockTTL)
		if err != nil {
			// redis 抖动时退化为直接跑：认领锁本身保证不会双处理
			logger.Warn(ctx, "master lease check failed, running anyway", zap.Error(err))
		} else if !ok {
			logger.Debug(ctx, "not the master, skip this tick")
			return
		}
	}

	if err := s.svc.RunConfirmationCycle(ctx); err != nil {
		logger.Error(ctx, "confirmation cycle failed", zap.Error(err))
	}
}
