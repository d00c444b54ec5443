package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"coinvault.com/internal/creditor/domain"
	"github.com/sony/gobreaker/v2"
)

// BreakerOracle 给预言机套熔断：节点连续抽风时快速失败，
// 不要让每个周期都傻等超时
type BreakerOracle struct {
	inner domain.ConfirmationOracle
	cb    *gobreaker.CircuitBreaker[*domain.OracleResult]
}

var _ domain.ConfirmationOracle = (*BreakerOracle)(nil)

func WithBreaker(name string, inner domain.ConfirmationOracle) *BreakerOracle {
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// 永久错误是链上事实，不是预言机故障，不计入熔断
		IsSuccessful: func(err error) bool {
			return err == nil || domain.IsPermanentOracleErr(err)
		},
	}

	return &BreakerOracle{
		inner: inner,
		cb:    gobreaker.NewCircuitBreaker[*domain.OracleResult](st),
	}
}

func (b *BreakerOracle) Confirmations(ctx context.Context, txRef string) (*domain.OracleResult, error) {
	res, err := b.cb.Execute(func() (*domain.OracleResult, error) {
		return b.inner.Confirmations(ctx, txRef)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			// 熔断打开 = 瞬时不可用，下周期再试
			return nil, fmt.Errorf("%w: circuit breaker open", domain.ErrOracleUnavailable)
		}
		return nil, err
	}
	return res, nil
}
