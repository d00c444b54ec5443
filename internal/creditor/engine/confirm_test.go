package engine

import (
	"errors"
	"testing"
	"time"

	"coinvault.com/internal/creditor/domain"
	"github.com/stretchr/testify/assert"
)

var testCfg = Config{
	ConfirmNum:   3,
	ExpiryWindow: 72 * time.Hour,
}

func newDeposit(status domain.DepositStatus, confirmations int64) *domain.Deposit {
	return &domain.Deposit{
		ID:             1,
		UserID:         1001,
		Currency:       domain.CurrencyBTC,
		TxRef:          "tx_abc",
		ReceivedAmount: 100000,
		Confirmations:  confirmations,
		Status:         status,
		CreatedAt:      time.Now().Add(-time.Hour),
	}
}

func TestNext(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name       string
		dep        *domain.Deposit
		res        *domain.OracleResult
		oracleErr  error
		wantStatus domain.DepositStatus
		wantConfs  int64
		wantCredit bool
	}{
		{
			name:       "链上未看到：原地等待",
			dep:        newDeposit(domain.DepositStatusPending, 0),
			res:        &domain.OracleResult{Seen: false},
			wantStatus: domain.DepositStatusPending,
			wantConfs:  0,
		},
		{
			name:       "确认数未达标：pending -> confirming",
			dep:        newDeposit(domain.DepositStatusPending, 0),
			res:        &domain.OracleResult{Seen: true, Confirmations: 1},
			wantStatus: domain.DepositStatusConfirming,
			wantConfs:  1,
		},
		{
			name:       "确认数达标：confirming -> confirmed 并触发入账",
			dep:        newDeposit(domain.DepositStatusConfirming, 1),
			res:        &domain.OracleResult{Seen: true, Confirmations: 3},
			wantStatus: domain.DepositStatusConfirmed,
			wantConfs:  3,
			wantCredit: true,
		},
		{
			name:       "确认数回退：单调不减",
			dep:        newDeposit(domain.DepositStatusConfirming, 2),
			res:        &domain.OracleResult{Seen: true, Confirmations: 1},
			wantStatus: domain.DepositStatusConfirming,
			wantConfs:  2,
		},
		{
			name:       "瞬时错误：状态不动",
			dep:        newDeposit(domain.DepositStatusConfirming, 2),
			oracleErr:  domain.ErrOracleUnavailable,
			wantStatus: domain.DepositStatusConfirming,
			wantConfs:  2,
		},
		{
			name:       "限流：状态不动",
			dep:        newDeposit(domain.DepositStatusPending, 0),
			oracleErr:  domain.ErrRateLimited,
			wantStatus: domain.DepositStatusPending,
			wantConfs:  0,
		},
		{
			name:       "未知错误按瞬时处理：宁可晚到账",
			dep:        newDeposit(domain.DepositStatusPending, 0),
			oracleErr:  errors.New("connection reset"),
			wantStatus: domain.DepositStatusPending,
			wantConfs:  0,
		},
		{
			name:       "永久错误：终态 error",
			dep:        newDeposit(domain.DepositStatusConfirming, 2),
			oracleErr:  domain.ErrTxRejected,
			wantStatus: domain.DepositStatusError,
			wantConfs:  2,
		},
		{
			name:       "终态 confirmed 不再流转",
			dep:        newDeposit(domain.DepositStatusConfirmed, 3),
			res:        &domain.OracleResult{Seen: true, Confirmations: 10},
			wantStatus: domain.DepositStatusConfirmed,
			wantConfs:  3,
		},
		{
			name:       "终态 expired 不再流转",
			dep:        newDeposit(domain.DepositStatusExpired, 0),
			res:        &domain.OracleResult{Seen: true, Confirmations: 10},
			wantStatus: domain.DepositStatusExpired,
			wantConfs:  0,
		},
		{
			name:       "终态 error 即使预言机报错也不再流转",
			dep:        newDeposit(domain.DepositStatusError, 1),
			oracleErr:  domain.ErrBadTxRef,
			wantStatus: domain.DepositStatusError,
			wantConfs:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := Next(tt.dep, tt.res, tt.oracleErr, now, testCfg)
			assert.Equal(t, tt.wantStatus, tr.Status)
			assert.Equal(t, tt.wantConfs, tr.Confirmations)
			assert.Equal(t, tt.wantCredit, tr.ShouldCredit)
		})
	}
}

func TestNext_Expiry(t *testing.T) {
	now := time.Now()

	// 超过过期窗口且链上仍未看到：转 expired
	dep := newDeposit(domain.DepositStatusPending, 0)
	dep.CreatedAt = now.Add(-73 * time.Hour)

	tr := Next(dep, &domain.OracleResult{Seen: false}, nil, now, testCfg)
	assert.Equal(t, domain.DepositStatusExpired, tr.Status)
	assert.False(t, tr.ShouldCredit)

	// 链上已看到的记录不走过期，继续等确认
	dep2 := newDeposit(domain.DepositStatusConfirming, 1)
	dep2.CreatedAt = now.Add(-73 * time.Hour)

	tr2 := Next(dep2, &domain.OracleResult{Seen: true, Confirmations: 2}, nil, now, testCfg)
	assert.Equal(t, domain.DepositStatusConfirming, tr2.Status)
	assert.Equal(t, int64(2), tr2.Confirmations)
}

func TestNext_Idempotent(t *testing.T) {
	// 同样的输入反复求值，结果恒定
	now := time.Now()
	dep := newDeposit(domain.DepositStatusConfirming, 1)
	res := &domain.OracleResult{Seen: true, Confirmations: 3}

	first := Next(dep, res, nil, now, testCfg)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Next(dep, res, nil, now, testCfg))
	}
}

func TestNext_MonotonicSequence(t *testing.T) {
	// 非递减的预言机序列，落库确认数也非递减
	now := time.Now()
	dep := newDeposit(domain.DepositStatusPending, 0)

	var last int64
	for _, c := range []int64{0, 1, 1, 2, 3, 5, 4, 8} {
		tr := Next(dep, &domain.OracleResult{Seen: true, Confirmations: c}, nil, now, testCfg)
		assert.GreaterOrEqual(t, tr.Confirmations, last)
		last = tr.Confirmations
		dep.Confirmations = tr.Confirmations
		if !dep.Status.Terminal() {
			dep.Status = tr.Status
		}
	}
}
