package domain

import (
	"context"
	"time"
)

type DepositStatus uint8

// 充值状态机：pending/confirming 可流转，confirmed/expired/error 是终态
const (
	DepositStatusPending    DepositStatus = iota // 待观察，还没在链上看到
	DepositStatusConfirming                      // 链上已看到，确认数未达标
	DepositStatusConfirmed                       // 已入账（终态）
	DepositStatusExpired                         // 超时未到账（终态，永不入账）
	DepositStatusError                           // 预言机报不可恢复错误（终态，人工介入）
)

// Terminal 是否终态：终态记录任何流水线都不再改动
func (s DepositStatus) Terminal() bool {
	return s == DepositStatusConfirmed || s == DepositStatusExpired || s == DepositStatusError
}

func (s DepositStatus) String() string {
	switch s {
	case DepositStatusPending:
		return "pending"
	case DepositStatusConfirming:
		return "confirming"
	case DepositStatusConfirmed:
		return "confirmed"
	case DepositStatusExpired:
		return "expired"
	case DepositStatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Deposit 一条链上入金记录
// ID 同时是入账的幂等键；记录只增不删（审计要求）
type Deposit struct {
	ID             int64         `gorm:"primaryKey"`
	UserID         int64         `gorm:"index"`             // 归属用户（弱引用）
	Currency       Currency      `gorm:"size:20"`           // 币种
	Address        string        `gorm:"size:128;index"`    // 收款地址
	TxRef          string        `gorm:"size:128;index"`    // 链上交易标识，观察到之前为空
	ExpectedAmount int64         // 预期金额（最小单位）
	ReceivedAmount int64         // 实收金额（最小单位）
	Confirmations  int64         // 确认数，TxRef 确定后单调不减
	Status         DepositStatus `gorm:"index"`             // 生命周期状态
	Locked         bool          // 认领标记
	LockedUntil    *time.Time    // 租约到期时间，过期即可被重新认领
	ErrorMsg       string        `gorm:"size:255"`          // 终态 error 的原因
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (Deposit) TableName() string {
	return "deposits"
}

// DepositFilter 查询条件
type DepositFilter struct {
	UserID   int64
	Currency Currency
	Status   *DepositStatus
	TxRef    string
	Limit    int
}

// DepositRegistry 充值记录存储
type DepositRegistry interface {
	// Create 创建充值记录（用户申报 or 地址监控首次观察到）
	Create(ctx context.Context, dep *Deposit) error
	// Find 条件查询
	Find(ctx context.Context, filter DepositFilter) ([]*Deposit, error)
	// GetDeposit 按 ID 查询
	GetDeposit(ctx context.Context, id int64) (*Deposit, error)
	// AttachTxRef 把观察到的链上交易绑定到申报记录上
	AttachTxRef(ctx context.Context, id int64, txRef string, receivedAmount int64) error
	// SaveTransition 条件更新：只有当前状态还是 from 时才落库，
	// 防止并发状态流转被静默覆盖
	SaveTransition(ctx context.Context, id int64, from, to DepositStatus, confirmations int64, errorMsg string) error
	// UpdateConfirmations 只推进确认数，不动状态（入账前的单调更新）
	UpdateConfirmations(ctx context.Context, id int64, confirmations int64) error
}

// DepositClaimer 批量认领：同一条记录在租约有效期内只会被一个 worker 拿到
type DepositClaimer interface {
	// ClaimBatch 原子认领最多 maxSize 条可处理记录
	// 条件：status ∈ {pending, confirming}，tx_ref 已知，未被认领或租约已过期
	// 认领用单条条件 UPDATE 完成，绝不做先读后写
	ClaimBatch(ctx context.Context, maxSize int, lease time.Duration) ([]*Deposit, error)
	// Release 释放认领，处理成功失败都必须调用
	Release(ctx context.Context, ids []int64) error
}
