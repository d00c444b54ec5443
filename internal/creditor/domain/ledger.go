package domain

import (
	"context"
	"time"
)

type EntryType string

const (
	EntryTypeDeposit    EntryType = "deposit"
	EntryTypeWithdrawal EntryType = "withdrawal"
	EntryTypeProfit     EntryType = "profit"
)

type EntryStatus string

const (
	EntryStatusCompleted EntryStatus = "completed"
)

// LedgerEntry 资金流水，只追加不修改
// (entry_type, reference_id) 唯一索引是防重复入账的最后一道防线：
// 即使两个 worker 同时越过了认领锁，第二笔插入也会在这里撞唯一键回滚
type LedgerEntry struct {
	ID          int64       `gorm:"primaryKey"`
	UserID      int64       `gorm:"index"`
	Currency    Currency    `gorm:"size:20"`
	Amount      int64       // 有符号金额（最小单位），入金为正
	EntryType   EntryType   `gorm:"size:20;uniqueIndex:idx_entry_ref"`
	Status      EntryStatus `gorm:"size:20"`
	ReferenceID int64       `gorm:"uniqueIndex:idx_entry_ref"` // 入金流水 = Deposit.ID
	CreditTxnID string      `gorm:"size:64"`                   // 本次入账的事务标识
	CreatedAt   time.Time
}

func (LedgerEntry) TableName() string {
	return "ledger_entries"
}

// LedgerRepo 流水存储
type LedgerRepo interface {
	// AppendEntry 追加一条流水，撞唯一键返回 gorm.ErrDuplicatedKey
	AppendEntry(ctx context.Context, entry *LedgerEntry) error
	// HasCompletedEntry 指定业务记录是否已存在完成流水（幂等判断）
	HasCompletedEntry(ctx context.Context, entryType EntryType, referenceID int64) (bool, error)
	// EntriesByReference 审计查询
	EntriesByReference(ctx context.Context, entryType EntryType, referenceID int64) ([]*LedgerEntry, error)
}
