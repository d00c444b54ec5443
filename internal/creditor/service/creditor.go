package service

import (
	"context"
	"errors"
	"fmt"

	"coinvault.com/internal/creditor/domain"
	"coinvault.com/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrNoCredit 终态但不是 confirmed 的记录永远不入账
var ErrNoCredit = errors.New("deposit is terminal and will never be credited")

// LedgerCreditor 入账原语：整个系统里唯一会给余额加钱的地方
type LedgerCreditor struct {
	store Store
}

func NewLedgerCreditor(store Store) *LedgerCreditor {
	return &LedgerCreditor{store: store}
}

// CreditOnce 给充值记录入账，至多一次
// 一个事务里完成四步：幂等复查 -> 加余额 -> 追加流水 -> 状态翻转 confirmed，
// 任何一步失败整体回滚，记录停留在入账前状态，下个周期重试是安全的
func (c *LedgerCreditor) CreditOnce(ctx context.Context, depositID int64) error {
	return c.store.Transaction(ctx, func(txCtx context.Context) error {
		// 1. 事务内重读，拿最新状态
		dep, err := c.store.GetDeposit(txCtx, depositID)
		if err != nil {
			return err
		}

		// 幂等短路：流水已存在说明之前已经入过账
		// （重试/双 worker 穿透认领锁时都会走到这里）
		has, err := c.store.HasCompletedEntry(txCtx, domain.EntryTypeDeposit, dep.ID)
		if err != nil {
			return err
		}
		if has {
			logger.Debug(txCtx, "deposit already credited, skip",
				zap.Int64("deposit_id", dep.ID))
			return nil
		}

		if dep.Status == domain.DepositStatusConfirmed {
			// confirmed 但没有流水：入账事务是原子的，正常流程到不了这里，
			// 宁可报错停下来等人工核账，也不要再加一次钱
			return fmt.Errorf("deposit %d is confirmed but ledger entry is missing", dep.ID)
		}
		if dep.Status.Terminal() {
			return fmt.Errorf("%w: deposit %d is %s", ErrNoCredit, dep.ID, dep.Status)
		}
		if dep.ReceivedAmount <= 0 {
			return fmt.Errorf("deposit %d has no received amount", dep.ID)
		}

		// 2. 加余额（共享的原子原语）
		if err := c.store.CreditBalance(txCtx, dep.UserID, dep.Currency, dep.ReceivedAmount); err != nil {
			return err
		}

		// 3. 追加流水
		// 唯一索引 (entry_type, reference_id) 是防双花的最后防线：
		// 并发入账的输家在这里撞键，整个事务回滚，余额不会多加
		entry := &domain.LedgerEntry{
			UserID:      dep.UserID,
			Currency:    dep.Currency,
			Amount:      dep.ReceivedAmount,
			EntryType:   domain.EntryTypeDeposit,
			Status:      domain.EntryStatusCompleted,
			ReferenceID: dep.ID,
			CreditTxnID: uuid.New().String(),
		}
		if err := c.store.AppendEntry(txCtx, entry); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("deposit %d credited concurrently: %w", dep.ID, err)
			}
			return err
		}

		// 4. 状态翻转 confirmed（条件更新，输家 RowsAffected=0 整体回滚）
		if err := c.store.SaveTransition(txCtx, dep.ID, dep.Status, domain.DepositStatusConfirmed, 0, ""); err != nil {
			return err
		}

		logger.Info(txCtx, "💰 入账完成",
			zap.Int64("deposit_id", dep.ID),
			zap.Int64("uid", dep.UserID),
			zap.String("currency", string(dep.Currency)),
			zap.Int64("amount", dep.ReceivedAmount),
			zap.String("credit_txn_id", entry.CreditTxnID),
		)
		return nil
	})
}
