package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"coinvault.com/internal/creditor/domain"
	"coinvault.com/pkg/xerr"
	"gorm.io/gorm"
)

// 可被认领/流转的非终态集合
var activeStatuses = []domain.DepositStatus{
	domain.DepositStatusPending,
	domain.DepositStatusConfirming,
}

// Create 创建充值记录
func (r *Repo) Create(ctx context.Context, dep *domain.Deposit) error {
	if !dep.Currency.Valid() {
		return xerr.New(xerr.RequestParamsError, fmt.Sprintf("unsupported currency: %s", dep.Currency))
	}
	if err := r.getDb(ctx).WithContext(ctx).Create(dep).Error; err != nil {
		return xerr.New(xerr.DbError, fmt.Sprintf("create deposit failed: %v", err))
	}
	return nil
}

// Find 条件查询
func (r *Repo) Find(ctx context.Context, filter domain.DepositFilter) ([]*domain.Deposit, error) {
	db := r.getDb(ctx).WithContext(ctx).Model(&domain.Deposit{})
	if filter.UserID != 0 {
		db = db.Where("user_id = ?", filter.UserID)
	}
	if filter.Currency != "" {
		db = db.Where("currency = ?", filter.Currency)
	}
	if filter.Status != nil {
		db = db.Where("status = ?", *filter.Status)
	}
	if filter.TxRef != "" {
		db = db.Where("tx_ref = ?", filter.TxRef)
	}
	if filter.Limit > 0 {
		db = db.Limit(filter.Limit)
	}

	deposits := make([]*domain.Deposit, 0)
	if err := db.Order("id").Find(&deposits).Error; err != nil {
		return nil, xerr.New(xerr.DbError, fmt.Sprintf("find deposits failed: %v", err))
	}
	return deposits, nil
}

// GetDeposit 按 ID 查询
func (r *Repo) GetDeposit(ctx context.Context, id int64) (*domain.Deposit, error) {
	var dep domain.Deposit
	err := r.getDb(ctx).WithContext(ctx).First(&dep, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, xerr.New(xerr.RecordNotFound, fmt.Sprintf("deposit %d not found", id))
		}
		return nil, xerr.New(xerr.DbError, fmt.Sprintf("get deposit failed: %v", err))
	}
	return &dep, nil
}

// AttachTxRef 把链上观察到的交易绑定到申报记录
// 只允许绑定一次（tx_ref 还是空才更新）
func (r *Repo) AttachTxRef(ctx context.Context, id int64, txRef string, receivedAmount int64) error {
	res := r.getDb(ctx).WithContext(ctx).Model(&domain.Deposit{}).
		Where("id = ? AND tx_ref = '' AND status = ?", id, domain.DepositStatusPending).
		Updates(map[string]interface{}{
			"tx_ref":          txRef,
			"received_amount": receivedAmount,
		})

	if res.Error != nil {
		return xerr.New(xerr.DbError, fmt.Sprintf("attach tx_ref failed: %v", res.Error))
	}
	if res.RowsAffected == 0 {
		return xerr.New(xerr.ConcurrentConflict, fmt.Sprintf("deposit %d already has tx_ref or is not pending", id))
	}
	return nil
}

// SaveTransition 条件状态流转
// WHERE 里带上 from 状态：并发流转只有一个能赢，输家拿到 RowsAffected=0
// 确认数同样带单调保护，绝不往回写
func (r *Repo) SaveTransition(ctx context.Context, id int64, from, to domain.DepositStatus, confirmations int64, errorMsg string) error {
	updates := map[string]interface{}{
		"status": to,
	}
	if errorMsg != "" {
		updates["error_msg"] = errorMsg
	}

	res := r.getDb(ctx).WithContext(ctx).Model(&domain.Deposit{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)

	if res.Error != nil {
		return xerr.New(xerr.DbError, fmt.Sprintf("save transition failed: %v", res.Error))
	}
	if res.RowsAffected == 0 {
		return xerr.New(xerr.ConcurrentConflict,
			fmt.Sprintf("deposit %d is no longer %s", id, from))
	}

	// 确认数单独推进（带单调保护）
	if confirmations > 0 {
		if err := r.UpdateConfirmations(ctx, id, confirmations); err != nil {
			return err
		}
	}
	return nil
}

// UpdateConfirmations 推进确认数，只增不减
func (r *Repo) UpdateConfirmations(ctx context.Context, id int64, confirmations int64) error {
	res := r.getDb(ctx).WithContext(ctx).Model(&domain.Deposit{}).
		Where("id = ? AND confirmations < ?", id, confirmations).
		Update("confirmations", confirmations)

	if res.Error != nil {
		return xerr.New(xerr.DbError, fmt.Sprintf("update confirmations failed: %v", res.Error))
	}
	// RowsAffected=0 说明库里的确认数已经 >= 本次值，单调不减，静默成功
	return nil
}

// ClaimBatch 原子认领一批可处理的充值记录
// 每条记录一次条件 UPDATE 完成"查找+上锁"，两个并发 worker
// 绝不会在租约有效期内同时拿到同一条记录
func (r *Repo) ClaimBatch(ctx context.Context, maxSize int, lease time.Duration) ([]*domain.Deposit, error) {
	now := time.Now()
	db := r.getDb(ctx).WithContext(ctx)

	// 1. 捞候选集。这一步只是预筛，真正的互斥在下面的条件 UPDATE
	var candidates []domain.Deposit
	err := db.Model(&domain.Deposit{}).
		Where("status IN ? AND tx_ref <> '' AND (locked = ? OR locked_until < ?)",
			activeStatuses, false, now).
		Order("id").
		Limit(maxSize).
		Find(&candidates).Error
	if err != nil {
		return nil, xerr.New(xerr.DbError, fmt.Sprintf("select claim candidates failed: %v", err))
	}

	lockedUntil := now.Add(lease)
	claimed := make([]*domain.Deposit, 0, len(candidates))

	for i := range candidates {
		dep := candidates[i]

		// 2. 单条原子"find-and-set"：WHERE 里重查认领条件，
		// 赢家 RowsAffected=1，输家 0（已被别的 worker 抢走）
		res := db.Model(&domain.Deposit{}).
			Where("id = ? AND status IN ? AND (locked = ? OR locked_until < ?)",
				dep.ID, activeStatuses, false, now).
			Updates(map[string]interface{}{
				"locked":       true,
				"locked_until": lockedUntil,
			})

		if res.Error != nil {
			// 认领阶段的存储冲突 = 本周期不处理这条，不算业务失败
			continue
		}
		if res.RowsAffected == 1 {
			dep.Locked = true
			dep.LockedUntil = &lockedUntil
			claimed = append(claimed, &dep)
		}
	}

	return claimed, nil
}

// Release 释放认领锁，处理成功失败都要调
func (r *Repo) Release(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	res := r.getDb(ctx).WithContext(ctx).Model(&domain.Deposit{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"locked":       false,
			"locked_until": nil,
		})

	if res.Error != nil {
		return xerr.New(xerr.DbError, fmt.Sprintf("release deposits failed: %v", res.Error))
	}
	return nil
}
