package persistence

import (
	"context"
	"fmt"

	"coinvault.com/internal/creditor/domain"
	"coinvault.com/pkg/xerr"
)

// AppendEntry 追加一条流水
// 唯一索引 (entry_type, reference_id) 撞车时原样返回 gorm.ErrDuplicatedKey，
// 上层靠这个判断"已经入过账"
func (r *Repo) AppendEntry(ctx context.Context, entry *domain.LedgerEntry) error {
	return r.getDb(ctx).WithContext(ctx).Create(entry).Error
}

// HasCompletedEntry 指定业务记录是否已有完成流水
func (r *Repo) HasCompletedEntry(ctx context.Context, entryType domain.EntryType, referenceID int64) (bool, error) {
	var count int64
	err := r.getDb(ctx).WithContext(ctx).Model(&domain.LedgerEntry{}).
		Where("entry_type = ? AND reference_id = ? AND status = ?",
			entryType, referenceID, domain.EntryStatusCompleted).
		Count(&count).Error
	if err != nil {
		return false, xerr.New(xerr.DbError, fmt.Sprintf("count ledger entries failed: %v", err))
	}
	return count > 0, nil
}

// EntriesByReference 审计查询
func (r *Repo) EntriesByReference(ctx context.Context, entryType domain.EntryType, referenceID int64) ([]*domain.LedgerEntry, error) {
	entries := make([]*domain.LedgerEntry, 0)
	err := r.getDb(ctx).WithContext(ctx).Model(&domain.LedgerEntry{}).
		Where("entry_type = ? AND reference_id = ?", entryType, referenceID).
		Order("id").
		Find(&entries).Error
	if err != nil {
		return nil, xerr.New(xerr.DbError, fmt.Sprintf("query ledger entries failed: %v", err))
	}
	return entries, nil
}
