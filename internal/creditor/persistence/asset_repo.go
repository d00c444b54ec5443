package persistence

import (
	"context"
	"errors"
	"fmt"

	"coinvault.com/internal/creditor/domain"
	"coinvault.com/pkg/xerr"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreditBalance 原子加钱（不存在则创建）
// Upsert + 表达式累加，任意并发调用方（入金/退款/派息）都安全
func (r *Repo) CreditBalance(ctx context.Context, uid int64, currency domain.Currency, amount int64) error {
	if !currency.Valid() {
		return xerr.New(xerr.RequestParamsError, fmt.Sprintf("unsupported currency: %s", currency))
	}
	if amount <= 0 {
		return xerr.New(xerr.RequestParamsError, fmt.Sprintf("credit amount must be positive, got %d", amount))
	}

	asset := domain.UserAsset{
		UserID:    uid,
		Currency:  currency,
		Available: amount,
	}

	err := r.getDb(ctx).WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "currency"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"available": gorm.Expr("available + ?", amount), // 余额累加在数据库侧完成
			"version":   gorm.Expr("version + 1"),
		}),
	}).Create(&asset).Error

	if err != nil {
		return xerr.New(xerr.DbError, fmt.Sprintf("credit balance failed: %v", err))
	}
	return nil
}

// GetBalance 查询余额
// 查无记录不算错误，返回零值资产
func (r *Repo) GetBalance(ctx context.Context, uid int64, currency domain.Currency) (*domain.UserAsset, error) {
	var asset domain.UserAsset
	err := r.getDb(ctx).WithContext(ctx).
		Where("user_id = ? AND currency = ?", uid, currency).
		First(&asset).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &domain.UserAsset{
				UserID:    uid,
				Currency:  currency,
				Available: 0,
				Version:   0,
			}, nil
		}
		return nil, xerr.New(xerr.DbError, fmt.Sprintf("get balance failed: %v", err))
	}

	return &asset, nil
}
