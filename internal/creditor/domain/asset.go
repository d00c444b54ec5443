package domain

import (
	"context"
	"time"
)

// UserAsset 用户某币种的余额
// 余额只能通过 CreditBalance（入金）或提现侧的扣减原语改动
type UserAsset struct {
	ID        int64    `gorm:"primaryKey"`
	UserID    int64    `gorm:"uniqueIndex:idx_user_currency"`
	Currency  Currency `gorm:"uniqueIndex:idx_user_currency;size:20"`
	Available int64    // 可用余额（最小单位）
	Version   int64    // 乐观锁版本号
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (UserAsset) TableName() string {
	return "user_assets"
}

// AssetRepo 余额存储
// CreditBalance 是共享原语：提现退款、ROI 派息也走这里，
// 必须在任意并发调用方下都安全，而不只是本引擎
type AssetRepo interface {
	// CreditBalance 原子加钱（不存在则创建）
	CreditBalance(ctx context.Context, uid int64, currency Currency, amount int64) error
	// GetBalance 查询余额，无记录返回零值资产而非错误
	GetBalance(ctx context.Context, uid int64, currency Currency) (*UserAsset, error)
}
