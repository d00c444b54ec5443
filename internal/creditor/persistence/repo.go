package persistence

import (
	"context"

	"coinvault.com/internal/creditor/domain"
	"gorm.io/gorm"
)

// txKey 事务在 context 中的 key，用私有类型避免跨包撞车
type txKey struct{}

type Repo struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// 确保 Repo 实现了所有接口
var (
	_ domain.DepositRegistry = (*Repo)(nil)
	_ domain.DepositClaimer  = (*Repo)(nil)
	_ domain.AssetRepo       = (*Repo)(nil)
	_ domain.LedgerRepo      = (*Repo)(nil)
)

// Transaction 开启事务，把 tx 注入 context
// fn 内部所有 Repo 调用自动复用同一个事务，整体提交或整体回滚
func (r *Repo) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txCtx := context.WithValue(ctx, txKey{}, tx)
		return fn(txCtx)
	})
}

// getDb 事务里的调用拿 tx，事务外拿裸连接
func (r *Repo) getDb(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx
	}
	return r.db
}

// AutoMigrate 建表（本地/测试环境用，生产走迁移脚本）
func (r *Repo) AutoMigrate() error {
	return r.db.AutoMigrate(
		&domain.Deposit{},
		&domain.UserAsset{},
		&domain.LedgerEntry{},
	)
}
