package service

import (
	"context"

	"coinvault.com/internal/creditor/domain"
)

// Store 流水线需要的全部持久化能力
// persistence.Repo 是唯一的生产实现；聚合成一个接口方便测试替身
type Store interface {
	domain.DepositRegistry
	domain.DepositClaimer
	domain.AssetRepo
	domain.LedgerRepo

	// Transaction fn 内的所有存储调用在同一个事务里，整体提交或整体回滚
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}
