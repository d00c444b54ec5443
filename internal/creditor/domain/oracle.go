package domain

import (
	"context"
	"errors"
)

// OracleResult 链上确认查询结果
type OracleResult struct {
	Seen          bool  // 链上是否已看到这笔交易
	Confirmations int64 // 确认数（Seen=false 时无意义）
}

// ConfirmationOracle 链上确认预言机（外部协作方）
// 实现方只负责回答"这笔交易确认到几了"，可靠性由调用方的
// 限流/熔断/重试兜底
type ConfirmationOracle interface {
	Confirmations(ctx context.Context, txRef string) (*OracleResult, error)
}

// 预言机错误分类
// 瞬时错误：状态不动，下个周期重试；永久错误：记录进终态 error
var (
	// ErrOracleUnavailable 瞬时：超时/5xx/节点不可用
	ErrOracleUnavailable = errors.New("confirmation oracle unavailable")
	// ErrRateLimited 瞬时：429，当前批次剩余记录直接跳过，下个周期再来
	ErrRateLimited = errors.New("confirmation oracle rate limited")
	// ErrBadTxRef 永久：交易标识格式非法
	ErrBadTxRef = errors.New("malformed transaction reference")
	// ErrTxRejected 永久：链上明确拒绝/回滚了这笔交易
	ErrTxRejected = errors.New("transaction rejected on chain")
)

// IsTransientOracleErr 是否可以下个周期重试
// 未知错误一律按瞬时处理：宁可晚到账，不可错杀成终态
func IsTransientOracleErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrBadTxRef) || errors.Is(err, ErrTxRejected) {
		return false
	}
	return true
}

// IsPermanentOracleErr 不可恢复，需要人工介入
func IsPermanentOracleErr(err error) bool {
	return err != nil && !IsTransientOracleErr(err)
}
