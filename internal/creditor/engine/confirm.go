package engine

import (
	"time"

	"coinvault.com/internal/creditor/domain"
)

// Config 状态机参数
type Config struct {
	ConfirmNum   int64         // 确认数阈值，达到即可入账
	ExpiryWindow time.Duration // pending/confirming 超过这个窗口转 expired
}

// Transition 一次状态机求值的结果
// ShouldCredit=true 表示本次流转触达 confirmed 边沿，需要调 LedgerCreditor 入账
// 状态机自己绝不碰余额
type Transition struct {
	Status        domain.DepositStatus
	Confirmations int64
	ShouldCredit  bool
	ErrorMsg      string
}

// Next 纯函数：给定充值记录和预言机结果，计算下一个状态
// 幂等：同样的输入永远得到同样的输出
func Next(dep *domain.Deposit, res *domain.OracleResult, oracleErr error, now time.Time, cfg Config) Transition {
	// 终态只进不出
	if dep.Status.Terminal() {
		return Transition{Status: dep.Status, Confirmations: dep.Confirmations}
	}

	// 预言机报错
	if oracleErr != nil {
		if domain.IsPermanentOracleErr(oracleErr) {
			// 永久错误：终态 error，永不自动入账
			return Transition{
				Status:        domain.DepositStatusError,
				Confirmations: dep.Confirmations,
				ErrorMsg:      oracleErr.Error(),
			}
		}
		// 瞬时错误：原地不动，下个周期重试
		return Transition{Status: dep.Status, Confirmations: dep.Confirmations}
	}

	// 链上还没看到
	if !res.Seen {
		// 超过过期窗口还没到账：终态 expired
		if cfg.ExpiryWindow > 0 && now.Sub(dep.CreatedAt) > cfg.ExpiryWindow {
			return Transition{
				Status:        domain.DepositStatusExpired,
				Confirmations: dep.Confirmations,
			}
		}
		return Transition{Status: dep.Status, Confirmations: dep.Confirmations}
	}

	// 确认数单调不减：预言机偶尔回退（换节点/分叉窗口）也不往回走
	confirmations := res.Confirmations
	if confirmations < dep.Confirmations {
		confirmations = dep.Confirmations
	}

	if confirmations < cfg.ConfirmNum {
		return Transition{
			Status:        domain.DepositStatusConfirming,
			Confirmations: confirmations,
		}
	}

	// 达到阈值：流转 confirmed，由 LedgerCreditor 在事务里完成入账
	return Transition{
		Status:        domain.DepositStatusConfirmed,
		Confirmations: confirmations,
		ShouldCredit:  true,
	}
}
