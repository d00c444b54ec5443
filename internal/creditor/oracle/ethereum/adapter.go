package ethereum

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"coinvault.com/internal/creditor/domain"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// Adapter ETH 确认预言机
type Adapter struct {
	client *ethclient.Client
}

var _ domain.ConfirmationOracle = (*Adapter)(nil)

func New(url string) (*Adapter, error) {
	client, err := ethclient.Dial(url)
	if err != nil {
		return nil, err
	}
	return &Adapter{client: client}, nil
}

// Confirmations 确认数 = 最新高度 - 交易所在高度 + 1
func (a *Adapter) Confirmations(ctx context.Context, txRef string) (*domain.OracleResult, error) {
	if !strings.HasPrefix(txRef, "0x") || len(txRef) != 66 {
		return nil, fmt.Errorf("%w: %q is not a tx hash", domain.ErrBadTxRef, txRef)
	}

	receipt, err := a.client.TransactionReceipt(ctx, common.HexToHash(txRef))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			// 还没上链（或者还在 pending 池里）
			return &domain.OracleResult{Seen: false}, nil
		}
		var httpErr rpc.HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("%w: %v", domain.ErrRateLimited, err)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrOracleUnavailable, err)
	}

	// 交易上链了但执行被回滚：这笔钱不会到账，永久错误
	if receipt.Status == types.ReceiptStatusFailed {
		return nil, fmt.Errorf("%w: receipt status failed", domain.ErrTxRejected)
	}

	tip, err := a.client.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrOracleUnavailable, err)
	}

	blockNum := receipt.BlockNumber.Uint64()
	if tip < blockNum {
		// 换了个落后的节点，按刚上链处理
		return &domain.OracleResult{Seen: true, Confirmations: 1}, nil
	}

	return &domain.OracleResult{
		Seen:          true,
		Confirmations: int64(tip - blockNum + 1),
	}, nil
}

// Close 关闭底层连接
func (a *Adapter) Close() {
	a.client.Close()
}
