package bitcoin

import (
	"context"
	"errors"
	"fmt"

	"coinvault.com/internal/creditor/domain"
	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
)

// Adapter BTC 确认预言机，走 bitcoind 的 JSON-RPC
type Adapter struct {
	rpcClient *rpcclient.Client
}

var _ domain.ConfirmationOracle = (*Adapter)(nil)

func New(host, user, password string) (*Adapter, error) {
	rpcConfig := &rpcclient.ConnConfig{
		Host:         host,
		User:         user,
		Pass:         password,
		HTTPPostMode: true, // 比特币核心节点必须使用 POST 模式
		DisableTLS:   true, // 内网/Docker 环境不走 TLS
	}
	client, err := rpcclient.New(rpcConfig, nil)
	if err != nil {
		return nil, err
	}
	return &Adapter{rpcClient: client}, nil
}

// Confirmations 查一笔交易确认到几了
// 节点还没见过这笔交易 => Seen=false，不算错误
func (a *Adapter) Confirmations(ctx context.Context, txRef string) (*domain.OracleResult, error) {
	hash, err := chainhash.NewHashFromStr(txRef)
	if err != nil {
		// 交易标识格式非法：永久错误
		return nil, fmt.Errorf("%w: %v", domain.ErrBadTxRef, err)
	}

	tx, err := a.rpcClient.GetRawTransactionVerbose(hash)
	if err != nil {
		var rpcErr *btcjson.RPCError
		if errors.As(err, &rpcErr) {
			switch rpcErr.Code {
			case btcjson.ErrRPCNoTxInfo: // same code (-5) as ErrRPCInvalidAddressOrKey
				// 节点没见过：交易还在路上
				return &domain.OracleResult{Seen: false}, nil
			case btcjson.ErrRPCDecodeHexString, btcjson.ErrRPCInvalidParameter:
				return nil, fmt.Errorf("%w: %v", domain.ErrBadTxRef, rpcErr)
			}
		}
		// 其他 RPC 错误一律按瞬时处理
		return nil, fmt.Errorf("%w: %v", domain.ErrOracleUnavailable, err)
	}

	// 在 mempool 里 Confirmations 为 0，已经算 Seen
	return &domain.OracleResult{
		Seen:          true,
		Confirmations: int64(tx.Confirmations),
	}, nil
}

// Shutdown 关闭 RPC 连接
func (a *Adapter) Shutdown() {
	a.rpcClient.Shutdown()
}
