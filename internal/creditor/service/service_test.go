package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"coinvault.com/internal/creditor/domain"
	"coinvault.com/internal/creditor/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeOracle 按脚本回放确认数，模拟链节点
type fakeOracle struct {
	mu    sync.Mutex
	calls int
	// 每次调用依次弹出一个结果，弹完后复用最后一个
	script []fakeResult
}

type fakeResult struct {
	res *domain.OracleResult
	err error
}

func (f *fakeOracle) Confirmations(ctx context.Context, txRef string) (*domain.OracleResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	r := f.script[0]
	if len(f.script) > 1 {
		f.script = f.script[1:]
	}
	return r.res, r.err
}

func (f *fakeOracle) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func seen(n int64) fakeResult {
	return fakeResult{res: &domain.OracleResult{Seen: true, Confirmations: n}}
}

func notSeen() fakeResult {
	return fakeResult{res: &domain.OracleResult{}}
}

func oracleErr(err error) fakeResult {
	return fakeResult{err: err}
}

func newTestService(store *persistence.Repo, fake *fakeOracle, cfg Config) *Service {
	oracles := map[domain.Currency]domain.ConfirmationOracle{
		domain.CurrencyBTC: fake,
		domain.CurrencyETH: fake,
	}
	return New(store, oracles, cfg)
}

// 完整走一遍生命周期：1 个确认 -> 3 个确认入账 -> 迟到的重复处理不会再加钱
func TestConfirmationCycle_Lifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	fake := &fakeOracle{script: []fakeResult{seen(1), seen(3), seen(5)}}
	svc := newTestService(store, fake, Config{ConfirmNum: 3, ExpiryWindow: 72 * time.Hour})

	dep := seedConfirmingTarget(t, store, "tx_lifecycle", 100000)

	// tick 1：确认数 1，进入 confirming
	require.NoError(t, svc.RunConfirmationCycle(ctx))
	got, err := store.GetDeposit(ctx, dep.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DepositStatusConfirming, got.Status)
	assert.Equal(t, int64(1), got.Confirmations)
	assert.False(t, got.Locked, "cycle must release the claim lock")

	// tick 2 前留一份 worker 崩溃场景的过期视图
	stale, err := store.GetDeposit(ctx, dep.ID)
	require.NoError(t, err)

	// tick 2：确认数达到阈值，入账
	require.NoError(t, svc.RunConfirmationCycle(ctx))
	got, err = store.GetDeposit(ctx, dep.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DepositStatusConfirmed, got.Status)
	assert.Equal(t, int64(3), got.Confirmations)

	asset, err := store.GetBalance(ctx, dep.UserID, domain.CurrencyBTC)
	require.NoError(t, err)
	assert.Equal(t, int64(100000), asset.Available)

	// tick 3：拿着过期视图的迟到 worker 重放（租约穿透场景）
	// 确认数继续单调推进，但钱绝不会加第二次
	var paused atomic.Bool
	svc.processOne(ctx, stale, &paused)

	got, err = store.GetDeposit(ctx, dep.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DepositStatusConfirmed, got.Status)
	assert.Equal(t, int64(5), got.Confirmations)

	entries, err := store.EntriesByReference(ctx, domain.EntryTypeDeposit, dep.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	asset, err = store.GetBalance(ctx, dep.UserID, domain.CurrencyBTC)
	require.NoError(t, err)
	assert.Equal(t, int64(100000), asset.Available)
}

// 瞬时错误：记录原地不动，锁释放，下周期还能重试
func TestConfirmationCycle_TransientError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	fake := &fakeOracle{script: []fakeResult{oracleErr(domain.ErrOracleUnavailable)}}
	svc := newTestService(store, fake, Config{ConfirmNum: 3})

	dep := seedConfirmingTarget(t, store, "tx_transient", 100000)

	require.NoError(t, svc.RunConfirmationCycle(ctx))

	got, err := store.GetDeposit(ctx, dep.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DepositStatusPending, got.Status)
	assert.Equal(t, int64(0), got.Confirmations)
	assert.False(t, got.Locked)

	// 下周期还能认领到
	claimed, err := store.ClaimBatch(ctx, 10, time.Minute)
	require.NoError(t, err)
	assert.Len(t, claimed, 1)
}

// 永久错误：终态 error，永不入账
func TestConfirmationCycle_PermanentError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	fake := &fakeOracle{script: []fakeResult{oracleErr(domain.ErrTxRejected)}}
	svc := newTestService(store, fake, Config{ConfirmNum: 3})

	dep := seedConfirmingTarget(t, store, "tx_rejected", 100000)

	require.NoError(t, svc.RunConfirmationCycle(ctx))

	got, err := store.GetDeposit(ctx, dep.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DepositStatusError, got.Status)
	assert.NotEmpty(t, got.ErrorMsg)

	asset, err := store.GetBalance(ctx, dep.UserID, domain.CurrencyBTC)
	require.NoError(t, err)
	assert.Equal(t, int64(0), asset.Available)

	// 终态不会再被认领
	claimed, err := store.ClaimBatch(ctx, 10, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, claimed)
}

// 429：暂停整个批次，只打一次预言机
func TestConfirmationCycle_RateLimitPausesBatch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	fake := &fakeOracle{script: []fakeResult{oracleErr(domain.ErrRateLimited)}}
	// Workers=1 让批次串行，暂停行为可确定性断言
	svc := newTestService(store, fake, Config{ConfirmNum: 3, Workers: 1})

	for i := 0; i < 5; i++ {
		seedConfirmingTarget(t, store, fmt.Sprintf("tx_429_%d", i), 100000)
	}

	require.NoError(t, svc.RunConfirmationCycle(ctx))

	assert.Equal(t, 1, fake.callCount(), "remaining records must be skipped after 429")

	// 所有记录原地不动，锁全释放
	deps, err := store.Find(ctx, domain.DepositFilter{})
	require.NoError(t, err)
	require.Len(t, deps, 5)
	for _, d := range deps {
		assert.Equal(t, domain.DepositStatusPending, d.Status)
		assert.False(t, d.Locked)
	}
}

// 过期窗口：链上一直没看到的申报最终转 expired
func TestConfirmationCycle_Expiry(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	fake := &fakeOracle{script: []fakeResult{notSeen()}}
	svc := newTestService(store, fake, Config{ConfirmNum: 3, ExpiryWindow: time.Nanosecond})

	dep := seedConfirmingTarget(t, store, "tx_expired", 100000)
	time.Sleep(time.Millisecond)

	require.NoError(t, svc.RunConfirmationCycle(ctx))

	got, err := store.GetDeposit(ctx, dep.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DepositStatusExpired, got.Status)

	asset, err := store.GetBalance(ctx, dep.UserID, domain.CurrencyBTC)
	require.NoError(t, err)
	assert.Equal(t, int64(0), asset.Available)
}

// 链上看到但没过窗口：继续等，不作废
func TestConfirmationCycle_SeenDepositNeverExpires(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	fake := &fakeOracle{script: []fakeResult{seen(0)}}
	svc := newTestService(store, fake, Config{ConfirmNum: 3, ExpiryWindow: time.Nanosecond})

	dep := seedConfirmingTarget(t, store, "tx_mempool", 100000)
	time.Sleep(time.Millisecond)

	require.NoError(t, svc.RunConfirmationCycle(ctx))

	// 窗口早过了，但交易已在 mempool：转 confirming 继续等
	got, err := store.GetDeposit(ctx, dep.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DepositStatusConfirming, got.Status)
}

// 空批次：空转，不报错
func TestConfirmationCycle_NoEligible(t *testing.T) {
	store := newTestStore(t)
	fake := &fakeOracle{script: []fakeResult{seen(1)}}
	svc := newTestService(store, fake, Config{ConfirmNum: 3})

	require.NoError(t, svc.RunConfirmationCycle(context.Background()))
	assert.Equal(t, 0, fake.callCount())
}

// 没配预言机的币种：跳过，不影响其他记录
func TestConfirmationCycle_MissingOracle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	fake := &fakeOracle{script: []fakeResult{seen(3)}}
	svc := New(store, map[domain.Currency]domain.ConfirmationOracle{
		domain.CurrencyBTC: fake,
	}, Config{ConfirmNum: 3})

	btc := seedConfirmingTarget(t, store, "tx_has_oracle", 100000)

	usdt := &domain.Deposit{
		UserID:         1001,
		Currency:       domain.CurrencyUSDT,
		TxRef:          "tx_no_oracle",
		ReceivedAmount: 7000000,
		Status:         domain.DepositStatusPending,
	}
	require.NoError(t, store.Create(ctx, usdt))

	require.NoError(t, svc.RunConfirmationCycle(ctx))

	got, err := store.GetDeposit(ctx, btc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DepositStatusConfirmed, got.Status)

	got, err = store.GetDeposit(ctx, usdt.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DepositStatusPending, got.Status)
	assert.False(t, got.Locked)
}

func seedConfirmingTarget(t *testing.T, store *persistence.Repo, txRef string, amount int64) *domain.Deposit {
	t.Helper()
	dep := &domain.Deposit{
		UserID:         1001,
		Currency:       domain.CurrencyBTC,
		Address:        "bcrt1qga52l9u6hre8wu6r6rh8a8xgexyzf6f7kcfl2v",
		TxRef:          txRef,
		ExpectedAmount: amount,
		ReceivedAmount: amount,
		Status:         domain.DepositStatusPending,
	}
	require.NoError(t, store.Create(context.Background(), dep))
	return dep
}
