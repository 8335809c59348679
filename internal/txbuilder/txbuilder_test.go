package txbuilder

import (
	"bytes"
	"context"
	"errors"
	"math"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/pcristin/zeroland-landing/internal/contracts"
)

type fakeChain struct {
	mu sync.Mutex

	chainID     *big.Int
	nonce       uint64
	gasPrice    *big.Int
	gasPriceErr error
	tip         *big.Int
	tipErr      error
	baseFee     *big.Int
	history     *ethereum.FeeHistory
	historyErr  error
	estimate    uint64
	estimateErr error
	callResults map[string][]byte

	nonceCalls   int
	chainIDCalls int
	calls        map[string]int
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		chainID:     big.NewInt(59144),
		gasPrice:    big.NewInt(1_000_000_000),
		tip:         big.NewInt(100_000_000),
		baseFee:     big.NewInt(800_000_000),
		estimate:    200_000,
		callResults: map[string][]byte{},
		calls:       map[string]int{},
	}
}

func (f *fakeChain) ChainID(context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chainIDCalls++
	return new(big.Int).Set(f.chainID), nil
}

func (f *fakeChain) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nonceCalls++
	return f.nonce, nil
}

func (f *fakeChain) SuggestGasTipCap(context.Context) (*big.Int, error) {
	if f.tipErr != nil {
		return nil, f.tipErr
	}
	return new(big.Int).Set(f.tip), nil
}

func (f *fakeChain) SuggestGasPrice(context.Context) (*big.Int, error) {
	if f.gasPriceErr != nil {
		return nil, f.gasPriceErr
	}
	return new(big.Int).Set(f.gasPrice), nil
}

func (f *fakeChain) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	h := &types.Header{Number: big.NewInt(100)}
	if f.baseFee != nil {
		h.BaseFee = new(big.Int).Set(f.baseFee)
	}
	return h, nil
}

func (f *fakeChain) FeeHistory(context.Context, uint64, *big.Int, []float64) (*ethereum.FeeHistory, error) {
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return f.history, nil
}

func (f *fakeChain) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	if f.estimateErr != nil {
		return 0, f.estimateErr
	}
	return f.estimate, nil
}

func (f *fakeChain) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sel := hexutil.Encode(msg.Data[:4])
	f.calls[sel]++
	out, ok := f.callResults[sel]
	if !ok {
		return nil, errors.New("execution reverted")
	}
	return out, nil
}

var (
	testFrom  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testToken = common.HexToAddress("0x3333333333333333333333333333333333333333")
	testPool  = common.HexToAddress("0x4444444444444444444444444444444444444444")
	testWETH  = common.HexToAddress("0x5555555555555555555555555555555555555555")
)

func newTestAuto(chain *fakeChain) *AutoBuilder {
	fees := NewFeeEstimator(chain, FeeEstimatorConfig{}, nil)
	return NewAutoBuilder(NewBuilder(big.NewInt(59144)), chain, fees, AutoBuilderConfig{}, nil)
}

func TestBuildApproveTxCalldata(t *testing.T) {
	builder := NewBuilder(big.NewInt(59144))
	params := BuildParams{
		Nonce:    2,
		GasLimit: 70000,
		Fee: FeeParams{
			MaxFeePerGas:         big.NewInt(1000000000),
			MaxPriorityFeePerGas: big.NewInt(200000000),
		},
	}
	amount := big.NewInt(1000000)

	tx, err := builder.BuildApproveTx(testToken, testPool, amount, params)
	if err != nil {
		t.Fatalf("BuildApproveTx error: %v", err)
	}
	data := hexutil.Encode(tx.Data())
	expected := "0x095ea7b3" + hexAddress(testPool) + hex32(amount)
	if data != expected {
		t.Fatalf("unexpected calldata\nexpected=%s\nactual=%s", expected, data)
	}
	if tx.Type() != types.DynamicFeeTxType {
		t.Fatalf("expected dynamic fee tx, got type %d", tx.Type())
	}
}

func TestBuildSupplyTxCalldata(t *testing.T) {
	builder := NewBuilder(big.NewInt(59144))
	params := BuildParams{
		Nonce:    3,
		GasLimit: 300000,
		Fee:      FeeParams{Mode: FeeModeLegacy, GasPrice: big.NewInt(1250000000)},
	}
	amount := big.NewInt(100_000_000)

	tx, err := builder.BuildSupplyTx(testPool, testToken, amount, testFrom, 0, params)
	if err != nil {
		t.Fatalf("BuildSupplyTx error: %v", err)
	}
	data := hexutil.Encode(tx.Data())
	expected := "0x617ba037" + hexAddress(testToken) + hex32(amount) + hexAddress(testFrom) + hex32(big.NewInt(0))
	if data != expected {
		t.Fatalf("unexpected calldata\nexpected=%s\nactual=%s", expected, data)
	}
	if tx.Type() != types.LegacyTxType {
		t.Fatalf("expected legacy tx, got type %d", tx.Type())
	}
	if tx.Value().Sign() != 0 {
		t.Fatalf("supply must carry zero value, got %s", tx.Value())
	}
}

func TestBuildDynamicTxRejectsTipAboveCap(t *testing.T) {
	builder := NewBuilder(big.NewInt(1))
	_, err := builder.BuildWrapTx(testWETH, big.NewInt(1), BuildParams{
		GasLimit: 100000,
		Fee:      FeeParams{MaxFeePerGas: big.NewInt(1), MaxPriorityFeePerGas: big.NewInt(2)},
	})
	if err == nil {
		t.Fatalf("expected error when tip exceeds fee cap")
	}
}

func TestLegacyFees(t *testing.T) {
	chain := newFakeChain()
	fees := NewFeeEstimator(chain, FeeEstimatorConfig{}, nil)
	got, err := fees.Legacy(context.Background())
	if err != nil {
		t.Fatalf("Legacy: %v", err)
	}
	if got.Mode != FeeModeLegacy || got.GasPrice.String() != "1250000000" {
		t.Fatalf("unexpected legacy fee: %+v", got)
	}
}

func TestNonFiniteFactorsFallBackToDefaults(t *testing.T) {
	chain := newFakeChain()
	for _, f := range []float64{math.Inf(1), math.NaN()} {
		fees := NewFeeEstimator(chain, FeeEstimatorConfig{Multiplier: f, BudgetPercentile: f}, nil)
		got, err := fees.Legacy(context.Background())
		if err != nil {
			t.Fatalf("Legacy(%v): %v", f, err)
		}
		if got.GasPrice.String() != "1250000000" {
			t.Fatalf("multiplier %v: gas price %s", f, got.GasPrice)
		}
		if got := applyGasMultiplier(200_000, f); got != 200_000 {
			t.Fatalf("gas multiplier %v: got %d", f, got)
		}
	}
	if got := mulFloat(big.NewInt(7), math.Inf(-1)); got.Int64() != 7 {
		t.Fatalf("mulFloat(-Inf): got %s", got)
	}
	if got := applyGasMultiplier(200_000, math.MaxFloat64); got != 200_000 {
		t.Fatalf("overflowing gas multiplier: got %d", got)
	}
}

func TestDynamicFees(t *testing.T) {
	chain := newFakeChain()
	fees := NewFeeEstimator(chain, FeeEstimatorConfig{}, nil)
	got, err := fees.Dynamic(context.Background())
	if err != nil {
		t.Fatalf("Dynamic: %v", err)
	}
	// 0.8 gwei * 1.25 + 0.1 gwei
	if got.MaxFeePerGas.String() != "1100000000" || got.MaxPriorityFeePerGas.String() != "100000000" {
		t.Fatalf("unexpected dynamic fee: max=%s tip=%s", got.MaxFeePerGas, got.MaxPriorityFeePerGas)
	}
}

func TestDynamicFeesTipFallsBackToBaseFee(t *testing.T) {
	chain := newFakeChain()
	chain.tip = big.NewInt(0)
	fees := NewFeeEstimator(chain, FeeEstimatorConfig{}, nil)
	got, err := fees.Dynamic(context.Background())
	if err != nil {
		t.Fatalf("Dynamic: %v", err)
	}
	if got.MaxPriorityFeePerGas.String() != "800000000" {
		t.Fatalf("tip should equal base fee, got %s", got.MaxPriorityFeePerGas)
	}
	if got.MaxFeePerGas.String() != "1800000000" {
		t.Fatalf("unexpected max fee: %s", got.MaxFeePerGas)
	}

	chain.tipErr = errors.New("method not found")
	got, err = fees.Dynamic(context.Background())
	if err != nil {
		t.Fatalf("Dynamic with tip error: %v", err)
	}
	if got.MaxPriorityFeePerGas.String() != "800000000" {
		t.Fatalf("tip should equal base fee on error, got %s", got.MaxPriorityFeePerGas)
	}
}

func TestAutoFeeModePicksLegacyWithoutBaseFee(t *testing.T) {
	chain := newFakeChain()
	chain.baseFee = nil
	fees := NewFeeEstimator(chain, FeeEstimatorConfig{}, nil)
	got, err := fees.Fees(context.Background(), FeeModeAuto)
	if err != nil {
		t.Fatalf("Fees: %v", err)
	}
	if got.Mode != FeeModeLegacy {
		t.Fatalf("expected legacy, got %s", got.Mode)
	}
}

func TestEstimateGasBudgetFromFeeHistory(t *testing.T) {
	chain := newFakeChain()
	chain.history = &ethereum.FeeHistory{
		BaseFee: []*big.Int{big.NewInt(500), big.NewInt(700), big.NewInt(900)},
	}
	chain.tip = big.NewInt(100)
	fees := NewFeeEstimator(chain, FeeEstimatorConfig{}, nil)
	got, err := fees.EstimateGasBudget(context.Background())
	if err != nil {
		t.Fatalf("EstimateGasBudget: %v", err)
	}
	if want := big.NewInt((900 + 100) * 70000); got.Cmp(want) != 0 {
		t.Fatalf("budget: got %s want %s", got, want)
	}
}

func TestEstimateGasBudgetFallsBackToGasPrice(t *testing.T) {
	chain := newFakeChain()
	chain.historyErr = errors.New("eth_feeHistory not supported")
	chain.gasPrice = big.NewInt(3_000_000_000)
	fees := NewFeeEstimator(chain, FeeEstimatorConfig{}, nil)
	got, err := fees.EstimateGasBudget(context.Background())
	if err != nil {
		t.Fatalf("EstimateGasBudget: %v", err)
	}
	want := new(big.Int).Mul(big.NewInt(3_000_000_000), big.NewInt(70000))
	if got.Cmp(want) != 0 {
		t.Fatalf("budget: got %s want %s", got, want)
	}
}

func TestEstimateGasBudgetBothSourcesFail(t *testing.T) {
	chain := newFakeChain()
	chain.historyErr = errors.New("history down")
	chain.gasPriceErr = errors.New("gas price down")
	fees := NewFeeEstimator(chain, FeeEstimatorConfig{}, nil)
	if _, err := fees.EstimateGasBudget(context.Background()); !errors.Is(err, ErrFeeEstimation) {
		t.Fatalf("expected ErrFeeEstimation, got %v", err)
	}
}

func TestAutoBuilderSupplyAppliesGasMultiplier(t *testing.T) {
	chain := newFakeChain()
	chain.nonce = 9
	auto := newTestAuto(chain)
	req, err := auto.BuildSupplyTx(context.Background(), testFrom, testPool, testToken, big.NewInt(100_000_000), testFrom, 0)
	if err != nil {
		t.Fatalf("BuildSupplyTx: %v", err)
	}
	if req.Gas != 300_000 {
		t.Fatalf("gas: got %d want 300000", req.Gas)
	}
	if req.Nonce != 9 || req.Kind != KindSupply {
		t.Fatalf("unexpected request: %+v", req)
	}
	tx, err := req.Transaction()
	if err != nil {
		t.Fatalf("Transaction: %v", err)
	}
	if tx.Type() != types.DynamicFeeTxType || tx.ChainId().Int64() != 59144 {
		t.Fatalf("unexpected tx type=%d chain=%s", tx.Type(), tx.ChainId())
	}
}

func TestAutoBuilderApproveUsesLegacyFixedGas(t *testing.T) {
	chain := newFakeChain()
	chain.estimateErr = errors.New("must not be called")
	auto := newTestAuto(chain)
	req, err := auto.BuildApproveTx(context.Background(), testFrom, testToken, testPool, contracts.MaxUint256)
	if err != nil {
		t.Fatalf("BuildApproveTx: %v", err)
	}
	if req.Gas != 300_000 {
		t.Fatalf("gas: got %d", req.Gas)
	}
	if req.Fee.Mode != FeeModeLegacy || req.Fee.GasPrice.String() != "1250000000" {
		t.Fatalf("unexpected fee: %+v", req.Fee)
	}
	if !bytes.Equal(req.Data[4:36], common.LeftPadBytes(testPool.Bytes(), 32)) {
		t.Fatalf("spender not encoded")
	}
}

func TestAutoBuilderWrapCarriesValue(t *testing.T) {
	chain := newFakeChain()
	auto := newTestAuto(chain)
	amount := big.NewInt(1e15)
	req, err := auto.BuildWrapTx(context.Background(), testFrom, testWETH, amount)
	if err != nil {
		t.Fatalf("BuildWrapTx: %v", err)
	}
	if req.Gas != 100_000 || req.Value.Cmp(amount) != 0 {
		t.Fatalf("unexpected wrap request: gas=%d value=%s", req.Gas, req.Value)
	}
	if hexutil.Encode(req.Data) != "0xd0e30db0" {
		t.Fatalf("unexpected wrap data: %x", req.Data)
	}

	req, err = auto.BuildUnwrapTx(context.Background(), testFrom, testWETH, amount)
	if err != nil {
		t.Fatalf("BuildUnwrapTx: %v", err)
	}
	if req.Gas != 100_000 || req.Value.Sign() != 0 {
		t.Fatalf("unexpected unwrap request: gas=%d value=%s", req.Gas, req.Value)
	}
}

func TestAutoBuilderEstimateGasError(t *testing.T) {
	chain := newFakeChain()
	chain.estimateErr = errors.New("execution reverted")
	auto := newTestAuto(chain)
	_, err := auto.BuildSupplyTx(context.Background(), testFrom, testPool, testToken, big.NewInt(1), testFrom, 0)
	var estErr *EstimateGasError
	if !errors.As(err, &estErr) {
		t.Fatalf("expected EstimateGasError, got %v", err)
	}
	if estErr.CallMsg.To == nil || *estErr.CallMsg.To != testPool {
		t.Fatalf("call msg not preserved: %+v", estErr.CallMsg)
	}
}

func TestNonceAndChainIDFetchedPerTransaction(t *testing.T) {
	chain := newFakeChain()
	auto := newTestAuto(chain)
	for i := 0; i < 2; i++ {
		if _, err := auto.BuildWrapTx(context.Background(), testFrom, testWETH, big.NewInt(1)); err != nil {
			t.Fatalf("BuildWrapTx: %v", err)
		}
	}
	if chain.nonceCalls != 2 || chain.chainIDCalls != 2 {
		t.Fatalf("expected fresh reads per tx, got nonce=%d chainID=%d", chain.nonceCalls, chain.chainIDCalls)
	}
}

func TestNonceManagerChainMismatch(t *testing.T) {
	chain := newFakeChain()
	chain.chainID = big.NewInt(1)
	m := NewNonceManager(chain, big.NewInt(59144))
	if _, err := m.Next(context.Background(), testFrom); !errors.Is(err, ErrChainMismatch) {
		t.Fatalf("expected ErrChainMismatch, got %v", err)
	}
}

func TestTokenReaderCachesDecimals(t *testing.T) {
	chain := newFakeChain()
	out, err := contracts.ERC20().Methods["decimals"].Outputs.Pack(uint8(6))
	if err != nil {
		t.Fatalf("pack decimals: %v", err)
	}
	chain.callResults["0x313ce567"] = out
	reader := NewTokenReader(chain)
	for i := 0; i < 3; i++ {
		d, err := reader.Decimals(context.Background(), testToken)
		if err != nil {
			t.Fatalf("Decimals: %v", err)
		}
		if d != 6 {
			t.Fatalf("decimals: got %d", d)
		}
	}
	if chain.calls["0x313ce567"] != 1 {
		t.Fatalf("decimals queried %d times", chain.calls["0x313ce567"])
	}
}

func TestTokenReaderRejectsUnsupportedDecimals(t *testing.T) {
	chain := newFakeChain()
	out, _ := contracts.ERC20().Methods["decimals"].Outputs.Pack(uint8(8))
	chain.callResults["0x313ce567"] = out
	reader := NewTokenReader(chain)
	if _, err := reader.Decimals(context.Background(), testToken); !errors.Is(err, ErrUnsupportedDecimals) {
		t.Fatalf("expected ErrUnsupportedDecimals, got %v", err)
	}
}

func TestTokenReaderBalanceOf(t *testing.T) {
	chain := newFakeChain()
	out, _ := contracts.ERC20().Methods["balanceOf"].Outputs.Pack(big.NewInt(50_000_000))
	chain.callResults["0x70a08231"] = out
	reader := NewTokenReader(chain)
	got, err := reader.BalanceOf(context.Background(), testToken, testFrom)
	if err != nil {
		t.Fatalf("BalanceOf: %v", err)
	}
	if got.Int64() != 50_000_000 {
		t.Fatalf("balance: got %s", got)
	}
}

func hex32(v *big.Int) string {
	b := common.LeftPadBytes(v.Bytes(), 32)
	return hexutil.Encode(b)[2:]
}

func hexAddress(addr common.Address) string {
	b := common.LeftPadBytes(addr.Bytes(), 32)
	return hexutil.Encode(b)[2:]
}
