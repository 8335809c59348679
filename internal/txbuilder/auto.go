package txbuilder

import (
	"context"
	"errors"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/pcristin/zeroland-landing/internal/contracts"
)

const (
	KindApprove = "approve"
	KindSupply  = "supply"
	KindWrap    = "wrap"
	KindUnwrap  = "unwrap"
)

type AutoBuilderConfig struct {
	FeeMode            FeeMode
	ApproveFeeMode     FeeMode
	GasLimitMultiplier float64
	ApproveGasLimit    uint64
	WrapGasLimit       uint64
}

// AutoBuilder fills nonce, gas and fees from the chain for each request.
type AutoBuilder struct {
	builder *Builder
	client  ChainClient
	fees    *FeeEstimator
	nonce   NonceProvider
	cfg     AutoBuilderConfig
	log     *zap.Logger
}

func NewAutoBuilder(builder *Builder, client ChainClient, fees *FeeEstimator, cfg AutoBuilderConfig, log *zap.Logger) *AutoBuilder {
	if !usableFactor(cfg.GasLimitMultiplier) {
		cfg.GasLimitMultiplier = 1.5
	}
	if cfg.ApproveGasLimit == 0 {
		cfg.ApproveGasLimit = 300_000
	}
	if cfg.WrapGasLimit == 0 {
		cfg.WrapGasLimit = 100_000
	}
	if cfg.FeeMode == "" {
		cfg.FeeMode = FeeModeDynamic
	}
	if cfg.ApproveFeeMode == "" {
		cfg.ApproveFeeMode = FeeModeLegacy
	}
	if log == nil {
		log = zap.NewNop()
	}
	a := &AutoBuilder{builder: builder, client: client, fees: fees, cfg: cfg, log: log}
	if builder != nil {
		a.nonce = NewNonceManager(client, builder.ChainID)
	}
	return a
}

func (a *AutoBuilder) SetNonceProvider(provider NonceProvider) {
	a.nonce = provider
}

func (a *AutoBuilder) ChainID() *big.Int {
	if a.builder == nil || a.builder.ChainID == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(a.builder.ChainID)
}

func (a *AutoBuilder) Fees() *FeeEstimator { return a.fees }

func (a *AutoBuilder) BuildApproveTx(ctx context.Context, from, token, spender common.Address, amount *big.Int) (*TxRequest, error) {
	data, err := contracts.PackApprove(spender, amount)
	if err != nil {
		return nil, err
	}
	return a.buildTx(ctx, KindApprove, from, token, big.NewInt(0), data, a.cfg.ApproveFeeMode, a.cfg.ApproveGasLimit)
}

func (a *AutoBuilder) BuildSupplyTx(ctx context.Context, from, pool, asset common.Address, amount *big.Int, onBehalfOf common.Address, referral uint16) (*TxRequest, error) {
	data, err := contracts.PackSupply(asset, amount, onBehalfOf, referral)
	if err != nil {
		return nil, err
	}
	return a.buildTx(ctx, KindSupply, from, pool, big.NewInt(0), data, a.cfg.FeeMode, 0)
}

func (a *AutoBuilder) BuildWrapTx(ctx context.Context, from, weth common.Address, amount *big.Int) (*TxRequest, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, errors.New("wrap amount must be positive")
	}
	data, err := contracts.PackDeposit()
	if err != nil {
		return nil, err
	}
	return a.buildTx(ctx, KindWrap, from, weth, new(big.Int).Set(amount), data, a.cfg.FeeMode, a.cfg.WrapGasLimit)
}

func (a *AutoBuilder) BuildUnwrapTx(ctx context.Context, from, weth common.Address, amount *big.Int) (*TxRequest, error) {
	data, err := contracts.PackWithdraw(amount)
	if err != nil {
		return nil, err
	}
	return a.buildTx(ctx, KindUnwrap, from, weth, big.NewInt(0), data, a.cfg.FeeMode, a.cfg.WrapGasLimit)
}

// buildTx estimates gas unless fixedGas is set.
func (a *AutoBuilder) buildTx(ctx context.Context, kind string, from, to common.Address, value *big.Int, data []byte, mode FeeMode, fixedGas uint64) (*TxRequest, error) {
	if a.builder == nil || a.client == nil || a.fees == nil {
		return nil, errors.New("builder, client and fee estimator are required")
	}
	fees, err := a.fees.Fees(ctx, mode)
	if err != nil {
		return nil, err
	}
	nonce, err := a.nextNonce(ctx, from)
	if err != nil {
		return nil, err
	}
	req := &TxRequest{
		Kind:    kind,
		ChainID: a.ChainID(),
		From:    from,
		To:      to,
		Nonce:   nonce,
		Value:   value,
		Data:    data,
		Fee:     fees,
	}
	if fixedGas > 0 {
		req.Gas = fixedGas
	} else {
		gas, err := a.estimateGas(ctx, req)
		if err != nil {
			return nil, err
		}
		req.Gas = gas
	}
	a.log.Debug("tx request built",
		zap.String("kind", kind),
		zap.String("to", to.Hex()),
		zap.Uint64("nonce", nonce),
		zap.Uint64("gas", req.Gas),
		zap.String("fee_mode", string(fees.Mode)),
	)
	return req, nil
}

func (a *AutoBuilder) nextNonce(ctx context.Context, from common.Address) (uint64, error) {
	if a.nonce != nil {
		return a.nonce.Next(ctx, from)
	}
	return a.client.PendingNonceAt(ctx, from)
}

func (a *AutoBuilder) estimateGas(ctx context.Context, req *TxRequest) (uint64, error) {
	msg := CallMsg(req)
	gas, err := a.client.EstimateGas(ctx, msg)
	if err != nil {
		return 0, &EstimateGasError{Err: err, CallMsg: msg}
	}
	return applyGasMultiplier(gas, a.cfg.GasLimitMultiplier), nil
}

// CallMsg turns a request into the message used for eth_estimateGas and
// eth_call simulation.
func CallMsg(req *TxRequest) ethereum.CallMsg {
	to := req.To
	msg := ethereum.CallMsg{
		From:  req.From,
		To:    &to,
		Gas:   req.Gas,
		Value: req.Value,
		Data:  req.Data,
	}
	if req.Fee.Mode == FeeModeLegacy {
		msg.GasPrice = req.Fee.GasPrice
	} else {
		msg.GasFeeCap = req.Fee.MaxFeePerGas
		msg.GasTipCap = req.Fee.MaxPriorityFeePerGas
	}
	return msg
}

func applyGasMultiplier(gas uint64, mult float64) uint64 {
	if !usableFactor(mult) {
		return gas
	}
	f := float64(gas) * mult
	if f >= math.MaxUint64 {
		return gas
	}
	adjusted := uint64(f)
	if adjusted < gas {
		return gas
	}
	return adjusted
}
