package txbuilder

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/pcristin/zeroland-landing/internal/contracts"
)

type BuildParams struct {
	Nonce    uint64
	GasLimit uint64
	Fee      FeeParams
}

// TxRequest is the unsigned transaction while it is being assembled.
type TxRequest struct {
	Kind    string
	ChainID *big.Int
	From    common.Address
	To      common.Address
	Nonce   uint64
	Value   *big.Int
	Data    []byte
	Gas     uint64
	Fee     FeeParams
}

// Transaction freezes the request into a typed transaction: DynamicFeeTx
// (type 2) for dynamic pricing, LegacyTx (type 0) otherwise.
func (r *TxRequest) Transaction() (*types.Transaction, error) {
	if r == nil {
		return nil, errors.New("tx request is nil")
	}
	p := BuildParams{Nonce: r.Nonce, GasLimit: r.Gas, Fee: r.Fee}
	if r.Fee.Mode == FeeModeLegacy {
		return buildLegacyTx(r.ChainID, r.To, r.Value, r.Data, p)
	}
	return buildDynamicTx(r.ChainID, r.To, r.Value, r.Data, p)
}

// MaxCost is gas * fee cap + value.
func (r *TxRequest) MaxCost() *big.Int {
	out := new(big.Int).SetUint64(r.Gas)
	if feeCap := r.Fee.CostCap(); feeCap != nil {
		out.Mul(out, feeCap)
	} else {
		out.SetInt64(0)
	}
	if r.Value != nil {
		out.Add(out, r.Value)
	}
	return out
}

// Builder assembles transactions offline from explicit nonce, gas and fees.
type Builder struct {
	ChainID *big.Int
}

func NewBuilder(chainID *big.Int) *Builder {
	return &Builder{ChainID: new(big.Int).Set(chainID)}
}

func (b *Builder) BuildApproveTx(token, spender common.Address, amount *big.Int, p BuildParams) (*types.Transaction, error) {
	data, err := contracts.PackApprove(spender, amount)
	if err != nil {
		return nil, err
	}
	return b.build(token, big.NewInt(0), data, p)
}

func (b *Builder) BuildSupplyTx(pool, asset common.Address, amount *big.Int, onBehalfOf common.Address, referral uint16, p BuildParams) (*types.Transaction, error) {
	data, err := contracts.PackSupply(asset, amount, onBehalfOf, referral)
	if err != nil {
		return nil, err
	}
	return b.build(pool, big.NewInt(0), data, p)
}

func (b *Builder) BuildWrapTx(weth common.Address, amount *big.Int, p BuildParams) (*types.Transaction, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, errors.New("wrap amount must be positive")
	}
	data, err := contracts.PackDeposit()
	if err != nil {
		return nil, err
	}
	return b.build(weth, amount, data, p)
}

func (b *Builder) BuildUnwrapTx(weth common.Address, amount *big.Int, p BuildParams) (*types.Transaction, error) {
	data, err := contracts.PackWithdraw(amount)
	if err != nil {
		return nil, err
	}
	return b.build(weth, big.NewInt(0), data, p)
}

func (b *Builder) build(to common.Address, value *big.Int, data []byte, p BuildParams) (*types.Transaction, error) {
	if p.Fee.Mode == FeeModeLegacy {
		return buildLegacyTx(b.ChainID, to, value, data, p)
	}
	return buildDynamicTx(b.ChainID, to, value, data, p)
}

func validateCommon(chainID *big.Int, value *big.Int, p BuildParams) error {
	if chainID == nil {
		return errors.New("chainID is required")
	}
	if value == nil {
		return errors.New("value is required")
	}
	if value.Sign() < 0 {
		return errors.New("value must be non-negative")
	}
	if p.GasLimit == 0 {
		return errors.New("gasLimit is required")
	}
	return nil
}

func buildDynamicTx(chainID *big.Int, to common.Address, value *big.Int, data []byte, p BuildParams) (*types.Transaction, error) {
	if err := validateCommon(chainID, value, p); err != nil {
		return nil, err
	}
	if p.Fee.MaxFeePerGas == nil || p.Fee.MaxPriorityFeePerGas == nil {
		return nil, errors.New("maxFeePerGas and maxPriorityFeePerGas are required")
	}
	if p.Fee.MaxFeePerGas.Sign() < 0 || p.Fee.MaxPriorityFeePerGas.Sign() < 0 {
		return nil, errors.New("fee values must be non-negative")
	}
	if p.Fee.MaxPriorityFeePerGas.Cmp(p.Fee.MaxFeePerGas) > 0 {
		return nil, fmt.Errorf("maxPriorityFeePerGas %s exceeds maxFeePerGas %s", p.Fee.MaxPriorityFeePerGas, p.Fee.MaxFeePerGas)
	}
	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     p.Nonce,
		Gas:       p.GasLimit,
		GasFeeCap: p.Fee.MaxFeePerGas,
		GasTipCap: p.Fee.MaxPriorityFeePerGas,
		To:        &to,
		Value:     value,
		Data:      data,
	}), nil
}

// The chain id of a legacy tx is bound at signing time (EIP-155).
func buildLegacyTx(chainID *big.Int, to common.Address, value *big.Int, data []byte, p BuildParams) (*types.Transaction, error) {
	if err := validateCommon(chainID, value, p); err != nil {
		return nil, err
	}
	if p.Fee.GasPrice == nil || p.Fee.GasPrice.Sign() < 0 {
		return nil, errors.New("gasPrice is required and must be non-negative")
	}
	return types.NewTx(&types.LegacyTx{
		Nonce:    p.Nonce,
		Gas:      p.GasLimit,
		GasPrice: p.Fee.GasPrice,
		To:       &to,
		Value:    value,
		Data:     data,
	}), nil
}
