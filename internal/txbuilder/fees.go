package txbuilder

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"strings"

	"go.uber.org/zap"
)

type FeeMode string

const (
	FeeModeDynamic FeeMode = "eip1559"
	FeeModeLegacy  FeeMode = "legacy"
	// FeeModeAuto picks legacy when the latest header has no base fee.
	FeeModeAuto FeeMode = "auto"
)

func ParseFeeMode(s string) (FeeMode, error) {
	switch FeeMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", FeeModeDynamic, "dynamic", "1559":
		return FeeModeDynamic, nil
	case FeeModeLegacy:
		return FeeModeLegacy, nil
	case FeeModeAuto:
		return FeeModeAuto, nil
	default:
		return "", fmt.Errorf("unknown fee mode %q", s)
	}
}

// FeeParams carries GasPrice for legacy pricing, or the MaxFeePerGas and
// MaxPriorityFeePerGas pair for dynamic pricing.
type FeeParams struct {
	Mode                 FeeMode
	GasPrice             *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// CostCap is the per-gas price a transaction can be charged at most.
func (f FeeParams) CostCap() *big.Int {
	if f.Mode == FeeModeLegacy {
		return cloneBig(f.GasPrice)
	}
	return cloneBig(f.MaxFeePerGas)
}

type FeeEstimatorConfig struct {
	Multiplier       float64
	BudgetGasUnits   uint64
	BudgetBlocks     uint64
	BudgetPercentile float64
}

type FeeEstimator struct {
	client ChainClient
	cfg    FeeEstimatorConfig
	log    *zap.Logger
}

func NewFeeEstimator(client ChainClient, cfg FeeEstimatorConfig, log *zap.Logger) *FeeEstimator {
	if !usableFactor(cfg.Multiplier) {
		cfg.Multiplier = 1.25
	}
	if cfg.BudgetGasUnits == 0 {
		cfg.BudgetGasUnits = 70_000
	}
	if cfg.BudgetBlocks == 0 {
		cfg.BudgetBlocks = 10
	}
	if !usableFactor(cfg.BudgetPercentile) || cfg.BudgetPercentile > 100 {
		cfg.BudgetPercentile = 50
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &FeeEstimator{client: client, cfg: cfg, log: log}
}

func (e *FeeEstimator) Fees(ctx context.Context, mode FeeMode) (FeeParams, error) {
	switch mode {
	case FeeModeLegacy:
		return e.Legacy(ctx)
	case FeeModeAuto:
		header, err := e.client.HeaderByNumber(ctx, nil)
		if err != nil {
			return FeeParams{}, fmt.Errorf("%w: latest header: %v", ErrFeeEstimation, err)
		}
		if header.BaseFee == nil {
			return e.Legacy(ctx)
		}
		return e.Dynamic(ctx)
	default:
		return e.Dynamic(ctx)
	}
}

// Legacy prices at eth_gasPrice times the multiplier.
func (e *FeeEstimator) Legacy(ctx context.Context) (FeeParams, error) {
	price, err := e.client.SuggestGasPrice(ctx)
	if err != nil {
		return FeeParams{}, fmt.Errorf("%w: gas price: %v", ErrFeeEstimation, err)
	}
	return FeeParams{
		Mode:     FeeModeLegacy,
		GasPrice: mulFloat(price, e.cfg.Multiplier),
	}, nil
}

// Dynamic returns maxFee = baseFee*multiplier + tip. The tip falls back to
// the base fee when the node reports none.
func (e *FeeEstimator) Dynamic(ctx context.Context) (FeeParams, error) {
	baseFee, err := e.fetchBaseFee(ctx)
	if err != nil {
		return FeeParams{}, fmt.Errorf("%w: base fee: %v", ErrFeeEstimation, err)
	}
	tip, err := e.client.SuggestGasTipCap(ctx)
	if err != nil || tip == nil || tip.Sign() == 0 {
		if err != nil {
			e.log.Warn("priority fee unavailable, using base fee", zap.Error(err))
		}
		tip = new(big.Int).Set(baseFee)
	}
	maxFee := new(big.Int).Add(mulFloat(baseFee, e.cfg.Multiplier), tip)
	return FeeParams{
		Mode:                 FeeModeDynamic,
		MaxFeePerGas:         maxFee,
		MaxPriorityFeePerGas: tip,
	}, nil
}

// EstimateGasBudget is the coarse native balance needed to pay for one
// transaction: (latest fee-history base fee + tip) * BudgetGasUnits, or
// gasPrice * BudgetGasUnits when the fee history is unavailable.
func (e *FeeEstimator) EstimateGasBudget(ctx context.Context) (*big.Int, error) {
	units := new(big.Int).SetUint64(e.cfg.BudgetGasUnits)
	perGas, err := e.historyFee(ctx)
	if err == nil {
		return perGas.Mul(perGas, units), nil
	}
	e.log.Warn("fee history unavailable, budgeting with gas price", zap.Error(err))
	price, perr := e.client.SuggestGasPrice(ctx)
	if perr != nil {
		return nil, fmt.Errorf("%w: fee history: %v; gas price: %v", ErrFeeEstimation, err, perr)
	}
	return new(big.Int).Mul(price, units), nil
}

func (e *FeeEstimator) historyFee(ctx context.Context) (*big.Int, error) {
	hist, err := e.client.FeeHistory(ctx, e.cfg.BudgetBlocks, nil, []float64{e.cfg.BudgetPercentile})
	if err != nil {
		return nil, err
	}
	if hist == nil || len(hist.BaseFee) == 0 {
		return nil, fmt.Errorf("fee history returned no base fees")
	}
	latest := hist.BaseFee[len(hist.BaseFee)-1]
	if latest == nil {
		return nil, fmt.Errorf("fee history returned a nil base fee")
	}
	tip, err := e.client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Add(latest, tip), nil
}

func (e *FeeEstimator) fetchBaseFee(ctx context.Context) (*big.Int, error) {
	header, err := e.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, err
	}
	if header.BaseFee != nil {
		return new(big.Int).Set(header.BaseFee), nil
	}
	// Fallback for non-EIP-1559 chains: approximate using gas price.
	return e.client.SuggestGasPrice(ctx)
}

func mulFloat(v *big.Int, f float64) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	if f == 1.0 || !usableFactor(f) {
		return new(big.Int).Set(v)
	}
	r := new(big.Rat).SetInt(v)
	r.Mul(r, new(big.Rat).SetFloat64(f))
	out := new(big.Int)
	out.Div(r.Num(), r.Denom())
	return out
}

// usableFactor reports a positive finite multiplier.
func usableFactor(f float64) bool {
	return f > 0 && !math.IsInf(f, 0) && !math.IsNaN(f)
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
