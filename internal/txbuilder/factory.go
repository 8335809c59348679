package txbuilder

import (
	"math/big"

	"go.uber.org/zap"

	"github.com/pcristin/zeroland-landing/internal/config"
)

func NewFeeEstimatorFromConfig(client ChainClient, cfg config.TxConfig, log *zap.Logger) *FeeEstimator {
	return NewFeeEstimator(client, FeeEstimatorConfig{
		Multiplier:       cfg.FeeMultiplier,
		BudgetGasUnits:   cfg.BudgetGasUnits,
		BudgetBlocks:     cfg.BudgetBlocks,
		BudgetPercentile: cfg.BudgetPercentile,
	}, log)
}

func NewAutoBuilderFromConfig(client ChainClient, chainID uint64, cfg config.TxConfig, log *zap.Logger) (*AutoBuilder, error) {
	mode, err := ParseFeeMode(cfg.FeeMode)
	if err != nil {
		return nil, err
	}
	approveMode, err := ParseFeeMode(cfg.ApproveFeeMode)
	if err != nil {
		return nil, err
	}
	builder := NewBuilder(new(big.Int).SetUint64(chainID))
	fees := NewFeeEstimatorFromConfig(client, cfg, log)
	return NewAutoBuilder(builder, client, fees, AutoBuilderConfig{
		FeeMode:            mode,
		ApproveFeeMode:     approveMode,
		GasLimitMultiplier: cfg.GasLimitMultiplier,
		ApproveGasLimit:    cfg.ApproveGasLimit,
		WrapGasLimit:       cfg.WrapGasLimit,
	}, log), nil
}
