package txbuilder

import (
	"errors"

	"github.com/ethereum/go-ethereum"
)

var (
	ErrFeeEstimation       = errors.New("fee estimation failed")
	ErrChainMismatch       = errors.New("chain id mismatch")
	ErrUnsupportedDecimals = errors.New("unsupported token decimals")
	ErrAmountPrecision     = errors.New("amount has more fractional digits than the token supports")
)

type EstimateGasError struct {
	Err     error
	CallMsg ethereum.CallMsg
}

func (e *EstimateGasError) Error() string {
	if e == nil || e.Err == nil {
		return "estimate gas failed"
	}
	return "estimate gas failed: " + e.Err.Error()
}

func (e *EstimateGasError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
