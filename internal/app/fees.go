package app

import (
	"context"
	"math/big"

	"github.com/pcristin/zeroland-landing/internal/txbuilder"
)

// FeeReport is what the fees command prints.
type FeeReport struct {
	Legacy     txbuilder.FeeParams
	Dynamic    txbuilder.FeeParams
	DynamicErr error
	Budget     *big.Int
	BudgetErr  error
}

// Fees collects both pricing modes and the pre-flight budget. Only a legacy
// failure is fatal since every chain serves eth_gasPrice.
func (s *Session) Fees(ctx context.Context) (FeeReport, error) {
	fees := s.Builder.Fees()
	var rep FeeReport
	var err error
	if rep.Legacy, err = fees.Legacy(ctx); err != nil {
		return rep, err
	}
	rep.Dynamic, rep.DynamicErr = fees.Dynamic(ctx)
	rep.Budget, rep.BudgetErr = fees.EstimateGasBudget(ctx)
	return rep, nil
}
