package main

import (
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/pcristin/zeroland-landing/internal/app"
	"github.com/pcristin/zeroland-landing/internal/contracts"
	"github.com/pcristin/zeroland-landing/internal/lending"
	"github.com/pcristin/zeroland-landing/internal/txbuilder"
)

func printReport(w io.Writer, s *app.Session, rep lending.Report) {
	p := rep.Plan
	fmt.Fprintf(w, "network:        %s (%d)\n", s.Network.Name, s.Network.ChainID)
	fmt.Fprintf(w, "wallet:         %s\n", s.Wallet.Address().Hex())
	fmt.Fprintf(w, "pool:           %s\n", s.Contracts.Pool.Hex())
	if p.AmountBase == nil {
		return
	}
	fmt.Fprintf(w, "amount:         %s\n", p.Amount.String())
	fmt.Fprintf(w, "token balance:  %s\n", txbuilder.FormatUnits(p.TokenBalance, p.Decimals))
	fmt.Fprintf(w, "native balance: %s\n", txbuilder.FormatUnits(p.NativeBalance, 18))
	fmt.Fprintf(w, "gas budget:     %s\n", txbuilder.FormatUnits(p.GasBudget, 18))
	fmt.Fprintf(w, "allowance:      %s\n", formatAllowance(p.Allowance, p.Decimals))
	fmt.Fprintf(w, "needs approve:  %t\n", p.NeedsApprove)
	if rep.DryRun {
		fmt.Fprintln(w, "dry run: nothing was broadcast")
		return
	}
	printSummary(w, rep.Approve)
	printSummary(w, rep.Supply)
	if a := rep.Account; a != nil {
		fmt.Fprintf(w, "collateral:     %s\n", txbuilder.FormatUnits(a.TotalCollateralBase, 8))
		fmt.Fprintf(w, "health factor:  %s\n", formatHealth(a.HealthFactor))
	}
}

func printSummary(w io.Writer, sum *lending.TxSummary) {
	if sum == nil {
		return
	}
	fmt.Fprintf(w, "%s:\n", sum.Kind)
	if (sum.Hash != common.Hash{}) {
		fmt.Fprintf(w, "  hash:     %s\n", sum.Hash.Hex())
	}
	fmt.Fprintf(w, "  nonce:    %d\n", sum.Nonce)
	fmt.Fprintf(w, "  status:   %s\n", sum.Status)
	if sum.ExplorerURL != "" {
		fmt.Fprintf(w, "  explorer: %s\n", sum.ExplorerURL)
	}
	if g := sum.GasUsed(); g > 0 {
		fmt.Fprintf(w, "  gas used: %d\n", g)
	}
	if sum.Err != nil {
		fmt.Fprintf(w, "  error:    %v\n", sum.Err)
	}
}

func printFees(w io.Writer, s *app.Session, rep app.FeeReport) {
	fmt.Fprintf(w, "network:      %s (%d)\n", s.Network.Name, s.Network.ChainID)
	fmt.Fprintf(w, "gas price:    %s gwei\n", gwei(rep.Legacy.GasPrice))
	if rep.DynamicErr != nil {
		fmt.Fprintf(w, "eip1559:      unavailable (%v)\n", rep.DynamicErr)
	} else {
		fmt.Fprintf(w, "max fee:      %s gwei\n", gwei(rep.Dynamic.MaxFeePerGas))
		fmt.Fprintf(w, "priority fee: %s gwei\n", gwei(rep.Dynamic.MaxPriorityFeePerGas))
	}
	if rep.BudgetErr != nil {
		fmt.Fprintf(w, "gas budget:   unavailable (%v)\n", rep.BudgetErr)
	} else {
		fmt.Fprintf(w, "gas budget:   %s\n", txbuilder.FormatUnits(rep.Budget, 18))
	}
}

func gwei(v *big.Int) string { return txbuilder.FormatUnits(v, 9) }

func formatAllowance(v *big.Int, decimals uint8) string {
	if v != nil && v.Cmp(contracts.MaxUint256) == 0 {
		return "unlimited"
	}
	return txbuilder.FormatUnits(v, decimals)
}

func formatHealth(v *big.Int) string {
	if v != nil && v.Cmp(contracts.MaxUint256) == 0 {
		return "inf"
	}
	return txbuilder.FormatUnits(v, 18)
}

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	return hexutil.Decode(s)
}
