package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/spf13/cobra"

	"github.com/pcristin/zeroland-landing/internal/contracts"
	"github.com/pcristin/zeroland-landing/internal/networks"
	"github.com/pcristin/zeroland-landing/internal/txbuilder"
)

type buildFlags struct {
	network    string
	mode       string
	from       string
	token      string
	spender    string
	pool       string
	amount     string
	amountBase string
	decimals   uint8
	referral   uint16

	nonce       uint64
	gasLimit    uint64
	gasPrice    string
	maxFee      string
	priorityFee string
}

// newBuildCmd assembles an unsigned transaction without any RPC access,
// from explicit nonce, gas and fee values.
func newBuildCmd(_ *rootOptions) *cobra.Command {
	var f buildFlags
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build an unsigned approve, supply, wrap or unwrap transaction offline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tx, err := f.build()
			if err != nil {
				return err
			}
			return printTx(cmd, tx)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.network, "network", "LINEA", "network name or chain id")
	fl.StringVar(&f.mode, "mode", "supply", "approve|supply|wrap|unwrap")
	fl.StringVar(&f.from, "from", "", "sender, used as onBehalfOf for supply")
	fl.StringVar(&f.token, "token", "", "token address (approve target, supply asset)")
	fl.StringVar(&f.spender, "spender", "", "spender for approve (defaults to --pool)")
	fl.StringVar(&f.pool, "pool", "", "lending pool address")
	fl.StringVar(&f.amount, "amount", "", "amount in token units")
	fl.StringVar(&f.amountBase, "amount-base", "", "amount in base units; \"max\" for an unlimited approve")
	fl.Uint8Var(&f.decimals, "decimals", 6, "token decimals used with --amount")
	fl.Uint16Var(&f.referral, "referral", 0, "supply referral code")
	fl.Uint64Var(&f.nonce, "nonce", 0, "nonce")
	fl.Uint64Var(&f.gasLimit, "gas-limit", 0, "gas limit")
	fl.StringVar(&f.gasPrice, "gas-price-gwei", "", "legacy gas price in gwei")
	fl.StringVar(&f.maxFee, "max-fee-gwei", "", "max fee per gas in gwei")
	fl.StringVar(&f.priorityFee, "priority-fee-gwei", "", "max priority fee per gas in gwei")
	return cmd
}

func (f buildFlags) build() (*types.Transaction, error) {
	d, err := networks.Lookup(f.network)
	if err != nil {
		return nil, err
	}
	params, err := f.params()
	if err != nil {
		return nil, err
	}
	b := txbuilder.NewBuilder(new(big.Int).SetUint64(d.ChainID))

	mode := strings.ToLower(strings.TrimSpace(f.mode))
	decimals := f.decimals
	if mode == "wrap" || mode == "unwrap" {
		decimals = 18
	}
	amount, err := parseBuildAmount(f.amount, f.amountBase, decimals, mode == "approve")
	if err != nil {
		return nil, err
	}

	switch mode {
	case "approve":
		spender := f.spender
		if spender == "" {
			spender = f.pool
		}
		spenderAddr, err := parseAddressRequired("spender", spender)
		if err != nil {
			return nil, err
		}
		token, err := parseAddressRequired("token", f.token)
		if err != nil {
			return nil, err
		}
		return b.BuildApproveTx(token, spenderAddr, amount, params)
	case "supply":
		pool, err := parseAddressRequired("pool", f.pool)
		if err != nil {
			return nil, err
		}
		token, err := parseAddressRequired("token", f.token)
		if err != nil {
			return nil, err
		}
		from, err := parseAddressRequired("from", f.from)
		if err != nil {
			return nil, err
		}
		return b.BuildSupplyTx(pool, token, amount, from, f.referral, params)
	case "wrap", "unwrap":
		if !d.HasWrappedNative() {
			return nil, fmt.Errorf("%s has no known wrapped-native token", d.Name)
		}
		if mode == "wrap" {
			return b.BuildWrapTx(d.WrappedNative, amount, params)
		}
		return b.BuildUnwrapTx(d.WrappedNative, amount, params)
	default:
		return nil, fmt.Errorf("unknown mode: %s", f.mode)
	}
}

func (f buildFlags) params() (txbuilder.BuildParams, error) {
	if f.gasLimit == 0 {
		return txbuilder.BuildParams{}, errors.New("--gas-limit is required")
	}
	p := txbuilder.BuildParams{Nonce: f.nonce, GasLimit: f.gasLimit}
	if f.gasPrice != "" {
		price, err := gweiFlag("gas-price-gwei", f.gasPrice)
		if err != nil {
			return p, err
		}
		p.Fee = txbuilder.FeeParams{Mode: txbuilder.FeeModeLegacy, GasPrice: price}
		return p, nil
	}
	if f.maxFee == "" || f.priorityFee == "" {
		return p, errors.New("either --gas-price-gwei or both --max-fee-gwei and --priority-fee-gwei are required")
	}
	maxFee, err := gweiFlag("max-fee-gwei", f.maxFee)
	if err != nil {
		return p, err
	}
	tip, err := gweiFlag("priority-fee-gwei", f.priorityFee)
	if err != nil {
		return p, err
	}
	p.Fee = txbuilder.FeeParams{Mode: txbuilder.FeeModeDynamic, MaxFeePerGas: maxFee, MaxPriorityFeePerGas: tip}
	return p, nil
}

func gweiFlag(name, v string) (*big.Int, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return nil, fmt.Errorf("--%s: invalid number %q", name, v)
	}
	return txbuilder.GweiToWei(f)
}

func parseBuildAmount(amount, base string, decimals uint8, allowMax bool) (*big.Int, error) {
	switch {
	case base != "":
		if allowMax && strings.EqualFold(base, "max") {
			return new(big.Int).Set(contracts.MaxUint256), nil
		}
		return txbuilder.ParseBaseUnits(base)
	case amount != "":
		d, err := txbuilder.ParseAmount(amount)
		if err != nil {
			return nil, err
		}
		return txbuilder.ToBaseUnits(d, decimals)
	default:
		return nil, errors.New("--amount or --amount-base is required")
	}
}

func parseAddressRequired(name, value string) (common.Address, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return common.Address{}, fmt.Errorf("--%s is required", name)
	}
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("--%s is not a valid address", name)
	}
	return common.HexToAddress(value), nil
}

type builtTx struct {
	Hash     string            `json:"signing_hash"`
	Type     uint8             `json:"type"`
	ChainID  string            `json:"chain_id"`
	Nonce    uint64            `json:"nonce"`
	To       string            `json:"to"`
	Value    string            `json:"value"`
	Gas      uint64            `json:"gas"`
	GasPrice string            `json:"gas_price,omitempty"`
	MaxFee   string            `json:"max_fee_per_gas,omitempty"`
	Tip      string            `json:"max_priority_fee_per_gas,omitempty"`
	Data     string            `json:"data"`
	Method   *contracts.Method `json:"method,omitempty"`
}

func printTx(cmd *cobra.Command, tx *types.Transaction) error {
	out := builtTx{
		Hash:    types.LatestSignerForChainID(tx.ChainId()).Hash(tx).Hex(),
		Type:    tx.Type(),
		ChainID: tx.ChainId().String(),
		Nonce:   tx.Nonce(),
		Value:   tx.Value().String(),
		Gas:     tx.Gas(),
		Data:    hexutil.Encode(tx.Data()),
	}
	if to := tx.To(); to != nil {
		out.To = to.Hex()
	}
	if tx.Type() == types.LegacyTxType {
		out.GasPrice = tx.GasPrice().String()
	} else {
		out.MaxFee = tx.GasFeeCap().String()
		out.Tip = tx.GasTipCap().String()
	}
	if m, err := contracts.DecodeInput(tx.Data()); err == nil {
		out.Method = m
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
