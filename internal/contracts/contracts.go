// Package contracts embeds the ABIs of the contracts the flow talks to and
// decodes calldata and revert payloads produced against them.
package contracts

import (
	"bytes"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

//go:embed abi/*.json
var abiFS embed.FS

var (
	erc20ABI = mustLoad("abi/erc20.json")
	poolABI  = mustLoad("abi/pool.json")
	wethABI  = mustLoad("abi/weth.json")
)

func ERC20() abi.ABI { return erc20ABI }
func Pool() abi.ABI  { return poolABI }
func WETH() abi.ABI  { return wethABI }

// MaxUint256 is the "unlimited" approve amount.
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

type Method struct {
	Contract string
	Name     string
	Args     map[string]interface{}
}

// AccountData mirrors getUserAccountData. Amounts are in the pool's base
// currency; HealthFactor has 18 decimals.
type AccountData struct {
	TotalCollateralBase         *big.Int
	TotalDebtBase               *big.Int
	AvailableBorrowsBase        *big.Int
	CurrentLiquidationThreshold *big.Int
	LTV                         *big.Int
	HealthFactor                *big.Int
}

func PackApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, errors.New("approve amount must be non-negative")
	}
	return erc20ABI.Pack("approve", spender, amount)
}

func PackBalanceOf(owner common.Address) ([]byte, error) {
	return erc20ABI.Pack("balanceOf", owner)
}

func PackDecimals() ([]byte, error) {
	return erc20ABI.Pack("decimals")
}

func PackAllowance(owner, spender common.Address) ([]byte, error) {
	return erc20ABI.Pack("allowance", owner, spender)
}

func PackSupply(asset common.Address, amount *big.Int, onBehalfOf common.Address, referral uint16) ([]byte, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, errors.New("supply amount must be positive")
	}
	return poolABI.Pack("supply", asset, amount, onBehalfOf, referral)
}

func PackGetUserAccountData(user common.Address) ([]byte, error) {
	return poolABI.Pack("getUserAccountData", user)
}

func PackDeposit() ([]byte, error) {
	return wethABI.Pack("deposit")
}

func PackWithdraw(amount *big.Int) ([]byte, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, errors.New("withdraw amount must be positive")
	}
	return wethABI.Pack("withdraw", amount)
}

func UnpackUint256(method string, out []byte) (*big.Int, error) {
	vals, err := erc20ABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(vals) != 1 {
		return nil, fmt.Errorf("unpack %s: expected 1 value, got %d", method, len(vals))
	}
	v, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unpack %s: unexpected type %T", method, vals[0])
	}
	return v, nil
}

func UnpackDecimals(out []byte) (uint8, error) {
	vals, err := erc20ABI.Unpack("decimals", out)
	if err != nil {
		return 0, fmt.Errorf("unpack decimals: %w", err)
	}
	if len(vals) != 1 {
		return 0, fmt.Errorf("unpack decimals: expected 1 value, got %d", len(vals))
	}
	d, ok := vals[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("unpack decimals: unexpected type %T", vals[0])
	}
	return d, nil
}

func UnpackAccountData(out []byte) (AccountData, error) {
	vals, err := poolABI.Unpack("getUserAccountData", out)
	if err != nil {
		return AccountData{}, fmt.Errorf("unpack getUserAccountData: %w", err)
	}
	if len(vals) != 6 {
		return AccountData{}, fmt.Errorf("unpack getUserAccountData: expected 6 values, got %d", len(vals))
	}
	nums := make([]*big.Int, 6)
	for i, v := range vals {
		n, ok := v.(*big.Int)
		if !ok {
			return AccountData{}, fmt.Errorf("unpack getUserAccountData: field %d has type %T", i, v)
		}
		nums[i] = n
	}
	return AccountData{
		TotalCollateralBase:         nums[0],
		TotalDebtBase:               nums[1],
		AvailableBorrowsBase:        nums[2],
		CurrentLiquidationThreshold: nums[3],
		LTV:                         nums[4],
		HealthFactor:                nums[5],
	}, nil
}

// DecodeInput matches the selector against every embedded ABI. Unknown
// selectors yield (nil, nil).
func DecodeInput(data []byte) (*Method, error) {
	if len(data) < 4 {
		return nil, nil
	}
	for _, c := range []struct {
		name string
		abi  abi.ABI
	}{{"erc20", erc20ABI}, {"pool", poolABI}, {"weth", wethABI}} {
		method, err := c.abi.MethodById(data[:4])
		if err != nil {
			continue
		}
		args := map[string]interface{}{}
		if err := method.Inputs.UnpackIntoMap(args, data[4:]); err != nil {
			return nil, err
		}
		return &Method{Contract: c.name, Name: method.Name, Args: normalizeMap(args)}, nil
	}
	return nil, nil
}

// DecodeRevert returns the Error(string) reason, or the raw hex when the
// payload is not a standard revert.
func DecodeRevert(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	if reason, err := abi.UnpackRevert(data); err == nil {
		return reason
	}
	return "0x" + hex.EncodeToString(data)
}

func mustLoad(name string) abi.ABI {
	b, err := abiFS.ReadFile(name)
	if err != nil {
		panic(fmt.Sprintf("contracts: read %s: %v", name, err))
	}
	parsed, err := abi.JSON(bytes.NewReader(b))
	if err != nil {
		panic(fmt.Sprintf("contracts: parse %s: %v", name, err))
	}
	return parsed
}

func normalizeMap(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v interface{}) interface{} {
	switch t := v.(type) {
	case common.Address:
		return t.Hex()
	case *big.Int:
		if t == nil {
			return "0"
		}
		return t.String()
	case []byte:
		return "0x" + hex.EncodeToString(t)
	default:
		return t
	}
}
