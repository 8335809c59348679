package contracts

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

func TestSelectors(t *testing.T) {
	cases := []struct {
		name string
		abi  abi.ABI
		want string
	}{
		{"approve", ERC20(), "0x095ea7b3"},
		{"balanceOf", ERC20(), "0x70a08231"},
		{"decimals", ERC20(), "0x313ce567"},
		{"allowance", ERC20(), "0xdd62ed3e"},
		{"supply", Pool(), "0x617ba037"},
		{"getUserAccountData", Pool(), "0xbf92857c"},
		{"deposit", WETH(), "0xd0e30db0"},
		{"withdraw", WETH(), "0x2e1a7d4d"},
	}
	for _, c := range cases {
		m, ok := c.abi.Methods[c.name]
		if !ok {
			t.Fatalf("method %s missing", c.name)
		}
		if got := hexutil.Encode(m.ID); got != c.want {
			t.Fatalf("%s selector: got %s want %s", c.name, got, c.want)
		}
	}
}

func TestDecodeSupplyInput(t *testing.T) {
	asset := common.HexToAddress("0x176211869cA2b568f2A7D4EE941E073a821EE1ff")
	user := common.HexToAddress("0x1111111111111111111111111111111111111111")
	data, err := PackSupply(asset, big.NewInt(100_000_000), user, 0)
	if err != nil {
		t.Fatalf("PackSupply: %v", err)
	}
	m, err := DecodeInput(data)
	if err != nil {
		t.Fatalf("DecodeInput: %v", err)
	}
	if m == nil || m.Contract != "pool" || m.Name != "supply" {
		t.Fatalf("unexpected method: %+v", m)
	}
	if m.Args["amount"] != "100000000" {
		t.Fatalf("amount arg: %v", m.Args["amount"])
	}
	if m.Args["asset"] != asset.Hex() {
		t.Fatalf("asset arg: %v", m.Args["asset"])
	}
}

func TestDecodeInputUnknownSelector(t *testing.T) {
	m, err := DecodeInput([]byte{0xde, 0xad, 0xbe, 0xef})
	if err != nil || m != nil {
		t.Fatalf("expected nil, nil; got %+v, %v", m, err)
	}
}

func TestDecodeRevert(t *testing.T) {
	// Error(string) with reason "26".
	payload := hexutil.MustDecode("0x08c379a0" +
		"0000000000000000000000000000000000000000000000000000000000000020" +
		"0000000000000000000000000000000000000000000000000000000000000002" +
		"3236000000000000000000000000000000000000000000000000000000000000")
	if got := DecodeRevert(payload); got != "26" {
		t.Fatalf("DecodeRevert: got %q", got)
	}
	if got := DecodeRevert([]byte{0x01, 0x02}); got != "0x0102" {
		t.Fatalf("DecodeRevert raw: got %q", got)
	}
}

func TestUnpackAccountData(t *testing.T) {
	out, err := Pool().Methods["getUserAccountData"].Outputs.Pack(
		big.NewInt(5_000_000_000), big.NewInt(0), big.NewInt(4_000_000_000),
		big.NewInt(8000), big.NewInt(7500), MaxUint256,
	)
	if err != nil {
		t.Fatalf("pack outputs: %v", err)
	}
	data, err := UnpackAccountData(out)
	if err != nil {
		t.Fatalf("UnpackAccountData: %v", err)
	}
	if data.TotalCollateralBase.Int64() != 5_000_000_000 {
		t.Fatalf("collateral: %s", data.TotalCollateralBase)
	}
	if data.HealthFactor.Cmp(MaxUint256) != 0 {
		t.Fatalf("health factor: %s", data.HealthFactor)
	}
}

func TestPackRejectsBadAmounts(t *testing.T) {
	if _, err := PackSupply(common.Address{}, big.NewInt(0), common.Address{}, 0); err == nil {
		t.Fatalf("expected error for zero supply")
	}
	if _, err := PackWithdraw(nil); err == nil {
		t.Fatalf("expected error for nil withdraw")
	}
	if _, err := PackApprove(common.Address{}, big.NewInt(-1)); err == nil {
		t.Fatalf("expected error for negative approve")
	}
}
