package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root, _ := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

const (
	testPool  = "0x2f9bB73a8e98793e26Cb2F6C4ad037BDf1C6B269"
	testUSDC  = "0x176211869cA2b568f2A7D4EE941E073a821EE1ff"
	testOwner = "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"
)

func TestBuildSupplyOffline(t *testing.T) {
	out, err := run(t, "build", "--mode", "supply",
		"--pool", testPool, "--token", testUSDC, "--from", testOwner,
		"--amount", "1.5", "--nonce", "7", "--gas-limit", "300000",
		"--max-fee-gwei", "2", "--priority-fee-gwei", "0.1",
	)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	var tx builtTx
	if err := json.Unmarshal([]byte(out), &tx); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if tx.Type != 2 || tx.ChainID != "59144" || tx.Nonce != 7 || tx.Gas != 300000 {
		t.Fatalf("unexpected tx: %+v", tx)
	}
	if tx.MaxFee != "2000000000" || tx.Tip != "100000000" {
		t.Fatalf("unexpected fees: %s %s", tx.MaxFee, tx.Tip)
	}
	if !strings.EqualFold(tx.To, testPool) {
		t.Fatalf("to = %s", tx.To)
	}
	if tx.Method == nil || tx.Method.Name != "supply" || tx.Method.Args["amount"] != "1500000" {
		t.Fatalf("unexpected method: %+v", tx.Method)
	}
}

func TestBuildApproveMaxLegacy(t *testing.T) {
	out, err := run(t, "build", "--mode", "approve",
		"--pool", testPool, "--token", testUSDC, "--amount-base", "max",
		"--gas-limit", "300000", "--gas-price-gwei", "0.05",
	)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	var tx builtTx
	if err := json.Unmarshal([]byte(out), &tx); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if tx.Type != 0 || tx.GasPrice != "50000000" {
		t.Fatalf("expected legacy tx at 0.05 gwei, got %+v", tx)
	}
	if tx.Method == nil || tx.Method.Name != "approve" || !strings.EqualFold(tx.Method.Args["spender"].(string), testPool) {
		t.Fatalf("unexpected method: %+v", tx.Method)
	}
}

func TestBuildWrapNeedsWrappedNative(t *testing.T) {
	_, err := run(t, "build", "--mode", "wrap", "--amount", "0.1",
		"--gas-limit", "60000", "--gas-price-gwei", "1")
	if err == nil || !strings.Contains(err.Error(), "wrapped-native") {
		t.Fatalf("expected wrapped-native error on LINEA, got %v", err)
	}

	out, err := run(t, "build", "--network", "optimism", "--mode", "wrap", "--amount", "0.1",
		"--gas-limit", "60000", "--gas-price-gwei", "1")
	if err != nil {
		t.Fatalf("build wrap: %v", err)
	}
	var tx builtTx
	if err := json.Unmarshal([]byte(out), &tx); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if tx.Value != "100000000000000000" || tx.Method == nil || tx.Method.Name != "deposit" {
		t.Fatalf("unexpected wrap tx: %+v", tx)
	}
}

func TestBuildRequiresFees(t *testing.T) {
	_, err := run(t, "build", "--mode", "supply", "--pool", testPool, "--token", testUSDC,
		"--from", testOwner, "--amount", "1", "--gas-limit", "300000")
	if err == nil || !strings.Contains(err.Error(), "gas-price-gwei") {
		t.Fatalf("expected missing fee error, got %v", err)
	}
	_, err = run(t, "build", "--mode", "supply", "--amount", "1", "--gas-price-gwei", "1")
	if err == nil || !strings.Contains(err.Error(), "gas-limit") {
		t.Fatalf("expected missing gas limit error, got %v", err)
	}
}

func TestDecodeCalldata(t *testing.T) {
	// approve(pool, 1000000)
	data := "0x095ea7b3" +
		"0000000000000000000000002f9bb73a8e98793e26cb2f6c4ad037bdf1c6b269" +
		"00000000000000000000000000000000000000000000000000000000000f4240"
	out, err := run(t, "decode", data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	var m struct {
		Contract string
		Name     string
		Args     map[string]interface{}
	}
	if err := json.Unmarshal([]byte(out), &m); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if m.Contract != "erc20" || m.Name != "approve" || m.Args["amount"] != "1000000" {
		t.Fatalf("unexpected method: %+v", m)
	}

	if _, err := run(t, "decode", "0xdeadbeef"); err == nil {
		t.Fatalf("expected unknown selector error")
	}
}

func TestDecodeRevert(t *testing.T) {
	// Error("26")
	data := "0x08c379a0" +
		"0000000000000000000000000000000000000000000000000000000000000020" +
		"0000000000000000000000000000000000000000000000000000000000000002" +
		"3236000000000000000000000000000000000000000000000000000000000000"
	out, err := run(t, "decode", "--revert", data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if strings.TrimSpace(out) != "26" {
		t.Fatalf("revert reason = %q", out)
	}
}

func TestSupplyRejectsMissingConfig(t *testing.T) {
	_, err := run(t, "supply", "--config", t.TempDir()+"/missing.yaml")
	if err == nil {
		t.Fatalf("expected error for missing config")
	}
}
