package networks

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestLookupByChainIDAndName(t *testing.T) {
	d, err := ByChainID(59144)
	if err != nil {
		t.Fatalf("ByChainID: %v", err)
	}
	if d.Name != "LINEA" || !d.IsPoA {
		t.Fatalf("unexpected descriptor: %+v", d)
	}

	for _, name := range []string{"linea", "LINEA", " Linea "} {
		got, err := ByName(name)
		if err != nil {
			t.Fatalf("ByName(%q): %v", name, err)
		}
		if got.ChainID != 59144 {
			t.Fatalf("ByName(%q) chain id: got %d", name, got.ChainID)
		}
	}

	got, err := ByName("cronos-zkevm")
	if err != nil {
		t.Fatalf("ByName(cronos-zkevm): %v", err)
	}
	if got.ChainID != 388 {
		t.Fatalf("cronos-zkevm chain id: got %d", got.ChainID)
	}
}

func TestLookupAcceptsChainIDString(t *testing.T) {
	d, err := Lookup("8453")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if d.Name != "BASE" {
		t.Fatalf("Lookup(8453): got %s", d.Name)
	}
}

func TestUnknownNetwork(t *testing.T) {
	if _, err := ByChainID(999999); !errors.Is(err, ErrUnknownNetwork) {
		t.Fatalf("expected ErrUnknownNetwork, got %v", err)
	}
	if _, err := ByName("atlantis"); !errors.Is(err, ErrUnknownNetwork) {
		t.Fatalf("expected ErrUnknownNetwork, got %v", err)
	}
}

func TestChainIDsAreUnique(t *testing.T) {
	seen := map[uint64]string{}
	for _, d := range All() {
		if prev, ok := seen[d.ChainID]; ok {
			t.Fatalf("chain id %d used by %s and %s", d.ChainID, prev, d.Name)
		}
		seen[d.ChainID] = d.Name
	}
	if len(seen) != 22 {
		t.Fatalf("table size: got %d want 22", len(seen))
	}
}

func TestWithEndpointsDoesNotMutateTable(t *testing.T) {
	d, _ := ByName("LINEA")
	custom := d.WithEndpoints("https://linea.example/rpc", "")
	if custom.RPCURL != "https://linea.example/rpc" {
		t.Fatalf("rpc override not applied: %s", custom.RPCURL)
	}
	if custom.ExplorerURL != d.ExplorerURL {
		t.Fatalf("empty explorer override must keep default")
	}
	again, _ := ByName("LINEA")
	if again.RPCURL != d.RPCURL {
		t.Fatalf("table mutated: %s", again.RPCURL)
	}
}

func TestTxURL(t *testing.T) {
	d := Descriptor{ExplorerURL: "https://lineascan.build/"}
	h := common.HexToHash("0x01")
	want := "https://lineascan.build/tx/" + h.Hex()
	if got := d.TxURL(h); got != want {
		t.Fatalf("TxURL: got %s want %s", got, want)
	}
	if got := (Descriptor{}).TxURL(h); got != h.Hex() {
		t.Fatalf("TxURL without explorer: got %s", got)
	}
}
