// Package networks holds the fixed table of EVM networks the flow can target.
package networks

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var ErrUnknownNetwork = errors.New("networks: unknown network")

// Descriptor is immutable; use WithEndpoints to derive a copy carrying
// operator-supplied endpoints.
type Descriptor struct {
	Name          string
	ChainID       uint64
	IsPoA         bool
	RPCURL        string
	ExplorerURL   string
	WrappedNative common.Address
}

var table = []Descriptor{
	{Name: "ETHEREUM", ChainID: 1, RPCURL: "https://ethereum-rpc.publicnode.com", ExplorerURL: "https://etherscan.io"},
	{Name: "OPTIMISM", ChainID: 10, RPCURL: "https://mainnet.optimism.io", ExplorerURL: "https://optimistic.etherscan.io",
		WrappedNative: common.HexToAddress("0x4200000000000000000000000000000000000006")},
	{Name: "BSC", ChainID: 56, IsPoA: true, RPCURL: "https://bsc-dataseed.binance.org", ExplorerURL: "https://bscscan.com",
		WrappedNative: common.HexToAddress("0xBB4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c")},
	{Name: "POLYGON", ChainID: 137, RPCURL: "https://polygon-rpc.com", ExplorerURL: "https://polygonscan.com",
		WrappedNative: common.HexToAddress("0x0d500B1d8E8eF31E21C99d1Db9A6444d3ADf1270")},
	{Name: "ZKSYNC", ChainID: 324, RPCURL: "https://mainnet.era.zksync.io", ExplorerURL: "https://explorer.zksync.io"},
	{Name: "MANTLE", ChainID: 5000, RPCURL: "https://rpc.mantle.xyz", ExplorerURL: "https://explorer.mantle.xyz"},
	{Name: "BASE", ChainID: 8453, RPCURL: "https://mainnet.base.org", ExplorerURL: "https://basescan.org"},
	{Name: "ARBITRUM", ChainID: 42161, RPCURL: "https://arb1.arbitrum.io/rpc", ExplorerURL: "https://arbiscan.io",
		WrappedNative: common.HexToAddress("0x82aF49447D8a07e3bd95BD0d56f35241523fBab1")},
	{Name: "LINEA", ChainID: 59144, IsPoA: true, RPCURL: "https://rpc.linea.build", ExplorerURL: "https://lineascan.build"},
	{Name: "SCROLL", ChainID: 534352, RPCURL: "https://rpc.scroll.io", ExplorerURL: "https://scrollscan.com"},
	{Name: "CRONOS", ChainID: 25, IsPoA: true, RPCURL: "https://evm.cronos.org", ExplorerURL: "https://cronoscan.com"},
	{Name: "ZKEVM", ChainID: 1101, RPCURL: "https://zkevm-rpc.com", ExplorerURL: "https://zkevm.polygonscan.com"},
	{Name: "CRONOS_ZKEVM", ChainID: 388, IsPoA: true},
	{Name: "KUCOIN_CHAIN", ChainID: 321, IsPoA: true},
	{Name: "ASTAR", ChainID: 592, RPCURL: "https://evm.astar.network"},
	{Name: "KAIA", ChainID: 8217, IsPoA: true, RPCURL: "https://public-en.node.kaia.io"},
	{Name: "NUMBERS", ChainID: 10507, IsPoA: true},
	{Name: "BLAST", ChainID: 81457, RPCURL: "https://rpc.blast.io", ExplorerURL: "https://blastscan.io"},
	{Name: "X_LAYER", ChainID: 196, RPCURL: "https://rpc.xlayer.tech"},
	{Name: "TAIKO", ChainID: 167, RPCURL: "https://rpc.mainnet.taiko.xyz", ExplorerURL: "https://taikoscan.io"},
	{Name: "ABSTRACT", ChainID: 2741, IsPoA: true},
	{Name: "BERACHAIN", ChainID: 8008},
}

var (
	byChainID = make(map[uint64]int, len(table))
	byName    = make(map[string]int, len(table))
)

func init() {
	for i, d := range table {
		if _, dup := byChainID[d.ChainID]; dup {
			panic(fmt.Sprintf("networks: duplicate chain id %d", d.ChainID))
		}
		byChainID[d.ChainID] = i
		byName[normalizeName(d.Name)] = i
	}
}

func ByChainID(chainID uint64) (Descriptor, error) {
	i, ok := byChainID[chainID]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: chain id %d", ErrUnknownNetwork, chainID)
	}
	return table[i], nil
}

func ByName(name string) (Descriptor, error) {
	i, ok := byName[normalizeName(name)]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q (supported: %s)", ErrUnknownNetwork, name, strings.Join(Names(), ", "))
	}
	return table[i], nil
}

// Lookup accepts either a network name or a decimal chain id.
func Lookup(v string) (Descriptor, error) {
	v = strings.TrimSpace(v)
	if id, err := strconv.ParseUint(v, 10, 64); err == nil {
		return ByChainID(id)
	}
	return ByName(v)
}

func All() []Descriptor {
	out := make([]Descriptor, len(table))
	copy(out, table)
	sort.Slice(out, func(i, j int) bool { return out[i].ChainID < out[j].ChainID })
	return out
}

func Names() []string {
	out := make([]string, 0, len(table))
	for _, d := range table {
		out = append(out, d.Name)
	}
	sort.Strings(out)
	return out
}

// WithEndpoints returns a copy with non-empty overrides applied.
func (d Descriptor) WithEndpoints(rpcURL, explorerURL string) Descriptor {
	if strings.TrimSpace(rpcURL) != "" {
		d.RPCURL = strings.TrimSpace(rpcURL)
	}
	if strings.TrimSpace(explorerURL) != "" {
		d.ExplorerURL = strings.TrimSpace(explorerURL)
	}
	return d
}

func (d Descriptor) TxURL(hash common.Hash) string {
	if d.ExplorerURL == "" {
		return hash.Hex()
	}
	return strings.TrimRight(d.ExplorerURL, "/") + "/tx/" + hash.Hex()
}

func (d Descriptor) HasWrappedNative() bool {
	return d.WrappedNative != (common.Address{})
}

func normalizeName(name string) string {
	name = strings.ToUpper(strings.TrimSpace(name))
	return strings.NewReplacer("-", "_", " ", "_").Replace(name)
}
