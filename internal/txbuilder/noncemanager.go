package txbuilder

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

type NonceProvider interface {
	Next(ctx context.Context, addr common.Address) (uint64, error)
}

// NonceManager reads the pending nonce and the chain id from the node on
// every call. Nothing is cached, so callers sharing a wallet must serialize.
type NonceManager struct {
	client  ChainClient
	chainID *big.Int
}

func NewNonceManager(client ChainClient, chainID *big.Int) *NonceManager {
	m := &NonceManager{client: client}
	if chainID != nil {
		m.chainID = new(big.Int).Set(chainID)
	}
	return m
}

func (m *NonceManager) Next(ctx context.Context, addr common.Address) (uint64, error) {
	if m.client == nil {
		return 0, errors.New("nonce manager client is nil")
	}
	if m.chainID != nil {
		remote, err := m.client.ChainID(ctx)
		if err != nil {
			return 0, fmt.Errorf("chain id: %w", err)
		}
		if remote.Cmp(m.chainID) != 0 {
			return 0, fmt.Errorf("%w: node reports %s, expected %s", ErrChainMismatch, remote, m.chainID)
		}
	}
	nonce, err := m.client.PendingNonceAt(ctx, addr)
	if err != nil {
		return 0, fmt.Errorf("pending nonce: %w", err)
	}
	return nonce, nil
}
