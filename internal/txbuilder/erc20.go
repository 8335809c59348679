package txbuilder

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/pcristin/zeroland-landing/internal/contracts"
)

// TokenReader issues read-only eth_calls against ERC-20 tokens and the
// lending pool. Token decimals are queried once per address.
type TokenReader struct {
	client ChainClient

	mu       sync.Mutex
	decimals map[common.Address]uint8
}

func NewTokenReader(client ChainClient) *TokenReader {
	return &TokenReader{client: client, decimals: make(map[common.Address]uint8)}
}

// Decimals fails with ErrUnsupportedDecimals unless the token uses 6, 9
// or 18 decimals.
func (r *TokenReader) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	r.mu.Lock()
	d, ok := r.decimals[token]
	r.mu.Unlock()
	if ok {
		return d, nil
	}
	data, err := contracts.PackDecimals()
	if err != nil {
		return 0, err
	}
	out, err := r.call(ctx, token, data)
	if err != nil {
		return 0, fmt.Errorf("decimals of %s: %w", token.Hex(), err)
	}
	d, err = contracts.UnpackDecimals(out)
	if err != nil {
		return 0, err
	}
	if err := ValidateDecimals(d); err != nil {
		return 0, fmt.Errorf("token %s: %w", token.Hex(), err)
	}
	r.mu.Lock()
	r.decimals[token] = d
	r.mu.Unlock()
	return d, nil
}

func (r *TokenReader) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	data, err := contracts.PackBalanceOf(owner)
	if err != nil {
		return nil, err
	}
	out, err := r.call(ctx, token, data)
	if err != nil {
		return nil, fmt.Errorf("balanceOf on %s: %w", token.Hex(), err)
	}
	return contracts.UnpackUint256("balanceOf", out)
}

func (r *TokenReader) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	data, err := contracts.PackAllowance(owner, spender)
	if err != nil {
		return nil, err
	}
	out, err := r.call(ctx, token, data)
	if err != nil {
		return nil, fmt.Errorf("allowance on %s: %w", token.Hex(), err)
	}
	return contracts.UnpackUint256("allowance", out)
}

func (r *TokenReader) UserAccountData(ctx context.Context, pool, user common.Address) (contracts.AccountData, error) {
	data, err := contracts.PackGetUserAccountData(user)
	if err != nil {
		return contracts.AccountData{}, err
	}
	out, err := r.call(ctx, pool, data)
	if err != nil {
		return contracts.AccountData{}, fmt.Errorf("getUserAccountData on %s: %w", pool.Hex(), err)
	}
	return contracts.UnpackAccountData(out)
}

func (r *TokenReader) call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return r.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
}
