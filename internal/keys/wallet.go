// Package keys holds the signing wallet. The private key never leaves the
// Wallet: it is not logged, formatted or included in errors.
package keys

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

var ErrInvalidKey = errors.New("invalid private key")

type Wallet struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

func FromHex(hexKey string) (*Wallet, error) {
	hexKey = strings.TrimSpace(hexKey)
	hexKey = strings.TrimPrefix(strings.TrimPrefix(hexKey, "0x"), "0X")
	if len(hexKey) != 64 {
		return nil, fmt.Errorf("%w: expected 32 bytes of hex", ErrInvalidKey)
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("%w: not a valid secp256k1 key", ErrInvalidKey)
	}
	return newWallet(key), nil
}

func FromKeystoreJSON(keyJSON []byte, passphrase string) (*Wallet, error) {
	key, err := keystore.DecryptKey(keyJSON, passphrase)
	if err != nil {
		return nil, fmt.Errorf("%w: keystore: %v", ErrInvalidKey, err)
	}
	if key.PrivateKey == nil {
		return nil, fmt.Errorf("%w: keystore holds no key", ErrInvalidKey)
	}
	return newWallet(key.PrivateKey), nil
}

func FromKeystoreFile(path, passphrase string) (*Wallet, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keystore: %w", err)
	}
	return FromKeystoreJSON(b, passphrase)
}

func newWallet(key *ecdsa.PrivateKey) *Wallet {
	return &Wallet{key: key, addr: crypto.PubkeyToAddress(key.PublicKey)}
}

func (w *Wallet) Address() common.Address { return w.addr }

// SignTx signs locally; no network access.
func (w *Wallet) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	if tx == nil {
		return nil, errors.New("transaction is nil")
	}
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, errors.New("chain id is required")
	}
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), w.key)
}

func (w *Wallet) String() string { return w.addr.Hex() }

func (w *Wallet) GoString() string { return "keys.Wallet{" + w.addr.Hex() + "}" }
