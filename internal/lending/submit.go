package lending

import (
	"context"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

var ErrNotSubmitted = errors.New("transaction not submitted")

type TxSender interface {
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// SubmitResult is either an accepted hash or the reason submission failed.
type SubmitResult struct {
	hash common.Hash
	err  error
}

func Accepted(hash common.Hash) SubmitResult { return SubmitResult{hash: hash} }

func Rejected(hash common.Hash, err error) SubmitResult {
	if err == nil {
		err = ErrNotSubmitted
	}
	return SubmitResult{hash: hash, err: err}
}

func (r SubmitResult) OK() bool { return r.err == nil }

// Unwrap returns the hash only when the node accepted the transaction.
func (r SubmitResult) Unwrap() (common.Hash, error) {
	if r.err != nil {
		return common.Hash{}, r.err
	}
	return r.hash, nil
}

// AttemptedHash is the hash of the signed transaction whether or not the
// node accepted it.
func (r SubmitResult) AttemptedHash() common.Hash { return r.hash }

type Submitter struct {
	client TxSender
	log    *zap.Logger
}

func NewSubmitter(client TxSender, log *zap.Logger) *Submitter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Submitter{client: client, log: log}
}

// Submit broadcasts signed via eth_sendRawTransaction. Node errors are
// logged and returned inside the result, never as a zero hash.
func (s *Submitter) Submit(ctx context.Context, signed *types.Transaction) SubmitResult {
	if signed == nil {
		return Rejected(common.Hash{}, errors.New("nil transaction"))
	}
	hash := signed.Hash()
	err := s.client.SendTransaction(ctx, signed)
	switch {
	case err == nil:
		s.log.Info("transaction sent", zap.String("tx_hash", hash.Hex()), zap.Uint64("nonce", signed.Nonce()))
		return Accepted(hash)
	case isAlreadyKnown(err):
		s.log.Info("transaction already known to node", zap.String("tx_hash", hash.Hex()))
		return Accepted(hash)
	default:
		s.log.Error("send transaction failed",
			zap.String("tx_hash", hash.Hex()),
			zap.Uint64("nonce", signed.Nonce()),
			zap.Error(err),
		)
		return Rejected(hash, err)
	}
}

func isAlreadyKnown(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already known") || strings.Contains(msg, "known transaction")
}
