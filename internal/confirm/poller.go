// Package confirm polls for transaction receipts until a terminal outcome.
package confirm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

var (
	ErrTimeout  = errors.New("transaction not confirmed before timeout")
	ErrReverted = errors.New("transaction reverted")
)

type Status int

const (
	StatusPending Status = iota
	StatusSuccess
	StatusFailed
	StatusTimedOut
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSuccess:
		return "success"
	case StatusFailed:
		return "failed"
	case StatusTimedOut:
		return "timed_out"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

func (s Status) Terminal() bool { return s != StatusPending }

type Outcome struct {
	Status  Status
	TxHash  common.Hash
	Receipt *types.Receipt
	Err     error
	Polls   int
	Elapsed time.Duration
}

// Error is nil only for StatusSuccess.
func (o Outcome) Error() error {
	switch o.Status {
	case StatusSuccess:
		return nil
	case StatusFailed:
		return fmt.Errorf("%w: %s", ErrReverted, o.TxHash.Hex())
	case StatusTimedOut:
		return fmt.Errorf("%w: %s after %s", ErrTimeout, o.TxHash.Hex(), o.Elapsed)
	case StatusError:
		if o.Err != nil {
			return fmt.Errorf("polling %s: %w", o.TxHash.Hex(), o.Err)
		}
		return fmt.Errorf("polling %s failed", o.TxHash.Hex())
	default:
		return fmt.Errorf("transaction %s still pending", o.TxHash.Hex())
	}
}

type ReceiptClient interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

type Config struct {
	PollInterval time.Duration
	Timeout      time.Duration
	Sleep        func(ctx context.Context, d time.Duration) error
	Log          *zap.Logger
}

type Poller struct {
	client ReceiptClient
	cfg    Config
}

func NewPoller(client ReceiptClient, cfg Config) *Poller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepCtx
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	return &Poller{client: client, cfg: cfg}
}

// Wait polls until the receipt shows up or the poll window closes. Elapsed
// time advances by one PollInterval per empty poll, so the window is
// Timeout/PollInterval+1 polls regardless of RPC latency.
func (p *Poller) Wait(ctx context.Context, hash common.Hash) Outcome {
	out := Outcome{Status: StatusPending, TxHash: hash}
	for {
		out.Polls++
		receipt, err := p.client.TransactionReceipt(ctx, hash)
		switch {
		case err == nil && receipt != nil:
			out.Receipt = receipt
			if receipt.Status == types.ReceiptStatusSuccessful {
				out.Status = StatusSuccess
			} else {
				out.Status = StatusFailed
			}
			p.logOutcome(out)
			return out
		case err == nil || errors.Is(err, ethereum.NotFound):
			out.Elapsed += p.cfg.PollInterval
			if out.Elapsed > p.cfg.Timeout {
				out.Status = StatusTimedOut
				p.logOutcome(out)
				return out
			}
			p.cfg.Log.Debug("receipt not found yet",
				zap.String("tx_hash", hash.Hex()),
				zap.Int("poll", out.Polls),
				zap.Duration("elapsed", out.Elapsed),
			)
			if serr := p.cfg.Sleep(ctx, p.cfg.PollInterval); serr != nil {
				out.Status = StatusError
				out.Err = serr
				p.logOutcome(out)
				return out
			}
		default:
			out.Status = StatusError
			out.Err = err
			p.logOutcome(out)
			return out
		}
	}
}

func (p *Poller) logOutcome(o Outcome) {
	fields := []zap.Field{
		zap.String("tx_hash", o.TxHash.Hex()),
		zap.String("status", o.Status.String()),
		zap.Int("polls", o.Polls),
		zap.Duration("elapsed", o.Elapsed),
	}
	if o.Receipt != nil {
		fields = append(fields, zap.Uint64("gas_used", o.Receipt.GasUsed))
		if o.Receipt.BlockNumber != nil {
			fields = append(fields, zap.String("block", o.Receipt.BlockNumber.String()))
		}
	}
	switch o.Status {
	case StatusSuccess:
		p.cfg.Log.Info("transaction confirmed", fields...)
	case StatusError:
		p.cfg.Log.Error("receipt polling failed", append(fields, zap.Error(o.Err))...)
	default:
		p.cfg.Log.Warn("transaction not successful", fields...)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
