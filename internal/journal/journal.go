// Package journal keeps a local history of submitted transactions so a
// later run can report or resume them.
package journal

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidEntry = errors.New("journal: invalid entry")
	ErrNotFound     = errors.New("journal: entry not found")
)

const (
	StatusPending  = "pending"
	StatusSuccess  = "success"
	StatusFailed   = "failed"
	StatusTimedOut = "timed_out"
	StatusError    = "error"
)

type Entry struct {
	ID          string    `json:"id"`
	TxHash      string    `json:"tx_hash,omitempty"`
	Network     string    `json:"network"`
	ChainID     uint64    `json:"chain_id"`
	Kind        string    `json:"kind"`
	Status      string    `json:"status"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Nonce       uint64    `json:"nonce"`
	Token       string    `json:"token,omitempty"`
	Amount      string    `json:"amount,omitempty"`
	Block       uint64    `json:"block,omitempty"`
	GasUsed     uint64    `json:"gas_used,omitempty"`
	ExplorerURL string    `json:"explorer_url,omitempty"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Key identifies an entry: the tx hash once known, otherwise
// chain/kind/nonce.
func (e Entry) Key() string {
	if e.ID != "" {
		return e.ID
	}
	if e.TxHash != "" {
		return e.TxHash
	}
	return fmt.Sprintf("%d/%s/%d", e.ChainID, e.Kind, e.Nonce)
}

func (e Entry) validate() error {
	if e.Kind == "" || e.Status == "" || e.ChainID == 0 {
		return fmt.Errorf("%w: kind, status and chain id are required", ErrInvalidEntry)
	}
	return nil
}

// Store upserts entries by Key. List returns the newest entries first.
type Store interface {
	Record(ctx context.Context, e Entry) error
	Get(ctx context.Context, id string) (Entry, error)
	List(ctx context.Context, limit int) ([]Entry, error)
	Close() error
}

type Nop struct{}

func (Nop) Record(context.Context, Entry) error        { return nil }
func (Nop) Get(context.Context, string) (Entry, error) { return Entry{}, ErrNotFound }
func (Nop) List(context.Context, int) ([]Entry, error) { return nil, nil }
func (Nop) Close() error                               { return nil }

// Prepare fills ID and timestamps and validates e.
func Prepare(e Entry, now time.Time) (Entry, error) {
	if err := e.validate(); err != nil {
		return Entry{}, err
	}
	e.ID = e.Key()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	return e, nil
}
