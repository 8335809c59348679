//go:build integration

package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/pcristin/zeroland-landing/internal/journal"
)

func TestStoreRecordGetList(t *testing.T) {
	dsn := os.Getenv("LANDING_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("LANDING_TEST_POSTGRES_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)

	s, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if _, err := s.pool.Exec(ctx, `TRUNCATE landing_journal`); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	e := journal.Entry{TxHash: "0xaa", Network: "LINEA", ChainID: 59144, Kind: "supply", Status: journal.StatusPending, From: "0x1", To: "0x2", Nonce: 4}
	if err := s.Record(ctx, e); err != nil {
		t.Fatalf("Record: %v", err)
	}
	e.Status = journal.StatusSuccess
	e.Block = 123
	if err := s.Record(ctx, e); err != nil {
		t.Fatalf("Record update: %v", err)
	}

	got, err := s.Get(ctx, "0xaa")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != journal.StatusSuccess || got.Block != 123 || got.Nonce != 4 {
		t.Fatalf("unexpected entry: %+v", got)
	}
	if _, err := s.Get(ctx, "0xbb"); !errors.Is(err, journal.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	list, err := s.List(ctx, 10)
	if err != nil || len(list) != 1 {
		t.Fatalf("List: %v %d", err, len(list))
	}
}
