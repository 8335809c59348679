package confirm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type fakeReceipts struct {
	// missing is the number of polls answered with NotFound before receipt.
	missing int
	receipt *types.Receipt
	err     error
	calls   int
}

func (f *fakeReceipts) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.calls <= f.missing || f.receipt == nil {
		return nil, ethereum.NotFound
	}
	return f.receipt, nil
}

type fakeSleeper struct {
	sleeps int
	total  time.Duration
}

func (s *fakeSleeper) Sleep(_ context.Context, d time.Duration) error {
	s.sleeps++
	s.total += d
	return nil
}

var testHash = common.HexToHash("0xabc")

func TestWaitSuccessOnFirstPollDoesNotSleep(t *testing.T) {
	client := &fakeReceipts{receipt: &types.Receipt{Status: types.ReceiptStatusSuccessful}}
	sleeper := &fakeSleeper{}
	p := NewPoller(client, Config{Sleep: sleeper.Sleep})

	out := p.Wait(context.Background(), testHash)
	if out.Status != StatusSuccess {
		t.Fatalf("status: got %s", out.Status)
	}
	if sleeper.sleeps != 0 {
		t.Fatalf("expected no sleep, got %d", sleeper.sleeps)
	}
	if out.Error() != nil {
		t.Fatalf("success outcome should have nil error, got %v", out.Error())
	}
}

func TestWaitTimesOutAfterThirteenEmptyPolls(t *testing.T) {
	client := &fakeReceipts{}
	sleeper := &fakeSleeper{}
	p := NewPoller(client, Config{Sleep: sleeper.Sleep})

	out := p.Wait(context.Background(), testHash)
	if out.Status != StatusTimedOut {
		t.Fatalf("status: got %s", out.Status)
	}
	if client.calls != 13 || out.Polls != 13 {
		t.Fatalf("expected 13 polls, got calls=%d polls=%d", client.calls, out.Polls)
	}
	if out.Elapsed != 130*time.Second {
		t.Fatalf("elapsed: got %s", out.Elapsed)
	}
	if sleeper.total != 120*time.Second {
		t.Fatalf("slept %s", sleeper.total)
	}
	if !errors.Is(out.Error(), ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", out.Error())
	}
}

func TestWaitSucceedsAfterPendingPolls(t *testing.T) {
	client := &fakeReceipts{missing: 3, receipt: &types.Receipt{Status: types.ReceiptStatusSuccessful}}
	sleeper := &fakeSleeper{}
	p := NewPoller(client, Config{Sleep: sleeper.Sleep})

	out := p.Wait(context.Background(), testHash)
	if out.Status != StatusSuccess || out.Polls != 4 || sleeper.sleeps != 3 {
		t.Fatalf("unexpected outcome: status=%s polls=%d sleeps=%d", out.Status, out.Polls, sleeper.sleeps)
	}
}

func TestWaitRevertedReceipt(t *testing.T) {
	client := &fakeReceipts{receipt: &types.Receipt{Status: types.ReceiptStatusFailed}}
	p := NewPoller(client, Config{Sleep: (&fakeSleeper{}).Sleep})

	out := p.Wait(context.Background(), testHash)
	if out.Status != StatusFailed {
		t.Fatalf("status: got %s", out.Status)
	}
	if !errors.Is(out.Error(), ErrReverted) {
		t.Fatalf("expected ErrReverted, got %v", out.Error())
	}
}

func TestWaitTransportErrorIsTerminal(t *testing.T) {
	boom := errors.New("connection reset")
	client := &fakeReceipts{err: boom}
	sleeper := &fakeSleeper{}
	p := NewPoller(client, Config{Sleep: sleeper.Sleep})

	out := p.Wait(context.Background(), testHash)
	if out.Status != StatusError || !errors.Is(out.Error(), boom) {
		t.Fatalf("unexpected outcome: status=%s err=%v", out.Status, out.Error())
	}
	if client.calls != 1 || sleeper.sleeps != 0 {
		t.Fatalf("error must not be retried: calls=%d sleeps=%d", client.calls, sleeper.sleeps)
	}
}

func TestWaitCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := NewPoller(&fakeReceipts{}, Config{PollInterval: time.Millisecond})

	out := p.Wait(ctx, testHash)
	if out.Status != StatusError || !errors.Is(out.Err, context.Canceled) {
		t.Fatalf("unexpected outcome: status=%s err=%v", out.Status, out.Err)
	}
}
