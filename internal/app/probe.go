package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pcristin/zeroland-landing/internal/chain"
	"github.com/pcristin/zeroland-landing/internal/networks"
)

type ProbeResult struct {
	Network     networks.Descriptor
	RemoteChain uint64
	Block       uint64
	Latency     time.Duration
	Err         error
}

func (r ProbeResult) OK() bool {
	return r.Err == nil && r.RemoteChain == r.Network.ChainID
}

type ProbeOptions struct {
	Concurrency int
	Timeout     time.Duration
	Log         *zap.Logger
}

// ProbeNetworks queries eth_chainId and eth_blockNumber on every descriptor
// with an RPC URL. Failures are reported per network, never returned.
func ProbeNetworks(ctx context.Context, descs []networks.Descriptor, opts ProbeOptions) []ProbeResult {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}

	var (
		mu  sync.Mutex
		out []ProbeResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for _, d := range descs {
		if d.RPCURL == "" {
			continue
		}
		d := d
		g.Go(func() error {
			res := probeOne(gctx, d, opts)
			mu.Lock()
			out = append(out, res)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(out, func(i, j int) bool { return out[i].Network.ChainID < out[j].Network.ChainID })
	return out
}

func probeOne(ctx context.Context, d networks.Descriptor, opts ProbeOptions) ProbeResult {
	ctx, cancel := withTimeout(ctx, opts.Timeout)
	defer cancel()

	res := ProbeResult{Network: d}
	start := time.Now()
	client, err := chain.Dial(ctx, chain.Options{
		Network:        d,
		RequestTimeout: opts.Timeout,
		SkipChainCheck: true,
		Log:            zap.NewNop(),
	})
	if err != nil {
		res.Err = err
		return res
	}
	defer client.Close()

	id, err := client.Eth.ChainID(ctx)
	if err != nil {
		res.Err = err
		return res
	}
	res.RemoteChain = id.Uint64()
	if res.Block, err = client.Eth.BlockNumber(ctx); err != nil {
		res.Err = err
		return res
	}
	res.Latency = time.Since(start)
	opts.Log.Debug("network probed",
		zap.String("network", d.Name),
		zap.Uint64("block", res.Block),
		zap.Duration("latency", res.Latency),
	)
	return res
}
