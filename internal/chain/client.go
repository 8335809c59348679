// Package chain connects to a network's JSON-RPC endpoint through the
// proxy-aware Transport.
package chain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"github.com/pcristin/zeroland-landing/internal/networks"
)

var ErrChainMismatch = errors.New("rpc endpoint serves a different chain")

const defaultUserAgent = "zeroland-landing"

type Options struct {
	Network        networks.Descriptor
	Proxy          *url.URL
	RequestTimeout time.Duration
	MaxAttempts    int
	Backoff        time.Duration
	UserAgent      string
	// SkipChainCheck avoids the eth_chainId round trip at dial time.
	SkipChainCheck bool
	Metrics        ProxyMetrics
	Log            *zap.Logger
	// Transport overrides the Transport built from Proxy, for tests.
	Transport *Transport
}

type Client struct {
	RPC       *rpc.Client
	Eth       *ethclient.Client
	Transport *Transport
	Network   networks.Descriptor
}

func Dial(ctx context.Context, opts Options) (*Client, error) {
	if opts.Network.RPCURL == "" {
		return nil, fmt.Errorf("network %s has no rpc url configured", opts.Network.Name)
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	tr := opts.Transport
	if tr == nil {
		tr = NewTransport(opts.Proxy, TransportOptions{
			MaxAttempts:    opts.MaxAttempts,
			Backoff:        opts.Backoff,
			AttemptTimeout: opts.RequestTimeout,
			Metrics:        opts.Metrics,
			Log:            log,
		})
	}
	// No Client.Timeout: it would span every proxy retry and the direct
	// fallback. RequestTimeout applies per attempt inside the Transport.
	rpcClient, err := rpc.DialHTTPWithClient(opts.Network.RPCURL, &http.Client{Transport: tr})
	if err != nil {
		return nil, err
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	rpcClient.SetHeader("User-Agent", ua)

	c := &Client{
		RPC:       rpcClient,
		Eth:       ethclient.NewClient(rpcClient),
		Transport: tr,
		Network:   opts.Network,
	}
	if !opts.SkipChainCheck {
		remote, err := c.Eth.ChainID(ctx)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("eth_chainId on %s: %w", opts.Network.Name, err)
		}
		if !remote.IsUint64() || remote.Uint64() != opts.Network.ChainID {
			c.Close()
			return nil, fmt.Errorf("%w: %s expects %d, endpoint reports %s", ErrChainMismatch, opts.Network.Name, opts.Network.ChainID, remote)
		}
	}
	fields := []zap.Field{
		zap.String("network", opts.Network.Name),
		zap.Uint64("chain_id", opts.Network.ChainID),
		zap.Bool("proxy", opts.Proxy != nil),
	}
	if opts.Network.IsPoA {
		fields = append(fields, zap.Bool("poa", true))
	}
	log.Info("rpc http connected", fields...)
	return c, nil
}

func (c *Client) Close() {
	if c.RPC != nil {
		c.RPC.Close()
	}
}
