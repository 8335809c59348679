// Package app wires config, secrets, the RPC connection and the lending
// service for one run of the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pcristin/zeroland-landing/internal/chain"
	"github.com/pcristin/zeroland-landing/internal/config"
	"github.com/pcristin/zeroland-landing/internal/confirm"
	"github.com/pcristin/zeroland-landing/internal/journal"
	journalpg "github.com/pcristin/zeroland-landing/internal/journal/postgres"
	"github.com/pcristin/zeroland-landing/internal/keys"
	"github.com/pcristin/zeroland-landing/internal/lending"
	"github.com/pcristin/zeroland-landing/internal/metrics"
	"github.com/pcristin/zeroland-landing/internal/networks"
	"github.com/pcristin/zeroland-landing/internal/queue"
	"github.com/pcristin/zeroland-landing/internal/secrets"
	"github.com/pcristin/zeroland-landing/internal/txbuilder"
	"github.com/pcristin/zeroland-landing/internal/util"
)

// PassphraseFunc prompts for a keystore passphrase.
type PassphraseFunc func(prompt string) (string, error)

type App struct {
	cfg        *config.Config
	logger     *zap.Logger
	passphrase PassphraseFunc
	// EventsWriter receives stdio events; defaults to stdout.
	EventsWriter io.Writer
}

func New(cfg *config.Config, logger *zap.Logger, passphrase PassphraseFunc) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{cfg: cfg, logger: logger, passphrase: passphrase}
}

func (a *App) Config() *config.Config { return a.cfg }

// Session is everything one command needs against the selected network.
type Session struct {
	Network   networks.Descriptor
	Contracts config.Contracts
	Client    *chain.Client
	Wallet    *keys.Wallet
	Builder   *txbuilder.AutoBuilder
	Tokens    *txbuilder.TokenReader
	Poller    *confirm.Poller
	Service   *lending.Service
	Metrics   *metrics.Metrics
	Journal   journal.Store

	publisher *queue.Publisher
	cfg       *config.Config
	logger    *zap.Logger
}

type OpenOptions struct {
	// WithoutWallet skips key loading for read-only commands; Service is
	// nil then.
	WithoutWallet bool
}

func (a *App) Open(ctx context.Context, opts OpenOptions) (*Session, error) {
	if err := secrets.LoadEnvFile(a.cfg.Secrets.EnvFile); err != nil {
		return nil, err
	}
	settings, err := a.resolve(ctx, opts.WithoutWallet)
	if err != nil {
		return nil, err
	}
	desc, err := a.cfg.Descriptor()
	if err != nil {
		return nil, err
	}
	addrs, err := a.cfg.Contracts()
	if err != nil {
		return nil, err
	}

	if settings.Proxy != nil && a.cfg.RPC.CheckProxy {
		if err := chain.CheckProxy(ctx, settings.Proxy, a.cfg.RPC.ProxyCheckURL, 5*time.Second); err != nil {
			return nil, fmt.Errorf("%w: proxy check: %v", config.ErrInvalidConfig, err)
		}
		a.logger.Info("proxy check passed", zap.String("proxy", chain.Redact(settings.Proxy)))
	}

	m := metrics.New(desc.Name)
	client, err := chain.Dial(ctx, chain.Options{
		Network:        desc,
		Proxy:          settings.Proxy,
		RequestTimeout: a.cfg.RPC.RequestTimeout.Duration,
		MaxAttempts:    a.cfg.RPC.ProxyMaxAttempts,
		Backoff:        a.cfg.RPC.ProxyBackoff.Duration,
		UserAgent:      a.cfg.RPC.UserAgent,
		Metrics:        m,
		Log:            a.logger,
	})
	if err != nil {
		return nil, err
	}

	s := &Session{
		Network:   desc,
		Contracts: addrs,
		Client:    client,
		Metrics:   m,
		Tokens:    txbuilder.NewTokenReader(client.Eth),
		cfg:       a.cfg,
		logger:    a.logger,
	}
	s.Builder, err = txbuilder.NewAutoBuilderFromConfig(client.Eth, desc.ChainID, a.cfg.Tx, a.logger)
	if err != nil {
		s.Close(ctx)
		return nil, err
	}
	s.Poller = confirm.NewPoller(client.Eth, confirm.Config{
		PollInterval: a.cfg.Confirm.PollInterval.Duration,
		Timeout:      a.cfg.Confirm.Timeout.Duration,
		Log:          a.logger,
	})
	if s.Journal, err = a.OpenJournal(ctx); err != nil {
		s.Close(ctx)
		return nil, err
	}
	if s.publisher, err = a.openPublisher(); err != nil {
		s.Close(ctx)
		return nil, err
	}
	if opts.WithoutWallet {
		return s, nil
	}

	if s.Wallet, err = a.loadWallet(settings); err != nil {
		s.Close(ctx)
		return nil, err
	}
	s.Service, err = lending.NewService(lending.Deps{
		Network: desc,
		Addresses: lending.Addresses{
			Token:         addrs.USDC,
			Pool:          addrs.Pool,
			WrappedNative: addrs.WrappedNative,
		},
		Chain:     client.Eth,
		Signer:    s.Wallet,
		Builder:   s.Builder,
		Tokens:    s.Tokens,
		Poller:    s.Poller,
		Publisher: s.publisher,
		Journal:   s.Journal,
		Metrics:   m,
		Log:       a.logger,
	}, lending.Options{
		TokenSymbol:          strings.ToUpper(a.cfg.Token),
		ApproveAmount:        a.cfg.Tx.ApproveAmount,
		SkipApproveIfAllowed: a.cfg.SkipApproveIfAllowed(),
		VerifyDeposit:        a.cfg.VerifyDeposit(),
		ReferralCode:         a.cfg.Tx.ReferralCode,
	})
	if err != nil {
		s.Close(ctx)
		return nil, err
	}
	a.logger.Info("session ready",
		zap.String("network", desc.Name),
		zap.String("wallet", s.Wallet.Address().Hex()),
		zap.String("pool", addrs.Pool.Hex()),
	)
	return s, nil
}

// Close pushes metrics and releases connections. Errors are logged.
func (s *Session) Close(ctx context.Context) {
	if s == nil {
		return
	}
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.Metrics.Push(pushCtx, s.cfg.Metrics.PushgatewayURL, s.cfg.Metrics.Job); err != nil {
		s.logger.Warn("metrics push failed", zap.Error(err))
	}
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			s.logger.Warn("events close failed", zap.Error(err))
		}
	}
	if s.Journal != nil {
		_ = s.Journal.Close()
	}
	if s.Client != nil {
		s.Client.Close()
	}
}

func (a *App) resolve(ctx context.Context, withoutWallet bool) (config.Settings, error) {
	cfg := *a.cfg
	if withoutWallet {
		// Key references may point at secrets this command has no use for.
		cfg.PrivateKey = secrets.PrefixKeystore + "unused"
	}
	return cfg.Resolve(ctx, a.cfg.SecretResolver())
}

func (a *App) loadWallet(s config.Settings) (*keys.Wallet, error) {
	if s.KeystorePath == "" {
		return keys.FromHex(s.PrivateKey)
	}
	pass, ok := os.LookupEnv(a.cfg.Secrets.KeystorePassphraseEnv)
	if !ok {
		if a.passphrase == nil {
			return nil, fmt.Errorf("%w: %s not set and no terminal to prompt", config.ErrInvalidConfig, a.cfg.Secrets.KeystorePassphraseEnv)
		}
		var err error
		if pass, err = a.passphrase("Keystore passphrase: "); err != nil {
			return nil, fmt.Errorf("read passphrase: %w", err)
		}
	}
	return keys.FromKeystoreFile(s.KeystorePath, pass)
}

// OpenJournal returns the configured journal store. A Postgres journal is
// dialled with retries.
func (a *App) OpenJournal(ctx context.Context) (journal.Store, error) {
	switch a.cfg.Journal.Driver {
	case "", "none":
		return journal.Nop{}, nil
	case "file":
		return journal.NewFileStore(a.cfg.Journal.Path), nil
	case "postgres":
		var store *journalpg.Store
		err := util.Retry(ctx, 2, 500*time.Millisecond, func() error {
			s, err := journalpg.Open(ctx, a.cfg.Journal.DSN)
			if errors.Is(err, journalpg.ErrInvalidConfig) {
				return util.Permanent(err)
			}
			store = s
			return err
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%w: journal driver %q", config.ErrInvalidConfig, a.cfg.Journal.Driver)
	}
}

func (a *App) openPublisher() (*queue.Publisher, error) {
	p, err := queue.NewProducer(queue.ProducerConfig{
		Driver:  a.cfg.Events.Driver,
		Brokers: a.cfg.Events.Brokers,
		Writer:  a.EventsWriter,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	return queue.NewPublisher(p, a.cfg.Events.Topic, a.logger), nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
