// Package lending runs the approve and supply flow against an Aave-v3 style
// pool: pre-flight balance checks, build, sign, submit and confirm.
package lending

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/pcristin/zeroland-landing/internal/confirm"
	"github.com/pcristin/zeroland-landing/internal/contracts"
	"github.com/pcristin/zeroland-landing/internal/journal"
	"github.com/pcristin/zeroland-landing/internal/metrics"
	"github.com/pcristin/zeroland-landing/internal/networks"
	"github.com/pcristin/zeroland-landing/internal/queue"
	"github.com/pcristin/zeroland-landing/internal/txbuilder"
)

var (
	ErrInsufficientBalance = errors.New("insufficient token balance")
	ErrInsufficientGas     = errors.New("insufficient native balance for gas")
	ErrNoWrappedNative     = errors.New("network has no wrapped native token configured")
	ErrApproveTooSmall     = errors.New("approve amount is below the supply amount")
)

const nativeDecimals = 18

// Chain is the node surface the flow needs beyond the builders.
type Chain interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

type Signer interface {
	Address() common.Address
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

type Addresses struct {
	Token         common.Address
	Pool          common.Address
	WrappedNative common.Address
}

type Options struct {
	TokenSymbol string
	// ApproveAmount is "max" or a decimal token amount.
	ApproveAmount        string
	SkipApproveIfAllowed bool
	VerifyDeposit        bool
	ReferralCode         uint16
}

type Deps struct {
	Network   networks.Descriptor
	Addresses Addresses
	Chain     Chain
	Signer    Signer
	Builder   *txbuilder.AutoBuilder
	Tokens    *txbuilder.TokenReader
	Poller    *confirm.Poller
	Publisher *queue.Publisher
	Journal   journal.Store
	Metrics   *metrics.Metrics
	Log       *zap.Logger
}

type Service struct {
	net       networks.Descriptor
	addrs     Addresses
	chain     Chain
	signer    Signer
	builder   *txbuilder.AutoBuilder
	tokens    *txbuilder.TokenReader
	poller    *confirm.Poller
	submitter *Submitter
	publisher *queue.Publisher
	journal   journal.Store
	metrics   *metrics.Metrics
	opts      Options
	log       *zap.Logger
}

func NewService(d Deps, opts Options) (*Service, error) {
	if d.Chain == nil || d.Signer == nil || d.Builder == nil || d.Tokens == nil || d.Poller == nil {
		return nil, errors.New("lending: chain, signer, builder, token reader and poller are required")
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Journal == nil {
		d.Journal = journal.Nop{}
	}
	if opts.TokenSymbol == "" {
		opts.TokenSymbol = "USDC"
	}
	if opts.ApproveAmount == "" {
		opts.ApproveAmount = "max"
	}
	log := d.Log.With(zap.String("network", d.Network.Name), zap.String("wallet", d.Signer.Address().Hex()))
	return &Service{
		net:       d.Network,
		addrs:     d.Addresses,
		chain:     d.Chain,
		signer:    d.Signer,
		builder:   d.Builder,
		tokens:    d.Tokens,
		poller:    d.Poller,
		submitter: NewSubmitter(d.Chain, log),
		publisher: d.Publisher,
		journal:   d.Journal,
		metrics:   d.Metrics,
		opts:      opts,
		log:       log,
	}, nil
}

func (s *Service) Address() common.Address { return s.signer.Address() }

// Plan is the result of the pre-flight checks for a supply.
type Plan struct {
	Amount        decimal.Decimal
	AmountBase    *big.Int
	Decimals      uint8
	TokenBalance  *big.Int
	NativeBalance *big.Int
	GasBudget     *big.Int
	Allowance     *big.Int
	ApproveBase   *big.Int
	NeedsApprove  bool
}

// Preflight reads balances and the gas budget. It returns
// ErrInsufficientBalance or ErrInsufficientGas before anything is built.
func (s *Service) Preflight(ctx context.Context, amount decimal.Decimal) (Plan, error) {
	from := s.signer.Address()
	decimals, err := s.tokens.Decimals(ctx, s.addrs.Token)
	if err != nil {
		return Plan{}, err
	}
	amountBase, err := txbuilder.ToBaseUnits(amount, decimals)
	if err != nil {
		return Plan{}, fmt.Errorf("amount %s: %w", amount.String(), err)
	}
	if amountBase.Sign() <= 0 {
		return Plan{}, fmt.Errorf("amount must be positive")
	}
	plan := Plan{Amount: amount, AmountBase: amountBase, Decimals: decimals}

	if plan.TokenBalance, err = s.tokens.BalanceOf(ctx, s.addrs.Token, from); err != nil {
		return Plan{}, err
	}
	if plan.NativeBalance, err = s.chain.BalanceAt(ctx, from, nil); err != nil {
		return Plan{}, fmt.Errorf("native balance: %w", err)
	}
	if plan.GasBudget, err = s.builder.Fees().EstimateGasBudget(ctx); err != nil {
		return Plan{}, err
	}

	if amountBase.Cmp(plan.TokenBalance) > 0 {
		return plan, fmt.Errorf("%w: need %s %s, have %s", ErrInsufficientBalance,
			txbuilder.FormatUnits(amountBase, decimals), s.opts.TokenSymbol,
			txbuilder.FormatUnits(plan.TokenBalance, decimals))
	}
	if plan.NativeBalance.Cmp(plan.GasBudget) < 0 {
		return plan, fmt.Errorf("%w: need %s, have %s", ErrInsufficientGas,
			txbuilder.FormatUnits(plan.GasBudget, nativeDecimals),
			txbuilder.FormatUnits(plan.NativeBalance, nativeDecimals))
	}

	if plan.ApproveBase, err = s.approveAmount(decimals, amountBase); err != nil {
		return plan, err
	}
	plan.NeedsApprove = true
	if s.opts.SkipApproveIfAllowed {
		if plan.Allowance, err = s.tokens.Allowance(ctx, s.addrs.Token, from, s.addrs.Pool); err != nil {
			return Plan{}, err
		}
		plan.NeedsApprove = plan.Allowance.Cmp(amountBase) < 0
	}

	s.log.Info("pre-flight checks passed",
		zap.String("amount", amount.String()),
		zap.String("token", s.opts.TokenSymbol),
		zap.String("token_balance", txbuilder.FormatUnits(plan.TokenBalance, decimals)),
		zap.String("native_balance", txbuilder.FormatUnits(plan.NativeBalance, nativeDecimals)),
		zap.String("gas_budget", txbuilder.FormatUnits(plan.GasBudget, nativeDecimals)),
		zap.Bool("needs_approve", plan.NeedsApprove),
	)
	return plan, nil
}

func (s *Service) approveAmount(decimals uint8, amountBase *big.Int) (*big.Int, error) {
	if strings.EqualFold(strings.TrimSpace(s.opts.ApproveAmount), "max") {
		return new(big.Int).Set(contracts.MaxUint256), nil
	}
	v, err := txbuilder.ParseUnits(s.opts.ApproveAmount, decimals)
	if err != nil {
		return nil, fmt.Errorf("approve amount: %w", err)
	}
	if v.Cmp(amountBase) < 0 {
		return nil, fmt.Errorf("%w: %s < %s", ErrApproveTooSmall,
			txbuilder.FormatUnits(v, decimals), txbuilder.FormatUnits(amountBase, decimals))
	}
	return v, nil
}

// Report collects what a supply run did.
type Report struct {
	Plan    Plan
	Approve *TxSummary
	Supply  *TxSummary
	Account *contracts.AccountData
	DryRun  bool
}

// Run executes the full flow: pre-flight, approve when needed, supply and
// the optional deposit verification. With dryRun it stops after pre-flight.
func (s *Service) Run(ctx context.Context, amount decimal.Decimal, dryRun bool) (Report, error) {
	plan, err := s.Preflight(ctx, amount)
	rep := Report{Plan: plan, DryRun: dryRun}
	if err != nil {
		return rep, err
	}
	if dryRun {
		s.log.Info("dry run: nothing broadcast")
		return rep, nil
	}

	if plan.NeedsApprove {
		sum, err := s.Approve(ctx, plan.ApproveBase)
		rep.Approve = &sum
		if err != nil {
			return rep, fmt.Errorf("approve: %w", err)
		}
	} else {
		s.log.Info("allowance covers amount, approve skipped",
			zap.String("allowance", txbuilder.FormatUnits(plan.Allowance, plan.Decimals)))
	}

	sum, err := s.Supply(ctx, plan.AmountBase)
	rep.Supply = &sum
	if err != nil {
		return rep, fmt.Errorf("supply: %w", err)
	}

	if s.opts.VerifyDeposit {
		data, err := s.Verify(ctx)
		if err != nil {
			s.log.Warn("deposit verification failed", zap.Error(err))
		} else {
			rep.Account = &data
		}
	}
	return rep, nil
}

// Approve lets the pool spend amountBase of the token.
func (s *Service) Approve(ctx context.Context, amountBase *big.Int) (TxSummary, error) {
	req, err := s.builder.BuildApproveTx(ctx, s.signer.Address(), s.addrs.Token, s.addrs.Pool, amountBase)
	if err != nil {
		return TxSummary{Kind: txbuilder.KindApprove}, err
	}
	label := "max"
	if amountBase.Cmp(contracts.MaxUint256) != 0 {
		label = amountBase.String()
	}
	return s.execute(ctx, req, label)
}

// Supply deposits amountBase of the token into the pool on behalf of the
// wallet.
func (s *Service) Supply(ctx context.Context, amountBase *big.Int) (TxSummary, error) {
	from := s.signer.Address()
	req, err := s.builder.BuildSupplyTx(ctx, from, s.addrs.Pool, s.addrs.Token, amountBase, from, s.opts.ReferralCode)
	if err != nil {
		return TxSummary{Kind: txbuilder.KindSupply}, err
	}
	return s.execute(ctx, req, amountBase.String())
}

// Verify reads the wallet's pool position. Zero collateral is logged as a
// warning.
func (s *Service) Verify(ctx context.Context) (contracts.AccountData, error) {
	data, err := s.tokens.UserAccountData(ctx, s.addrs.Pool, s.signer.Address())
	if err != nil {
		return contracts.AccountData{}, err
	}
	if data.TotalCollateralBase == nil || data.TotalCollateralBase.Sign() == 0 {
		s.log.Warn("pool reports zero collateral after supply")
	} else {
		s.log.Info("deposit verified",
			zap.String("total_collateral_base", data.TotalCollateralBase.String()),
			zap.String("health_factor", data.HealthFactor.String()),
		)
	}
	return data, nil
}

// Wrap converts amount native coin into the wrapped token.
func (s *Service) Wrap(ctx context.Context, amount decimal.Decimal) (TxSummary, error) {
	if s.addrs.WrappedNative == (common.Address{}) {
		return TxSummary{Kind: txbuilder.KindWrap}, ErrNoWrappedNative
	}
	wei, err := txbuilder.ToBaseUnits(amount, nativeDecimals)
	if err != nil {
		return TxSummary{Kind: txbuilder.KindWrap}, err
	}
	from := s.signer.Address()
	balance, err := s.chain.BalanceAt(ctx, from, nil)
	if err != nil {
		return TxSummary{Kind: txbuilder.KindWrap}, fmt.Errorf("native balance: %w", err)
	}
	budget, err := s.builder.Fees().EstimateGasBudget(ctx)
	if err != nil {
		return TxSummary{Kind: txbuilder.KindWrap}, err
	}
	if need := new(big.Int).Add(wei, budget); balance.Cmp(need) < 0 {
		return TxSummary{Kind: txbuilder.KindWrap}, fmt.Errorf("%w: need %s, have %s", ErrInsufficientGas,
			txbuilder.FormatUnits(need, nativeDecimals), txbuilder.FormatUnits(balance, nativeDecimals))
	}
	req, err := s.builder.BuildWrapTx(ctx, from, s.addrs.WrappedNative, wei)
	if err != nil {
		return TxSummary{Kind: txbuilder.KindWrap}, err
	}
	return s.execute(ctx, req, wei.String())
}

// Unwrap burns amount of the wrapped token back into native coin.
func (s *Service) Unwrap(ctx context.Context, amount decimal.Decimal) (TxSummary, error) {
	if s.addrs.WrappedNative == (common.Address{}) {
		return TxSummary{Kind: txbuilder.KindUnwrap}, ErrNoWrappedNative
	}
	wei, err := txbuilder.ToBaseUnits(amount, nativeDecimals)
	if err != nil {
		return TxSummary{Kind: txbuilder.KindUnwrap}, err
	}
	from := s.signer.Address()
	balance, err := s.tokens.BalanceOf(ctx, s.addrs.WrappedNative, from)
	if err != nil {
		return TxSummary{Kind: txbuilder.KindUnwrap}, err
	}
	if balance.Cmp(wei) < 0 {
		return TxSummary{Kind: txbuilder.KindUnwrap}, fmt.Errorf("%w: need %s, have %s", ErrInsufficientBalance,
			txbuilder.FormatUnits(wei, nativeDecimals), txbuilder.FormatUnits(balance, nativeDecimals))
	}
	req, err := s.builder.BuildUnwrapTx(ctx, from, s.addrs.WrappedNative, wei)
	if err != nil {
		return TxSummary{Kind: txbuilder.KindUnwrap}, err
	}
	return s.execute(ctx, req, wei.String())
}

// Wait polls an already broadcast transaction.
func (s *Service) Wait(ctx context.Context, hash common.Hash) (TxSummary, error) {
	out := s.poller.Wait(ctx, hash)
	sum := TxSummary{Kind: "wait", Hash: hash, Status: out.Status, ExplorerURL: s.net.TxURL(hash), Outcome: out}
	s.logSummary(sum)
	return sum, out.Error()
}

// TxSummary describes one transaction of a run.
type TxSummary struct {
	Kind        string
	Hash        common.Hash
	Nonce       uint64
	Status      confirm.Status
	ExplorerURL string
	Outcome     confirm.Outcome
	Err         error
}

func (t TxSummary) GasUsed() uint64 {
	if t.Outcome.Receipt == nil {
		return 0
	}
	return t.Outcome.Receipt.GasUsed
}

// execute signs, submits and confirms req, then records the outcome in the
// journal, the event stream and metrics.
func (s *Service) execute(ctx context.Context, req *txbuilder.TxRequest, amount string) (TxSummary, error) {
	sum := TxSummary{Kind: req.Kind, Nonce: req.Nonce, Status: confirm.StatusPending}
	tx, err := req.Transaction()
	if err != nil {
		sum.Status, sum.Err = confirm.StatusError, err
		return sum, err
	}
	signed, err := s.signer.SignTx(tx, req.ChainID)
	if err != nil {
		sum.Status, sum.Err = confirm.StatusError, err
		return sum, fmt.Errorf("sign: %w", err)
	}

	ev := queue.NewTxEvent(s.net.Name, req.Kind, signed, req.From)
	entry := journal.Entry{
		Network: s.net.Name,
		ChainID: s.net.ChainID,
		Kind:    req.Kind,
		From:    req.From.Hex(),
		To:      req.To.Hex(),
		Nonce:   req.Nonce,
		Token:   s.opts.TokenSymbol,
		Amount:  amount,
	}

	res := s.submitter.Submit(ctx, signed)
	sum.Hash = res.AttemptedHash()
	sum.ExplorerURL = s.net.TxURL(sum.Hash)
	hash, err := res.Unwrap()
	if err != nil {
		sum.Status, sum.Err = confirm.StatusError, err
		entry.Status, entry.Error = journal.StatusError, err.Error()
		ev.Status = journal.StatusError
		ev.SetError(err)
		s.record(ctx, entry, ev)
		s.metrics.Outcome(req.Kind, confirm.StatusError.String(), 0)
		return sum, fmt.Errorf("submit %s: %w", req.Kind, err)
	}
	s.metrics.Submitted(req.Kind)
	entry.TxHash = hash.Hex()
	entry.ExplorerURL = sum.ExplorerURL
	entry.Status = journal.StatusPending
	ev.ExplorerURL = sum.ExplorerURL
	s.recordJournal(ctx, entry)

	start := time.Now()
	out := s.poller.Wait(ctx, hash)
	sum.Outcome = out
	sum.Status = out.Status
	sum.Err = out.Error()

	entry.Status = out.Status.String()
	ev.Status = out.Status.String()
	if out.Receipt != nil {
		ev.SetReceipt(out.Receipt)
		entry.GasUsed = out.Receipt.GasUsed
		if out.Receipt.BlockNumber != nil {
			entry.Block = out.Receipt.BlockNumber.Uint64()
		}
		s.metrics.GasSpent(req.Kind, gasCost(out.Receipt))
	}
	if sum.Err != nil {
		entry.Error = sum.Err.Error()
		ev.SetError(sum.Err)
	}
	// The journal context may already be cancelled when polling was.
	s.record(context.WithoutCancel(ctx), entry, ev)
	s.metrics.Outcome(req.Kind, out.Status.String(), time.Since(start))
	s.logSummary(sum)
	return sum, sum.Err
}

func (s *Service) record(ctx context.Context, entry journal.Entry, ev queue.TxEvent) {
	s.recordJournal(ctx, entry)
	if s.publisher != nil {
		_ = s.publisher.Publish(ctx, ev)
	}
}

func (s *Service) recordJournal(ctx context.Context, entry journal.Entry) {
	if err := s.journal.Record(ctx, entry); err != nil {
		s.log.Warn("journal record failed", zap.String("kind", entry.Kind), zap.Error(err))
	}
}

func (s *Service) logSummary(sum TxSummary) {
	fields := []zap.Field{
		zap.String("kind", sum.Kind),
		zap.String("tx_hash", sum.Hash.Hex()),
		zap.String("status", sum.Status.String()),
		zap.String("explorer", sum.ExplorerURL),
	}
	if sum.Status == confirm.StatusSuccess {
		s.log.Info("transaction succeeded", append(fields, zap.Uint64("gas_used", sum.GasUsed()))...)
		return
	}
	s.log.Error("transaction did not succeed", append(fields, zap.Error(sum.Err))...)
}

func gasCost(r *types.Receipt) float64 {
	if r == nil || r.EffectiveGasPrice == nil {
		return 0
	}
	wei := new(big.Int).Mul(new(big.Int).SetUint64(r.GasUsed), r.EffectiveGasPrice)
	f, _ := new(big.Float).SetInt(wei).Float64()
	return f
}
