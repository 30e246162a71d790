// Package watcher tails the stealth program on one Solana chain, persists
// every payment and withdrawal event it observes, and hands fresh payments to
// the ownership resolver. Ingestion is idempotent, so a watcher pass and a
// settlement confirmation observing the same transaction cannot duplicate it.
package watcher

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"stealthpay/internal/model"
	"stealthpay/internal/resolver"
	"stealthpay/internal/store"
)

// chainRPC is the slice of the RPC client the watcher reads through.
type chainRPC interface {
	SignaturesForAddress(ctx context.Context, addr solana.PublicKey, until string, limit int) ([]*rpc.TransactionSignature, error)
	Transaction(ctx context.Context, sig solana.Signature) (*rpc.GetTransactionResult, error)
}

// Options bounds a watcher's fetch window and cadence.
type Options struct {
	Chain          string
	ProgramID      solana.PublicKey
	PollInterval   time.Duration
	SweepInterval  time.Duration
	SignatureBatch int
	SweepBatch     int
	ResolveWorkers int
}

// Watcher ingests stealth program events for a single chain.
type Watcher struct {
	rpc  chainRPC
	db   store.Store
	res  *resolver.Resolver
	log  *zap.Logger
	opts Options
}

// New creates a watcher. Zero option fields fall back to conservative
// defaults.
func New(rpc chainRPC, db store.Store, res *resolver.Resolver, log *zap.Logger, opts Options) *Watcher {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = time.Minute
	}
	if opts.SignatureBatch <= 0 {
		opts.SignatureBatch = 10
	}
	if opts.SweepBatch <= 0 {
		opts.SweepBatch = 50
	}
	if opts.ResolveWorkers <= 0 {
		opts.ResolveWorkers = 4
	}
	return &Watcher{
		rpc:  rpc,
		db:   db,
		res:  res,
		log:  log.With(zap.String("chain", opts.Chain)),
		opts: opts,
	}
}

// Run polls for new program transactions and periodically sweeps stale
// unprocessed payments until the context is cancelled. Errors in a pass are
// logged and the next tick retries from the persisted cursor.
func (w *Watcher) Run(ctx context.Context) error {
	poll := time.NewTicker(w.opts.PollInterval)
	defer poll.Stop()
	sweep := time.NewTicker(w.opts.SweepInterval)
	defer sweep.Stop()

	w.log.Info("watcher started",
		zap.String("program", w.opts.ProgramID.String()),
		zap.Duration("poll_interval", w.opts.PollInterval))

	for {
		select {
		case <-ctx.Done():
			w.log.Info("watcher stopped")
			return ctx.Err()
		case <-poll.C:
			if err := w.Pass(ctx); err != nil && ctx.Err() == nil {
				w.log.Error("watcher pass failed", zap.Error(err))
			}
		case <-sweep.C:
			if err := w.Sweep(ctx); err != nil && ctx.Err() == nil {
				w.log.Error("sweep failed", zap.Error(err))
			}
		}
	}
}

// Pass runs one ingestion cycle: fetch signatures newer than the persisted
// cursor, decode their events oldest first, persist them, and resolve the new
// payments.
func (w *Watcher) Pass(ctx context.Context) error {
	cursor, err := w.db.LatestCursor(ctx, w.opts.Chain)
	if err != nil {
		return fmt.Errorf("failed to load cursor: %w", err)
	}

	sigs, err := w.rpc.SignaturesForAddress(ctx, w.opts.ProgramID, cursor, w.opts.SignatureBatch)
	if err != nil {
		return fmt.Errorf("failed to fetch signatures: %w", err)
	}
	if len(sigs) == 0 {
		return nil
	}

	// Signatures arrive newest first. Ingest oldest first so the cursor
	// never skips over an unrecorded transaction.
	var payments []*model.Payment
	for i := len(sigs) - 1; i >= 0; i-- {
		sig := sigs[i]
		if sig.Err != nil {
			continue
		}
		got, err := w.ingest(ctx, sig)
		if err != nil {
			return err
		}
		payments = append(payments, got...)
	}
	if len(payments) == 0 {
		return nil
	}

	w.log.Info("ingested payments", zap.Int("count", len(payments)))
	return w.resolveAll(ctx, payments)
}

// ingest decodes one transaction's events and persists them. It returns the
// payment records that were handed to persistence so the caller can resolve
// them.
func (w *Watcher) ingest(ctx context.Context, sig *rpc.TransactionSignature) ([]*model.Payment, error) {
	tx, err := w.rpc.Transaction(ctx, sig.Signature)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transaction %s: %w", sig.Signature, err)
	}
	if tx == nil || tx.Meta == nil || len(tx.Meta.LogMessages) == 0 {
		return nil, nil
	}

	events := parseLogs(tx.Meta.LogMessages)

	var blockTime int64
	if sig.BlockTime != nil {
		blockTime = sig.BlockTime.Time().Unix()
	}
	var memo string
	if sig.Memo != nil {
		memo = memoText(*sig.Memo)
	}

	var payments []*model.Payment
	for _, ev := range events.payments {
		p := (&model.PaymentEvent{
			TxHash:          sig.Signature.String(),
			Chain:           w.opts.Chain,
			Slot:            sig.Slot,
			BlockTime:       blockTime,
			StealthOwner:    ev.StealthOwner.String(),
			Payer:           ev.Payer.String(),
			Mint:            ev.Mint.String(),
			Amount:          ev.Amount,
			Label:           labelString(ev.Label),
			EphemeralPubkey: ev.EphPubkey.String(),
			Announce:        ev.Announce,
			Memo:            memo,
		}).Payment()
		if err := w.db.UpsertPayment(ctx, p); err != nil {
			return nil, fmt.Errorf("failed to persist payment %s: %w", p.TxHash, err)
		}
		payments = append(payments, p)
	}

	for _, ev := range events.withdrawals {
		rec := (&model.WithdrawEvent{
			TxHash:       sig.Signature.String(),
			Chain:        w.opts.Chain,
			Slot:         sig.Slot,
			BlockTime:    blockTime,
			StealthOwner: ev.StealthOwner.String(),
			Destination:  ev.Destination.String(),
			Mint:         ev.Mint.String(),
			Amount:       ev.Amount,
		}).Withdrawal()
		if err := w.db.UpsertWithdrawal(ctx, rec); err != nil {
			return nil, fmt.Errorf("failed to persist withdrawal %s: %w", rec.TxHash, err)
		}
		if err := w.db.MarkWithdrawalProcessed(ctx, rec.TxHash, rec.StealthOwner); err != nil {
			return nil, fmt.Errorf("failed to mark withdrawal processed: %w", err)
		}
	}

	return payments, nil
}

// memoText strips the "[<len>] " prefix getSignaturesForAddress puts on
// signature memos. The trailing text is the transport payload the resolver
// decrypts, so the prefix must never reach persistence.
func memoText(memo string) string {
	if !strings.HasPrefix(memo, "[") {
		return memo
	}
	end := strings.Index(memo, "] ")
	if end < 0 {
		return memo
	}
	if _, err := strconv.Atoi(memo[1:end]); err != nil {
		return memo
	}
	return memo[end+2:]
}

// Sweep retries attribution for payments that were persisted but never
// resolved, typically because their payee registered after ingestion or a
// previous resolve pass failed.
func (w *Watcher) Sweep(ctx context.Context) error {
	pending, err := w.db.FindUnprocessedPayments(ctx, w.opts.SweepBatch)
	if err != nil {
		return fmt.Errorf("failed to list unprocessed payments: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	w.log.Debug("sweeping unprocessed payments", zap.Int("count", len(pending)))
	payments := make([]*model.Payment, len(pending))
	for i := range pending {
		payments[i] = &pending[i]
	}
	return w.resolveAll(ctx, payments)
}

// resolveAll attributes a batch of payments in parallel. Payments are
// independent, so one failed resolution does not block the rest.
func (w *Watcher) resolveAll(ctx context.Context, payments []*model.Payment) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(w.opts.ResolveWorkers)
	for _, p := range payments {
		p := p
		g.Go(func() error {
			if err := w.res.ResolvePayment(ctx, p); err != nil {
				return fmt.Errorf("failed to resolve payment %s: %w", p.TxHash, err)
			}
			return nil
		})
	}
	return g.Wait()
}
