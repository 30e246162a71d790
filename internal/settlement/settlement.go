// Package settlement drives a bridged cross-chain transfer to completion on
// Solana: claim the attested funds into the stealth token account, verify the
// credit actually landed, then announce the payment on chain so the normal
// ingestion and attribution path owns it from there.
package settlement

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"stealthpay/internal/common"
	"stealthpay/internal/model"
	"stealthpay/internal/resolver"
	"stealthpay/internal/store"
)

var (
	// ErrInvalidTransfer rejects a transfer whose attestation or account
	// identifiers fail structural validation before any signing happens.
	ErrInvalidTransfer = errors.New("invalid transfer request")

	// ErrInsufficientCredit aborts a settlement whose receive leg confirmed
	// but left the stealth account short of the expected amount. No announce
	// is ever written for unconfirmed credit.
	ErrInsufficientCredit = errors.New("credited balance below expected amount")

	// ErrSettlementFailed wraps an on-chain rejection or retry exhaustion.
	ErrSettlementFailed = errors.New("settlement failed")
)

// Attestation is the bridge's signed authorization to mint on the
// destination chain.
type Attestation struct {
	Message     string `json:"message"`
	Attestation string `json:"attestation"`
	EventNonce  uint64 `json:"eventNonce"`
}

// Transfer is one bridged payment to settle. The caller supplies the bridge
// program identifiers because they differ per deployment.
type Transfer struct {
	ID                 string
	SrcDomain          uint32
	SrcTxHash          string
	Amount             uint64
	StealthOwner       solana.PublicKey
	StealthATA         solana.PublicKey
	EphPub             solana.PublicKey
	TransportMemo      string
	Label              string
	LinkID             string
	RemoteUSDCHex      string
	TransmitterProgram solana.PublicKey
	MessengerProgram   solana.PublicKey
	Attestation        Attestation
}

// chainClient is the slice of the RPC client the orchestrator submits through.
type chainClient interface {
	EnsureATA(ctx context.Context, payer solana.PrivateKey, owner, mint solana.PublicKey) (solana.PublicKey, error)
	TokenBalance(ctx context.Context, account solana.PublicKey) (uint64, error)
	SendAndConfirm(ctx context.Context, signer solana.PrivateKey, build func(blockhash solana.Hash) (*solana.Transaction, error)) (solana.Signature, error)
	Transaction(ctx context.Context, sig solana.Signature) (*rpc.GetTransactionResult, error)
}

// Orchestrator settles bridged transfers one at a time. Instances are safe
// for concurrent use; each transfer is independent.
type Orchestrator struct {
	client         chainClient
	db             store.Store
	res            *resolver.Resolver
	log            *zap.Logger
	feePayer       solana.PrivateKey
	chain          string
	stealthProgram solana.PublicKey
	usdcMint       solana.PublicKey
}

// NewOrchestrator creates a settlement orchestrator bound to one chain.
func NewOrchestrator(client chainClient, db store.Store, res *resolver.Resolver, log *zap.Logger, feePayer solana.PrivateKey, chain string, stealthProgram, usdcMint solana.PublicKey) *Orchestrator {
	return &Orchestrator{
		client:         client,
		db:             db,
		res:            res,
		log:            log.With(zap.String("chain", chain)),
		feePayer:       feePayer,
		chain:          chain,
		stealthProgram: stealthProgram,
		usdcMint:       usdcMint,
	}
}

// Settle runs one transfer through the full receive and announce sequence.
// Any error leaves the transfer failed; the receive leg is idempotent on
// chain (a consumed nonce cannot be claimed twice), so retrying a failed
// transfer from the top is safe.
func (o *Orchestrator) Settle(ctx context.Context, t Transfer) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	log := o.log.With(zap.String("transfer_id", t.ID), zap.String("src_tx", t.SrcTxHash))

	message, attestation, remoteToken, err := o.validate(&t)
	if err != nil {
		return err
	}
	if err := o.applyLinkLabel(ctx, &t); err != nil {
		return err
	}

	if _, err := o.client.EnsureATA(ctx, o.feePayer, t.StealthOwner, o.usdcMint); err != nil {
		return fmt.Errorf("%w: %v", ErrSettlementFailed, err)
	}

	pdas, err := deriveReceivePDAs(t.TransmitterProgram, t.MessengerProgram, o.usdcMint, remoteToken, t.SrcDomain, t.Attestation.EventNonce)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSettlementFailed, err)
	}

	receiveIx, err := buildReceiveInstruction(t.TransmitterProgram, t.MessengerProgram, o.feePayer.PublicKey(), t.StealthATA, pdas, message, attestation)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSettlementFailed, err)
	}

	receiveSig, err := o.submit(ctx, receiveIx)
	if err != nil {
		return fmt.Errorf("%w: receive leg: %v", ErrSettlementFailed, err)
	}
	log.Info("bridge receive confirmed", zap.String("signature", receiveSig.String()))

	credited, err := o.client.TokenBalance(ctx, t.StealthATA)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSettlementFailed, err)
	}
	if credited < t.Amount {
		return fmt.Errorf("%w: expected %d, credited %d", ErrInsufficientCredit, t.Amount, credited)
	}

	// Announce the balance actually observed, not the requested amount, so
	// reconciliation downstream is exact.
	announceIx, err := buildAnnounceInstruction(o.stealthProgram, t.StealthOwner, o.feePayer.PublicKey(), o.usdcMint, t.EphPub, credited, t.Label)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSettlementFailed, err)
	}
	announceSig, err := o.submit(ctx, buildMemoInstruction(t.TransportMemo), announceIx)
	if err != nil {
		return fmt.Errorf("%w: announce leg: %v", ErrSettlementFailed, err)
	}
	log.Info("announce confirmed",
		zap.String("signature", announceSig.String()),
		zap.String("credited_usdc", common.MicroToUSDC(credited)))

	payment, err := o.persist(ctx, &t, announceSig, credited)
	if err != nil {
		return err
	}

	if err := o.res.ResolvePayment(ctx, payment); err != nil {
		// The payment is persisted; the sweep will retry attribution.
		log.Warn("deferred payment attribution", zap.Error(err))
	}
	return nil
}

// applyLinkLabel resolves the announce label from the target link when the
// transfer names one, so the announced payment attributes back to that link.
func (o *Orchestrator) applyLinkLabel(ctx context.Context, t *Transfer) error {
	if t.LinkID == "" {
		return nil
	}
	link, err := o.db.FindLinkByID(ctx, t.LinkID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSettlementFailed, err)
	}
	if link == nil {
		return fmt.Errorf("%w: unknown link %s", ErrInvalidTransfer, t.LinkID)
	}
	t.Label = link.Tag
	return nil
}

// validate performs the structural checks that must pass before any signing.
func (o *Orchestrator) validate(t *Transfer) (message, attestation []byte, remoteToken solana.PublicKey, err error) {
	message, err = decodeHexField(t.Attestation.Message)
	if err != nil || len(message) == 0 {
		return nil, nil, solana.PublicKey{}, fmt.Errorf("%w: malformed attestation message", ErrInvalidTransfer)
	}
	attestation, err = decodeHexField(t.Attestation.Attestation)
	if err != nil || len(attestation) == 0 {
		return nil, nil, solana.PublicKey{}, fmt.Errorf("%w: malformed attestation signature", ErrInvalidTransfer)
	}
	if t.Attestation.EventNonce == 0 {
		return nil, nil, solana.PublicKey{}, fmt.Errorf("%w: missing event nonce", ErrInvalidTransfer)
	}
	if t.Amount == 0 {
		return nil, nil, solana.PublicKey{}, fmt.Errorf("%w: zero amount", ErrInvalidTransfer)
	}
	if t.StealthOwner.IsZero() || t.StealthATA.IsZero() || t.EphPub.IsZero() {
		return nil, nil, solana.PublicKey{}, fmt.Errorf("%w: missing stealth account identifiers", ErrInvalidTransfer)
	}
	if t.TransmitterProgram.IsZero() || t.MessengerProgram.IsZero() {
		return nil, nil, solana.PublicKey{}, fmt.Errorf("%w: missing bridge program identifiers", ErrInvalidTransfer)
	}
	remoteToken, err = remoteTokenKey(t.RemoteUSDCHex)
	if err != nil {
		return nil, nil, solana.PublicKey{}, fmt.Errorf("%w: %v", ErrInvalidTransfer, err)
	}
	return message, attestation, remoteToken, nil
}

func (o *Orchestrator) submit(ctx context.Context, ixs ...solana.Instruction) (solana.Signature, error) {
	return o.client.SendAndConfirm(ctx, o.feePayer, func(blockhash solana.Hash) (*solana.Transaction, error) {
		return solana.NewTransaction(ixs, blockhash, solana.TransactionPayer(o.feePayer.PublicKey()))
	})
}

// persist records the announce transaction as a Payment so the watcher's
// re-observation of the same signature upserts into a no-op.
func (o *Orchestrator) persist(ctx context.Context, t *Transfer, announceSig solana.Signature, credited uint64) (*model.Payment, error) {
	var slot uint64
	timestamp := time.Now().Unix()
	if tx, err := o.client.Transaction(ctx, announceSig); err == nil && tx != nil {
		slot = tx.Slot
		if tx.BlockTime != nil {
			timestamp = tx.BlockTime.Time().Unix()
		}
	}

	payment := (&model.PaymentEvent{
		TxHash:          announceSig.String(),
		Chain:           o.chain,
		Slot:            slot,
		BlockTime:       timestamp,
		StealthOwner:    t.StealthOwner.String(),
		Payer:           o.feePayer.PublicKey().String(),
		Mint:            o.usdcMint.String(),
		Amount:          credited,
		Label:           t.Label,
		EphemeralPubkey: t.EphPub.String(),
		Announce:        true,
		Memo:            t.TransportMemo,
	}).Payment()

	if err := o.db.UpsertPayment(ctx, payment); err != nil {
		return nil, fmt.Errorf("failed to persist settled payment: %w", err)
	}
	return payment, nil
}

func decodeHexField(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(s, "0x"))
}
