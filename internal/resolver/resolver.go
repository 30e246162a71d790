// Package resolver attributes observed stealth payments to registered users.
// Ownership is never stored for a stealth address; it is recomputed here by
// trial-decrypting the transport memo against every candidate's view key and
// comparing the re-derived address, so the scan is O(candidates) per event.
package resolver

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"stealthpay/internal/model"
	"stealthpay/internal/stealth"
	"stealthpay/internal/store"
)

// ErrOwnerNotFound means no candidate in the directory owns the event. The
// event is terminal: it is marked processed without an owner and never
// retried.
var ErrOwnerNotFound = errors.New("no candidate owns this payment")

// Resolver attributes payments to users and links.
type Resolver struct {
	store store.Store
	log   *zap.Logger
}

// New builds a Resolver.
func New(s store.Store, log *zap.Logger) *Resolver {
	return &Resolver{store: s, log: log}
}

// ResolveOwner scans the candidate set for the unique owner of a payment.
// For each candidate it attempts to decrypt the transport memo with the
// candidate's view key and, on success, re-derives the stealth address from
// the recovered ephemeral key. The first candidate whose derived address
// matches the event's stealth owner wins; every per-candidate failure is an
// expected outcome and is swallowed. The scan of a single event is
// deliberately sequential so first-match is deterministic.
//
// A payment whose ephemeral pubkey does not parse can never match any
// candidate, so it reports ErrOwnerNotFound rather than an error that would
// keep the record unprocessed and re-swept forever.
func ResolveOwner(p *model.Payment, candidates []model.User) (*model.User, error) {
	ephPub, err := stealth.ParseKey(p.EphemeralPubkey)
	if err != nil {
		return nil, ErrOwnerNotFound
	}

	for i := range candidates {
		u := &candidates[i]

		viewPriv, err := stealth.ParseKey(u.MetaViewPriv)
		if err != nil {
			continue
		}

		ephPriv, err := stealth.DecryptTransport(p.Memo, viewPriv, ephPub)
		if err != nil {
			// Wrong key for every non-owning candidate. Try the next one.
			continue
		}

		spendPub, err := stealth.ParseKey(u.MetaSpendPub)
		if err != nil {
			continue
		}
		viewPub, err := stealth.ParseKey(u.MetaViewPub)
		if err != nil {
			continue
		}

		_, address, err := stealth.DerivePub(spendPub, viewPub, ephPriv)
		if err != nil {
			continue
		}
		if address == p.StealthOwner {
			return u, nil
		}
	}
	return nil, ErrOwnerNotFound
}

// ResolvePayment loads the candidate directory, finds the payment's owner and
// attaches the matching link, then terminally marks the record. A payment
// with no owner or no matching link is marked processed unattributed.
func (r *Resolver) ResolvePayment(ctx context.Context, p *model.Payment) error {
	if p.IsProcessed {
		return nil
	}

	users, err := r.store.FindUsersWithKeyMaterial(ctx, model.WalletChainSolana)
	if err != nil {
		return fmt.Errorf("failed to load candidate users: %w", err)
	}

	owner, err := ResolveOwner(p, users)
	if errors.Is(err, ErrOwnerNotFound) {
		r.log.Info("owner not found for payment",
			zap.String("txHash", p.TxHash),
			zap.String("stealthOwner", p.StealthOwner),
			zap.Int("candidates", len(users)))
		return r.store.MarkPaymentProcessed(ctx, p.TxHash, "")
	}
	if err != nil {
		return err
	}

	link, err := r.store.FindLinkByOwnerAndTag(ctx, owner.ID, linkTag(p.Label))
	if err != nil {
		return fmt.Errorf("failed to look up link: %w", err)
	}
	if link == nil {
		r.log.Info("no link for payment label, marking unattributed",
			zap.String("txHash", p.TxHash),
			zap.String("owner", owner.ID),
			zap.String("label", p.Label))
		return r.store.MarkPaymentProcessed(ctx, p.TxHash, "")
	}

	r.log.Info("payment attributed",
		zap.String("txHash", p.TxHash),
		zap.String("owner", owner.ID),
		zap.String("link", link.ID))
	return r.store.MarkPaymentProcessed(ctx, p.TxHash, link.ID)
}

// linkTag maps an on-chain label to the link tag it attaches to. The empty
// label and the reserved "personal" label both address the owner's default
// channel, which is stored with an empty tag.
func linkTag(label string) string {
	if label == "" || label == model.LabelPersonal {
		return ""
	}
	return label
}
