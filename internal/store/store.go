// Package store is the persistence boundary of the ingestion and settlement
// pipelines. Every write that can race between concurrent watcher passes is
// an idempotent upsert keyed by the record's natural key, which is the only
// synchronization mechanism the pipelines rely on.
package store

import (
	"context"

	"stealthpay/internal/model"
)

// Store enumerates the persistence operations the core consumes. Adapters
// must implement upsert as an atomic create-or-ignore on the natural key so
// duplicate delivery is a no-op.
type Store interface {
	// UpsertPayment inserts the payment if no record with its TxHash exists.
	// Re-delivery of an already persisted payment changes nothing.
	UpsertPayment(ctx context.Context, p *model.Payment) error

	// UpsertWithdrawal inserts the withdrawal if no record with its
	// (TxHash, StealthOwner) pair exists.
	UpsertWithdrawal(ctx context.Context, w *model.Withdrawal) error

	// FindUnprocessedPayments returns up to limit payments with
	// IsProcessed=false, oldest first.
	FindUnprocessedPayments(ctx context.Context, limit int) ([]model.Payment, error)

	// FindUsersWithKeyMaterial returns all users on the given wallet chain
	// whose meta view/spend keys are present.
	FindUsersWithKeyMaterial(ctx context.Context, walletChain string) ([]model.User, error)

	// FindLinkByOwnerAndTag returns the owner's link with the given tag, or
	// (nil, nil) when none exists.
	FindLinkByOwnerAndTag(ctx context.Context, ownerID, tag string) (*model.Link, error)

	// FindLinkByID returns the link with the given ID, or (nil, nil) when
	// none exists.
	FindLinkByID(ctx context.Context, id string) (*model.Link, error)

	// MarkPaymentProcessed terminally marks a payment, optionally attaching
	// the attributed link. IsProcessed and LinkID are the only fields ever
	// mutated after creation.
	MarkPaymentProcessed(ctx context.Context, txHash, linkID string) error

	// MarkWithdrawalProcessed terminally marks a withdrawal.
	MarkWithdrawalProcessed(ctx context.Context, txHash, stealthOwner string) error

	// LatestCursor returns the txHash of the highest-slot payment or
	// withdrawal recorded for the chain, or "" when the chain has no records.
	// Watchers use it as the lower bound of the next fetch window.
	LatestCursor(ctx context.Context, chain string) (string, error)
}
