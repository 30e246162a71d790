// Package client wraps the Solana RPC surface the watchers and the
// settlement orchestrator depend on: program signature scans, transaction
// fetches, token balances, ATA management and retried transaction submission
// with polled confirmation.
package client

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

const (
	confirmPollInterval = 2 * time.Second
	confirmMaxAttempts  = 30
	submitMaxAttempts   = 3
)

// ErrProgramRejected marks a deterministic on-chain program error. Retrying
// the same transaction cannot succeed, so submission stops immediately.
var ErrProgramRejected = errors.New("program rejected transaction")

// Client is a thin wrapper over a single Solana RPC endpoint.
type Client struct {
	rpc *rpc.Client
	log *zap.Logger
}

// New creates a Client for the given RPC URL.
func New(rpcURL string, log *zap.Logger) *Client {
	return &Client{rpc: rpc.New(rpcURL), log: log}
}

// SignaturesForAddress lists confirmed signatures for an address, newest
// first, stopping at the until signature when provided.
func (c *Client) SignaturesForAddress(ctx context.Context, addr solana.PublicKey, until string, limit int) ([]*rpc.TransactionSignature, error) {
	opts := &rpc.GetSignaturesForAddressOpts{
		Limit:      &limit,
		Commitment: rpc.CommitmentConfirmed,
	}
	if until != "" {
		sig, err := solana.SignatureFromBase58(until)
		if err != nil {
			return nil, fmt.Errorf("invalid cursor signature %q: %w", until, err)
		}
		opts.Until = sig
	}
	sigs, err := c.rpc.GetSignaturesForAddressWithOpts(ctx, addr, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get signatures: %w", err)
	}
	return sigs, nil
}

// Transaction fetches a confirmed transaction with its metadata and logs.
func (c *Client) Transaction(ctx context.Context, sig solana.Signature) (*rpc.GetTransactionResult, error) {
	maxVersion := uint64(0)
	tx, err := c.rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction %s: %w", sig, err)
	}
	return tx, nil
}

// TokenBalance reads the raw base-unit balance of a token account. A missing
// account reads as zero.
func (c *Client) TokenBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	balance, err := c.rpc.GetTokenAccountBalance(ctx, account, rpc.CommitmentConfirmed)
	if err != nil {
		if isAccountNotFoundError(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get token account balance: %w", err)
	}
	if balance.Value == nil {
		return 0, nil
	}
	amount, err := strconv.ParseUint(balance.Value.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse token balance amount: %w", err)
	}
	return amount, nil
}

// EnsureATA finds the associated token account for (owner, mint) and creates
// it in its own transaction when absent, paid by payer.
func (c *Client) EnsureATA(ctx context.Context, payer solana.PrivateKey, owner, mint solana.PublicKey) (solana.PublicKey, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to find associated token account address: %w", err)
	}

	info, err := c.rpc.GetAccountInfo(ctx, ata)
	if err == nil && info.Value != nil {
		return ata, nil
	}
	if err != nil && !isAccountNotFoundError(err) {
		return solana.PublicKey{}, fmt.Errorf("failed to get account info: %w", err)
	}

	createIx := associatedtokenaccount.NewCreateInstruction(
		payer.PublicKey(), // payer
		owner,             // owner
		mint,              // mint
	).Build()

	_, err = c.SendAndConfirm(ctx, payer, func(blockhash solana.Hash) (*solana.Transaction, error) {
		return solana.NewTransaction(
			[]solana.Instruction{createIx},
			blockhash,
			solana.TransactionPayer(payer.PublicKey()),
		)
	})
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to create associated token account: %w", err)
	}
	c.log.Info("created associated token account",
		zap.String("ata", ata.String()),
		zap.String("owner", owner.String()))
	return ata, nil
}

// SendAndConfirm builds, signs, submits and confirms a transaction. Each
// attempt rebuilds against a fresh blockhash. Transient RPC failures retry
// with backoff up to the attempt budget; a decoded program error aborts
// immediately with ErrProgramRejected.
func (c *Client) SendAndConfirm(ctx context.Context, signer solana.PrivateKey, build func(blockhash solana.Hash) (*solana.Transaction, error)) (solana.Signature, error) {
	var sig solana.Signature

	err := retry.Do(
		func() error {
			recent, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
			if err != nil {
				return fmt.Errorf("failed to get latest blockhash: %w", err)
			}

			tx, err := build(recent.Value.Blockhash)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("failed to build transaction: %w", err))
			}

			_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
				if signer.PublicKey().Equals(key) {
					return &signer
				}
				return nil
			})
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("failed to sign transaction: %w", err))
			}

			sig, err = c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
				SkipPreflight:       true,
				PreflightCommitment: rpc.CommitmentConfirmed,
			})
			if err != nil {
				if isProgramError(err) {
					return retry.Unrecoverable(fmt.Errorf("%w: %v", ErrProgramRejected, err))
				}
				return fmt.Errorf("failed to send transaction: %w", err)
			}
			c.log.Debug("transaction sent", zap.String("signature", sig.String()))

			return c.confirm(ctx, sig)
		},
		retry.Attempts(submitMaxAttempts),
		retry.Delay(time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return solana.Signature{}, err
	}
	return sig, nil
}

// confirm polls signature status until the transaction is confirmed or
// finalized. An on-chain execution error is unrecoverable.
func (c *Client) confirm(ctx context.Context, sig solana.Signature) error {
	for i := 0; i < confirmMaxAttempts; i++ {
		out, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
		if err == nil && len(out.Value) > 0 && out.Value[0] != nil {
			status := out.Value[0]
			if status.Err != nil {
				return retry.Unrecoverable(fmt.Errorf("%w: %v", ErrProgramRejected, status.Err))
			}
			if status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
				status.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return retry.Unrecoverable(ctx.Err())
		case <-time.After(confirmPollInterval):
		}
	}
	return fmt.Errorf("transaction %s not confirmed after %d attempts", sig, confirmMaxAttempts)
}

// isAccountNotFoundError checks if an RPC error means the account does not exist.
func isAccountNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "could not find account") ||
		strings.Contains(errStr, "not found")
}

// isProgramError checks if a submission error carries a decoded program
// rejection rather than a transport problem.
func isProgramError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "custom program error") ||
		strings.Contains(errStr, "InstructionError")
}
