// Package model holds the persisted records and on-chain event shapes shared
// across the ingestion and settlement pipelines.
package model

import (
	"strconv"
	"time"
)

// Supported chain identifiers. A watcher instance is bound to exactly one.
const (
	ChainSolanaMainnet = "MAINNET"
	ChainSolanaDevnet  = "DEVNET"
)

// WalletChainSolana filters the user directory to Solana key material.
const WalletChainSolana = "SOLANA"

// LabelPersonal is the reserved default payment channel. Payments labeled
// "personal" or with an empty label attach to the owner's personal link.
const LabelPersonal = "personal"

// User is a registered payee as stored by the account layer. The meta keys
// are immutable after registration; the private halves are only ever read by
// the ownership resolver.
type User struct {
	ID            string `gorm:"primaryKey;size:64"`
	WalletChain   string `gorm:"size:16;index"`
	MetaSpendPub  string `gorm:"size:96"`
	MetaSpendPriv string `gorm:"size:96"`
	MetaViewPub   string `gorm:"size:96"`
	MetaViewPriv  string `gorm:"size:96"`
}

// Link is a payee's payment channel. The personal link has an empty tag.
type Link struct {
	ID     string `gorm:"primaryKey;size:64"`
	UserID string `gorm:"size:64;index"`
	Tag    string `gorm:"size:64"`
	Label  string `gorm:"size:64"`
}

// Payment mirrors an on-chain PaymentEvent plus attribution state. TxHash is
// the natural unique key; duplicate observations upsert into a no-op. Once
// IsProcessed is true the record is terminal.
type Payment struct {
	TxHash          string `gorm:"primaryKey;size:96"`
	Chain           string `gorm:"size:16;index"`
	Slot            uint64
	Timestamp       int64
	StealthOwner    string `gorm:"size:64;index"`
	EphemeralPubkey string `gorm:"size:64"`
	Payer           string `gorm:"size:64"`
	Mint            string `gorm:"size:64"`
	Amount          string `gorm:"size:32"` // raw base units, decimal string
	Label           string `gorm:"size:64"`
	Memo            string `gorm:"size:256"`
	Announce        bool
	IsProcessed     bool   `gorm:"index"`
	LinkID          string `gorm:"size:64"`
	CreatedAt       time.Time
}

// Withdrawal mirrors an on-chain WithdrawEvent. One transaction can carry
// several withdraw events, so the key is (TxHash, StealthOwner).
type Withdrawal struct {
	TxHash       string `gorm:"primaryKey;size:96"`
	StealthOwner string `gorm:"primaryKey;size:64"`
	Chain        string `gorm:"size:16;index"`
	Slot         uint64
	Timestamp    int64
	Destination  string `gorm:"size:64"`
	Mint         string `gorm:"size:64"`
	Amount       string `gorm:"size:32"`
	IsProcessed  bool   `gorm:"index"`
	CreatedAt    time.Time
}

// PaymentEvent is a decoded, chain-neutral payment observation handed from a
// watcher to persistence and resolution.
type PaymentEvent struct {
	TxHash          string
	Chain           string
	Slot            uint64
	BlockTime       int64
	StealthOwner    string
	Payer           string
	Mint            string
	Amount          uint64
	Label           string
	EphemeralPubkey string
	Announce        bool
	Memo            string
}

// WithdrawEvent is a decoded withdrawal observation.
type WithdrawEvent struct {
	TxHash       string
	Chain        string
	Slot         uint64
	BlockTime    int64
	StealthOwner string
	Destination  string
	Mint         string
	Amount       uint64
}

// Payment builds the persisted record for an observed payment event.
func (e *PaymentEvent) Payment() *Payment {
	return &Payment{
		TxHash:          e.TxHash,
		Chain:           e.Chain,
		Slot:            e.Slot,
		Timestamp:       e.BlockTime,
		StealthOwner:    e.StealthOwner,
		EphemeralPubkey: e.EphemeralPubkey,
		Payer:           e.Payer,
		Mint:            e.Mint,
		Amount:          formatUint(e.Amount),
		Label:           e.Label,
		Memo:            e.Memo,
		Announce:        e.Announce,
	}
}

// Withdrawal builds the persisted record for an observed withdraw event.
func (e *WithdrawEvent) Withdrawal() *Withdrawal {
	return &Withdrawal{
		TxHash:       e.TxHash,
		StealthOwner: e.StealthOwner,
		Chain:        e.Chain,
		Slot:         e.Slot,
		Timestamp:    e.BlockTime,
		Destination:  e.Destination,
		Mint:         e.Mint,
		Amount:       formatUint(e.Amount),
	}
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}
