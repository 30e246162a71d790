package watcher

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"strings"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// Anchor emits events as base64 payloads on "Program data:" log lines. The
// first 8 bytes are sha256("event:<Name>")[:8]; the rest is the borsh-encoded
// event struct.
const programDataPrefix = "Program data: "

var (
	paymentEventDiscriminator  = eventDiscriminator("PaymentEvent")
	withdrawEventDiscriminator = eventDiscriminator("WithdrawEvent")
)

func eventDiscriminator(name string) [8]byte {
	var d [8]byte
	h := sha256.Sum256([]byte("event:" + name))
	copy(d[:], h[:8])
	return d
}

// paymentEventData is the on-chain borsh layout of a PaymentEvent.
type paymentEventData struct {
	StealthOwner solana.PublicKey
	Payer        solana.PublicKey
	Mint         solana.PublicKey
	Amount       uint64
	Label        [32]byte
	EphPubkey    solana.PublicKey
	Announce     bool
}

// withdrawEventData is the on-chain borsh layout of a WithdrawEvent.
type withdrawEventData struct {
	StealthOwner solana.PublicKey
	Destination  solana.PublicKey
	Mint         solana.PublicKey
	Amount       uint64
}

// decodedEvents collects the program events found in one transaction's logs.
type decodedEvents struct {
	payments    []paymentEventData
	withdrawals []withdrawEventData
}

// parseLogs scans transaction log messages for program data entries and
// decodes the ones carrying a known event discriminator. Unknown events and
// undecodable payloads are skipped.
func parseLogs(logs []string) decodedEvents {
	var out decodedEvents
	for _, line := range logs {
		if !strings.HasPrefix(line, programDataPrefix) {
			continue
		}
		raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(line, programDataPrefix))
		if err != nil || len(raw) < 8 {
			continue
		}

		switch {
		case bytes.Equal(raw[:8], paymentEventDiscriminator[:]):
			var ev paymentEventData
			if err := bin.NewBorshDecoder(raw[8:]).Decode(&ev); err != nil {
				continue
			}
			out.payments = append(out.payments, ev)
		case bytes.Equal(raw[:8], withdrawEventDiscriminator[:]):
			var ev withdrawEventData
			if err := bin.NewBorshDecoder(raw[8:]).Decode(&ev); err != nil {
				continue
			}
			out.withdrawals = append(out.withdrawals, ev)
		}
	}
	return out
}

// labelString strips the fixed-size label field down to its text content.
// Labels are NUL padded on chain.
func labelString(label [32]byte) string {
	return strings.ReplaceAll(string(label[:]), "\x00", "")
}
