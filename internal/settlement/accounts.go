package settlement

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// Each used-nonces account tracks a window of this many consecutive bridge
// nonces; the account is addressed by the first nonce of its window.
const noncesPerAccount = 6400

// receivePDAs are the derived accounts a bridge receive transaction touches.
type receivePDAs struct {
	MessageTransmitter        solana.PublicKey
	AuthorityPDA              solana.PublicKey
	UsedNonces                solana.PublicKey
	TransmitterEventAuthority solana.PublicKey
	TokenMessenger            solana.PublicKey
	TokenMinter               solana.PublicKey
	LocalToken                solana.PublicKey
	RemoteTokenMessenger      solana.PublicKey
	RemoteToken               solana.PublicKey
	TokenPair                 solana.PublicKey
	Custody                   solana.PublicKey
	MessengerEventAuthority   solana.PublicKey
}

func findPDA(program solana.PublicKey, seeds ...[]byte) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(seeds, program)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive program address: %w", err)
	}
	return addr, nil
}

// firstNonce returns the window anchor of the used-nonces account covering
// the given bridge nonce. Nonces are 1-based.
func firstNonce(nonce uint64) uint64 {
	return (nonce-1)/noncesPerAccount*noncesPerAccount + 1
}

// deriveReceivePDAs derives every program address the receive instruction
// references for one (source domain, nonce, remote token) triple.
func deriveReceivePDAs(transmitterProgram, messengerProgram, localMint solana.PublicKey, remoteToken solana.PublicKey, srcDomain uint32, nonce uint64) (*receivePDAs, error) {
	domain := []byte(strconv.FormatUint(uint64(srcDomain), 10))

	p := &receivePDAs{RemoteToken: remoteToken}
	var err error
	if p.MessageTransmitter, err = findPDA(transmitterProgram, []byte("message_transmitter")); err != nil {
		return nil, err
	}
	if p.AuthorityPDA, err = findPDA(transmitterProgram, []byte("message_transmitter_authority"), messengerProgram.Bytes()); err != nil {
		return nil, err
	}
	nonceSeed := []byte(strconv.FormatUint(firstNonce(nonce), 10))
	if p.UsedNonces, err = findPDA(transmitterProgram, []byte("used_nonces"), domain, nonceSeed); err != nil {
		return nil, err
	}
	if p.TransmitterEventAuthority, err = findPDA(transmitterProgram, []byte("__event_authority")); err != nil {
		return nil, err
	}
	if p.TokenMessenger, err = findPDA(messengerProgram, []byte("token_messenger")); err != nil {
		return nil, err
	}
	if p.TokenMinter, err = findPDA(messengerProgram, []byte("token_minter")); err != nil {
		return nil, err
	}
	if p.LocalToken, err = findPDA(messengerProgram, []byte("local_token"), localMint.Bytes()); err != nil {
		return nil, err
	}
	if p.RemoteTokenMessenger, err = findPDA(messengerProgram, []byte("remote_token_messenger"), domain); err != nil {
		return nil, err
	}
	if p.TokenPair, err = findPDA(messengerProgram, []byte("token_pair"), domain, remoteToken.Bytes()); err != nil {
		return nil, err
	}
	if p.Custody, err = findPDA(messengerProgram, []byte("custody"), localMint.Bytes()); err != nil {
		return nil, err
	}
	if p.MessengerEventAuthority, err = findPDA(messengerProgram, []byte("__event_authority")); err != nil {
		return nil, err
	}
	return p, nil
}

// remoteTokenKey parses a 32-byte hex token address from the source chain
// into the key the token pair PDA is derived from.
func remoteTokenKey(hexAddr string) (solana.PublicKey, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(hexAddr, "0x"))
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid remote token address: %w", err)
	}
	if len(raw) != 32 {
		return solana.PublicKey{}, fmt.Errorf("remote token address must be 32 bytes, got %d", len(raw))
	}
	return solana.PublicKeyFromBytes(raw), nil
}
