package settlement

import (
	"crypto/sha256"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// memoProgramID is the SPL memo program used for the transport payload.
var memoProgramID = solana.MustPublicKeyFromBase58("MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr")

func instructionDiscriminator(name string) []byte {
	h := sha256.Sum256([]byte("global:" + name))
	return h[:8]
}

// receiveMessageArgs is the borsh argument layout of the bridge transmitter's
// receive_message instruction.
type receiveMessageArgs struct {
	Message     []byte
	Attestation []byte
}

// announceArgs is the borsh argument layout of the stealth program's announce
// instruction. Label is written NUL padded.
type announceArgs struct {
	Amount    uint64
	Label     [32]byte
	EphPubkey solana.PublicKey
}

func encodeInstructionData(name string, args interface{}) ([]byte, error) {
	body, err := bin.MarshalBorsh(args)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s arguments: %w", name, err)
	}
	return append(instructionDiscriminator(name), body...), nil
}

// buildReceiveInstruction assembles the transmitter receive_message call that
// mints the bridged funds into the stealth token account.
func buildReceiveInstruction(transmitterProgram, messengerProgram, payer, stealthATA solana.PublicKey, pdas *receivePDAs, message, attestation []byte) (solana.Instruction, error) {
	data, err := encodeInstructionData("receive_message", &receiveMessageArgs{
		Message:     message,
		Attestation: attestation,
	})
	if err != nil {
		return nil, err
	}

	accounts := solana.AccountMetaSlice{
		solana.Meta(payer).WRITE().SIGNER(),
		solana.Meta(payer).SIGNER(), // caller
		solana.Meta(pdas.AuthorityPDA),
		solana.Meta(pdas.MessageTransmitter),
		solana.Meta(pdas.UsedNonces).WRITE(),
		solana.Meta(messengerProgram), // receiver
		solana.Meta(solana.SystemProgramID),
		solana.Meta(pdas.TransmitterEventAuthority),
		solana.Meta(transmitterProgram),

		// Remaining accounts consumed by the receiver's handle_receive_message.
		solana.Meta(pdas.TokenMessenger),
		solana.Meta(pdas.RemoteTokenMessenger),
		solana.Meta(pdas.TokenMinter).WRITE(),
		solana.Meta(pdas.LocalToken).WRITE(),
		solana.Meta(pdas.TokenPair),
		solana.Meta(stealthATA).WRITE(),
		solana.Meta(pdas.Custody).WRITE(),
		solana.Meta(solana.TokenProgramID),
		solana.Meta(pdas.MessengerEventAuthority),
		solana.Meta(messengerProgram),
	}

	return solana.NewInstruction(transmitterProgram, accounts, data), nil
}

// buildAnnounceInstruction assembles the stealth program call that emits a
// PaymentEvent with announce=true for the credited amount.
func buildAnnounceInstruction(stealthProgram, stealthOwner, payer, mint, ephPub solana.PublicKey, amount uint64, label string) (solana.Instruction, error) {
	var labelBytes [32]byte
	copy(labelBytes[:], label)

	data, err := encodeInstructionData("announce", &announceArgs{
		Amount:    amount,
		Label:     labelBytes,
		EphPubkey: ephPub,
	})
	if err != nil {
		return nil, err
	}

	accounts := solana.AccountMetaSlice{
		solana.Meta(stealthOwner),
		solana.Meta(payer).WRITE().SIGNER(),
		solana.Meta(mint),
	}
	return solana.NewInstruction(stealthProgram, accounts, data), nil
}

// buildMemoInstruction writes the transport payload so the payee can recover
// the ephemeral key from chain history.
func buildMemoInstruction(payload string) solana.Instruction {
	return solana.NewInstruction(memoProgramID, solana.AccountMetaSlice{}, []byte(payload))
}
