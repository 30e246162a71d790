package settlement

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"stealthpay/internal/curve"
	"stealthpay/internal/model"
	"stealthpay/internal/resolver"
	"stealthpay/internal/stealth"
	"stealthpay/internal/store"
)

// fakeChain records submissions and serves a fixed post-receive balance.
type fakeChain struct {
	mu        sync.Mutex
	balance   uint64
	sendErr   error
	submitted [][]solana.PublicKey // program ids per submitted transaction
	sigSeq    byte
}

func (f *fakeChain) EnsureATA(_ context.Context, _ solana.PrivateKey, _, _ solana.PublicKey) (solana.PublicKey, error) {
	return solana.PublicKey{}, nil
}

func (f *fakeChain) TokenBalance(_ context.Context, _ solana.PublicKey) (uint64, error) {
	return f.balance, nil
}

func (f *fakeChain) SendAndConfirm(_ context.Context, _ solana.PrivateKey, build func(blockhash solana.Hash) (*solana.Transaction, error)) (solana.Signature, error) {
	if f.sendErr != nil {
		return solana.Signature{}, f.sendErr
	}
	tx, err := build(solana.Hash{})
	if err != nil {
		return solana.Signature{}, err
	}

	var programs []solana.PublicKey
	for _, ix := range tx.Message.Instructions {
		programs = append(programs, tx.Message.AccountKeys[ix.ProgramIDIndex])
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, programs)
	f.sigSeq++
	var sig solana.Signature
	sig[0] = f.sigSeq
	return sig, nil
}

func (f *fakeChain) Transaction(_ context.Context, _ solana.Signature) (*rpc.GetTransactionResult, error) {
	return &rpc.GetTransactionResult{Slot: 42}, nil
}

// testUser registers meta keys and returns the directory record.
func testUser(t *testing.T, id string) model.User {
	t.Helper()
	spendSeed := make([]byte, curve.KeySize)
	viewSeed := make([]byte, curve.KeySize)
	_, err := rand.Read(spendSeed)
	require.NoError(t, err)
	_, err = rand.Read(viewSeed)
	require.NoError(t, err)

	spendPriv, spendPub, err := curve.KeypairFromSeed(spendSeed)
	require.NoError(t, err)
	viewPriv, viewPub, err := curve.KeypairFromSeed(viewSeed)
	require.NoError(t, err)

	return model.User{
		ID:            id,
		WalletChain:   model.WalletChainSolana,
		MetaSpendPub:  base58.Encode(spendPub),
		MetaSpendPriv: base58.Encode(spendPriv),
		MetaViewPub:   base58.Encode(viewPub),
		MetaViewPriv:  base58.Encode(viewPriv),
	}
}

func testTransfer(t *testing.T, u model.User, amount uint64) Transfer {
	t.Helper()
	eph, err := stealth.GenerateEphemeral()
	require.NoError(t, err)
	spendPub, err := stealth.ParseKey(u.MetaSpendPub)
	require.NoError(t, err)
	viewPub, err := stealth.ParseKey(u.MetaViewPub)
	require.NoError(t, err)
	_, address, err := stealth.DerivePub(spendPub, viewPub, eph.Priv)
	require.NoError(t, err)
	memo, err := stealth.EncryptTransport(eph.Priv, viewPub)
	require.NoError(t, err)

	owner := solana.MustPublicKeyFromBase58(address)
	ata, _, err := solana.FindAssociatedTokenAddress(owner, usdcMintForTest)
	require.NoError(t, err)

	return Transfer{
		SrcDomain:          0,
		SrcTxHash:          "0xabc123",
		Amount:             amount,
		StealthOwner:       owner,
		StealthATA:         ata,
		EphPub:             solana.PublicKeyFromBytes(eph.Pub),
		TransportMemo:      memo,
		Label:              "",
		RemoteUSDCHex:      "0x" + hex.EncodeToString(make([]byte, 32)),
		TransmitterProgram: transmitterForTest,
		MessengerProgram:   messengerForTest,
		Attestation: Attestation{
			Message:     "0xdeadbeef",
			Attestation: "0xfeedface",
			EventNonce:  42,
		},
	}
}

var (
	usdcMintForTest    = solana.MustPublicKeyFromBase58("4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU")
	stealthProgForTest = solana.MPK("11111111111111111111111111111111")
	transmitterForTest = mustRandomKey()
	messengerForTest   = mustRandomKey()
)

func mustRandomKey() solana.PublicKey {
	k, err := solana.NewRandomPrivateKey()
	if err != nil {
		panic(err)
	}
	return k.PublicKey()
}

func newTestOrchestrator(t *testing.T, chain *fakeChain, db *store.Memory) *Orchestrator {
	t.Helper()
	log := zap.NewNop()
	feePayer, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return NewOrchestrator(chain, db, resolver.New(db, log), log, feePayer,
		model.ChainSolanaDevnet, stealthProgForTest, usdcMintForTest)
}

func TestSettleHappyPath(t *testing.T) {
	db := store.NewMemory()
	user := testUser(t, "u1")
	db.AddUser(user)

	chain := &fakeChain{balance: 1_000_000}
	o := newTestOrchestrator(t, chain, db)
	transfer := testTransfer(t, user, 1_000_000)

	require.NoError(t, o.Settle(context.Background(), transfer))

	// Receive leg first, then the memo+announce transaction.
	require.Len(t, chain.submitted, 2)
	assert.Contains(t, chain.submitted[0], transfer.TransmitterProgram)
	assert.Contains(t, chain.submitted[1], memoProgramID)
	assert.Contains(t, chain.submitted[1], stealthProgForTest)

	require.Equal(t, 1, db.PaymentCount())
	pending, err := db.FindUnprocessedPayments(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending, "settled payment should be attributed immediately")
}

func TestSettleAnnouncesActualCreditedAmount(t *testing.T) {
	db := store.NewMemory()
	user := testUser(t, "u1")
	db.AddUser(user)

	// The account held dust before the bridge credit landed.
	chain := &fakeChain{balance: 1_000_050}
	o := newTestOrchestrator(t, chain, db)
	transfer := testTransfer(t, user, 1_000_000)

	require.NoError(t, o.Settle(context.Background(), transfer))

	var sig solana.Signature
	sig[0] = 2 // second submitted transaction is the announce
	p := db.Payment(sig.String())
	require.NotNil(t, p)
	assert.Equal(t, "1000050", p.Amount)
	assert.True(t, p.Announce)
	assert.Equal(t, transfer.StealthOwner.String(), p.StealthOwner)
}

func TestSettleUsesLinkLabel(t *testing.T) {
	db := store.NewMemory()
	user := testUser(t, "u1")
	db.AddUser(user)
	db.AddLink(model.Link{ID: "lnk1", UserID: user.ID, Tag: "tips"})

	chain := &fakeChain{balance: 2_000_000}
	o := newTestOrchestrator(t, chain, db)
	transfer := testTransfer(t, user, 2_000_000)
	transfer.LinkID = "lnk1"

	require.NoError(t, o.Settle(context.Background(), transfer))

	var sig solana.Signature
	sig[0] = 2
	p := db.Payment(sig.String())
	require.NotNil(t, p)
	assert.Equal(t, "tips", p.Label, "announce carries the link's tag")
	assert.True(t, p.IsProcessed)
	assert.Equal(t, "lnk1", p.LinkID, "payment attributes back to the target link")
}

func TestSettleUnknownLinkRejected(t *testing.T) {
	db := store.NewMemory()
	user := testUser(t, "u1")
	db.AddUser(user)

	chain := &fakeChain{balance: 100}
	o := newTestOrchestrator(t, chain, db)
	transfer := testTransfer(t, user, 100)
	transfer.LinkID = "no-such-link"

	err := o.Settle(context.Background(), transfer)
	require.ErrorIs(t, err, ErrInvalidTransfer)
	assert.Empty(t, chain.submitted, "an unknown link must not sign anything")
	assert.Equal(t, 0, db.PaymentCount())
}

func TestSettleInsufficientCreditAbortsBeforeAnnounce(t *testing.T) {
	db := store.NewMemory()
	chain := &fakeChain{balance: 999_999}
	o := newTestOrchestrator(t, chain, db)
	transfer := testTransfer(t, testUser(t, "u1"), 1_000_000)

	err := o.Settle(context.Background(), transfer)
	require.ErrorIs(t, err, ErrInsufficientCredit)

	assert.Len(t, chain.submitted, 1, "only the receive leg may have been sent")
	assert.Equal(t, 0, db.PaymentCount())
}

func TestSettleSubmitFailure(t *testing.T) {
	db := store.NewMemory()
	chain := &fakeChain{sendErr: errors.New("custom program error: 0x1")}
	o := newTestOrchestrator(t, chain, db)

	err := o.Settle(context.Background(), testTransfer(t, testUser(t, "u1"), 100))
	require.ErrorIs(t, err, ErrSettlementFailed)
	assert.Equal(t, 0, db.PaymentCount())
}

func TestSettleValidation(t *testing.T) {
	db := store.NewMemory()
	chain := &fakeChain{balance: 100}
	o := newTestOrchestrator(t, chain, db)
	user := testUser(t, "u1")

	cases := []struct {
		name   string
		mutate func(*Transfer)
	}{
		{"bad attestation message", func(t *Transfer) { t.Attestation.Message = "zzzz" }},
		{"empty attestation signature", func(t *Transfer) { t.Attestation.Attestation = "0x" }},
		{"zero nonce", func(t *Transfer) { t.Attestation.EventNonce = 0 }},
		{"zero amount", func(t *Transfer) { t.Amount = 0 }},
		{"missing owner", func(t *Transfer) { t.StealthOwner = solana.PublicKey{} }},
		{"missing bridge programs", func(t *Transfer) { t.TransmitterProgram = solana.PublicKey{} }},
		{"short remote token", func(t *Transfer) { t.RemoteUSDCHex = "0xdead" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			transfer := testTransfer(t, user, 100)
			tc.mutate(&transfer)
			err := o.Settle(context.Background(), transfer)
			require.ErrorIs(t, err, ErrInvalidTransfer)
		})
	}
	assert.Empty(t, chain.submitted, "validation failures must not sign anything")
}

func TestFirstNonceWindows(t *testing.T) {
	assert.Equal(t, uint64(1), firstNonce(1))
	assert.Equal(t, uint64(1), firstNonce(6400))
	assert.Equal(t, uint64(6401), firstNonce(6401))
	assert.Equal(t, uint64(6401), firstNonce(12800))
	assert.Equal(t, uint64(12801), firstNonce(12801))
}

func TestDeriveReceivePDAs(t *testing.T) {
	remote, err := remoteTokenKey("0x" + hex.EncodeToString(make([]byte, 32)))
	require.NoError(t, err)

	a, err := deriveReceivePDAs(transmitterForTest, messengerForTest, usdcMintForTest, remote, 0, 100)
	require.NoError(t, err)
	b, err := deriveReceivePDAs(transmitterForTest, messengerForTest, usdcMintForTest, remote, 0, 200)
	require.NoError(t, err)

	// Nonces 100 and 200 share a used-nonces window; everything matches.
	assert.Equal(t, a, b)

	c, err := deriveReceivePDAs(transmitterForTest, messengerForTest, usdcMintForTest, remote, 0, 7000)
	require.NoError(t, err)
	assert.NotEqual(t, a.UsedNonces, c.UsedNonces)
	assert.Equal(t, a.MessageTransmitter, c.MessageTransmitter)
}

func TestRemoteTokenKey(t *testing.T) {
	_, err := remoteTokenKey("0xdead")
	require.Error(t, err)
	_, err = remoteTokenKey("not hex")
	require.Error(t, err)

	key, err := remoteTokenKey(hex.EncodeToString(make([]byte, 32)))
	require.NoError(t, err)
	assert.True(t, key.IsZero())
}

func TestAnnounceInstructionData(t *testing.T) {
	eph := mustRandomKey()
	ix, err := buildAnnounceInstruction(stealthProgForTest, mustRandomKey(), mustRandomKey(), usdcMintForTest, eph, 555, "tips")
	require.NoError(t, err)

	data, err := ix.Data()
	require.NoError(t, err)
	require.Equal(t, instructionDiscriminator("announce"), data[:8])

	var args announceArgs
	require.NoError(t, bin.NewBorshDecoder(data[8:]).Decode(&args))
	assert.Equal(t, uint64(555), args.Amount)
	assert.Equal(t, eph, args.EphPubkey)
	assert.Equal(t, "tips", string(args.Label[:4]))
	assert.Equal(t, [28]byte{}, [28]byte(args.Label[4:]), "label is NUL padded")
}

func TestQueueSettlesConcurrently(t *testing.T) {
	db := store.NewMemory()
	user := testUser(t, "u1")
	db.AddUser(user)

	chain := &fakeChain{balance: 100}
	o := newTestOrchestrator(t, chain, db)
	q := NewQueue(o, zap.NewNop(), 2, 4)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- q.Run(ctx) }()

	for i := 0; i < 3; i++ {
		transfer := testTransfer(t, user, 100)
		transfer.ID = strconv.Itoa(i)
		require.NoError(t, q.Submit(ctx, transfer))
	}

	// Settlements are fire-and-forget; wait for the store to observe them.
	require.Eventually(t, func() bool {
		return db.PaymentCount() == 3
	}, time.Second*5, time.Millisecond*10)

	cancel()
	<-done
}
