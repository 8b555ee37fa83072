package verifier

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/hashicorp/go-hclog"

	"github.com/dan/reserves/internal/reserveerr"
	"github.com/dan/reserves/internal/reserveproof"
)

func fakeOutpoint(t *testing.T, b byte, vout uint32) wire.OutPoint {
	t.Helper()
	var raw [32]byte
	raw[0] = b
	hash, err := chainhash.NewHash(raw[:])
	if err != nil {
		t.Fatalf("NewHash: %v", err)
	}
	return wire.OutPoint{Hash: *hash, Index: vout}
}

// buildSignedProof constructs a single-UTXO proof whose real input is a
// P2WPKH output signed with a freshly generated key, giving verifier tests a
// script program that genuinely executes under consensus rules. Any
// beforeSign functions run on the unsigned transaction before it is signed.
func buildSignedProof(t *testing.T, challengeStr string, value int64, beforeSign ...func(*wire.MsgTx)) (*reserveproof.Proof, []Prevout) {
	t.Helper()

	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("NewPrivateKey: %v", err)
	}
	pubKeyHash := btcec.PublicKey(*priv.PubKey()).SerializeCompressed()
	script, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_0).
		AddData(btcHash160(pubKeyHash)).
		Script()
	if err != nil {
		t.Fatalf("building p2wpkh script: %v", err)
	}

	op := fakeOutpoint(t, 5, 1)

	p := reserveproof.New("audit-test")
	if err := p.AddUTXO(reserveproof.UTXO{
		Outpoint: op,
		PSBTInput: psbt.PInput{
			WitnessUtxo: &wire.TxOut{Value: value, PkScript: script},
		},
	}); err != nil {
		t.Fatalf("AddUTXO: %v", err)
	}
	if err := p.StartSigning(challengeStr); err != nil {
		t.Fatalf("StartSigning: %v", err)
	}

	tx := p.PSBT.UnsignedTx.Copy()
	for _, f := range beforeSign {
		f(tx)
	}

	prevOuts := map[wire.OutPoint]*wire.TxOut{
		tx.TxIn[1].PreviousOutPoint: {Value: value, PkScript: script},
	}
	prevOutFetcher := txscript.NewMultiPrevOutFetcher(prevOuts)
	sigHashes := txscript.NewTxSigHashes(tx, prevOutFetcher)

	witness, err := txscript.WitnessSignature(tx, sigHashes, 1, value, script, txscript.SigHashAll, priv, true)
	if err != nil {
		t.Fatalf("WitnessSignature: %v", err)
	}
	tx.TxIn[1].Witness = witness

	if err := p.Finalize(tx); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	return p, []Prevout{{Value: value, PkScript: script}}
}

func btcHash160(b []byte) []byte {
	return btcutil.Hash160(b)
}

func TestVerifySucceeds(t *testing.T) {
	p, prevouts := buildSignedProof(t, "audit-2024", 100000)
	logger := hclog.NewNullLogger()

	result, err := Verify(logger, "audit-2024", p, prevouts)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.Total != 100000 {
		t.Fatalf("total = %d, want 100000", result.Total)
	}
}

func TestVerifyFailsOnTamperedWitness(t *testing.T) {
	p, prevouts := buildSignedProof(t, "audit-2024", 100000)
	p.ProofTx.TxIn[1].Witness[0][0] ^= 0xFF

	_, err := Verify(hclog.NewNullLogger(), "audit-2024", p, prevouts)
	if err == nil {
		t.Fatal("expected verification failure on tampered witness")
	}
	if !errIsKind(err, reserveerr.KindConsensus) {
		t.Fatalf("expected KindConsensus, got %v", err)
	}
}

func TestVerifyFailsOnChallengeMismatch(t *testing.T) {
	p, prevouts := buildSignedProof(t, "audit-2024", 100000)

	_, err := Verify(hclog.NewNullLogger(), "different-challenge", p, prevouts)
	if !errIsKind(err, reserveerr.KindChallengeMismatch) {
		t.Fatalf("expected KindChallengeMismatch, got %v", err)
	}
}

func TestVerifyFailsOnAmountMismatch(t *testing.T) {
	// The output is changed before signing so the signature commits to it
	// and the script check passes, leaving the amount check to fail.
	p, prevouts := buildSignedProof(t, "audit-2024", 100000, func(tx *wire.MsgTx) {
		tx.TxOut[0].Value = 1
	})

	_, err := Verify(hclog.NewNullLogger(), "audit-2024", p, prevouts)
	if !errIsKind(err, reserveerr.KindAmount) {
		t.Fatalf("expected KindAmount, got %v", err)
	}
}

func TestCheckGlobalUniquenessDetectsSharedOutpoint(t *testing.T) {
	a, _ := buildSignedProof(t, "audit-a", 1000)
	b, _ := buildSignedProof(t, "audit-b", 2000)
	b.ProofTx.TxIn[1].PreviousOutPoint = a.ProofTx.TxIn[1].PreviousOutPoint

	err := CheckGlobalUniqueness([]*reserveproof.Proof{a, b})
	if !errIsKind(err, reserveerr.KindDuplicate) {
		t.Fatalf("expected KindDuplicate, got %v", err)
	}
}

func errIsKind(err error, kind reserveerr.Kind) bool {
	type causer interface{ Is(error) bool }
	c, ok := err.(causer)
	return ok && c.Is(kind)
}
