package reserveproof

import (
	"errors"
	"testing"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/dan/reserves/internal/reserveerr"
)

func utxoFixture(t *testing.T, txidByte byte, vout uint32, value int64) UTXO {
	t.Helper()
	var raw [32]byte
	raw[0] = txidByte
	hash, err := chainhash.NewHash(raw[:])
	if err != nil {
		t.Fatalf("NewHash: %v", err)
	}
	return UTXO{
		Outpoint: wire.OutPoint{Hash: *hash, Index: vout},
		PSBTInput: psbt.PInput{
			WitnessUtxo: &wire.TxOut{Value: value, PkScript: []byte{0x00, 0x14}},
		},
	}
}

func TestAddUTXORejectsDuplicate(t *testing.T) {
	p := New("default")
	u := utxoFixture(t, 1, 0, 1000)
	if err := p.AddUTXO(u); err != nil {
		t.Fatalf("first add: %v", err)
	}
	err := p.AddUTXO(u)
	if !errors.Is(err, reserveerr.KindDuplicate) {
		t.Fatalf("expected KindDuplicate, got %v", err)
	}
}

func TestAddUTXORejectsWrongStatus(t *testing.T) {
	p := New("default")
	p.Status = StatusSigning
	err := p.AddUTXO(utxoFixture(t, 1, 0, 1000))
	if !errors.Is(err, reserveerr.KindState) {
		t.Fatalf("expected KindState, got %v", err)
	}
}

func TestDropUTXOsCount(t *testing.T) {
	p := New("default")
	a := utxoFixture(t, 1, 0, 1000)
	b := utxoFixture(t, 2, 0, 2000)
	p.AddUTXO(a)
	p.AddUTXO(b)

	n, err := p.DropUTXOs([]wire.OutPoint{a.Outpoint})
	if err != nil {
		t.Fatalf("DropUTXOs: %v", err)
	}
	if n != 1 {
		t.Fatalf("dropped = %d, want 1", n)
	}
	if len(p.UTXOs) != 1 || p.UTXOs[0].Outpoint != b.Outpoint {
		t.Fatalf("unexpected remaining UTXOs: %+v", p.UTXOs)
	}
}

func TestStartSigningShape(t *testing.T) {
	p := New("default")
	p.AddUTXO(utxoFixture(t, 1, 0, 50000))
	p.AddUTXO(utxoFixture(t, 2, 1, 70000))

	if err := p.StartSigning("audit-2024-01"); err != nil {
		t.Fatalf("StartSigning: %v", err)
	}
	if p.Status != StatusSigning {
		t.Fatalf("status = %s, want SIGNING", p.Status)
	}
	if p.PSBT == nil {
		t.Fatal("PSBT not set")
	}
	if got, want := len(p.PSBT.Inputs), 1+len(p.UTXOs); got != want {
		t.Fatalf("psbt inputs = %d, want %d", got, want)
	}
	if got := len(p.PSBT.UnsignedTx.TxOut); got != 1 {
		t.Fatalf("psbt outputs = %d, want 1", got)
	}
	if got, want := p.PSBT.UnsignedTx.TxOut[0].Value, int64(120000); got != want {
		t.Fatalf("output value = %d, want %d", got, want)
	}
	if p.PSBT.UnsignedTx.Version != 1 {
		t.Fatalf("tx version = %d, want 1", p.PSBT.UnsignedTx.Version)
	}
	if p.PSBT.UnsignedTx.LockTime != 0xFFFFFFFF {
		t.Fatalf("tx locktime = %x, want 0xFFFFFFFF", p.PSBT.UnsignedTx.LockTime)
	}
}

func TestStartSigningRequiresUTXOs(t *testing.T) {
	p := New("default")
	err := p.StartSigning("audit-2024-01")
	if !errors.Is(err, reserveerr.KindState) {
		t.Fatalf("expected KindState for empty proof, got %v", err)
	}
}

func TestFinalizeRejectsSignedChallengeInput(t *testing.T) {
	p := New("default")
	p.AddUTXO(utxoFixture(t, 1, 0, 1000))
	if err := p.StartSigning("c"); err != nil {
		t.Fatalf("StartSigning: %v", err)
	}

	tx := p.PSBT.UnsignedTx.Copy()
	tx.TxIn[0].SignatureScript = []byte{0x01}

	err := p.Finalize(tx)
	if !errors.Is(err, reserveerr.KindBackend) {
		t.Fatalf("expected KindBackend, got %v", err)
	}
}

func TestSpendingUTXOsRequiresFinal(t *testing.T) {
	p := New("default")
	_, err := p.SpendingUTXOs()
	if !errors.Is(err, reserveerr.KindState) {
		t.Fatalf("expected KindState, got %v", err)
	}
}
