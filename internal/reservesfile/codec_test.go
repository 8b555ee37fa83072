package reservesfile

import (
	"bytes"
	"encoding/hex"
	"os"
	"testing"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/dan/reserves/internal/reserveproof"
)

// validPubKey is a well-formed compressed public key (the secp256k1
// generator point); the PSBT decoder rejects bip32 derivation keys that do
// not parse as public keys.
var validPubKey, _ = hex.DecodeString("0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798")

func fakeHash(b byte) *chainhash.Hash {
	var raw [32]byte
	raw[0] = b
	h, _ := chainhash.NewHash(raw[:])
	return h
}

func buildFixture(t *testing.T) *ProofFile {
	t.Helper()

	p := reserveproof.New("audit-2024-q1")
	u := reserveproof.UTXO{
		Outpoint: wire.OutPoint{Hash: *fakeHash(7), Index: 2},
		PSBTInput: psbt.PInput{
			WitnessUtxo: &wire.TxOut{Value: 150000, PkScript: []byte{0x00, 0x14, 0x01, 0x02, 0x03}},
			Bip32Derivation: []*psbt.Bip32Derivation{
				{
					PubKey:               validPubKey,
					MasterKeyFingerprint: 0xdeadbeef,
					Bip32Path:            []uint32{84 + 1<<31, 0 + 1<<31, 0 + 1<<31, 0, 2},
				},
			},
		},
		BlockNumber: 800000,
		BlockHash:   fakeHash(9),
	}
	if err := p.AddUTXO(u); err != nil {
		t.Fatalf("AddUTXO: %v", err)
	}
	if err := p.StartSigning("audit-2024-q1-challenge"); err != nil {
		t.Fatalf("StartSigning: %v", err)
	}

	pf := New(NetworkTestnet, "audit-2024-q1-challenge", 800000)
	pf.Proofs = append(pf.Proofs, p)
	return pf
}

func TestProofFileRoundTrip(t *testing.T) {
	want := buildFixture(t)

	data, err := encodeProofFile(want)
	if err != nil {
		t.Fatalf("encodeProofFile: %v", err)
	}

	got, err := decodeProofFile(data)
	if err != nil {
		t.Fatalf("decodeProofFile: %v", err)
	}

	if got.Version != want.Version {
		t.Fatalf("version = %d, want %d", got.Version, want.Version)
	}
	if got.Network != want.Network {
		t.Fatalf("network = %v, want %v", got.Network, want.Network)
	}
	if got.Challenge != want.Challenge {
		t.Fatalf("challenge = %q, want %q", got.Challenge, want.Challenge)
	}
	if got.BlockNumber != want.BlockNumber {
		t.Fatalf("block_number = %d, want %d", got.BlockNumber, want.BlockNumber)
	}
	if len(got.Proofs) != 1 {
		t.Fatalf("proofs = %d, want 1", len(got.Proofs))
	}

	gp, wp := got.Proofs[0], want.Proofs[0]
	if gp.ID != wp.ID {
		t.Fatalf("proof id = %q, want %q", gp.ID, wp.ID)
	}
	if gp.Status != wp.Status {
		t.Fatalf("proof status = %v, want %v", gp.Status, wp.Status)
	}
	if len(gp.UTXOs) != 1 {
		t.Fatalf("utxos = %d, want 1", len(gp.UTXOs))
	}

	gu, wu := gp.UTXOs[0], wp.UTXOs[0]
	if gu.Outpoint != wu.Outpoint {
		t.Fatalf("outpoint = %v, want %v", gu.Outpoint, wu.Outpoint)
	}
	if gu.BlockNumber != wu.BlockNumber {
		t.Fatalf("utxo block_number = %d, want %d", gu.BlockNumber, wu.BlockNumber)
	}
	if gu.BlockHash == nil || wu.BlockHash == nil || *gu.BlockHash != *wu.BlockHash {
		t.Fatalf("block_hash = %v, want %v", gu.BlockHash, wu.BlockHash)
	}
	if gu.PSBTInput.WitnessUtxo == nil || gu.PSBTInput.WitnessUtxo.Value != wu.PSBTInput.WitnessUtxo.Value {
		t.Fatalf("witness_utxo value mismatch")
	}
	if !bytes.Equal(gu.PSBTInput.WitnessUtxo.PkScript, wu.PSBTInput.WitnessUtxo.PkScript) {
		t.Fatalf("witness_utxo script mismatch")
	}
	if len(gu.PSBTInput.Bip32Derivation) != 1 {
		t.Fatalf("bip32_derivation entries = %d, want 1", len(gu.PSBTInput.Bip32Derivation))
	}
	gd, wd := gu.PSBTInput.Bip32Derivation[0], wu.PSBTInput.Bip32Derivation[0]
	if !bytes.Equal(gd.PubKey, wd.PubKey) {
		t.Fatalf("bip32 pubkey mismatch")
	}
	if gd.MasterKeyFingerprint != wd.MasterKeyFingerprint {
		t.Fatalf("bip32 fingerprint = %x, want %x", gd.MasterKeyFingerprint, wd.MasterKeyFingerprint)
	}
	if len(gd.Bip32Path) != len(wd.Bip32Path) {
		t.Fatalf("bip32 path length = %d, want %d", len(gd.Bip32Path), len(wd.Bip32Path))
	}
	for i := range gd.Bip32Path {
		if gd.Bip32Path[i] != wd.Bip32Path[i] {
			t.Fatalf("bip32 path[%d] = %d, want %d", i, gd.Bip32Path[i], wd.Bip32Path[i])
		}
	}

	if gp.PSBT == nil {
		t.Fatal("psbt not restored")
	}
	if len(gp.PSBT.Inputs) != len(wp.PSBT.Inputs) {
		t.Fatalf("psbt input count = %d, want %d", len(gp.PSBT.Inputs), len(wp.PSBT.Inputs))
	}
}

func TestLoadRejectsWrongVersion(t *testing.T) {
	pf := New(NetworkMainnet, "c", 0)
	pf.Version = 99
	data, err := encodeProofFile(pf)
	if err != nil {
		t.Fatalf("encodeProofFile: %v", err)
	}

	path := t.TempDir() + "/proof.bin"
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("os.WriteFile: %v", err)
	}

	_, err = Load(path)
	if err == nil {
		t.Fatal("expected version mismatch error")
	}
}
