package hwdevice

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/hashicorp/go-hclog"

	"github.com/dan/reserves/internal/challenge"
)

// fakeDevice replays a fixed script of requests, recording every response
// it is given so the test can assert the driver answered correctly.
type fakeDevice struct {
	script    []*Request
	pos       int
	responses []*Response
	opened    bool
}

func (f *fakeDevice) Open() error  { f.opened = true; return nil }
func (f *fakeDevice) Close() error { f.opened = false; return nil }

func (f *fakeDevice) Begin(tx *wire.MsgTx, params *chaincfg.Params) (*Request, error) {
	return f.script[0], nil
}

func (f *fakeDevice) Next(resp *Response) (*Request, error) {
	f.responses = append(f.responses, resp)
	f.pos++
	if f.pos >= len(f.script) {
		return nil, nil
	}
	return f.script[f.pos], nil
}

type fakePrompter struct {
	pin string
}

func (p *fakePrompter) Confirm(prompt string) error { return nil }
func (p *fakePrompter) ReadSecret(prompt string) (string, error) {
	return p.pin, nil
}

func buildFixturePacket(t *testing.T, challengeStr string, utxoValue int64) *psbt.Packet {
	t.Helper()
	tx := wire.NewMsgTx(1)
	tx.AddTxIn(challenge.TxIn(challengeStr))

	var rawHash [32]byte
	rawHash[0] = 0xAB
	hash, err := chainhash.NewHash(rawHash[:])
	if err != nil {
		t.Fatalf("NewHash: %v", err)
	}
	realIn := wire.NewTxIn(wire.NewOutPoint(hash, 0), nil, nil)
	tx.AddTxIn(realIn)
	tx.AddTxOut(wire.NewTxOut(utxoValue, challenge.SinkScript()))

	pkt, err := psbt.NewFromUnsignedTx(tx)
	if err != nil {
		t.Fatalf("NewFromUnsignedTx: %v", err)
	}
	pkt.Inputs[0].WitnessUtxo = &wire.TxOut{Value: 0, PkScript: challenge.Script()}
	pkt.Inputs[1].WitnessUtxo = &wire.TxOut{Value: utxoValue, PkScript: []byte{0x00, 0x14}}
	return pkt
}

func serializedFixtureTx(t *testing.T, tx *wire.MsgTx) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		t.Fatalf("serialize: %v", err)
	}
	return buf.Bytes()
}

func TestDriverLiesAboutChallengeInput(t *testing.T) {
	pkt := buildFixturePacket(t, "audit-2024-01", 100000)
	signedChunk := serializedFixtureTx(t, pkt.UnsignedTx)

	device := &fakeDevice{script: []*Request{
		{Kind: RequestTxInput, InputIndex: 0},
		{Kind: RequestTxInput, InputIndex: 1},
		{Kind: RequestTxOutput, OutputIndex: 0},
		{Kind: RequestTxChunk, Chunk: signedChunk},
		{Kind: RequestFinished},
	}}

	driver := NewDriver(hclog.NewNullLogger(), device, &fakePrompter{})
	tx, err := driver.SignTx(pkt, &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("SignTx: %v", err)
	}

	if len(tx.TxIn[0].SignatureScript) != 0 {
		t.Fatalf("challenge input must have empty script_sig after signing, got %x", tx.TxIn[0].SignatureScript)
	}

	wantOutpoint := pkt.UnsignedTx.TxIn[0].PreviousOutPoint
	gotLie := device.responses[0].Input
	if gotLie == nil {
		t.Fatalf("expected an input descriptor for request 0, got nil")
	}
	if gotLie.PrevHash != wantOutpoint.Hash || gotLie.PrevIndex != wantOutpoint.Index {
		t.Fatalf("challenge lie outpoint = %s:%d, want %s:%d", gotLie.PrevHash, gotLie.PrevIndex, wantOutpoint.Hash, wantOutpoint.Index)
	}
	if gotLie.Amount != 0 {
		t.Fatalf("challenge lie amount = %d, want 0", gotLie.Amount)
	}
	if gotLie.ScriptType != ScriptTypeSpendWitness {
		t.Fatalf("challenge lie script type = %d, want ScriptTypeSpendWitness", gotLie.ScriptType)
	}

	gotReal := device.responses[1].Input
	if gotReal == nil || gotReal.Amount != 100000 {
		t.Fatalf("expected real input descriptor with amount 100000, got %+v", gotReal)
	}
}

func TestDriverForwardsPINRequest(t *testing.T) {
	pkt := buildFixturePacket(t, "audit-2024-02", 50000)
	signedChunk := serializedFixtureTx(t, pkt.UnsignedTx)

	device := &fakeDevice{script: []*Request{
		{Kind: RequestPIN, Prompt: "enter pin"},
		{Kind: RequestTxInput, InputIndex: 0},
		{Kind: RequestTxInput, InputIndex: 1},
		{Kind: RequestTxOutput, OutputIndex: 0},
		{Kind: RequestTxChunk, Chunk: signedChunk},
		{Kind: RequestFinished},
	}}

	driver := NewDriver(hclog.NewNullLogger(), device, &fakePrompter{pin: "1234"})
	_, err := driver.SignTx(pkt, &chaincfg.TestNet3Params)
	if err != nil {
		t.Fatalf("SignTx: %v", err)
	}

	if device.responses[0].PIN != "1234" {
		t.Fatalf("PIN response = %q, want 1234", device.responses[0].PIN)
	}
}
