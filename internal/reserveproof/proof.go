// Package reserveproof implements the per-proof state machine: a set of
// UTXOs in status GATHERING_UTXOS that StartSigning turns into a PSBT whose
// first input is the synthetic challenge binding, and that a backend later
// turns into a fully-witnessed proof transaction in status FINAL.
package reserveproof

import (
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/dan/reserves/internal/challenge"
	"github.com/dan/reserves/internal/reserveerr"
)

// Status is a proof's position in its one-way state machine.
type Status int

const (
	StatusUndefined Status = iota
	StatusGatheringUTXOs
	StatusSigning
	StatusFinal
)

func (s Status) String() string {
	switch s {
	case StatusGatheringUTXOs:
		return "GATHERING_UTXOS"
	case StatusSigning:
		return "SIGNING"
	case StatusFinal:
		return "FINAL"
	default:
		return "UNDEFINED"
	}
}

// UTXO is one output under proof: its outpoint, the PSBT input metadata
// needed to sign and verify it, and block-locator hints the resolver uses
// to re-derive its prevout at verify time.
type UTXO struct {
	Outpoint    wire.OutPoint
	PSBTInput   psbt.PInput
	BlockNumber uint32
	BlockHash   *chainhash.Hash
}

// Proof is a single proof within a ProofFile.
type Proof struct {
	ID      string
	Status  Status
	UTXOs   []UTXO
	PSBT    *psbt.Packet
	ProofTx *wire.MsgTx
}

// New creates an empty proof in status GATHERING_UTXOS.
func New(id string) *Proof {
	return &Proof{ID: id, Status: StatusGatheringUTXOs}
}

// AddUTXO appends u, rejecting a duplicate outpoint or a proof not in
// GATHERING_UTXOS.
func (p *Proof) AddUTXO(u UTXO) error {
	if p.Status != StatusGatheringUTXOs {
		return reserveerr.Wrapf(reserveerr.KindState, nil, "proof %q: add-utxo requires status GATHERING_UTXOS, got %s", p.ID, p.Status)
	}
	for _, existing := range p.UTXOs {
		if existing.Outpoint == u.Outpoint {
			return reserveerr.Wrapf(reserveerr.KindDuplicate, nil, "proof %q: outpoint %s already present", p.ID, u.Outpoint)
		}
	}
	p.UTXOs = append(p.UTXOs, u)
	return nil
}

// DropUTXOs removes every UTXO whose outpoint is in outpoints, reporting how
// many were actually removed.
func (p *Proof) DropUTXOs(outpoints []wire.OutPoint) (int, error) {
	if p.Status != StatusGatheringUTXOs {
		return 0, reserveerr.Wrapf(reserveerr.KindState, nil, "proof %q: drop-utxos requires status GATHERING_UTXOS, got %s", p.ID, p.Status)
	}
	want := make(map[wire.OutPoint]struct{}, len(outpoints))
	for _, op := range outpoints {
		want[op] = struct{}{}
	}

	kept := p.UTXOs[:0]
	dropped := 0
	for _, u := range p.UTXOs {
		if _, match := want[u.Outpoint]; match {
			dropped++
			continue
		}
		kept = append(kept, u)
	}
	p.UTXOs = kept
	return dropped, nil
}

// StartSigning builds the unsigned proof transaction and its PSBT wrapper:
// input[0] is the challenge binding with a fictive OP_TRUE witness prevout,
// inputs[1:] are the real UTXOs in order, and the sole output sums their
// values under an OP_FALSE sink script. Advances status to SIGNING.
func (p *Proof) StartSigning(challengeStr string) error {
	if p.Status != StatusGatheringUTXOs {
		return reserveerr.Wrapf(reserveerr.KindState, nil, "proof %q: start-signing requires status GATHERING_UTXOS, got %s", p.ID, p.Status)
	}
	if len(p.UTXOs) == 0 {
		return reserveerr.Wrapf(reserveerr.KindState, nil, "proof %q: cannot start signing with zero UTXOs", p.ID)
	}

	tx := wire.NewMsgTx(1)
	tx.LockTime = challenge.SequenceFinal

	tx.AddTxIn(challenge.TxIn(challengeStr))

	var total int64
	for _, u := range p.UTXOs {
		outpoint := u.Outpoint
		in := wire.NewTxIn(&outpoint, nil, nil)
		in.Sequence = challenge.SequenceFinal
		tx.AddTxIn(in)
		total += utxoValue(u)
	}

	tx.AddTxOut(wire.NewTxOut(total, challenge.SinkScript()))

	pkt, err := psbt.NewFromUnsignedTx(tx)
	if err != nil {
		return reserveerr.Wrapf(reserveerr.KindDecode, err, "proof %q: building PSBT", p.ID)
	}

	pkt.Inputs[0].WitnessUtxo = &wire.TxOut{Value: 0, PkScript: challenge.Script()}
	pkt.Inputs[0].WitnessScript = nil
	pkt.Inputs[0].FinalScriptSig = nil

	for i, u := range p.UTXOs {
		pkt.Inputs[i+1] = u.PSBTInput
	}

	p.PSBT = pkt
	p.Status = StatusSigning
	return nil
}

// SpendingUTXOs returns the set of outpoints proof_tx spends, excluding the
// challenge input at index 0. Requires status FINAL.
func (p *Proof) SpendingUTXOs() (map[wire.OutPoint]struct{}, error) {
	if p.Status != StatusFinal || p.ProofTx == nil {
		return nil, reserveerr.Wrapf(reserveerr.KindState, nil, "proof %q: spending-utxos requires status FINAL", p.ID)
	}
	set := make(map[wire.OutPoint]struct{}, len(p.ProofTx.TxIn)-1)
	for _, in := range p.ProofTx.TxIn[1:] {
		if _, dup := set[in.PreviousOutPoint]; dup {
			return nil, reserveerr.Wrapf(reserveerr.KindDuplicate, nil, "proof %q: proof_tx spends outpoint %s twice internally", p.ID, in.PreviousOutPoint)
		}
		set[in.PreviousOutPoint] = struct{}{}
	}
	return set, nil
}

// Finalize installs a fully-witnessed transaction produced by a signing
// backend as the proof's final transaction, advancing status to FINAL.
// tx.TxIn[0].SignatureScript must be empty, per the backend contract.
func (p *Proof) Finalize(tx *wire.MsgTx) error {
	if p.Status != StatusSigning {
		return reserveerr.Wrapf(reserveerr.KindState, nil, "proof %q: finalize requires status SIGNING, got %s", p.ID, p.Status)
	}
	if len(tx.TxIn) == 0 || len(tx.TxIn[0].SignatureScript) != 0 {
		return reserveerr.Wrapf(reserveerr.KindBackend, nil, "proof %q: backend returned a signed challenge input", p.ID)
	}
	p.ProofTx = tx
	p.Status = StatusFinal
	return nil
}

// AdoptFinal installs tx directly as a FINAL proof (the add-proof command's
// path), bypassing GATHERING/SIGNING. Caller is responsible for validating
// the challenge binding before calling this.
func AdoptFinal(id string, tx *wire.MsgTx) *Proof {
	return &Proof{ID: id, Status: StatusFinal, ProofTx: tx}
}

func utxoValue(u UTXO) int64 {
	if u.PSBTInput.WitnessUtxo != nil {
		return u.PSBTInput.WitnessUtxo.Value
	}
	if u.PSBTInput.NonWitnessUtxo != nil && int(u.Outpoint.Index) < len(u.PSBTInput.NonWitnessUtxo.TxOut) {
		return u.PSBTInput.NonWitnessUtxo.TxOut[u.Outpoint.Index].Value
	}
	return 0
}
