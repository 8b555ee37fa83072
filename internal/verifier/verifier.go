// Package verifier checks a FINAL proof against consensus rules: every
// non-challenge input must execute against its resolved prevout, and the
// claimed reserve (the sole output) must equal the sum of those prevouts
// exactly. A file-scope check additionally rejects any two FINAL proofs
// that spend the same outpoint.
package verifier

import (
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/hashicorp/go-hclog"

	"github.com/dan/reserves/internal/challenge"
	"github.com/dan/reserves/internal/reserveerr"
	"github.com/dan/reserves/internal/reserveproof"
)

// Prevout is the (value, scriptPubKey) pair a resolved input spends.
type Prevout struct {
	Value    int64
	PkScript []byte
}

// Result reports the reserve total a single proof verified to.
type Result struct {
	ProofID string
	Total   int64
}

// Verify checks proof against the challenge string and its resolved
// prevouts, aligned one-to-one with proof.ProofTx.TxIn[1:].
func Verify(logger hclog.Logger, challengeStr string, proof *reserveproof.Proof, prevouts []Prevout) (*Result, error) {
	if proof.Status != reserveproof.StatusFinal || proof.ProofTx == nil {
		return nil, reserveerr.Wrapf(reserveerr.KindState, nil, "proof %q: verify requires status FINAL", proof.ID)
	}
	tx := proof.ProofTx

	if len(tx.TxOut) != 1 {
		return nil, reserveerr.Wrapf(reserveerr.KindConsensus, nil, "proof %q: expected exactly 1 output, got %d", proof.ID, len(tx.TxOut))
	}
	if len(tx.TxIn) < 2 {
		return nil, reserveerr.Wrapf(reserveerr.KindConsensus, nil, "proof %q: expected at least 2 inputs, got %d", proof.ID, len(tx.TxIn))
	}
	if len(prevouts) != len(tx.TxIn)-1 {
		return nil, reserveerr.Wrapf(reserveerr.KindConsensus, nil, "proof %q: resolved %d prevouts for %d real inputs", proof.ID, len(prevouts), len(tx.TxIn)-1)
	}

	wantChallengeOutpoint := challenge.OutPoint(challengeStr)
	if tx.TxIn[0].PreviousOutPoint != *wantChallengeOutpoint {
		return nil, reserveerr.Wrapf(reserveerr.KindChallengeMismatch, nil, "proof %q: input[0] does not bind the given challenge", proof.ID)
	}

	prevOutFetcher := buildPrevOutFetcher(tx, prevouts)
	sigHashes := txscript.NewTxSigHashes(tx, prevOutFetcher)

	var total int64
	for i, pv := range prevouts {
		inputIndex := i + 1
		logger.Debug("verifying input", "proof", proof.ID, "input_index", inputIndex, "value", pv.Value)

		engine, err := txscript.NewEngine(pv.PkScript, tx, inputIndex, txscript.StandardVerifyFlags, nil, sigHashes, pv.Value, prevOutFetcher)
		if err != nil {
			return nil, reserveerr.Wrapf(reserveerr.KindConsensus, err, "proof %q: building script engine for input %d", proof.ID, inputIndex)
		}
		if err := engine.Execute(); err != nil {
			return nil, reserveerr.Wrapf(reserveerr.KindConsensus, err, "proof %q: script execution failed at input %d", proof.ID, inputIndex)
		}
		total += pv.Value
	}

	if total != tx.TxOut[0].Value {
		return nil, reserveerr.Wrapf(reserveerr.KindAmount, nil, "proof %q: sum of inputs %d != output value %d", proof.ID, total, tx.TxOut[0].Value)
	}

	return &Result{ProofID: proof.ID, Total: total}, nil
}

func buildPrevOutFetcher(tx *wire.MsgTx, prevouts []Prevout) txscript.PrevOutputFetcher {
	m := make(map[wire.OutPoint]*wire.TxOut, len(prevouts)+1)
	m[tx.TxIn[0].PreviousOutPoint] = &wire.TxOut{Value: 0, PkScript: challenge.Script()}
	for i, pv := range prevouts {
		m[tx.TxIn[i+1].PreviousOutPoint] = &wire.TxOut{Value: pv.Value, PkScript: pv.PkScript}
	}
	return txscript.NewMultiPrevOutFetcher(m)
}

// CheckGlobalUniqueness ensures no two FINAL proofs in the same file spend
// the same non-challenge outpoint.
func CheckGlobalUniqueness(proofs []*reserveproof.Proof) error {
	seen := make(map[wire.OutPoint]string)
	for _, p := range proofs {
		if p.Status != reserveproof.StatusFinal {
			continue
		}
		spent, err := p.SpendingUTXOs()
		if err != nil {
			return err
		}
		for op := range spent {
			if owner, dup := seen[op]; dup {
				return reserveerr.Wrapf(reserveerr.KindDuplicate, nil, "outpoint %s claimed by both proof %q and proof %q", op, owner, p.ID)
			}
			seen[op] = p.ID
		}
	}
	return nil
}
