// Package prevout resolves the prevout (value, scriptPubKey) spent by every
// real input of a FINAL proof transaction, preferring the live UTXO set and
// falling back to historical block lookups using the proof's recorded
// block-locator hints.
package prevout

import (
	"encoding/hex"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/wire"
	"github.com/hashicorp/go-hclog"

	"github.com/dan/reserves/internal/reserveerr"
	"github.com/dan/reserves/internal/reserveproof"
	"github.com/dan/reserves/internal/verifier"
)

// Resolver looks up prevouts against a full node.
type Resolver struct {
	logger hclog.Logger
	client *rpcclient.Client
}

// New builds a Resolver bound to client.
func New(logger hclog.Logger, client *rpcclient.Client) *Resolver {
	return &Resolver{logger: logger, client: client}
}

// Resolve returns one Prevout per real input of proof.ProofTx (index 1..),
// aligned with proof.ProofTx.TxIn[1:] (proof.UTXOs is only searched by
// outpoint for block hints), validating that any still-live UTXO was
// confirmed at or before blockHeight.
func (r *Resolver) Resolve(proof *reserveproof.Proof, blockHeight uint32) ([]verifier.Prevout, error) {
	tx := proof.ProofTx
	if tx == nil {
		return nil, reserveerr.Wrapf(reserveerr.KindState, nil, "proof %q: no proof_tx to resolve prevouts for", proof.ID)
	}

	prevouts := make([]verifier.Prevout, 0, len(tx.TxIn)-1)
	for i := 1; i < len(tx.TxIn); i++ {
		op := tx.TxIn[i].PreviousOutPoint

		var hint *reserveproof.UTXO
		for idx := range proof.UTXOs {
			if proof.UTXOs[idx].Outpoint == op {
				hint = &proof.UTXOs[idx]
				break
			}
		}

		pv, err := r.resolveOne(op, hint, blockHeight)
		if err != nil {
			return nil, reserveerr.Wrapf(reserveerr.KindPrevoutNotFound, err, "proof %q: resolving prevout for input %d (%s)", proof.ID, i, op)
		}
		prevouts = append(prevouts, pv)
	}

	return prevouts, nil
}

func (r *Resolver) resolveOne(op wire.OutPoint, hint *reserveproof.UTXO, blockHeight uint32) (verifier.Prevout, error) {
	if pv, ok, err := r.resolveLive(op, blockHeight); err != nil {
		return verifier.Prevout{}, err
	} else if ok {
		return pv, nil
	}

	if hint == nil {
		return verifier.Prevout{}, reserveerr.Wrapf(reserveerr.KindPrevoutNotFound, nil, "no live utxo and no recorded block hint for %s", op)
	}
	return r.resolveHistorical(op, *hint)
}

func (r *Resolver) resolveLive(op wire.OutPoint, blockHeight uint32) (verifier.Prevout, bool, error) {
	txOut, err := r.client.GetTxOut(&op.Hash, op.Index, true)
	if err != nil {
		return verifier.Prevout{}, false, err
	}
	if txOut == nil {
		return verifier.Prevout{}, false, nil
	}

	raw, err := r.client.GetRawTransactionVerbose(&op.Hash)
	if err != nil {
		return verifier.Prevout{}, false, reserveerr.Wrapf(reserveerr.KindPrevoutNotFound, err, "getrawtransaction %s", op.Hash)
	}
	if raw.BlockHash == "" {
		return verifier.Prevout{}, false, reserveerr.Wrapf(reserveerr.KindPrevoutNotFound, nil, "utxo %s is unconfirmed, so it did not exist at target height %d", op, blockHeight)
	}
	blockHash, err := chainhash.NewHashFromStr(raw.BlockHash)
	if err != nil {
		return verifier.Prevout{}, false, err
	}
	hdr, err := r.client.GetBlockHeaderVerbose(blockHash)
	if err != nil {
		return verifier.Prevout{}, false, err
	}
	if uint32(hdr.Height) > blockHeight {
		return verifier.Prevout{}, false, reserveerr.Wrapf(reserveerr.KindPrevoutNotFound, nil, "utxo %s confirmed at height %d, after target height %d", op, hdr.Height, blockHeight)
	}

	script, err := hex.DecodeString(txOut.ScriptPubKey.Hex)
	if err != nil {
		return verifier.Prevout{}, false, err
	}
	value := int64(txOut.Value*1e8 + 0.5)
	return verifier.Prevout{Value: value, PkScript: script}, true, nil
}

func (r *Resolver) resolveHistorical(op wire.OutPoint, hint reserveproof.UTXO) (verifier.Prevout, error) {
	blockHash := hint.BlockHash
	if blockHash == nil {
		if hint.BlockNumber == 0 {
			return verifier.Prevout{}, reserveerr.Wrapf(reserveerr.KindPrevoutNotFound, nil, "utxo %s has no block hash or block number hint", op)
		}
		var err error
		blockHash, err = r.client.GetBlockHash(int64(hint.BlockNumber))
		if err != nil {
			return verifier.Prevout{}, reserveerr.Wrapf(reserveerr.KindPrevoutNotFound, err, "resolving block hash for height %d", hint.BlockNumber)
		}
	}

	block, err := r.client.GetBlockVerboseTx(blockHash)
	if err != nil {
		return verifier.Prevout{}, reserveerr.Wrapf(reserveerr.KindPrevoutNotFound, err, "getblock %s", blockHash)
	}

	txid := op.Hash.String()
	for _, btx := range block.Tx {
		if btx.Txid != txid {
			continue
		}
		if int(op.Index) >= len(btx.Vout) {
			return verifier.Prevout{}, reserveerr.Wrapf(reserveerr.KindPrevoutNotFound, nil, "tx %s has no output %d", txid, op.Index)
		}
		vout := btx.Vout[op.Index]
		script, err := hex.DecodeString(vout.ScriptPubKey.Hex)
		if err != nil {
			return verifier.Prevout{}, err
		}
		value := int64(vout.Value*1e8 + 0.5)
		return verifier.Prevout{Value: value, PkScript: script}, nil
	}

	return verifier.Prevout{}, reserveerr.Wrapf(reserveerr.KindPrevoutNotFound, nil, "tx %s not found in block %s", txid, blockHash)
}
