// Package challenge derives the synthetic, unspendable input that binds a
// proof to an auditor's challenge string.
package challenge

import (
	"crypto/sha256"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// SequenceFinal is the sequence number used on every input of a proof
// transaction, challenge input included; there is no RBF signalling since
// proof transactions are never broadcast.
const SequenceFinal = 0xFFFFFFFF

// TxIn returns the ChallengeTxIn for a challenge string: an input whose
// previous outpoint is (SHA-256(challenge), 0). No funding transaction with
// that txid is expected to exist, so a transaction spending it can never be
// relayed.
func TxIn(s string) *wire.TxIn {
	return wire.NewTxIn(OutPoint(s), nil, nil)
}

// OutPoint returns the previous outpoint a ChallengeTxIn spends, useful on
// its own for equality checks (add-proof, verify) without constructing a
// full TxIn.
func OutPoint(s string) *wire.OutPoint {
	sum := sha256.Sum256([]byte(s))
	hash, _ := chainhash.NewHash(sum[:])
	return wire.NewOutPoint(hash, 0)
}

// Script is the OP_TRUE scriptPubKey the fictive prevout for input[0]
// carries: no signer should ever need to produce a real signature for it.
func Script() []byte {
	b, _ := txscript.NewScriptBuilder().AddOp(txscript.OP_TRUE).Script()
	return b
}

// SinkScript is the OP_FALSE scriptPubKey the single proof output carries,
// making the output provably unspendable.
func SinkScript() []byte {
	b, _ := txscript.NewScriptBuilder().AddOp(txscript.OP_FALSE).Script()
	return b
}
