// Package backend defines the pluggable signing capability that the sign
// command drives, plus the full-node RPC implementation. Backends share a
// single contract: PSBT in, fully-witnessed transaction out, input[0]'s
// script_sig empty. A second implementation (internal/hwdevice) drives a
// hardware wallet under the same contract.
package backend

import (
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"
)

// Signer turns a proof's unsigned PSBT into a fully-witnessed transaction.
// Implementations must return tx.TxIn[0].SignatureScript empty: the
// challenge input must never carry a signature, since it has no real
// prevout to sign against.
type Signer interface {
	SignTx(pkt *psbt.Packet) (*wire.MsgTx, error)
}
