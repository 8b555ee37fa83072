// Package hwdevice drives the challenge-and-response signing dialogue a
// hardware wallet runs for proof transactions. The device has no concept
// of an "external", unsignable input, so the driver impersonates a native
// witness input for index 0 (the challenge binding) rather than the
// historical prevout the device would otherwise demand.
package hwdevice

import (
	"bytes"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/hashicorp/go-hclog"

	"github.com/dan/reserves/internal/reserveerr"
)

// RequestKind classifies what a device is asking the driver for next.
type RequestKind int

const (
	RequestButton RequestKind = iota
	RequestPIN
	RequestPassphrase
	RequestPassphraseState
	RequestTxInput
	RequestTxOutput
	RequestTxChunk
	RequestFinished
)

// ScriptType mirrors the hint a device uses to decide how to interpret an
// input descriptor's amount field.
type ScriptType int

const (
	ScriptTypeSpendAddress ScriptType = iota
	ScriptTypeSpendWitness
	ScriptTypeSpendP2SHWitness
)

// Request is one step of the device's signing dialogue.
type Request struct {
	Kind        RequestKind
	Prompt      string // for RequestButton/RequestPIN/RequestPassphrase/RequestPassphraseState
	InputIndex  int    // for RequestTxInput
	OutputIndex int    // for RequestTxOutput
	Chunk       []byte // for RequestTxChunk: a fragment of the serialized signed tx
}

// InputDescriptor is what the driver hands back in response to
// RequestTxInput: either the real input data pulled from the PSBT, or, for
// index 0, the hand-crafted lie that stands in for the challenge input.
type InputDescriptor struct {
	PrevHash   chainhash.Hash
	PrevIndex  uint32
	ScriptSig  []byte
	Sequence   uint32
	Amount     int64
	ScriptType ScriptType
}

// OutputDescriptor is what the driver hands back in response to
// RequestTxOutput.
type OutputDescriptor struct {
	Value    int64
	PkScript []byte
}

// Response answers whatever Request was last returned by Device.Next.
type Response struct {
	Ack        bool
	PIN        string
	Passphrase string
	Input      *InputDescriptor
	Output     *OutputDescriptor
}

// Device is the capability a concrete hardware-wallet transport exposes.
// It knows nothing about proofs of reserves; Driver is what teaches it the
// challenge-input lie.
type Device interface {
	Open() error
	Close() error
	// Begin starts a signing session for tx on the given network and
	// returns the device's first request.
	Begin(tx *wire.MsgTx, params *chaincfg.Params) (*Request, error)
	// Next answers the previous request and returns the next one. A nil
	// Request means the device has nothing further to say (the driver
	// still waits for a RequestFinished to know signing is actually done).
	Next(resp *Response) (*Request, error)
}

// Prompter drives the operator-facing side of PIN/passphrase/button
// requests. TerminalPrompter is the CLI's terminal implementation; tests
// supply a canned Prompter.
type Prompter interface {
	Confirm(prompt string) error
	ReadSecret(prompt string) (string, error)
}

// Driver runs the signing dialogue described in the hardware-wallet
// backend design: it forwards everything except input[0]'s data request,
// which it answers with a fabricated witness-input descriptor binding the
// challenge outpoint instead of the historical prevout the device would
// otherwise demand (the device has no "external input" script type).
type Driver struct {
	logger   hclog.Logger
	device   Device
	prompter Prompter
}

// NewDriver builds a Driver over device, prompting through prompter.
func NewDriver(logger hclog.Logger, device Device, prompter Prompter) *Driver {
	return &Driver{logger: logger, device: device, prompter: prompter}
}

// SignTx runs the full dialogue and returns the resulting transaction with
// input[0]'s script_sig cleared, matching every other backend's contract.
func (d *Driver) SignTx(pkt *psbt.Packet, params *chaincfg.Params) (*wire.MsgTx, error) {
	if err := d.device.Open(); err != nil {
		return nil, reserveerr.Wrapf(reserveerr.KindBackend, err, "opening hardware wallet session")
	}
	defer d.device.Close()

	tx := pkt.UnsignedTx
	var txChunks bytes.Buffer

	d.logger.Debug("starting hardware wallet signing session", "num_inputs", len(tx.TxIn))
	req, err := d.device.Begin(tx, params)
	if err != nil {
		return nil, reserveerr.Wrapf(reserveerr.KindBackend, err, "starting signing session")
	}

	finished := false
	for req != nil {
		resp, err := d.answer(pkt, req)
		if err != nil {
			return nil, err
		}
		if req.Kind == RequestTxChunk {
			txChunks.Write(req.Chunk)
		}
		if req.Kind == RequestFinished {
			finished = true
			break
		}

		req, err = d.device.Next(resp)
		if err != nil {
			return nil, reserveerr.Wrapf(reserveerr.KindBackend, err, "advancing signing session")
		}
	}
	if !finished {
		return nil, reserveerr.Wrapf(reserveerr.KindBackend, nil, "device ended the signing session without reporting it finished")
	}

	signed := wire.NewMsgTx(tx.Version)
	if err := signed.Deserialize(bytes.NewReader(txChunks.Bytes())); err != nil {
		return nil, reserveerr.Wrapf(reserveerr.KindBackend, err, "decoding device's signed transaction")
	}

	// The device cannot know input[0] must stay unsigned; strip whatever it
	// produced regardless of what it thought it was signing.
	if len(signed.TxIn) > 0 {
		signed.TxIn[0].SignatureScript = nil
		signed.TxIn[0].Witness = nil
	}

	return signed, nil
}

func (d *Driver) answer(pkt *psbt.Packet, req *Request) (*Response, error) {
	switch req.Kind {
	case RequestButton, RequestPassphraseState:
		if err := d.prompter.Confirm(req.Prompt); err != nil {
			return nil, reserveerr.Wrapf(reserveerr.KindBackend, err, "confirming device prompt")
		}
		return &Response{Ack: true}, nil

	case RequestPIN:
		pin, err := d.prompter.ReadSecret(req.Prompt)
		if err != nil {
			return nil, reserveerr.Wrapf(reserveerr.KindBackend, err, "reading PIN")
		}
		return &Response{PIN: pin}, nil

	case RequestPassphrase:
		pass, err := d.prompter.ReadSecret(req.Prompt)
		if err != nil {
			return nil, reserveerr.Wrapf(reserveerr.KindBackend, err, "reading passphrase")
		}
		return &Response{Passphrase: pass}, nil

	case RequestTxInput:
		if req.InputIndex == 0 {
			d.logger.Debug("answering device's request for input 0 with the challenge-binding lie")
			return &Response{Input: challengeInputLie(pkt)}, nil
		}
		desc, err := realInputDescriptor(pkt, req.InputIndex)
		if err != nil {
			return nil, err
		}
		return &Response{Input: desc}, nil

	case RequestTxOutput:
		if req.OutputIndex != 0 || len(pkt.UnsignedTx.TxOut) == 0 {
			return nil, reserveerr.Wrapf(reserveerr.KindBackend, nil, "device requested output %d, proof tx has exactly one", req.OutputIndex)
		}
		out := pkt.UnsignedTx.TxOut[0]
		return &Response{Output: &OutputDescriptor{Value: out.Value, PkScript: out.PkScript}}, nil

	case RequestTxChunk, RequestFinished:
		return &Response{Ack: true}, nil

	default:
		return nil, reserveerr.Wrapf(reserveerr.KindBackend, nil, "unhandled device request kind %d", req.Kind)
	}
}

// challengeInputLie builds the fabricated descriptor for input[0]: the real
// challenge outpoint and sequence already present in the unsigned tx (by
// construction, tx.TxIn[0].PreviousOutPoint is the challenge outpoint), but
// SPEND_WITNESS and amount=0 so the device treats the amount as
// authoritative instead of demanding a historical prevout transaction it
// could never be given.
func challengeInputLie(pkt *psbt.Packet) *InputDescriptor {
	txIn := pkt.UnsignedTx.TxIn[0]
	return &InputDescriptor{
		PrevHash:   txIn.PreviousOutPoint.Hash,
		PrevIndex:  txIn.PreviousOutPoint.Index,
		ScriptSig:  txIn.SignatureScript,
		Sequence:   txIn.Sequence,
		Amount:     0,
		ScriptType: ScriptTypeSpendWitness,
	}
}

func realInputDescriptor(pkt *psbt.Packet, index int) (*InputDescriptor, error) {
	if index >= len(pkt.UnsignedTx.TxIn) {
		return nil, reserveerr.Wrapf(reserveerr.KindBackend, nil, "device requested unknown input %d", index)
	}
	txIn := pkt.UnsignedTx.TxIn[index]
	in := pkt.Inputs[index]

	var amount int64
	scriptType := ScriptTypeSpendWitness
	switch {
	case in.WitnessUtxo != nil:
		amount = in.WitnessUtxo.Value
		if len(in.RedeemScript) > 0 {
			scriptType = ScriptTypeSpendP2SHWitness
		}
	case in.NonWitnessUtxo != nil:
		idx := txIn.PreviousOutPoint.Index
		if int(idx) >= len(in.NonWitnessUtxo.TxOut) {
			return nil, reserveerr.Wrapf(reserveerr.KindBackend, nil, "input %d: non_witness_utxo has no output %d", index, idx)
		}
		amount = in.NonWitnessUtxo.TxOut[idx].Value
		scriptType = ScriptTypeSpendAddress
	default:
		return nil, reserveerr.Wrapf(reserveerr.KindBackend, nil, "input %d has no witness_utxo or non_witness_utxo to sign against", index)
	}

	return &InputDescriptor{
		PrevHash:   txIn.PreviousOutPoint.Hash,
		PrevIndex:  txIn.PreviousOutPoint.Index,
		ScriptSig:  txIn.SignatureScript,
		Sequence:   txIn.Sequence,
		Amount:     amount,
		ScriptType: scriptType,
	}, nil
}
