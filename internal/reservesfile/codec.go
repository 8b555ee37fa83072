package reservesfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/dan/reserves/internal/reserveerr"
	"github.com/dan/reserves/internal/reserveproof"
)

// The on-disk encoding is a hand-rolled length-delimited binary framing:
// fixed-width integers are written big-endian via encoding/binary, and
// every variable-length field (strings, byte blobs, repeated fields) is
// prefixed with a binary.PutUvarint length so the decoder never has to
// guess where a field ends. This keeps the schema's "length-delimited"
// framing without depending on a protobuf code generator.

func encodeProofFile(pf *ProofFile) ([]byte, error) {
	var buf bytes.Buffer

	writeU32(&buf, pf.Version)
	buf.WriteByte(byte(pf.Network))
	writeBytes(&buf, []byte(pf.Challenge))
	writeU32(&buf, pf.BlockNumber)

	writeUvarint(&buf, uint64(len(pf.Proofs)))
	for _, p := range pf.Proofs {
		if err := encodeProof(&buf, p); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

func decodeProofFile(data []byte) (*ProofFile, error) {
	r := bytes.NewReader(data)

	version, err := readU32(r)
	if err != nil {
		return nil, reserveerr.Wrapf(reserveerr.KindDecode, err, "reading version")
	}
	networkByte, err := r.ReadByte()
	if err != nil {
		return nil, reserveerr.Wrapf(reserveerr.KindDecode, err, "reading network")
	}
	challengeBytes, err := readBytes(r)
	if err != nil {
		return nil, reserveerr.Wrapf(reserveerr.KindDecode, err, "reading challenge")
	}
	blockNumber, err := readU32(r)
	if err != nil {
		return nil, reserveerr.Wrapf(reserveerr.KindDecode, err, "reading block_number")
	}

	numProofs, err := readUvarint(r)
	if err != nil {
		return nil, reserveerr.Wrapf(reserveerr.KindDecode, err, "reading proof count")
	}

	pf := &ProofFile{
		Version:     version,
		Network:     Network(networkByte),
		Challenge:   string(challengeBytes),
		BlockNumber: blockNumber,
	}

	for i := uint64(0); i < numProofs; i++ {
		p, err := decodeProof(r)
		if err != nil {
			return nil, reserveerr.Wrapf(reserveerr.KindDecode, err, "reading proof %d", i)
		}
		pf.Proofs = append(pf.Proofs, p)
	}

	return pf, nil
}

func encodeProof(buf *bytes.Buffer, p *reserveproof.Proof) error {
	writeBytes(buf, []byte(p.ID))
	buf.WriteByte(byte(p.Status))

	var txBytes []byte
	if p.ProofTx != nil {
		var txBuf bytes.Buffer
		if err := p.ProofTx.Serialize(&txBuf); err != nil {
			return reserveerr.Wrapf(reserveerr.KindDecode, err, "serializing proof_tx for proof %q", p.ID)
		}
		txBytes = txBuf.Bytes()
	}
	writeBytes(buf, txBytes)

	writeUvarint(buf, uint64(len(p.UTXOs)))
	for _, u := range p.UTXOs {
		if err := encodeUTXO(buf, u); err != nil {
			return err
		}
	}

	var psbtBytes []byte
	if p.PSBT != nil {
		var psbtBuf bytes.Buffer
		if err := p.PSBT.Serialize(&psbtBuf); err != nil {
			return reserveerr.Wrapf(reserveerr.KindDecode, err, "serializing psbt for proof %q", p.ID)
		}
		psbtBytes = psbtBuf.Bytes()
	}
	writeBytes(buf, psbtBytes)

	return nil
}

func decodeProof(r *bytes.Reader) (*reserveproof.Proof, error) {
	idBytes, err := readBytes(r)
	if err != nil {
		return nil, fmt.Errorf("reading id: %w", err)
	}
	statusByte, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("reading status: %w", err)
	}

	p := &reserveproof.Proof{
		ID:     string(idBytes),
		Status: reserveproof.Status(statusByte),
	}

	txBytes, err := readBytes(r)
	if err != nil {
		return nil, fmt.Errorf("reading proof_tx: %w", err)
	}
	if len(txBytes) > 0 {
		tx := wire.NewMsgTx(1)
		if err := tx.Deserialize(bytes.NewReader(txBytes)); err != nil {
			return nil, fmt.Errorf("decoding proof_tx: %w", err)
		}
		p.ProofTx = tx
	}

	numUTXOs, err := readUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("reading utxo count: %w", err)
	}
	for i := uint64(0); i < numUTXOs; i++ {
		u, err := decodeUTXO(r)
		if err != nil {
			return nil, fmt.Errorf("reading utxo %d: %w", i, err)
		}
		p.UTXOs = append(p.UTXOs, u)
	}

	psbtBytes, err := readBytes(r)
	if err != nil {
		return nil, fmt.Errorf("reading psbt: %w", err)
	}
	if len(psbtBytes) > 0 {
		pkt, err := psbt.NewFromRawBytes(bytes.NewReader(psbtBytes), false)
		if err != nil {
			return nil, fmt.Errorf("decoding psbt: %w", err)
		}
		p.PSBT = pkt
	}

	return p, nil
}

func encodeUTXO(buf *bytes.Buffer, u reserveproof.UTXO) error {
	buf.Write(u.Outpoint.Hash[:])
	writeU32(buf, u.Outpoint.Index)

	inputBytes, err := encodePSBTInput(u.PSBTInput)
	if err != nil {
		return err
	}
	writeBytes(buf, inputBytes)

	writeU32(buf, u.BlockNumber)
	if u.BlockHash != nil {
		writeBytes(buf, u.BlockHash[:])
	} else {
		writeBytes(buf, nil)
	}
	return nil
}

func decodeUTXO(r *bytes.Reader) (reserveproof.UTXO, error) {
	var u reserveproof.UTXO

	if _, err := io.ReadFull(r, u.Outpoint.Hash[:]); err != nil {
		return u, fmt.Errorf("reading txid: %w", err)
	}
	vout, err := readU32(r)
	if err != nil {
		return u, fmt.Errorf("reading vout: %w", err)
	}
	u.Outpoint.Index = vout

	inputBytes, err := readBytes(r)
	if err != nil {
		return u, fmt.Errorf("reading psbt_input: %w", err)
	}
	in, err := decodePSBTInput(inputBytes)
	if err != nil {
		return u, fmt.Errorf("decoding psbt_input: %w", err)
	}
	u.PSBTInput = in

	blockNumber, err := readU32(r)
	if err != nil {
		return u, fmt.Errorf("reading block_number: %w", err)
	}
	u.BlockNumber = blockNumber

	blockHashBytes, err := readBytes(r)
	if err != nil {
		return u, fmt.Errorf("reading block_hash: %w", err)
	}
	if len(blockHashBytes) > 0 {
		hash, err := chainhash.NewHash(blockHashBytes)
		if err != nil {
			return u, fmt.Errorf("decoding block_hash: %w", err)
		}
		u.BlockHash = hash
	}

	return u, nil
}

// PSBT-input field tags. A single PInput has no standalone serializer in
// the upstream psbt package (serialization is defined at the whole-Packet
// level), so the subset of fields this system actually populates is framed
// here as tagged, length-delimited records instead.
const (
	tagNonWitnessUtxo  = 0x01
	tagWitnessUtxo     = 0x02
	tagRedeemScript    = 0x03
	tagWitnessScript   = 0x04
	tagBip32Derivation = 0x05
	tagPartialSigs     = 0x06
	tagFinalScriptSig  = 0x07
	tagFinalScriptWit  = 0x08
	tagTaprootKeySpend = 0x09
)

func encodePSBTInput(in psbt.PInput) ([]byte, error) {
	var fields bytes.Buffer
	var count int

	writeField := func(tag byte, payload []byte) {
		fields.WriteByte(tag)
		writeBytes(&fields, payload)
		count++
	}

	if in.NonWitnessUtxo != nil {
		var b bytes.Buffer
		if err := in.NonWitnessUtxo.Serialize(&b); err != nil {
			return nil, reserveerr.Wrapf(reserveerr.KindDecode, err, "serializing non_witness_utxo")
		}
		writeField(tagNonWitnessUtxo, b.Bytes())
	}
	if in.WitnessUtxo != nil {
		var b bytes.Buffer
		writeI64(&b, in.WitnessUtxo.Value)
		writeBytes(&b, in.WitnessUtxo.PkScript)
		writeField(tagWitnessUtxo, b.Bytes())
	}
	if len(in.RedeemScript) > 0 {
		writeField(tagRedeemScript, in.RedeemScript)
	}
	if len(in.WitnessScript) > 0 {
		writeField(tagWitnessScript, in.WitnessScript)
	}
	if len(in.Bip32Derivation) > 0 {
		var b bytes.Buffer
		writeUvarint(&b, uint64(len(in.Bip32Derivation)))
		for _, d := range in.Bip32Derivation {
			writeBytes(&b, d.PubKey)
			writeU32(&b, d.MasterKeyFingerprint)
			writeUvarint(&b, uint64(len(d.Bip32Path)))
			for _, step := range d.Bip32Path {
				writeU32(&b, step)
			}
		}
		writeField(tagBip32Derivation, b.Bytes())
	}
	if len(in.PartialSigs) > 0 {
		var b bytes.Buffer
		writeUvarint(&b, uint64(len(in.PartialSigs)))
		for _, sig := range in.PartialSigs {
			writeBytes(&b, sig.PubKey)
			writeBytes(&b, sig.Signature)
		}
		writeField(tagPartialSigs, b.Bytes())
	}
	if len(in.FinalScriptSig) > 0 {
		writeField(tagFinalScriptSig, in.FinalScriptSig)
	}
	if len(in.FinalScriptWitness) > 0 {
		// FinalScriptWitness is already the Bitcoin wire-serialized witness
		// stack (BIP174 finalscriptwitness); store it verbatim rather than
		// reparsing its own internal CompactSize framing.
		writeField(tagFinalScriptWit, in.FinalScriptWitness)
	}
	if len(in.TaprootKeySpendSig) > 0 {
		writeField(tagTaprootKeySpend, in.TaprootKeySpendSig)
	}

	var out bytes.Buffer
	writeUvarint(&out, uint64(count))
	out.Write(fields.Bytes())
	return out.Bytes(), nil
}

func decodePSBTInput(data []byte) (psbt.PInput, error) {
	var in psbt.PInput
	if len(data) == 0 {
		return in, nil
	}
	r := bytes.NewReader(data)

	count, err := readUvarint(r)
	if err != nil {
		return in, fmt.Errorf("reading field count: %w", err)
	}

	for i := uint64(0); i < count; i++ {
		tag, err := r.ReadByte()
		if err != nil {
			return in, fmt.Errorf("reading field tag: %w", err)
		}
		payload, err := readBytes(r)
		if err != nil {
			return in, fmt.Errorf("reading field payload: %w", err)
		}
		switch tag {
		case tagNonWitnessUtxo:
			tx := wire.NewMsgTx(1)
			if err := tx.Deserialize(bytes.NewReader(payload)); err != nil {
				return in, fmt.Errorf("decoding non_witness_utxo: %w", err)
			}
			in.NonWitnessUtxo = tx
		case tagWitnessUtxo:
			br := bytes.NewReader(payload)
			value, err := readI64(br)
			if err != nil {
				return in, fmt.Errorf("decoding witness_utxo value: %w", err)
			}
			script, err := readBytes(br)
			if err != nil {
				return in, fmt.Errorf("decoding witness_utxo script: %w", err)
			}
			in.WitnessUtxo = &wire.TxOut{Value: value, PkScript: script}
		case tagRedeemScript:
			in.RedeemScript = payload
		case tagWitnessScript:
			in.WitnessScript = payload
		case tagBip32Derivation:
			br := bytes.NewReader(payload)
			n, err := readUvarint(br)
			if err != nil {
				return in, fmt.Errorf("decoding bip32 count: %w", err)
			}
			for j := uint64(0); j < n; j++ {
				pubKey, err := readBytes(br)
				if err != nil {
					return in, fmt.Errorf("decoding bip32 pubkey: %w", err)
				}
				fingerprint, err := readU32(br)
				if err != nil {
					return in, fmt.Errorf("decoding bip32 fingerprint: %w", err)
				}
				pathLen, err := readUvarint(br)
				if err != nil {
					return in, fmt.Errorf("decoding bip32 path length: %w", err)
				}
				path := make([]uint32, pathLen)
				for k := range path {
					step, err := readU32(br)
					if err != nil {
						return in, fmt.Errorf("decoding bip32 path step: %w", err)
					}
					path[k] = step
				}
				in.Bip32Derivation = append(in.Bip32Derivation, &psbt.Bip32Derivation{
					PubKey:               pubKey,
					MasterKeyFingerprint: fingerprint,
					Bip32Path:            path,
				})
			}
		case tagPartialSigs:
			br := bytes.NewReader(payload)
			n, err := readUvarint(br)
			if err != nil {
				return in, fmt.Errorf("decoding partial sig count: %w", err)
			}
			for j := uint64(0); j < n; j++ {
				pubKey, err := readBytes(br)
				if err != nil {
					return in, fmt.Errorf("decoding partial sig pubkey: %w", err)
				}
				sig, err := readBytes(br)
				if err != nil {
					return in, fmt.Errorf("decoding partial sig signature: %w", err)
				}
				in.PartialSigs = append(in.PartialSigs, &psbt.PartialSig{PubKey: pubKey, Signature: sig})
			}
		case tagFinalScriptSig:
			in.FinalScriptSig = payload
		case tagFinalScriptWit:
			in.FinalScriptWitness = payload
		case tagTaprootKeySpend:
			in.TaprootKeySpendSig = payload
		default:
			return in, fmt.Errorf("unknown psbt_input field tag %d", tag)
		}
	}

	return in, nil
}

// --- low-level primitives ---

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeI64(buf *bytes.Buffer, v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	buf.Write(b[:])
}

func writeUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	writeUvarint(buf, uint64(len(b)))
	buf.Write(b)
}

func readU32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readI64(r *bytes.Reader) (int64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b[:])), nil
}

func readUvarint(r *bytes.Reader) (uint64, error) {
	return binary.ReadUvarint(r)
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	n, err := readUvarint(r)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}
