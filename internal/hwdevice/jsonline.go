package hwdevice

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"

	"github.com/dan/reserves/internal/reserveerr"
)

// wireMessage is the line-delimited JSON envelope the device speaks, in
// the same spirit as the Electrum client's own hand-rolled line protocol:
// one JSON object per line, no framing beyond the newline.
type wireMessage struct {
	Type        string `json:"type"`
	Prompt      string `json:"prompt,omitempty"`
	InputIndex  int    `json:"input_index,omitempty"`
	OutputIndex int    `json:"output_index,omitempty"`
	ChunkHex    string `json:"chunk_hex,omitempty"`

	// Fields used when the driver is sending a response back to the device.
	Ack        bool   `json:"ack,omitempty"`
	PIN        string `json:"pin,omitempty"`
	Passphrase string `json:"passphrase,omitempty"`
	Input      *wireInputDescriptor  `json:"input,omitempty"`
	Output     *wireOutputDescriptor `json:"output,omitempty"`

	// Fields used when the driver is opening the session.
	PrevTxHex string `json:"prev_tx_hex,omitempty"`
	Network   string `json:"network,omitempty"`
}

type wireInputDescriptor struct {
	PrevHashHex string `json:"prev_hash_hex"`
	PrevIndex   uint32 `json:"prev_index"`
	ScriptSigHex string `json:"script_sig_hex"`
	Sequence    uint32 `json:"sequence"`
	Amount      int64  `json:"amount"`
	ScriptType  int    `json:"script_type"`
}

type wireOutputDescriptor struct {
	Value       int64  `json:"value"`
	PkScriptHex string `json:"pk_script_hex"`
}

// JSONLineDevice drives a hardware wallet that exposes the dialogue over a
// newline-delimited JSON connection (e.g. a USB bridge daemon listening on
// a local TCP socket). Only TCP addresses are dialed.
type JSONLineDevice struct {
	addr    string
	timeout time.Duration

	conn   net.Conn
	reader *bufio.Reader
}

// NewJSONLineDevice returns a Device that will dial addr when Open is
// called.
func NewJSONLineDevice(addr string, timeout time.Duration) *JSONLineDevice {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &JSONLineDevice{addr: addr, timeout: timeout}
}

// Open dials the device's bridge socket.
func (d *JSONLineDevice) Open() error {
	conn, err := net.DialTimeout("tcp", d.addr, d.timeout)
	if err != nil {
		return fmt.Errorf("dialing hardware wallet bridge at %s: %w", d.addr, err)
	}
	d.conn = conn
	d.reader = bufio.NewReader(conn)
	return nil
}

// Close releases the connection.
func (d *JSONLineDevice) Close() error {
	if d.conn == nil {
		return nil
	}
	return d.conn.Close()
}

// Begin sends the unsigned transaction and network to the device and
// returns its first request.
func (d *JSONLineDevice) Begin(tx *wire.MsgTx, params *chaincfg.Params) (*Request, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, err
	}

	if err := d.send(wireMessage{
		Type:      "begin",
		PrevTxHex: hex.EncodeToString(buf.Bytes()),
		Network:   params.Name,
	}); err != nil {
		return nil, err
	}
	return d.recv()
}

// Next answers the previous request and returns the device's next one.
func (d *JSONLineDevice) Next(resp *Response) (*Request, error) {
	msg := wireMessage{Type: "response", Ack: resp.Ack, PIN: resp.PIN, Passphrase: resp.Passphrase}
	if resp.Input != nil {
		msg.Input = &wireInputDescriptor{
			PrevHashHex:  resp.Input.PrevHash.String(),
			PrevIndex:    resp.Input.PrevIndex,
			ScriptSigHex: hex.EncodeToString(resp.Input.ScriptSig),
			Sequence:     resp.Input.Sequence,
			Amount:       resp.Input.Amount,
			ScriptType:   int(resp.Input.ScriptType),
		}
	}
	if resp.Output != nil {
		msg.Output = &wireOutputDescriptor{
			Value:       resp.Output.Value,
			PkScriptHex: hex.EncodeToString(resp.Output.PkScript),
		}
	}
	if err := d.send(msg); err != nil {
		return nil, err
	}
	return d.recv()
}

func (d *JSONLineDevice) send(msg wireMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = d.conn.Write(data)
	return err
}

func (d *JSONLineDevice) recv() (*Request, error) {
	line, err := d.reader.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("reading from hardware wallet bridge: %w", err)
	}

	var msg wireMessage
	if err := json.Unmarshal(line, &msg); err != nil {
		return nil, reserveerr.Wrapf(reserveerr.KindBackend, err, "decoding device message")
	}

	req := &Request{Prompt: msg.Prompt, InputIndex: msg.InputIndex, OutputIndex: msg.OutputIndex}
	switch msg.Type {
	case "button":
		req.Kind = RequestButton
	case "pin":
		req.Kind = RequestPIN
	case "passphrase":
		req.Kind = RequestPassphrase
	case "passphrase_state":
		req.Kind = RequestPassphraseState
	case "tx_input":
		req.Kind = RequestTxInput
	case "tx_output":
		req.Kind = RequestTxOutput
	case "tx_chunk":
		req.Kind = RequestTxChunk
		chunk, err := hex.DecodeString(msg.ChunkHex)
		if err != nil {
			return nil, reserveerr.Wrapf(reserveerr.KindBackend, err, "decoding tx chunk")
		}
		req.Chunk = chunk
	case "finished":
		req.Kind = RequestFinished
	default:
		return nil, reserveerr.Wrapf(reserveerr.KindBackend, nil, "unknown device message type %q", msg.Type)
	}
	return req, nil
}
