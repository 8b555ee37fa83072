package backend

import (
	"encoding/hex"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/wire"
	"github.com/hashicorp/go-hclog"

	"github.com/dan/reserves/internal/challenge"
	"github.com/dan/reserves/internal/reserveerr"
	"github.com/dan/reserves/internal/reserveproof"
)

// MinConfirmations is the confirmation depth fetch-utxos requires of a
// node's spendable UTXOs before it will import them into a proof.
const MinConfirmations = 6

// FullNodeConfig addresses and authenticates a bitcoind JSON-RPC endpoint.
type FullNodeConfig struct {
	Host       string
	User       string
	Pass       string
	DisableTLS bool
}

// FullNodeBackend signs proof PSBTs via a full node's wallet and, on the
// side, hydrates UTXOs straight out of that node's own spendable set.
type FullNodeBackend struct {
	logger hclog.Logger
	client *rpcclient.Client
}

// NewFullNodeBackend dials cfg and returns a backend bound to the resulting
// client. Callers must Close it on every exit path.
func NewFullNodeBackend(logger hclog.Logger, cfg FullNodeConfig) (*FullNodeBackend, error) {
	connCfg := &rpcclient.ConnConfig{
		Host:         cfg.Host,
		User:         cfg.User,
		Pass:         cfg.Pass,
		HTTPPostMode: true,
		DisableTLS:   cfg.DisableTLS,
	}
	client, err := rpcclient.New(connCfg, nil)
	if err != nil {
		return nil, reserveerr.Wrapf(reserveerr.KindBackend, err, "connecting to bitcoind at %s", cfg.Host)
	}
	return &FullNodeBackend{logger: logger, client: client}, nil
}

// Close releases the underlying RPC client.
func (b *FullNodeBackend) Close() {
	b.client.Shutdown()
}

// Client exposes the underlying RPC client so the prevout resolver can
// reuse the same connection rather than dialing the node a second time.
func (b *FullNodeBackend) Client() *rpcclient.Client {
	return b.client
}

// SignTx constructs a fictive OP_TRUE prevout for the challenge input,
// gathers the real inputs' prevouts from the PSBT, and invokes the node's
// sign-raw-transaction-with-wallet RPC. An RPC failure is returned as an
// error; the node's per-input signing errors are not read, and a result the
// node reports as incomplete is logged and returned as is.
func (b *FullNodeBackend) SignTx(pkt *psbt.Packet) (*wire.MsgTx, error) {
	tx := pkt.UnsignedTx
	if len(tx.TxIn) == 0 {
		return nil, reserveerr.Wrapf(reserveerr.KindBackend, nil, "psbt has no inputs")
	}

	inputs := make([]btcjson.RawTxWitnessInput, 0, len(tx.TxIn))

	challengeOutpoint := tx.TxIn[0].PreviousOutPoint
	challengeScriptHex := hex.EncodeToString(challenge.Script())
	inputs = append(inputs, btcjson.RawTxWitnessInput{
		Txid:         challengeOutpoint.Hash.String(),
		Vout:         challengeOutpoint.Index,
		ScriptPubKey: challengeScriptHex,
	})

	for i := 1; i < len(tx.TxIn); i++ {
		in := pkt.Inputs[i]

		var scriptHex string
		var amount float64
		switch {
		case in.WitnessUtxo != nil:
			scriptHex = hex.EncodeToString(in.WitnessUtxo.PkScript)
			amount = btcutil.Amount(in.WitnessUtxo.Value).ToBTC()
		case in.NonWitnessUtxo != nil:
			idx := tx.TxIn[i].PreviousOutPoint.Index
			if int(idx) >= len(in.NonWitnessUtxo.TxOut) {
				return nil, reserveerr.Wrapf(reserveerr.KindBackend, nil, "input %d: non_witness_utxo has no output %d", i, idx)
			}
			out := in.NonWitnessUtxo.TxOut[idx]
			scriptHex = hex.EncodeToString(out.PkScript)
			amount = btcutil.Amount(out.Value).ToBTC()
		default:
			return nil, reserveerr.Wrapf(reserveerr.KindBackend, nil, "input %d has neither witness_utxo nor non_witness_utxo", i)
		}

		rawInput := btcjson.RawTxWitnessInput{
			Txid:         tx.TxIn[i].PreviousOutPoint.Hash.String(),
			Vout:         tx.TxIn[i].PreviousOutPoint.Index,
			ScriptPubKey: scriptHex,
			Amount:       &amount,
		}
		if len(in.RedeemScript) > 0 {
			redeemHex := hex.EncodeToString(in.RedeemScript)
			rawInput.RedeemScript = &redeemHex
		}
		if len(in.WitnessScript) > 0 {
			witnessHex := hex.EncodeToString(in.WitnessScript)
			rawInput.WitnessScript = &witnessHex
		}
		inputs = append(inputs, rawInput)
	}

	b.logger.Debug("signing proof tx via bitcoind wallet", "num_inputs", len(tx.TxIn))
	signedTx, allSigned, err := b.client.SignRawTransactionWithWallet2(tx, inputs)
	if err != nil {
		return nil, reserveerr.Wrapf(reserveerr.KindBackend, err, "signrawtransactionwithwallet")
	}
	if !allSigned {
		b.logger.Debug("node reported an incomplete signing result; the challenge input is expected to remain unsigned")
	}

	// The node has no notion of "do not sign this input"; strip whatever it
	// attached to the challenge input regardless.
	signedTx.TxIn[0].SignatureScript = nil
	signedTx.TxIn[0].Witness = nil

	return signedTx, nil
}

// FetchUTXOs returns the node's own spendable UTXOs with at least
// MinConfirmations confirmations, hydrated with enough PSBT input metadata
// to later sign and verify them.
func (b *FullNodeBackend) FetchUTXOs() ([]reserveproof.UTXO, error) {
	unspent, err := b.client.ListUnspentMin(MinConfirmations)
	if err != nil {
		return nil, reserveerr.Wrapf(reserveerr.KindBackend, err, "listunspent")
	}

	utxos := make([]reserveproof.UTXO, 0, len(unspent))
	for _, u := range unspent {
		hash, err := chainhash.NewHashFromStr(u.TxID)
		if err != nil {
			return nil, reserveerr.Wrapf(reserveerr.KindBackend, err, "parsing txid %q", u.TxID)
		}

		pkScript, err := hex.DecodeString(u.ScriptPubKey)
		if err != nil {
			return nil, reserveerr.Wrapf(reserveerr.KindBackend, err, "decoding scriptPubKey for %s:%d", u.TxID, u.Vout)
		}

		rawTx, err := b.client.GetRawTransaction(hash)
		if err != nil {
			return nil, reserveerr.Wrapf(reserveerr.KindBackend, err, "getrawtransaction %s", u.TxID)
		}

		amount, err := btcutil.NewAmount(u.Amount)
		if err != nil {
			return nil, reserveerr.Wrapf(reserveerr.KindBackend, err, "parsing amount for %s:%d", u.TxID, u.Vout)
		}

		psbtInput := psbt.PInput{
			NonWitnessUtxo: rawTx.MsgTx(),
			WitnessUtxo:    &wire.TxOut{Value: int64(amount), PkScript: pkScript},
		}
		if u.RedeemScript != "" {
			psbtInput.RedeemScript, err = hex.DecodeString(u.RedeemScript)
			if err != nil {
				return nil, reserveerr.Wrapf(reserveerr.KindBackend, err, "decoding redeemScript for %s:%d", u.TxID, u.Vout)
			}
		}

		blockNumber, blockHash, err := b.confirmingBlock(hash)
		if err != nil {
			b.logger.Warn("could not resolve confirming block for utxo, proceeding without a hint", "txid", u.TxID, "vout", u.Vout, "error", err)
		}

		utxos = append(utxos, reserveproof.UTXO{
			Outpoint:    wire.OutPoint{Hash: *hash, Index: u.Vout},
			PSBTInput:   psbtInput,
			BlockNumber: blockNumber,
			BlockHash:   blockHash,
		})
	}

	return utxos, nil
}

func (b *FullNodeBackend) confirmingBlock(txHash *chainhash.Hash) (uint32, *chainhash.Hash, error) {
	raw, err := b.client.GetRawTransactionVerbose(txHash)
	if err != nil {
		return 0, nil, err
	}
	if raw.BlockHash == "" {
		return 0, nil, nil
	}
	blockHash, err := chainhash.NewHashFromStr(raw.BlockHash)
	if err != nil {
		return 0, nil, err
	}
	hdr, err := b.client.GetBlockHeaderVerbose(blockHash)
	if err != nil {
		return 0, blockHash, err
	}
	return uint32(hdr.Height), blockHash, nil
}
