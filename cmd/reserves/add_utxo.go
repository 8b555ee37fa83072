package reserves

import (
	"bytes"
	"encoding/hex"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/spf13/cobra"

	"github.com/dan/reserves/internal/reserveerr"
	"github.com/dan/reserves/internal/reserveproof"
)

func newAddUTXOCmd(ctx *Ctx) *cobra.Command {
	var id string
	var previousTxHex string
	var previousOutput string
	var hdKeypath string
	var hdPubkeyHex string
	var redeemScriptHex string
	var witnessScriptHex string
	var blockNumber uint32
	var blockHashHex string

	cmd := &cobra.Command{
		Use:   "add-utxo <txid>:<vout>",
		Short: "Manually add a UTXO to a proof still gathering inputs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outpoint, err := parseOutpoint(args[0])
			if err != nil {
				return err
			}

			pin := psbt.PInput{}
			switch {
			case previousTxHex != "":
				raw, err := hex.DecodeString(previousTxHex)
				if err != nil {
					return reserveerr.Wrapf(reserveerr.KindDecode, err, "decoding --previous-tx")
				}
				tx := wire.NewMsgTx(wire.TxVersion)
				if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
					return reserveerr.Wrapf(reserveerr.KindDecode, err, "parsing --previous-tx")
				}
				pin.NonWitnessUtxo = tx
			case previousOutput != "":
				value, script, err := parsePreviousOutput(previousOutput)
				if err != nil {
					return err
				}
				pin.WitnessUtxo = &wire.TxOut{Value: value, PkScript: script}
			default:
				return reserveerr.Wrapf(reserveerr.KindDecode, nil, "add-utxo requires --previous-tx or --previous-output")
			}

			if redeemScriptHex != "" {
				script, err := hex.DecodeString(redeemScriptHex)
				if err != nil {
					return reserveerr.Wrapf(reserveerr.KindDecode, err, "decoding --redeem-script")
				}
				pin.RedeemScript = script
			}
			if witnessScriptHex != "" {
				script, err := hex.DecodeString(witnessScriptHex)
				if err != nil {
					return reserveerr.Wrapf(reserveerr.KindDecode, err, "decoding --witness-script")
				}
				pin.WitnessScript = script
			}

			if hdKeypath != "" {
				if hdPubkeyHex == "" {
					return reserveerr.Wrapf(reserveerr.KindDecode, nil, "--hd-keypath requires --hd-pubkey")
				}
				pubkey, err := hex.DecodeString(hdPubkeyHex)
				if err != nil {
					return reserveerr.Wrapf(reserveerr.KindDecode, err, "decoding --hd-pubkey")
				}
				path, err := parseDerivationPath(hdKeypath)
				if err != nil {
					return err
				}
				pin.Bip32Derivation = append(pin.Bip32Derivation, &psbt.Bip32Derivation{
					PubKey:    pubkey,
					Bip32Path: path,
				})
			}

			var blockHash *chainhash.Hash
			if blockHashHex != "" {
				h, err := chainhash.NewHashFromStr(blockHashHex)
				if err != nil {
					return reserveerr.Wrapf(reserveerr.KindDecode, err, "decoding --block-hash")
				}
				blockHash = h
			}

			return withProof(ctx, id, true, func(p *reserveproof.Proof) error {
				return p.AddUTXO(reserveproof.UTXO{
					Outpoint:    *outpoint,
					PSBTInput:   pin,
					BlockNumber: blockNumber,
					BlockHash:   blockHash,
				})
			})
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "proof id to add the UTXO to (created if it does not exist yet)")
	cmd.Flags().StringVar(&previousTxHex, "previous-tx", "", "hex-encoded previous transaction, for a non-witness UTXO")
	cmd.Flags().StringVar(&previousOutput, "previous-output", "", "witness UTXO as <value_sats>:<script_hex>")
	cmd.Flags().StringVar(&hdKeypath, "hd-keypath", "", "BIP32 derivation path for this UTXO's key, e.g. m/84'/0'/0'/0/0")
	cmd.Flags().StringVar(&hdPubkeyHex, "hd-pubkey", "", "hex-encoded public key the derivation path belongs to (required alongside --hd-keypath)")
	cmd.Flags().StringVar(&redeemScriptHex, "redeem-script", "", "hex-encoded redeem script, for P2SH/P2SH-P2WSH inputs")
	cmd.Flags().StringVar(&witnessScriptHex, "witness-script", "", "hex-encoded witness script, for P2WSH inputs")
	cmd.Flags().Uint32Var(&blockNumber, "block-number", 0, "block height hint used to resolve this UTXO's prevout at verify time")
	cmd.Flags().StringVar(&blockHashHex, "block-hash", "", "block hash hint used to resolve this UTXO's prevout at verify time")
	cmd.MarkFlagRequired("id")

	return cmd
}
