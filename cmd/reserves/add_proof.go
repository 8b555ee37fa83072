package reserves

import (
	"bytes"
	"encoding/hex"

	"github.com/btcsuite/btcd/wire"
	"github.com/spf13/cobra"

	"github.com/dan/reserves/internal/challenge"
	"github.com/dan/reserves/internal/reserveerr"
	"github.com/dan/reserves/internal/reserveproof"
)

func newAddProofCmd(ctx *Ctx) *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "add-proof <hex_tx>",
		Short: "Import a pre-built proof transaction directly as FINAL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := hex.DecodeString(args[0])
			if err != nil {
				return reserveerr.Wrapf(reserveerr.KindDecode, err, "decoding proof transaction hex")
			}
			tx := wire.NewMsgTx(wire.TxVersion)
			if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
				return reserveerr.Wrapf(reserveerr.KindDecode, err, "parsing proof transaction")
			}
			if len(tx.TxIn) < 2 {
				return reserveerr.Wrapf(reserveerr.KindConsensus, nil, "proof transaction has %d inputs, want at least 2", len(tx.TxIn))
			}

			pf, err := loadFile(ctx)
			if err != nil {
				return err
			}

			wantOutpoint := challenge.OutPoint(pf.Challenge)
			if tx.TxIn[0].PreviousOutPoint != *wantOutpoint {
				return reserveerr.Wrapf(reserveerr.KindChallengeMismatch, nil, "proof transaction's input[0] does not bind challenge %q", pf.Challenge)
			}

			if existing, ok := pf.TakeProof(id); ok {
				pf.InsertFront(existing)
				return reserveerr.Wrapf(reserveerr.KindDuplicate, nil, "a proof with id %q already exists", id)
			}

			pf.InsertFront(reserveproof.AdoptFinal(id, tx))

			if err := saveFile(ctx, pf); err != nil {
				return err
			}
			ctx.Logger.Info("added proof", "id", id, "txid", tx.TxHash())
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "id to give the imported proof")
	cmd.MarkFlagRequired("id")

	return cmd
}
