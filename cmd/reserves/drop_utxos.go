package reserves

import (
	"github.com/btcsuite/btcd/wire"
	"github.com/spf13/cobra"

	"github.com/dan/reserves/internal/reserveproof"
)

func newDropUTXOsCmd(ctx *Ctx) *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "drop-utxos <txid>:<vout>...",
		Short: "Remove UTXOs from a proof still gathering inputs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outpoints := make([]wire.OutPoint, 0, len(args))
			for _, a := range args {
				op, err := parseOutpoint(a)
				if err != nil {
					return err
				}
				outpoints = append(outpoints, *op)
			}

			return withProof(ctx, id, false, func(p *reserveproof.Proof) error {
				dropped, err := p.DropUTXOs(outpoints)
				if err != nil {
					return err
				}
				ctx.Logger.Info("dropped utxos", "id", id, "count", dropped)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "proof id to drop UTXOs from")
	cmd.MarkFlagRequired("id")

	return cmd
}
