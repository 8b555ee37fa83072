package reserves

import (
	"github.com/spf13/cobra"

	"github.com/dan/reserves/internal/reserveerr"
)

func newDropCmd(ctx *Ctx) *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "drop",
		Short: "Remove a proof from the file",
		RunE: func(cmd *cobra.Command, args []string) error {
			pf, err := loadFile(ctx)
			if err != nil {
				return err
			}

			if removed := pf.DropProofs(id); removed == 0 {
				return reserveerr.Wrapf(reserveerr.KindState, nil, "no such proof %q in %q", id, ctx.ProofFilePath)
			}

			if err := saveFile(ctx, pf); err != nil {
				return err
			}
			ctx.Logger.Info("dropped proof", "id", id)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "id of the proof to drop")
	cmd.MarkFlagRequired("id")

	return cmd
}
