package reserves

import (
	"github.com/spf13/cobra"

	"github.com/dan/reserves/internal/reservesfile"
)

func newInitCmd(ctx *Ctx) *cobra.Command {
	var challengeStr string
	var blockNumber uint32

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a new proof file bound to a challenge string",
		RunE: func(cmd *cobra.Command, args []string) error {
			network := reservesfile.NetworkMainnet
			if ctx.Testnet {
				network = reservesfile.NetworkTestnet
			}

			pf := reservesfile.New(network, challengeStr, blockNumber)
			if err := saveFile(ctx, pf); err != nil {
				return err
			}

			ctx.Logger.Info("created proof file", "path", ctx.ProofFilePath, "challenge", challengeStr, "network", network)
			return nil
		},
	}

	cmd.Flags().StringVar(&challengeStr, "challenge", "", "challenge string the auditor presented")
	cmd.Flags().Uint32Var(&blockNumber, "block-number", 0, "block height this proof run targets")
	cmd.MarkFlagRequired("challenge")

	return cmd
}
