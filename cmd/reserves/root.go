// Package reserves implements the command dispatcher: one cobra command per
// proof-file operation, each performing a single load, mutate, save cycle
// against the path named by --proof-file. There is no persistent process
// state between invocations.
package reserves

import (
	"fmt"
	"os"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/dan/reserves/internal/logging"
)

// Ctx carries every global flag plus derived values (network parameters,
// logger) to a subcommand's RunE. It replaces the ambient global variables
// a simpler CLI might use, so tests can construct one directly without
// touching the process environment.
type Ctx struct {
	ProofFilePath string
	Testnet       bool
	DryRun        bool
	Verbosity     int

	Params *chaincfg.Params
	Logger hclog.Logger
}

// Execute builds the full command tree and runs it against os.Args,
// printing "Execution failed: <message>" and exiting 1 on any error.
func Execute() {
	ctx := &Ctx{}

	root := &cobra.Command{
		Use:   "reserves",
		Short: "Build, sign, and verify Provisions-style proof-of-reserves files",
		Long: `reserves builds, signs, and verifies proof-of-reserves files in the
style of Greg Maxwell's Provisions scheme: a single, unbroadcastable
transaction per proof binds an auditor's challenge string to a set of
UTXOs without ever moving funds.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			ctx.Params = &chaincfg.MainNetParams
			if ctx.Testnet {
				ctx.Params = &chaincfg.TestNet3Params
			}
			ctx.Logger = logging.New(ctx.Verbosity)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&ctx.ProofFilePath, "proof-file", "reserves.proof", "path to the proof file")
	root.PersistentFlags().BoolVar(&ctx.Testnet, "testnet", false, "use testnet network parameters")
	root.PersistentFlags().BoolVar(&ctx.DryRun, "dry-run", false, "run without writing the proof file")
	root.PersistentFlags().CountVarP(&ctx.Verbosity, "verbose", "v", "increase log verbosity (-v, -vv)")

	root.AddCommand(
		newInitCmd(ctx),
		newInspectCmd(ctx),
		newDropCmd(ctx),
		newAddUTXOCmd(ctx),
		newFetchUTXOsCmd(ctx),
		newDropUTXOsCmd(ctx),
		newAddProofCmd(ctx),
		newSignCmd(ctx),
		newVerifyCmd(ctx),
		newScanCmd(ctx),
	)

	if err := root.Execute(); err != nil {
		if ctx.Logger != nil {
			ctx.Logger.Error("command failed", "error", err)
		}
		fmt.Fprintln(os.Stderr, "Execution failed: "+err.Error())
		os.Exit(1)
	}
}
