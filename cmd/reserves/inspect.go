package reserves

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newInspectCmd(ctx *Ctx) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Print a proof file's contents",
		RunE: func(cmd *cobra.Command, args []string) error {
			pf, err := loadFile(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("proof file:   %s\n", ctx.ProofFilePath)
			fmt.Printf("version:      %d\n", pf.Version)
			fmt.Printf("network:      %s\n", pf.Network)
			fmt.Printf("challenge:    %q\n", pf.Challenge)
			fmt.Printf("block number: %d\n", pf.BlockNumber)
			fmt.Printf("proofs:       %d\n", len(pf.Proofs))

			for i, p := range pf.Proofs {
				fmt.Printf("\n[%d] id=%s status=%s utxos=%d\n", i, p.ID, p.Status, len(p.UTXOs))
				for _, u := range p.UTXOs {
					fmt.Printf("    utxo %s:%d\n", u.Outpoint.Hash, u.Outpoint.Index)
				}
				if p.ProofTx != nil {
					fmt.Printf("    proof_tx txid=%s inputs=%d outputs=%d\n", p.ProofTx.TxHash(), len(p.ProofTx.TxIn), len(p.ProofTx.TxOut))
				}
			}

			return nil
		},
	}
}
