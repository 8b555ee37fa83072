package reserves

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dan/reserves/internal/backend"
	"github.com/dan/reserves/internal/prevout"
	"github.com/dan/reserves/internal/reserveerr"
	"github.com/dan/reserves/internal/reserveproof"
	"github.com/dan/reserves/internal/reservesfile"
	"github.com/dan/reserves/internal/verifier"
)

func newVerifyCmd(ctx *Ctx) *cobra.Command {
	var bitcoind, bitcoindUser, bitcoindPass string
	var disableTLS bool

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Resolve every FINAL proof's prevouts and check it against consensus rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			pf, err := loadFile(ctx)
			if err != nil {
				return err
			}
			if pf.Network == reservesfile.NetworkLiquid {
				return reserveerr.Wrapf(reserveerr.KindConsensus, nil, "liquid proofs are not supported yet")
			}

			if err := verifier.CheckGlobalUniqueness(pf.Proofs); err != nil {
				return err
			}

			user, pass := resolveRPCCredentials(bitcoindUser, bitcoindPass)
			node, err := backend.NewFullNodeBackend(ctx.Logger, backend.FullNodeConfig{
				Host:       bitcoind,
				User:       user,
				Pass:       pass,
				DisableTLS: disableTLS,
			})
			if err != nil {
				return err
			}
			defer node.Close()

			resolver := prevout.New(ctx.Logger, node.Client())

			var total int64
			var verified int
			for _, p := range pf.Proofs {
				if p.Status != reserveproof.StatusFinal {
					continue
				}

				prevouts, err := resolver.Resolve(p, pf.BlockNumber)
				if err != nil {
					return err
				}
				result, err := verifier.Verify(ctx.Logger, pf.Challenge, p, prevouts)
				if err != nil {
					return err
				}

				fmt.Printf("proof %s: OK, reserve total %d sat\n", result.ProofID, result.Total)
				total += result.Total
				verified++
			}

			fmt.Printf("verified %d proof(s), total reserve %d sat\n", verified, total)
			return nil
		},
	}

	cmd.Flags().StringVar(&bitcoind, "bitcoind", "", "bitcoind RPC endpoint used to resolve prevouts, host:port")
	cmd.Flags().StringVar(&bitcoindUser, "bitcoind-user", "", "bitcoind RPC username (or BITCOIND_RPC_USER)")
	cmd.Flags().StringVar(&bitcoindPass, "bitcoind-pass", "", "bitcoind RPC password (or BITCOIND_RPC_PASS)")
	cmd.Flags().BoolVar(&disableTLS, "disable-tls", true, "connect to bitcoind over plain HTTP")
	cmd.MarkFlagRequired("bitcoind")

	return cmd
}
