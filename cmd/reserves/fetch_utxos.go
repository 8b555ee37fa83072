package reserves

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/dan/reserves/internal/backend"
	"github.com/dan/reserves/internal/reserveproof"
)

func newFetchUTXOsCmd(ctx *Ctx) *cobra.Command {
	var id string
	var bitcoind string
	var bitcoindUser string
	var bitcoindPass string
	var disableTLS bool

	cmd := &cobra.Command{
		Use:   "fetch-utxos",
		Short: "Import a full node's own spendable UTXOs into a proof",
		RunE: func(cmd *cobra.Command, args []string) error {
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

			utxos, err := node.FetchUTXOs()
			if err != nil {
				return err
			}

			return withProof(ctx, id, true, func(p *reserveproof.Proof) error {
				for _, u := range utxos {
					if err := p.AddUTXO(u); err != nil {
						return err
					}
				}
				ctx.Logger.Info("fetched utxos from bitcoind", "id", id, "count", len(utxos))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "proof id to add the fetched UTXOs to (created if it does not exist yet)")
	cmd.Flags().StringVar(&bitcoind, "bitcoind", "", "bitcoind RPC endpoint, host:port")
	cmd.Flags().StringVar(&bitcoindUser, "bitcoind-user", "", "bitcoind RPC username (or BITCOIND_RPC_USER)")
	cmd.Flags().StringVar(&bitcoindPass, "bitcoind-pass", "", "bitcoind RPC password (or BITCOIND_RPC_PASS)")
	cmd.Flags().BoolVar(&disableTLS, "disable-tls", true, "connect to bitcoind over plain HTTP")
	cmd.MarkFlagRequired("id")
	cmd.MarkFlagRequired("bitcoind")

	return cmd
}

// resolveRPCCredentials prefers explicit flags, falling back to the
// environment so a credential never needs to appear in shell history.
func resolveRPCCredentials(user, pass string) (string, string) {
	if user == "" {
		user = os.Getenv("BITCOIND_RPC_USER")
	}
	if pass == "" {
		pass = os.Getenv("BITCOIND_RPC_PASS")
	}
	return user, pass
}
