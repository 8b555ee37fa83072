package reserves

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dan/reserves/internal/electrum"
	"github.com/dan/reserves/internal/reserveerr"
	"github.com/dan/reserves/internal/xpub"
)

// newScanCmd builds the read-only watch-only balance preview: it never
// opens the proof file, existing purely to let an auditor eyeball a
// descriptor's balance before committing to a fetch-utxos/sign/verify run.
func newScanCmd(ctx *Ctx) *cobra.Command {
	var descriptor string
	var electrumServer string
	var addressTypeFlag string
	var gapLimit int

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Preview a watch-only xpub/zpub's balance over an Electrum server",
		RunE: func(cmd *cobra.Command, args []string) error {
			addrType, err := parseAddressType(addressTypeFlag)
			if err != nil {
				return err
			}

			account, err := xpub.Parse(descriptor, ctx.Params, addrType)
			if err != nil {
				return err
			}

			client, err := electrum.NewClient(electrumServer)
			if err != nil {
				return reserveerr.Wrapf(reserveerr.KindBackend, err, "connecting to electrum server %q", electrumServer)
			}
			defer client.Close()

			branches := []struct {
				index uint32
				label string
			}{
				{0, "receiving"},
				{1, "change"},
			}

			var confirmed, unconfirmed int64
			for _, b := range branches {
				found, err := scanBranch(client, account, b.index, gapLimit, b.label)
				if err != nil {
					return err
				}
				confirmed += found.confirmed
				unconfirmed += found.unconfirmed
			}

			fmt.Printf("\ntotal confirmed:   %d sat\n", confirmed)
			fmt.Printf("total unconfirmed: %d sat\n", unconfirmed)
			return nil
		},
	}

	cmd.Flags().StringVar(&descriptor, "descriptor", "", "xpub/zpub (or tpub/vpub for testnet) to scan")
	cmd.Flags().StringVar(&electrumServer, "electrum-server", "", "electrum server address, e.g. ssl://host:port")
	cmd.Flags().StringVar(&addressTypeFlag, "address-type", "p2wpkh", "address type to derive: p2wpkh or p2tr")
	cmd.Flags().IntVar(&gapLimit, "gap-limit", 20, "consecutive unused addresses before a branch is considered exhausted")
	cmd.MarkFlagRequired("descriptor")
	cmd.MarkFlagRequired("electrum-server")

	return cmd
}

type branchBalance struct {
	confirmed   int64
	unconfirmed int64
}

func scanBranch(client *electrum.Client, account *xpub.Account, branch uint32, gapLimit int, label string) (branchBalance, error) {
	var total branchBalance
	gap := 0

	for index := uint32(0); gap < gapLimit; index++ {
		address, scripthash, err := account.DeriveAddress(branch, index)
		if err != nil {
			return total, err
		}

		balance, err := client.GetBalance(scripthash)
		if err != nil {
			return total, reserveerr.Wrapf(reserveerr.KindBackend, err, "querying balance for %s", address)
		}
		history, err := client.GetHistory(scripthash)
		if err != nil {
			return total, reserveerr.Wrapf(reserveerr.KindBackend, err, "querying history for %s", address)
		}

		if balance.Confirmed == 0 && balance.Unconfirmed == 0 && len(history) == 0 {
			gap++
			continue
		}
		gap = 0

		fmt.Printf("%-10s [%d] %s  confirmed=%d unconfirmed=%d history=%d\n",
			label, index, address, balance.Confirmed, balance.Unconfirmed, len(history))
		total.confirmed += balance.Confirmed
		total.unconfirmed += balance.Unconfirmed
	}

	return total, nil
}

func parseAddressType(s string) (xpub.AddressType, error) {
	switch s {
	case "p2wpkh", "":
		return xpub.P2WPKH, nil
	case "p2tr":
		return xpub.P2TR, nil
	default:
		return 0, reserveerr.Wrapf(reserveerr.KindDecode, nil, "unknown --address-type %q, want p2wpkh or p2tr", s)
	}
}
