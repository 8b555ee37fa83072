package reserves

import (
	"os"
	"time"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/spf13/cobra"

	"github.com/dan/reserves/internal/backend"
	"github.com/dan/reserves/internal/hwdevice"
	"github.com/dan/reserves/internal/reserveerr"
	"github.com/dan/reserves/internal/reserveproof"
)

// hwDriverSigner adapts hwdevice.Driver, which needs the network's
// parameters alongside the PSBT, to the plain backend.Signer contract every
// other backend satisfies directly.
type hwDriverSigner struct {
	driver *hwdevice.Driver
	params *chaincfg.Params
}

func (s hwDriverSigner) SignTx(pkt *psbt.Packet) (*wire.MsgTx, error) {
	return s.driver.SignTx(pkt, s.params)
}

func newSignCmd(ctx *Ctx) *cobra.Command {
	var id string
	var bitcoind, bitcoindUser, bitcoindPass string
	var disableTLS bool
	var hwDevice string
	var hwTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Advance a proof to SIGNING if needed, then sign it with a backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			pf, err := loadFile(ctx)
			if err != nil {
				return err
			}
			proof, ok := pf.TakeProof(id)
			if !ok {
				return reserveerr.Wrapf(reserveerr.KindState, nil, "no such proof %q in %q", id, ctx.ProofFilePath)
			}

			if proof.Status == reserveproof.StatusGatheringUTXOs {
				if err := proof.StartSigning(pf.Challenge); err != nil {
					return err
				}
			}
			if proof.Status != reserveproof.StatusSigning {
				return reserveerr.Wrapf(reserveerr.KindState, nil, "proof %q: sign requires status GATHERING_UTXOS or SIGNING, got %s", id, proof.Status)
			}

			signer, closeBackend, err := buildSigner(ctx, bitcoind, bitcoindUser, bitcoindPass, disableTLS, hwDevice, hwTimeout)
			if err != nil {
				return err
			}
			defer closeBackend()

			tx, err := signer.SignTx(proof.PSBT)
			if err != nil {
				return err
			}
			if err := proof.Finalize(tx); err != nil {
				return err
			}

			pf.InsertFront(proof)
			if err := saveFile(ctx, pf); err != nil {
				return err
			}
			ctx.Logger.Info("signed proof", "id", id, "txid", tx.TxHash())
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "proof id to sign")
	cmd.Flags().StringVar(&bitcoind, "bitcoind", "", "sign via a bitcoind wallet at this RPC endpoint, host:port")
	cmd.Flags().StringVar(&bitcoindUser, "bitcoind-user", "", "bitcoind RPC username (or BITCOIND_RPC_USER)")
	cmd.Flags().StringVar(&bitcoindPass, "bitcoind-pass", "", "bitcoind RPC password (or BITCOIND_RPC_PASS)")
	cmd.Flags().BoolVar(&disableTLS, "disable-tls", true, "connect to bitcoind over plain HTTP")
	cmd.Flags().StringVar(&hwDevice, "hw-device", "", "sign via a hardware wallet reachable at this JSON-line address, host:port")
	cmd.Flags().DurationVar(&hwTimeout, "hw-timeout", 30*time.Second, "hardware wallet connection timeout")
	cmd.MarkFlagRequired("id")

	return cmd
}

func buildSigner(ctx *Ctx, bitcoind, user, pass string, disableTLS bool, hwDeviceAddr string, hwTimeout time.Duration) (backend.Signer, func(), error) {
	switch {
	case bitcoind != "":
		resolvedUser, resolvedPass := resolveRPCCredentials(user, pass)
		node, err := backend.NewFullNodeBackend(ctx.Logger, backend.FullNodeConfig{
			Host:       bitcoind,
			User:       resolvedUser,
			Pass:       resolvedPass,
			DisableTLS: disableTLS,
		})
		if err != nil {
			return nil, nil, err
		}
		return node, node.Close, nil

	case hwDeviceAddr != "":
		device := hwdevice.NewJSONLineDevice(hwDeviceAddr, hwTimeout)
		driver := hwdevice.NewDriver(ctx.Logger, device, hwdevice.NewTerminalPrompter(os.Stdin, os.Stderr))
		return hwDriverSigner{driver: driver, params: ctx.Params}, func() {}, nil

	default:
		return nil, nil, reserveerr.Wrapf(reserveerr.KindBackend, nil, "sign requires --bitcoind or --hw-device")
	}
}
