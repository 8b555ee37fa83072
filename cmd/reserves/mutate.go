package reserves

import (
	"github.com/dan/reserves/internal/reserveerr"
	"github.com/dan/reserves/internal/reserveproof"
	"github.com/dan/reserves/internal/reservesfile"
)

func loadFile(ctx *Ctx) (*reservesfile.ProofFile, error) {
	return reservesfile.Load(ctx.ProofFilePath)
}

func saveFile(ctx *Ctx, pf *reservesfile.ProofFile) error {
	return reservesfile.Save(ctx.ProofFilePath, pf, ctx.DryRun)
}

// withProof loads the proof file, takes the named proof (creating a fresh
// one in GATHERING_UTXOS if allowCreate is set and none exists), runs fn,
// reinserts the proof at the front of the file, and saves. It is the single
// load-mutate-save path shared by every command that touches one proof.
func withProof(ctx *Ctx, id string, allowCreate bool, fn func(*reserveproof.Proof) error) error {
	pf, err := loadFile(ctx)
	if err != nil {
		return err
	}

	proof, ok := pf.TakeProof(id)
	if !ok {
		if !allowCreate {
			return reserveerr.Wrapf(reserveerr.KindState, nil, "no such proof %q in %q", id, ctx.ProofFilePath)
		}
		proof = reserveproof.New(id)
	}

	if err := fn(proof); err != nil {
		return err
	}

	pf.InsertFront(proof)
	return saveFile(ctx, pf)
}
