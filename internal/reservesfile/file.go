// Package reservesfile implements the proof file container: a versioned,
// length-delimited binary format holding the challenge, the target block
// height, the network tag, and an ordered collection of proofs.
package reservesfile

import (
	"os"

	"github.com/dan/reserves/internal/reserveerr"
	"github.com/dan/reserves/internal/reserveproof"
)

// Network is the chain this proof file targets. LIQUID is reserved for a
// future confidential-amount proof format; the verify command rejects it,
// and no other command checks for it.
type Network uint8

const (
	NetworkUndefined Network = 0
	NetworkMainnet   Network = 1
	NetworkTestnet   Network = 2
	NetworkLiquid    Network = 3
)

func (n Network) String() string {
	switch n {
	case NetworkMainnet:
		return "BITCOIN_MAINNET"
	case NetworkTestnet:
		return "BITCOIN_TESTNET"
	case NetworkLiquid:
		return "LIQUID"
	default:
		return "UNDEFINED"
	}
}

// CurrentVersion is the only proof-file version this implementation
// accepts. Version 0 and any version other than 1 fail on load.
const CurrentVersion = uint32(1)

// ProofFile is the on-disk container. Proofs are ordered; commands
// take-and-reinsert-at-front so the most recently touched proof is the
// first one inspect prints.
type ProofFile struct {
	Version     uint32
	Network     Network
	Challenge   string
	BlockNumber uint32
	Proofs      []*reserveproof.Proof
}

// New creates an empty proof file for a freshly-chosen challenge.
func New(network Network, challengeStr string, blockNumber uint32) *ProofFile {
	return &ProofFile{
		Version:     CurrentVersion,
		Network:     network,
		Challenge:   challengeStr,
		BlockNumber: blockNumber,
	}
}

// TakeProof removes and returns the proof with the given id, if present.
// Callers mutate the returned proof and call InsertFront to put it back.
func (pf *ProofFile) TakeProof(id string) (*reserveproof.Proof, bool) {
	for i, p := range pf.Proofs {
		if p.ID == id {
			pf.Proofs = append(pf.Proofs[:i], pf.Proofs[i+1:]...)
			return p, true
		}
	}
	return nil, false
}

// InsertFront prepends p, making it the first proof inspect will print.
func (pf *ProofFile) InsertFront(p *reserveproof.Proof) {
	pf.Proofs = append([]*reserveproof.Proof{p}, pf.Proofs...)
}

// DropProofs removes every proof matching id, returning the count removed.
func (pf *ProofFile) DropProofs(id string) int {
	kept := pf.Proofs[:0]
	removed := 0
	for _, p := range pf.Proofs {
		if p.ID == id {
			removed++
			continue
		}
		kept = append(kept, p)
	}
	pf.Proofs = kept
	return removed
}

// Load reads and decodes a proof file from path, rejecting any version
// other than CurrentVersion.
func Load(path string) (*ProofFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, reserveerr.Wrapf(reserveerr.KindIO, err, "reading proof file %q", path)
	}
	pf, err := decodeProofFile(data)
	if err != nil {
		return nil, err
	}
	if pf.Version != CurrentVersion {
		return nil, reserveerr.Wrapf(reserveerr.KindVersion, nil, "proof file %q has version %d, only version %d is supported", path, pf.Version, CurrentVersion)
	}
	return pf, nil
}

// Save serializes pf and atomically overwrites path, unless dryRun is set
// (in which case the write is skipped entirely).
func Save(path string, pf *ProofFile, dryRun bool) error {
	if dryRun {
		return nil
	}
	data, err := encodeProofFile(pf)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return reserveerr.Wrapf(reserveerr.KindIO, err, "writing proof file %q", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return reserveerr.Wrapf(reserveerr.KindIO, err, "replacing proof file %q", path)
	}
	return nil
}
