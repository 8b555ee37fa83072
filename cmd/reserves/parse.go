package reserves

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/dan/reserves/internal/reserveerr"
)

// parseOutpoint parses "<txid>:<vout>", txid in the usual display (reversed)
// hex form.
func parseOutpoint(s string) (*wire.OutPoint, error) {
	idx := strings.LastIndex(s, ":")
	if idx < 0 {
		return nil, reserveerr.Wrapf(reserveerr.KindDecode, nil, "outpoint %q must be <txid>:<vout>", s)
	}
	hash, err := chainhash.NewHashFromStr(s[:idx])
	if err != nil {
		return nil, reserveerr.Wrapf(reserveerr.KindDecode, err, "parsing txid in outpoint %q", s)
	}
	vout, err := strconv.ParseUint(s[idx+1:], 10, 32)
	if err != nil {
		return nil, reserveerr.Wrapf(reserveerr.KindDecode, err, "parsing vout in outpoint %q", s)
	}
	return wire.NewOutPoint(hash, uint32(vout)), nil
}

// parsePreviousOutput parses "<value_sats>:<script_hex>".
func parsePreviousOutput(s string) (int64, []byte, error) {
	idx := strings.Index(s, ":")
	if idx < 0 {
		return 0, nil, reserveerr.Wrapf(reserveerr.KindDecode, nil, "--previous-output %q must be <value_sats>:<script_hex>", s)
	}
	value, err := strconv.ParseInt(s[:idx], 10, 64)
	if err != nil {
		return 0, nil, reserveerr.Wrapf(reserveerr.KindDecode, err, "parsing value in --previous-output %q", s)
	}
	script, err := hex.DecodeString(s[idx+1:])
	if err != nil {
		return 0, nil, reserveerr.Wrapf(reserveerr.KindDecode, err, "parsing script in --previous-output %q", s)
	}
	return value, script, nil
}

// parseDerivationPath parses a BIP32 path like "m/84'/0'/0'/0/0" into the
// uint32 index sequence psbt.Bip32Derivation expects, applying
// hdkeychain.HardenedKeyStart to each hardened component.
func parseDerivationPath(s string) ([]uint32, error) {
	s = strings.TrimPrefix(s, "m/")
	s = strings.TrimPrefix(s, "M/")
	if s == "" {
		return nil, reserveerr.Wrapf(reserveerr.KindDecode, nil, "empty derivation path")
	}

	parts := strings.Split(s, "/")
	path := make([]uint32, 0, len(parts))
	for _, part := range parts {
		hardened := false
		if strings.HasSuffix(part, "'") || strings.HasSuffix(part, "h") || strings.HasSuffix(part, "H") {
			hardened = true
			part = part[:len(part)-1]
		}
		n, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return nil, reserveerr.Wrapf(reserveerr.KindDecode, err, "parsing derivation path component %q", part)
		}
		index := uint32(n)
		if hardened {
			index += hdkeychain.HardenedKeyStart
		}
		path = append(path, index)
	}
	return path, nil
}
