// Package xpub derives watch-only receiving and change addresses from an
// extended public key, for the scan command's balance preview. It never
// touches a private key: this tool does no wallet key management.
package xpub

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

// AddressType selects which output script a derived key should back.
type AddressType int

const (
	// P2WPKH is BIP84 native SegWit (bc1q.../tb1q...).
	P2WPKH AddressType = iota
	// P2TR is BIP86 Taproot key-path only (bc1p.../tb1p...).
	P2TR
)

// slip132 version bytes, used by wallets like Sparrow to recognize a
// BIP84 account key's purpose from its prefix instead of the plain
// xpub/tpub prefix hdkeychain itself understands.
var (
	zpubVersion = [4]byte{0x04, 0xb2, 0x47, 0x46} // mainnet
	vpubVersion = [4]byte{0x04, 0x5f, 0x1c, 0xf6} // testnet
)

// Account wraps a parsed account-level extended public key (depth 3:
// m/purpose'/coin_type'/account') ready for address-index derivation.
type Account struct {
	key    *hdkeychain.ExtendedKey
	params *chaincfg.Params
	typ    AddressType
}

// Parse decodes an xpub/tpub (or the SLIP-0132 zpub/vpub variants BIP84
// wallets export) into an Account for the given network. addrType governs
// how the returned Account later builds addresses: zpub/vpub
// strongly imply P2WPKH, but a plain xpub/tpub is ambiguous, so the caller
// states the intended type explicitly.
func Parse(extendedKey string, params *chaincfg.Params, addrType AddressType) (*Account, error) {
	standard, err := toStandardVersion(extendedKey, params)
	if err != nil {
		return nil, err
	}

	key, err := hdkeychain.NewKeyFromString(standard, params)
	if err != nil {
		return nil, fmt.Errorf("parsing extended key: %w", err)
	}
	if key.IsPrivate() {
		return nil, fmt.Errorf("expected a public extended key, got a private one")
	}

	return &Account{key: key, params: params, typ: addrType}, nil
}

// DeriveAddress returns the receiving (change=0) or change (change=1)
// address at index, plus its Electrum scripthash.
func (a *Account) DeriveAddress(change, index uint32) (address string, scripthash string, err error) {
	changeKey, err := a.key.Derive(change)
	if err != nil {
		return "", "", fmt.Errorf("deriving change branch %d: %w", change, err)
	}
	addrKey, err := changeKey.Derive(index)
	if err != nil {
		return "", "", fmt.Errorf("deriving address index %d: %w", index, err)
	}

	pubKey, err := addrKey.ECPubKey()
	if err != nil {
		return "", "", fmt.Errorf("reading public key: %w", err)
	}

	var addr btcutil.Address
	switch a.typ {
	case P2TR:
		taprootKey := txscript.ComputeTaprootKeyNoScript(pubKey)
		addr, err = btcutil.NewAddressTaproot(schnorr.SerializePubKey(taprootKey), a.params)
	default:
		hash160 := btcutil.Hash160(pubKey.SerializeCompressed())
		addr, err = btcutil.NewAddressWitnessPubKeyHash(hash160, a.params)
	}
	if err != nil {
		return "", "", fmt.Errorf("building address: %w", err)
	}

	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return "", "", fmt.Errorf("building scriptPubKey: %w", err)
	}

	return addr.EncodeAddress(), scriptHash(script), nil
}

// scriptHash computes the Electrum scripthash for a scriptPubKey: SHA-256
// of the script, byte-reversed.
func scriptHash(script []byte) string {
	sum := sha256.Sum256(script)
	for i, j := 0, len(sum)-1; i < j; i, j = i+1, j-1 {
		sum[i], sum[j] = sum[j], sum[i]
	}
	return hex.EncodeToString(sum[:])
}

// toStandardVersion rewrites a SLIP-0132 zpub/vpub into the plain
// xpub/tpub version bytes hdkeychain.NewKeyFromString understands. A key
// already in standard form is returned unchanged.
func toStandardVersion(extendedKey string, params *chaincfg.Params) (string, error) {
	payload, version, err := base58CheckDecode(extendedKey)
	if err != nil {
		return "", fmt.Errorf("decoding extended key: %w", err)
	}

	standardVersion := params.HDPublicKeyID[:]
	if bytesEqual(version, standardVersion) {
		return extendedKey, nil
	}
	if bytesEqual(version, zpubVersion[:]) || bytesEqual(version, vpubVersion[:]) {
		return base58CheckEncode(payload, standardVersion), nil
	}
	return "", fmt.Errorf("unrecognized extended key version bytes %x", version)
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// base58CheckDecode and base58CheckEncode implement base58check with a
// 4-byte version prefix, the scheme extended public keys use. btcutil's
// own Base58CheckDecode assumes a single-byte version (addresses, WIF) and
// cannot be reused here.
func base58CheckDecode(encoded string) (payload []byte, version []byte, err error) {
	var result []byte
	for _, c := range encoded {
		idx := -1
		for i, a := range base58Alphabet {
			if a == c {
				idx = i
				break
			}
		}
		if idx == -1 {
			return nil, nil, fmt.Errorf("invalid base58 character %q", c)
		}
		carry := idx
		for i := len(result) - 1; i >= 0; i-- {
			carry += int(result[i]) * 58
			result[i] = byte(carry & 0xff)
			carry >>= 8
		}
		for carry > 0 {
			result = append([]byte{byte(carry & 0xff)}, result...)
			carry >>= 8
		}
	}
	for _, c := range encoded {
		if c != '1' {
			break
		}
		result = append([]byte{0}, result...)
	}

	if len(result) < 4+4 {
		return nil, nil, fmt.Errorf("decoded extended key too short")
	}
	version = result[:4]
	body := result[4 : len(result)-4]
	checksum := result[len(result)-4:]

	want := doubleSHA256(append(append([]byte{}, version...), body...))[:4]
	if !bytesEqual(checksum, want) {
		return nil, nil, fmt.Errorf("invalid base58check checksum")
	}
	return body, version, nil
}

func base58CheckEncode(payload []byte, version []byte) string {
	data := append(append([]byte{}, version...), payload...)
	checksum := doubleSHA256(data)[:4]
	data = append(data, checksum...)

	var leadingZeros int
	for _, b := range data {
		if b != 0 {
			break
		}
		leadingZeros++
	}

	var result []byte
	for _, b := range data {
		carry := int(b)
		for i := len(result) - 1; i >= 0; i-- {
			carry += int(result[i]) << 8
			result[i] = byte(carry % 58)
			carry /= 58
		}
		for carry > 0 {
			result = append([]byte{byte(carry % 58)}, result...)
			carry /= 58
		}
	}
	for i := 0; i < leadingZeros; i++ {
		result = append([]byte{0}, result...)
	}

	encoded := make([]byte, len(result))
	for i, b := range result {
		encoded[i] = base58Alphabet[b]
	}
	return string(encoded)
}

func doubleSHA256(data []byte) []byte {
	h1 := sha256.Sum256(data)
	h2 := sha256.Sum256(h1[:])
	return h2[:]
}
