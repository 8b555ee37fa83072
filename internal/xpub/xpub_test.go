package xpub

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
)

func testAccountXpub(t *testing.T) string {
	t.Helper()
	seed, err := hdkeychain.GenerateSeed(hdkeychain.RecommendedSeedLen)
	if err != nil {
		t.Fatalf("GenerateSeed: %v", err)
	}
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("NewMaster: %v", err)
	}
	pub, err := master.Neuter()
	if err != nil {
		t.Fatalf("Neuter: %v", err)
	}
	return pub.String()
}

func TestParsePlainXpub(t *testing.T) {
	xpubStr := testAccountXpub(t)

	account, err := Parse(xpubStr, &chaincfg.MainNetParams, P2WPKH)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if account.key == nil {
		t.Fatalf("expected a parsed key")
	}
}

func TestParseRejectsPrivateKey(t *testing.T) {
	seed, err := hdkeychain.GenerateSeed(hdkeychain.RecommendedSeedLen)
	if err != nil {
		t.Fatalf("GenerateSeed: %v", err)
	}
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("NewMaster: %v", err)
	}

	if _, err := Parse(master.String(), &chaincfg.MainNetParams, P2WPKH); err == nil {
		t.Fatalf("expected Parse to reject a private extended key")
	}
}

func TestParseRejectsMismatchedVersion(t *testing.T) {
	xpubStr := testAccountXpub(t)

	if _, err := Parse(xpubStr, &chaincfg.TestNet3Params, P2WPKH); err == nil {
		t.Fatalf("expected Parse to reject a mainnet xpub under testnet params")
	}
}

func TestZpubRoundTripsToStandardVersion(t *testing.T) {
	xpubStr := testAccountXpub(t)
	payload, _, err := base58CheckDecode(xpubStr)
	if err != nil {
		t.Fatalf("base58CheckDecode: %v", err)
	}
	zpubStr := base58CheckEncode(payload, zpubVersion[:])

	account, err := Parse(zpubStr, &chaincfg.MainNetParams, P2WPKH)
	if err != nil {
		t.Fatalf("Parse(zpub): %v", err)
	}
	if account.key.String() != xpubStr {
		t.Fatalf("zpub roundtrip produced %s, want %s", account.key.String(), xpubStr)
	}
}

func TestDeriveAddressIsDeterministicAndDistinctByType(t *testing.T) {
	xpubStr := testAccountXpub(t)

	segwitAccount, err := Parse(xpubStr, &chaincfg.MainNetParams, P2WPKH)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	taprootAccount, err := Parse(xpubStr, &chaincfg.MainNetParams, P2TR)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	addr1, sh1, err := segwitAccount.DeriveAddress(0, 0)
	if err != nil {
		t.Fatalf("DeriveAddress: %v", err)
	}
	addr2, sh2, err := segwitAccount.DeriveAddress(0, 0)
	if err != nil {
		t.Fatalf("DeriveAddress: %v", err)
	}
	if addr1 != addr2 || sh1 != sh2 {
		t.Fatalf("DeriveAddress is not deterministic: (%s,%s) vs (%s,%s)", addr1, sh1, addr2, sh2)
	}

	trAddr, _, err := taprootAccount.DeriveAddress(0, 0)
	if err != nil {
		t.Fatalf("DeriveAddress(taproot): %v", err)
	}
	if trAddr == addr1 {
		t.Fatalf("expected distinct addresses for P2WPKH vs P2TR, got the same %s", addr1)
	}
	if trAddr[:4] != "bc1p" {
		t.Fatalf("expected taproot address prefix bc1p, got %s", trAddr)
	}
	if addr1[:4] != "bc1q" {
		t.Fatalf("expected segwit address prefix bc1q, got %s", addr1)
	}
}

func TestDeriveAddressChangeBranchDiffersFromReceiving(t *testing.T) {
	xpubStr := testAccountXpub(t)
	account, err := Parse(xpubStr, &chaincfg.MainNetParams, P2WPKH)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	receiving, _, err := account.DeriveAddress(0, 0)
	if err != nil {
		t.Fatalf("DeriveAddress(receiving): %v", err)
	}
	change, _, err := account.DeriveAddress(1, 0)
	if err != nil {
		t.Fatalf("DeriveAddress(change): %v", err)
	}
	if receiving == change {
		t.Fatalf("receiving and change addresses must differ, both got %s", receiving)
	}
}

func TestBase58CheckRejectsBadChecksum(t *testing.T) {
	xpubStr := testAccountXpub(t)
	corrupted := []byte(xpubStr)
	corrupted[len(corrupted)-1] = corrupted[len(corrupted)-1] ^ 0xFF
	// Flipping bits on an arbitrary base58 character may produce an invalid
	// character rather than a bad checksum; either way decode must fail.
	if _, _, err := base58CheckDecode(string(corrupted)); err == nil {
		t.Fatalf("expected decode of corrupted key to fail")
	}
}
