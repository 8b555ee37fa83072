package reserves

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
)

func TestParseOutpoint(t *testing.T) {
	op, err := parseOutpoint("0000000000000000000000000000000000000000000000000000000000000001:3")
	if err != nil {
		t.Fatalf("parseOutpoint: %v", err)
	}
	if op.Index != 3 {
		t.Fatalf("Index = %d, want 3", op.Index)
	}
}

func TestParseOutpointRejectsMissingColon(t *testing.T) {
	if _, err := parseOutpoint("not-an-outpoint"); err == nil {
		t.Fatalf("expected an error for a missing ':'")
	}
}

func TestParseOutpointRejectsBadVout(t *testing.T) {
	txid := "0000000000000000000000000000000000000000000000000000000000000001"
	if _, err := parseOutpoint(txid + ":abc"); err == nil {
		t.Fatalf("expected an error for a non-numeric vout")
	}
}

func TestParsePreviousOutput(t *testing.T) {
	value, script, err := parsePreviousOutput("100000:0014aabbccddeeff00112233445566778899aabbccdd")
	if err != nil {
		t.Fatalf("parsePreviousOutput: %v", err)
	}
	if value != 100000 {
		t.Fatalf("value = %d, want 100000", value)
	}
	if len(script) != 22 {
		t.Fatalf("script length = %d, want 22", len(script))
	}
}

func TestParsePreviousOutputRejectsMissingColon(t *testing.T) {
	if _, _, err := parsePreviousOutput("100000"); err == nil {
		t.Fatalf("expected an error for a missing ':'")
	}
}

func TestParseDerivationPath(t *testing.T) {
	path, err := parseDerivationPath("m/84'/0'/0'/0/5")
	if err != nil {
		t.Fatalf("parseDerivationPath: %v", err)
	}
	want := []uint32{
		84 + hdkeychain.HardenedKeyStart,
		0 + hdkeychain.HardenedKeyStart,
		0 + hdkeychain.HardenedKeyStart,
		0,
		5,
	}
	if len(path) != len(want) {
		t.Fatalf("path length = %d, want %d", len(path), len(want))
	}
	for i := range want {
		if path[i] != want[i] {
			t.Fatalf("path[%d] = %d, want %d", i, path[i], want[i])
		}
	}
}

func TestParseDerivationPathRejectsGarbage(t *testing.T) {
	if _, err := parseDerivationPath("m/not-a-number"); err == nil {
		t.Fatalf("expected an error for a non-numeric path component")
	}
}

func TestParseAddressType(t *testing.T) {
	cases := map[string]xpubAddressTypeWant{
		"p2wpkh": {wantP2TR: false},
		"":       {wantP2TR: false},
		"p2tr":   {wantP2TR: true},
	}
	for input, want := range cases {
		got, err := parseAddressType(input)
		if err != nil {
			t.Fatalf("parseAddressType(%q): %v", input, err)
		}
		gotIsP2TR := got == 1
		if gotIsP2TR != want.wantP2TR {
			t.Fatalf("parseAddressType(%q) = %v, want p2tr=%v", input, got, want.wantP2TR)
		}
	}
}

func TestParseAddressTypeRejectsUnknown(t *testing.T) {
	if _, err := parseAddressType("p2pkh"); err == nil {
		t.Fatalf("expected an error for an unsupported address type")
	}
}

type xpubAddressTypeWant struct {
	wantP2TR bool
}
