package scanproto

import (
	"encoding/binary"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// S4 — Set-config A4 duplex color auto.
func TestScanConfigPackA4DuplexAuto(t *testing.T) {
	token, err := NewToken()
	if err != nil {
		t.Fatalf("NewToken: %v", err)
	}
	cfg := ScanConfig{
		ColorMode: ColorAuto,
		Quality:   QualityAuto,
		Duplex:    true,
		PaperSize: PaperA4,
	}

	buf := cfg.Pack(token)
	if len(buf) != 192 {
		t.Fatalf("expected total length 192, got %d", len(buf))
	}
	if got := buf[65]; got != 0x03 {
		t.Errorf("byte +65: want 0x03, got 0x%02X", got)
	}
	if got := buf[66]; got != 0x01 {
		t.Errorf("byte +66: want 0x01, got 0x%02X", got)
	}
	if got := buf[71]; got != 0xC1 {
		t.Errorf("byte +71: want 0xC1, got 0x%02X", got)
	}
	if got := buf[74]; got != 0xA0 {
		t.Errorf("byte +74: want 0xA0, got 0x%02X", got)
	}
	if got := binary.BigEndian.Uint16(buf[108:110]); got != 0x26D0 {
		t.Errorf("paper width at +108: want 0x26D0, got 0x%04X", got)
	}
	if got := binary.BigEndian.Uint16(buf[112:114]); got != 0x36D0 {
		t.Errorf("paper height at +112: want 0x36D0, got 0x%04X", got)
	}
}

// Invariant 4: varying a single field changes exactly the byte the
// §4.1 table attributes to it.
func TestScanConfigByteTableIsolatesFields(t *testing.T) {
	base := ScanConfig{ColorMode: ColorColor, Quality: QualityNormal, PaperSize: PaperA4}
	block := make([]byte, configBlockSimplex)
	base.packBlock(block)

	duplexOn := base
	duplexOn.Duplex = true
	blockDuplex := make([]byte, configBlockSimplex)
	duplexOn.packBlock(blockDuplex)

	for i := range block {
		if i == 1 {
			continue // the field under test
		}
		if block[i] != blockDuplex[i] {
			t.Errorf("byte %d changed unexpectedly when only Duplex varied: %02X != %02X", i, block[i], blockDuplex[i])
		}
	}
	if blockDuplex[1] != 0x03 {
		t.Errorf("duplex selector at +1: want 0x03, got 0x%02X", blockDuplex[1])
	}
	if block[1] != 0x01 {
		t.Errorf("simplex selector at +1: want 0x01, got 0x%02X", block[1])
	}
}

// Invariant 3: decode(encode(cfg)) == cfg for "legal" configs, where
// legal additionally requires ColorMode == ColorAuto implies
// Quality == QualityAuto — the wire format conflates the two auto
// conditions into the single byte at config-block-offset+7.
func TestScanConfigRoundTrip(t *testing.T) {
	cases := []ScanConfig{
		{ColorMode: ColorAuto, Quality: QualityAuto, PaperSize: PaperA4, Duplex: true},
		{ColorMode: ColorColor, Quality: QualityFine, PaperSize: PaperA5, BleedThrough: true},
		{ColorMode: ColorGray, Quality: QualitySuperfine, PaperSize: PaperPostcard, MultiFeed: true},
		{ColorMode: ColorBW, Quality: QualityNormal, PaperSize: PaperBusinessCard, BWDensity: 3, BlankPageRemoval: true},
	}

	for i, c := range cases {
		block := make([]byte, configBlockFullDuplex)
		c.packBlock(block)
		got, err := UnpackScanConfig(block)
		if err != nil {
			t.Fatalf("case %d: UnpackScanConfig: %v", i, err)
		}
		if diff := cmp.Diff(c, got); diff != "" {
			t.Errorf("case %d: round trip mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestUnpackScanConfigRejectsShortBlock(t *testing.T) {
	_, err := UnpackScanConfig(make([]byte, configBlockSimplex-1))
	if !IsMalformedPacket(err) {
		t.Fatalf("expected malformed packet error, got %v", err)
	}
}
