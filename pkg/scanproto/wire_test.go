package scanproto

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// Every encoded TCP request must carry its own total length at +0 and
// the VENS magic at +4..8 (invariant 1), and the session token at
// +16..24 (invariant 2).
func TestRequestsCarryLengthMagicAndToken(t *testing.T) {
	token, err := NewToken()
	if err != nil {
		t.Fatalf("NewToken: %v", err)
	}

	reqs := [][]byte{
		ReserveRequest{Token: token}.Pack(),
		ReleaseRequest{Token: token}.Pack(),
		GetWifiStatusRequest{Token: token}.Pack(),
		GetDeviceInfoRequest{Token: token}.Pack(),
		ConfigRequest{Token: token}.Pack(),
		GetStatusRequest{Token: token}.Pack(),
		PageTransferRequest{Token: token}.Pack(),
	}

	for i, r := range reqs {
		if got := binary.BigEndian.Uint32(r[0:4]); int(got) != len(r) {
			t.Errorf("request %d: length prefix %d != actual length %d", i, got, len(r))
		}
		if got := string(r[4:8]); got != MagicPrimary {
			t.Errorf("request %d: magic %q != %q", i, got, MagicPrimary)
		}
		if got := Token(r[16:24]); got != token {
			t.Errorf("request %d: token %v != %v", i, got, token)
		}
	}
}

func TestNewTokenTrailingBytesAreZero(t *testing.T) {
	tok, err := NewToken()
	if err != nil {
		t.Fatalf("NewToken: %v", err)
	}
	if tok[6] != 0 || tok[7] != 0 {
		t.Fatalf("expected trailing zero bytes, got %v", tok)
	}
}

func TestPutStringTruncatesAndPads(t *testing.T) {
	dst := make([]byte, 6)
	putString(dst, "ab")
	if string(dst[:2]) != "ab" || dst[2] != 0 || dst[5] != 0 {
		t.Fatalf("unexpected padded bytes: %v", dst)
	}

	dst2 := make([]byte, 3)
	putString(dst2, "abcdef")
	if string(dst2) != "abc" {
		t.Fatalf("expected truncation to 3 bytes, got %q", dst2)
	}
}

func TestGetStringStopsAtNUL(t *testing.T) {
	src := []byte{'h', 'i', 0, 'x', 'x'}
	if got := getString(src); got != "hi" {
		t.Fatalf("expected %q, got %q", "hi", got)
	}
}

func TestReadWelcomeRejectsBadMagic(t *testing.T) {
	buf := make([]byte, WelcomeSize)
	copy(buf[4:8], "XXXX")
	err := ReadWelcome(bytes.NewReader(buf))
	if !IsMalformedPacket(err) {
		t.Fatalf("expected malformed packet error, got %v", err)
	}
}

func TestReadLengthPrefixedFrameRejectsShortLength(t *testing.T) {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint32(buf[0:4], 4) // total length shorter than required minimum
	copy(buf[4:8], MagicPrimary)
	_, err := ReadLengthPrefixedFrame(bytes.NewReader(buf), 12)
	if !IsMalformedPacket(err) {
		t.Fatalf("expected malformed packet error, got %v", err)
	}
}
