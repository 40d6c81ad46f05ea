package scanner

import (
	"strings"
	"testing"
)

// S2 — identity derivation from a known password.
func TestComputeIdentity(t *testing.T) {
	got, err := ComputeIdentity("0700")
	if err != nil {
		t.Fatalf("ComputeIdentity: %v", err)
	}
	if want := "171136176174"; got != want {
		t.Errorf("ComputeIdentity(%q) = %q, want %q", "0700", got, want)
	}
}

func TestComputeIdentityEmptyPassword(t *testing.T) {
	got, err := ComputeIdentity("")
	if err != nil {
		t.Fatalf("ComputeIdentity: %v", err)
	}
	if got != "" {
		t.Errorf("ComputeIdentity(\"\") = %q, want empty", got)
	}
}

func TestComputeIdentityRejectsPasswordLongerThanKey(t *testing.T) {
	long := strings.Repeat("x", len(pairingKey)+1)
	_, err := ComputeIdentity(long)
	if err == nil {
		t.Fatal("expected an error for an over-long password")
	}
}

func TestComputeIdentityAcceptsPasswordAsLongAsKey(t *testing.T) {
	full := strings.Repeat("z", len(pairingKey))
	if _, err := ComputeIdentity(full); err != nil {
		t.Errorf("ComputeIdentity: unexpected error for max-length password: %v", err)
	}
}

// S3 — password derivation from a serial number.
func TestPasswordFromSerial(t *testing.T) {
	got, err := PasswordFromSerial("iX500-AK6ABB0700")
	if err != nil {
		t.Fatalf("PasswordFromSerial: %v", err)
	}
	if want := "0700"; got != want {
		t.Errorf("PasswordFromSerial = %q, want %q", got, want)
	}
}

func TestPasswordFromSerialStripsTrailingPaddingBytes(t *testing.T) {
	got, err := PasswordFromSerial("iX500-AK6ABB0700 \x00\x00\x00\x00\x00\x00\x00")
	if err != nil {
		t.Fatalf("PasswordFromSerial: %v", err)
	}
	if want := "0700"; got != want {
		t.Errorf("PasswordFromSerial = %q, want %q", got, want)
	}
}

func TestPasswordFromSerialRejectsShortSerial(t *testing.T) {
	_, err := PasswordFromSerial("ab")
	if err == nil {
		t.Fatal("expected an error for a serial shorter than 4 characters")
	}
}
