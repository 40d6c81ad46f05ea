package scanner

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/barnettlynn/scanbridge/pkg/scanproto"
)

// pairingKey is the fixed shared-secret mask used to derive a pairing
// identity from a password. Its length bounds the longest password this
// derivation can accept.
const pairingKey = "pFusCANsNapFiPfu"

// ComputeIdentity derives the pairing identity presented in a Reserve
// request from a password: each character becomes the decimal value of
// ord(password[i]) + ord(pairingKey[i]) + 11, concatenated without
// separators.
func ComputeIdentity(password string) (string, error) {
	if len(password) > len(pairingKey) {
		return "", &scanproto.PasswordTooLongError{Len: len(password), Max: len(pairingKey)}
	}
	var b strings.Builder
	for i := 0; i < len(password); i++ {
		v := int(password[i]) + int(pairingKey[i]) + 11
		b.WriteString(strconv.Itoa(v))
	}
	return b.String(), nil
}

// PasswordFromSerial extracts the pairing password from an appliance
// serial number: the last four characters after stripping trailing
// spaces and NUL bytes.
func PasswordFromSerial(serial string) (string, error) {
	trimmed := strings.TrimRight(serial, " \x00")
	if len(trimmed) < 4 {
		return "", fmt.Errorf("serial %q too short to derive a password", serial)
	}
	return trimmed[len(trimmed)-4:], nil
}
