package scanproto

import "fmt"

// MalformedPacketError reports a packet that failed magic-tag or
// minimum-length validation on decode.
type MalformedPacketError struct {
	Want string // expected magic tag, or "" if the problem was length
	Got  string // observed magic tag, if read
	Len  int    // observed length
	Min  int    // minimum required length
}

func (e *MalformedPacketError) Error() string {
	if e.Want != "" {
		return fmt.Sprintf("malformed packet: magic tag %q != %q", e.Got, e.Want)
	}
	return fmt.Sprintf("malformed packet: length %d below minimum %d", e.Len, e.Min)
}

// DiscoveryTimeoutError reports that no Device-Info datagram arrived
// within the discovery budget.
type DiscoveryTimeoutError struct{}

func (e *DiscoveryTimeoutError) Error() string { return "discovery timed out" }

// PairingRejectedError reports a non-zero Reserve acceptance status,
// i.e. a wrong pairing identity.
type PairingRejectedError struct {
	Status int32
}

func (e *PairingRejectedError) Error() string {
	return fmt.Sprintf("pairing rejected: reserve status %d", e.Status)
}

// NoPaperError reports scan-status bit 0x80 set after Prepare.
type NoPaperError struct{}

func (e *NoPaperError) Error() string { return "no paper in feeder" }

// WaitFailedError reports a non-zero WaitForScan status on the initial
// trigger.
type WaitFailedError struct {
	Status uint32
}

func (e *WaitFailedError) Error() string {
	return fmt.Sprintf("wait for scan failed: status %d", e.Status)
}

// PageTransferError reports a page-chunk header whose declared total
// length is too short to hold the 42-byte header.
type PageTransferError struct {
	TotalLength uint32
}

func (e *PageTransferError) Error() string {
	return fmt.Sprintf("page transfer error: total length %d < 42", e.TotalLength)
}

// PasswordTooLongError reports a password longer than the identity key,
// which cannot be obfuscated position-for-position.
type PasswordTooLongError struct {
	Len, Max int
}

func (e *PasswordTooLongError) Error() string {
	return fmt.Sprintf("password too long: %d bytes, max %d", e.Len, e.Max)
}

// IsMalformedPacket reports whether err is a MalformedPacketError.
func IsMalformedPacket(err error) bool {
	_, ok := err.(*MalformedPacketError)
	return ok
}

// IsPairingRejected reports whether err is a PairingRejectedError.
func IsPairingRejected(err error) bool {
	_, ok := err.(*PairingRejectedError)
	return ok
}

// IsDiscoveryTimeout reports whether err is a DiscoveryTimeoutError.
func IsDiscoveryTimeout(err error) bool {
	_, ok := err.(*DiscoveryTimeoutError)
	return ok
}

// IsPageTransferError reports whether err is a PageTransferError.
func IsPageTransferError(err error) bool {
	_, ok := err.(*PageTransferError)
	return ok
}
