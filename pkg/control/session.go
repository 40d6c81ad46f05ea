// Package control implements the TCP control channel: reserving and
// releasing the appliance, and querying its network status. Every
// operation opens a fresh connection, exchanges one request/response
// pair, and closes; the channel holds no state between calls beyond the
// session token supplied by the caller.
package control

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/barnettlynn/scanbridge/pkg/scanproto"
)

// DialTimeout bounds how long a single control-channel round trip may
// take to establish its TCP connection.
const DialTimeout = 5 * time.Second

// Session is a handle to an appliance's control channel. It carries no
// open connection; each method dials, transacts, and hangs up.
type Session struct {
	addr  string
	token scanproto.Token
}

// NewSession addresses the control channel at host:PortControlChannel.
func NewSession(host net.IP, token scanproto.Token) *Session {
	addr := net.JoinHostPort(host.String(), fmt.Sprintf("%d", scanproto.PortControlChannel))
	return &Session{addr: addr, token: token}
}

func (s *Session) dial(ctx context.Context) (net.Conn, error) {
	d := net.Dialer{Timeout: DialTimeout}
	conn, err := d.DialContext(ctx, "tcp4", s.addr)
	if err != nil {
		return nil, fmt.Errorf("dial control channel %s: %w", s.addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	if err := scanproto.ReadWelcome(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("control channel welcome: %w", err)
	}
	return conn, nil
}

// Reserve claims the appliance for this client's session token,
// presenting the derived pairing identity. It returns
// PairingRejectedError if the appliance refuses.
func (s *Session) Reserve(ctx context.Context, clientIP net.IP, notifyPort uint16, identity string) error {
	conn, err := s.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	req := scanproto.ReserveRequest{
		Token:      s.token,
		ClientIP:   clientIP,
		NotifyPort: notifyPort,
		Identity:   identity,
	}
	if _, err := conn.Write(req.Pack()); err != nil {
		return fmt.Errorf("send reserve request: %w", err)
	}
	frame, err := scanproto.ReadLengthPrefixedFrame(conn, 12)
	if err != nil {
		return fmt.Errorf("read reserve response: %w", err)
	}
	resp, err := scanproto.UnpackReserveResponse(frame)
	if err != nil {
		return err
	}
	if !resp.Accepted() {
		return &scanproto.PairingRejectedError{Status: resp.Status}
	}
	return nil
}

// Release deregisters (or, during pairing, registers) the session with
// the appliance. Callers on the normal disconnect path should log and
// swallow its error rather than fail the caller's own teardown.
func (s *Session) Release(ctx context.Context, register bool) error {
	conn, err := s.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	req := scanproto.ReleaseRequest{Token: s.token, Register: register}
	if _, err := conn.Write(req.Pack()); err != nil {
		return fmt.Errorf("send release request: %w", err)
	}
	ack, err := readFixed(conn, scanproto.WelcomeSize)
	if err != nil {
		return fmt.Errorf("read release ack: %w", err)
	}
	return scanproto.ReadReleaseAck(ack)
}

// WifiStatus queries the appliance's reported network interface state.
func (s *Session) WifiStatus(ctx context.Context) (uint32, error) {
	conn, err := s.dial(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	req := scanproto.GetWifiStatusRequest{Token: s.token}
	if _, err := conn.Write(req.Pack()); err != nil {
		return 0, fmt.Errorf("send wifi status request: %w", err)
	}
	frame, err := scanproto.ReadLengthPrefixedFrame(conn, 20)
	if err != nil {
		return 0, fmt.Errorf("read wifi status response: %w", err)
	}
	resp, err := scanproto.UnpackGetWifiStatusResponse(frame)
	if err != nil {
		return 0, err
	}
	return resp.State, nil
}

func readFixed(conn net.Conn, n int) ([]byte, error) {
	buf := make([]byte, n)
	total := 0
	for total < n {
		read, err := conn.Read(buf[total:])
		if err != nil {
			return nil, err
		}
		total += read
	}
	return buf, nil
}
