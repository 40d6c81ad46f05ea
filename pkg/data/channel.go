// Package data implements the TCP data channel: single-shot
// configuration and status requests, and the long-lived scan run that
// drives the appliance through a full paper feed.
package data

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/barnettlynn/scanbridge/pkg/metrics"
	"github.com/barnettlynn/scanbridge/pkg/scanproto"
)

// DialTimeout bounds how long opening the data channel connection may take.
const DialTimeout = 5 * time.Second

// Channel is an open TCP connection to the appliance's data channel. A
// Channel is single-use: callers open one, issue one or more requests in
// order, and close it.
type Channel struct {
	conn net.Conn
}

// Dial opens the data channel and consumes its welcome.
func Dial(ctx context.Context, host net.IP) (*Channel, error) {
	addr := net.JoinHostPort(host.String(), fmt.Sprintf("%d", scanproto.PortDataChannel))
	d := net.Dialer{Timeout: DialTimeout}
	conn, err := d.DialContext(ctx, "tcp4", addr)
	if err != nil {
		return nil, fmt.Errorf("dial data channel %s: %w", addr, err)
	}
	if err := scanproto.ReadWelcome(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("data channel welcome: %w", err)
	}
	return &Channel{conn: conn}, nil
}

// Close closes the underlying connection.
func (c *Channel) Close() error { return c.conn.Close() }

// SetDeadline forwards to the underlying connection.
func (c *Channel) SetDeadline(t time.Time) error { return c.conn.SetDeadline(t) }

// transact writes req and reads back a length-prefixed response of at
// least minLen bytes.
func (c *Channel) transact(req []byte, minLen int) ([]byte, error) {
	if _, err := c.conn.Write(req); err != nil {
		return nil, fmt.Errorf("send data channel request: %w", err)
	}
	frame, err := scanproto.ReadLengthPrefixedFrame(c.conn, minLen)
	if err != nil {
		return nil, fmt.Errorf("read data channel response: %w", err)
	}
	return frame, nil
}

// GetDeviceInfo queries the appliance's identity over the data channel.
func (c *Channel) GetDeviceInfo(token scanproto.Token) ([]byte, error) {
	return c.transact(scanproto.GetDeviceInfoRequest{Token: token}.Pack(), 16)
}

// GetScanParams queries the scanner's hardware capabilities.
func (c *Channel) GetScanParams(token scanproto.Token) ([]byte, error) {
	return c.transact(scanproto.GetScanParamsRequest{Token: token}.Pack(), 16)
}

// GetScanSettings queries the scanner's current settings.
func (c *Channel) GetScanSettings(token scanproto.Token) ([]byte, error) {
	return c.transact(scanproto.GetScanSettingsRequest{Token: token}.Pack(), 16)
}

// SetConfig sends scanner-level configuration (command 0x08).
func (c *Channel) SetConfig(token scanproto.Token) ([]byte, error) {
	return c.transact(scanproto.ConfigRequest{Token: token}.Pack(), 16)
}

// SetScanSettings uploads a job configuration (command 0x06, sub 0xD4).
func (c *Channel) SetScanSettings(token scanproto.Token, cfg scanproto.ScanConfig) ([]byte, error) {
	return c.transact(cfg.Pack(token), 16)
}

// WriteToneCurve uploads the bleed-through reduction tone curve.
func (c *Channel) WriteToneCurve(token scanproto.Token) ([]byte, error) {
	return c.transact(scanproto.WriteToneCurveRequest{Token: token}.Pack(), 16)
}

// PrepareScan arms the appliance for an incoming scan trigger.
func (c *Channel) PrepareScan(token scanproto.Token) ([]byte, error) {
	return c.transact(scanproto.PrepareScanRequest{Token: token}.Pack(), 16)
}

// GetStatus queries the appliance's scan-status word.
func (c *Channel) GetStatus(token scanproto.Token) (uint32, error) {
	resp, err := c.transact(scanproto.GetStatusRequest{Token: token}.Pack(), 44)
	if err != nil {
		return 0, err
	}
	return scanproto.ScanStatus(resp)
}

// WaitForScan blocks server-side until the scan is triggered or the
// current sheet finishes, returning the response status word.
func (c *Channel) WaitForScan(token scanproto.Token) (uint32, error) {
	resp, err := c.transact(scanproto.WaitForScanRequest{Token: token}.Pack(), 16)
	if err != nil {
		return 0, err
	}
	return scanproto.WaitForScanStatus(resp)
}

// GetPageMetadata is issued after each transferred side; the response is
// read but discarded.
func (c *Channel) GetPageMetadata(token scanproto.Token) error {
	_, err := c.transact(scanproto.GetPageMetadataRequest{Token: token}.Pack(), 16)
	return err
}

// EndScan closes out a scan session. Callers on every exit path of a
// scan run should log and swallow its error.
func (c *Channel) EndScan(token scanproto.Token) error {
	_, err := c.transact(scanproto.EndScanRequest{Token: token}.Pack(), 16)
	return err
}

// TransferChunk requests one chunk of page image data and returns its
// header and payload.
func (c *Channel) TransferChunk(token scanproto.Token, transferSheet, chunkIndex int) (*scanproto.PageHeader, []byte, error) {
	req := scanproto.PageTransferRequest{Token: token, TransferSheet: transferSheet, ChunkIndex: chunkIndex}
	if _, err := c.conn.Write(req.Pack()); err != nil {
		return nil, nil, fmt.Errorf("send page transfer request: %w", err)
	}

	lenBytes := make([]byte, 4)
	if _, err := readFull(c.conn, lenBytes); err != nil {
		return nil, nil, fmt.Errorf("read page chunk length: %w", err)
	}
	total := beUint32(lenBytes)
	if total < 42 {
		if total > 4 {
			drain := make([]byte, total-4)
			_, _ = readFull(c.conn, drain)
		}
		return nil, nil, &scanproto.PageTransferError{TotalLength: total}
	}

	rest := make([]byte, total-4)
	if _, err := readFull(c.conn, rest); err != nil {
		return nil, nil, fmt.Errorf("read page chunk body: %w", err)
	}
	header, err := scanproto.UnpackPageHeader(total, rest)
	if err != nil {
		return nil, nil, err
	}
	payload := rest[38:] // 42-byte header minus the 4-byte length prefix already consumed
	metrics.PageChunksTransferred.Inc()
	metrics.PageBytesTransferred.Add(float64(len(payload)))
	return header, payload, nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
