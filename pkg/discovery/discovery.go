// Package discovery implements UDP discovery of an appliance on the
// local network, its heartbeat keep-alive, and the button-press event
// wait.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/barnettlynn/scanbridge/pkg/metrics"
	"github.com/barnettlynn/scanbridge/pkg/scanproto"
)

// ApplianceDescriptor identifies a discovered appliance. It is
// immutable once produced by discovery.
type ApplianceDescriptor struct {
	Name        string
	Serial      string
	MAC         net.HardwareAddr
	IP          net.IP
	DataPort    uint16
	ControlPort uint16
	Paired      bool
	State       uint32
	ReservingIP net.IP // nil when no client currently reserves the appliance
}

func descriptorFromDeviceInfo(info *scanproto.DeviceInfo) *ApplianceDescriptor {
	return &ApplianceDescriptor{
		Name:        info.Name,
		Serial:      info.Serial,
		MAC:         net.HardwareAddr(info.MAC[:]),
		IP:          info.DeviceIP,
		DataPort:    info.DataPort,
		ControlPort: info.ControlPort,
		Paired:      info.Paired,
		State:       info.State,
		ReservingIP: info.ReservingIP,
	}
}

var listenConfig = net.ListenConfig{Control: controlReusePort}

// localIP determines the client's outbound IPv4 address by connecting a
// UDP socket to an arbitrary reachable address and reading the local
// endpoint. It falls back to 0.0.0.0 if the connect fails.
func localIP() net.IP {
	conn, err := net.Dial("udp4", "203.0.113.1:53")
	if err != nil {
		return net.IPv4zero
	}
	defer conn.Close()
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return net.IPv4zero
	}
	return addr.IP
}

// subnetBroadcast computes the limited subnet broadcast address for ip
// under mask, e.g. 192.168.0.255 for 192.168.0.x/24.
func subnetBroadcast(ip net.IP, mask net.IPMask) net.IP {
	ip4 := ip.To4()
	if ip4 == nil || len(mask) != net.IPv4len {
		return nil
	}
	bcast := make(net.IP, net.IPv4len)
	for i := range ip4 {
		bcast[i] = ip4[i] | ^mask[i]
	}
	return bcast
}

// Service discovers an appliance, runs its heartbeat, and waits for
// button-press events. A Service is scoped to a single session token.
type Service struct {
	token    scanproto.Token
	clientIP net.IP

	heartbeatCancel context.CancelFunc
	heartbeatGroup  *errgroup.Group
}

// NewService creates a discovery service bound to the given session
// token. The token is echoed in every discovery and heartbeat datagram.
func NewService(token scanproto.Token) *Service {
	return &Service{token: token, clientIP: localIP()}
}

// LocalIP is the client's outbound address as determined at construction.
func (s *Service) LocalIP() net.IP { return s.clientIP }

// FindAppliance discovers an appliance and returns its descriptor. If
// targetIP is nil, the request is broadcast to the limited broadcast
// address and the client's inferred subnet broadcast. FindAppliance
// fails with a DiscoveryTimeoutError if no valid Device-Info datagram
// arrives within timeout.
func (s *Service) FindAppliance(ctx context.Context, targetIP net.IP, timeout time.Duration) (*ApplianceDescriptor, error) {
	packetConn, err := listenConfig.ListenPacket(ctx, "udp4", fmt.Sprintf(":%d", scanproto.PortClientReply))
	if err != nil {
		return nil, fmt.Errorf("bind discovery reply socket: %w", err)
	}
	defer packetConn.Close()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		_ = packetConn.SetDeadline(deadline)
	}

	req := scanproto.DiscoveryRequest{
		Flag:       scanproto.DiscoveryFlagProbe,
		ClientIP:   s.clientIP,
		Token:      s.token,
		SourcePort: scanproto.PortClientReply,
	}
	targets, err := s.discoveryTargets(targetIP)
	if err != nil {
		return nil, err
	}
	for _, target := range targets {
		dst := &net.UDPAddr{IP: target, Port: scanproto.PortApplianceDiscovery}
		if _, err := packetConn.WriteTo(req.PackVENS(), dst); err != nil {
			slog.Warn("discovery: send VENS probe failed", "target", target, "error", err)
		}
		if _, err := packetConn.WriteTo(req.PackSSNR(), dst); err != nil {
			slog.Warn("discovery: send ssNR probe failed", "target", target, "error", err)
		}
	}

	buf := make([]byte, 256)
	for {
		n, _, err := packetConn.ReadFrom(buf)
		if err != nil {
			return nil, &scanproto.DiscoveryTimeoutError{}
		}
		if n == 12 {
			continue // heartbeat ack, ignored
		}
		info, err := scanproto.UnpackDeviceInfo(buf[:n])
		if err != nil {
			slog.Debug("discovery: discarding malformed datagram", "error", err)
			continue
		}
		return descriptorFromDeviceInfo(info), nil
	}
}

func (s *Service) discoveryTargets(targetIP net.IP) ([]net.IP, error) {
	if targetIP != nil {
		return []net.IP{targetIP}, nil
	}
	targets := []net.IP{net.IPv4bcast}
	if iface, mask, ok := interfaceFor(s.clientIP); ok {
		if sb := subnetBroadcast(iface, mask); sb != nil {
			targets = append(targets, sb)
		}
	}
	return targets, nil
}

// interfaceFor finds the local interface address and netmask matching ip.
func interfaceFor(ip net.IP) (net.IP, net.IPMask, bool) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, nil, false
	}
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		if ipNet.IP.Equal(ip) {
			return ipNet.IP, ipNet.Mask, true
		}
	}
	return nil, nil, false
}

// StartHeartbeat starts a background task that sends a heartbeat
// Discovery Request to targetIP every 500ms. The heartbeat must tolerate
// transient send errors (logged, not fatal) and stop within one interval
// of cancellation.
func (s *Service) StartHeartbeat(ctx context.Context, targetIP net.IP) error {
	packetConn, err := listenConfig.ListenPacket(ctx, "udp4", fmt.Sprintf(":%d", scanproto.PortClientReply))
	if err != nil {
		return fmt.Errorf("bind heartbeat socket: %w", err)
	}

	hbCtx, cancel := context.WithCancel(ctx)
	s.heartbeatCancel = cancel
	g, gCtx := errgroup.WithContext(hbCtx)
	s.heartbeatGroup = g

	req := scanproto.DiscoveryRequest{
		Flag:       scanproto.DiscoveryFlagHeartbeat,
		ClientIP:   s.clientIP,
		Token:      s.token,
		SourcePort: scanproto.PortClientReply,
	}
	dst := &net.UDPAddr{IP: targetIP, Port: scanproto.PortApplianceDiscovery}

	g.Go(func() error {
		defer packetConn.Close()
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-gCtx.Done():
				return nil
			case <-ticker.C:
				if _, err := packetConn.WriteTo(req.PackVENS(), dst); err != nil {
					slog.Warn("heartbeat: send failed", "error", err)
					metrics.HeartbeatSendErrors.Inc()
					continue
				}
				metrics.HeartbeatsSent.Inc()
			}
		}
	})
	return nil
}

// StopHeartbeat cancels the heartbeat task and waits for its socket to
// close. It is a no-op if no heartbeat is running.
func (s *Service) StopHeartbeat() {
	if s.heartbeatCancel == nil {
		return
	}
	s.heartbeatCancel()
	_ = s.heartbeatGroup.Wait()
	s.heartbeatCancel = nil
	s.heartbeatGroup = nil
}

// WaitForButton blocks until a valid Event Notification arrives on the
// client event port, or timeout elapses.
func (s *Service) WaitForButton(ctx context.Context, timeout time.Duration) (*scanproto.EventNotification, error) {
	packetConn, err := listenConfig.ListenPacket(ctx, "udp4", fmt.Sprintf(":%d", scanproto.PortClientEvent))
	if err != nil {
		return nil, fmt.Errorf("bind event socket: %w", err)
	}
	defer packetConn.Close()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		_ = packetConn.SetDeadline(deadline)
	}

	buf := make([]byte, 128)
	for {
		n, _, err := packetConn.ReadFrom(buf)
		if err != nil {
			return nil, &scanproto.DiscoveryTimeoutError{}
		}
		ev, err := scanproto.UnpackEventNotification(buf[:n])
		if err != nil {
			slog.Debug("button wait: discarding malformed datagram", "error", err)
			continue
		}
		return ev, nil
	}
}
