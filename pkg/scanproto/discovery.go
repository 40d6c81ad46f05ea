package scanproto

import (
	"encoding/binary"
	"net"
)

// DiscoveryFlag distinguishes a one-shot discovery probe from a
// keep-alive heartbeat; both use the same 32-byte request shape.
type DiscoveryFlag uint32

const (
	DiscoveryFlagProbe     DiscoveryFlag = 0
	DiscoveryFlagHeartbeat DiscoveryFlag = 1
)

// discoveryRequestSize is the fixed size of both the VENS and ssNR forms
// of a discovery request.
const discoveryRequestSize = 32

// DiscoveryRequest is the client->appliance datagram sent to UDP 52217,
// always as a VENS/ssNR pair to every target address.
type DiscoveryRequest struct {
	Flag       DiscoveryFlag
	ClientIP   net.IP
	Token      Token
	SourcePort uint16
}

// PackVENS encodes the primary-magic form of the request.
func (r DiscoveryRequest) PackVENS() []byte {
	return r.pack(MagicPrimary, false)
}

// PackSSNR encodes the auxiliary-magic echo form of the request. It
// carries the same fields with a distinguishing non-zero flag tail.
func (r DiscoveryRequest) PackSSNR() []byte {
	return r.pack(MagicAuxiliary, true)
}

func (r DiscoveryRequest) pack(magic string, auxTail bool) []byte {
	buf := make([]byte, discoveryRequestSize)
	copy(buf[0:4], magic)
	binary.BigEndian.PutUint32(buf[4:8], uint32(r.Flag))
	ip4 := r.ClientIP.To4()
	if ip4 != nil {
		copy(buf[8:12], ip4)
	}
	copy(buf[12:20], r.Token.Bytes())
	binary.BigEndian.PutUint16(buf[22:24], r.SourcePort)
	if auxTail {
		copy(buf[24:28], []byte{0x01, 0x00, 0x00, 0x00})
	}
	return buf
}

// broadcastAdvertisementSize is the length of an appliance's unsolicited
// advertisement on UDP 53220.
const broadcastAdvertisementSize = 48

// BroadcastAdvertisement is the appliance->* advertisement observed on
// UDP 53220. It is not required to complete discovery (the client's own
// request/response exchange on 52217/55264 suffices) but is decoded for
// passive listeners.
type BroadcastAdvertisement struct {
	Command  uint32
	DeviceIP net.IP
	DeviceID [6]byte
}

// UnpackBroadcastAdvertisement decodes a Broadcast Advertisement datagram.
func UnpackBroadcastAdvertisement(buf []byte) (*BroadcastAdvertisement, error) {
	if len(buf) < broadcastAdvertisementSize {
		return nil, &MalformedPacketError{Len: len(buf), Min: broadcastAdvertisementSize}
	}
	if got := string(buf[0:4]); got != MagicPrimary {
		return nil, &MalformedPacketError{Want: MagicPrimary, Got: got}
	}
	adv := &BroadcastAdvertisement{
		Command:  binary.BigEndian.Uint32(buf[8:12]),
		DeviceIP: net.IPv4(buf[20], buf[21], buf[22], buf[23]),
	}
	copy(adv.DeviceID[:], buf[24:30])
	return adv, nil
}

// deviceInfoSize is the length of a Device Info datagram.
const deviceInfoSize = 132

// DeviceInfo is the appliance->client descriptor datagram received on
// UDP 55264 in response to a Discovery Request. It is the wire
// representation of an Appliance Descriptor.
type DeviceInfo struct {
	Paired      bool
	ProtocolVer uint32
	DeviceIP    net.IP
	DataPort    uint16
	ControlPort uint16
	MAC         [6]byte
	State       uint32
	Serial      string
	Name        string
	ReservingIP net.IP // zero-value net.IP when no client currently reserves
}

// UnpackDeviceInfo decodes a 132-byte Device Info datagram.
func UnpackDeviceInfo(buf []byte) (*DeviceInfo, error) {
	if len(buf) < deviceInfoSize {
		return nil, &MalformedPacketError{Len: len(buf), Min: deviceInfoSize}
	}
	if got := string(buf[0:4]); got != MagicPrimary {
		return nil, &MalformedPacketError{Want: MagicPrimary, Got: got}
	}
	info := &DeviceInfo{
		Paired:      buf[4] != 0,
		ProtocolVer: binary.BigEndian.Uint32(buf[8:12]),
		DeviceIP:    net.IPv4(buf[16], buf[17], buf[18], buf[19]),
		DataPort:    binary.BigEndian.Uint16(buf[22:24]),
		ControlPort: binary.BigEndian.Uint16(buf[26:28]),
		State:       binary.BigEndian.Uint32(buf[36:40]),
		Serial:      getString(buf[40:104]),
		Name:        getString(buf[104:120]),
	}
	copy(info.MAC[:], buf[28:34])
	clientIP := net.IPv4(buf[120], buf[121], buf[122], buf[123])
	if !clientIP.Equal(net.IPv4zero) {
		info.ReservingIP = clientIP
	}
	return info, nil
}

// eventNotificationSize is the length of an Event Notification datagram.
const eventNotificationSize = 48

// EventNotification reports an appliance-side event, such as the
// physical scan button being pressed, on UDP 55265.
type EventNotification struct {
	EventType uint32
	EventData []byte
}

// UnpackEventNotification decodes a 48-byte Event Notification datagram.
func UnpackEventNotification(buf []byte) (*EventNotification, error) {
	if len(buf) < eventNotificationSize {
		return nil, &MalformedPacketError{Len: len(buf), Min: eventNotificationSize}
	}
	if got := string(buf[0:4]); got != MagicPrimary {
		return nil, &MalformedPacketError{Want: MagicPrimary, Got: got}
	}
	ev := &EventNotification{
		EventType: binary.BigEndian.Uint32(buf[8:12]),
		EventData: append([]byte(nil), buf[16:eventNotificationSize]...),
	}
	return ev, nil
}
