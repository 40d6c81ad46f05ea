package data

import (
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/barnettlynn/scanbridge/pkg/scanproto"
)

// fakeChunk is one scripted page-chunk response for the fake appliance
// side of a pipe-backed Channel.
type fakeChunk struct {
	transferSheet byte
	side          byte
	pageType      uint32
	payload       []byte
}

func (c fakeChunk) encode() []byte {
	rest := make([]byte, 38+len(c.payload))
	copy(rest[0:4], scanproto.MagicPrimary)
	binary.BigEndian.PutUint32(rest[8:12], c.pageType)
	rest[36] = c.transferSheet
	rest[37] = c.side
	copy(rest[38:], c.payload)

	buf := make([]byte, 4+len(rest))
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(buf)))
	copy(buf[4:], rest)
	return buf
}

// newFakeChannel wires a Channel to an in-process pipe; srv is the
// appliance-side end the test drives directly.
func newFakeChannel(t *testing.T) (*Channel, net.Conn) {
	t.Helper()
	client, srv := net.Pipe()
	t.Cleanup(func() { client.Close(); srv.Close() })
	return &Channel{conn: client}, srv
}

// serveChunks reads one 64-byte page-transfer request per chunk and
// writes back the corresponding scripted response.
func serveChunks(t *testing.T, srv net.Conn, chunks []fakeChunk) {
	t.Helper()
	go func() {
		for _, c := range chunks {
			req := make([]byte, 64)
			if _, err := readFull(srv, req); err != nil {
				return
			}
			if _, err := srv.Write(c.encode()); err != nil {
				return
			}
		}
	}()
}

// S5 — a page delivered across multiple chunks reassembles in order.
func TestReassembleSideConcatenatesChunksInOrder(t *testing.T) {
	ch, srv := newFakeChannel(t)
	chunks := []fakeChunk{
		{transferSheet: 0, side: 0, pageType: 0, payload: []byte("hello, ")},
		{transferSheet: 0, side: 0, pageType: 0, payload: []byte("wor")},
		{transferSheet: 0, side: 0, pageType: 2, payload: []byte("ld!")},
	}
	serveChunks(t, srv, chunks)

	token, err := scanproto.NewToken()
	if err != nil {
		t.Fatalf("NewToken: %v", err)
	}

	got, err := reassembleSide(ch, token, 0)
	if err != nil {
		t.Fatalf("reassembleSide: %v", err)
	}
	if string(got) != "hello, world!" {
		t.Errorf("reassembled payload = %q, want %q", got, "hello, world!")
	}
}

func TestTransferChunkRejectsUndersizedLength(t *testing.T) {
	ch, srv := newFakeChannel(t)
	go func() {
		req := make([]byte, 64)
		if _, err := readFull(srv, req); err != nil {
			return
		}
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, 10) // below the 42-byte minimum
		srv.Write(buf)
		srv.Write(make([]byte, 6))
	}()

	token, err := scanproto.NewToken()
	if err != nil {
		t.Fatalf("NewToken: %v", err)
	}
	_, _, err = ch.TransferChunk(token, 0, 0)
	if !scanproto.IsPageTransferError(err) {
		t.Fatalf("expected a page transfer error, got %v", err)
	}
}

func TestGetStatusDecodesNoPaperBit(t *testing.T) {
	ch, srv := newFakeChannel(t)
	go func() {
		req := make([]byte, getStatusRequestSizeForTest)
		readFull(srv, req)
		resp := make([]byte, 44)
		binary.BigEndian.PutUint32(resp[0:4], 44)
		copy(resp[4:8], scanproto.MagicPrimary)
		binary.BigEndian.PutUint32(resp[40:44], 0x80)
		srv.Write(resp)
	}()

	token, err := scanproto.NewToken()
	if err != nil {
		t.Fatalf("NewToken: %v", err)
	}
	ch.SetDeadline(time.Now().Add(2 * time.Second))
	status, err := ch.GetStatus(token)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if status&0x80 == 0 {
		t.Errorf("expected the no-paper bit set, got status 0x%02X", status)
	}
}

// getStatusRequestSizeForTest mirrors scanproto's unexported
// getStatusRequestSize: the 36-byte header plus seven parameter words.
const getStatusRequestSizeForTest = 64
