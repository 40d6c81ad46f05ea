package control

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/barnettlynn/scanbridge/pkg/scanproto"
)

// fakeControlServer accepts exactly one connection on the fixed control
// port, sends the welcome, and hands the connection to handle.
func fakeControlServer(t *testing.T, handle func(net.Conn)) {
	t.Helper()
	addr := net.JoinHostPort("127.0.0.1", "53219")
	ln, err := net.Listen("tcp4", addr)
	if err != nil {
		t.Skipf("cannot bind fixed control port for this test: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		welcome := make([]byte, scanproto.WelcomeSize)
		copy(welcome[4:8], scanproto.MagicPrimary)
		if _, err := conn.Write(welcome); err != nil {
			return
		}
		handle(conn)
	}()
}

func readRequest(t *testing.T, conn net.Conn) []byte {
	t.Helper()
	total, err := readFixed(conn, 4)
	if err != nil {
		t.Fatalf("read request length: %v", err)
	}
	length := binary.BigEndian.Uint32(total)
	rest, err := readFixed(conn, int(length)-4)
	if err != nil {
		t.Fatalf("read request body: %v", err)
	}
	return append(total, rest...)
}

// S6 — a rejected Reserve surfaces PairingRejectedError.
func TestReserveRejected(t *testing.T) {
	fakeControlServer(t, func(conn net.Conn) {
		readRequest(t, conn)
		resp := make([]byte, 12)
		binary.BigEndian.PutUint32(resp[0:4], 12)
		copy(resp[4:8], scanproto.MagicPrimary)
		binary.BigEndian.PutUint32(resp[8:12], 1) // non-zero: rejected
		conn.Write(resp)
	})

	token, err := scanproto.NewToken()
	if err != nil {
		t.Fatalf("NewToken: %v", err)
	}
	s := NewSession(net.ParseIP("127.0.0.1"), token)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err = s.Reserve(ctx, net.ParseIP("127.0.0.1"), scanproto.PortClientReply, "000000")
	if !scanproto.IsPairingRejected(err) {
		t.Fatalf("expected a pairing rejected error, got %v", err)
	}
}

func TestReserveAccepted(t *testing.T) {
	fakeControlServer(t, func(conn net.Conn) {
		readRequest(t, conn)
		resp := make([]byte, 12)
		binary.BigEndian.PutUint32(resp[0:4], 12)
		copy(resp[4:8], scanproto.MagicPrimary)
		conn.Write(resp)
	})

	token, err := scanproto.NewToken()
	if err != nil {
		t.Fatalf("NewToken: %v", err)
	}
	s := NewSession(net.ParseIP("127.0.0.1"), token)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := s.Reserve(ctx, net.ParseIP("127.0.0.1"), scanproto.PortClientReply, "000000"); err != nil {
		t.Fatalf("Reserve: unexpected error: %v", err)
	}
}
