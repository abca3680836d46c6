package transport

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestChunkCounts(t *testing.T) {
	tests := []struct {
		length int
		chunks int
	}{
		{0, 0},
		{1, 1},
		{ChunkSize - 1, 1},
		{ChunkSize, 1},
		{ChunkSize + 1, 2},
		{3 * ChunkSize, 3},
		{3*ChunkSize + 17, 4},
	}
	for _, tc := range tests {
		payload := make([]byte, tc.length)
		for i := range payload {
			payload[i] = byte(i * 7)
		}
		chunks := Chunk(payload, ChunkSize)
		if len(chunks) != tc.chunks {
			t.Fatalf("len %d: got %d chunks, want %d", tc.length, len(chunks), tc.chunks)
		}
		var joined []byte
		for _, c := range chunks {
			if len(c) > ChunkSize {
				t.Fatalf("chunk of %d bytes exceeds %d", len(c), ChunkSize)
			}
			joined = append(joined, c...)
		}
		if !bytes.Equal(joined, payload) {
			t.Fatalf("len %d: concatenated chunks differ from payload", tc.length)
		}
	}
}

func recv(t *testing.T, ch <-chan Datagram) Datagram {
	t.Helper()
	select {
	case d, ok := <-ch:
		if !ok {
			t.Fatal("incoming closed")
		}
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for datagram")
	}
	return Datagram{}
}

func TestMemoryBroadcastReachesEveryone(t *testing.T) {
	bus := NewBus()
	a, b := bus.NewMemory(), bus.NewMemory()
	for _, m := range []*Memory{a, b} {
		m := m
		if err := m.Start(); err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { m.Close() })
	}

	if err := a.Send(context.Background(), []byte("ping")); err != nil {
		t.Fatal(err)
	}
	for _, m := range []*Memory{a, b} {
		d := recv(t, m.Incoming())
		if string(d.Payload) != "ping" || d.From != a.Addr() {
			t.Fatalf("got %+v", d)
		}
	}
}

func TestMemorySendsChunksInOrder(t *testing.T) {
	bus := NewBus()
	a, b := bus.NewMemory(), bus.NewMemory()
	a.Start()
	b.Start()
	defer a.Close()
	defer b.Close()

	payload := bytes.Repeat([]byte("abcdefgh"), ChunkSize/4) // two chunks
	if err := a.Send(context.Background(), payload); err != nil {
		t.Fatal(err)
	}
	first, second := recv(t, b.Incoming()), recv(t, b.Incoming())
	if !bytes.Equal(append(first.Payload, second.Payload...), payload) {
		t.Fatal("chunks arrived out of order or altered")
	}
}

func TestMemoryFailSends(t *testing.T) {
	m := NewBus().NewMemory()
	m.Start()
	defer m.Close()

	boom := errors.New("boom")
	m.FailSends(boom)
	if err := m.Send(context.Background(), []byte("x")); !errors.Is(err, boom) {
		t.Fatalf("expected injected error, got %v", err)
	}
	m.Close()
	if err := m.Send(context.Background(), []byte("x")); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestUDPBindConflict(t *testing.T) {
	occupied, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		t.Skipf("no UDP: %v", err)
	}
	defer occupied.Close()

	port := occupied.LocalAddr().(*net.UDPAddr).Port
	probe, err := net.ListenPacket("udp4", ":"+strconv.Itoa(port))
	if err == nil {
		probe.Close()
		t.Skip("platform allows overlapping binds; nothing to assert")
	}

	tr := NewUDP("127.0.0.1", port, zerolog.Nop())
	err = tr.Start()
	if !errors.Is(err, ErrBind) {
		t.Fatalf("expected ErrBind, got %v", err)
	}
}

func TestUDPLoopback(t *testing.T) {
	// Grab a free port, then release it for the transport to bind.
	probe, err := net.ListenPacket("udp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("no loopback UDP: %v", err)
	}
	port := probe.LocalAddr().(*net.UDPAddr).Port
	probe.Close()

	// Unicast to loopback stands in for the broadcast address.
	tr := NewUDP("127.0.0.1", port, zerolog.Nop())
	if err := tr.Start(); err != nil {
		t.Skipf("could not bind test port: %v", err)
	}
	defer tr.Close()

	payload := bytes.Repeat([]byte{0x5a}, ChunkSize+10)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := tr.Send(ctx, payload); err != nil {
		t.Fatalf("Send: %v", err)
	}

	first := recv(t, tr.Incoming())
	second := recv(t, tr.Incoming())
	if len(first.Payload) != ChunkSize || len(second.Payload) != 10 {
		t.Fatalf("chunk sizes %d, %d", len(first.Payload), len(second.Payload))
	}
	if _, _, err := net.SplitHostPort(first.From); err != nil {
		t.Fatalf("From %q is not host:port: %v", first.From, err)
	}

	tr.Close()
	select {
	case _, ok := <-tr.Incoming():
		if ok {
			t.Fatal("unexpected datagram after Close")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("incoming not closed after Close")
	}
}

// flakyConn fails reads while failing is set, then serves one datagram and
// reports itself closed.
type flakyConn struct {
	net.PacketConn
	calls   atomic.Int32
	failing atomic.Bool
	served  atomic.Bool
}

func (c *flakyConn) ReadFrom(p []byte) (int, net.Addr, error) {
	c.calls.Add(1)
	if c.failing.Load() {
		return 0, nil, errors.New("connection refused")
	}
	if c.served.CompareAndSwap(false, true) {
		return copy(p, "hi"), &net.UDPAddr{IP: net.IPv4(10, 0, 0, 9), Port: DefaultPort}, nil
	}
	return 0, nil, net.ErrClosed
}

func TestUDPReadErrorsBackOff(t *testing.T) {
	conn := &flakyConn{}
	conn.failing.Store(true)

	tr := NewUDP("127.0.0.1", DefaultPort, zerolog.Nop())
	go tr.readLoop(conn)

	time.Sleep(100 * time.Millisecond)
	if n := conn.calls.Load(); n < 1 || n > 10 {
		t.Fatalf("%d reads in 100ms while the socket was failing", n)
	}

	conn.failing.Store(false)
	d := recv(t, tr.Incoming())
	if string(d.Payload) != "hi" || d.From != "10.0.0.9:42069" {
		t.Fatalf("got %+v after recovery", d)
	}
	select {
	case _, ok := <-tr.Incoming():
		if ok {
			t.Fatal("unexpected datagram")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("incoming not closed once the socket closed")
	}
}
