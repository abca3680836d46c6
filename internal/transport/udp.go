package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"lanlink/internal/metrics"
)

const incomingDepth = 256

// Backoff between failed reads, doubling up to the max and reset by the next
// successful read.
const (
	readRetryMin = 5 * time.Millisecond
	readRetryMax = time.Second
)

// UDP broadcasts over real sockets.
//
// The receive socket is bound once and lives until Close. Every Send dials a
// fresh ephemeral socket that allows broadcast and address reuse, writes all
// of its chunks, and closes it.
type UDP struct {
	broadcast string
	port      int
	log       zerolog.Logger

	mu       sync.Mutex
	conn     net.PacketConn
	incoming chan Datagram
	done     chan struct{}
	closed   bool
}

// NewUDP creates a UDP transport that sends to broadcastIP:port and listens
// on port.
func NewUDP(broadcastIP string, port int, log zerolog.Logger) *UDP {
	return &UDP{
		broadcast: broadcastIP,
		port:      port,
		log:       log.With().Str("component", "transport").Logger(),
		incoming:  make(chan Datagram, incomingDepth),
		done:      make(chan struct{}),
	}
}

func (t *UDP) Start() error {
	addr := net.JoinHostPort("", strconv.Itoa(t.port))
	conn, err := net.ListenPacket("udp4", addr)
	if err != nil {
		return fmt.Errorf("%w %d: %w", ErrBind, t.port, err)
	}
	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()

	t.log.Info().Str("addr", conn.LocalAddr().String()).Msg("listening")
	go t.readLoop(conn)
	return nil
}

// LocalAddr returns the bound receive address, or nil before Start.
func (t *UDP) LocalAddr() net.Addr {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	return t.conn.LocalAddr()
}

func (t *UDP) Send(ctx context.Context, payload []byte) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return ErrClosed
	}

	d := net.Dialer{Control: broadcastControl}
	target := net.JoinHostPort(t.broadcast, strconv.Itoa(t.port))
	conn, err := d.DialContext(ctx, "udp4", target)
	if err != nil {
		return fmt.Errorf("transport: dial %s: %w", target, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetWriteDeadline(deadline) //nolint:errcheck
	}

	chunks := Chunk(payload, ChunkSize)
	for i, c := range chunks {
		if _, err := conn.Write(c); err != nil {
			return fmt.Errorf("transport: write chunk %d/%d to %s: %w", i+1, len(chunks), target, err)
		}
		metrics.DatagramsSent.Inc()
	}
	t.log.Debug().Int("bytes", len(payload)).Int("chunks", len(chunks)).Str("to", target).Msg("broadcast sent")
	return nil
}

func (t *UDP) Incoming() <-chan Datagram {
	return t.incoming
}

func (t *UDP) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.done)
	if t.conn != nil {
		return t.conn.Close()
	}
	close(t.incoming)
	return nil
}

// readLoop blocks on the socket with no deadline; only Close stops it.
func (t *UDP) readLoop(conn net.PacketConn) {
	defer close(t.incoming)

	buf := make([]byte, ChunkSize)
	retry := readRetryMin
	for {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			t.log.Warn().Err(err).Dur("retry", retry).Msg("read failed")
			select {
			case <-time.After(retry):
			case <-t.done:
				return
			}
			retry = min(retry*2, readRetryMax)
			continue
		}
		retry = readRetryMin
		payload := make([]byte, n)
		copy(payload, buf[:n])
		metrics.DatagramsReceived.Inc()

		// No drops here: a stalled consumer stalls reads and the kernel
		// socket buffer absorbs the backlog.
		select {
		case t.incoming <- Datagram{From: from.String(), Payload: payload}:
		case <-t.done:
			return
		}
	}
}
