// Package transport moves encrypted chat payloads between hosts on one subnet.
//
// Payloads are split into datagram-sized chunks with no header of any kind.
// Receivers hand each datagram up on its own; there is no reassembly, so a
// payload larger than ChunkSize reaches peers as several unrelated pieces.
package transport

import (
	"context"
	"errors"
)

const (
	// ChunkSize is the largest payload carried by one datagram.
	ChunkSize = 4096
	// DefaultPort is the UDP port every peer binds and broadcasts to.
	DefaultPort = 42069
)

// ErrBind is returned by Start when the listening socket cannot be bound.
var ErrBind = errors.New("transport: cannot bind UDP port")

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("transport: closed")

// Datagram is one received chunk and the address it came from.
type Datagram struct {
	From    string
	Payload []byte
}

// Transport abstracts broadcast I/O so the session can run against real
// sockets or an in-process bus.
type Transport interface {
	// Start binds the receive side and begins delivering to Incoming.
	Start() error

	// Send broadcasts payload as ceil(len/ChunkSize) datagrams, in order.
	Send(ctx context.Context, payload []byte) error

	// Incoming delivers every received datagram. It is closed after Close.
	Incoming() <-chan Datagram

	// Close releases the receive socket.
	Close() error
}

// Chunk splits payload into consecutive slices of at most size bytes.
// The slices alias payload.
func Chunk(payload []byte, size int) [][]byte {
	if size <= 0 {
		size = ChunkSize
	}
	chunks := make([][]byte, 0, (len(payload)+size-1)/size)
	for len(payload) > 0 {
		n := min(size, len(payload))
		chunks = append(chunks, payload[:n])
		payload = payload[n:]
	}
	return chunks
}
