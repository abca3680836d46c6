package transport

import (
	"context"
	"fmt"
	"sync"
)

// Bus is an in-process broadcast domain. Every Memory transport attached to
// the same Bus receives every chunk sent by any of them, the sender included,
// just as a host receives its own subnet broadcast.
type Bus struct {
	mu      sync.RWMutex
	members map[string]*Memory
	nextID  int
}

// NewBus returns an empty broadcast domain.
func NewBus() *Bus {
	return &Bus{members: make(map[string]*Memory)}
}

// Memory is a Transport on a Bus, for tests.
type Memory struct {
	bus      *Bus
	addr     string
	incoming chan Datagram

	mu      sync.Mutex
	started bool
	closed  bool
	sendErr error
}

// NewMemory attaches a new transport to bus with a synthetic address.
func (b *Bus) NewMemory() *Memory {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	m := &Memory{
		bus:      b,
		addr:     fmt.Sprintf("10.0.0.%d:%d", b.nextID, DefaultPort),
		incoming: make(chan Datagram, 1024),
	}
	b.members[m.addr] = m
	return m
}

// Addr is the address peers see as the datagram source.
func (m *Memory) Addr() string { return m.addr }

// FailSends makes every subsequent Send return err; nil restores delivery.
func (m *Memory) FailSends(err error) {
	m.mu.Lock()
	m.sendErr = err
	m.mu.Unlock()
}

func (m *Memory) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.started = true
	return nil
}

func (m *Memory) Send(ctx context.Context, payload []byte) error {
	m.mu.Lock()
	closed, sendErr := m.closed, m.sendErr
	m.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if sendErr != nil {
		return sendErr
	}

	for _, c := range Chunk(payload, ChunkSize) {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.bus.deliver(Datagram{From: m.addr, Payload: append([]byte(nil), c...)})
	}
	return nil
}

func (m *Memory) Incoming() <-chan Datagram {
	return m.incoming
}

func (m *Memory) Close() error {
	m.bus.mu.Lock()
	delete(m.bus.members, m.addr)
	m.bus.mu.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.incoming)
	}
	return nil
}

func (b *Bus) deliver(d Datagram) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, m := range b.members {
		m.mu.Lock()
		if m.started && !m.closed {
			select {
			case m.incoming <- d:
			default:
				// Full receive buffer drops the datagram, as a socket would.
			}
		}
		m.mu.Unlock()
	}
}
