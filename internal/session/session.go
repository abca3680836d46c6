// Package session runs one chat link: it owns the operator's identity, runs
// the background listener that feeds the console, and turns completed input
// lines into commands or broadcasts.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"lanlink/internal/console"
	"lanlink/internal/envelope"
	"lanlink/internal/metrics"
	"lanlink/internal/transport"
)

// CommandPrefix marks an input line as a command rather than a message.
const CommandPrefix = "/"

const (
	nameReminder = "PLEASE CHANGE YOUR NAME WITH /nick FIRST!"
	helpText     = "Commands: /nick <name>, /key <passphrase>, /help"
)

// ErrRunning is returned by Start on a session that is already running.
var ErrRunning = errors.New("session: already running")

// State is the session lifecycle. There is no stopped state; a session runs
// until the process exits.
type State int

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Config configures a Session.
type Config struct {
	Transport   transport.Transport
	Console     console.Sink
	Identity    *Identity
	DefaultName string           // placeholder that blocks sending
	WeakKey     string           // built-in key that triggers a startup warning
	Now         func() time.Time // defaults to time.Now
	Logger      zerolog.Logger
}

// Session is one running chat link.
type Session struct {
	cfg   Config
	tr    transport.Transport
	out   console.Sink
	id    *Identity
	log   zerolog.Logger
	input Input
	now   func() time.Time

	mu    sync.Mutex
	state State
}

// New creates an idle Session.
func New(cfg Config) *Session {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Session{
		cfg: cfg,
		tr:  cfg.Transport,
		out: cfg.Console,
		id:  cfg.Identity,
		log: cfg.Logger.With().Str("component", "session").Logger(),
		now: cfg.Now,
	}
}

// Start binds the transport and launches the listener goroutine. It returns
// once the listener is running; the caller then drives input with Feed or
// Submit. The listener is never joined: it ends when the transport closes or
// ctx is done.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Running {
		return ErrRunning
	}
	if err := s.tr.Start(); err != nil {
		return fmt.Errorf("session: start transport: %w", err)
	}
	s.state = Running

	name, key := s.id.Name(), s.id.Key()
	s.out.Append(fmt.Sprintf("Console started with default username '%s' and key '%s'", name, key))
	if s.cfg.WeakKey != "" && key == s.cfg.WeakKey {
		s.out.Append("Warning: the built-in key is public; anyone on this network can read the chat. Set your own with /key.")
	}
	s.log.Info().Str("name", name).Msg("session started")

	go s.listen(ctx)
	return nil
}

// State reports whether Start has run.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Identity returns the session's mutable identity.
func (s *Session) Identity() *Identity {
	return s.id
}

// Input returns the live input line so a UI can render it after each key.
func (s *Session) Input() *Input {
	return &s.input
}

// Feed handles one keystroke. When it completes a line, the line is submitted.
func (s *Session) Feed(ctx context.Context, r rune) {
	if line, ready := s.input.Feed(r); ready {
		s.Submit(ctx, line)
	}
}

// Submit dispatches one completed input line.
func (s *Session) Submit(ctx context.Context, line string) {
	s.input.Clear()

	if strings.HasPrefix(line, CommandPrefix) {
		s.command(line)
		return
	}
	if strings.TrimSpace(line) == "" {
		return
	}
	if s.id.Name() == s.cfg.DefaultName {
		s.out.Append(nameReminder)
		return
	}
	if err := s.send(ctx, line); err != nil {
		metrics.SendFailures.Inc()
		s.log.Warn().Err(err).Msg("send failed")
		s.out.Append(fmt.Sprintf("Send failed: %v", err))
		return
	}
	metrics.MessagesSent.Inc()
}

// Close releases the transport, which ends the listener.
func (s *Session) Close() error {
	return s.tr.Close()
}

func (s *Session) command(line string) {
	fields := strings.Fields(strings.TrimPrefix(line, CommandPrefix))
	if len(fields) == 0 {
		metrics.Commands.WithLabelValues("unknown").Inc()
		s.out.Append(fmt.Sprintf("Unknown command: %s", line))
		return
	}

	switch cmd := fields[0]; cmd {
	case "nick":
		metrics.Commands.WithLabelValues(cmd).Inc()
		if len(fields) < 2 {
			s.out.Append("Usage: /nick <name>")
			return
		}
		s.id.SetName(fields[1])
		s.log.Info().Str("name", fields[1]).Msg("name changed")
		s.out.Append(fmt.Sprintf("Successfully set name to %s", fields[1]))
	case "key":
		metrics.Commands.WithLabelValues(cmd).Inc()
		if len(fields) < 2 {
			s.out.Append("Usage: /key <passphrase>")
			return
		}
		s.id.SetKey(fields[1])
		s.log.Info().Msg("key changed")
		s.out.Append(fmt.Sprintf("Successfully set key to %s", fields[1]))
	case "help":
		metrics.Commands.WithLabelValues(cmd).Inc()
		s.out.Append(helpText)
	default:
		metrics.Commands.WithLabelValues("unknown").Inc()
		s.out.Append(fmt.Sprintf("Unknown command: /%s (try /help)", cmd))
	}
}

func (s *Session) send(ctx context.Context, body string) error {
	name, codec := s.id.snapshot()
	b, err := envelope.New(name, body, s.now()).Marshal()
	if err != nil {
		return err
	}
	// The whole envelope is encrypted once and then chunked; see the
	// transport package on why multi-chunk messages do not survive.
	return s.tr.Send(ctx, codec.Encrypt(b))
}

func (s *Session) listen(ctx context.Context) {
	incoming := s.tr.Incoming()
	for {
		select {
		case <-ctx.Done():
			s.log.Debug().Err(ctx.Err()).Msg("listener stopped")
			return
		case d, ok := <-incoming:
			if !ok {
				s.log.Debug().Msg("listener stopped: transport closed")
				return
			}
			s.out.Append(s.render(d))
		}
	}
}

// render decrypts one datagram and formats it. Datagrams that do not decode
// to an envelope, typically from a peer on another key, are shown raw.
func (s *Session) render(d transport.Datagram) string {
	plain := s.id.Codec().Decrypt(d.Payload)
	env, err := envelope.Parse(plain)
	if err != nil {
		metrics.ParseFailures.Inc()
		s.log.Debug().Err(err).Str("from", d.From).Int("bytes", len(d.Payload)).Msg("showing raw payload")
		return envelope.RawLine(d.From, plain)
	}
	return env.Line()
}
