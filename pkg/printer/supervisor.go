// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package printer

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Thermoquad/resinstat/pkg/retry"
)

// LinkState is the lifecycle state of the device link
type LinkState int

const (
	Disconnected LinkState = iota
	Connecting
	Connected
	Reconnecting
)

func (s LinkState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

// MarshalText renders the state name in JSON
func (s LinkState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name. Unknown names read as Disconnected.
func (s *LinkState) UnmarshalText(text []byte) error {
	switch string(text) {
	case "connecting":
		*s = Connecting
	case "connected":
		*s = Connected
	case "reconnecting":
		*s = Reconnecting
	default:
		*s = Disconnected
	}
	return nil
}

// LinkInfo describes the device link
type LinkInfo struct {
	State    LinkState `json:"state"`
	Address  string    `json:"address"`
	Failures int       `json:"failures"`
}

// session is one Connect..Disconnect span, including any reconnects
type session struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// supervisor owns the device link: dial, receive loop, reconnect
type supervisor struct {
	dialer  Dialer
	policy  retry.Policy
	logger  zerolog.Logger
	metrics *Metrics

	// handle is called from the receive loop, in frame order
	handle func([]byte)
	// onConnect runs after every successful (re)connect
	onConnect func()
	// onDrop runs when the link goes away with commands possibly pending
	onDrop func(error)

	mu       sync.Mutex
	state    LinkState
	address  string
	conn     Conn
	failures int
	sess     *session
	closed   bool
}

func (s *supervisor) setState(state LinkState) {
	s.state = state
	s.metrics.link(state)
}

// Connect dials address and starts the receive loop. Any existing link is
// torn down first. A failed dial is returned as *ConnectionError and is not
// retried.
func (s *supervisor) Connect(ctx context.Context, address string) error {
	s.Disconnect()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	sessCtx, cancel := context.WithCancel(context.Background())
	sess := &session{ctx: sessCtx, cancel: cancel, done: make(chan struct{})}
	s.sess = sess
	s.address = address
	s.failures = 0
	s.setState(Connecting)
	s.mu.Unlock()

	s.logger.Info().Str("address", address).Msg("Connecting to printer")

	conn, err := s.dialer.Dial(ctx, address)
	if err != nil {
		s.mu.Lock()
		if s.sess == sess {
			s.sess = nil
			s.setState(Disconnected)
		}
		s.mu.Unlock()
		cancel()
		close(sess.done)

		s.logger.Warn().Err(err).Str("address", address).Msg("Connection failed")
		return &ConnectionError{Address: address, Err: err}
	}

	s.mu.Lock()
	if s.sess != sess {
		// Disconnected while dialing
		s.mu.Unlock()
		conn.Close()
		close(sess.done)
		return ErrDeviceUnavailable
	}
	s.conn = conn
	s.setState(Connected)
	s.mu.Unlock()

	s.logger.Info().Str("address", address).Msg("Connected to printer")

	go s.run(sess, conn)
	s.onConnect()
	return nil
}

// Disconnect closes the link and waits for the receive loop to exit.
// It is idempotent.
func (s *supervisor) Disconnect() {
	s.mu.Lock()
	sess := s.sess
	conn := s.conn
	s.sess = nil
	s.conn = nil
	wasLinked := s.state != Disconnected
	s.setState(Disconnected)
	s.mu.Unlock()

	if sess == nil {
		return
	}
	sess.cancel()
	if conn != nil {
		conn.Close()
	}
	<-sess.done

	if wasLinked {
		s.onDrop(ErrDeviceUnavailable)
		s.logger.Info().Msg("Disconnected from printer")
	}
}

// Close disconnects and refuses further connects
func (s *supervisor) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.Disconnect()
}

// Write sends one frame on the current link
func (s *supervisor) Write(data []byte) error {
	s.mu.Lock()
	conn, state := s.conn, s.state
	s.mu.Unlock()

	if conn == nil || state != Connected {
		return ErrDeviceUnavailable
	}
	if err := conn.WriteFrame(data); err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	return nil
}

// Info returns the current link description
func (s *supervisor) Info() LinkInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return LinkInfo{State: s.state, Address: s.address, Failures: s.failures}
}

// Connected reports whether frames can be written right now
func (s *supervisor) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == Connected
}

// run receives frames until the session ends, reconnecting on drops
func (s *supervisor) run(sess *session, conn Conn) {
	defer close(sess.done)

	for {
		err := s.receive(conn)
		conn.Close()
		if sess.ctx.Err() != nil {
			return
		}

		s.mu.Lock()
		if s.sess != sess {
			s.mu.Unlock()
			return
		}
		s.conn = nil
		s.setState(Reconnecting)
		s.mu.Unlock()

		s.logger.Warn().Err(err).Msg("Connection lost")
		s.onDrop(ErrDeviceUnavailable)

		conn = s.reconnect(sess)
		if conn == nil {
			return
		}
		s.onConnect()
	}
}

func (s *supervisor) receive(conn Conn) error {
	for {
		data, err := conn.ReadFrame()
		if err != nil {
			return err
		}
		s.handle(data)
	}
}

// reconnect dials with backoff until it succeeds, the budget runs out, or
// the session is cancelled. Returns nil when it gives up.
func (s *supervisor) reconnect(sess *session) Conn {
	s.mu.Lock()
	address := s.address
	s.mu.Unlock()

	for attempt := 1; ; attempt++ {
		s.mu.Lock()
		s.failures = attempt
		s.mu.Unlock()

		if s.policy.Exhausted(attempt) {
			s.logger.Error().Int("attempts", attempt-1).Msg("Giving up on printer link")
			s.mu.Lock()
			if s.sess == sess {
				s.setState(Disconnected)
			}
			s.mu.Unlock()
			return nil
		}

		delay := s.policy.Delay(attempt)
		s.logger.Info().Int("attempt", attempt).Dur("delay", delay).Msg("Reconnecting")
		if err := s.policy.Wait(sess.ctx, attempt); err != nil {
			return nil
		}

		s.metrics.reconnect()
		conn, err := s.dialer.Dial(sess.ctx, address)
		if err != nil {
			s.logger.Debug().Err(err).Int("attempt", attempt).Msg("Reconnect failed")
			continue
		}

		s.mu.Lock()
		if s.sess != sess || sess.ctx.Err() != nil {
			s.mu.Unlock()
			conn.Close()
			return nil
		}
		s.conn = conn
		s.failures = 0
		s.setState(Connected)
		s.mu.Unlock()

		s.logger.Info().Int("attempt", attempt).Msg("Reconnected to printer")
		return conn
	}
}
