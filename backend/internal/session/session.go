// Package session owns the set of live client connections. The Registry is
// the only shared mutable structure in the gateway; everything else is
// per-session or stateless.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"mnemos/backend/internal/protocol"
	apperrors "mnemos/backend/pkg/errors"
)

// Direction of a logged envelope
const (
	DirInbound  = "in"
	DirOutbound = "out"
)

// LogEntry is one exchanged envelope in a session's lifetime log
type LogEntry struct {
	Direction string    `json:"direction"`
	Kind      string    `json:"kind"`
	At        time.Time `json:"at"`
}

// Session is the server-side state for one live connection. It is owned
// exclusively by the Registry and removed on disconnect.
type Session struct {
	ID        string
	CreatedAt time.Time

	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc

	// writeMu serializes writes; gorilla connections allow one writer at a time
	writeMu sync.Mutex
	closed  bool
	log     []LogEntry
}

func newSession(id string, conn *websocket.Conn) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		ID:        id,
		CreatedAt: time.Now(),
		conn:      conn,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// SessionID returns the registry-assigned identity
func (s *Session) SessionID() string {
	return s.ID
}

// Context is cancelled when the session closes, so in-flight gateway calls
// for this session can be abandoned
func (s *Session) Context() context.Context {
	return s.ctx
}

// Emit sends one outbound envelope over the connection. After close it
// returns ErrSessionClosed without attempting delivery.
func (s *Session) Emit(env protocol.Outbound) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed {
		return apperrors.ErrSessionClosed
	}
	if err := s.conn.WriteJSON(env); err != nil {
		return err
	}
	s.log = append(s.log, LogEntry{Direction: DirOutbound, Kind: env.Kind, At: time.Now()})
	return nil
}

// RecordInbound appends a received envelope kind to the session log
func (s *Session) RecordInbound(kind string) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.log = append(s.log, LogEntry{Direction: DirInbound, Kind: kind, At: time.Now()})
}

// Exchanged returns how many envelopes this session has sent and received
func (s *Session) Exchanged() int {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return len(s.log)
}

// ReadMessage blocks for the next raw inbound frame
func (s *Session) ReadMessage() ([]byte, error) {
	_, data, err := s.conn.ReadMessage()
	return data, err
}

func (s *Session) close() {
	s.writeMu.Lock()
	alreadyClosed := s.closed
	s.closed = true
	s.writeMu.Unlock()

	s.cancel()
	if !alreadyClosed {
		_ = s.conn.Close()
	}
}
