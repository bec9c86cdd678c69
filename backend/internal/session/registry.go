package session

import (
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"mnemos/backend/internal/protocol"
	"mnemos/backend/pkg/logger"
	"go.uber.org/zap"
)

// Registry tracks live sessions by id. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	logger   *zap.Logger
}

// NewRegistry creates an empty session registry
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		logger:   logger.Get(),
	}
}

// Open registers a new session for the connection, assigns it a fresh id and
// sends the connected acknowledgement. The returned session is live until
// Close is called with its id.
func (r *Registry) Open(conn *websocket.Conn) (*Session, error) {
	r.mu.Lock()
	var id string
	for {
		id = uuid.New().String()
		if _, exists := r.sessions[id]; !exists {
			break
		}
	}
	sess := newSession(id, conn)
	r.sessions[id] = sess
	r.mu.Unlock()

	if err := sess.Emit(protocol.Connected(id)); err != nil {
		r.Close(id)
		return nil, err
	}

	r.logger.Info("Session opened", zap.String("session_id", id))
	return sess, nil
}

// Lookup returns the session for an id, if it is still live
func (r *Registry) Lookup(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[id]
	return sess, ok
}

// Close removes a session and releases its connection. Idempotent; closing
// an unknown id is a no-op.
func (r *Registry) Close(id string) {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	sess.close()
	r.logger.Info("Session closed", zap.String("session_id", id))
}

// Count returns the number of live sessions
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// IDs returns the ids of all live sessions
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}
