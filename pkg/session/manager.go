package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/Sumatoshi-tech/scanreport/pkg/observability"
	"github.com/Sumatoshi-tech/scanreport/pkg/store"
)

// DefaultFragmentSize is the read size used by Load.
const DefaultFragmentSize = 64 << 10

// Manager owns the store of a process and the at most one active session
// writing to it.
type Manager struct {
	store store.Store
	opts  Options

	mu     sync.Mutex
	active *Session
}

// NewManager creates a manager writing to s, which must be open.
func NewManager(s store.Store, opts Options) *Manager {
	return &Manager{store: s, opts: opts.withDefaults()}
}

// Store returns the managed store.
func (m *Manager) Store() store.Store {
	return m.store
}

// Begin cancels the active session, clears the store and starts a new session.
func (m *Manager) Begin(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		m.active.cancel(ctx)
		m.active = nil
	}

	if err := m.store.Clear(ctx); err != nil {
		return nil, fmt.Errorf("clear store: %w", err)
	}

	sess, err := newSession(ctx, uuid.NewString(), m.store, m.opts)
	if err != nil {
		return nil, err
	}

	m.active = sess
	m.opts.Logger.DebugContext(observability.ContextWithSession(ctx, sess.id), "session started")

	return sess, nil
}

// Active returns the current session, or nil.
func (m *Manager) Active() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.active
}

// Cancel cancels the active session, if any. The store keeps whatever the
// session wrote; use Begin to start over.
func (m *Manager) Cancel(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		m.active.cancel(ctx)
		m.active = nil
	}
}

// Load runs a whole session over r, feeding it in fragments of fragmentSize
// bytes (DefaultFragmentSize when not positive).
func (m *Manager) Load(ctx context.Context, r io.Reader, fragmentSize int) (Stats, error) {
	if fragmentSize <= 0 {
		fragmentSize = DefaultFragmentSize
	}

	sess, err := m.Begin(ctx)
	if err != nil {
		return Stats{}, err
	}

	buf := make([]byte, fragmentSize)

	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			if err := sess.Feed(ctx, string(buf[:n])); err != nil {
				return sess.Stats(), err
			}
		}

		if errors.Is(readErr, io.EOF) {
			break
		}

		if readErr != nil {
			return sess.Stats(), sess.abort(ctx, fmt.Errorf("read report: %w", readErr))
		}
	}

	return sess.Finish(ctx)
}
