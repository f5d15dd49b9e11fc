package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"stereocast/internal/core"
)

type connEntry struct {
	Conn   core.SignalConnection
	Cancel context.CancelFunc
}

// ConnTable binds live connections to session ids. A connection is
// bound the moment the transport accepts it, before the participant
// registers, so roster broadcasts also reach anonymous sessions.
type ConnTable struct {
	mu    sync.RWMutex
	conns map[core.SessionID]connEntry
}

func NewConnTable() *ConnTable {
	return &ConnTable{conns: make(map[core.SessionID]connEntry)}
}

func (t *ConnTable) Bind(sid core.SessionID, conn core.SignalConnection, cancel context.CancelFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	// A rebind supersedes the previous connection; stop its pumps so the
	// stale socket cannot act on this session id anymore.
	if old, ok := t.conns[sid]; ok && old.Cancel != nil {
		old.Cancel()
	}
	t.conns[sid] = connEntry{Conn: conn, Cancel: cancel}
	log.Info().Str("module", "app.conns").Str("sid", string(sid)).Msg("bound connection")
}

// Release unbinds a session and cancels its pump context. When conn is
// non-nil the entry is released only if it still holds that exact
// connection, so a superseded socket's teardown cannot evict its
// successor. Returns whether an entry was removed.
func (t *ConnTable) Release(sid core.SessionID, conn core.SignalConnection) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.conns[sid]
	if !ok {
		return false
	}
	if conn != nil && e.Conn != conn {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	delete(t.conns, sid)
	log.Info().Str("module", "app.conns").Str("sid", string(sid)).Msg("released connection")
	return true
}

func (t *ConnTable) Get(sid core.SessionID) (core.SignalConnection, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.conns[sid]
	if !ok {
		return nil, false
	}
	return e.Conn, true
}

type connSnap struct {
	SID  core.SessionID
	Conn core.SignalConnection
}

func (t *ConnTable) All() []connSnap {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]connSnap, 0, len(t.conns))
	for sid, e := range t.conns {
		out = append(out, connSnap{SID: sid, Conn: e.Conn})
	}
	return out
}
