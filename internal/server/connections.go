package server

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/michaelbrown/rustplay/internal/metrics"
)

// Conn is an open websocket connection and the context its executions run
// under.
type Conn struct {
	ID     string
	Ctx    context.Context
	Cancel context.CancelFunc // cancels in-flight executions
	ws     *websocket.Conn
	mu     sync.Mutex // serializes writes
}

// ConnManager tracks open websocket connections so they can be torn down
// on shutdown.
type ConnManager struct {
	mu    sync.RWMutex
	conns map[string]*Conn
}

// NewConnManager creates a new ConnManager.
func NewConnManager() *ConnManager {
	return &ConnManager{
		conns: make(map[string]*Conn),
	}
}

// Add registers ws and returns its handle.
func (cm *ConnManager) Add(ws *websocket.Conn) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{ID: uuid.NewString(), Ctx: ctx, Cancel: cancel, ws: ws}

	cm.mu.Lock()
	cm.conns[c.ID] = c
	cm.mu.Unlock()
	metrics.WebsocketConnections.Inc()
	return c
}

// Len is the number of tracked connections.
func (cm *ConnManager) Len() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.conns)
}

// Remove forgets a connection and cancels any in-flight work.
func (cm *ConnManager) Remove(id string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if c, ok := cm.conns[id]; ok {
		c.Cancel()
		delete(cm.conns, id)
		metrics.WebsocketConnections.Dec()
	}
}

// CloseAll cancels and closes every connection.
func (cm *ConnManager) CloseAll() {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	for id, c := range cm.conns {
		c.Cancel()
		c.ws.Close()
		delete(cm.conns, id)
		metrics.WebsocketConnections.Dec()
	}
}
