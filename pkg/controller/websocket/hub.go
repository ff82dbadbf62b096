package websocket

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/telemetry-lab/magpie/pkg/domain/types"
	"github.com/telemetry-lab/magpie/pkg/utils/logging"
	"github.com/telemetry-lab/magpie/pkg/utils/metrics"
)

// Hub tracks open connections so shutdown can close them all and let
// their sessions drain to disk.
type Hub struct {
	mu    sync.RWMutex
	conns map[types.ConnID]*Conn

	ctx    context.Context
	cancel context.CancelFunc

	metrics *metrics.Metrics
}

type HubOption func(*Hub)

func WithMetrics(m *metrics.Metrics) HubOption {
	return func(h *Hub) {
		h.metrics = m
	}
}

func NewHub(ctx context.Context, opts ...HubOption) *Hub {
	ctx, cancel := context.WithCancel(ctx)
	h := &Hub{
		conns:   make(map[types.ConnID]*Conn),
		ctx:     ctx,
		cancel:  cancel,
		metrics: metrics.New(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// NewConn wraps an upgraded socket in a Conn bound to the hub context,
// so hub shutdown reaches every connection's pumps.
func (h *Hub) NewConn(sock *websocket.Conn) *Conn {
	return newConn(h.ctx, sock)
}

func (h *Hub) Register(conn *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.conns[conn.id] = conn
	h.metrics.ConnectionsActive.Inc()
	h.metrics.ConnectionsTotal.Inc()

	logging.From(h.ctx).Debug("connection registered",
		"conn_id", conn.id, "total", len(h.conns))
}

func (h *Hub) Unregister(conn *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[conn.id]; !ok {
		return
	}
	delete(h.conns, conn.id)
	conn.closeSend()
	conn.cancel()
	h.metrics.ConnectionsActive.Dec()

	logging.From(h.ctx).Debug("connection unregistered",
		"conn_id", conn.id, "total", len(h.conns))
}

// Len returns the number of registered connections
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Close shuts down all connections. The write pumps see the closed
// send channels, send close frames and release the sockets, which in
// turn unblocks the read pumps.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, conn := range h.conns {
		conn.closeSend()
		conn.cancel()
		delete(h.conns, id)
		h.metrics.ConnectionsActive.Dec()
	}
	h.cancel()

	logging.From(h.ctx).Info("websocket hub closed")
	return nil
}
