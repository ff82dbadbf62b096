package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/telemetry-lab/magpie/pkg/domain/model/message"
	"github.com/telemetry-lab/magpie/pkg/domain/types"
	"github.com/telemetry-lab/magpie/pkg/utils/logging"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer (64KB)
	maxMessageSize = 64 * 1024

	// Buffer size for the outbound message channel
	sendBufferSize = 256
)

// Conn represents one client connection
type Conn struct {
	id types.ConnID

	// The websocket connection
	sock *websocket.Conn

	// Buffered channel of outbound messages
	send chan []byte

	// Context for this connection
	ctx    context.Context
	cancel context.CancelFunc

	// Mutex to protect send channel
	mu sync.Mutex
}

func newConn(ctx context.Context, sock *websocket.Conn) *Conn {
	id := types.NewConnID()

	// Everything logged on behalf of this connection carries its ID
	ctx = logging.With(ctx, logging.From(ctx).With("conn_id", id))
	ctx, cancel := context.WithCancel(ctx)

	return &Conn{
		id:     id,
		sock:   sock,
		send:   make(chan []byte, sendBufferSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (c *Conn) ID() types.ConnID {
	return c.id
}

func (c *Conn) Context() context.Context {
	return c.ctx
}

// Send queues a response for delivery. A slow client loses responses
// rather than blocking the read loop.
func (c *Conn) Send(resp *message.Response) {
	data, err := resp.ToBytes()
	if err != nil {
		logging.From(c.ctx).Error("failed to marshal response", logging.ErrAttr(err))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.send == nil {
		return
	}
	select {
	case c.send <- data:
	default:
		logging.From(c.ctx).Warn("send buffer full, dropping response", "type", resp.Type)
	}
}

// closeSend closes the send channel once. Prevents double close when
// unregister and hub shutdown overlap.
func (c *Conn) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.send != nil {
		close(c.send)
		c.send = nil
	}
}

// sendCh snapshots the channel so the write pump keeps draining it
// deterministically after closeSend
func (c *Conn) sendCh() chan []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.send
}
