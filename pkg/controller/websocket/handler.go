package websocket

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/m-mizutani/goerr/v2"
	"github.com/telemetry-lab/magpie/pkg/domain/model/errs"
	"github.com/telemetry-lab/magpie/pkg/domain/model/message"
	"github.com/telemetry-lab/magpie/pkg/usecase"
	"github.com/telemetry-lab/magpie/pkg/utils/logging"
)

// Handler runs the recording protocol over WebSocket connections
type Handler struct {
	hub      *Hub
	recorder *usecase.Recorder
	upgrader websocket.Upgrader
}

func NewHandler(hub *Hub, recorder *usecase.Recorder) *Handler {
	return &Handler{
		hub:      hub,
		recorder: recorder,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Recording clients are native apps that send no Origin header
				return true
			},
		},
	}
}

// HandleRecording upgrades the HTTP request and serves the recording
// protocol until the client disconnects.
func (h *Handler) HandleRecording(w http.ResponseWriter, r *http.Request) {
	logger := logging.From(r.Context())

	sock, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already replied with an HTTP error
		logger.Error("failed to upgrade connection", logging.ErrAttr(err))
		return
	}

	// The request context dies when this handler returns, so the pumps
	// run on the hub context instead.
	conn := h.hub.NewConn(sock)
	h.hub.Register(conn)

	logger.Info("client connected", "conn_id", conn.ID(), "remote", r.RemoteAddr)

	go h.writePump(conn)
	go h.readPump(conn)
}

// readPump reads client messages until the connection dies, then
// flushes whatever sessions the client left open.
func (h *Handler) readPump(conn *Conn) {
	ctx := conn.Context()
	logger := logging.From(ctx)

	defer func() {
		if flushed := h.recorder.SweepConn(ctx, conn.ID()); flushed > 0 {
			logger.Info("archived sessions on disconnect", "count", flushed)
		}
		h.hub.Unregister(conn)
		if err := conn.sock.Close(); err != nil {
			logger.Debug("failed to close connection in readPump", logging.ErrAttr(err))
		}
		logger.Info("client disconnected")
	}()

	conn.sock.SetReadLimit(maxMessageSize)
	if err := conn.sock.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logger.Error("failed to set read deadline", logging.ErrAttr(err))
		return
	}
	conn.sock.SetPongHandler(func(string) error {
		if err := conn.sock.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			logger.Error("failed to set read deadline in pong handler", logging.ErrAttr(err))
		}
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, raw, err := conn.sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				logger.Error("unexpected WebSocket close", logging.ErrAttr(err))
			}
			return
		}

		h.dispatch(ctx, conn, raw)
	}
}

func (h *Handler) dispatch(ctx context.Context, conn *Conn, raw []byte) {
	logger := logging.From(ctx)

	var req message.Request
	if err := req.FromBytes(raw); err != nil {
		logger.Warn("unparsable message", logging.ErrAttr(err))
		conn.Send(message.NewError("Invalid JSON format"))
		return
	}

	if !req.IsValidType() {
		logger.Warn("unknown message type", "type", req.Type)
		conn.Send(message.NewError("Unknown message type"))
		return
	}

	switch req.Type {
	case message.TypeConnection:
		logger.Info("client handshake", "status", req.Status)
		conn.Send(message.NewAcknowledge())

	case message.TypeStartSession:
		h.handleStartSession(ctx, conn, &req)

	case message.TypeTrainingData:
		h.handleTrainingData(ctx, conn, &req)

	case message.TypeEndSession:
		h.handleEndSession(ctx, conn, &req)
	}
}

func (h *Handler) handleStartSession(ctx context.Context, conn *Conn, req *message.Request) {
	sess, err := h.recorder.StartSession(ctx, conn.ID(), req.User)
	if err != nil {
		logging.From(ctx).Warn("failed to start session", logging.ErrAttr(err))

		switch {
		case errors.Is(err, errs.ErrOwnerRequired):
			conn.Send(message.NewError("User information required to start session"))
		case goerr.HasTag(err, errs.TagValidation):
			conn.Send(message.NewError("Invalid user information"))
		default:
			conn.Send(message.NewError("Failed to start session"))
		}
		return
	}

	conn.Send(message.NewSessionStarted(sess.ID()))
}

func (h *Handler) handleTrainingData(ctx context.Context, conn *Conn, req *message.Request) {
	if req.SessionID == "" {
		conn.Send(message.NewError("Session ID required"))
		return
	}

	if _, err := h.recorder.AppendData(ctx, req.SessionID, req.Data); err != nil {
		logging.From(ctx).Warn("rejected training data",
			"session_id", req.SessionID, logging.ErrAttr(err))
		conn.Send(message.NewError("Invalid session ID"))
		return
	}

	conn.Send(message.NewDataReceived(req.SessionID, len(req.Data)))
}

func (h *Handler) handleEndSession(ctx context.Context, conn *Conn, req *message.Request) {
	if req.SessionID == "" {
		conn.Send(message.NewError("Session ID required"))
		return
	}

	path, err := h.recorder.EndSession(ctx, req.SessionID)
	if err != nil {
		logging.From(ctx).Warn("failed to end session",
			"session_id", req.SessionID, logging.ErrAttr(err))
		conn.Send(message.NewError("Failed to end session"))
		return
	}

	conn.Send(message.NewSessionEnded(req.SessionID, path))
}

// writePump delivers queued responses and keeps the connection alive
// with pings. One goroutine per connection owns all writes.
func (h *Handler) writePump(conn *Conn) {
	logger := logging.From(conn.Context())

	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		if err := conn.sock.Close(); err != nil {
			logger.Debug("failed to close connection in writePump", logging.ErrAttr(err))
		}
	}()

	send := conn.sendCh()

	for {
		select {
		case <-conn.Context().Done():
			return

		case data, ok := <-send:
			if err := conn.sock.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logger.Error("failed to set write deadline", logging.ErrAttr(err))
				return
			}
			if !ok {
				// Hub closed the channel
				if err := conn.sock.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					logger.Debug("failed to write close message", logging.ErrAttr(err))
				}
				return
			}

			if err := conn.sock.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Error("failed to write message", logging.ErrAttr(err))
				return
			}

			// Drain anything already queued
			n := len(send)
			for i := 0; i < n; i++ {
				if err := conn.sock.WriteMessage(websocket.TextMessage, <-send); err != nil {
					logger.Error("failed to write queued message", logging.ErrAttr(err))
					return
				}
			}

		case <-ticker.C:
			if err := conn.sock.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logger.Error("failed to set write deadline for ping", logging.ErrAttr(err))
				return
			}
			if err := conn.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
