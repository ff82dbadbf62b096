package http_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/m-mizutani/gt"
	server "github.com/telemetry-lab/magpie/pkg/controller/http"
	websocket_ctrl "github.com/telemetry-lab/magpie/pkg/controller/websocket"
	"github.com/telemetry-lab/magpie/pkg/domain/model/message"
	"github.com/telemetry-lab/magpie/pkg/repository/memory"
	"github.com/telemetry-lab/magpie/pkg/service/archive"
	"github.com/telemetry-lab/magpie/pkg/usecase"
	"github.com/telemetry-lab/magpie/pkg/utils/metrics"
)

func TestHealthEndpoint(t *testing.T) {
	srv := server.New()

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	gt.Equal(t, w.Code, http.StatusOK)
	gt.S(t, w.Body.String()).Contains(`"status":"ok"`)
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	m.ConnectionsTotal.Inc()

	srv := server.New(server.WithMetricsHandler(m.Handler()))

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	gt.Equal(t, w.Code, http.StatusOK)
	gt.S(t, w.Body.String()).Contains("magpie_connections_total")
}

func TestMetricsDisabledByDefault(t *testing.T) {
	srv := server.New()

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	gt.Equal(t, w.Code, http.StatusNotFound)
}

// The logging middleware wraps the response writer, so this covers the
// hijack passthrough the upgrade depends on.
func TestWebSocketUpgradeThroughServer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := usecase.New(memory.New(),
		archive.NewAllocator(t.TempDir(), archive.NewUserNaming()),
		archive.NewWriter())
	hub := websocket_ctrl.NewHub(ctx)
	defer func() { _ = hub.Close() }()

	srv := server.New(server.WithWebSocketHandler(websocket_ctrl.NewHandler(hub, rec)))
	ts := httptest.NewServer(srv)
	defer ts.Close()

	wsURL := strings.Replace(ts.URL, "http", "ws", 1) + "/ws"
	ws, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	gt.NoError(t, err)
	gt.Equal(t, resp.StatusCode, http.StatusSwitchingProtocols)
	defer func() { _ = ws.Close() }()

	gt.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	gt.NoError(t, ws.WriteJSON(map[string]any{"type": "connection", "status": "ready"}))

	var ack message.Response
	gt.NoError(t, ws.ReadJSON(&ack))
	gt.Equal(t, ack.Type, message.TypeAcknowledge)
	gt.Equal(t, ack.Message, "Connection established")
}
