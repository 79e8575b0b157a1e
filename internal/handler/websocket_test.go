package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/flexishop/internal/middleware"
	"github.com/vyrodovalexey/flexishop/internal/model"
)

// fixedCounter reports the same count for every session.
type fixedCounter int

func (c fixedCounter) CartCount(context.Context, string) int { return int(c) }

// badgeServer serves the WebSocket handler behind the browsing-context
// middleware.
func badgeServer(t *testing.T, counter CartCounter) (*WebSocketHandler, *httptest.Server) {
	t.Helper()

	ws := NewWebSocketHandler(counter, zap.NewNop())
	server := httptest.NewServer(middleware.BrowsingContext(middleware.SessionOptions{})(http.HandlerFunc(ws.HandleWebSocket)))
	t.Cleanup(server.Close)

	return ws, server
}

func dialAs(t *testing.T, serverURL, sid string) *websocket.Conn {
	t.Helper()

	header := http.Header{}
	header.Set("Cookie", middleware.DefaultSessionCookie+"="+sid)

	wsURL := "ws" + strings.TrimPrefix(serverURL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

func readCount(t *testing.T, conn *websocket.Conn) model.WebSocketMessage {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg model.WebSocketMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebSocketHandler_SendsInitialCount(t *testing.T) {
	// Arrange
	_, server := badgeServer(t, fixedCounter(4))

	// Act
	conn := dialAs(t, server.URL, "visitor-1")
	msg := readCount(t, conn)

	// Assert
	assert.Equal(t, model.WSMessageTypeCartCount, msg.Type)
	assert.Equal(t, 4, msg.Count)
	assert.False(t, msg.Timestamp.IsZero())
}

func TestWebSocketHandler_NotifyTargetsSession(t *testing.T) {
	// Arrange
	ws, server := badgeServer(t, fixedCounter(0))
	mine := dialAs(t, server.URL, "mine")
	other := dialAs(t, server.URL, "other")
	readCount(t, mine)
	readCount(t, other)
	require.Equal(t, 2, ws.ClientCount())

	// Act
	ws.Notify("mine", 5)

	// Assert
	assert.Equal(t, 5, readCount(t, mine).Count)

	require.NoError(t, other.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	var msg model.WebSocketMessage
	assert.Error(t, other.ReadJSON(&msg), "other session must not receive the update")
}

func TestWebSocketHandler_EverySocketOfSession(t *testing.T) {
	// Arrange
	ws, server := badgeServer(t, fixedCounter(1))
	tabA := dialAs(t, server.URL, "shared")
	tabB := dialAs(t, server.URL, "shared")
	readCount(t, tabA)
	readCount(t, tabB)

	// Act
	ws.Notify("shared", 7)

	// Assert
	assert.Equal(t, 7, readCount(t, tabA).Count)
	assert.Equal(t, 7, readCount(t, tabB).Count)
}

func TestWebSocketHandler_CartMutationUpdatesBadge(t *testing.T) {
	// Arrange
	f := newFixture(t, nil)
	ws := NewWebSocketHandler(f.shop, zap.NewNop())
	ws.RegisterRoutes(f.router)
	f.shop.SetNotifier(ws)
	server := httptest.NewServer(middleware.BrowsingContext(middleware.SessionOptions{})(f.router))
	t.Cleanup(server.Close)

	conn := dialAs(t, server.URL, "shopper")
	require.Equal(t, 0, readCount(t, conn).Count)

	req, err := http.NewRequest(http.MethodPost, server.URL+"/api/v1/cart/items", strings.NewReader(`{"id":1,"quantity":2}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: middleware.DefaultSessionCookie, Value: "shopper"})

	// Act
	resp, err := server.Client().Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	// Assert
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, 2, readCount(t, conn).Count)
}

func TestWebSocketHandler_MissingSession(t *testing.T) {
	// Arrange
	ws := NewWebSocketHandler(fixedCounter(0), zap.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	rr := httptest.NewRecorder()

	// Act
	ws.HandleWebSocket(rr, req)

	// Assert
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, 0, ws.ClientCount())
}

func TestWebSocketHandler_CloseAllConnections(t *testing.T) {
	// Arrange
	ws, server := badgeServer(t, fixedCounter(0))
	conn := dialAs(t, server.URL, "closing")
	readCount(t, conn)
	require.Equal(t, 1, ws.ClientCount())

	// Act
	ws.CloseAllConnections()

	// Assert
	assert.Equal(t, 0, ws.ClientCount())
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestSameOrigin(t *testing.T) {
	tests := []struct {
		name   string
		origin string
		want   bool
	}{
		{name: "no origin", origin: "", want: true},
		{name: "same host", origin: "http://shop.test", want: true},
		{name: "other host", origin: "http://evil.test", want: false},
		{name: "other port", origin: "http://shop.test:9000", want: false},
		{name: "malformed", origin: "://", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "http://shop.test/ws", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}

			assert.Equal(t, tt.want, sameOrigin(req))
		})
	}
}
