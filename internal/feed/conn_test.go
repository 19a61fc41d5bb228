package feed

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snekkenull/AISight-sub001/internal/config"
	"github.com/snekkenull/AISight-sub001/internal/domain/event"
	"github.com/snekkenull/AISight-sub001/internal/domain/model"
)

// feedServer is a minimal stand-in for the upstream stream: it accepts
// the websocket upgrade, reads the subscription frame, and then runs
// the provided session func on the server side of the connection.
type feedServer struct {
	server   *httptest.Server
	upgrades atomic.Int64
	lastSub  atomic.Value // subscriptionFrame
}

func newFeedServer(t *testing.T, session func(*websocket.Conn)) *feedServer {
	t.Helper()
	fs := &feedServer{}
	upgrader := websocket.Upgrader{}

	fs.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fs.upgrades.Add(1)

		var sub subscriptionFrame
		if err := ws.ReadJSON(&sub); err != nil {
			ws.Close()
			return
		}
		fs.lastSub.Store(sub)

		if session != nil {
			session(ws)
			return
		}
		// The upgrade hijacks the conn, so it must be closed explicitly.
		ws.Close()
	}))
	t.Cleanup(fs.server.Close)
	return fs
}

func (fs *feedServer) url() string {
	return "ws" + strings.TrimPrefix(fs.server.URL, "http")
}

func testFeedConfig(url string) config.FeedConfig {
	return config.FeedConfig{
		URL:                  url,
		APIKey:               "test-key",
		HandshakeTimeout:     3 * time.Second,
		MaxReconnectAttempts: 5,
		MessageTypes:         []string{"PositionReport", "ShipStaticData"},
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestConn_ConnectSendsSubscription(t *testing.T) {
	hold := make(chan struct{})
	defer close(hold)
	fs := newFeedServer(t, func(ws *websocket.Conn) { <-hold; ws.Close() })

	conn := New(testFeedConfig(fs.url()), testLogger(), Handlers{})
	conn.UpdateSubscription([]model.BoundingBox{{MinLat: 30, MinLon: -130, MaxLat: 45, MaxLon: -115}}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, conn.Connect(ctx))
	defer conn.Disconnect()

	require.Eventually(t, func() bool { return fs.lastSub.Load() != nil }, 2*time.Second, 10*time.Millisecond)
	sub := fs.lastSub.Load().(subscriptionFrame)
	assert.Equal(t, "test-key", sub.APIKey)
	require.Len(t, sub.BoundingBoxes, 1)
	assert.Equal(t, [2]float64{30, -130}, sub.BoundingBoxes[0][0])
	assert.Equal(t, [2]float64{45, -115}, sub.BoundingBoxes[0][1])
	assert.Equal(t, []string{"PositionReport", "ShipStaticData"}, sub.FilterMessageTypes)

	assert.Equal(t, StateConnected, conn.Stats().State)
}

func TestConn_DeliversDecodedEvents(t *testing.T) {
	hold := make(chan struct{})
	defer close(hold)
	fs := newFeedServer(t, func(ws *websocket.Conn) {
		ws.WriteMessage(websocket.TextMessage, []byte(positionFrame))
		ws.WriteMessage(websocket.TextMessage, []byte(`not json`))
		ws.WriteMessage(websocket.TextMessage, []byte(staticFrame))
		<-hold
		ws.Close()
	})

	positions := make(chan event.PositionEvent, 1)
	statics := make(chan event.StaticDataEvent, 1)
	diags := make(chan event.Diagnostic, 1)
	conn := New(testFeedConfig(fs.url()), testLogger(), Handlers{
		Position:   func(e event.PositionEvent) { positions <- e },
		StaticData: func(e event.StaticDataEvent) { statics <- e },
		Diagnostic: func(d event.Diagnostic) { diags <- d },
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, conn.Connect(ctx))
	defer conn.Disconnect()

	select {
	case p := <-positions:
		assert.Equal(t, "366123456", p.MMSI)
	case <-time.After(2 * time.Second):
		t.Fatal("position event not delivered")
	}
	select {
	case d := <-diags:
		assert.Equal(t, event.DiagnosticInvalidMessage, d.Kind)
		assert.Equal(t, "feed", d.Component)
	case <-time.After(2 * time.Second):
		t.Fatal("invalid-message diagnostic not delivered")
	}
	select {
	case s := <-statics:
		assert.Equal(t, "366123456", s.MMSI)
	case <-time.After(2 * time.Second):
		t.Fatal("static data event not delivered")
	}

	stats := conn.Stats()
	assert.Equal(t, uint64(3), stats.Received)
	assert.Equal(t, uint64(2), stats.Processed)
	assert.Equal(t, uint64(1), stats.Errored)
	assert.False(t, stats.LastMessage.IsZero())
}

func TestConn_ConnectFailsAgainstNonWebsocketServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no", http.StatusNotFound)
	}))
	t.Cleanup(server.Close)

	conn := New(testFeedConfig("ws"+strings.TrimPrefix(server.URL, "http")), testLogger(), Handlers{})
	err := conn.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateDisconnected, conn.Stats().State)
}

func TestConn_ReconnectsAfterConnectionLoss(t *testing.T) {
	fs := newFeedServer(t, nil) // session returns immediately: server drops the conn

	conn := New(testFeedConfig(fs.url()), testLogger(), Handlers{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, conn.Connect(ctx))
	defer conn.Disconnect()

	// First reconnect fires after 1s of backoff.
	require.Eventually(t, func() bool {
		return fs.upgrades.Load() >= 2
	}, 5*time.Second, 50*time.Millisecond)
}

func TestConn_DisconnectIsIdempotent(t *testing.T) {
	hold := make(chan struct{})
	defer close(hold)
	fs := newFeedServer(t, func(ws *websocket.Conn) { <-hold; ws.Close() })

	conn := New(testFeedConfig(fs.url()), testLogger(), Handlers{})
	require.NoError(t, conn.Connect(context.Background()))

	conn.Disconnect()
	conn.Disconnect()
	assert.Equal(t, StateDisconnected, conn.Stats().State)
}

func TestConn_ConnectWhileConnectedIsNoOp(t *testing.T) {
	hold := make(chan struct{})
	defer close(hold)
	fs := newFeedServer(t, func(ws *websocket.Conn) { <-hold; ws.Close() })

	conn := New(testFeedConfig(fs.url()), testLogger(), Handlers{})
	require.NoError(t, conn.Connect(context.Background()))
	defer conn.Disconnect()

	require.NoError(t, conn.Connect(context.Background()))
	assert.Equal(t, int64(1), fs.upgrades.Load())
}

func TestReconnectDelay_DoublesPerAttempt(t *testing.T) {
	t.Parallel()

	assert.Equal(t, time.Second, reconnectDelay(0))
	assert.Equal(t, 2*time.Second, reconnectDelay(1))
	assert.Equal(t, 4*time.Second, reconnectDelay(2))
	assert.Equal(t, 16*time.Second, reconnectDelay(4))
}

func TestSubscriptionBoxes_DefaultsToGlobe(t *testing.T) {
	t.Parallel()

	boxes := subscriptionBoxes(nil)
	require.Len(t, boxes, 1)
	assert.Equal(t, [2]float64{-90, -180}, boxes[0][0])
	assert.Equal(t, [2]float64{90, 180}, boxes[0][1])
}
