package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	memcache "github.com/alanyoungcy/pumpfight/internal/cache/memory"
	"github.com/alanyoungcy/pumpfight/internal/domain"
)

var (
	tokenA = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	tokenB = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

func eventJSON(token common.Address, name string) []byte {
	b, _ := json.Marshal(map[string]any{"token": token.Hex(), "name": name, "seq": 7})
	return b
}

func startHub(t *testing.T) (*memcache.Bus, *httptest.Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	bus := memcache.NewBus(100)
	hub := NewHub(bus, slog.New(slog.NewTextHandler(io.Discard, nil)))
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)
	return bus, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	return conn
}

func TestHubRoutesByTokenAsJSON(t *testing.T) {
	bus, srv := startHub(t)
	ctx := context.Background()

	require.NoError(t, bus.StreamAppend(ctx, domain.EventStream(tokenA), eventJSON(tokenA, "TokenCreated")))

	conn := dial(t, srv, "?format=json&token="+tokenA.Hex())

	_, hello, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(hello), `"hello"`)

	_, backlog, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(backlog), "TokenCreated")

	// Give the hub a moment to register before publishing live events.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, bus.Publish(ctx, domain.TokenChannel(tokenB), eventJSON(tokenB, "TokensSold")))
	require.NoError(t, bus.Publish(ctx, domain.TokenChannel(tokenA), eventJSON(tokenA, "TokensPurchased")))

	kind, live, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, kind)
	assert.Contains(t, string(live), "TokensPurchased")
}

func TestHubProtoFrames(t *testing.T) {
	bus, srv := startHub(t)
	conn := dial(t, srv, "")

	_, _, err := conn.ReadMessage() // hello
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, bus.Publish(context.Background(), domain.TokenChannel(tokenB), eventJSON(tokenB, "Staked")))

	kind, frame, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.BinaryMessage, kind)

	var st structpb.Struct
	require.NoError(t, proto.Unmarshal(frame, &st))
	assert.Equal(t, "Staked", st.Fields["name"].GetStringValue())
	assert.Equal(t, float64(7), st.Fields["seq"].GetNumberValue())
}

func TestHandleSubscription(t *testing.T) {
	c := &client{tokens: make(map[common.Address]bool)}
	assert.True(t, c.watches(tokenA))

	added := c.handleSubscription(subscribeMsg{Action: "subscribe", Tokens: []string{tokenA.Hex(), "nope"}})
	assert.Equal(t, []common.Address{tokenA}, added)
	assert.True(t, c.watches(tokenA))
	assert.False(t, c.watches(tokenB))

	c.handleSubscription(subscribeMsg{Action: "unsubscribe", Tokens: []string{tokenA.Hex()}})
	assert.True(t, c.watches(tokenB))
}

func TestShutdownClosesClientsOnce(t *testing.T) {
	hub := NewHub(memcache.NewBus(10), slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- hub.Run(ctx) }()

	c := &client{hub: hub, send: make(chan outbound, 1), tokens: make(map[common.Address]bool)}
	hub.register <- c
	cancel()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}

	// A late backlog write is dropped instead of hitting the closed channel.
	assert.False(t, c.enqueue(outbound{token: tokenA, data: eventJSON(tokenA, "Staked")}))
	_, open := <-c.send
	assert.False(t, open)
	c.close()

	left := make(chan struct{})
	go func() {
		c.leave()
		close(left)
	}()
	select {
	case <-left:
	case <-time.After(2 * time.Second):
		t.Fatal("leave blocked after shutdown")
	}
}

func TestSubscribeAfterShutdown(t *testing.T) {
	bus := memcache.NewBus(10)
	hub := NewHub(bus, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)

	require.NoError(t, bus.StreamAppend(context.Background(), domain.EventStream(tokenA), eventJSON(tokenA, "TokenCreated")))
	conn := dial(t, srv, "?format=json")
	_, _, err := conn.ReadMessage() // hello
	require.NoError(t, err)

	cancel()
	<-stopped

	sub, _ := json.Marshal(subscribeMsg{Action: "subscribe", Tokens: []string{tokenA.Hex()}})
	// The write races the server closing the connection.
	_ = conn.WriteMessage(websocket.TextMessage, sub)

	// The server closes the connection rather than panicking on the backlog.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
