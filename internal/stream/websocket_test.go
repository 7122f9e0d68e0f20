package stream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aman-zulfiqar/raydium-sniper/internal/errs"
	"github.com/aman-zulfiqar/raydium-sniper/internal/models"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type subscribeRequest struct {
	ID     int           `json:"id"`
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

// newWSServer accepts one connection, checks the subscribe request and then
// hands the connection to script.
func newWSServer(t *testing.T, script func(conn *websocket.Conn, req subscribeRequest)) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var req subscribeRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		script(conn, req)
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebsocketTransport_Subscribe(t *testing.T) {
	reqs := make(chan subscribeRequest, 1)
	srv := newWSServer(t, func(conn *websocket.Conn, req subscribeRequest) {
		reqs <- req
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"jsonrpc":"2.0","result":42,"id":1}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"jsonrpc":"2.0","method":"transactionNotification","params":{"subscription":42,"result":{"signature":"sigA","slot":99,"transaction":{"transaction":["AQID","base64"],"meta":{"err":null,"fee":5000,"postTokenBalances":[]}}}}}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"jsonrpc":"2.0","method":"transactionNotification","params":{"subscription":42,"result":{"signature":"sigB","slot":100,"transaction":{"transaction":["%%%","base64"]}}}}`))
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	})
	defer srv.Close()

	tr := NewWebsocketTransport(WebsocketConfig{URL: wsURL(srv), Logger: quietLogger()})
	ch, err := tr.Subscribe(context.Background(), []string{"prog1", "prog2"})
	require.NoError(t, err)

	var events []models.RawTransaction
	timeout := time.After(5 * time.Second)
	for done := false; !done; {
		select {
		case ev, ok := <-ch:
			if !ok {
				done = true
				continue
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatal("channel was not closed")
		}
	}

	require.Len(t, events, 1)
	assert.Equal(t, "sigA", events[0].Signature)
	assert.Equal(t, uint64(99), events[0].Slot)
	assert.Equal(t, []byte{1, 2, 3}, events[0].Data)
	assert.Equal(t, models.SourceStreaming, events[0].Source)
	require.NotNil(t, events[0].Meta)
	assert.False(t, events[0].Meta.Failed)

	got := <-reqs
	assert.Equal(t, "transactionSubscribe", got.Method)
	require.Len(t, got.Params, 2)
	filter := got.Params[0].(map[string]interface{})
	assert.Equal(t, []interface{}{"prog1", "prog2"}, filter["accountInclude"])
	opts := got.Params[1].(map[string]interface{})
	assert.Equal(t, "base64", opts["encoding"])
	assert.Equal(t, "confirmed", opts["commitment"])
}

func TestWebsocketTransport_SubscriptionRejected(t *testing.T) {
	srv := newWSServer(t, func(conn *websocket.Conn, _ subscribeRequest) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"jsonrpc":"2.0","error":{"code":-32601,"message":"method not found"},"id":1}`))
	})
	defer srv.Close()

	tr := NewWebsocketTransport(WebsocketConfig{URL: wsURL(srv), Logger: quietLogger()})
	_, err := tr.Subscribe(context.Background(), []string{"prog1"})
	require.Error(t, err)

	var te *errs.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "websocket", te.Transport)
	assert.Contains(t, err.Error(), "method not found")
}

func TestWebsocketTransport_DialFailure(t *testing.T) {
	tr := NewWebsocketTransport(WebsocketConfig{URL: "ws://127.0.0.1:1", Logger: quietLogger()})
	_, err := tr.Subscribe(context.Background(), []string{"prog1"})

	var te *errs.TransportError
	assert.True(t, errors.As(err, &te))
}

func TestWebsocketTransport_CancelClosesChannel(t *testing.T) {
	release := make(chan struct{})
	srv := newWSServer(t, func(conn *websocket.Conn, _ subscribeRequest) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"jsonrpc":"2.0","result":7,"id":1}`))
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				close(release)
				return
			}
		}
	})
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	tr := NewWebsocketTransport(WebsocketConfig{URL: wsURL(srv), Logger: quietLogger()})
	ch, err := tr.Subscribe(ctx, []string{"prog1"})
	require.NoError(t, err)

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("channel was not closed after cancel")
	}

	select {
	case <-release:
	case <-time.After(5 * time.Second):
		t.Fatal("server connection was not closed")
	}
}
