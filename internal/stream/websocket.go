package stream

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/aman-zulfiqar/raydium-sniper/internal/errs"
	"github.com/aman-zulfiqar/raydium-sniper/internal/models"
	"github.com/aman-zulfiqar/raydium-sniper/internal/rpc"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const subscribeRequestID = 1

// WebsocketConfig holds configuration for the streaming transport
type WebsocketConfig struct {
	URL        string
	Commitment string

	HandshakeTimeout time.Duration
	AckTimeout       time.Duration
	PingInterval     time.Duration

	// ReadTimeout bounds the silence between frames. Pongs extend it.
	ReadTimeout time.Duration

	BufferSize int
	Logger     *logrus.Logger
}

// WebsocketTransport streams transactions via transactionSubscribe.
type WebsocketTransport struct {
	url        string
	commitment string

	handshakeTimeout time.Duration
	ackTimeout       time.Duration
	pingInterval     time.Duration
	readTimeout      time.Duration
	bufferSize       int

	logger *logrus.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWebsocketTransport creates a streaming transport for cfg.URL
func NewWebsocketTransport(cfg WebsocketConfig) *WebsocketTransport {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Commitment == "" {
		cfg.Commitment = "confirmed"
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = 10 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 20 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}

	return &WebsocketTransport{
		url:              cfg.URL,
		commitment:       cfg.Commitment,
		handshakeTimeout: cfg.HandshakeTimeout,
		ackTimeout:       cfg.AckTimeout,
		pingInterval:     cfg.PingInterval,
		readTimeout:      cfg.ReadTimeout,
		bufferSize:       cfg.BufferSize,
		logger:           cfg.Logger,
	}
}

func (w *WebsocketTransport) Name() string { return "websocket" }

// Subscribe dials, sends transactionSubscribe and waits for the ack.
func (w *WebsocketTransport) Subscribe(ctx context.Context, programs []string) (<-chan models.RawTransaction, error) {
	if len(programs) == 0 {
		return nil, &errs.TransportError{Transport: w.Name(), Err: fmt.Errorf("no programs to monitor")}
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: w.handshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return nil, &errs.TransportError{Transport: w.Name(), Err: fmt.Errorf("websocket dial: %w", err)}
	}

	subscribeMsg := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      subscribeRequestID,
		"method":  "transactionSubscribe",
		"params": []interface{}{
			map[string]interface{}{
				"accountInclude": programs,
				"failed":         false,
				"vote":           false,
			},
			map[string]interface{}{
				"commitment":                     w.commitment,
				"encoding":                       "base64",
				"transactionDetails":             "full",
				"showRewards":                    false,
				"maxSupportedTransactionVersion": 0,
			},
		},
	}
	if err := conn.WriteJSON(subscribeMsg); err != nil {
		conn.Close()
		return nil, &errs.TransportError{Transport: w.Name(), Err: fmt.Errorf("subscribe: %w", err)}
	}

	subID, err := w.awaitAck(conn)
	if err != nil {
		conn.Close()
		return nil, &errs.TransportError{Transport: w.Name(), Err: err}
	}

	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()

	w.logger.WithFields(logrus.Fields{
		"subscription": subID,
		"programs":     len(programs),
	}).Info("websocket subscription active")

	out := make(chan models.RawTransaction, w.bufferSize)
	done := make(chan struct{})
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(w.readTimeout))
	})
	go w.keepalive(ctx, conn, done)
	go w.readLoop(ctx, conn, out, done)

	return out, nil
}

// Close tears down the current connection, ending its subscription.
func (w *WebsocketTransport) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		return nil
	}
	err := w.conn.Close()
	w.conn = nil
	return err
}

func (w *WebsocketTransport) awaitAck(conn *websocket.Conn) (uint64, error) {
	if err := conn.SetReadDeadline(time.Now().Add(w.ackTimeout)); err != nil {
		return 0, err
	}
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return 0, fmt.Errorf("await subscription ack: %w", err)
		}
		if msg.ID == nil || *msg.ID != subscribeRequestID {
			continue
		}
		if msg.Error != nil {
			return 0, fmt.Errorf("subscription rejected: %w", msg.Error)
		}
		var subID uint64
		if err := json.Unmarshal(msg.Result, &subID); err != nil {
			return 0, fmt.Errorf("invalid subscription ack: %w", err)
		}
		return subID, nil
	}
}

func (w *WebsocketTransport) readLoop(ctx context.Context, conn *websocket.Conn, out chan<- models.RawTransaction, done chan<- struct{}) {
	defer close(out)
	defer close(done)
	defer conn.Close()

	for {
		if err := conn.SetReadDeadline(time.Now().Add(w.readTimeout)); err != nil {
			return
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				w.logger.WithError(err).Warn("websocket read failed")
			}
			return
		}

		raw, ok := w.decode(data)
		if !ok {
			continue
		}
		select {
		case out <- raw:
		case <-ctx.Done():
			return
		}
	}
}

func (w *WebsocketTransport) keepalive(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(w.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				w.logger.WithError(err).Debug("websocket ping failed")
				conn.Close()
				return
			}
		}
	}
}

// decode turns a transactionNotification frame into a RawTransaction.
// Anything else is dropped.
func (w *WebsocketTransport) decode(data []byte) (models.RawTransaction, bool) {
	var msg wsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		w.logger.WithError(err).Debug("dropping malformed websocket frame")
		return models.RawTransaction{}, false
	}
	if msg.Method != "transactionNotification" || msg.Params == nil {
		return models.RawTransaction{}, false
	}

	var n txNotification
	if err := json.Unmarshal(msg.Params.Result, &n); err != nil {
		w.logger.WithError(err).Debug("dropping malformed transaction notification")
		return models.RawTransaction{}, false
	}
	if len(n.Transaction.Transaction) == 0 {
		w.logger.WithField("signature", n.Signature).Debug("dropping notification without transaction")
		return models.RawTransaction{}, false
	}
	payload, err := base64.StdEncoding.DecodeString(n.Transaction.Transaction[0])
	if err != nil {
		w.logger.WithError(err).WithField("signature", n.Signature).Debug("dropping undecodable transaction")
		return models.RawTransaction{}, false
	}

	return models.RawTransaction{
		Signature:  n.Signature,
		Slot:       n.Slot,
		Data:       payload,
		Meta:       n.Transaction.Meta.ToModel(),
		Source:     models.SourceStreaming,
		ObservedAt: time.Now(),
	}, true
}

type wsMessage struct {
	ID     *int            `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpc.RPCError   `json:"error"`
	Method string          `json:"method"`
	Params *struct {
		Subscription uint64          `json:"subscription"`
		Result       json.RawMessage `json:"result"`
	} `json:"params"`
}

type txNotification struct {
	Signature   string `json:"signature"`
	Slot        uint64 `json:"slot"`
	Transaction struct {
		Transaction []string             `json:"transaction"`
		Meta        *rpc.TransactionMeta `json:"meta"`
	} `json:"transaction"`
}
