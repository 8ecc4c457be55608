package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/opd-ai/toxcall/limits"
	"github.com/opd-ai/toxcall/signaling"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNotConnected is returned by Send and Request while no connection is up.
	ErrNotConnected = errors.New("signaling transport not connected")

	// ErrConnectionLost is returned by Request when the connection drops
	// before the response arrives.
	ErrConnectionLost = errors.New("signaling connection lost")

	// ErrUnexpectedResponse is returned by Request when the correlated
	// response has a different type than requested.
	ErrUnexpectedResponse = errors.New("unexpected response type")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("signaling transport closed")
)

// MessageHandler receives one inbound message.
type MessageHandler func(ctx context.Context, msg signaling.Message)

// WebSocketTransport implements call.SignalingTransport over gorilla/websocket.
type WebSocketTransport struct {
	cfg    Config
	dialer *websocket.Dialer
	codec  *signaling.Codec

	conn *websocket.Conn
	lost chan struct{}

	handlers       map[string]MessageHandler
	defaultHandler MessageHandler
	onConnect      func()
	onDisconnect   func(err error)
	pending        map[string]chan signaling.Message
	closed         bool
	mu             sync.RWMutex

	// gorilla/websocket allows one concurrent writer.
	writeMu sync.Mutex

	inbound chan signaling.Message
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewWebSocketTransport creates a transport. It does not dial; call Connect
// or Run.
func NewWebSocketTransport(cfg Config) *WebSocketTransport {
	if cfg.InboundBuffer <= 0 {
		cfg.InboundBuffer = DefaultConfig(cfg.URL).InboundBuffer
	}
	ctx, cancel := context.WithCancel(context.Background())

	t := &WebSocketTransport{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		codec:    signaling.NewCodec(),
		handlers: make(map[string]MessageHandler),
		pending:  make(map[string]chan signaling.Message),
		inbound:  make(chan signaling.Message, cfg.InboundBuffer),
		ctx:      ctx,
		cancel:   cancel,
	}

	go t.dispatchLoop()
	return t
}

// RegisterHandler registers a handler for one message type.
func (t *WebSocketTransport) RegisterHandler(msgType string, handler MessageHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[msgType] = handler
}

// SetDefaultHandler sets the handler for types with no registered handler.
func (t *WebSocketTransport) SetDefaultHandler(handler MessageHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.defaultHandler = handler
}

// OnConnect sets a callback invoked after every successful dial.
func (t *WebSocketTransport) OnConnect(callback func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onConnect = callback
}

// OnDisconnect sets a callback invoked when an established connection drops.
func (t *WebSocketTransport) OnDisconnect(callback func(err error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onDisconnect = callback
}

// IsConnected reports whether a connection is currently established.
func (t *WebSocketTransport) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.conn != nil
}

// Connect dials the server once and starts reading. It returns an error if
// a connection is already up.
func (t *WebSocketTransport) Connect(ctx context.Context) error {
	_, err := t.connect(ctx)
	return err
}

func (t *WebSocketTransport) connect(ctx context.Context) (<-chan struct{}, error) {
	t.mu.RLock()
	closed, up := t.closed, t.conn != nil
	t.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	if up {
		return nil, errors.New("signaling transport already connected")
	}

	conn, resp, err := t.dialer.DialContext(ctx, t.cfg.URL, t.cfg.Header)
	if err != nil {
		fields := logrus.Fields{
			"function": "Connect",
			"url":      t.cfg.URL,
			"error":    err.Error(),
		}
		if resp != nil {
			fields["status"] = resp.StatusCode
		}
		logrus.WithFields(fields).Warn("Signaling dial failed")
		return nil, fmt.Errorf("dial %s: %w", t.cfg.URL, err)
	}

	conn.SetReadLimit(limits.MaxSignalingMessage)
	t.extendReadDeadline(conn)
	conn.SetPongHandler(func(string) error {
		t.extendReadDeadline(conn)
		return nil
	})

	lost := make(chan struct{})

	t.mu.Lock()
	if t.closed || t.conn != nil {
		t.mu.Unlock()
		_ = conn.Close()
		if t.closed {
			return nil, ErrClosed
		}
		return nil, errors.New("signaling transport already connected")
	}
	t.conn = conn
	t.lost = lost
	onConnect := t.onConnect
	t.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Connect",
		"url":      t.cfg.URL,
	}).Info("Signaling connected")

	go t.readLoop(conn)
	go t.pingLoop(conn, lost)

	if onConnect != nil {
		onConnect()
	}
	return lost, nil
}

// Run keeps the transport connected until ctx is cancelled or Close is
// called, redialing with exponential backoff.
func (t *WebSocketTransport) Run(ctx context.Context) error {
	backoff := t.cfg.ReconnectMin
	for {
		lost, err := t.connect(ctx)
		switch {
		case errors.Is(err, ErrClosed):
			return err
		case err == nil:
			backoff = t.cfg.ReconnectMin
			select {
			case <-lost:
			case <-ctx.Done():
				return t.Close()
			case <-t.ctx.Done():
				return ErrClosed
			}
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return t.Close()
		case <-t.ctx.Done():
			return ErrClosed
		}
		if err != nil {
			backoff *= 2
			if backoff > t.cfg.ReconnectMax {
				backoff = t.cfg.ReconnectMax
			}
		}
	}
}

// Close drops the connection, fails outstanding requests and stops delivery.
func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conn := t.conn
	t.mu.Unlock()

	t.cancel()
	if conn != nil {
		t.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		t.writeMu.Unlock()
		t.drop(conn, ErrClosed)
	}
	return nil
}

// Send writes msg as one text frame.
func (t *WebSocketTransport) Send(ctx context.Context, msg signaling.Message) error {
	t.mu.RLock()
	conn := t.conn
	t.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Type, err)
	}

	deadline := time.Now().Add(t.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	t.writeMu.Lock()
	err = conn.SetWriteDeadline(deadline)
	if err == nil {
		err = conn.WriteMessage(websocket.TextMessage, data)
	}
	t.writeMu.Unlock()

	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Send",
			"type":     msg.Type,
			"error":    err.Error(),
		}).Error("Signaling write failed")
		t.drop(conn, err)
		return fmt.Errorf("send %s: %w", msg.Type, err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "Send",
		"type":     msg.Type,
		"size":     len(data),
	}).Debug("Signaling message sent")
	return nil
}

// Request sends msg and waits for the response carrying the same request
// id. A missing id is generated. An error message from the server is
// returned as an error.
func (t *WebSocketTransport) Request(ctx context.Context, msg signaling.Message, responseType string) (signaling.Message, error) {
	if msg.RequestID == "" {
		msg.RequestID = uuid.NewString()
	}

	reply := make(chan signaling.Message, 1)
	t.mu.Lock()
	if t.conn == nil {
		t.mu.Unlock()
		return signaling.Message{}, ErrNotConnected
	}
	t.pending[msg.RequestID] = reply
	lost := t.lost
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.pending, msg.RequestID)
		t.mu.Unlock()
	}()

	if err := t.Send(ctx, msg); err != nil {
		return signaling.Message{}, err
	}

	select {
	case resp := <-reply:
		if resp.Type == signaling.TypeError {
			return resp, remoteError(resp)
		}
		if resp.Type != responseType {
			return resp, fmt.Errorf("%w: want %s, got %s", ErrUnexpectedResponse, responseType, resp.Type)
		}
		return resp, nil
	case <-lost:
		return signaling.Message{}, ErrConnectionLost
	case <-ctx.Done():
		return signaling.Message{}, ctx.Err()
	}
}

func remoteError(msg signaling.Message) error {
	var payload signaling.ErrorPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.Code == "" {
		return errors.New("signaling server error")
	}
	if payload.Message != "" {
		return fmt.Errorf("signaling server error %s: %s", payload.Code, payload.Message)
	}
	return fmt.Errorf("signaling server error %s", payload.Code)
}

func (t *WebSocketTransport) extendReadDeadline(conn *websocket.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(2 * t.cfg.PingInterval))
}

func (t *WebSocketTransport) readLoop(conn *websocket.Conn) {
	for {
		kind, frame, err := conn.ReadMessage()
		if err != nil {
			t.drop(conn, err)
			return
		}
		t.extendReadDeadline(conn)
		if kind != websocket.TextMessage {
			continue
		}

		msg, err := t.codec.DecodeFrame(frame)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "readLoop",
				"size":     len(frame),
				"error":    err.Error(),
			}).Warn("Dropping invalid signaling frame")
			continue
		}

		if t.resolve(msg) {
			continue
		}

		select {
		case t.inbound <- msg:
		default:
			logrus.WithFields(logrus.Fields{
				"function": "readLoop",
				"type":     msg.Type,
			}).Warn("Inbound queue full, dropping signaling message")
		}
	}
}

// resolve completes an outstanding request with msg.
func (t *WebSocketTransport) resolve(msg signaling.Message) bool {
	if msg.RequestID == "" {
		return false
	}
	t.mu.RLock()
	reply, ok := t.pending[msg.RequestID]
	t.mu.RUnlock()
	if !ok {
		return false
	}
	select {
	case reply <- msg:
	default:
	}
	return true
}

func (t *WebSocketTransport) pingLoop(conn *websocket.Conn, lost <-chan struct{}) {
	ticker := time.NewTicker(t.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(t.cfg.WriteTimeout))
			t.writeMu.Unlock()
			if err != nil {
				t.drop(conn, err)
				return
			}
		case <-lost:
			return
		}
	}
}

// drop tears down conn if it is still the current connection.
func (t *WebSocketTransport) drop(conn *websocket.Conn, cause error) {
	t.mu.Lock()
	if t.conn != conn {
		t.mu.Unlock()
		return
	}
	t.conn = nil
	close(t.lost)
	onDisconnect := t.onDisconnect
	closing := t.closed
	t.mu.Unlock()

	_ = conn.Close()

	level := logrus.WarnLevel
	if closing || websocket.IsCloseError(cause, websocket.CloseNormalClosure) {
		level = logrus.InfoLevel
	}
	logrus.WithFields(logrus.Fields{
		"function": "drop",
		"url":      t.cfg.URL,
		"error":    cause.Error(),
	}).Log(level, "Signaling disconnected")

	if onDisconnect != nil && !closing {
		onDisconnect(cause)
	}
}

func (t *WebSocketTransport) dispatchLoop() {
	for {
		select {
		case msg := <-t.inbound:
			t.dispatch(msg)
		case <-t.ctx.Done():
			return
		}
	}
}

func (t *WebSocketTransport) dispatch(msg signaling.Message) {
	t.mu.RLock()
	handler, ok := t.handlers[msg.Type]
	if !ok {
		handler = t.defaultHandler
	}
	t.mu.RUnlock()

	if handler == nil {
		logrus.WithFields(logrus.Fields{
			"function": "dispatch",
			"type":     msg.Type,
		}).Debug("No handler for signaling message")
		return
	}

	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{
				"function": "dispatch",
				"type":     msg.Type,
				"panic":    fmt.Sprint(r),
			}).Error("Signaling handler panicked")
		}
	}()
	handler(t.ctx, msg)
}
