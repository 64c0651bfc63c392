// Package hass implements the websocket client for the automation platform:
// authentication, full-state seeding, push subscription, request/response
// correlation and the reconnect loop.
package hass

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sakumikko/lammonsaato-sub000/internal/logger"
	"github.com/sakumikko/lammonsaato-sub000/internal/observability"
)

// Errors returned by client operations.
var (
	ErrClosed       = errors.New("client closed")
	ErrNotConnected = errors.New("not connected")
	ErrAuthInvalid  = errors.New("authentication rejected")
	ErrTimeout      = errors.New("request timed out")
)

// Config configures client behavior.
type Config struct {
	// Endpoint is the websocket URL, e.g. ws://host:8123/api/websocket.
	Endpoint string
	// Token is the long-lived access token sent during the auth handshake.
	Token string
	// ReconnectDelay is the delay before the first reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay caps backoff growth. Equal to ReconnectDelay this
	// yields a flat retry interval.
	MaxReconnectDelay time.Duration
	// RequestTimeout bounds each outbound request/response pair.
	RequestTimeout time.Duration
	// HandshakeTimeout bounds dialing and the auth exchange.
	HandshakeTimeout time.Duration
	// PingInterval is the interval for websocket ping frames.
	PingInterval time.Duration
	// WriteTimeout bounds a single websocket write.
	WriteTimeout time.Duration
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{
		ReconnectDelay:    2 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		RequestTimeout:    10 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		PingInterval:      30 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// StateStore receives entity snapshots from the client. The client is the
// store's only writer.
type StateStore interface {
	// Apply stores one pushed snapshot. It returns false when the snapshot
	// is stale (older or equal last_updated than the stored one).
	Apply(s Snapshot) bool
	// ReplaceAll swaps the entire contents for a fresh get_states result.
	ReplaceAll(snaps []Snapshot)
}

// ConnectionChange is delivered to connection subscribers.
type ConnectionChange struct {
	Connected bool
	// Reason is a human-readable cause for a disconnect, empty on connect.
	Reason string
}

// Client owns the single persistent connection to the platform.
type Client struct {
	cfg     Config
	log     *logger.Logger
	store   StateStore
	metrics *observability.Metrics

	conn   *websocket.Conn
	connMu sync.Mutex

	synced atomic.Bool
	closed atomic.Bool
	done   chan struct{}
	wg     sync.WaitGroup

	msgID atomic.Uint64

	pending   map[uint64]chan serverMessage
	pendingMu sync.Mutex

	subMu     sync.Mutex
	nextSubID int
	stateSubs map[int]func(Snapshot)
	connSubs  map[int]func(ConnectionChange)
}

// NewClient creates a client. The connection is established by Run.
func NewClient(cfg Config, store StateStore, log *logger.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		cfg:       cfg,
		log:       log,
		store:     store,
		metrics:   metrics,
		done:      make(chan struct{}),
		pending:   make(map[uint64]chan serverMessage),
		stateSubs: make(map[int]func(Snapshot)),
		connSubs:  make(map[int]func(ConnectionChange)),
	}
}

// SubscribeStates registers a listener for applied state changes. Listeners
// run synchronously on the message loop: the cache update and all
// notifications for one push complete before the next push is handled.
// The returned func unsubscribes.
func (c *Client) SubscribeStates(fn func(Snapshot)) func() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	id := c.nextSubID
	c.nextSubID++
	c.stateSubs[id] = fn
	return func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		delete(c.stateSubs, id)
	}
}

// SubscribeConnection registers a listener for connection state transitions.
func (c *Client) SubscribeConnection(fn func(ConnectionChange)) func() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	id := c.nextSubID
	c.nextSubID++
	c.connSubs[id] = fn
	return func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		delete(c.connSubs, id)
	}
}

// Connected reports whether the client is currently synced.
func (c *Client) Connected() bool {
	return c.synced.Load()
}

// Run connects and keeps the connection alive until ctx is canceled or Close
// is called. Every session failure, auth rejection included, schedules a
// retry after the backoff delay; retries are unbounded.
func (c *Client) Run(ctx context.Context) {
	delay := c.cfg.ReconnectDelay
	for {
		err := c.session(ctx)
		if c.synced.Load() {
			// The session reached full sync, so start backoff over.
			delay = c.cfg.ReconnectDelay
		}
		c.setSynced(false, err)

		if c.closed.Load() || ctx.Err() != nil {
			return
		}

		if err != nil {
			c.log.Warnw("connection lost, scheduling reconnect", "error", err, "delay", delay)
		}
		if c.metrics != nil {
			c.metrics.Reconnects.Inc()
		}

		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-time.After(delay):
		}

		delay *= 2
		if delay > c.cfg.MaxReconnectDelay {
			delay = c.cfg.MaxReconnectDelay
		}
	}
}

// session runs one connection lifetime: dial, authenticate, subscribe, seed
// the cache, then pump messages until the transport fails.
func (c *Client) session(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}

	if err := c.authenticate(conn); err != nil {
		conn.Close()
		return err
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	sessionDone := make(chan struct{})
	readErr := make(chan error, 1)

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		readErr <- c.readLoop(conn)
	}()
	go func() {
		defer c.wg.Done()
		c.pingLoop(conn, sessionDone)
	}()

	err = c.sync(ctx)
	if err == nil {
		c.setSynced(true, nil)
		select {
		case err = <-readErr:
		case <-ctx.Done():
			err = ctx.Err()
		case <-c.done:
			err = ErrClosed
		}
	}

	close(sessionDone)
	c.teardown(conn)
	return err
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.cfg.Endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	return conn, nil
}

// authenticate performs the challenge/credential exchange on a fresh
// connection, before the message loop starts.
func (c *Client) authenticate(conn *websocket.Conn) error {
	conn.SetReadDeadline(time.Now().Add(c.cfg.HandshakeTimeout))

	var challenge serverMessage
	if err := conn.ReadJSON(&challenge); err != nil {
		return fmt.Errorf("read auth challenge: %w", err)
	}
	if challenge.Type != msgAuthRequired {
		return fmt.Errorf("unexpected handshake message %q", challenge.Type)
	}

	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := conn.WriteJSON(authMessage{Type: cmdAuth, AccessToken: c.cfg.Token}); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(c.cfg.HandshakeTimeout))
	var verdict serverMessage
	if err := conn.ReadJSON(&verdict); err != nil {
		return fmt.Errorf("read auth verdict: %w", err)
	}
	switch verdict.Type {
	case msgAuthOK:
		conn.SetReadDeadline(time.Time{})
		c.log.Infow("authenticated", "ha_version", verdict.HAVersion)
		return nil
	case msgAuthInvalid:
		return fmt.Errorf("%w: %s", ErrAuthInvalid, verdict.Message)
	default:
		return fmt.Errorf("unexpected auth response %q", verdict.Type)
	}
}

// sync subscribes to push events and replaces the cache wholesale with a
// fresh get_states result. Running it on every transition into the synced
// state is the reconciliation mechanism after any gap.
func (c *Client) sync(ctx context.Context) error {
	if _, err := c.Request(ctx, cmdSubscribeEvents, map[string]any{"event_type": eventStateChanged}); err != nil {
		return fmt.Errorf("subscribe events: %w", err)
	}

	raw, err := c.Request(ctx, cmdGetStates, nil)
	if err != nil {
		return fmt.Errorf("get states: %w", err)
	}

	var snaps []Snapshot
	if err := json.Unmarshal(raw, &snaps); err != nil {
		return fmt.Errorf("decode states: %w", err)
	}

	c.store.ReplaceAll(snaps)
	if c.metrics != nil {
		c.metrics.FullResyncs.Inc()
	}
	c.log.Infow("state cache seeded", "entities", len(snaps))
	return nil
}

// Request sends one command and waits for its correlated result. A failed
// request never alters connection state.
func (c *Client) Request(ctx context.Context, msgType string, payload map[string]any) (json.RawMessage, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}

	id := c.msgID.Add(1)
	msg := map[string]any{"id": id, "type": msgType}
	for k, v := range payload {
		msg[k] = v
	}

	ch := make(chan serverMessage, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()

	fail := func(err error) (json.RawMessage, error) {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		if c.metrics != nil {
			c.metrics.RequestFailures.WithLabelValues(msgType).Inc()
		}
		return nil, err
	}

	if err := c.writeJSON(msg); err != nil {
		return fail(err)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return fail(ErrNotConnected)
		}
		if resp.Success != nil && !*resp.Success {
			if resp.Error != nil {
				return fail(resp.Error)
			}
			return fail(fmt.Errorf("command %s rejected", msgType))
		}
		return resp.Result, nil
	case <-time.After(c.cfg.RequestTimeout):
		return fail(fmt.Errorf("%w: %s after %s", ErrTimeout, msgType, c.cfg.RequestTimeout))
	case <-ctx.Done():
		return fail(ctx.Err())
	case <-c.done:
		return fail(ErrClosed)
	}
}

// CallService invokes a remote service action, e.g. setting a number helper.
func (c *Client) CallService(ctx context.Context, domain, service string, data map[string]any) error {
	payload := map[string]any{
		"domain":  domain,
		"service": service,
	}
	if len(data) > 0 {
		payload["service_data"] = data
	}
	_, err := c.Request(ctx, cmdCallService, payload)
	return err
}

func (c *Client) writeJSON(v any) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return c.conn.WriteJSON(v)
}

// readLoop pumps inbound messages in arrival order. Handlers run
// synchronously: no two push messages interleave.
func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("websocket read: %w", err)
		}
		if c.metrics != nil {
			c.metrics.MessagesReceived.Inc()
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Warnw("discarding malformed message", "error", err)
			continue
		}

		switch msg.Type {
		case msgResult:
			c.deliverResult(msg)
		case msgEvent:
			c.handleEvent(msg)
		}
	}
}

func (c *Client) deliverResult(msg serverMessage) {
	c.pendingMu.Lock()
	ch, ok := c.pending[msg.ID]
	if ok {
		delete(c.pending, msg.ID)
	}
	c.pendingMu.Unlock()
	if ok {
		ch <- msg
	}
}

func (c *Client) handleEvent(msg serverMessage) {
	if msg.Event == nil || msg.Event.EventType != eventStateChanged {
		return
	}
	ns := msg.Event.Data.NewState
	if ns == nil {
		// Entity removed; the next full resync drops it from the cache.
		return
	}

	if !c.store.Apply(*ns) {
		if c.metrics != nil {
			c.metrics.StateEvents.WithLabelValues("stale").Inc()
		}
		return
	}
	if c.metrics != nil {
		c.metrics.StateEvents.WithLabelValues("applied").Inc()
		c.metrics.LastStateChange.SetToCurrentTime()
	}

	c.subMu.Lock()
	subs := make([]func(Snapshot), 0, len(c.stateSubs))
	for _, fn := range c.stateSubs {
		subs = append(subs, fn)
	}
	c.subMu.Unlock()
	for _, fn := range subs {
		fn(*ns)
	}
}

func (c *Client) pingLoop(conn *websocket.Conn, sessionDone <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-sessionDone:
			return
		case <-c.done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				// Dead connection surfaces through the read loop.
				return
			}
		}
	}
}

func (c *Client) setSynced(connected bool, cause error) {
	if c.synced.Swap(connected) == connected {
		return
	}
	if c.metrics != nil {
		if connected {
			c.metrics.Connected.Set(1)
		} else {
			c.metrics.Connected.Set(0)
		}
	}

	change := ConnectionChange{Connected: connected}
	if !connected && cause != nil {
		change.Reason = cause.Error()
	}

	c.subMu.Lock()
	subs := make([]func(ConnectionChange), 0, len(c.connSubs))
	for _, fn := range c.connSubs {
		subs = append(subs, fn)
	}
	c.subMu.Unlock()
	for _, fn := range subs {
		fn(change)
	}
}

// teardown closes the session connection and fails all in-flight requests.
func (c *Client) teardown(conn *websocket.Conn) {
	c.connMu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.connMu.Unlock()
	conn.Close()

	c.pendingMu.Lock()
	for id, ch := range c.pending {
		delete(c.pending, id)
		close(ch)
	}
	c.pendingMu.Unlock()
}

// Close tears the client down permanently. Run returns after Close.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.wg.Wait()
	return nil
}
