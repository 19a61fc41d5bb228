// Package feed maintains the upstream websocket subscription: dialing,
// authentication, frame decoding, and reconnection with exponential
// backoff. Decoded events are handed to caller-supplied callbacks; the
// feed itself never touches storage.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/snekkenull/AISight-sub001/internal/config"
	"github.com/snekkenull/AISight-sub001/internal/domain/event"
	"github.com/snekkenull/AISight-sub001/internal/domain/model"
	"github.com/snekkenull/AISight-sub001/internal/metrics"
	"github.com/snekkenull/AISight-sub001/internal/pipeline/retry"
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

func stateGaugeValue(s State) float64 {
	switch s {
	case StateConnecting:
		return 1
	case StateConnected:
		return 2
	default:
		return 0
	}
}

// Handlers receive decoded events. Nil callbacks are skipped.
type Handlers struct {
	Position   func(event.PositionEvent)
	StaticData func(event.StaticDataEvent)
	Diagnostic func(event.Diagnostic)
}

// Stats is a point-in-time snapshot of feed counters.
type Stats struct {
	State       State
	Attempts    int
	Received    uint64
	Processed   uint64
	Errored     uint64
	LastMessage time.Time
}

// Conn is the websocket feed connection. One instance serves the whole
// process lifetime; Connect/Disconnect drive its state machine.
type Conn struct {
	cfg      config.FeedConfig
	logger   *slog.Logger
	handlers Handlers

	mu             sync.Mutex
	ws             *websocket.Conn
	state          State
	attempts       int
	boxes          []model.BoundingBox
	messageTypes   []string
	reconnectTimer *time.Timer

	received  atomic.Uint64
	processed atomic.Uint64
	errored   atomic.Uint64
	lastMsgNS atomic.Int64

	errCh chan error
	wg    sync.WaitGroup

	// decodeLogLimit keeps a corrupt upstream from flooding the log;
	// the counters still see every failure.
	decodeLogLimit *rate.Limiter
}

func New(cfg config.FeedConfig, logger *slog.Logger, handlers Handlers) *Conn {
	return &Conn{
		cfg:            cfg,
		logger:         logger.With("component", "feed"),
		handlers:       handlers,
		state:          StateDisconnected,
		messageTypes:   cfg.MessageTypes,
		errCh:          make(chan error, 1),
		decodeLogLimit: rate.NewLimiter(rate.Every(time.Second), 5),
	}
}

// Errors delivers at most one fatal error: reconnect attempts
// exhausted, or a terminal protocol failure. The feed stops retrying
// after sending; a fresh Connect call starts over.
func (c *Conn) Errors() <-chan error {
	return c.errCh
}

// UpdateSubscription replaces the bounding boxes and message-type
// filters. The new subscription is sent on the next Connect.
func (c *Conn) UpdateSubscription(boxes []model.BoundingBox, messageTypes []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.boxes = boxes
	if messageTypes != nil {
		c.messageTypes = messageTypes
	}
}

// Connect dials the feed and sends the subscription frame. Both steps
// must finish within the handshake timeout; a partial handshake counts
// as failure. On success the attempt counter resets and the read loop
// starts.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}
	c.setStateLocked(StateConnecting)
	frame := subscriptionFrame{
		APIKey:             c.cfg.APIKey,
		BoundingBoxes:      subscriptionBoxes(c.boxes),
		FilterMessageTypes: c.messageTypes,
	}
	c.mu.Unlock()

	deadline := time.Now().Add(c.cfg.HandshakeTimeout)
	dialCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	ws, resp, err := dialer.DialContext(dialCtx, c.cfg.URL, nil)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		c.mu.Lock()
		c.setStateLocked(StateDisconnected)
		c.mu.Unlock()
		if resp != nil {
			return fmt.Errorf("dial feed (http %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("dial feed: %w", err)
	}

	// The subscription frame shares the handshake deadline: a dial that
	// succeeds but cannot authenticate in time is still a failed connect.
	if err := ws.SetWriteDeadline(deadline); err == nil {
		err = ws.WriteJSON(frame)
	}
	if err != nil {
		ws.Close()
		c.mu.Lock()
		c.setStateLocked(StateDisconnected)
		c.mu.Unlock()
		return fmt.Errorf("send subscription: %w", err)
	}
	ws.SetWriteDeadline(time.Time{})

	c.mu.Lock()
	c.ws = ws
	c.attempts = 0
	c.setStateLocked(StateConnected)
	c.mu.Unlock()

	c.logger.Info("feed connected", "url", c.cfg.URL, "boxes", len(frame.BoundingBoxes))

	c.wg.Add(1)
	go c.readLoop(ctx, ws)
	return nil
}

// Disconnect cancels any pending reconnect and closes the transport.
// Safe to call repeatedly and from any goroutine.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	ws := c.ws
	c.ws = nil
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	if ws != nil {
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		ws.Close()
	}
	c.wg.Wait()
	c.logger.Info("feed disconnected")
}

func (c *Conn) Stats() Stats {
	c.mu.Lock()
	state := c.state
	attempts := c.attempts
	c.mu.Unlock()

	var last time.Time
	if ns := c.lastMsgNS.Load(); ns > 0 {
		last = time.Unix(0, ns)
	}
	return Stats{
		State:       state,
		Attempts:    attempts,
		Received:    c.received.Load(),
		Processed:   c.processed.Load(),
		Errored:     c.errored.Load(),
		LastMessage: last,
	}
}

func (c *Conn) readLoop(ctx context.Context, ws *websocket.Conn) {
	defer c.wg.Done()

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.mu.Lock()
			stillCurrent := c.ws == ws
			c.mu.Unlock()
			if !stillCurrent {
				// Disconnect already tore this connection down.
				return
			}
			c.handleReadFailure(ctx, err)
			return
		}

		c.received.Add(1)
		c.lastMsgNS.Store(time.Now().UnixNano())
		metrics.FeedMessagesReceived.Inc()

		result, err := decodeFrame(raw, time.Now().UTC())
		if err != nil {
			c.errored.Add(1)
			metrics.FeedDecodeErrors.Inc()
			if c.decodeLogLimit.Allow() {
				c.logger.Warn("frame decode failed", "error", err, "payload", payloadExcerpt(raw))
			}
			c.emitDiagnostic(event.Diagnostic{
				Kind:      event.DiagnosticInvalidMessage,
				Component: "feed",
				Stage:     "decode",
				Reason:    err.Error(),
				Detail:    map[string]string{"payload": payloadExcerpt(raw)},
				Timestamp: time.Now().UTC(),
			})
			continue
		}

		switch {
		case result.position != nil:
			c.processed.Add(1)
			metrics.FeedMessagesProcessed.Inc()
			if c.handlers.Position != nil {
				c.handlers.Position(*result.position)
			}
		case result.staticData != nil:
			c.processed.Add(1)
			metrics.FeedMessagesProcessed.Inc()
			if c.handlers.StaticData != nil {
				c.handlers.StaticData(*result.staticData)
			}
		}
	}
}

func (c *Conn) handleReadFailure(ctx context.Context, cause error) {
	c.mu.Lock()
	if c.ws != nil {
		c.ws.Close()
		c.ws = nil
	}
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	decision := retry.Classify(cause)
	if !decision.IsTransient() {
		c.logger.Error("feed connection failed terminally", "error", cause, "reason", decision.Reason)
		c.emitFatal(fmt.Errorf("feed terminal error (%s): %w", decision.Reason, cause))
		return
	}

	c.logger.Warn("feed connection lost", "error", cause, "reason", decision.Reason)
	c.scheduleReconnect(ctx)
}

// scheduleReconnect arms a timer for the next attempt with 2^attempt
// seconds of backoff. When the budget is spent it emits a fatal error
// instead and leaves the feed idle.
func (c *Conn) scheduleReconnect(ctx context.Context) {
	c.mu.Lock()
	attempt := c.attempts
	if attempt >= c.cfg.MaxReconnectAttempts {
		c.mu.Unlock()
		c.emitFatal(fmt.Errorf("feed reconnect attempts exhausted after %d tries", attempt))
		return
	}
	c.attempts = attempt + 1
	delay := reconnectDelay(attempt)

	c.reconnectTimer = time.AfterFunc(delay, func() {
		if ctx.Err() != nil {
			return
		}
		metrics.FeedReconnects.Inc()
		if err := c.Connect(ctx); err != nil {
			c.logger.Warn("reconnect failed", "error", err, "attempt", attempt+1)
			c.scheduleReconnect(ctx)
		}
	})
	c.mu.Unlock()

	c.logger.Info("reconnect scheduled", "delay", delay.String(), "attempt", attempt+1)
}

func (c *Conn) setStateLocked(s State) {
	c.state = s
	metrics.FeedConnectionState.Set(stateGaugeValue(s))
}

func (c *Conn) emitFatal(err error) {
	c.emitDiagnostic(event.Diagnostic{
		Kind:      event.DiagnosticFeedError,
		Component: "feed",
		Reason:    err.Error(),
		Timestamp: time.Now().UTC(),
	})
	select {
	case c.errCh <- err:
	default:
	}
}

func (c *Conn) emitDiagnostic(d event.Diagnostic) {
	if c.handlers.Diagnostic != nil {
		c.handlers.Diagnostic(d)
	}
}

// reconnectDelay doubles per attempt: 1s, 2s, 4s, ...
func reconnectDelay(attempt int) time.Duration {
	return time.Duration(1<<uint(attempt)) * time.Second
}

// subscriptionBoxes converts to the wire layout: each box is a pair of
// [lat, lon] corners, south-west first.
func subscriptionBoxes(boxes []model.BoundingBox) [][][2]float64 {
	if len(boxes) == 0 {
		// No focus region yet: subscribe to the whole globe.
		return [][][2]float64{{{-90, -180}, {90, 180}}}
	}
	out := make([][][2]float64, 0, len(boxes))
	for _, b := range boxes {
		out = append(out, [][2]float64{{b.MinLat, b.MinLon}, {b.MaxLat, b.MaxLon}})
	}
	return out
}

func payloadExcerpt(raw []byte) string {
	const max = 120
	if len(raw) <= max {
		return string(raw)
	}
	return string(raw[:max]) + "..."
}
