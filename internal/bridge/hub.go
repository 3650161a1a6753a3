// Package bridge connects the browser shim to the session coordinator over
// a WebSocket. It turns inbound frames into coordinator events and
// implements session.Browser for the outbound direction.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/goodtune/kfocus/internal/config"
	"github.com/goodtune/kfocus/internal/metrics"
	"github.com/goodtune/kfocus/internal/session"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

var (
	// ErrTabNotFound is returned for tabs the registry does not know,
	// usually because they were closed.
	ErrTabNotFound = errors.New("bridge: tab not found")
	// ErrNoClient is returned when no browser shim is connected.
	ErrNoClient = errors.New("bridge: no browser connected")
)

const writeTimeout = 5 * time.Second

// Submitter receives events decoded from the shim.
type Submitter interface {
	Submit(ctx context.Context, ev session.Event) error
}

// client is one connected shim.
type client struct {
	id      string
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *client) writeJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.Write(ctx, websocket.MessageText, data)
}

// Hub serves the shim connection. Only the most recent connection receives
// outbound frames.
type Hub struct {
	submitter     Submitter
	tabs          *tabRegistry
	idleThreshold time.Duration
	cfg           config.BridgeConfig
	logger        zerolog.Logger

	mu     sync.Mutex
	client *client
}

// NewHub creates a new hub. The submitter may be set later with
// SetSubmitter, before the first connection is served.
func NewHub(cfg config.BridgeConfig, idleThreshold time.Duration, submitter Submitter, logger zerolog.Logger) (*Hub, error) {
	tabs, err := newTabRegistry(cfg.TabCacheSize)
	if err != nil {
		return nil, err
	}

	return &Hub{
		submitter:     submitter,
		tabs:          tabs,
		idleThreshold: idleThreshold,
		cfg:           cfg,
		logger:        logger.With().Str("component", "bridge").Logger(),
	}, nil
}

// SetSubmitter sets the event sink. The coordinator and the hub refer to
// each other, so one of them has to be wired after construction.
func (h *Hub) SetSubmitter(s Submitter) {
	h.submitter = s
}

// Routes registers the WebSocket endpoint.
func (h *Hub) Routes(r chi.Router) {
	r.Get("/ws", h.ServeWS)
}

// ServeWS handles a shim connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.cfg.AllowedOrigins,
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("websocket accept")
		return
	}
	defer conn.CloseNow()

	c := &client{id: uuid.NewString(), conn: conn}
	h.attach(c)
	defer h.detach(c)

	logger := h.logger.With().Str("client_id", c.id).Logger()
	logger.Info().Str("remote_addr", r.RemoteAddr).Msg("Browser connected")

	ctx := r.Context()
	if err := c.writeJSON(ctx, helloFrame{
		Type:                 FrameHello,
		IdleThresholdSeconds: int(h.idleThreshold / time.Second),
	}); err != nil {
		logger.Debug().Err(err).Msg("websocket write")
		return
	}

	limiter := rate.NewLimiter(rate.Limit(h.cfg.EventsPerSecond), h.cfg.Burst)
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				logger.Info().Msg("Browser disconnected")
			} else {
				logger.Debug().Err(err).Msg("websocket read")
			}
			return
		}

		// Throttle rather than drop: every tab event matters for timing.
		if err := limiter.Wait(ctx); err != nil {
			return
		}

		h.handleFrame(ctx, logger, data)
	}
}

func (h *Hub) handleFrame(ctx context.Context, logger zerolog.Logger, data []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		metrics.EventsDropped.WithLabelValues("malformed").Inc()
		logger.Warn().Err(err).Msg("Dropping malformed frame")
		return
	}

	ev, err := h.toEvent(frame)
	if err != nil {
		metrics.EventsDropped.WithLabelValues("invalid").Inc()
		logger.Warn().Err(err).Str("type", frame.Type).Msg("Dropping frame")
		return
	}
	if ev == nil {
		return
	}

	if h.submitter == nil {
		metrics.EventsDropped.WithLabelValues("no_coordinator").Inc()
		return
	}
	if err := h.submitter.Submit(ctx, ev); err != nil {
		logger.Debug().Err(err).Str("type", frame.Type).Msg("Event handler reported an error")
	}
}

// attach makes c the active client, closing any previous one.
func (h *Hub) attach(c *client) {
	h.mu.Lock()
	prev := h.client
	h.client = c
	h.mu.Unlock()

	metrics.BridgeConnections.Inc()
	if prev != nil {
		h.logger.Info().Str("client_id", prev.id).Msg("Replacing browser connection")
		// Close waits for the peer's handshake; a stale peer must not hold
		// up the new connection.
		go func() {
			_ = prev.conn.Close(websocket.StatusPolicyViolation, "replaced by a newer connection")
		}()
	}
}

func (h *Hub) detach(c *client) {
	h.mu.Lock()
	if h.client == c {
		h.client = nil
	}
	h.mu.Unlock()

	metrics.BridgeConnections.Dec()
}

func (h *Hub) current() (*client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.client == nil {
		return nil, ErrNoClient
	}
	return h.client, nil
}

// Connected reports whether a shim is connected.
func (h *Hub) Connected() bool {
	_, err := h.current()
	return err == nil
}

// Tab returns the last known state of a tab.
func (h *Hub) Tab(ctx context.Context, tabID int) (session.Tab, error) {
	tab, ok := h.tabs.get(tabID)
	if !ok {
		return session.Tab{}, fmt.Errorf("tab %d: %w", tabID, ErrTabNotFound)
	}
	return tab, nil
}

// ActiveTab returns the focused tab.
func (h *Hub) ActiveTab(ctx context.Context) (session.Tab, error) {
	tab, ok := h.tabs.activeTab()
	if !ok {
		return session.Tab{}, fmt.Errorf("active tab: %w", ErrTabNotFound)
	}
	return tab, nil
}

// SendDirective delivers a directive to a tab's page context.
func (h *Hub) SendDirective(ctx context.Context, tabID int, d session.Directive) error {
	c, err := h.current()
	if err != nil {
		return err
	}
	return c.writeJSON(ctx, directiveFrame{Type: FramePageDirective, TabID: tabID, Directive: d})
}

// SetBadge sets or clears the action badge of a tab.
func (h *Hub) SetBadge(ctx context.Context, tabID int, b session.Badge) error {
	c, err := h.current()
	if err != nil {
		return err
	}
	return c.writeJSON(ctx, badgeFrame{Type: FrameBadge, TabID: tabID, Text: b.Text, Color: b.Color})
}
