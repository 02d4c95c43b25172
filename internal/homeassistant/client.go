package homeassistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jluzny/hag/internal/logger"
	"github.com/jluzny/hag/internal/models"
)

// ErrUnknownSensor is returned when a sensor has not reported a state
// yet (or does not exist).
var ErrUnknownSensor = errors.New("sensor state unknown")

const (
	reconnectMin = time.Second
	reconnectMax = time.Minute
	callTimeout  = 10 * time.Second
	updateBuffer = 64
)

// Config locates the Home Assistant websocket API.
type Config struct {
	URL   string
	Token string
}

// Client speaks the Home Assistant websocket API: token auth
// handshake, state_changed subscription, get_states priming and
// climate service calls. It keeps a live cache of entity states so
// ReadSensor never blocks on a round trip.
type Client struct {
	cfg Config
	log *logger.Logger

	updates chan SensorUpdate
	nextID  atomic.Int64

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[int64]chan envelope
	states  map[string]string
}

func NewClient(cfg Config, log *logger.Logger) *Client {
	return &Client{
		cfg:     cfg,
		log:     log,
		updates: make(chan SensorUpdate, updateBuffer),
		pending: make(map[int64]chan envelope),
		states:  make(map[string]string),
	}
}

// Updates is the push feed of raw sensor-changed notifications.
func (c *Client) Updates() <-chan SensorUpdate {
	return c.updates
}

// Run maintains the connection until ctx is cancelled, reconnecting
// with exponential backoff and resubscribing after each reconnect.
func (c *Client) Run(ctx context.Context) {
	backoff := reconnectMin
	for {
		err := c.connectAndServe(ctx)
		if ctx.Err() != nil {
			return
		}
		c.log.Warnw("home assistant connection lost", "err", err, "retry_in", backoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > reconnectMax {
			backoff = reconnectMax
		}
	}
}

func (c *Client) connectAndServe(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}
	defer func() { _ = conn.Close() }()

	if err := c.authenticate(conn); err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.conn = nil
		for id, ch := range c.pending {
			close(ch)
			delete(c.pending, id)
		}
		c.mu.Unlock()
	}()

	if err := c.prime(ctx); err != nil {
		return err
	}
	if err := c.subscribe(ctx); err != nil {
		return err
	}
	c.log.Infow("connected to home assistant", "url", c.cfg.URL)

	return c.readLoop(ctx, conn)
}

// authenticate performs the auth_required/auth/auth_ok handshake.
func (c *Client) authenticate(conn *websocket.Conn) error {
	var hello envelope
	if err := conn.ReadJSON(&hello); err != nil {
		return fmt.Errorf("read auth_required: %w", err)
	}
	if hello.Type != msgAuthRequired {
		return fmt.Errorf("unexpected first message %q", hello.Type)
	}
	if err := conn.WriteJSON(authMessage{Type: msgAuth, AccessToken: c.cfg.Token}); err != nil {
		return fmt.Errorf("send auth: %w", err)
	}
	var reply envelope
	if err := conn.ReadJSON(&reply); err != nil {
		return fmt.Errorf("read auth reply: %w", err)
	}
	if reply.Type != msgAuthOK {
		return fmt.Errorf("authentication rejected: %s", reply.Type)
	}
	return nil
}

// prime fetches all current entity states into the cache.
func (c *Client) prime(ctx context.Context) error {
	id := c.nextID.Add(1)
	resp, err := c.call(ctx, id, getStatesRequest{ID: id, Type: typeGetStates})
	if err != nil {
		return fmt.Errorf("get_states: %w", err)
	}
	var states []entityState
	if err := json.Unmarshal(resp.Result, &states); err != nil {
		return fmt.Errorf("decode get_states result: %w", err)
	}
	c.mu.Lock()
	for _, s := range states {
		c.states[s.EntityID] = s.State
	}
	c.mu.Unlock()
	return nil
}

func (c *Client) subscribe(ctx context.Context) error {
	id := c.nextID.Add(1)
	if _, err := c.call(ctx, id, subscribeRequest{ID: id, Type: typeSubscribeEvents, EventType: eventStateChanged}); err != nil {
		return fmt.Errorf("subscribe state_changed: %w", err)
	}
	return nil
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			return err
		}
		switch env.Type {
		case msgResult:
			c.mu.Lock()
			if ch, ok := c.pending[env.ID]; ok {
				delete(c.pending, env.ID)
				ch <- env
				close(ch)
			}
			c.mu.Unlock()
		case msgEvent:
			c.handleEvent(env.Event)
		}
	}
}

func (c *Client) handleEvent(raw json.RawMessage) {
	var ev stateChangedEvent
	if err := json.Unmarshal(raw, &ev); err != nil || ev.EventType != eventStateChanged || ev.Data.NewState == nil {
		return
	}
	c.mu.Lock()
	c.states[ev.Data.EntityID] = ev.Data.NewState.State
	c.mu.Unlock()

	select {
	case c.updates <- SensorUpdate{EntityID: ev.Data.EntityID, Value: ev.Data.NewState.State}:
	default:
		// Feed consumer is behind; dropping is safe because the next
		// notification carries the latest value anyway.
		c.log.Debugw("sensor update dropped", "entity", ev.Data.EntityID)
	}
}

// call sends a request frame and waits for its id-correlated result.
func (c *Client) call(ctx context.Context, id int64, req any) (envelope, error) {
	ch := make(chan envelope, 1)

	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return envelope{}, errors.New("not connected")
	}
	c.pending[id] = ch
	err := conn.WriteJSON(req)
	c.mu.Unlock()
	if err != nil {
		c.dropPending(id)
		return envelope{}, fmt.Errorf("write request: %w", err)
	}

	timer := time.NewTimer(callTimeout)
	defer timer.Stop()
	select {
	case env, ok := <-ch:
		if !ok {
			return envelope{}, errors.New("connection closed")
		}
		if env.Success != nil && !*env.Success {
			if env.Error != nil {
				return envelope{}, fmt.Errorf("api error %s: %s", env.Error.Code, env.Error.Message)
			}
			return envelope{}, errors.New("api call failed")
		}
		return env, nil
	case <-timer.C:
		c.dropPending(id)
		return envelope{}, errors.New("api call timed out")
	case <-ctx.Done():
		c.dropPending(id)
		return envelope{}, ctx.Err()
	}
}

func (c *Client) dropPending(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// ReadSensor returns the latest known numeric state of a sensor.
func (c *Client) ReadSensor(_ context.Context, entityID string) (float64, error) {
	c.mu.Lock()
	raw, ok := c.states[entityID]
	c.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownSensor, entityID)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("sensor %s has non-numeric state %q", entityID, raw)
	}
	return v, nil
}

// IssueCommand drives one climate entity: hvac mode, then optional
// target temperature and preset.
func (c *Client) IssueCommand(ctx context.Context, entityID string, mode models.HvacMode, targetTemp *float64, preset string) error {
	if err := c.callService(ctx, "climate", "set_hvac_mode", entityID, map[string]any{"hvac_mode": string(mode)}); err != nil {
		return err
	}
	if mode == models.ModeOff {
		return nil
	}
	if targetTemp != nil {
		if err := c.callService(ctx, "climate", "set_temperature", entityID, map[string]any{"temperature": *targetTemp}); err != nil {
			return err
		}
	}
	if preset != "" {
		if err := c.callService(ctx, "climate", "set_preset_mode", entityID, map[string]any{"preset_mode": preset}); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) callService(ctx context.Context, domain, service, entityID string, data map[string]any) error {
	id := c.nextID.Add(1)
	req := callServiceRequest{
		ID:          id,
		Type:        typeCallService,
		Domain:      domain,
		Service:     service,
		ServiceData: data,
		Target:      serviceTarget{EntityID: entityID},
	}
	if _, err := c.call(ctx, id, req); err != nil {
		return fmt.Errorf("%s.%s on %s: %w", domain, service, entityID, err)
	}
	return nil
}
