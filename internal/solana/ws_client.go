package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"wallet-fleet/internal/domain"
	"wallet-fleet/internal/logger"
	"wallet-fleet/internal/observability"
	"wallet-fleet/internal/retry"
)

// WSConfig configures the confirmation channel.
type WSConfig struct {
	// Commitment is the level at which a signature counts as confirmed.
	Commitment string
	// ConfirmTimeout bounds Subscription.Wait.
	ConfirmTimeout time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is extended by every message and pong.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// HandshakeTimeout bounds a single dial attempt.
	HandshakeTimeout time.Duration
	// DialAttempts, DialDelay and MaxDialDelay shape the dial backoff.
	DialAttempts uint
	DialDelay    time.Duration
	MaxDialDelay time.Duration
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		Commitment:       DefaultCommitment,
		ConfirmTimeout:   60 * time.Second,
		PingInterval:     30 * time.Second,
		ReadTimeout:      90 * time.Second,
		WriteTimeout:     10 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		DialAttempts:     5,
		DialDelay:        500 * time.Millisecond,
		MaxDialDelay:     10 * time.Second,
	}
}

// ConfirmationChannel implements Confirmer over one websocket connection.
//
// A single actor goroutine owns the connection writer, the pending table
// (request id -> waiter) and the subscription index (server subscription
// number -> request id). Callers and the per-connection reader talk to it
// over channels only.
type ConfirmationChannel struct {
	endpoint string
	config   WSConfig
	dialer   websocket.Dialer
	retry    retry.Retry

	commands chan command
	frames   chan frame
	done     chan struct{}

	lifetime context.Context
	stop     context.CancelFunc

	closeOnce      sync.Once
	wg             sync.WaitGroup
	protocolErrors atomic.Uint64
}

var _ Confirmer = (*ConfirmationChannel)(nil)

// command is a request to the actor. Exactly one field is set.
type command struct {
	subscribe *waiter
	cancel    string
	connect   chan error
}

// frame is one read result from a connection generation.
type frame struct {
	gen  uint64
	data []byte
	err  error
}

// channelState is owned by the actor goroutine.
type channelState struct {
	conn    *websocket.Conn
	gen     uint64
	lost    bool
	pending map[string]*waiter
	subs    map[uint64]string
	unsubs  map[string]uint64   // unsubscribe request id -> subscription
	retired map[uint64]struct{} // unsubscribed, reply not yet seen
}

// NewConfirmationChannel starts the actor. The connection is dialed on the
// first Subscribe or Connect, and again after every loss.
func NewConfirmationChannel(endpoint string, config *WSConfig) *ConfirmationChannel {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}

	lifetime, stop := context.WithCancel(context.Background())
	c := &ConfirmationChannel{
		endpoint: endpoint,
		config:   cfg,
		dialer:   websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		retry: retry.New(
			retry.WithAttempts(cfg.DialAttempts),
			retry.WithDelay(cfg.DialDelay),
			retry.WithMaxDelay(cfg.MaxDialDelay),
		),
		commands: make(chan command),
		frames:   make(chan frame),
		done:     make(chan struct{}),
		lifetime: lifetime,
		stop:     stop,
	}

	c.wg.Add(1)
	go c.run()

	return c
}

// Connect dials eagerly so configuration errors surface at startup.
func (c *ConfirmationChannel) Connect(ctx context.Context) error {
	reply := make(chan error, 1)
	if err := c.send(ctx, command{connect: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrChannelClosed
	}
}

// Subscribe sends signatureSubscribe and waits for the acknowledgement.
func (c *ConfirmationChannel) Subscribe(ctx context.Context, signature string) (Subscription, error) {
	if signature == "" {
		return nil, domain.Usagef("empty signature")
	}

	w := &waiter{
		id:        uuid.NewString(),
		signature: signature,
		owner:     c,
		ack:       make(chan error, 1),
		result:    make(chan error, 1),
	}
	if err := c.send(ctx, command{subscribe: w}); err != nil {
		return nil, err
	}

	select {
	case err := <-w.ack:
		if err != nil {
			return nil, err
		}
		return w, nil
	case <-ctx.Done():
		w.Cancel()
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrChannelClosed
	}
}

// Confirm subscribes and waits. See the package-level Confirm for the race it carries.
func (c *ConfirmationChannel) Confirm(ctx context.Context, signature string) error {
	return Confirm(ctx, c, signature)
}

// ProtocolErrors returns the number of unroutable or malformed messages seen.
func (c *ConfirmationChannel) ProtocolErrors() uint64 {
	return c.protocolErrors.Load()
}

// Close stops the actor, closes the connection and fails pending waiters
// with ErrChannelClosed. Safe to call more than once.
func (c *ConfirmationChannel) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.stop()
	})
	c.wg.Wait()
	return nil
}

func (c *ConfirmationChannel) send(ctx context.Context, cmd command) error {
	select {
	case <-c.done:
		return ErrChannelClosed
	default:
	}

	select {
	case c.commands <- cmd:
		return nil
	case <-c.done:
		return ErrChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the actor loop.
func (c *ConfirmationChannel) run() {
	defer c.wg.Done()

	st := &channelState{
		pending: make(map[string]*waiter),
		subs:    make(map[uint64]string),
		unsubs:  make(map[string]uint64),
		retired: make(map[uint64]struct{}),
	}

	ping := time.NewTicker(c.config.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-c.done:
			c.shutdown(st)
			return

		case cmd := <-c.commands:
			switch {
			case cmd.subscribe != nil:
				c.handleSubscribe(st, cmd.subscribe)
			case cmd.connect != nil:
				cmd.connect <- c.ensureConnected(st)
			default:
				c.handleCancel(st, cmd.cancel)
			}

		case f := <-c.frames:
			if st.conn == nil || f.gen != st.gen {
				continue
			}
			if f.err != nil {
				c.dropConnection(st, f.err)
				continue
			}
			c.handleFrame(st, f.data)

		case <-ping.C:
			if st.conn == nil {
				continue
			}
			st.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := st.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.dropConnection(st, err)
			}
		}

		observability.SetPendingConfirmations(len(st.pending))
	}
}

func (c *ConfirmationChannel) ensureConnected(st *channelState) error {
	if st.conn != nil {
		return nil
	}

	var conn *websocket.Conn
	err := c.retry.Execute(c.lifetime, func() error {
		ctx, cancel := context.WithTimeout(c.lifetime, c.config.HandshakeTimeout)
		defer cancel()

		dialed, _, err := c.dialer.DialContext(ctx, c.endpoint, nil)
		if err != nil {
			return err
		}
		conn = dialed
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: websocket dial: %v", domain.ErrTransport, err)
	}

	st.gen++
	st.conn = conn
	if st.lost {
		st.lost = false
		observability.RecordReconnect()
		logger.Info(c.lifetime, "confirmation channel reconnected", "generation", st.gen)
	}

	readTimeout := c.config.ReadTimeout
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	c.wg.Add(1)
	go c.readLoop(conn, st.gen)

	return nil
}

// readLoop forwards every frame of one connection to the actor and exits
// after the first read error.
func (c *ConfirmationChannel) readLoop(conn *websocket.Conn, gen uint64) {
	defer c.wg.Done()

	for {
		_, data, err := conn.ReadMessage()
		if err == nil {
			conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		}

		select {
		case c.frames <- frame{gen: gen, data: data, err: err}:
		case <-c.done:
			return
		}

		if err != nil {
			return
		}
	}
}

func (c *ConfirmationChannel) write(st *channelState, req rpcRequest) error {
	st.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	return st.conn.WriteJSON(req)
}

func (c *ConfirmationChannel) handleSubscribe(st *channelState, w *waiter) {
	if err := c.ensureConnected(st); err != nil {
		w.ack <- err
		return
	}

	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      w.id,
		Method:  "signatureSubscribe",
		Params: []any{
			w.signature,
			map[string]string{"commitment": c.config.Commitment},
		},
	}
	if err := c.write(st, req); err != nil {
		c.dropConnection(st, err)
		w.ack <- ErrConnectionLost
		return
	}

	st.pending[w.id] = w
}

func (c *ConfirmationChannel) handleCancel(st *channelState, id string) {
	w, ok := st.pending[id]
	if !ok {
		return
	}
	if !w.acked {
		// Unsubscribed as soon as the ack arrives.
		w.cancelled = true
		return
	}

	delete(st.pending, id)
	delete(st.subs, w.subID)
	c.unsubscribe(st, w.subID)
}

func (c *ConfirmationChannel) unsubscribe(st *channelState, subID uint64) {
	id := uuid.NewString()
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  "signatureUnsubscribe",
		Params:  []any{subID},
	}
	if err := c.write(st, req); err != nil {
		c.dropConnection(st, err)
		return
	}
	st.unsubs[id] = subID
	st.retired[subID] = struct{}{}
}

func (c *ConfirmationChannel) handleFrame(st *channelState, data []byte) {
	var msg wsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.protocolError("malformed_message", "error", err)
		return
	}

	switch msg.Method {
	case "signatureNotification":
		c.handleNotification(st, msg.Params)
	case "":
		c.handleReply(st, &msg)
	default:
		c.protocolError("unexpected_method", "method", msg.Method)
	}
}

func (c *ConfirmationChannel) handleReply(st *channelState, msg *wsMessage) {
	var id string
	if err := json.Unmarshal(msg.ID, &id); err != nil {
		c.protocolError("invalid_request_id", "id", string(msg.ID))
		return
	}

	if subID, ok := st.unsubs[id]; ok {
		delete(st.unsubs, id)
		delete(st.retired, subID)
		return
	}

	w, ok := st.pending[id]
	if !ok || w.acked {
		c.protocolError("unknown_request", "id", id)
		return
	}

	if msg.Error != nil {
		delete(st.pending, id)
		w.ack <- fmt.Errorf("%w: signatureSubscribe rejected: %v", domain.ErrProtocol, msg.Error)
		return
	}

	var subID uint64
	if err := json.Unmarshal(msg.Result, &subID); err != nil {
		delete(st.pending, id)
		c.protocolError("invalid_subscription_ack", "id", id, "result", string(msg.Result))
		w.ack <- fmt.Errorf("%w: invalid subscription ack %s", domain.ErrProtocol, string(msg.Result))
		return
	}

	if w.cancelled {
		delete(st.pending, id)
		c.unsubscribe(st, subID)
		return
	}

	w.acked = true
	w.subID = subID
	w.ackedAt = time.Now()
	st.subs[subID] = id
	w.ack <- nil
}

func (c *ConfirmationChannel) handleNotification(st *channelState, params *signatureNotificationParams) {
	if params == nil {
		c.protocolError("notification_without_params")
		return
	}

	id, ok := st.subs[params.Subscription]
	if !ok {
		if _, retired := st.retired[params.Subscription]; retired {
			// Raced with our signatureUnsubscribe.
			delete(st.retired, params.Subscription)
			return
		}
		c.protocolError("unknown_subscription", "subscription", params.Subscription)
		return
	}
	w := st.pending[id]
	delete(st.subs, params.Subscription)
	delete(st.pending, id)

	observability.RecordConfirmation(time.Since(w.ackedAt).Seconds())

	if txErr := params.Result.Value.Err; len(txErr) > 0 && string(txErr) != "null" {
		w.result <- fmt.Errorf("%w: %s", ErrTransactionFailed, string(txErr))
		return
	}
	w.result <- nil
}

// dropConnection discards the connection and all state registered on it.
func (c *ConfirmationChannel) dropConnection(st *channelState, cause error) {
	if st.conn == nil {
		return
	}
	st.conn.Close()
	st.conn = nil
	st.lost = true

	logger.Warn(c.lifetime, "confirmation channel connection lost",
		"error", cause,
		"pending", len(st.pending),
	)

	for id, w := range st.pending {
		w.resolve(ErrConnectionLost)
		delete(st.pending, id)
	}
	clear(st.subs)
	clear(st.unsubs)
	clear(st.retired)
}

func (c *ConfirmationChannel) shutdown(st *channelState) {
	for id, w := range st.pending {
		w.resolve(ErrChannelClosed)
		delete(st.pending, id)
	}

	if st.conn != nil {
		st.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
		st.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		st.conn.Close()
		st.conn = nil
	}
	observability.SetPendingConfirmations(0)
}

func (c *ConfirmationChannel) protocolError(reason string, kv ...any) {
	c.protocolErrors.Add(1)
	observability.RecordProtocolError(reason)
	logger.Error(c.lifetime, "confirmation channel protocol error",
		append([]any{"reason", reason}, kv...)...,
	)
}

// waiter is the Subscription handed to callers. Fields other than the
// channels are owned by the actor.
type waiter struct {
	id        string
	signature string
	owner     *ConfirmationChannel

	acked     bool
	cancelled bool
	subID     uint64
	ackedAt   time.Time

	ack    chan error
	result chan error

	cancelOnce sync.Once
}

// resolve delivers err on whichever channel the caller is blocked on.
func (w *waiter) resolve(err error) {
	if w.acked {
		w.result <- err
		return
	}
	w.ack <- err
}

// Wait implements Subscription.
func (w *waiter) Wait(ctx context.Context) error {
	timer := time.NewTimer(w.owner.config.ConfirmTimeout)
	defer timer.Stop()

	select {
	case err := <-w.result:
		return err
	case <-ctx.Done():
		w.Cancel()
		return ctx.Err()
	case <-timer.C:
		select {
		case err := <-w.result:
			return err
		default:
		}
		w.Cancel()
		return ErrConfirmTimeout
	case <-w.owner.done:
		return ErrChannelClosed
	}
}

// Cancel implements Subscription.
func (w *waiter) Cancel() {
	w.cancelOnce.Do(func() {
		select {
		case w.owner.commands <- command{cancel: w.id}:
		case <-w.owner.done:
		}
	})
}

// Websocket message types

type wsMessage struct {
	ID     json.RawMessage              `json:"id"`
	Method string                       `json:"method"`
	Result json.RawMessage              `json:"result"`
	Error  *RPCError                    `json:"error"`
	Params *signatureNotificationParams `json:"params"`
}

type signatureNotificationParams struct {
	Subscription uint64 `json:"subscription"`
	Result       struct {
		Context struct {
			Slot uint64 `json:"slot"`
		} `json:"context"`
		Value struct {
			Err json.RawMessage `json:"err"`
		} `json:"value"`
	} `json:"result"`
}
