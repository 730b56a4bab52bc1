package solana

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"solana-whale-tracker/internal/observability"
)

// ErrWSClosed is returned by operations on a closed client.
var ErrWSClosed = errors.New("websocket client closed")

var (
	errNotConnected = errors.New("websocket not connected")
	errConnLost     = errors.New("websocket connection lost")
)

// WSConfig tunes LogsClient. Zero fields fall back to DefaultWSConfig.
type WSConfig struct {
	BackoffMin   time.Duration // first reconnect delay, doubled per failure
	BackoffMax   time.Duration
	PingInterval time.Duration
	PongWait     time.Duration // silence after which the connection is dead
	WriteTimeout time.Duration
	AckTimeout   time.Duration // wait for a logsSubscribe confirmation
	Commitment   string
	Buffer       int // per-subscription channel capacity
	Logger       *zap.Logger
}

// DefaultWSConfig returns the production settings.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		BackoffMin:   time.Second,
		BackoffMax:   30 * time.Second,
		PingInterval: 30 * time.Second,
		PongWait:     75 * time.Second,
		WriteTimeout: 10 * time.Second,
		AckTimeout:   15 * time.Second,
		Commitment:   DefaultCommitment,
		Buffer:       64,
	}
}

func (c WSConfig) withDefaults() WSConfig {
	d := DefaultWSConfig()
	if c.BackoffMin <= 0 {
		c.BackoffMin = d.BackoffMin
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = d.BackoffMax
	}
	if c.BackoffMax < c.BackoffMin {
		c.BackoffMax = c.BackoffMin
	}
	if c.PingInterval <= 0 {
		c.PingInterval = d.PingInterval
	}
	if c.PongWait <= c.PingInterval {
		c.PongWait = c.PingInterval * 5 / 2
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.AckTimeout <= 0 {
		c.AckTimeout = d.AckTimeout
	}
	if c.Commitment == "" {
		c.Commitment = d.Commitment
	}
	if c.Buffer <= 0 {
		c.Buffer = d.Buffer
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

type logsSub struct {
	filter LogsFilter
	ch     chan LogNotification
	nodeID int64
	live   bool // nodeID belongs to the current connection
}

type ack struct {
	nodeID int64
	err    error
}

// LogsClient is a WSClient over gorilla/websocket.
//
// A single supervisor goroutine reads the connection. When a read fails it
// redials with exponential backoff and replays every open subscription on the
// new connection, so LogSubscription channels survive reconnects.
type LogsClient struct {
	endpoint string
	cfg      WSConfig
	log      *zap.Logger
	dialer   *websocket.Dialer

	ctx    context.Context // canceled by Close
	cancel context.CancelFunc

	writeMu sync.Mutex

	mu     sync.Mutex
	conn   *websocket.Conn
	subs   map[uint64]*logsSub
	byNode map[int64]uint64
	acks   map[uint64]chan ack
	closed bool

	reqID   atomic.Uint64
	localID atomic.Uint64
	wg      sync.WaitGroup
}

var _ WSClient = (*LogsClient)(nil)

// NewWSClient dials endpoint and starts the supervisor. The first dial is
// synchronous so a bad URL fails here instead of in the background.
func NewWSClient(ctx context.Context, endpoint string, cfg WSConfig) (*LogsClient, error) {
	cfg = cfg.withDefaults()
	life, cancel := context.WithCancel(context.Background())
	c := &LogsClient{
		endpoint: endpoint,
		cfg:      cfg,
		log:      cfg.Logger,
		dialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		ctx:      life,
		cancel:   cancel,
		subs:     make(map[uint64]*logsSub),
		byNode:   make(map[int64]uint64),
		acks:     make(map[uint64]chan ack),
	}

	conn, err := c.dial(ctx)
	if err != nil {
		cancel()
		return nil, err
	}
	c.conn = conn

	c.wg.Add(1)
	go c.supervise(conn)
	return c, nil
}

func (c *LogsClient) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})
	return conn, nil
}

func (c *LogsClient) supervise(conn *websocket.Conn) {
	defer c.wg.Done()

	for {
		stop := make(chan struct{})
		c.wg.Add(1)
		go c.keepalive(conn, stop)

		err := c.read(conn)
		close(stop)
		if c.ctx.Err() != nil {
			return
		}
		c.detach(conn, err)

		if conn = c.redial(); conn == nil {
			return
		}
		c.wg.Add(1)
		go c.replay()
	}
}

func (c *LogsClient) read(conn *websocket.Conn) error {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		c.dispatch(msg)
	}
}

// detach forgets conn: node ids become stale and pending confirmations fail.
func (c *LogsClient) detach(conn *websocket.Conn, cause error) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	for _, s := range c.subs {
		s.live = false
	}
	c.byNode = make(map[int64]uint64)
	for id, ch := range c.acks {
		ch <- ack{err: errConnLost}
		delete(c.acks, id)
	}
	c.mu.Unlock()

	conn.Close()
	c.log.Warn("websocket connection lost", zap.Error(cause))
}

// redial returns a fresh connection, or nil once the client is closed.
func (c *LogsClient) redial() *websocket.Conn {
	delay := c.cfg.BackoffMin
	for {
		t := time.NewTimer(delay)
		select {
		case <-c.ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}

		observability.RecordWSReconnect()
		conn, err := c.dial(c.ctx)
		if err == nil {
			c.mu.Lock()
			if c.closed {
				c.mu.Unlock()
				conn.Close()
				return nil
			}
			c.conn = conn
			c.mu.Unlock()
			return conn
		}

		delay *= 2
		if delay > c.cfg.BackoffMax {
			delay = c.cfg.BackoffMax
		}
		c.log.Warn("websocket reconnect failed", zap.Error(err), zap.Duration("retry_in", delay))
	}
}

// replay resubscribes every open subscription on the current connection.
func (c *LogsClient) replay() {
	defer c.wg.Done()

	c.mu.Lock()
	pending := make(map[uint64]LogsFilter, len(c.subs))
	for id, s := range c.subs {
		pending[id] = s.filter
	}
	c.mu.Unlock()

	restored := 0
	for id, filter := range pending {
		nodeID, err := c.subscribe(c.ctx, filter)
		if err != nil {
			c.log.Warn("resubscribe failed", zap.Strings("mentions", filter.Mentions), zap.Error(err))
			continue
		}
		if c.bind(id, nodeID) {
			restored++
		}
	}
	c.log.Info("websocket reconnected", zap.Int("restored", restored), zap.Int("subscriptions", len(pending)))
}

// bind attaches nodeID to local subscription id. A subscription removed while
// its confirmation was in flight is dropped on the node too.
func (c *LogsClient) bind(id uint64, nodeID int64) bool {
	c.mu.Lock()
	s, ok := c.subs[id]
	if ok {
		if s.live {
			delete(c.byNode, s.nodeID)
		}
		s.nodeID = nodeID
		s.live = true
		c.byNode[nodeID] = id
	}
	c.mu.Unlock()

	if !ok {
		_ = c.unsubscribe(nodeID)
	}
	return ok
}

func (c *LogsClient) keepalive(conn *websocket.Conn, stop <-chan struct{}) {
	defer c.wg.Done()

	t := time.NewTicker(c.cfg.PingInterval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-c.ctx.Done():
			return
		case <-t.C:
			// a dead peer surfaces as a read timeout
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout)); err != nil {
				c.log.Debug("websocket ping failed", zap.Error(err))
			}
		}
	}
}

// SubscribeLogs subscribes to transactions mentioning filter.Mentions[0], or
// every transaction when Mentions is empty.
func (c *LogsClient) SubscribeLogs(ctx context.Context, filter LogsFilter) (*LogSubscription, error) {
	id := c.localID.Add(1)
	s := &logsSub{filter: filter, ch: make(chan LogNotification, c.cfg.Buffer)}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrWSClosed
	}
	c.subs[id] = s
	c.mu.Unlock()

	nodeID, err := c.subscribe(ctx, filter)
	if err != nil {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
		return nil, err
	}
	if !c.bind(id, nodeID) {
		return nil, ErrWSClosed
	}
	return &LogSubscription{ID: id, Filter: filter, C: s.ch}, nil
}

// Unsubscribe closes sub.C and drops the node-side subscription. Unknown
// subscriptions are a no-op.
func (c *LogsClient) Unsubscribe(_ context.Context, sub *LogSubscription) error {
	if sub == nil {
		return nil
	}

	c.mu.Lock()
	s, ok := c.subs[sub.ID]
	var (
		live   bool
		nodeID int64
	)
	if ok {
		live, nodeID = s.live, s.nodeID
		delete(c.subs, sub.ID)
		if live {
			delete(c.byNode, nodeID)
		}
		close(s.ch)
	}
	closed := c.closed
	c.mu.Unlock()

	if !ok || !live || closed {
		return nil
	}
	if err := c.unsubscribe(nodeID); err != nil {
		return fmt.Errorf("logsUnsubscribe: %w", err)
	}
	return nil
}

// Close stops the supervisor and closes every subscription channel.
func (c *LogsClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	c.cancel()
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}
	c.wg.Wait()

	c.mu.Lock()
	for id, s := range c.subs {
		close(s.ch)
		delete(c.subs, id)
	}
	c.byNode = make(map[int64]uint64)
	c.mu.Unlock()
	return nil
}

// subscribe sends logsSubscribe and waits for the node's subscription id.
func (c *LogsClient) subscribe(ctx context.Context, filter LogsFilter) (int64, error) {
	var sel interface{} = "all"
	if len(filter.Mentions) > 0 {
		sel = map[string]interface{}{"mentions": filter.Mentions}
	}

	id := c.reqID.Add(1)
	ch := make(chan ack, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, ErrWSClosed
	}
	c.acks[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.acks, id)
		c.mu.Unlock()
	}()

	err := c.send(wsRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  "logsSubscribe",
		Params:  []interface{}{sel, map[string]string{"commitment": c.cfg.Commitment}},
	})
	if err != nil {
		return 0, fmt.Errorf("logsSubscribe: %w", err)
	}

	t := time.NewTimer(c.cfg.AckTimeout)
	defer t.Stop()
	select {
	case a := <-ch:
		if a.err != nil {
			return 0, fmt.Errorf("logsSubscribe: %w", a.err)
		}
		return a.nodeID, nil
	case <-t.C:
		return 0, fmt.Errorf("logsSubscribe not confirmed within %v", c.cfg.AckTimeout)
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-c.ctx.Done():
		return 0, ErrWSClosed
	}
}

func (c *LogsClient) unsubscribe(nodeID int64) error {
	return c.send(wsRequest{
		JSONRPC: "2.0",
		ID:      c.reqID.Add(1),
		Method:  "logsUnsubscribe",
		Params:  []interface{}{nodeID},
	})
}

func (c *LogsClient) send(v interface{}) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return conn.WriteJSON(v)
}

func (c *LogsClient) dispatch(msg []byte) {
	var in wsInbound
	if err := json.Unmarshal(msg, &in); err != nil {
		c.log.Debug("unparseable websocket frame", zap.Error(err))
		return
	}
	switch {
	case in.Method == "logsNotification" && in.Params != nil:
		c.deliver(in.Params)
	case in.ID != 0:
		c.resolve(&in)
	}
}

// resolve completes a pending logsSubscribe. Replies to anything else,
// logsUnsubscribe included, have no waiter and are ignored.
func (c *LogsClient) resolve(in *wsInbound) {
	c.mu.Lock()
	ch, ok := c.acks[in.ID]
	delete(c.acks, in.ID)
	c.mu.Unlock()
	if !ok {
		return
	}

	var a ack
	switch {
	case in.Error != nil:
		a.err = in.Error
	default:
		if err := json.Unmarshal(in.Result, &a.nodeID); err != nil {
			a.err = fmt.Errorf("unexpected result %s", in.Result)
		}
	}
	ch <- a
}

// deliver forwards a notification. Notifications only wake the scanner, so a
// full buffer drops instead of blocking the reader.
func (c *LogsClient) deliver(p *logsParams) {
	observability.RecordWSNotification()
	n := LogNotification{
		Signature: p.Result.Value.Signature,
		Slot:      p.Result.Context.Slot,
		Err:       p.Result.Value.Err,
		Logs:      p.Result.Value.Logs,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.byNode[p.Subscription]
	if !ok {
		return
	}
	select {
	case c.subs[id].ch <- n:
	default:
		c.log.Debug("subscription buffer full, dropping notification", zap.String("signature", n.Signature))
	}
}

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

// wsInbound is either a reply (ID set) or a notification (Method set).
type wsInbound struct {
	ID     uint64          `json:"id"`
	Method string          `json:"method"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
	Params *logsParams     `json:"params"`
}

type logsParams struct {
	Subscription int64 `json:"subscription"`
	Result       struct {
		Context struct {
			Slot int64 `json:"slot"`
		} `json:"context"`
		Value struct {
			Signature string      `json:"signature"`
			Err       interface{} `json:"err"`
			Logs      []string    `json:"logs"`
		} `json:"value"`
	} `json:"result"`
}
