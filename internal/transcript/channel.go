package transcript

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/medscribe/internal/logger"
	"github.com/yoockh/medscribe/internal/models"
)

type State string

const (
	Disconnected State = "disconnected"
	Connected    State = "connected"
)

var (
	ErrMalformedEntry = errors.New("malformed transcript entry")
	ErrChannelFrozen  = errors.New("transcript channel is frozen")

	errStaleConn = errors.New("stale connection")
)

type EntryHandler func(models.TranscriptEntry)

type StateHandler func(State)

type subscription[T any] struct {
	id uint64
	fn T
}

// Channel buffers utterances from a transcription source in arrival order.
//
// Entries, whether read from the connection or injected, pass through a single dispatch
// lock: the buffer order is the delivery order and no two handler invocations overlap.
// Handlers must not call Inject.
type Channel struct {
	endpoint string
	dialer   Dialer
	log      *logrus.Entry

	connectMu sync.Mutex
	dispatch  sync.Mutex

	mu        sync.Mutex
	state     State
	conn      Conn
	gen       uint64
	frozen    bool
	entries   []models.TranscriptEntry
	nextSubID uint64
	onEntry   []subscription[EntryHandler]
	onState   []subscription[StateHandler]
}

// NewChannel builds a channel for endpoint. An empty endpoint means demo mode: Connect
// succeeds without any network activity and entries only arrive through Inject.
func NewChannel(endpoint string, dialer Dialer, log *logrus.Entry) *Channel {
	if dialer == nil {
		dialer = WebsocketDialer{}
	}
	if log == nil {
		log = logrus.NewEntry(logger.Discard())
	}
	return &Channel{
		endpoint: endpoint,
		dialer:   dialer,
		log:      log.WithField("component", "transcript.channel"),
		state:    Disconnected,
		entries:  []models.TranscriptEntry{},
	}
}

func (c *Channel) Endpoint() string { return c.endpoint }

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Connect is a no-op when already connected and refused once frozen. A failed dial leaves the
// channel disconnected.
func (c *Channel) Connect(ctx context.Context) error {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	c.mu.Lock()
	if c.frozen {
		c.mu.Unlock()
		return ErrChannelFrozen
	}
	if c.state == Connected {
		c.mu.Unlock()
		return nil
	}
	if c.endpoint == "" {
		c.gen++
		c.state = Connected
		c.mu.Unlock()
		c.log.Debug("demo mode: connected without endpoint")
		c.notifyState(Connected)
		return nil
	}
	gen := c.gen
	c.mu.Unlock()

	conn, err := c.dialer.Dial(ctx, c.endpoint)
	if err != nil {
		c.log.WithError(err).WithField("endpoint", c.endpoint).Warn("transcript connect failed")
		return fmt.Errorf("connect transcript source: %w", err)
	}

	c.mu.Lock()
	if c.gen != gen || c.frozen {
		// Disconnect was called while dialing.
		c.mu.Unlock()
		_ = conn.Close()
		return errors.New("connect transcript source: disconnected while dialing")
	}
	c.gen++
	gen = c.gen
	c.conn = conn
	c.state = Connected
	c.mu.Unlock()

	c.log.WithField("endpoint", c.endpoint).Info("transcript source connected")
	c.notifyState(Connected)

	go c.readLoop(conn, gen)
	return nil
}

// Disconnect is safe from any state, including never connected.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	was := c.state
	c.conn = nil
	c.gen++
	c.state = Disconnected
	c.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			c.log.WithError(err).Debug("close transcript connection")
		}
	}
	if was == Connected {
		c.notifyState(Disconnected)
	}
}

// Freeze makes the buffer immutable. Later entries, injected or received, are rejected.
func (c *Channel) Freeze() {
	c.mu.Lock()
	c.frozen = true
	c.mu.Unlock()
}

func (c *Channel) Frozen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frozen
}

// Inject appends an entry exactly as if it had been received from the source.
func (c *Channel) Inject(entry models.TranscriptEntry) error {
	if !entry.Valid() {
		return ErrMalformedEntry
	}
	return c.deliver(entry, 0, false)
}

// Snapshot returns an independent copy of the buffer; never nil.
func (c *Channel) Snapshot() []models.TranscriptEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return models.CloneTranscript(c.entries)
}

// OnEntry registers h for every accepted entry. The returned func removes it.
func (c *Channel) OnEntry(h EntryHandler) (unsubscribe func()) {
	c.mu.Lock()
	c.nextSubID++
	id := c.nextSubID
	c.onEntry = append(c.onEntry, subscription[EntryHandler]{id: id, fn: h})
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.onEntry = removeSub(c.onEntry, id)
	}
}

// Follow registers h and returns the buffer as of registration. Every entry is either in the
// returned snapshot or passed to h, never both.
func (c *Channel) Follow(h EntryHandler) (snapshot []models.TranscriptEntry, unsubscribe func()) {
	c.mu.Lock()
	c.nextSubID++
	id := c.nextSubID
	c.onEntry = append(c.onEntry, subscription[EntryHandler]{id: id, fn: h})
	snapshot = models.CloneTranscript(c.entries)
	c.mu.Unlock()

	return snapshot, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.onEntry = removeSub(c.onEntry, id)
	}
}

// OnStateChange registers h for Connected/Disconnected transitions.
func (c *Channel) OnStateChange(h StateHandler) (unsubscribe func()) {
	c.mu.Lock()
	c.nextSubID++
	id := c.nextSubID
	c.onState = append(c.onState, subscription[StateHandler]{id: id, fn: h})
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.onState = removeSub(c.onState, id)
	}
}

func (c *Channel) deliver(entry models.TranscriptEntry, gen uint64, fromConn bool) error {
	c.dispatch.Lock()
	defer c.dispatch.Unlock()

	c.mu.Lock()
	if c.frozen {
		c.mu.Unlock()
		return ErrChannelFrozen
	}
	if fromConn && (c.gen != gen || c.state != Connected) {
		c.mu.Unlock()
		return errStaleConn
	}
	c.entries = append(c.entries, entry)
	handlers := make([]EntryHandler, 0, len(c.onEntry))
	for _, s := range c.onEntry {
		handlers = append(handlers, s.fn)
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(entry)
	}
	return nil
}

func (c *Channel) readLoop(conn Conn, gen uint64) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			c.dropConn(conn, gen, err)
			return
		}

		entry, ok := ParseEntry(data)
		if !ok {
			c.log.WithField("bytes", len(data)).Debug("dropping malformed transcript message")
			continue
		}
		if err := c.deliver(entry, gen, true); err != nil {
			if errors.Is(err, errStaleConn) {
				return
			}
			c.log.WithError(err).Debug("transcript entry not appended")
		}
	}
}

// dropConn handles a read failure. Only the current connection may flip the state.
func (c *Channel) dropConn(conn Conn, gen uint64, cause error) {
	c.mu.Lock()
	current := c.gen == gen && c.conn == conn
	if current {
		c.conn = nil
		c.gen++
		c.state = Disconnected
	}
	c.mu.Unlock()

	_ = conn.Close()
	if current {
		c.log.WithError(cause).Warn("transcript source connection lost")
		c.notifyState(Disconnected)
	}
}

func (c *Channel) notifyState(s State) {
	c.mu.Lock()
	handlers := make([]StateHandler, 0, len(c.onState))
	for _, sub := range c.onState {
		handlers = append(handlers, sub.fn)
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(s)
	}
}

func removeSub[T any](subs []subscription[T], id uint64) []subscription[T] {
	out := subs[:0:0]
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}
