package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/docfeed/dslisten/internal/config"
	"github.com/docfeed/dslisten/internal/event"
	"github.com/docfeed/dslisten/internal/protocol"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ErrTooManyConnections is returned by AddClient when the subscriber limit
// has been reached.
var ErrTooManyConnections = errors.New("too many connections")

type subscriber struct {
	conn         *websocket.Conn
	b            *Broadcaster
	mask         event.Mask
	principal    string
	send         chan []byte
	writeTimeout time.Duration
}

func (c *subscriber) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			log.Debug().Err(err).Str("principal", c.principal).Msg("ws write failed")
			c.b.RemoveClient(c)
			return
		}
	}
}

// Broadcaster fans published events out to every subscriber whose mask
// includes the event kind.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[*subscriber]bool
	stopped bool

	maxConns     int
	sendBuffer   int
	writeTimeout time.Duration

	pubMu sync.Mutex // keeps delivery in sequence order
	seq   atomic.Uint64
	now   func() time.Time
}

func NewBroadcaster(cfg config.BroadcastConfig) *Broadcaster {
	b := &Broadcaster{
		clients:      make(map[*subscriber]bool),
		maxConns:     cfg.MaxConnections,
		sendBuffer:   cfg.SendBuffer,
		writeTimeout: cfg.WriteTimeout,
		now:          time.Now,
	}
	if b.sendBuffer <= 0 {
		b.sendBuffer = 64
	}
	if b.writeTimeout <= 0 {
		b.writeTimeout = 10 * time.Second
	}
	return b
}

// AddClient registers conn as a subscriber for the kinds in mask and starts
// its write pump. greeting, if not nil, is queued ahead of any event. From
// here on only the pump writes data frames to conn.
func (b *Broadcaster) AddClient(conn *websocket.Conn, principal string, mask event.Mask, greeting []byte) (*subscriber, error) {
	c := &subscriber{
		conn:         conn,
		b:            b,
		mask:         mask,
		principal:    principal,
		send:         make(chan []byte, b.sendBuffer),
		writeTimeout: b.writeTimeout,
	}

	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return nil, errors.New("broadcaster stopped")
	}
	if b.maxConns > 0 && len(b.clients) >= b.maxConns {
		b.mu.Unlock()
		return nil, ErrTooManyConnections
	}
	if greeting != nil {
		c.send <- greeting
	}
	b.clients[c] = true
	b.mu.Unlock()

	go c.writePump()
	return c, nil
}

func (b *Broadcaster) RemoveClient(c *subscriber) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		close(c.send)
	}
	b.mu.Unlock()
}

// Publish stamps ev with an ID (when it has none), a timestamp (when zero)
// and the next sequence number, then queues it for every matching
// subscriber. Subscribers whose queue is full are disconnected. It returns
// the sequence number assigned.
func (b *Broadcaster) Publish(ev event.Event) uint64 {
	rec := event.Encode(ev)
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Time.IsZero() {
		rec.Time = b.now().UTC()
	}
	b.pubMu.Lock()
	defer b.pubMu.Unlock()
	seq := b.seq.Add(1)

	msg, err := protocol.New(protocol.MsgEvent, rec)
	if err != nil {
		log.Error().Err(err).Str("kind", event.Name(rec.Kind)).Msg("broadcast marshal error")
		return seq
	}
	msg.Seq = seq
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Msg("broadcast marshal error")
		return seq
	}

	b.mu.RLock()
	clients := make([]*subscriber, 0, len(b.clients))
	for c := range b.clients {
		if c.mask.Has(rec.Kind) {
			clients = append(clients, c)
		}
	}
	b.mu.RUnlock()

	for _, c := range clients {
		b.deliver(c, data)
	}
	log.Debug().Uint64("seq", seq).Str("kind", event.Name(rec.Kind)).Int("subscribers", len(clients)).Msg("published")
	return seq
}

func (b *Broadcaster) deliver(c *subscriber, data []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.clients[c] {
		return
	}
	select {
	case c.send <- data:
	default:
		go func() {
			log.Warn().Str("principal", c.principal).Msg("ws subscriber too slow, disconnecting")
			b.RemoveClient(c)
		}()
	}
}

// Stop disconnects every subscriber and refuses new ones.
func (b *Broadcaster) Stop() {
	b.mu.Lock()
	b.stopped = true
	for c := range b.clients {
		delete(b.clients, c)
		close(c.send)
	}
	b.mu.Unlock()
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}
