package eventbus

import (
	"context"
	"sync"

	"pkt.systems/cellview/schema"
	"pkt.systems/pslog"
)

// EventType identifies the event payload.
type EventType string

const (
	// EventUpdate carries an applied update message.
	EventUpdate EventType = "update"
	// EventReset marks a session reset.
	EventReset EventType = "reset"
	// EventHover carries a hover enter or leave that changed the surface.
	EventHover EventType = "hover"
)

// Event represents a change of the viewer state.
type Event struct {
	Type EventType
	// Seq is the viewer sequence number after the change.
	Seq     uint64
	Message schema.Message
	Node    schema.NodeID
	Token   schema.TokenID
	Enter   bool
}

type subscriber struct {
	ch   chan Event
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.ch) })
}

// Bus fans events out to subscribers without blocking the publisher. A
// subscriber whose buffer is full is dropped and its channel closed, so it
// can resubscribe and resynchronize instead of silently missing an event.
type Bus struct {
	mu    sync.Mutex
	subs  map[chan Event]*subscriber
	log   pslog.Logger
	depth int
}

// New constructs a Bus.
func New(logger pslog.Logger) *Bus {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Bus{
		subs:  make(map[chan Event]*subscriber),
		log:   logger,
		depth: 256,
	}
}

// Subscribe registers a subscriber and returns its channel and a cancel func.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	if b == nil {
		return nil, func() {}
	}
	sub := &subscriber{ch: make(chan Event, b.depth)}
	b.mu.Lock()
	b.subs[sub.ch] = sub
	count := len(b.subs)
	b.mu.Unlock()
	if b.log != nil {
		b.log.Debug("eventbus subscribe", "subs", count)
	}
	return sub.ch, func() {
		b.mu.Lock()
		delete(b.subs, sub.ch)
		sub.close()
		b.mu.Unlock()
		if b.log != nil {
			b.log.Debug("eventbus unsubscribe")
		}
	}
}

// Subscribers returns the current subscriber count.
func (b *Bus) Subscribers() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// OnUpdate publishes an applied update message.
func (b *Bus) OnUpdate(seq uint64, msg schema.Message) {
	b.publish(Event{Type: EventUpdate, Seq: seq, Message: msg})
}

// OnReset publishes a session reset.
func (b *Bus) OnReset(seq uint64) {
	b.publish(Event{Type: EventReset, Seq: seq, Message: schema.ResetMessage()})
}

// OnHover publishes a hover change.
func (b *Bus) OnHover(seq uint64, node schema.NodeID, token schema.TokenID, enter bool) {
	b.publish(Event{Type: EventHover, Seq: seq, Node: node, Token: token, Enter: enter})
}

func (b *Bus) publish(event Event) {
	if b == nil {
		return
	}
	// Sends never block, so fan-out happens under the lock and cannot race
	// with a cancel closing the channel.
	b.mu.Lock()
	lagged := 0
	for ch, sub := range b.subs {
		select {
		case ch <- event:
		default:
			delete(b.subs, ch)
			sub.close()
			lagged++
		}
	}
	b.mu.Unlock()
	if lagged > 0 && b.log != nil {
		b.log.Warn("eventbus dropped lagging subscribers", "count", lagged, "seq", event.Seq)
	}
}
