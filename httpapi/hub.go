package httpapi

import (
	"context"
	"sync"

	"pkt.systems/cellview/internal/logx"
	"pkt.systems/cellview/schema"
	"pkt.systems/pslog"
)

// Stream event types. EventMessage carries a wire message and is what the
// browser page script consumes; EventHover is a named event that such a
// script ignores.
const (
	EventMessage = "message"
	EventHover   = "hover"
)

// StreamEvent is one event of the relayed stream.
type StreamEvent struct {
	// Seq is the viewer sequence number the event leaves the state at.
	Seq  uint64
	Type string
	// Data is the encoded wire message for EventMessage.
	Data  []byte
	Node  schema.NodeID
	Token schema.TokenID
	Enter bool
}

// Hub relays applied viewer changes to stream clients and keeps a bounded
// history of wire messages for Last-Event-ID resumption.
type Hub struct {
	mu          sync.Mutex
	subs        map[chan StreamEvent]struct{}
	history     []StreamEvent
	historySize int
	depth       int
}

// NewHub constructs a hub with the given history size.
func NewHub(historySize int) *Hub {
	if historySize <= 0 {
		historySize = 512
	}
	return &Hub{
		subs:        make(map[chan StreamEvent]struct{}),
		historySize: historySize,
		depth:       256,
	}
}

// OnUpdate implements cellview.EventSink.
func (h *Hub) OnUpdate(seq uint64, msg schema.Message) {
	data, err := schema.EncodeMessage(msg)
	if err != nil {
		pslog.Ctx(context.Background()).Error("hub encode failed", "seq", seq, "error", err)
		return
	}
	pslog.Ctx(context.Background()).Trace("hub update event", "seq", seq, "ops", len(msg.Ops), "tail", len(msg.NewTail))
	h.publish(StreamEvent{Seq: seq, Type: EventMessage, Data: data}, true)
}

// OnReset implements cellview.EventSink.
func (h *Hub) OnReset(seq uint64) {
	data, err := schema.EncodeMessage(schema.ResetMessage())
	if err != nil {
		pslog.Ctx(context.Background()).Error("hub encode failed", "seq", seq, "error", err)
		return
	}
	pslog.Ctx(context.Background()).Trace("hub reset event", "seq", seq)
	h.publish(StreamEvent{Seq: seq, Type: EventMessage, Data: data}, true)
}

// OnHover implements cellview.EventSink. Hover events are not kept in the
// history: a resuming client gets the current styling with the cell.
func (h *Hub) OnHover(seq uint64, node schema.NodeID, token schema.TokenID, enter bool) {
	logx.WithToken(logx.WithNode(context.Background(), node), token).Trace("hub hover event", "seq", seq, "enter", enter)
	h.publish(StreamEvent{Seq: seq, Type: EventHover, Node: node, Token: token, Enter: enter}, false)
}

// Subscribe registers a subscriber. The channel is closed when the
// subscriber falls behind or unsubscribes.
func (h *Hub) Subscribe() (<-chan StreamEvent, func()) {
	ch := make(chan StreamEvent, h.depth)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	count := len(h.subs)
	h.mu.Unlock()
	log := pslog.Ctx(context.Background())
	log.Info("hub subscribe", "subs", count)
	var once sync.Once
	unsub := func() {
		once.Do(func() {
			h.mu.Lock()
			if _, ok := h.subs[ch]; ok {
				delete(h.subs, ch)
				close(ch)
			}
			remaining := len(h.subs)
			h.mu.Unlock()
			log.Info("hub unsubscribe", "subs", remaining)
		})
	}
	return ch, unsub
}

// Replay returns the history after seq. ok is false when the history no
// longer reaches back to seq and the client needs a fresh snapshot.
func (h *Hub) Replay(after uint64) (events []StreamEvent, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	log := pslog.Ctx(context.Background())
	if len(h.history) == 0 || h.history[0].Seq > after+1 {
		log.Debug("hub replay gap", "after", after, "history", len(h.history))
		return nil, false
	}
	for _, event := range h.history {
		if event.Seq > after {
			events = append(events, event)
		}
	}
	log.Debug("hub replay", "after", after, "count", len(events))
	return events, true
}

// Subscribers returns the number of connected stream clients.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) publish(event StreamEvent, keep bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if keep {
		h.history = append(h.history, event)
		if len(h.history) > h.historySize {
			h.history = h.history[len(h.history)-h.historySize:]
		}
	}
	dropped := 0
	for sub := range h.subs {
		select {
		case sub <- event:
		default:
			delete(h.subs, sub)
			close(sub)
			dropped++
		}
	}
	if dropped > 0 {
		pslog.Ctx(context.Background()).Warn("hub subscriber dropped", "type", event.Type, "seq", event.Seq, "dropped", dropped)
	}
}
