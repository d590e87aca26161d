package cellview

import "pkt.systems/cellview/schema"

type eventFanout struct {
	sinks []EventSink
}

func (f eventFanout) OnUpdate(seq uint64, msg schema.Message) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnUpdate(seq, msg)
	}
}

func (f eventFanout) OnReset(seq uint64) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnReset(seq)
	}
}

func (f eventFanout) OnHover(seq uint64, node schema.NodeID, token schema.TokenID, enter bool) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnHover(seq, node, token, enter)
	}
}
