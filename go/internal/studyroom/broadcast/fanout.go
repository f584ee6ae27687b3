// Package broadcast delivers the hub's outbound events to every transport.
package broadcast

import (
	"github.com/mcdev12/studyroom/go/internal/studyroom/events"
)

// Sink receives outbound events. Deliver must not block; sinks queue internally.
type Sink interface {
	Deliver(out events.Outbound)
}

// Fanout hands every outbound event to each sink in the order the sinks were given.
// Because the hub calls Deliver from a room's mailbox, per-room order is kept in every sink.
type Fanout struct {
	sinks []Sink
}

// NewFanout creates a fanout over sinks. Nil sinks are skipped.
func NewFanout(sinks ...Sink) *Fanout {
	f := &Fanout{}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

// Deliver implements hub.Broadcaster.
func (f *Fanout) Deliver(out events.Outbound) {
	if out.Event == nil {
		return
	}
	for _, s := range f.sinks {
		s.Deliver(out)
	}
}

// Len returns the number of sinks.
func (f *Fanout) Len() int {
	return len(f.sinks)
}

// RoomOnly wraps s so it only sees room-wide events. Replies addressed to a single
// connection never leave the process that owns the connection.
func RoomOnly(s Sink) Sink {
	return roomOnly{s}
}

type roomOnly struct {
	sink Sink
}

func (r roomOnly) Deliver(out events.Outbound) {
	if out.Target != events.TargetRoom {
		return
	}
	r.sink.Deliver(out)
}
