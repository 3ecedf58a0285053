package game

import "mepclicker.app/internal/sim/state"

type EventType string

const (
	EventTap      EventType = "TAP"
	EventPassive  EventType = "PASSIVE"
	EventUpgrade  EventType = "UPGRADE"
	EventCrate    EventType = "CRATE"
	EventEquip    EventType = "EQUIP"
	EventSell     EventType = "SELL"
	EventRebirth  EventType = "REBIRTH"
	EventSave     EventType = "SAVE"
	EventOverride EventType = "OVERRIDE"
	EventReset    EventType = "RESET"
)

// Event is a presentation notification. State is a copy taken after the change.
type Event struct {
	Type   EventType         `json:"type"`
	Target string            `json:"target,omitempty"`
	Gain   float64           `json:"gain,omitempty"`
	Crit   bool              `json:"crit,omitempty"`
	Auto   bool              `json:"auto,omitempty"`
	X      float64           `json:"x,omitempty"`
	Y      float64           `json:"y,omitempty"`
	Items  []string          `json:"items,omitempty"`
	State  state.PlayerState `json:"state"`
}

type subscriber struct {
	ch    chan Event
	types map[EventType]bool
}

func (s subscriber) wants(t EventType) bool {
	return len(s.types) == 0 || s.types[t]
}

// Subscribe returns a channel of events and a cancel func. With types given,
// only those events are delivered. Slow readers lose the oldest buffered
// event; the engine never waits on a subscriber.
func (e *Engine) Subscribe(buf int, types ...EventType) (<-chan Event, func()) {
	if buf <= 0 {
		buf = 1
	}
	sub := subscriber{ch: make(chan Event, buf)}
	if len(types) > 0 {
		sub.types = make(map[EventType]bool, len(types))
		for _, t := range types {
			sub.types[t] = true
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		close(sub.ch)
		return sub.ch, func() {}
	}
	id := e.nextID
	e.nextID++
	e.subs[id] = sub
	return sub.ch, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if s, ok := e.subs[id]; ok {
			close(s.ch)
			delete(e.subs, id)
		}
	}
}

func (e *Engine) emit(ev Event) {
	if len(e.subs) == 0 {
		return
	}
	snapped := false
	for _, sub := range e.subs {
		if !sub.wants(ev.Type) {
			continue
		}
		if !snapped {
			e.reconcileSaveState()
			ev.State = e.st.Clone()
			snapped = true
		}
		sendLatest(sub.ch, ev)
	}
}

func sendLatest(ch chan Event, ev Event) {
	select {
	case ch <- ev:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- ev:
	default:
	}
}
