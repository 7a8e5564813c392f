package evt

import (
	"time"

	"github.com/mb0/feather/hub"
)

// Subscriber is a hub connection with watched topics and buffered events.
type Subscriber struct {
	hub.Conn
	Rev   time.Time
	Watch map[string]*Watch
	Bufr  []*Event
}

// Accept reports whether the subscriber watches the event.
func (s *Subscriber) Accept(ev *Event) bool {
	w := s.Watch[ev.Top]
	if w == nil {
		return false
	}
	if !ev.Rev.After(w.Rev) {
		return false
	}
	if len(w.IDs) > 0 {
		for _, id := range w.IDs {
			if ev.Key == id {
				return true
			}
		}
		return false
	}
	return true
}

// Update sends the buffered events up to rev to the subscriber.
func (s *Subscriber) Update(from hub.Conn, rev time.Time) {
	s.Rev = rev
	res := Update{Rev: rev}
	if len(s.Bufr) > 0 {
		res.Evs = make([]*Event, len(s.Bufr))
		copy(res.Evs, s.Bufr)
		s.Bufr = s.Bufr[:0]
	}
	s.Chan() <- &hub.Msg{From: from, Subj: "update", Data: res}
}

// Subscribers manages the subscriptions of hub connections. It must only be used from the
// routing go routine.
type Subscribers struct {
	smap  map[int64]*Subscriber
	tmap  map[string][]*Subscriber
	btrig *time.Timer
	bcast time.Time
}

func NewSubscribers() *Subscribers {
	return &Subscribers{
		smap: make(map[int64]*Subscriber),
		tmap: make(map[string][]*Subscriber),
	}
}

// Show buffers the events for all accepting subscribers and returns the subscriber of c if any.
func (subs *Subscribers) Show(c hub.Conn, evs []*Event) (sender *Subscriber) {
	id := c.ID()
	for _, ev := range evs {
		for _, s := range subs.tmap[ev.Top] {
			if s.ID() == id {
				sender = s
			} else if s.Accept(ev) {
				s.Bufr = append(s.Bufr, ev)
			}
		}
	}
	return sender
}

// Sub adds the watches for c and returns its subscriber.
func (subs *Subscribers) Sub(c hub.Conn, ws []Watch) *Subscriber {
	if len(ws) == 0 {
		return nil
	}
	id := c.ID()
	s := subs.smap[id]
	if s == nil {
		s = &Subscriber{Conn: c, Watch: make(map[string]*Watch)}
		subs.smap[id] = s
	}
	for _, w := range ws {
		w := w
		if o := s.Watch[w.Top]; o != nil {
			w = mergeWatch(*o, w)
		} else {
			subs.tmap[w.Top] = append(subs.tmap[w.Top], s)
		}
		s.Watch[w.Top] = &w
	}
	s.Bufr = filter(s.Bufr, ws)
	return s
}

// Unsub removes the watches for c or all of its watches if ws is empty.
func (subs *Subscribers) Unsub(c hub.Conn, ws []Watch) {
	id := c.ID()
	s := subs.smap[id]
	if s == nil {
		return
	}
	if len(ws) == 0 {
		for top := range s.Watch {
			ws = append(ws, Watch{Top: top})
		}
	}
	for _, w := range ws {
		delete(s.Watch, w.Top)
		list := subs.tmap[w.Top]
		for i, el := range list {
			if s == el {
				subs.tmap[w.Top] = append(list[:i], list[i+1:]...)
				break
			}
		}
	}
	if len(s.Watch) == 0 {
		delete(subs.smap, id)
	}
	s.Bufr = filter(s.Bufr, ws)
}

// Btrig trigger fires a delayed, de-duped broadcast request with header _bcast.
func (subs *Subscribers) Btrig(from hub.Conn) {
	if subs.btrig != nil && time.Now().Sub(subs.bcast) < 2*time.Second {
		subs.btrig.Stop()
	}
	subs.btrig = time.AfterFunc(200*time.Millisecond, func() {
		from.Chan() <- &hub.Msg{From: from, Subj: "_bcast"}
	})
}

// Bcast sends all buffered events up to revision rev out to subscribers.
func (subs *Subscribers) Bcast(from hub.Conn, rev time.Time) {
	if !rev.After(subs.bcast) {
		return
	}
	subs.bcast = rev
	for _, s := range subs.smap {
		s.Update(from, rev)
	}
}

// Stop cancels a pending broadcast trigger.
func (subs *Subscribers) Stop() {
	if subs.btrig != nil {
		subs.btrig.Stop()
	}
}

// mergeWatch returns a watch for the keys of both a and b from the earlier revision.
// A watch without keys selects all keys.
func mergeWatch(a, b Watch) Watch {
	if b.Rev.Before(a.Rev) {
		a.Rev = b.Rev
	}
	if len(a.IDs) == 0 || len(b.IDs) == 0 {
		a.IDs = nil
		return a
	}
	ids := append([]string(nil), a.IDs...)
	for _, id := range b.IDs {
		if !contains(ids, id) {
			ids = append(ids, id)
		}
	}
	a.IDs = ids
	return a
}

func filter(evs []*Event, subs []Watch) []*Event {
	out := evs[:0] // reuse
Outer:
	for _, ev := range evs {
		for _, sub := range subs {
			if sub.Top == ev.Top {
				continue Outer
			}
		}
		out = append(out, ev)
	}
	return out
}
