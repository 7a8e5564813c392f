package evt

import (
	"sync"
	"time"
)

// NextRev returns a rev truncated to ms or if rev is not after last the next possible revision one
// millisecond after the last.
func NextRev(last, rev time.Time) time.Time {
	rev = rev.Truncate(time.Millisecond)
	if rev.After(last) {
		return rev
	}
	return last.Add(time.Millisecond)
}

// Ledger abstracts over the event storage. It allows to access the latest revision and query
// events.
type Ledger interface {
	// Rev returns the latest event revision or the zero time.
	Rev() time.Time
	// Events returns the events after rev, optionally filtered by topic.
	Events(rev time.Time, tops ...string) ([]*Event, error)
}

// Publisher is a ledger that can publish actions.
type Publisher interface {
	Ledger
	Publish(acts ...Action) ([]*Event, error)
}

// MemLedger is an in-memory publisher. It is safe for concurrent use.
type MemLedger struct {
	mu  sync.Mutex
	rev time.Time
	evs []*Event
	// Now returns the arrival time of published actions, it defaults to time.Now.
	Now func() time.Time
}

func (l *MemLedger) Rev() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rev
}

func (l *MemLedger) Events(rev time.Time, tops ...string) ([]*Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var res []*Event
	for _, ev := range l.evs {
		if !ev.Rev.After(rev) {
			continue
		}
		if len(tops) == 0 || contains(tops, ev.Top) {
			res = append(res, ev)
		}
	}
	return res, nil
}

// Publish assigns the actions one revision and consecutive ids and appends them to the ledger.
func (l *MemLedger) Publish(acts ...Action) ([]*Event, error) {
	if len(acts) == 0 {
		return nil, nil
	}
	now := time.Now
	if l.Now != nil {
		now = l.Now
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rev = NextRev(l.rev, now())
	res := make([]*Event, 0, len(acts))
	for _, act := range acts {
		ev := &Event{ID: int64(len(l.evs) + 1), Rev: l.rev, Action: act}
		l.evs = append(l.evs, ev)
		res = append(res, ev)
	}
	return res, nil
}

func contains(list []string, s string) bool {
	for _, el := range list {
		if el == s {
			return true
		}
	}
	return false
}
