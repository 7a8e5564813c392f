package evt

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/mb0/feather/hub"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestNextRev(t *testing.T) {
	ms := time.Millisecond
	tests := []struct {
		last, rev, want time.Time
	}{
		{time.Time{}, t0.Add(1500 * time.Microsecond), t0.Add(ms)},
		{t0, t0.Add(2 * ms), t0.Add(2 * ms)},
		{t0, t0, t0.Add(ms)},
		{t0.Add(5 * ms), t0, t0.Add(6 * ms)},
	}
	for _, test := range tests {
		if got := NextRev(test.last, test.rev); !got.Equal(test.want) {
			t.Errorf("next rev %v %v want %v got %v", test.last, test.rev, test.want, got)
		}
	}
}

func act(top, key, cmd, arg string) Action {
	a := Action{Sig: Sig{top, key}, Cmd: cmd}
	if arg != "" {
		a.Arg = json.RawMessage(arg)
	}
	return a
}

func TestMemLedger(t *testing.T) {
	l := &MemLedger{Now: func() time.Time { return t0 }}
	if !l.Rev().IsZero() {
		t.Fatalf("want zero rev")
	}
	evs, _ := l.Publish(act("contact", "c1", CmdNew, `{"id":"c1"}`), act("tag", "t1", CmdDel, ""))
	if len(evs) != 2 || evs[1].ID != 2 || !evs[0].Rev.Equal(t0) || evs[1].Rev != evs[0].Rev {
		t.Fatalf("want two events with one rev got %v", evs)
	}
	l.Publish(act("contact", "c1", CmdMod, `[]`))
	if !l.Rev().Equal(t0.Add(time.Millisecond)) {
		t.Errorf("want next rev got %v", l.Rev())
	}
	got, _ := l.Events(t0, "contact")
	if len(got) != 1 || got[0].ID != 3 {
		t.Errorf("want event after rev got %v", got)
	}
	got, _ = l.Events(time.Time{}, "contact")
	if len(got) != 2 || len(Collect(got, Sig{"contact", "c1"})) != 2 {
		t.Errorf("want contact events got %v", got)
	}
}

func TestCompact(t *testing.T) {
	evs := []*Event{
		{ID: 1, Action: act("contact", "c1", CmdNew, `{"id":"c1","name":"a"}`)},
		{ID: 2, Action: act("contact", "c2", CmdMod, `[{"op":"replace","path":"/name","value":"x"}]`)},
		{ID: 3, Action: act("contact", "c1", CmdMod, `[{"op":"replace","path":"/name","value":"b"}]`)},
		{ID: 4, Action: act("contact", "c2", CmdMod, `[{"op":"remove","path":"/note"}]`)},
		{ID: 5, Action: act("contact", "c3", CmdMod, `[]`)},
		{ID: 6, Action: act("contact", "c3", CmdDel, "")},
	}
	acts, err := Compact(evs)
	if err != nil {
		t.Fatalf("compact: %v", err)
	}
	want := []string{
		`+ {"id":"c1","name":"b"}`,
		`* [{"op":"replace","path":"/name","value":"x"},{"op":"remove","path":"/note"}]`,
		`- `,
	}
	if len(acts) != len(want) {
		t.Fatalf("want %d actions got %v", len(want), acts)
	}
	for i, a := range acts {
		if got := a.Cmd + " " + string(a.Arg); got != want[i] {
			t.Errorf("want %s got %s", want[i], got)
		}
	}
	errs := [][2]Action{
		{act("a", "1", CmdDel, ""), act("a", "1", CmdMod, "[]")},
		{act("a", "1", CmdDel, ""), act("a", "1", CmdDel, "")},
		{act("a", "1", CmdMod, "[]"), act("a", "1", CmdNew, "{}")},
		{act("a", "1", CmdMod, "[]"), act("a", "2", CmdMod, "[]")},
	}
	for _, e := range errs {
		if _, err := Merge(e[0], e[1]); err == nil {
			t.Errorf("merge %v %v want error", e[0], e[1])
		}
	}
	a, err := Merge(act("a", "1", CmdDel, ""), act("a", "1", CmdNew, "{}"))
	if err != nil || a.Cmd != CmdNew {
		t.Errorf("want create after delete got %v %v", a, err)
	}
}

func TestSubscribers(t *testing.T) {
	h := hub.NewChanConn(0, make(chan *hub.Msg, 4))
	ach := make(chan *hub.Msg, 4)
	a := hub.NewChanConn(1, ach)
	bch := make(chan *hub.Msg, 4)
	b := hub.NewChanConn(2, bch)
	subs := NewSubscribers()
	defer subs.Stop()
	if subs.Sub(a, nil) != nil {
		t.Errorf("want no subscriber without watches")
	}
	sa := subs.Sub(a, []Watch{{Top: "contact", IDs: []string{"c1"}}})
	subs.Sub(a, []Watch{{Top: "contact", IDs: []string{"c2"}}})
	if w := sa.Watch["contact"]; len(w.IDs) != 2 {
		t.Errorf("want merged watch ids got %v", w.IDs)
	}
	subs.Sub(b, []Watch{{Top: "contact"}, {Top: "tag"}})
	evs := []*Event{
		{ID: 1, Rev: t0, Action: act("contact", "c1", CmdMod, "[]")},
		{ID: 2, Rev: t0, Action: act("contact", "c3", CmdMod, "[]")},
		{ID: 3, Rev: t0, Action: act("tag", "t1", CmdDel, "")},
	}
	if sender := subs.Show(b, evs); sender == nil || len(sender.Bufr) != 0 {
		t.Errorf("want sender without buffered events got %v", sender)
	}
	if len(sa.Bufr) != 1 || sa.Bufr[0].ID != 1 {
		t.Errorf("want one accepted event got %v", sa.Bufr)
	}
	subs.Bcast(h, t0)
	up := (<-ach).Data.(Update)
	if len(up.Evs) != 1 || !up.Rev.Equal(t0) || len(sa.Bufr) != 0 {
		t.Errorf("want update with one event got %v", up)
	}
	if up := (<-bch).Data.(Update); len(up.Evs) != 0 {
		t.Errorf("want empty update for sender got %v", up)
	}
	subs.Bcast(h, t0)
	if len(ach) != 0 {
		t.Errorf("want no update for old revision")
	}
	subs.Unsub(b, []Watch{{Top: "tag"}})
	subs.Unsub(a, nil)
	if _, ok := subs.smap[1]; ok || len(subs.tmap["tag"]) != 0 || len(subs.tmap["contact"]) != 1 {
		t.Errorf("want only b watching contacts got %v", subs.tmap)
	}
}

func TestHist(t *testing.T) {
	l := &MemLedger{Now: func() time.Time { return t0 }}
	l.Publish(act("contact", "c1", CmdNew, "{}"), act("contact", "c2", CmdNew, "{}"))
	l.Publish(act("contact", "c1", CmdDel, ""))
	res := Hist(l).Serve(&hub.Msg{Subj: "hist", Raw: []byte(`{"top":"contact","key":"c1"}`)})
	hr, ok := res.(HistRes)
	if !ok || hr.Err != "" || len(hr.Res.Evs) != 2 || hr.Res.Evs[1].Cmd != CmdDel {
		t.Errorf("want two c1 events got %+v", res)
	}
	res = Hist(l).Serve(&hub.Msg{Subj: "hist", Raw: []byte(`[`)})
	if hr := res.(HistRes); hr.Err == "" {
		t.Errorf("want decode error")
	}
}
