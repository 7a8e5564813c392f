package hub

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
)

type echo struct{}

func (echo) Serve(m *Msg) interface{} { return m.Data }

func TestRun(t *testing.T) {
	h := NewHub()
	var subjs []string
	done := make(chan struct{})
	r := Routers{
		Subjects(RouterFunc(func(m *Msg) { subjs = append(subjs, m.Subj) }), SubjSignon, SubjSignoff),
		Prefix(RouterFunc(func(m *Msg) {
			err := Services{"echo.a": echo{}}.Handle(m, h)
			if err != nil {
				m.From.Chan() <- &Msg{From: h, Subj: "err", Data: err.Error()}
			}
		}), "echo."),
	}
	go func() {
		h.Run(r)
		close(done)
	}()
	ch := make(chan *Msg, 4)
	c := NewChanConn(NextID(), ch)
	Signon(h, c)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := Req(ctx, h, &Msg{Subj: "echo.a", Tok: []byte("1"), Data: "hi"})
	if err != nil {
		t.Fatalf("req: %v", err)
	}
	if res.Subj != "echo.a" || string(res.Tok) != "1" || res.Data != "hi" || res.From != Conn(h) {
		t.Errorf("want echo reply got %+v", res)
	}
	res, err = Req(ctx, h, &Msg{Subj: "echo.b"})
	if err != nil || res.Subj != "err" || !strings.HasSuffix(res.Data.(string), "no service") {
		t.Errorf("want unsupported service error got %+v %v", res, err)
	}
	if n := h.Conns(); n != 1 {
		t.Errorf("want one conn got %d", n)
	}
	Signoff(h, c)
	select {
	case m := <-ch:
		if m != nil {
			t.Errorf("want nil after sign-off got %+v", m)
		}
	case <-ctx.Done():
		t.Fatalf("no sign-off reply")
	}
	h.Stop()
	<-done
	if h.Conns() != 0 || len(subjs) != 2 || subjs[0] != SubjSignon || subjs[1] != SubjSignoff {
		t.Errorf("want sign-on and sign-off routed got %v", subjs)
	}
}

func TestReqCanceled(t *testing.T) {
	dest := NewChanConn(NextID(), make(chan *Msg, 1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Req(ctx, dest, &Msg{Subj: "x"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("want canceled got %v", err)
	}
}

func TestRequestMap(t *testing.T) {
	var r RequestMap
	a := make(chan *Msg, 1)
	b := make(chan *Msg, 1)
	ta := r.Note(&Msg{From: NewChanConn(1, a), Tok: []byte("x")})
	r.Note(&Msg{From: NewChanConn(2, b), Tok: []byte("y")})
	err := r.Response(&Msg{Subj: "data", Tok: ta, Data: 1})
	if err != nil {
		t.Fatalf("response: %v", err)
	}
	if m := <-a; string(m.Tok) != "x" || m.Data != 1 {
		t.Errorf("want original token got %+v", m)
	}
	if err := r.Response(&Msg{Subj: "data", Tok: ta}); err == nil {
		t.Errorf("want error for answered token")
	}
	if err := r.Response(&Msg{Subj: "data"}); err == nil {
		t.Errorf("want error for missing token")
	}
	r.Close()
	if m := <-b; m != nil {
		t.Errorf("want nil on close got %+v", m)
	}
}

func TestMsg(t *testing.T) {
	c := NewChanConn(7, nil)
	m := &Msg{From: c, Subj: "data", Tok: []byte("a1")}
	if got := m.String(); got != "data#a1 from 7" {
		t.Errorf("unexpected string %s", got)
	}
	r := m.Reply(NewHub(), 1)
	if r.Subj != "data" || string(r.Tok) != "a1" || r.From.ID() != 0 || r.Data != 1 {
		t.Errorf("want reply with request token got %+v", r)
	}
	if got := (&Msg{Subj: "+"}).String(); got != "+ from 0" {
		t.Errorf("unexpected string %s", got)
	}
	ch := make(chan *Msg, 1)
	svcs := Services{"ping": ServiceFunc(func(*Msg) interface{} { return "pong" })}
	if err := svcs.Handle(&Msg{From: NewChanConn(-1, ch), Subj: "ping"}, c); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if res := <-ch; res.Data != "pong" || res.From != Conn(c) {
		t.Errorf("want pong got %+v", res)
	}
	if err := svcs.Handle(&Msg{Subj: "pong"}, c); !errors.Is(err, ErrNoService) {
		t.Errorf("want no service got %v", err)
	}
}
