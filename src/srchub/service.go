package srchub

import (
	"context"
	"time"

	"github.com/mb0/feather/dom"
	"github.com/mb0/feather/evt"
	"github.com/mb0/feather/hub"
	"github.com/mb0/feather/log"
	"github.com/mb0/feather/src"
)

// Service routes data requests to a source and event subscriptions to the subscribers of a
// ledger. It must be run by the hub routing go routine.
type Service struct {
	Hub    hub.Conn
	Source src.Source
	// Ledger is optional and enables subscriptions and history requests.
	Ledger evt.Ledger
	Log    log.Logger

	svcs hub.Services
	subs *evt.Subscribers
	rev  time.Time
}

// NewService returns a service for h serving source s with the events of ledger l.
func NewService(h hub.Conn, s src.Source, l evt.Ledger, lg log.Logger) *Service {
	srv := &Service{Hub: h, Source: s, Ledger: l, Log: log.Or(lg), subs: evt.NewSubscribers()}
	srv.svcs = hub.Services{SubjData: srv}
	if l != nil {
		srv.rev = l.Rev()
		srv.svcs[SubjSub] = evt.SubFunc(srv.sub)
		srv.svcs[SubjUnsub] = evt.UnsFunc(srv.unsub)
		srv.svcs[SubjHist] = evt.Hist(l)
	}
	return srv
}

// ServeManifest answers manifest requests with mf.
func (s *Service) ServeManifest(mf dom.Manifest) {
	s.svcs[SubjManif] = hub.ServiceFunc(func(*hub.Msg) interface{} {
		return ManifRes{Res: mf}
	})
}

// Route handles the message m. It implements hub.Router.
func (s *Service) Route(m *hub.Msg) {
	switch m.Subj {
	case hub.SubjSignon:
	case hub.SubjSignoff:
		s.subs.Unsub(m.From, nil)
	case subjBcast:
		if s.Ledger != nil {
			s.subs.Bcast(s.Hub, s.Ledger.Rev())
		}
	default:
		err := s.svcs.Handle(m, s.Hub)
		if err != nil {
			s.Log.Error("hub message not handled", "msg", m, "err", err)
		}
	}
}

// Serve answers a data request message. It implements hub.Service.
func (s *Service) Serve(m *hub.Msg) interface{} {
	var req src.Request
	err := decode(m, &req)
	if err != nil {
		return errRes(err)
	}
	raw, err := s.Source.Request(context.Background(), &req)
	if err != nil {
		s.Log.Debug("data request failed", "msg", m, "req", &req, "err", err)
		return errRes(err)
	}
	if req.Method != src.GET {
		s.show(m.From)
	}
	if raw == nil {
		raw = []byte("null")
	}
	return DataRes{Res: raw}
}

// show buffers the new ledger events for subscribers other than c and triggers a broadcast.
func (s *Service) show(c hub.Conn) {
	if s.Ledger == nil {
		return
	}
	evs, err := s.Ledger.Events(s.rev)
	if err != nil {
		s.Log.Error("ledger events failed", "err", err)
		return
	}
	if len(evs) == 0 {
		return
	}
	s.rev = evs[len(evs)-1].Rev
	if sender := s.subs.Show(c, evs); sender != nil {
		sender.Rev = s.rev
	}
	s.subs.Btrig(s.Hub)
}

func (s *Service) sub(m *hub.Msg, req evt.SubReq) (*evt.Update, error) {
	sub := s.subs.Sub(m.From, req.List)
	rev := s.Ledger.Rev()
	res := &evt.Update{Rev: rev}
	if sub == nil {
		return res, nil
	}
	since := rev
	tops := make([]string, 0, len(req.List))
	for _, w := range req.List {
		if w.Rev.Before(since) {
			since = w.Rev
		}
		tops = append(tops, w.Top)
	}
	evs, err := s.Ledger.Events(since, tops...)
	if err != nil {
		return nil, err
	}
	for _, ev := range evs {
		if sub.Accept(ev) {
			res.Evs = append(res.Evs, ev)
		}
	}
	return res, nil
}

func (s *Service) unsub(m *hub.Msg, req evt.UnsReq) (bool, error) {
	s.subs.Unsub(m.From, req.List)
	return true, nil
}

// Stop cancels pending broadcasts.
func (s *Service) Stop() { s.subs.Stop() }
