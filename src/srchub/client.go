package srchub

import (
	"context"
	"encoding/json"

	"github.com/mb0/feather/dom"
	"github.com/mb0/feather/evt"
	"github.com/mb0/feather/hub"
	"github.com/mb0/feather/log"
	"github.com/mb0/feather/src"
	"github.com/pkg/errors"
)

// Client is a data source that forwards requests to a service connected to dest. It is also the
// hub connection receiving the replies and must be run to process them.
type Client struct {
	id   int64
	dest hub.Conn
	recv chan *hub.Msg
	reqs hub.RequestMap
	Log  log.Logger
	// OnUpdate is called from the run loop for event updates of subscribed topics.
	OnUpdate func(evt.Update)
}

// NewClient returns a new client sending requests to dest.
func NewClient(dest hub.Conn, l log.Logger) *Client {
	return &Client{id: hub.NextID(), dest: dest, recv: make(chan *hub.Msg, 32), Log: log.Or(l)}
}

func (c *Client) ID() int64             { return c.id }
func (c *Client) Chan() chan<- *hub.Msg { return c.recv }

// Run processes received messages until a nil message is received. Pending requests are closed
// when the remote signs off or the client stops.
func (c *Client) Run() {
	defer c.reqs.Close()
	for m := range c.recv {
		if m == nil {
			return
		}
		switch m.Subj {
		case hub.SubjSignon:
		case hub.SubjSignoff:
			c.reqs.Close()
		case SubjUpdate:
			var up evt.Update
			err := decode(m, &up)
			if err != nil {
				c.Log.Error("invalid update", "err", err)
				continue
			}
			if c.OnUpdate != nil {
				c.OnUpdate(up)
			}
		default:
			err := c.reqs.Response(m)
			if err != nil {
				c.Log.Error("unexpected reply", "msg", m, "err", err)
			}
		}
	}
}

// Request sends req to the remote service and returns its response. Error replies with a known
// code unwrap to the matching source error.
func (c *Client) Request(ctx context.Context, req *src.Request) (json.RawMessage, error) {
	var res DataRes
	err := c.call(ctx, SubjData, req, &res)
	if err != nil {
		return nil, err
	}
	if res.Err != "" || res.Code != "" {
		return nil, &RemoteError{Msg: res.Err, Code: res.Code}
	}
	return res.Res, nil
}

// Sub watches the given topics and returns the events since the watch revisions.
func (c *Client) Sub(ctx context.Context, ws ...evt.Watch) (*evt.Update, error) {
	var res evt.SubRes
	err := c.call(ctx, SubjSub, evt.SubReq{List: ws}, &res)
	if err != nil {
		return nil, err
	}
	if res.Err != "" {
		return nil, errors.New(res.Err)
	}
	return res.Res, nil
}

// Unsub stops watching the given topics or all topics if ws is empty.
func (c *Client) Unsub(ctx context.Context, ws ...evt.Watch) error {
	var res evt.UnsRes
	err := c.call(ctx, SubjUnsub, evt.UnsReq{List: ws}, &res)
	if err != nil {
		return err
	}
	if res.Err != "" {
		return errors.New(res.Err)
	}
	return nil
}

// Hist returns the event history of the record with signature sig.
func (c *Client) Hist(ctx context.Context, sig evt.Sig) (*evt.Update, error) {
	var res evt.HistRes
	err := c.call(ctx, SubjHist, evt.HistReq{Sig: sig}, &res)
	if err != nil {
		return nil, err
	}
	if res.Err != "" {
		return nil, errors.New(res.Err)
	}
	return res.Res, nil
}

// Manifest returns the catalog manifest served by the remote service.
func (c *Client) Manifest(ctx context.Context) (dom.Manifest, error) {
	var res ManifRes
	err := c.call(ctx, SubjManif, struct{}{}, &res)
	if err != nil {
		return nil, err
	}
	return res.Res, nil
}

func (c *Client) call(ctx context.Context, subj string, data, res interface{}) error {
	ch := make(chan *hub.Msg, 1)
	tok := c.reqs.Note(&hub.Msg{From: hub.NewChanConn(-1, ch)})
	select {
	case c.dest.Chan() <- &hub.Msg{From: c, Subj: subj, Tok: tok, Data: data}:
	case <-ctx.Done():
		return errors.Wrapf(ctx.Err(), "send %s", subj)
	}
	select {
	case m := <-ch:
		if m == nil {
			return errors.Wrapf(hub.ErrClosed, "wait for %s", subj)
		}
		return errors.Wrapf(decode(m, res), "decode %s reply", subj)
	case <-ctx.Done():
		return errors.Wrapf(ctx.Err(), "wait for %s", subj)
	}
}
