// Package hub routes messages between the models of remote clients and the data services of a
// server, independent of the transport connecting them.
//
// Clients sign on to the hub, send data requests with a subject and token and receive replies
// with the same subject and token. Services may push unrequested messages, like event updates,
// to any signed on connection.
package hub

import (
	"strconv"
	"sync"
)

const (
	SubjSignon  = "+"
	SubjSignoff = "-"
)

// Msg is a request, reply or notification passed between connections.
//
// From and Subj are required. Tok is chosen by the requesting connection and copied to the
// reply, services never interpret it. The body is either raw bytes, as read from a transport,
// or typed data for in-process messages. A transport encodes data as JSON when raw is empty,
// and the service handling the subject decodes raw bodies.
type Msg struct {
	// From is the connection this message originates from.
	From Conn
	// Subj selects the service and the body type.
	Subj string
	Tok  []byte
	Raw  []byte
	Data interface{}
}

// Reply returns a reply to m from c with the request subject and token.
func (m *Msg) Reply(c Conn, data interface{}) *Msg {
	return &Msg{From: c, Subj: m.Subj, Tok: m.Tok, Data: data}
}

func (m *Msg) String() string {
	var from int64
	if m.From != nil {
		from = m.From.ID()
	}
	res := m.Subj
	if len(m.Tok) > 0 {
		res += "#" + string(m.Tok)
	}
	return res + " from " + strconv.FormatInt(from, 10)
}

// Router routes a received message to connection.
type Router interface{ Route(*Msg) }

// Conn is a participant connected to a hub, like a websocket client, an in-process data client
// or the hub itself.
type Conn interface {
	// ID identifies the connection. The hub has id 0, one-off request connections -1 and
	// signed on connections a positive id.
	ID() int64
	// Chan returns an unchanging receiver channel. The hub sends a nil message to this
	// channel after a sign-off message from this conn was routed.
	Chan() chan<- *Msg
}

// Hub keeps the signed on connections and passes all received messages to one router. Hub
// itself is the connection with id 0 that services use as sender of their replies.
//
// One-off connections with ID -1 can send requests without sign-on. They only receive the direct
// reply and must not be kept by services. Transports sign on their connections and only
// forward messages of signed on connections.
type Hub struct {
	sync.Mutex
	conns map[int64]Conn
	queue chan *Msg
}

// NewHub creates and returns a new hub.
func NewHub() *Hub {
	return &Hub{
		conns: make(map[int64]Conn, 64),
		queue: make(chan *Msg, 128),
	}
}

func (h *Hub) ID() int64         { return 0 }
func (h *Hub) Chan() chan<- *Msg { return h.queue }

// Run routes received messages with r until Stop is called. Only the routing goroutine calls r,
// so services need no locking of their own.
func (h *Hub) Run(r Router) {
	for m := range h.queue {
		if m == nil {
			break
		}
		switch m.Subj {
		case SubjSignon:
			h.Lock()
			h.conns[m.From.ID()] = m.From
			h.Unlock()
			r.Route(m)
		case SubjSignoff:
			r.Route(m)
			h.Lock()
			delete(h.conns, m.From.ID())
			h.Unlock()
			m.From.Chan() <- nil
		default:
			r.Route(m)
		}
	}
}

// Signon sends a sign-on message for c to the hub h.
func Signon(h Conn, c Conn) { h.Chan() <- &Msg{From: c, Subj: SubjSignon} }

// Signoff sends a sign-off message for c to the hub h.
func Signoff(h Conn, c Conn) { h.Chan() <- &Msg{From: c, Subj: SubjSignoff} }

// Stop stops routing after all queued messages.
func (h *Hub) Stop() { h.queue <- nil }

// Conns returns the number of signed on connections.
func (h *Hub) Conns() int {
	h.Lock()
	defer h.Unlock()
	return len(h.conns)
}
