package wshub

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/mb0/feather/hub"
	"github.com/mb0/feather/log"
)

// Serve returns a handler that upgrades requests to websocket connections signed on to h.
func Serve(h *hub.Hub, l log.Logger) http.HandlerFunc {
	l = log.Or(l)
	upgr := &websocket.Upgrader{}
	return func(w http.ResponseWriter, r *http.Request) {
		wc, err := upgr.Upgrade(w, r, nil)
		if err != nil {
			l.Error("hub ws upgrade failed", "err", err)
			return
		}
		c := newConn(hub.NextID(), wc, h.Chan(), make(chan *hub.Msg, 32))
		hub.Signon(h, c)
		go c.writeAll(l)
		err = c.readAll(c)
		hub.Signoff(h, c)
		if err != nil {
			l.Error("hub ws read failed", "conn", c.id, "err", err)
		}
	}
}
