// Package wshub connects hub participants over websockets.
//
// Each websocket text message is one hub message framed as subject, an optional '#' and token,
// and an optional newline followed by the JSON body:
//
//	data#1a
//	{"method":"GET","path":"/data/contact/c1"}
package wshub

import (
	"bytes"
	"encoding/json"
	"io"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mb0/feather/hub"
	"github.com/mb0/feather/log"
	"github.com/pkg/errors"
)

const (
	writeTimeout = 10 * time.Second
	pingPeriod   = 60 * time.Second
)

type conn struct {
	id    int64
	wc    *websocket.Conn
	route chan<- *hub.Msg
	send  chan *hub.Msg
}

func newConn(id int64, wc *websocket.Conn, route chan<- *hub.Msg, send chan *hub.Msg) *conn {
	return &conn{id: id, wc: wc, route: route, send: send}
}

func (c *conn) ID() int64             { return c.id }
func (c *conn) Chan() chan<- *hub.Msg { return c.send }

// readAll routes all received messages from the sender from until the connection is closed.
func (c *conn) readAll(from hub.Conn) error {
	for {
		op, r, err := c.wc.NextReader()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil
			}
			return errors.Wrap(err, "wshub next reader")
		}
		if op == websocket.BinaryMessage {
			return errors.New("wshub unexpected binary message")
		}
		if op != websocket.TextMessage {
			continue
		}
		m, err := readMsg(r)
		if err != nil {
			return errors.Wrap(err, "wshub msg read failed")
		}
		m.From = from
		c.route <- m
	}
}

// writeAll writes all messages from the send channel and pings the peer periodically. It closes
// the websocket connection when a nil message is received or writing fails.
func (c *conn) writeAll(l log.Logger) {
	t := time.NewTicker(pingPeriod)
	defer t.Stop()
	defer c.wc.Close()
	for {
		select {
		case msg := <-c.send:
			if msg == nil {
				c.wc.SetWriteDeadline(time.Now().Add(writeTimeout))
				c.wc.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			err := c.writeMsg(msg)
			if err != nil {
				l.Error("wshub write failed", "conn", c.id, "subj", msg.Subj, "err", err)
				return
			}
		case <-t.C:
			c.wc.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := c.wc.WriteMessage(websocket.PingMessage, nil)
			if err != nil {
				return
			}
		}
	}
}

func readMsg(r io.Reader) (*hub.Msg, error) {
	var b bytes.Buffer
	_, err := b.ReadFrom(r)
	if err != nil {
		return nil, err
	}
	var tok, body []byte
	head := b.Bytes()
	idx := bytes.IndexByte(head, '\n')
	if idx >= 0 {
		head, body = head[:idx], head[idx+1:]
	}
	idx = bytes.IndexByte(head, '#')
	if idx >= 0 {
		head, tok = head[:idx], head[idx+1:]
	}
	if len(head) == 0 {
		return nil, errors.New("message without subject")
	}
	return &hub.Msg{
		Subj: string(head),
		Tok:  copyBytes(tok),
		Raw:  copyBytes(bytes.TrimSpace(body)),
	}, nil
}

func (c *conn) writeMsg(msg *hub.Msg) error {
	var b bytes.Buffer
	err := writeMsgTo(&b, msg)
	if err != nil {
		return err
	}
	c.wc.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.wc.WriteMessage(websocket.TextMessage, b.Bytes())
}

func writeMsgTo(b *bytes.Buffer, m *hub.Msg) error {
	b.WriteString(m.Subj)
	if len(m.Tok) != 0 {
		b.WriteByte('#')
		b.Write(m.Tok)
	}
	if len(m.Raw) != 0 {
		b.WriteByte('\n')
		b.Write(m.Raw)
		return nil
	}
	if m.Data != nil {
		b.WriteByte('\n')
		return json.NewEncoder(b).Encode(m.Data)
	}
	return nil
}

func copyBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	res := make([]byte, len(b))
	copy(res, b)
	return res
}
