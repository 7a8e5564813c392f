package hub

import (
	"strconv"
	"sync"

	"github.com/pkg/errors"
)

// RequestMap notes request senders and their tokens and forwards responses with matching tokens.
// It is safe for concurrent use.
type RequestMap struct {
	mu   sync.Mutex
	last int64
	m    map[int64]req
}

// Note remembers the sender and token of m and returns a new token for the forwarded request.
func (r *RequestMap) Note(m *Msg) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last++
	if r.m == nil {
		r.m = make(map[int64]req)
	}
	r.m[r.last] = req{m.From, m.Tok}
	return strconv.AppendInt(nil, r.last, 16)
}

// Response sends a copy of m with the original token to the noted sender.
func (r *RequestMap) Response(m *Msg) error {
	if len(m.Tok) == 0 {
		return errors.Errorf("empty token for response %s", m.Subj)
	}
	tok := string(m.Tok)
	id, err := strconv.ParseInt(tok, 16, 64)
	if err != nil {
		return errors.Wrapf(err, "invalid token %s", tok)
	}
	r.mu.Lock()
	req, ok := r.m[id]
	delete(r.m, id)
	r.mu.Unlock()
	if !ok {
		return errors.Errorf("no request with token %s", tok)
	}
	n := *m
	n.Tok = req.tok
	req.Chan() <- &n
	return nil
}

// Close sends nil to all waiting senders and forgets them.
func (r *RequestMap) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, req := range r.m {
		req.Chan() <- nil
		delete(r.m, id)
	}
}

type req struct {
	Conn
	tok []byte
}
