package hub

import "github.com/pkg/errors"

// ErrNoService is returned for messages with a subject no service handles.
var ErrNoService = errors.New("no service")

// Service answers the requests of one subject.
type Service interface {
	// Serve handles the message and returns the reply data or nil for no reply.
	Serve(*Msg) interface{}
}

// ServiceFunc implements Service for simple functions.
type ServiceFunc func(*Msg) interface{}

func (f ServiceFunc) Serve(m *Msg) interface{} { return f(m) }

// Services maps message subjects to services.
type Services map[string]Service

// Handle calls the service for the subject of m. Reply data is sent back to the sender from c
// with the request token, unless c is nil.
func (s Services) Handle(m *Msg, c Conn) error {
	f := s[m.Subj]
	if f == nil {
		return errors.Wrapf(ErrNoService, "subject %s", m.Subj)
	}
	res := f.Serve(m)
	if res != nil && c != nil {
		m.From.Chan() <- m.Reply(c, res)
	}
	return nil
}
