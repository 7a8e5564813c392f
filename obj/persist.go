package obj

import (
	"context"
	"encoding/json"

	"github.com/mb0/feather/patch"
	"github.com/mb0/feather/src"
	"github.com/pkg/errors"
)

func taskOf(ctx interface{}) *Task {
	if t, ok := ctx.(*Task); ok {
		return t
	}
	return newTask(nil)
}

// request starts req on the data source and returns. The response is handed to then when the
// owner of the model waits for t. The event and value returned by then finish the task.
func (m *Model) request(t *Task, req *src.Request, then func(json.RawMessage) (string, interface{}, error)) {
	s := m.reg.Source
	if s == nil {
		m.fail(t, src.Wrap(req, errors.New("no data source")))
		return
	}
	m.log.Debug("request", "req", req)
	m.pending = t
	t.start(func(ctx context.Context) (json.RawMessage, error) {
		return s.Request(ctx, req)
	}, func(res json.RawMessage, err error) {
		m.pending = nil
		if err != nil {
			m.log.Debug("request failed", "req", req, "err", err)
			m.fail(t, src.Wrap(req, err))
			return
		}
		event, val, err := then(res)
		if err != nil {
			m.fail(t, err)
			return
		}
		m.done(t, event, val)
	})
}

// done sends the event and resolves t with val once the resulting transition has finished.
func (m *Model) done(t *Task, event string, val interface{}) {
	m.m.Send(event, nil)
	m.m.Queue(func() { t.resolve(val) })
}

func (m *Model) fail(t *Task, err error) {
	m.doError(err)
	t.reject(err)
}

func (m *Model) doError(err error) {
	m.lastErr = err
	for _, h := range m.onError {
		h(err)
	}
	m.m.Send("error", nil)
}

func (m *Model) doFetch(ctx interface{}) {
	if m.nested {
		return
	}
	m.request(taskOf(ctx), &src.Request{Method: src.GET, Path: m.Path()},
		func(res json.RawMessage) (string, interface{}, error) {
			var data map[string]interface{}
			err := json.Unmarshal(res, &data)
			if err != nil {
				return "", nil, errors.Wrap(err, "decode fetch result")
			}
			err = m.Set(data, true, true)
			if err != nil {
				return "", nil, err
			}
			return "fetched", m, nil
		})
}

func (m *Model) doPost(ctx interface{}) {
	t := taskOf(ctx)
	doc, err := plainMap(m.JSON())
	if err != nil {
		m.fail(t, err)
		return
	}
	m.request(t, &src.Request{Method: src.POST, Path: src.Path(m.Plural, ""), Data: doc},
		func(res json.RawMessage) (string, interface{}, error) {
			return "fetched", m, m.merge(doc, res)
		})
}

func (m *Model) doPatch(ctx interface{}) {
	t := taskOf(ctx)
	ops, err := patch.Diff(m.lastFetched, m.JSON())
	if err != nil {
		m.fail(t, err)
		return
	}
	if ops == nil {
		ops = patch.Patch{}
	}
	doc, err := patch.Apply(m.lastFetched, ops)
	if err != nil {
		m.fail(t, err)
		return
	}
	m.request(t, &src.Request{Method: src.PATCH, Path: m.Path(), Data: ops},
		func(res json.RawMessage) (string, interface{}, error) {
			return "fetched", m, m.merge(doc, res)
		})
}

func (m *Model) doDelete(ctx interface{}) {
	m.request(taskOf(ctx), &src.Request{Method: src.DELETE, Path: m.Path()},
		func(res json.RawMessage) (string, interface{}, error) {
			p, err := patch.Decode(res)
			if err != nil {
				return "", nil, err
			}
			if len(p) > 0 {
				// the properties are frozen, only the last fetched data takes the response
				lf, err := patch.Apply(m.lastFetched, p)
				if err != nil {
					return "", nil, err
				}
				m.lastFetched = lf
			}
			return "deleted", true, nil
		})
}

// merge applies the response patch res to doc and silently sets the result as last fetched.
func (m *Model) merge(doc map[string]interface{}, res json.RawMessage) error {
	p, err := patch.Decode(res)
	if err != nil {
		return err
	}
	doc, err = patch.Apply(doc, p)
	if err != nil {
		return err
	}
	return m.Set(doc, true, true)
}
