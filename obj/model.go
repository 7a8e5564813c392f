// Package obj provides models, property cells aggregated under one lifecycle that fetch, save
// and delete their data through a data source.
//
// A model starts in Ready/New. Fetching or saving moves it through Busy to Ready/Fetched/Clean,
// where any tracked property change makes it Dirty. Saving a dirty model sends a patch of the
// changes since the last fetch. Deleting freezes all properties until the deletion is committed
// or undone.
//
// Data source requests run on their own goroutine and never block the caller. The response is
// applied when the owner waits for the returned task. Models are not safe for concurrent use.
package obj

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mb0/feather/dom"
	"github.com/mb0/feather/log"
	"github.com/mb0/feather/patch"
	"github.com/mb0/feather/prop"
	"github.com/mb0/feather/src"
	"github.com/mb0/feather/stc"
	"github.com/pkg/errors"
)

// Model is a record of a feather with one property cell per key.
type Model struct {
	Name    string
	Plural  string
	Feather *dom.Feather

	reg  *Registry
	log  log.Logger
	m    *stc.Machine
	keys []string
	data map[string]*prop.Prop

	seeded      bool
	fetched     bool
	nested      bool
	lastFetched map[string]interface{}
	lastErr     error
	pending     *Task
	validators  []Validator
	onError     []func(error)
	frozen      map[string]bool
}

// NewModel returns a model for feather f seeded with data or an error. Most callers should use
// Registry.New, which respects registered constructors.
func NewModel(r *Registry, f *dom.Feather, data map[string]interface{}) (*Model, error) {
	m := &Model{Name: f.Name, Plural: f.Plural, Feather: f, reg: r,
		data: make(map[string]*prop.Prop, len(f.Props)),
	}
	m.log = log.Or(r.Log).With("model", f.Name)
	for _, dp := range f.Props {
		var p *prop.Prop
		var err error
		switch dp.Kind {
		case dom.ChildOf:
			continue
		case dom.ToOne:
			p, err = m.toOne(dp)
		case dom.ToMany:
			p, err = m.toMany(dp)
		default:
			p, err = prop.Declare(dp)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "model %s", f.Name)
		}
		p.OnChanged(m.propChanged)
		m.keys = append(m.keys, dp.Key)
		m.data[dp.Key] = p
	}
	m.m = m.define()
	m.m.Log = m.log
	m.mirror()
	m.OnValidate(validateRequired)
	set, err := r.ruleSet(f)
	if err != nil {
		return nil, err
	}
	if set != nil {
		m.OnValidate(ruleValidator(set))
	}
	if len(data) > 0 {
		err = m.Set(data, true, false)
		if err != nil {
			return nil, errors.Wrapf(err, "model %s", f.Name)
		}
		m.seeded = true
	}
	m.m.Goto("/")
	return m, nil
}

func (m *Model) propChanged(*prop.Prop) { m.m.Send("changed", nil) }

// Set writes data to the properties in declaration order. Silent writes do not call any change
// hooks and do not change the model state. If isLastFetched is true a copy of data is kept as
// the base for the next patch. The first conversion error or unknown key is returned.
func (m *Model) Set(data map[string]interface{}, silent, isLastFetched bool) error {
	if isLastFetched {
		lf, err := plainMap(data)
		if err != nil {
			return err
		}
		m.lastFetched = lf
	}
	var res error
	for k := range data {
		if m.data[k] == nil {
			if dp := m.Feather.Prop(k); dp == nil || dp.Kind != dom.ChildOf {
				res = errors.Errorf("%s has no property %s", m.Name, k)
			}
		}
	}
	if silent {
		m.SendToProperties("silence")
	}
	for _, k := range m.keys {
		v, ok := data[k]
		if !ok {
			continue
		}
		err := m.data[k].Set(v)
		if err != nil && res == nil {
			res = err
		}
	}
	if silent {
		m.SendToProperties("report")
	}
	return res
}

// SendToProperties sends the event to all property cells.
func (m *Model) SendToProperties(event string) {
	for _, k := range m.keys {
		m.data[k].State().Send(event)
	}
}

// Fetch requests the record by id and resolves with the model. Fetch, Save and Delete return
// while the request is running, see Task.
func (m *Model) Fetch(ctx context.Context) *Task { return m.send("fetch", ctx) }

// Save posts a new or patches a dirty model and resolves with the model. In Delete it commits
// the deletion and resolves with true. Invalid models are not saved and the task is rejected
// with the validation error.
func (m *Model) Save(ctx context.Context) *Task { return m.send("save", ctx) }

// Delete marks the model for deletion. With autoCommit the deletion is saved immediately and
// the task resolves with true, otherwise it resolves with false.
func (m *Model) Delete(ctx context.Context, autoCommit bool) *Task {
	t := newTask(ctx)
	m.m.Send("delete", t)
	if autoCommit && m.m.Is("/Delete") {
		return m.send("save", ctx)
	}
	t.resolve(false)
	return t
}

// Clear resets a new or fetched model to default values.
func (m *Model) Clear() { m.m.Send("clear", nil) }

// Undo reverts a dirty model to the last fetched data or cancels a pending deletion.
func (m *Model) Undo() { m.m.Send("undo", nil) }

func (m *Model) send(event string, ctx context.Context) *Task {
	t := newTask(ctx)
	m.m.Send(event, t)
	if !t.settled() && t.reply == nil {
		t.resolve(m)
	}
	return t
}

// Pending returns the task of the running data source request or nil.
func (m *Model) Pending() *Task { return m.pending }

// Settle waits for the running data source request and applies its response. It returns the
// error of the request task or nil if no request is running.
func (m *Model) Settle(ctx context.Context) error {
	t := m.pending
	if t == nil {
		return nil
	}
	_, err := t.Wait(ctx)
	return err
}

// CanUndo reports whether the model is dirty or marked for deletion.
func (m *Model) CanUndo() bool { return m.m.Is("/Ready/Fetched/Dirty") || m.m.Is("/Delete") }

// CanDelete reports whether the model is new or clean.
func (m *Model) CanDelete() bool { return m.m.Is("/Ready/New") || m.m.Is("/Ready/Fetched/Clean") }

// OnChange adds a hook to the property key called before a write is committed.
func (m *Model) OnChange(key string, h prop.Hook) error {
	p, err := m.Prop(key)
	if err != nil {
		return err
	}
	p.OnChange(h)
	return nil
}

// OnChanged adds a hook to the property key called after a write was committed.
func (m *Model) OnChanged(key string, h prop.Hook) error {
	p, err := m.Prop(key)
	if err != nil {
		return err
	}
	p.OnChanged(h)
	return nil
}

// OnError adds a handler called with validation and request errors.
func (m *Model) OnError(h func(error)) { m.onError = append(m.onError, h) }

// State returns a read-only view of the model state machine.
func (m *Model) State() stc.View { return m.m.View() }

// Data returns the property cell for key or nil.
func (m *Model) Data(key string) *prop.Prop { return m.data[key] }

// Prop returns the property cell for key or an error.
func (m *Model) Prop(key string) (*prop.Prop, error) {
	p := m.data[key]
	if p == nil {
		return nil, errors.Errorf("%s has no property %s", m.Name, key)
	}
	return p, nil
}

// Keys returns the property keys in declaration order.
func (m *Model) Keys() []string { return m.keys }

// ID returns the identity property value as string.
func (m *Model) ID() string {
	p := m.data[m.Feather.ID()]
	if p == nil {
		return ""
	}
	switch v := p.Get().(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// Path returns the data path of the model.
func (m *Model) Path() string { return src.Path(m.Name, m.ID()) }

// LastError returns the last validation or request error.
func (m *Model) LastError() error { return m.lastErr }

// LastFetched returns the plain data of the last fetch or save. It must not be modified.
func (m *Model) LastFetched() map[string]interface{} { return m.lastFetched }

// JSON returns the plain data of all properties.
func (m *Model) JSON() map[string]interface{} {
	res := make(map[string]interface{}, len(m.keys))
	for _, k := range m.keys {
		res[k] = m.data[k].JSON()
	}
	return res
}

// Plain returns the plain data of all properties. Models stored in cells use it for their JSON.
func (m *Model) Plain() interface{} { return m.JSON() }

func (m *Model) MarshalJSON() ([]byte, error) { return json.Marshal(m.JSON()) }

func (m *Model) String() string { return m.Name + " " + m.ID() }

// loaded sets data as last fetched and moves the model to Ready/Fetched/Clean.
func (m *Model) loaded(data map[string]interface{}) error {
	err := m.Set(data, true, true)
	if err != nil {
		return err
	}
	m.m.Goto("/Ready/Fetched/Clean")
	return nil
}

func plainMap(data map[string]interface{}) (map[string]interface{}, error) {
	if data == nil {
		return map[string]interface{}{}, nil
	}
	v, err := patch.Normalize(data)
	if err != nil {
		return nil, errors.Wrap(err, "normalize data")
	}
	res, _ := v.(map[string]interface{})
	return res, nil
}
