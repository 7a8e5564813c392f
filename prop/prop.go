// Package prop provides property cells, reactive value slots with their own lifecycle.
//
// A cell is in one of the states Ready, Changing, Silent or Disabled. Writes to a ready cell pass
// through Changing, where change hooks can inspect and replace the new value. Silent cells commit
// writes without any hooks. Disabled cells revert every write.
package prop

import (
	"encoding/json"
	"reflect"
	"strings"

	"github.com/mb0/feather/dom"
	"github.com/mb0/feather/stc"
	"github.com/pkg/errors"
)

// Plainer is implemented by stored values that have their own plain data representation, like
// nested models and child collections.
type Plainer interface {
	Plain() interface{}
}

// Hook is called with the cell on state changes.
type Hook func(p *Prop)

// Prop is a property cell. Cells are not safe for concurrent use.
type Prop struct {
	Key         string
	Description string
	Type        string
	Format      string
	Kind        dom.Kind

	f        Formatter
	def      func() interface{}
	store    interface{}
	newVal   interface{}
	oldVal   interface{}
	readOnly bool
	required bool
	m        *stc.Machine
}

// New returns a cell with the initial value val converted by f or an error.
func New(val interface{}, f Formatter) (*Prop, error) {
	store, err := f.toType(val)
	if err != nil {
		return nil, err
	}
	p := &Prop{f: f, store: store}
	p.m = stc.Define(func(s *stc.State) {
		s.State("Ready", func(s *stc.State) {
			s.Event("change", goTo("../Changing"))
			s.Event("silence", goTo("../Silent"))
			s.Event("disable", goTo("../Disabled"))
		})
		s.State("Changing", func(s *stc.State) {
			s.Event("changed", goTo("../Ready"))
		})
		s.State("Silent", func(s *stc.State) {
			s.Event("report", goTo("../Ready"))
			s.Event("disable", goTo("../Disabled"))
		})
		s.State("Disabled", func(s *stc.State) {
			s.Event("changed", func(*stc.State, interface{}) { p.store = p.oldVal })
			s.Event("enable", goTo("../Ready"))
		})
	})
	p.m.Goto("/")
	return p, nil
}

func goTo(path string) stc.Handler {
	return func(s *stc.State, _ interface{}) { s.Goto(path) }
}

// Declare returns a cell for the scalar declaration dp initialized to its default value.
func Declare(dp *dom.Prop) (*Prop, error) {
	f := Lookup(dp)
	def, err := defaultFunc(dp, f)
	if err != nil {
		return nil, err
	}
	var val interface{}
	if def != nil {
		val = def()
	}
	p, err := New(val, f)
	if err != nil {
		return nil, errors.Wrapf(err, "default of %s", dp.Key)
	}
	p.def = def
	return p.Describe(dp), nil
}

func defaultFunc(dp *dom.Prop, f Formatter) (func() interface{}, error) {
	if !dp.HasDefault && dp.Default == nil {
		return f.Default, nil
	}
	if s, ok := dp.Default.(string); ok && strings.HasSuffix(s, "()") {
		fn := DefaultFuncs[strings.TrimSuffix(s, "()")]
		if fn == nil {
			return nil, errors.Errorf("unknown default function %s for %s", s, dp.Key)
		}
		return fn, nil
	}
	val := dp.Default
	return func() interface{} { return val }, nil
}

// Describe copies the declared metadata and flags of dp to p and returns p.
func (p *Prop) Describe(dp *dom.Prop) *Prop {
	p.Key = dp.Key
	p.Description = dp.Description
	p.Type = dp.Type
	p.Format = dp.Format
	p.Kind = dp.Kind
	p.readOnly = dp.ReadOnly
	p.required = dp.Required
	return p
}

// Get returns the formatted value.
func (p *Prop) Get() interface{} { return p.f.fromType(p.store) }

// Set writes v to the cell. Writing a value equal to the store after conversion does nothing.
// Conversion errors are returned without any state change.
func (p *Prop) Set(v interface{}) error {
	proposed, err := p.f.toType(v)
	if err != nil {
		return errors.Wrapf(err, "set %s", p.Key)
	}
	if Same(proposed, p.store) {
		return nil
	}
	p.newVal, p.oldVal = proposed, p.store
	p.m.Send("change", nil)
	p.store = p.newVal
	p.m.Send("changed", nil)
	p.newVal, p.oldVal = nil, nil
	return nil
}

// Mutate calls fn, which changes the stored value in place, between the change and changed
// events. It returns an error for disabled cells, where fn is not called.
func (p *Prop) Mutate(fn func()) error {
	if p.m.Is("/Disabled") {
		return errors.Errorf("%s is disabled", p.Key)
	}
	p.newVal, p.oldVal = p.store, p.store
	p.m.Send("change", nil)
	fn()
	p.m.Send("changed", nil)
	p.newVal, p.oldVal = nil, nil
	return nil
}

// NewValue returns the value being written while the cell is changing.
func (p *Prop) NewValue() interface{} { return p.f.fromType(p.newVal) }

// SetNewValue replaces the value being written. It only has an effect while the cell is changing
// and returns conversion errors.
func (p *Prop) SetNewValue(v interface{}) error {
	if !p.m.Is("/Changing") {
		return nil
	}
	nv, err := p.f.toType(v)
	if err != nil {
		return errors.Wrapf(err, "new value of %s", p.Key)
	}
	p.newVal = nv
	return nil
}

// OldValue returns the previous value while the cell is changing.
func (p *Prop) OldValue() interface{} { return p.f.fromType(p.oldVal) }

func (p *Prop) IsReadOnly() bool { return p.readOnly }
func (p *Prop) SetReadOnly(ro bool) { p.readOnly = ro }
func (p *Prop) IsRequired() bool { return p.required }
func (p *Prop) SetRequired(req bool) { p.required = req }
func (p *Prop) IsToOne() bool { return p.Kind == dom.ToOne }
func (p *Prop) IsToMany() bool { return p.Kind == dom.ToMany }
func (p *Prop) IsChild() bool { return p.Kind == dom.ChildOf }
func (p *Prop) State() stc.View { return p.m.View() }
func (p *Prop) Formatter() Formatter { return p.f }
func (p *Prop) Store() interface{} { return p.store }

// Default returns a new formatted default value or nil.
func (p *Prop) Default() interface{} {
	if p.def == nil {
		return nil
	}
	v, err := p.f.toType(p.def())
	if err != nil {
		return nil
	}
	return p.f.fromType(v)
}

// SetDefault sets the default function.
func (p *Prop) SetDefault(def func() interface{}) { p.def = def }

// OnChange adds a hook called before a write is committed.
func (p *Prop) OnChange(h Hook) {
	p.m.Resolve("/Changing").Enter(func(interface{}) { h(p) })
}

// OnChanged adds a hook called after a write was committed.
func (p *Prop) OnChanged(h Hook) {
	p.m.Resolve("/Changing").Exit(func(interface{}) { h(p) })
}

// JSON returns the plain data representation of the store.
func (p *Prop) JSON() interface{} {
	if pl, ok := p.store.(Plainer); ok {
		return pl.Plain()
	}
	return p.store
}

func (p *Prop) MarshalJSON() ([]byte, error) { return json.Marshal(p.JSON()) }

// Same reports whether a and b are equal stored values.
func Same(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) {
		return false
	}
	if ta.Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}
