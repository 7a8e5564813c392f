/*
Package stc provides a small hierarchical state machine, sometimes called a statechart.

A machine is a tree of named states. Composite states have child states, exactly one of them is
active unless the composite is concurrent, in which case all of its child regions are active at
the same time. The set of active leaf states is the current configuration of the machine.

States can declare entry and exit actions and event handlers. Sending an event to the machine
looks up a handler in each active leaf and its ancestors. Events without handler are silently
ignored. Components rely on that to send lifecycle events speculatively.

Composite states choose the child to enter by default from, in that order, the history if the
state remembers it, a choice function, or the first declared child. Deep history restores the
whole remembered sub-configuration.

Machines run to completion: transitions and events issued from within actions or handlers are
queued and processed after the running step finished. Machines are not safe for concurrent use.
*/
package stc

import (
	"strings"

	"github.com/mb0/feather/log"
	"github.com/pkg/errors"
)

// Action is an entry or exit action. It receives the context of the transition.
type Action func(ctx interface{})

// Handler handles an event for the state s that declared it.
type Handler func(s *State, ctx interface{})

// Guard reports whether an event handler applies for the given context.
type Guard func(ctx interface{}) bool

// Option configures a state declaration.
type Option func(*State)

type histKind uint8

const (
	histNone histKind = iota
	histShallow
	histDeep
)

// History makes a composite state re-enter its last active child by default.
func History(s *State) { s.hist = histShallow }

// DeepHistory makes a composite state restore its last active sub-configuration by default.
func DeepHistory(s *State) { s.hist = histDeep }

// Concurrent makes all child states of a composite active regions.
func Concurrent(s *State) { s.concurrent = true }

// Choice returns an option that selects the default child by name using f. The choice is
// evaluated with the transition context every time the state is entered without an explicit
// child target and without history.
func Choice(f func(ctx interface{}) string) Option {
	return func(s *State) { s.choice = f }
}

type event struct {
	h      Handler
	guards []Guard
}

// State is a node in the state tree.
type State struct {
	Name   string
	m      *Machine
	parent *State
	subs   []*State
	enter  []Action
	exit   []Action
	events map[string]event

	hist       histKind
	concurrent bool
	choice     func(interface{}) string

	active bool
	cur    *State
	last   *State
}

// Machine holds a state tree and its current configuration.
type Machine struct {
	root  *State
	busy  bool
	queue []func()
	// Log receives debug messages for entered and exited states if not nil.
	Log log.Logger
}

// Define returns a new machine with a root state declared by f. The machine is not started.
func Define(f func(*State)) *Machine {
	m := &Machine{}
	m.root = &State{m: m}
	if f != nil {
		f(m.root)
	}
	return m
}

// Root returns the root state.
func (m *Machine) Root() *State { return m.root }

// State declares and returns a child state with name. The body function f is called with the new
// state and may be nil.
func (s *State) State(name string, f func(*State), opts ...Option) *State {
	c := &State{Name: name, m: s.m, parent: s}
	for _, o := range opts {
		o(c)
	}
	s.subs = append(s.subs, c)
	if f != nil {
		f(c)
	}
	return c
}

// Enter adds an entry action and returns s.
func (s *State) Enter(a Action) *State {
	s.enter = append(s.enter, a)
	return s
}

// Exit adds an exit action and returns s.
func (s *State) Exit(a Action) *State {
	s.exit = append(s.exit, a)
	return s
}

// Event sets the handler for event name, replacing any previous one. The handler only applies if
// all guards pass, otherwise the lookup continues with the ancestors.
func (s *State) Event(name string, h Handler, guards ...Guard) *State {
	if s.events == nil {
		s.events = make(map[string]event)
	}
	s.events[name] = event{h, guards}
	return s
}

// Off disables event name for this state. The event is swallowed here and does not reach the
// handlers of ancestor states.
func (s *State) Off(name string) *State {
	return s.Event(name, nil)
}

// Parent returns the parent state or nil for the root.
func (s *State) Parent() *State { return s.parent }

// Active reports whether the state is part of the current configuration.
func (s *State) Active() bool { return s.active }

// Path returns the absolute path of the state. The root path is '/'.
func (s *State) Path() string {
	if s.parent == nil {
		return "/"
	}
	p := s.parent.Path()
	if p == "/" {
		return p + s.Name
	}
	return p + "/" + s.Name
}

// Sub returns the direct child state with name or nil.
func (s *State) Sub(name string) *State {
	for _, c := range s.subs {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Resolve returns the state at path relative to s or nil. Absolute paths start with a slash and
// are resolved from the root. The segments '.' and '..' refer to the state and its parent.
func (s *State) Resolve(path string) *State {
	cur := s
	if strings.HasPrefix(path, "/") {
		cur = s.m.root
	}
	for _, seg := range strings.Split(path, "/") {
		switch seg {
		case "", ".":
		case "..":
			cur = cur.parent
		default:
			cur = cur.Sub(seg)
		}
		if cur == nil {
			return nil
		}
	}
	return cur
}

// Resolve returns the state at the absolute path or nil.
func (m *Machine) Resolve(path string) *State { return m.root.Resolve(path) }

// GotoOpt configures a transition.
type GotoOpt func(*gotoOpts)

type gotoOpts struct {
	force bool
	ctx   interface{}
}

// Force makes a transition exit and re-enter the target even if it is already active.
func Force() GotoOpt { return func(o *gotoOpts) { o.force = true } }

// With sets the context passed to all entry and exit actions of a transition.
func With(ctx interface{}) GotoOpt { return func(o *gotoOpts) { o.ctx = ctx } }

// Goto transitions to the state at path relative to s. An error is returned if the path cannot
// be resolved. The transition is queued if the machine is busy.
func (s *State) Goto(path string, opts ...GotoOpt) error {
	t := s.Resolve(path)
	if t == nil {
		return errors.Errorf("stc: no state %q from %s", path, s.Path())
	}
	var o gotoOpts
	for _, opt := range opts {
		opt(&o)
	}
	s.m.run(func() { s.m.transition(t, o) })
	return nil
}

// Goto transitions to the state at the absolute path. Use '/' to start the machine.
func (m *Machine) Goto(path string, opts ...GotoOpt) error {
	return m.root.Goto(path, opts...)
}

// Send dispatches the event name with ctx to the current configuration. Unhandled events are
// ignored. The event is queued if the machine is busy.
func (m *Machine) Send(name string, ctx interface{}) {
	m.run(func() { m.dispatch(name, ctx) })
}

// Queue runs f after all pending transitions and events, or immediately if the machine is idle.
func (m *Machine) Queue(f func()) { m.run(f) }

// Current returns the paths of all active leaf states in declaration order.
func (m *Machine) Current() []string {
	var res []string
	for _, l := range m.leaves(nil, m.root) {
		res = append(res, l.Path())
	}
	return res
}

// Is reports whether the state at the absolute path is active.
func (m *Machine) Is(path string) bool {
	s := m.root.Resolve(path)
	return s != nil && s.active
}

// Handles reports whether event name would currently be handled by any active state.
func (m *Machine) Handles(name string) bool {
	for _, l := range m.leaves(nil, m.root) {
		for s := l; s != nil; s = s.parent {
			if ev, ok := s.events[name]; ok {
				if ev.h != nil {
					return true
				}
				break
			}
		}
	}
	return false
}

func (m *Machine) run(op func()) {
	m.queue = append(m.queue, op)
	if m.busy {
		return
	}
	m.busy = true
	defer func() {
		m.busy = false
		m.queue = m.queue[:0]
	}()
	for len(m.queue) > 0 {
		op := m.queue[0]
		m.queue = m.queue[1:]
		op()
	}
}

func (m *Machine) leaves(res []*State, s *State) []*State {
	if !s.active {
		return res
	}
	if s.concurrent {
		for _, c := range s.subs {
			res = m.leaves(res, c)
		}
		return res
	}
	if s.cur != nil {
		return m.leaves(res, s.cur)
	}
	return append(res, s)
}

func (m *Machine) dispatch(name string, ctx interface{}) {
	var seen map[*State]bool
	for _, l := range m.leaves(nil, m.root) {
	Lookup:
		for s := l; s != nil; s = s.parent {
			ev, ok := s.events[name]
			if !ok {
				continue
			}
			if ev.h == nil {
				break
			}
			for _, g := range ev.guards {
				if !g(ctx) {
					continue Lookup
				}
			}
			if seen[s] {
				break
			}
			if seen == nil {
				seen = make(map[*State]bool)
			}
			seen[s] = true
			ev.h(s, ctx)
			break
		}
	}
}

func (m *Machine) transition(t *State, o gotoOpts) {
	var path []*State
	for s := t; s != nil; s = s.parent {
		path = append(path, nil)
		copy(path[1:], path)
		path[0] = s
	}
	i := 0
	for i < len(path) && path[i].active {
		i++
	}
	if i == len(path) {
		if !o.force {
			return
		}
		i--
		m.exitTree(t, o.ctx)
	} else if i > 0 {
		if p := path[i-1]; !p.concurrent && p.cur != nil {
			m.exitTree(p.cur, o.ctx)
		}
	}
	m.enterDown(path[i], path[i+1:], o.ctx)
}

func (m *Machine) exitTree(s *State, ctx interface{}) {
	if s.concurrent {
		for i := len(s.subs) - 1; i >= 0; i-- {
			if c := s.subs[i]; c.active {
				m.exitTree(c, ctx)
			}
		}
	} else if s.cur != nil {
		m.exitTree(s.cur, ctx)
	}
	for _, a := range s.exit {
		a(ctx)
	}
	s.active = false
	if p := s.parent; p != nil && p.cur == s {
		p.cur = nil
	}
	if m.Log != nil {
		m.Log.Debug("exit", "state", s.Path())
	}
}

func (m *Machine) enterSelf(s *State, ctx interface{}) {
	s.active = true
	if p := s.parent; p != nil {
		if !p.concurrent {
			p.cur = s
		}
		p.last = s
	}
	if m.Log != nil {
		m.Log.Debug("enter", "state", s.Path())
	}
	for _, a := range s.enter {
		a(ctx)
	}
}

func (m *Machine) enterDown(s *State, rest []*State, ctx interface{}) {
	m.enterSelf(s, ctx)
	if len(rest) == 0 {
		m.enterDefault(s, ctx, false)
		return
	}
	next := rest[0]
	if !s.concurrent {
		m.enterDown(next, rest[1:], ctx)
		return
	}
	for _, c := range s.subs {
		if c == next {
			m.enterDown(c, rest[1:], ctx)
		} else {
			m.enterSelf(c, ctx)
			m.enterDefault(c, ctx, false)
		}
	}
}

func (m *Machine) enterDefault(s *State, ctx interface{}, deep bool) {
	if len(s.subs) == 0 {
		return
	}
	if s.concurrent {
		for _, c := range s.subs {
			m.enterSelf(c, ctx)
			m.enterDefault(c, ctx, deep)
		}
		return
	}
	var next *State
	deep = deep || s.hist == histDeep
	if (deep || s.hist == histShallow) && s.last != nil {
		next = s.last
	} else {
		deep = false
		if s.choice != nil {
			next = s.Sub(s.choice(ctx))
		}
		if next == nil {
			next = s.subs[0]
		}
	}
	m.enterSelf(next, ctx)
	m.enterDefault(next, ctx, deep)
}

// View is a read-only handle to a machine that only allows inspecting and sending events.
type View struct{ m *Machine }

// View returns a read-only handle to m.
func (m *Machine) View() View { return View{m} }

// Current returns the paths of all active leaf states.
func (v View) Current() []string { return v.m.Current() }

// Is reports whether the state at the absolute path is active.
func (v View) Is(path string) bool { return v.m.Is(path) }

// Send dispatches an event without context.
func (v View) Send(name string) { v.m.Send(name, nil) }
