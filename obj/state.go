package obj

import (
	"github.com/mb0/feather/stc"
)

// keep is the transition context for returning to Ready without clearing property values.
type keep struct{}

func goTo(path string) stc.Handler {
	return func(s *stc.State, _ interface{}) { s.Goto(path) }
}

func (m *Model) define() *stc.Machine {
	return stc.Define(func(s *stc.State) {
		s.State("Ready", func(s *stc.State) {
			s.Enter(func(interface{}) {
				if m.frozen != nil {
					m.thaw()
				}
			})
			s.Event("fetch", func(s *stc.State, ctx interface{}) {
				s.Goto("/Busy/Fetching", stc.With(ctx))
			})
			s.State("New", func(s *stc.State) {
				s.Enter(m.doClear)
				s.Event("clear", func(s *stc.State, _ interface{}) {
					s.Goto("/Ready/New", stc.Force())
				})
				s.Event("save", m.save("/Busy/Saving"))
				s.Event("delete", goTo("/Delete"))
			})
			s.State("Fetched", func(s *stc.State) {
				s.Enter(func(interface{}) { m.fetched = true })
				s.Event("clear", goTo("/Ready/New"))
				s.Event("delete", goTo("/Delete"))
				s.State("Clean", func(s *stc.State) {
					s.Event("changed", goTo("../Dirty"))
				})
				s.State("Dirty", func(s *stc.State) {
					s.Event("undo", func(s *stc.State, _ interface{}) {
						m.revert()
						s.Goto("../Clean")
					})
					s.Event("save", m.save("/Busy/Saving/Patching"))
				})
			}, stc.History)
		}, stc.DeepHistory)
		s.State("Busy", func(s *stc.State) {
			s.Event("fetched", goTo("/Ready/Fetched/Clean"))
			s.Event("error", func(s *stc.State, _ interface{}) {
				s.Goto("/Ready", stc.With(keep{}))
			})
			s.State("Fetching", func(s *stc.State) {
				s.Enter(m.doFetch)
			})
			s.State("Saving", func(s *stc.State) {
				s.State("Posting", func(s *stc.State) { s.Enter(m.doPost) })
				s.State("Patching", func(s *stc.State) { s.Enter(m.doPatch) })
			}, stc.Choice(func(interface{}) string {
				if m.fetched {
					return "Patching"
				}
				return "Posting"
			}))
			s.State("Deleting", func(s *stc.State) {
				s.Enter(m.doDelete)
				s.Event("deleted", goTo("/Deleted"))
			})
		})
		s.State("Delete", func(s *stc.State) {
			s.Enter(func(interface{}) { m.freeze() })
			s.Event("save", func(s *stc.State, ctx interface{}) {
				if m.fetched {
					s.Goto("/Busy/Deleting", stc.With(ctx))
					return
				}
				s.Goto("/Deleted")
				if t, ok := ctx.(*Task); ok {
					t.resolve(true)
				}
			})
			s.Event("undo", func(s *stc.State, _ interface{}) {
				s.Goto("/Ready", stc.With(keep{}))
			})
		})
		s.State("Deleted", func(s *stc.State) {
			s.Event("clear", goTo("/Ready/New"))
		})
	})
}

// save returns the save handler that moves valid models to the busy state at path.
func (m *Model) save(path string) stc.Handler {
	return func(s *stc.State, ctx interface{}) {
		if !m.IsValid() {
			if t, ok := ctx.(*Task); ok {
				t.reject(m.lastErr)
			}
			return
		}
		s.Goto(path, stc.With(ctx))
	}
}

func (m *Model) doClear(ctx interface{}) {
	if _, ok := ctx.(keep); ok {
		return
	}
	m.fetched = false
	m.lastFetched = nil
	if m.seeded {
		m.seeded = false
		return
	}
	defs := make(map[string]interface{}, len(m.keys))
	for _, k := range m.keys {
		defs[k] = m.data[k].Default()
	}
	err := m.Set(defs, true, false)
	if err != nil {
		m.log.Error("clear failed", "err", err)
	}
}

func (m *Model) revert() {
	err := m.Set(m.lastFetched, true, true)
	if err != nil {
		m.log.Error("undo failed", "err", err)
	}
}

func (m *Model) freeze() {
	m.frozen = make(map[string]bool, len(m.keys))
	for _, k := range m.keys {
		p := m.data[k]
		m.frozen[k] = p.IsReadOnly()
		p.SetReadOnly(true)
	}
	m.SendToProperties("disable")
}

func (m *Model) thaw() {
	for k, ro := range m.frozen {
		m.data[k].SetReadOnly(ro)
	}
	m.frozen = nil
	m.SendToProperties("enable")
}
