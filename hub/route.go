package hub

import "strings"

// RouterFunc implements Router for simple route functions.
type RouterFunc func(*Msg)

func (r RouterFunc) Route(m *Msg) { r(m) }

// Filter only routes messages with subjects accepted by the match function.
type Filter struct {
	Router
	Match func(subj string) bool
}

func (f *Filter) Route(m *Msg) {
	if f.Match == nil || f.Match(m.Subj) {
		f.Router.Route(m)
	}
}

// Subjects returns a router that routes messages to r if the subject equals one of subjs.
func Subjects(r Router, subjs ...string) *Filter {
	return &Filter{r, func(subj string) bool {
		for _, s := range subjs {
			if subj == s {
				return true
			}
		}
		return false
	}}
}

// Prefix returns a router that routes messages to r if the subject has one of the prefixes.
func Prefix(r Router, prefix ...string) *Filter {
	return &Filter{r, func(subj string) bool {
		for _, p := range prefix {
			if strings.HasPrefix(subj, p) {
				return true
			}
		}
		return false
	}}
}

// Routers is a slice of routers, all of them are called with incoming messages.
type Routers []Router

func (rs Routers) Route(m *Msg) {
	for _, r := range rs {
		r.Route(m)
	}
}
