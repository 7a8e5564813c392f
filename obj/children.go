package obj

import (
	"github.com/mb0/feather/dom"
	"github.com/mb0/feather/patch"
	"github.com/mb0/feather/prop"
	"github.com/pkg/errors"
)

// Children is the child collection stored in a to-many property cell.
//
// Members removed from a fetched collection leave a hole in the serialized list until the next
// fetch or save, so that the patch removes the member at its fetched position.
type Children struct {
	parent  *Model
	feather *dom.Feather
	key     string
	cell    *prop.Prop
	ary     []*Model
	cache   []*Model
}

func (c *Children) toType(v interface{}) (interface{}, error) {
	var list []interface{}
	switch x := v.(type) {
	case *Children:
		if x == c {
			return c, nil
		}
		for _, m := range x.ary {
			list = append(list, m)
		}
	case nil:
	case []interface{}:
		list = x
	case []*Model:
		for _, m := range x {
			list = append(list, m)
		}
	default:
		n, err := patch.Normalize(v)
		if err != nil {
			return nil, errors.Errorf("%s must be an array", c.key)
		}
		if list, _ = n.([]interface{}); list == nil && n != nil {
			return nil, errors.Errorf("%s must be an array", c.key)
		}
	}
	if len(list) == 0 && len(c.cache) == 0 {
		return c, nil
	}
	ms := make([]*Model, 0, len(list))
	cache := make([]*Model, 0, len(list))
	for _, el := range list {
		if el == nil {
			// a hole of a removed member
			cache = append(cache, nil)
			continue
		}
		m, err := c.child(el)
		if err != nil {
			return nil, err
		}
		ms = append(ms, m)
		cache = append(cache, m)
	}
	err := c.mutate(func() {
		c.ary = ms
		c.cache = cache
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// child returns a new child model for v wired into the parent lifecycle.
func (c *Children) child(v interface{}) (*Model, error) {
	data, err := modelData(v)
	if err != nil {
		return nil, errors.Wrapf(err, "child of %s", c.key)
	}
	m, err := c.parent.reg.create(c.feather, data)
	if err != nil {
		return nil, err
	}
	m.nest()
	parent := c.parent
	m.m.Resolve("/Ready/Fetched/Dirty").Enter(func(interface{}) {
		parent.m.Send("changed", nil)
	})
	return m, nil
}

func (c *Children) mutate(fn func()) error {
	if c.cell == nil {
		fn()
		return nil
	}
	return c.cell.Mutate(fn)
}

// Add appends a new child model created from v, which may be nil, a data map or a model, and
// returns it.
func (c *Children) Add(v interface{}) (*Model, error) {
	m, err := c.child(v)
	if err != nil {
		return nil, err
	}
	err = c.mutate(func() {
		c.ary = append(c.ary, m)
		c.cache = append(c.cache, m)
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Remove removes the member v, a model or an id. Members of a fetched collection that were
// part of the last fetch leave a hole, all others are removed from the serialized list.
func (c *Children) Remove(v interface{}) error {
	i := c.index(v)
	if i < 0 {
		return errors.Errorf("%s has no member %v", c.key, v)
	}
	m := c.ary[i]
	return c.mutate(func() {
		c.ary = append(c.ary[:i:i], c.ary[i+1:]...)
		for ci, cm := range c.cache {
			if cm != m {
				continue
			}
			if ci < c.fetchedLen() {
				c.cache[ci] = nil
			} else {
				c.cache = append(c.cache[:ci:ci], c.cache[ci+1:]...)
			}
			break
		}
	})
}

func (c *Children) index(v interface{}) int {
	var id string
	switch x := v.(type) {
	case *Model:
		for i, m := range c.ary {
			if m == x {
				return i
			}
		}
		id = x.ID()
	case string:
		id = x
	}
	if id == "" {
		return -1
	}
	for i, m := range c.ary {
		if m.ID() == id {
			return i
		}
	}
	return -1
}

func (c *Children) fetchedLen() int {
	if !c.parent.fetched {
		return 0
	}
	l, _ := c.parent.lastFetched[c.key].([]interface{})
	return len(l)
}

// Clear removes all members.
func (c *Children) Clear() error {
	if len(c.cache) == 0 {
		return nil
	}
	return c.mutate(func() { c.ary, c.cache = nil, nil })
}

// Len returns the number of members.
func (c *Children) Len() int { return len(c.ary) }

// At returns the member at index i.
func (c *Children) At(i int) *Model { return c.ary[i] }

// Items returns a copy of the member list.
func (c *Children) Items() []*Model { return append([]*Model(nil), c.ary...) }

// Plain returns the serialized list with nil for holes.
func (c *Children) Plain() interface{} {
	res := make([]interface{}, 0, len(c.cache))
	for _, m := range c.cache {
		if m == nil {
			res = append(res, nil)
		} else {
			res = append(res, m.JSON())
		}
	}
	return res
}

// Children returns the child collection of the to-many property key or an error.
func (m *Model) Children(key string) (*Children, error) {
	p, err := m.Prop(key)
	if err != nil {
		return nil, err
	}
	c, ok := p.Store().(*Children)
	if !ok {
		return nil, errors.Errorf("%s.%s is not a child collection", m.Name, key)
	}
	return c, nil
}
