package obj

import (
	"reflect"

	"github.com/mb0/feather/dom"
	"github.com/mb0/feather/patch"
	"github.com/mb0/feather/prop"
	"github.com/mb0/feather/stc"
	"github.com/pkg/errors"
)

// toOne returns a cell holding a nested model of the related feather restricted to the
// declared properties.
func (m *Model) toOne(dp *dom.Prop) (*prop.Prop, error) {
	f := m.reg.Catalog.Feather(dp.Rel.Relation)
	if f == nil {
		return nil, errors.Errorf("relation %s of %s not found", dp.Rel.Relation, dp.Key)
	}
	f = f.Restrict(dp.Rel.Properties)
	var p *prop.Prop
	p, err := prop.New(nil, prop.Formatter{ToType: func(v interface{}) (interface{}, error) {
		if v == nil {
			return nil, nil
		}
		data, err := modelData(v)
		if err != nil {
			return nil, errors.Errorf("%s must be an object", dp.Key)
		}
		data = pick(f, data)
		if p != nil {
			if cur, ok := p.Store().(*Model); ok && sameData(cur.JSON(), data) {
				return cur, nil
			}
		}
		c, err := m.reg.create(f, data)
		if err != nil {
			return nil, err
		}
		c.nest()
		return c, nil
	}})
	if err != nil {
		return nil, err
	}
	return p.Describe(dp), nil
}

// toMany returns a cell holding the child collection of the related feather.
func (m *Model) toMany(dp *dom.Prop) (*prop.Prop, error) {
	f := m.reg.Catalog.Feather(dp.Rel.Relation)
	if f == nil {
		return nil, errors.Errorf("relation %s of %s not found", dp.Rel.Relation, dp.Key)
	}
	c := &Children{parent: m, feather: f, key: dp.Key}
	p, err := prop.New(nil, prop.Formatter{ToType: c.toType})
	if err != nil {
		return nil, err
	}
	c.cell = p
	return p.Describe(dp), nil
}

// nest marks m as nested model. Nested models are saved with their parent and do not request
// data on their own.
func (m *Model) nest() {
	m.nested = true
	m.m.Resolve("/Ready/New").Off("save")
	m.m.Resolve("/Ready/Fetched/Dirty").Off("save")
}

// mirror makes nested models follow the fetch lifecycle of m.
func (m *Model) mirror() {
	m.m.Resolve("/Ready").Enter(func(ctx interface{}) {
		if _, ok := ctx.(keep); !ok {
			return
		}
		m.eachNested(func(c *Model) {
			if c.m.Is("/Busy") {
				c.m.Goto("/Ready", stc.With(keep{}))
			}
		})
	})
	m.m.Resolve("/Ready/Fetched/Clean").Enter(func(interface{}) {
		m.eachNested(func(c *Model) { c.m.Goto("/Ready/Fetched/Clean") })
	})
	m.m.Resolve("/Busy/Fetching").Enter(func(interface{}) {
		m.eachNested(func(c *Model) { c.m.Goto("/Busy/Fetching") })
	})
}

func (m *Model) eachNested(fn func(*Model)) {
	for _, k := range m.keys {
		switch v := m.data[k].Store().(type) {
		case *Model:
			fn(v)
		case *Children:
			for _, c := range v.ary {
				fn(c)
			}
		}
	}
}

// modelData returns v as plain data map. Models return their JSON.
func modelData(v interface{}) (map[string]interface{}, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case *Model:
		return x.JSON(), nil
	case map[string]interface{}:
		return x, nil
	}
	n, err := patch.Normalize(v)
	if err != nil {
		return nil, err
	}
	res, ok := n.(map[string]interface{})
	if !ok && n != nil {
		return nil, errors.Errorf("want object got %T", v)
	}
	return res, nil
}

// pick returns the entries of data declared by f.
func pick(f *dom.Feather, data map[string]interface{}) map[string]interface{} {
	res := make(map[string]interface{}, len(data))
	for k, v := range data {
		if f.Prop(k) != nil {
			res[k] = v
		}
	}
	return res
}

func sameData(a, b map[string]interface{}) bool {
	na, err := patch.Normalize(a)
	if err != nil {
		return false
	}
	nb, err := patch.Normalize(b)
	if err != nil {
		return false
	}
	return reflect.DeepEqual(na, nb)
}
