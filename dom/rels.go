package dom

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"
)

// Link connects property A of one feather with feather B, optionally at property key B.Key.
type Link struct {
	Kind
	A, B FeatherRef
}

func (l Link) String() string { return fmt.Sprintf("%s %s>%s", l.Kind, l.A, l.B) }

// FeatherRef is a feather pointer with an optional property key.
type FeatherRef struct {
	*Feather
	Key string
}

func (r FeatherRef) String() string {
	if r.Key == "" {
		return r.Name
	}
	return fmt.Sprintf("%s.%s", r.Name, r.Key)
}

// FeatherRels contains outgoing and incoming links of a feather.
type FeatherRels struct {
	*Feather
	Out, In []Link
}

func (r FeatherRels) String() string {
	return fmt.Sprintf("{out:%v in:%v}", r.Out, r.In)
}

// Relations maps feather names to all links for that feather.
type Relations map[string]*FeatherRels

// Relate collects and returns all relations between the feathers in the given catalog or an
// error if a relation refers to an unknown feather or property.
func Relate(c *Catalog) (Relations, error) {
	res := make(Relations)
	for _, f := range c.Feathers {
		for _, p := range f.Props {
			if p.Rel == nil {
				continue
			}
			err := res.relate(c, f, p)
			if err != nil {
				return nil, err
			}
		}
	}
	return res, nil
}

func (rs Relations) relate(c *Catalog, f *Feather, p *Prop) error {
	l := Link{Kind: p.Kind, A: FeatherRef{f, p.Key}}
	l.B.Feather = c.Feather(p.Rel.Relation)
	if l.B.Feather == nil {
		return errors.Errorf("%s.%s relation to unknown feather %q", f.Name, p.Key, p.Rel.Relation)
	}
	switch p.Kind {
	case ToMany:
		l.B.Key = p.Rel.ParentOf
	case ChildOf:
		l.B.Key = p.Rel.ChildOf
	default:
		l.B.Key = l.B.ID()
	}
	if l.B.Prop(l.B.Key) == nil {
		return errors.Errorf("%s.%s relation to unknown property %s", f.Name, p.Key, l.B)
	}
	for _, k := range p.Rel.Properties {
		if l.B.Prop(k) == nil {
			return errors.Errorf("%s.%s relation restricted to unknown property %s.%s",
				f.Name, p.Key, l.B.Name, k)
		}
	}
	rs.add(l)
	return nil
}

func (rs Relations) add(l Link) {
	a := rs.upsert(l.A.Feather)
	a.Out = append(a.Out, l)
	b := rs.upsert(l.B.Feather)
	b.In = append(b.In, l)
}

func (rs Relations) upsert(f *Feather) *FeatherRels {
	r := rs[f.Name]
	if r == nil {
		r = &FeatherRels{Feather: f}
		rs[f.Name] = r
	}
	return r
}

// Links returns all outgoing links sorted by feather name and property key.
func (rs Relations) Links() []Link {
	var res []Link
	for _, r := range rs {
		res = append(res, r.Out...)
	}
	sort.Slice(res, func(i, j int) bool {
		a, b := res[i].A, res[j].A
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Key < b.Key
	})
	return res
}
