package dom

import (
	"bytes"
	"encoding/json"
	"io"
	"io/ioutil"
	"os"
	"sort"

	"github.com/markbates/inflect"
	"github.com/pkg/errors"
)

// Catalog is a collection of resolved feathers.
type Catalog struct {
	Feathers []*Feather
	idx      map[string]*Feather
	rels     Relations
}

// NewCatalog returns a catalog with the given feathers or an error. Feathers can inherit
// properties from other feathers in the list regardless of their order.
func NewCatalog(fs ...*Feather) (*Catalog, error) {
	c := &Catalog{}
	todo := append([]*Feather(nil), fs...)
	for len(todo) > 0 {
		rest := todo[:0]
		for _, f := range todo {
			if f.Inherits != "" && c.Feather(f.Inherits) == nil {
				rest = append(rest, f)
				continue
			}
			err := c.Add(f)
			if err != nil {
				return nil, err
			}
		}
		if len(rest) == len(todo) {
			return nil, errors.Errorf("feather %s inherits unknown %s", rest[0].Name, rest[0].Inherits)
		}
		todo = rest
	}
	rels, err := Relate(c)
	if err != nil {
		return nil, err
	}
	c.rels = rels
	return c, nil
}

// ReadCatalog reads a JSON object mapping feather names to feathers and returns a catalog.
func ReadCatalog(r io.Reader) (*Catalog, error) {
	b, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var fs []*Feather
	err = decodeOrdered(b, func(name string, raw json.RawMessage) error {
		f := &Feather{}
		err := json.Unmarshal(raw, f)
		if err != nil {
			return errors.Wrapf(err, "feather %s", name)
		}
		if f.Name == "" {
			f.Name = name
		}
		fs = append(fs, f)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "read catalog")
	}
	return NewCatalog(fs...)
}

// LoadCatalog reads the catalog file at path.
func LoadCatalog(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCatalog(f)
}

// Add resolves and adds feather f to the catalog. The feather name must be unique and any
// inherited feather must already be part of the catalog. Relations are not checked.
func (c *Catalog) Add(f *Feather) error {
	if f.Name == "" {
		return errors.New("feather without name")
	}
	if c.Feather(f.Name) != nil {
		return errors.Errorf("feather %s already declared", f.Name)
	}
	if f.Inherits != "" {
		p := c.Feather(f.Inherits)
		if p == nil {
			return errors.Errorf("feather %s inherits unknown %s", f.Name, f.Inherits)
		}
		inherit(f, p)
	}
	if f.Plural == "" {
		f.Plural = inflect.Pluralize(f.Name)
	}
	for _, p := range f.Props {
		if p.Key == "" {
			return errors.Errorf("feather %s has property without key", f.Name)
		}
		p.Classify()
	}
	if c.idx == nil {
		c.idx = make(map[string]*Feather)
	}
	c.idx[f.Name] = f
	c.Feathers = append(c.Feathers, f)
	c.rels = nil
	return nil
}

func inherit(f, p *Feather) {
	props := make(Props, 0, len(p.Props)+len(f.Props))
	for _, pp := range p.Props {
		if f.Prop(pp.Key) == nil {
			props = append(props, pp)
		}
	}
	f.Props = append(props, f.Props...)
	f.Rules = append(append([]Rule(nil), p.Rules...), f.Rules...)
	if f.IDProp == "" {
		f.IDProp = p.IDProp
	}
}

// Feather returns the feather with name or nil.
func (c *Catalog) Feather(name string) *Feather {
	if c == nil {
		return nil
	}
	return c.idx[name]
}

// Resource returns the feather whose singular or plural resource name is seg, and whether seg
// names the plural.
func (c *Catalog) Resource(seg string) (*Feather, bool) {
	if c != nil {
		for _, f := range c.Feathers {
			if f.Resource() == seg {
				return f, false
			}
			if f.PluralResource() == seg {
				return f, true
			}
		}
	}
	return nil, false
}

// Names returns the sorted feather names.
func (c *Catalog) Names() []string {
	res := make([]string, 0, len(c.Feathers))
	for _, f := range c.Feathers {
		res = append(res, f.Name)
	}
	sort.Strings(res)
	return res
}

// Relations returns the relations between the catalog feathers or an error.
func (c *Catalog) Relations() (Relations, error) {
	if c.rels == nil {
		rels, err := Relate(c)
		if err != nil {
			return nil, err
		}
		c.rels = rels
	}
	return c.rels, nil
}

func (c *Catalog) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, f := range c.Feathers {
		if i > 0 {
			b.WriteByte(',')
		}
		k, _ := json.Marshal(f.Name)
		b.Write(k)
		b.WriteByte(':')
		v, err := json.Marshal(f)
		if err != nil {
			return nil, err
		}
		b.Write(v)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}
