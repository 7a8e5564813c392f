package dom

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/markbates/inflect"
	"github.com/pkg/errors"
)

// Kind classifies a property as scalar value or one of the relation kinds.
type Kind uint8

const (
	Scalar  Kind = iota
	ToOne        // nested model
	ToMany       // child collection, relation declares parentOf
	ChildOf      // back reference of a child to its parent, never a cell
)

func (k Kind) String() string {
	switch k {
	case ToOne:
		return "toOne"
	case ToMany:
		return "toMany"
	case ChildOf:
		return "childOf"
	}
	return "scalar"
}

// Relation describes a property referring to another feather.
type Relation struct {
	Relation   string   `json:"relation"`
	ChildOf    string   `json:"childOf,omitempty"`
	ParentOf   string   `json:"parentOf,omitempty"`
	Properties []string `json:"properties,omitempty"`
}

// Prop declares a feather property. The type is either a scalar type name or a relation.
type Prop struct {
	Key         string
	Description string
	Type        string
	Rel         *Relation
	Format      string
	Default     interface{}
	HasDefault  bool
	Scale       *int
	Required    bool
	ReadOnly    bool
	Kind        Kind
}

type propJSON struct {
	Description string          `json:"description,omitempty"`
	Type        json.RawMessage `json:"type,omitempty"`
	Format      string          `json:"format,omitempty"`
	Default     json.RawMessage `json:"default,omitempty"`
	Scale       *int            `json:"scale,omitempty"`
	Required    bool            `json:"isRequired,omitempty"`
	ReadOnly    bool            `json:"isReadOnly,omitempty"`
}

func (p *Prop) UnmarshalJSON(b []byte) error {
	var v propJSON
	err := json.Unmarshal(b, &v)
	if err != nil {
		return err
	}
	*p = Prop{Key: p.Key, Description: v.Description, Format: v.Format,
		Scale: v.Scale, Required: v.Required, ReadOnly: v.ReadOnly}
	if len(v.Default) > 0 {
		p.HasDefault = true
		err = json.Unmarshal(v.Default, &p.Default)
		if err != nil {
			return errors.Wrapf(err, "default of %q", p.Key)
		}
	}
	t := bytes.TrimSpace(v.Type)
	if len(t) > 0 && t[0] == '{' {
		p.Rel = &Relation{}
		err = json.Unmarshal(t, p.Rel)
		if err != nil {
			return errors.Wrapf(err, "relation type of %q", p.Key)
		}
		p.Type = "object"
	} else if len(t) > 0 {
		err = json.Unmarshal(t, &p.Type)
		if err != nil {
			return errors.Wrapf(err, "type of %q", p.Key)
		}
	}
	p.Classify()
	return nil
}

func (p *Prop) MarshalJSON() ([]byte, error) {
	v := propJSON{Description: p.Description, Format: p.Format,
		Scale: p.Scale, Required: p.Required, ReadOnly: p.ReadOnly}
	var err error
	if p.HasDefault || p.Default != nil {
		v.Default, err = json.Marshal(p.Default)
		if err != nil {
			return nil, err
		}
	}
	if p.Rel != nil {
		v.Type, err = json.Marshal(p.Rel)
	} else if p.Type != "" {
		v.Type, err = json.Marshal(p.Type)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

// Classify sets and returns the property kind based on its relation.
func (p *Prop) Classify() Kind {
	switch r := p.Rel; {
	case r == nil:
		p.Kind = Scalar
	case r.ChildOf != "":
		p.Kind = ChildOf
	case r.ParentOf != "":
		p.Kind = ToMany
	default:
		p.Kind = ToOne
	}
	return p.Kind
}

// Props is an ordered property list with a JSON object representation.
type Props []*Prop

func (ps Props) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, p := range ps {
		if i > 0 {
			b.WriteByte(',')
		}
		k, _ := json.Marshal(p.Key)
		b.Write(k)
		b.WriteByte(':')
		v, err := p.MarshalJSON()
		if err != nil {
			return nil, err
		}
		b.Write(v)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

func (ps *Props) UnmarshalJSON(b []byte) error {
	*ps = (*ps)[:0]
	return decodeOrdered(b, func(key string, raw json.RawMessage) error {
		p := &Prop{Key: key}
		err := json.Unmarshal(raw, p)
		if err != nil {
			return err
		}
		*ps = append(*ps, p)
		return nil
	})
}

// Rule is a boolean expression over the model data that must hold for a model to be valid.
type Rule struct {
	Name    string `json:"name,omitempty"`
	Expr    string `json:"expr"`
	Message string `json:"message,omitempty"`
}

// Feather describes the properties and rules of one kind of model.
// Feathers are immutable once added to a catalog and shared by all models.
type Feather struct {
	Name        string `json:"name,omitempty"`
	Plural      string `json:"plural,omitempty"`
	Description string `json:"description,omitempty"`
	Inherits    string `json:"inherits,omitempty"`
	IDProp      string `json:"idProperty,omitempty"`
	Props       Props  `json:"properties"`
	Rules       []Rule `json:"rules,omitempty"`
}

// Prop returns the property with key or nil.
func (f *Feather) Prop(key string) *Prop {
	if f != nil {
		for _, p := range f.Props {
			if p.Key == key {
				return p
			}
		}
	}
	return nil
}

// Keys returns all property keys in declaration order.
func (f *Feather) Keys() []string {
	res := make([]string, 0, len(f.Props))
	for _, p := range f.Props {
		res = append(res, p.Key)
	}
	return res
}

// ID returns the identity property key.
func (f *Feather) ID() string {
	if f.IDProp == "" {
		return "id"
	}
	return f.IDProp
}

// Resource returns the spinal case resource name used in data paths.
func (f *Feather) Resource() string { return inflect.Dasherize(f.Name) }

// PluralResource returns the spinal case plural resource name.
func (f *Feather) PluralResource() string { return inflect.Dasherize(f.Plural) }

// Restrict returns a copy of f with only the properties in keys and the identity property.
// An empty key list returns f itself.
func (f *Feather) Restrict(keys []string) *Feather {
	if len(keys) == 0 {
		return f
	}
	res := *f
	res.Props = make(Props, 0, len(keys)+1)
	res.Rules = nil
	id := f.ID()
	for _, p := range f.Props {
		if p.Key == id || contains(keys, p.Key) {
			res.Props = append(res.Props, p)
		}
	}
	return &res
}

func (f *Feather) String() string { return fmt.Sprintf("feather %s", f.Name) }

func contains(list []string, key string) bool {
	for _, k := range list {
		if k == key {
			return true
		}
	}
	return false
}

func decodeOrdered(b []byte, fn func(string, json.RawMessage) error) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.Errorf("expect object got %v", tok)
	}
	for dec.More() {
		tok, err = dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)
		var raw json.RawMessage
		err = dec.Decode(&raw)
		if err != nil {
			return errors.Wrapf(err, "decode %q", key)
		}
		err = fn(key, raw)
		if err != nil {
			return err
		}
	}
	_, err = dec.Token()
	return err
}
