package obj

import (
	"context"
	"encoding/json"

	"github.com/mb0/feather/dom"
	"github.com/mb0/feather/log"
	"github.com/mb0/feather/rule"
	"github.com/mb0/feather/src"
	"github.com/pkg/errors"
)

// Ctor creates a model for feather f with the seed data. Constructors usually call NewModel and
// then add hooks and validators. Nested models use a restricted feather with the same name.
type Ctor func(r *Registry, f *dom.Feather, data map[string]interface{}) (*Model, error)

// Registry creates models for the feathers of a catalog and connects them to a data source.
type Registry struct {
	Catalog *dom.Catalog
	Source  src.Source
	Log     log.Logger

	ctors map[string]Ctor
	rules rule.Cache
}

// NewRegistry returns a registry for catalog c and data source s. Both s and l may be nil.
func NewRegistry(c *dom.Catalog, s src.Source, l log.Logger) *Registry {
	return &Registry{Catalog: c, Source: s, Log: l}
}

// Register sets the model constructor for the feather name.
func (r *Registry) Register(name string, c Ctor) {
	if r.ctors == nil {
		r.ctors = make(map[string]Ctor)
	}
	r.ctors[name] = c
}

// New returns a new model for the feather name seeded with data or an error.
func (r *Registry) New(name string, data map[string]interface{}) (*Model, error) {
	f := r.Catalog.Feather(name)
	if f == nil {
		return nil, errors.Errorf("no feather named %s", name)
	}
	return r.create(f, data)
}

func (r *Registry) create(f *dom.Feather, data map[string]interface{}) (*Model, error) {
	if c := r.ctors[f.Name]; c != nil {
		return c(r, f, data)
	}
	return NewModel(r, f, data)
}

// Get returns the fetched model for the feather name and id or an error.
func (r *Registry) Get(ctx context.Context, name, id string) (*Model, error) {
	f := r.Catalog.Feather(name)
	if f == nil {
		return nil, errors.Errorf("no feather named %s", name)
	}
	m, err := r.create(f, map[string]interface{}{f.ID(): id})
	if err != nil {
		return nil, err
	}
	_, err = m.Fetch(ctx).Wait(ctx)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// List returns fetched models for all records of the feather name or an error.
func (r *Registry) List(ctx context.Context, name string) ([]*Model, error) {
	f := r.Catalog.Feather(name)
	if f == nil {
		return nil, errors.Errorf("no feather named %s", name)
	}
	if r.Source == nil {
		return nil, errors.New("no data source")
	}
	req := &src.Request{Method: src.GET, Path: src.Path(f.Plural, "")}
	raw, err := r.Source.Request(ctx, req)
	if err != nil {
		return nil, src.Wrap(req, err)
	}
	var list []map[string]interface{}
	err = json.Unmarshal(raw, &list)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", req)
	}
	res := make([]*Model, 0, len(list))
	for _, data := range list {
		m, err := r.create(f, nil)
		if err != nil {
			return nil, err
		}
		err = m.loaded(data)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, nil
}

func (r *Registry) ruleSet(f *dom.Feather) (*rule.Set, error) {
	if len(f.Rules) == 0 {
		return nil, nil
	}
	return r.rules.Get(f)
}
