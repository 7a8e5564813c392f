// Package domtest has default catalogs and helpers for testing.
package domtest

import (
	"strings"

	"github.com/mb0/feather/dom"
	"github.com/pkg/errors"
)

// Fixture is a catalog with a name and raw test records keyed by resource path.
type Fixture struct {
	Name string
	*dom.Catalog
	Data map[string][]map[string]interface{}
}

// New returns a fixture with the catalog read from raw or an error.
func New(name, raw string, data map[string][]map[string]interface{}) (*Fixture, error) {
	c, err := dom.ReadCatalog(strings.NewReader(raw))
	if err != nil {
		return nil, errors.Wrapf(err, "fixture %s", name)
	}
	return &Fixture{Name: name, Catalog: c, Data: data}, nil
}

func Must(f *Fixture, err error) *Fixture {
	if err != nil {
		panic(err)
	}
	return f
}
