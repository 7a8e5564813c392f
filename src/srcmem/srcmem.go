// Package srcmem provides an in-memory data source that records all writes in an event ledger.
package srcmem

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/mb0/feather/dom"
	"github.com/mb0/feather/evt"
	"github.com/mb0/feather/log"
	"github.com/mb0/feather/patch"
	"github.com/mb0/feather/src"
	"github.com/pkg/errors"
)

// Source stores record documents per resource in memory. It is safe for concurrent use.
//
// Posted documents without id are assigned a new one. Declared 'created' and 'updated'
// properties are maintained by the source and returned to the client as response patch.
type Source struct {
	Catalog *dom.Catalog
	Ledger  *evt.MemLedger
	Log     log.Logger
	// Now returns the time used for timestamps, it defaults to time.Now.
	Now func() time.Time

	mu   sync.Mutex
	tabs map[string]*table
}

type table struct {
	ids  []string
	docs map[string]map[string]interface{}
}

// New returns a new empty source for catalog c.
func New(c *dom.Catalog, l log.Logger) *Source {
	return &Source{Catalog: c, Ledger: &evt.MemLedger{}, Log: log.Or(l),
		tabs: make(map[string]*table),
	}
}

// Load inserts records keyed by data path without publishing events.
func (s *Source) Load(data map[string][]map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for path, list := range data {
		f, err := s.feather(path)
		if err != nil {
			return err
		}
		for _, rec := range list {
			doc, err := src.Doc(rec)
			if err != nil {
				return err
			}
			id, _ := doc[f.ID()].(string)
			if id == "" {
				return errors.Errorf("record without id in %s", path)
			}
			s.table(f).put(id, doc)
		}
	}
	return nil
}

func (s *Source) feather(path string) (*dom.Feather, error) {
	res, _, err := src.ParsePath(path)
	if err != nil {
		return nil, err
	}
	f, _ := s.Catalog.Resource(res)
	if f == nil {
		return nil, errors.Wrapf(src.ErrNotFound, "resource %s", res)
	}
	return f, nil
}

func (s *Source) table(f *dom.Feather) *table {
	t := s.tabs[f.Name]
	if t == nil {
		t = &table{docs: make(map[string]map[string]interface{})}
		s.tabs[f.Name] = t
	}
	return t
}

func (t *table) put(id string, doc map[string]interface{}) {
	if _, ok := t.docs[id]; !ok {
		t.ids = append(t.ids, id)
	}
	t.docs[id] = doc
}

func (t *table) del(id string) {
	delete(t.docs, id)
	for i, el := range t.ids {
		if el == id {
			t.ids = append(t.ids[:i], t.ids[i+1:]...)
			break
		}
	}
}

// Request serves a data source request.
func (s *Source) Request(ctx context.Context, req *src.Request) (json.RawMessage, error) {
	res, id, err := src.ParsePath(req.Path)
	if err != nil {
		return nil, err
	}
	f, plural := s.Catalog.Resource(res)
	if f == nil {
		return nil, errors.Wrapf(src.ErrNotFound, "resource %s", res)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.table(f)
	var out interface{}
	switch req.Method {
	case src.GET:
		out, err = s.get(t, plural, id)
	case src.POST:
		if !plural || id != "" {
			return nil, errors.Errorf("post to %s, want plural resource", req.Path)
		}
		out, err = s.post(f, t, req.Data)
	case src.PATCH:
		out, err = s.patch(f, t, id, req.Data)
	case src.DELETE:
		out, err = s.delete(f, t, id)
	default:
		err = errors.Errorf("unsupported method %s", req.Method)
	}
	if err != nil {
		s.Log.Debug("request failed", "req", req, "err", err)
		return nil, err
	}
	return json.Marshal(out)
}

func (s *Source) get(t *table, plural bool, id string) (interface{}, error) {
	if id == "" {
		if !plural {
			return nil, errors.New("get without id")
		}
		list := make([]map[string]interface{}, 0, len(t.ids))
		for _, id := range t.ids {
			list = append(list, t.docs[id])
		}
		return list, nil
	}
	doc := t.docs[id]
	if doc == nil {
		return nil, errors.Wrapf(src.ErrNotFound, "record %s", id)
	}
	return doc, nil
}

func (s *Source) post(f *dom.Feather, t *table, data interface{}) (interface{}, error) {
	doc, err := src.Doc(data)
	if err != nil {
		return nil, err
	}
	id, res := src.PostFields(f, doc, s.now())
	if _, ok := t.docs[id]; ok {
		return nil, errors.Wrapf(src.ErrConflict, "record %s exists", id)
	}
	arg, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	t.put(id, doc)
	_, err = s.Ledger.Publish(evt.Action{Sig: evt.Sig{Top: f.Resource(), Key: id}, Cmd: evt.CmdNew, Arg: arg})
	return res, err
}

func (s *Source) patch(f *dom.Feather, t *table, id string, data interface{}) (interface{}, error) {
	doc := t.docs[id]
	if doc == nil {
		return nil, errors.Wrapf(src.ErrNotFound, "record %s", id)
	}
	ops, err := src.DataPatch(data)
	if err != nil {
		return nil, err
	}
	next, err := patch.Apply(doc, ops)
	if err != nil {
		return nil, errors.Wrap(src.ErrConflict, err.Error())
	}
	res := src.PatchFields(f, s.now())
	if next, err = patch.Apply(next, res); err != nil {
		return nil, err
	}
	arg, err := json.Marshal(append(ops, res...))
	if err != nil {
		return nil, err
	}
	t.put(id, next)
	_, err = s.Ledger.Publish(evt.Action{Sig: evt.Sig{Top: f.Resource(), Key: id}, Cmd: evt.CmdMod, Arg: arg})
	return res, err
}

func (s *Source) delete(f *dom.Feather, t *table, id string) (interface{}, error) {
	if t.docs[id] == nil {
		return nil, errors.Wrapf(src.ErrNotFound, "record %s", id)
	}
	t.del(id)
	_, err := s.Ledger.Publish(evt.Action{Sig: evt.Sig{Top: f.Resource(), Key: id}, Cmd: evt.CmdDel})
	return struct{}{}, err
}

func (s *Source) now() string {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return src.Stamp(now())
}
