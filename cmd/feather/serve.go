package main

import (
	"encoding/json"
	"net/http"
	"os"

	"github.com/docopt/docopt-go"
	"github.com/dustin/go-humanize"
	"github.com/mb0/feather/dom"
	"github.com/mb0/feather/evt"
	"github.com/mb0/feather/hub"
	"github.com/mb0/feather/hub/wshub"
	"github.com/mb0/feather/log"
	"github.com/mb0/feather/src"
	"github.com/mb0/feather/src/srchub"
	"github.com/mb0/feather/src/srcmem"
	"github.com/mb0/feather/src/srcpgx"
	"github.com/pkg/errors"
)

// backend is a local data source with its event ledger.
type backend struct {
	src.Source
	Ledger evt.Ledger
	Close  func()
}

// openBackend returns a postgres source if a connection string is configured and a memory
// source otherwise. Records from the data option are loaded into the source.
func openBackend(opts docopt.Opts, c *dom.Catalog, l log.Logger) (*backend, error) {
	var load func(map[string][]map[string]interface{}) error
	b := &backend{Close: func() {}}
	if dsn := flagOr(opts, "--db", "FEATHER_DB", ""); dsn != "" {
		db, err := srcpgx.Open(dsn, l)
		if err != nil {
			return nil, err
		}
		s := srcpgx.New(db, c, l)
		err = s.Setup()
		if err != nil {
			db.Close()
			return nil, err
		}
		b.Source, b.Ledger, b.Close, load = s, s, db.Close, s.Load
	} else {
		s := srcmem.New(c, l)
		b.Source, b.Ledger, load = s, s.Ledger, s.Load
	}
	if path, _ := opts.String("--data"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			b.Close()
			return nil, err
		}
		var data map[string][]map[string]interface{}
		err = json.Unmarshal(raw, &data)
		if err == nil {
			err = load(data)
		}
		if err != nil {
			b.Close()
			return nil, errors.Wrapf(err, "load data %s", path)
		}
	}
	return b, nil
}

func serve(opts docopt.Opts) error {
	c, err := catalog(opts)
	if err != nil {
		return err
	}
	var l log.Logger = &log.Default{Verbose: true}
	b, err := openBackend(opts, c, l)
	if err != nil {
		return err
	}
	defer b.Close()
	h := hub.NewHub()
	svc := srchub.NewService(h, b.Source, b.Ledger, l)
	defer svc.Stop()
	mf, err := dom.Manifest(nil).Update(c)
	if err != nil {
		return err
	}
	svc.ServeManifest(mf)
	trace := hub.RouterFunc(func(m *hub.Msg) {
		l.Debug("hub "+m.String(), "conns", humanize.Comma(int64(h.Conns())))
	})
	go h.Run(hub.Routers{svc, hub.Subjects(trace, hub.SubjSignon, hub.SubjSignoff)})
	mux := http.NewServeMux()
	mux.Handle("/hub", wshub.Serve(h, l))
	addr := flagOr(opts, "--addr", "FEATHER_ADDR", "localhost:8080")
	l.Debug("serving feather hub", "addr", "ws://"+addr+"/hub", "feathers", len(c.Feathers))
	return http.ListenAndServe(addr, mux)
}
