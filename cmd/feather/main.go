package main

import (
	"fmt"
	stdlog "log"
	"os"

	"github.com/docopt/docopt-go"
	"github.com/mb0/feather/dom"
	"github.com/pkg/errors"
)

const version = "0.1.0"

const usage = `Feather catalogs and data sources.

Usage:
    feather check <catalog>
    feather graph <catalog>
    feather serve <catalog> [--addr=<addr>] [--db=<dsn>] [--data=<path>]
    feather repl <catalog> [--url=<url>] [--db=<dsn>] [--data=<path>]
    feather -h | --help
    feather --version

Commands:
    check       Load the catalog, check relations and rules and display the feathers
    graph       Write the catalog relations as dot graph to stdout
    serve       Serve a data source to websocket clients at the path /hub
    repl        Runs a read-eval-print-loop for model commands

Options:
    -h --help       Show this screen.
    --version       Show version.
    --addr=<addr>   The listen address. The environment variable FEATHER_ADDR is used
                    if this flag is not set, otherwise localhost:8080.
    --db=<dsn>      The postgres connection string. The environment variable FEATHER_DB
                    is used if this flag is not set. Records are kept in memory if empty.
    --data=<path>   A JSON file with lists of records keyed by data path to load.
    --url=<url>     The websocket url of a feather server to use as data source.`

func main() {
	stdlog.SetFlags(0)
	opts, err := docopt.ParseArgs(usage, os.Args[1:], version)
	if err != nil {
		stdlog.Fatal(err)
	}
	cmds := []struct {
		name string
		run  func(docopt.Opts) error
	}{
		{"check", check},
		{"graph", graph},
		{"serve", serve},
		{"repl", repl},
	}
	for _, cmd := range cmds {
		if ok, _ := opts.Bool(cmd.name); !ok {
			continue
		}
		err = cmd.run(opts)
		if err != nil {
			stdlog.Fatalf("%s error: %+v\n", cmd.name, err)
		}
		return
	}
	fmt.Print(usage)
}

func catalog(opts docopt.Opts) (*dom.Catalog, error) {
	path, err := opts.String("<catalog>")
	if err != nil {
		return nil, err
	}
	c, err := dom.LoadCatalog(path)
	if err != nil {
		return nil, errors.Wrapf(err, "load catalog %s", path)
	}
	return c, nil
}

// flagOr returns the value of the option key, the environment variable env or def.
func flagOr(opts docopt.Opts, key, env, def string) string {
	if s, _ := opts.String(key); s != "" {
		return s
	}
	if s := os.Getenv(env); s != "" {
		return s
	}
	return def
}
