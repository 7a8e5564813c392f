package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	stdlog "log"
	"strings"
	"time"

	"github.com/docopt/docopt-go"
	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mb0/feather/dom"
	"github.com/mb0/feather/evt"
	"github.com/mb0/feather/hub/wshub"
	"github.com/mb0/feather/log"
	"github.com/mb0/feather/obj"
	"github.com/mb0/feather/src/srchub"
	"github.com/peterh/liner"
	"github.com/pkg/errors"
)

const replHelp = `commands:
   list <feather>               list all records
   get  <feather> <id>          fetch and display a record
   new  <feather> <json>        create and save a record
   set  <feather> <id> <json>   fetch, change and save a record
   del  <feather> <id>          delete a record
   hist <feather> <id>          display the event history of a record
   help                         display this message
`

type histFunc func(context.Context, evt.Sig) ([]*evt.Event, error)

func repl(opts docopt.Opts) error {
	c, err := catalog(opts)
	if err != nil {
		return err
	}
	l := log.Root
	var reg *obj.Registry
	var hist histFunc
	if url, _ := opts.String("--url"); url != "" {
		wc := wshub.NewClient(url)
		wc.Log = l
		cli := srchub.NewClient(wc, l)
		cli.OnUpdate = func(up evt.Update) {
			for _, ev := range up.Evs {
				fmt.Printf("\n%s %s %s\n", ev.Cmd, ev.Top, ev.Key)
			}
		}
		go cli.Run()
		go func() {
			err := wc.Connect(cli.Chan())
			if err != nil {
				l.Error("connection closed", "url", url, "err", err)
			}
		}()
		defer func() { wc.Chan() <- nil }()
		err = checkManifest(c, cli)
		if err != nil {
			l.Error("manifest check failed", "url", url, "err", err)
		}
		reg = obj.NewRegistry(c, cli, l)
		hist = func(ctx context.Context, sig evt.Sig) ([]*evt.Event, error) {
			up, err := cli.Hist(ctx, sig)
			if err != nil {
				return nil, err
			}
			return up.Evs, nil
		}
	} else {
		b, err := openBackend(opts, c, l)
		if err != nil {
			return err
		}
		defer b.Close()
		reg = obj.NewRegistry(c, b.Source, l)
		hist = func(_ context.Context, sig evt.Sig) ([]*evt.Event, error) {
			evs, err := b.Ledger.Events(time.Time{}, sig.Top)
			return evt.Collect(evs, sig), err
		}
	}
	lin := liner.NewLiner()
	defer lin.Close()
	lin.SetCompleter(completer(c))
	fmt.Print(replHelp)
	for {
		got, err := lin.Prompt("> ")
		if err != nil {
			if err == io.EOF || err == liner.ErrPromptAborted {
				fmt.Println()
				return nil
			}
			stdlog.Printf("unexpected error reading prompt: %v", err)
			continue
		}
		got = strings.TrimSpace(got)
		if got == "" {
			continue
		}
		lin.AppendHistory(got)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = eval(ctx, reg, hist, got)
		cancel()
		if err != nil {
			stdlog.Printf("error: %v", err)
		}
	}
}

// checkManifest prints the feathers whose definitions differ from the ones served by cli.
func checkManifest(c *dom.Catalog, cli *srchub.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	remote, err := cli.Manifest(ctx)
	if err != nil {
		return err
	}
	local, err := dom.Manifest(nil).Update(c)
	if err != nil {
		return err
	}
	for _, v := range local {
		if r, ok := remote.Get(v.Name); !ok || r.Hash != v.Hash {
			fmt.Printf("feather %s differs from the served catalog\n", v.Name)
		}
	}
	return nil
}

func eval(ctx context.Context, reg *obj.Registry, hist histFunc, line string) error {
	cmd, rest, _ := strings.Cut(line, " ")
	name, rest, _ := strings.Cut(strings.TrimSpace(rest), " ")
	rest = strings.TrimSpace(rest)
	if cmd != "help" {
		if f := reg.Catalog.Feather(name); f == nil {
			return errors.Errorf("no feather named %q", name)
		}
	}
	switch cmd {
	case "help":
		fmt.Print(replHelp)
	case "list":
		ms, err := reg.List(ctx, name)
		if err != nil {
			return err
		}
		printModels(reg.Catalog.Feather(name), ms)
	case "get":
		m, err := reg.Get(ctx, name, rest)
		if err != nil {
			return err
		}
		printModels(m.Feather, []*obj.Model{m})
	case "new":
		data, err := parseData(rest)
		if err != nil {
			return err
		}
		m, err := reg.New(name, data)
		if err != nil {
			return err
		}
		return save(ctx, m)
	case "set":
		id, raw, _ := strings.Cut(rest, " ")
		data, err := parseData(raw)
		if err != nil {
			return err
		}
		m, err := reg.Get(ctx, name, id)
		if err != nil {
			return err
		}
		err = m.Set(data, false, false)
		if err != nil {
			return err
		}
		return save(ctx, m)
	case "del":
		m, err := reg.Get(ctx, name, rest)
		if err != nil {
			return err
		}
		ok, err := m.Delete(ctx, true).Wait(ctx)
		if err != nil {
			return err
		}
		if ok != true {
			return errors.Errorf("%s not deleted", m)
		}
		fmt.Printf("deleted %s\n", m)
	case "hist":
		f := reg.Catalog.Feather(name)
		evs, err := hist(ctx, evt.Sig{Top: f.Resource(), Key: rest})
		if err != nil {
			return err
		}
		printEvents(evs)
		acts, err := evt.Compact(evs)
		if err != nil {
			return err
		}
		for _, a := range acts {
			fmt.Printf("compacted %s %s\n", a.Cmd, a.Arg)
		}
	default:
		return errors.Errorf("unknown command %q", cmd)
	}
	return nil
}

func parseData(raw string) (map[string]interface{}, error) {
	var res map[string]interface{}
	err := json.Unmarshal([]byte(raw), &res)
	if err != nil {
		return nil, errors.Wrap(err, "parse record data")
	}
	return res, nil
}

func save(ctx context.Context, m *obj.Model) error {
	if !m.CanUndo() && !m.State().Is("/Ready/New") {
		fmt.Printf("%s unchanged\n", m)
		return nil
	}
	_, err := m.Save(ctx).Wait(ctx)
	if err != nil {
		return err
	}
	printModels(m.Feather, []*obj.Model{m})
	return nil
}

func printModels(f *dom.Feather, ms []*obj.Model) {
	keys := f.Keys()
	tw := table.NewWriter()
	head := make(table.Row, 0, len(keys)+1)
	for _, k := range keys {
		head = append(head, k)
	}
	tw.AppendHeader(append(head, "state"))
	for _, m := range ms {
		row := make(table.Row, 0, len(keys)+1)
		for _, k := range keys {
			row = append(row, cellText(m, k))
		}
		tw.AppendRow(append(row, strings.Join(m.State().Current(), " ")))
	}
	tw.AppendFooter(table.Row{humanize.Comma(int64(len(ms))) + " records"})
	style := table.StyleLight
	style.Format.Header = text.FormatDefault
	tw.SetStyle(style)
	fmt.Println(tw.Render())
}

func cellText(m *obj.Model, key string) string {
	p := m.Data(key)
	if p == nil {
		return ""
	}
	switch v := p.Get().(type) {
	case nil:
		return ""
	case *obj.Model:
		return v.ID()
	case *obj.Children:
		return humanize.Comma(int64(v.Len())) + " items"
	case int64:
		return humanize.Comma(v)
	case float64:
		return humanize.Commaf(v)
	default:
		return fmt.Sprint(v)
	}
}

func printEvents(evs []*evt.Event) {
	tw := table.NewWriter()
	tw.AppendHeader(table.Row{"id", "rev", "cmd", "arg"})
	for _, ev := range evs {
		tw.AppendRow(table.Row{ev.ID, humanize.Time(ev.Rev), ev.Cmd, string(ev.Arg)})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{{Number: 4, WidthMax: 60}})
	tw.SetStyle(table.StyleLight)
	fmt.Println(tw.Render())
}

func completer(c *dom.Catalog) liner.Completer {
	cmds := []string{"list", "get", "new", "set", "del", "hist", "help"}
	return func(line string) (res []string) {
		cmd, rest, ok := strings.Cut(line, " ")
		if !ok {
			for _, s := range cmds {
				if strings.HasPrefix(s, cmd) {
					res = append(res, s+" ")
				}
			}
			return res
		}
		for _, name := range c.Names() {
			if !strings.Contains(rest, " ") && strings.HasPrefix(name, rest) {
				res = append(res, cmd+" "+name+" ")
			}
		}
		return res
	}
}
