package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/docopt/docopt-go"
	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mb0/feather/dom"
	"github.com/mb0/feather/rule"
	"github.com/pkg/errors"
)

func check(opts docopt.Opts) error {
	c, err := catalog(opts)
	if err != nil {
		return err
	}
	rels, err := c.Relations()
	if err != nil {
		return err
	}
	mf, err := dom.Manifest(nil).Update(c)
	if err != nil {
		return err
	}
	tw := table.NewWriter()
	tw.SetTitle("\nFEATHER CATALOG\n")
	tw.AppendHeader(table.Row{"\nFeather", "\nResource", "\nProperties", "\nRelations", "\nRules", "\nHash"})
	var props int
	for _, f := range c.Feathers {
		set, err := rule.Compile(f)
		if err != nil {
			return errors.Wrapf(err, "rules of %s", f.Name)
		}
		var links []string
		if r := rels[f.Name]; r != nil {
			for _, l := range r.Out {
				links = append(links, l.String())
			}
		}
		var rules []string
		if set != nil {
			for _, r := range set.Rules {
				rules = append(rules, r.Name)
			}
		}
		props += len(f.Props)
		v, _ := mf.Get(f.Name)
		tw.AppendRow(table.Row{f.Name, f.Resource() + "\n" + f.PluralResource(),
			strings.Join(f.Keys(), "\n"), strings.Join(links, "\n"), strings.Join(rules, "\n"), v.Hash[:12]})
	}
	tw.AppendFooter(table.Row{humanize.Comma(int64(len(c.Feathers))) + " feathers", "",
		humanize.Comma(int64(props)) + " properties"})
	style := table.StyleLight
	style.Format.Header = text.FormatDefault
	style.Options.SeparateRows = true
	tw.SetStyle(style)
	fmt.Println(tw.Render())
	return nil
}

func graph(opts docopt.Opts) error {
	c, err := catalog(opts)
	if err != nil {
		return err
	}
	rels, err := c.Relations()
	if err != nil {
		return err
	}
	var b bytes.Buffer
	b.WriteString("digraph catalog {\ngraph [rankdir=LR]\nnode [shape=record]\n")
	for _, f := range c.Feathers {
		fmt.Fprintf(&b, "%q [label=%q]\n", f.Name, f.Name+"|"+strings.Join(f.Keys(), "\\l"))
	}
	for _, l := range rels.Links() {
		style := "solid"
		if l.Kind == dom.ChildOf {
			style = "dashed"
		}
		fmt.Fprintf(&b, "%q -> %q [label=%q style=%s]\n", l.A.Name, l.B.Name, l.A.Key, style)
	}
	b.WriteString("}\n")
	_, err = io.Copy(os.Stdout, &b)
	return err
}
