// Package log provides a small key-value logger interface used by models, sources and transports.
package log

import (
	"fmt"
	"log"
	"strings"
)

// Root is the logger used by packages when no other logger was configured.
var Root Logger = &Default{}

// Logger is logger interface. The variadic arguments are key value pairs. The key must be a
// string and the value should have a meaningful string representations.
type Logger interface {
	Debug(string, ...interface{})
	Error(string, ...interface{})
	Crit(string, ...interface{})
	With(...interface{}) Logger
}

// Default writes to the standard library logger or Out if set. Debug messages are dropped
// unless Verbose is true.
type Default struct {
	Out     *log.Logger
	Verbose bool
	Tags    []interface{}
}

func (l *Default) Debug(m string, s ...interface{}) {
	if l.Verbose {
		l.print(tfmt("DEB ", m, s, l.Tags))
	}
}
func (l *Default) Error(m string, s ...interface{}) { l.print(tfmt("ERR ", m, s, l.Tags)) }
func (l *Default) Crit(m string, s ...interface{})  { l.print(tfmt("CRI ", m, s, l.Tags)) }
func (l *Default) With(tags ...interface{}) Logger {
	return l.with(tags)
}
func (l *Default) with(tags []interface{}) *Default {
	t := make([]interface{}, 0, len(tags)+len(l.Tags))
	t = append(t, tags...)
	t = append(t, l.Tags...)
	return &Default{Out: l.Out, Verbose: l.Verbose, Tags: t}
}

func (l *Default) print(msg string) {
	if l.Out != nil {
		l.Out.Print(msg)
	} else {
		log.Print(msg)
	}
}

// Discard is a logger that drops all messages.
type Discard struct{}

func (Discard) Debug(string, ...interface{}) {}
func (Discard) Error(string, ...interface{}) {}
func (Discard) Crit(string, ...interface{})  {}
func (Discard) With(...interface{}) Logger   { return Discard{} }

// Or returns l or Root if l is nil.
func Or(l Logger) Logger {
	if l == nil {
		return Root
	}
	return l
}

func tfmt(lvl, msg string, all ...[]interface{}) string {
	var b strings.Builder
	b.WriteString(lvl)
	b.WriteString(msg)
	for _, tags := range all {
		for i, v := range tags {
			if i%2 == 0 {
				b.WriteByte(' ')
			} else {
				b.WriteByte('=')
			}
			b.WriteString(fmt.Sprint(v))
		}
	}
	return b.String()
}
