// Package rule compiles feather rules, boolean CEL expressions over the model data.
//
// The model data is available as map variable 'self'. A rule like
//
//	self.code == null || size(self.code) <= 4
//
// holds for currency units with a missing or short code.
package rule

import (
	"strconv"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/mb0/feather/dom"
	"github.com/pkg/errors"
)

// SelfKey is the variable name for the model data.
const SelfKey = "self"

// Violation is returned when a rule does not hold.
type Violation struct {
	Rule string
	Msg  string
}

func (v *Violation) Error() string {
	if v.Msg != "" {
		return v.Msg
	}
	return "rule " + v.Rule + " failed"
}

// Rule is a compiled rule.
type Rule struct {
	dom.Rule
	prg cel.Program
}

// Set is the list of compiled rules for a feather.
type Set struct {
	Feather string
	Rules   []*Rule
}

var envOnce struct {
	sync.Once
	env *cel.Env
	err error
}

func env() (*cel.Env, error) {
	envOnce.Do(func() {
		envOnce.env, envOnce.err = cel.NewEnv(
			cel.Variable(SelfKey, cel.MapType(cel.StringType, cel.DynType)),
		)
	})
	return envOnce.env, envOnce.err
}

// Compile parses, checks and plans all rules of feather f and returns the set or an error.
func Compile(f *dom.Feather) (*Set, error) {
	e, err := env()
	if err != nil {
		return nil, err
	}
	res := &Set{Feather: f.Name}
	for i, r := range f.Rules {
		if r.Name == "" {
			r.Name = f.Name + "." + strconv.Itoa(i+1)
		}
		prg, err := compile(e, r)
		if err != nil {
			return nil, errors.Wrapf(err, "feather %s", f.Name)
		}
		res.Rules = append(res.Rules, &Rule{Rule: r, prg: prg})
	}
	return res, nil
}

func compile(e *cel.Env, r dom.Rule) (cel.Program, error) {
	p, iss := e.Parse(r.Expr)
	if iss != nil && iss.Err() != nil {
		return nil, errors.Wrapf(iss.Err(), "parsing rule %s", r.Name)
	}
	c, iss := e.Check(p)
	if iss != nil && iss.Err() != nil {
		return nil, errors.Wrapf(iss.Err(), "checking rule %s", r.Name)
	}
	if t := c.OutputType(); t != cel.BoolType && t != cel.DynType {
		return nil, errors.Errorf("rule %s must be boolean got %s", r.Name, t)
	}
	prg, err := e.Program(c)
	if err != nil {
		return nil, errors.Wrapf(err, "generating program %s", r.Name)
	}
	return prg, nil
}

// Eval reports whether the rule holds for data or returns an evaluation error.
func (r *Rule) Eval(data map[string]interface{}) (bool, error) {
	out, _, err := r.prg.Eval(map[string]interface{}{SelfKey: data})
	if err != nil {
		return false, errors.Wrapf(err, "evaluating rule %s", r.Name)
	}
	ok, isBool := out.Value().(bool)
	if !isBool {
		return false, errors.Errorf("rule %s must be boolean got %T", r.Name, out.Value())
	}
	return ok, nil
}

// Check evaluates the rules in order and returns the first violation or evaluation error.
func (s *Set) Check(data map[string]interface{}) error {
	for _, r := range s.Rules {
		ok, err := r.Eval(data)
		if err != nil {
			return err
		}
		if !ok {
			return &Violation{Rule: r.Name, Msg: r.Message}
		}
	}
	return nil
}

// Cache compiles and caches rule sets by feather name. It is safe for concurrent use.
type Cache struct {
	mu   sync.Mutex
	sets map[string]*Set
}

// Get returns the cached or newly compiled rule set for f.
func (c *Cache) Get(f *dom.Feather) (*Set, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s := c.sets[f.Name]; s != nil {
		return s, nil
	}
	s, err := Compile(f)
	if err != nil {
		return nil, err
	}
	if c.sets == nil {
		c.sets = make(map[string]*Set)
	}
	c.sets[f.Name] = s
	return s, nil
}
