package evt

import (
	"encoding/json"

	"github.com/mb0/feather/patch"
	"github.com/pkg/errors"
)

// Collect returns the events with signature s.
func Collect(evs []*Event, s Sig) (res []*Event) {
	for _, ev := range evs {
		if ev.Sig == s {
			res = append(res, ev)
		}
	}
	return res
}

// Compact merges the events per signature and returns one action for each, in order of the
// first event of each signature.
func Compact(evs []*Event) ([]Action, error) {
	idx := make(map[Sig]int)
	var res []Action
	for _, ev := range evs {
		i, ok := idx[ev.Sig]
		if !ok {
			idx[ev.Sig] = len(res)
			res = append(res, ev.Action)
			continue
		}
		a, err := Merge(res[i], ev.Action)
		if err != nil {
			return nil, err
		}
		res[i] = a
	}
	return res, nil
}

// Merge returns one action with the effect of a followed by b.
func Merge(a, b Action) (_ Action, err error) {
	if a.Sig != b.Sig {
		return a, errors.Errorf("event signature mismatch %v != %v", a.Sig, b.Sig)
	}
	switch a.Cmd {
	case CmdDel:
		switch b.Cmd {
		case CmdNew:
			return b, nil
		case CmdMod:
			return a, errors.Errorf("modify after delete action for %v", a.Sig)
		case CmdDel:
			return a, errors.Errorf("double delete action for %v", a.Sig)
		}
	case CmdNew, CmdMod:
		switch b.Cmd {
		case CmdNew:
			return a, errors.Errorf("create action for existing %v", a.Sig)
		case CmdMod:
			if a.Cmd == CmdNew {
				a.Arg, err = applyArg(a.Arg, b.Arg)
			} else {
				a.Arg, err = joinArg(a.Arg, b.Arg)
			}
			return a, err
		case CmdDel:
			return b, nil
		}
	default:
		return a, errors.Errorf("unresolved action %s", a.Cmd)
	}
	return a, errors.Errorf("unresolved action %s", b.Cmd)
}

func applyArg(doc, p json.RawMessage) (json.RawMessage, error) {
	var d map[string]interface{}
	err := json.Unmarshal(doc, &d)
	if err != nil {
		return nil, errors.Wrap(err, "decode document")
	}
	ops, err := patch.Decode(p)
	if err != nil {
		return nil, err
	}
	d, err = patch.Apply(d, ops)
	if err != nil {
		return nil, err
	}
	return json.Marshal(d)
}

func joinArg(a, b json.RawMessage) (json.RawMessage, error) {
	pa, err := patch.Decode(a)
	if err != nil {
		return nil, err
	}
	pb, err := patch.Decode(b)
	if err != nil {
		return nil, err
	}
	return json.Marshal(append(pa, pb...))
}
