// Package patch computes and applies JSON patches as described in RFC 6902.
//
// Diff treats nil list elements in the new document as holes: an element that was present in
// the old list and is nil at the same index in the new list is removed. Child collections use
// holes to keep the positions of the remaining elements stable until the next fetch.
package patch

import (
	"bytes"
	"encoding/json"
	"reflect"
	"sort"
	"strconv"
	"strings"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/pkg/errors"
)

// Op is a single patch operation.
type Op struct {
	Op    string      `json:"op"`
	Path  string      `json:"path"`
	From  string      `json:"from,omitempty"`
	Value interface{} `json:"value,omitempty"`
}

func (o Op) MarshalJSON() ([]byte, error) {
	switch o.Op {
	case "add", "replace", "test":
		return json.Marshal(struct {
			Op    string      `json:"op"`
			Path  string      `json:"path"`
			Value interface{} `json:"value"`
		}{o.Op, o.Path, o.Value})
	}
	type plain Op
	return json.Marshal(plain(o))
}

// Patch is an ordered list of operations.
type Patch []Op

func (p Patch) String() string {
	b, err := json.Marshal(p)
	if err != nil {
		return err.Error()
	}
	return string(b)
}

// Decode returns the patch in raw. Empty input, null and empty objects are empty patches.
func Decode(raw []byte) (Patch, error) {
	raw = bytes.TrimSpace(raw)
	switch string(raw) {
	case "", "null", "{}":
		return nil, nil
	}
	var res Patch
	err := json.Unmarshal(raw, &res)
	if err != nil {
		return nil, errors.Wrap(err, "decode patch")
	}
	return res, nil
}

// Normalize returns v converted to plain JSON data: maps, slices, strings, float64, bool and nil.
func Normalize(v interface{}) (interface{}, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var res interface{}
	err = json.Unmarshal(b, &res)
	return res, err
}

// Apply returns the result of applying p to doc. The doc itself is never modified.
func Apply(doc map[string]interface{}, p Patch) (map[string]interface{}, error) {
	if len(p) == 0 {
		return doc, nil
	}
	pb, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	jp, err := jsonpatch.DecodePatch(pb)
	if err != nil {
		return nil, errors.Wrap(err, "decode patch")
	}
	db, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	rb, err := jp.Apply(db)
	if err != nil {
		return nil, errors.Wrap(err, "apply patch")
	}
	var res map[string]interface{}
	err = json.Unmarshal(rb, &res)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Diff returns the patch that turns a into b.
func Diff(a, b interface{}) (Patch, error) {
	na, err := Normalize(a)
	if err != nil {
		return nil, err
	}
	nb, err := Normalize(b)
	if err != nil {
		return nil, err
	}
	var d differ
	d.diff("", na, nb)
	return d.ops, nil
}

type differ struct{ ops Patch }

func (d *differ) add(op, path string, val interface{}) {
	d.ops = append(d.ops, Op{Op: op, Path: path, Value: val})
}

func (d *differ) diff(path string, a, b interface{}) {
	switch av := a.(type) {
	case map[string]interface{}:
		if bv, ok := b.(map[string]interface{}); ok {
			d.diffMap(path, av, bv)
			return
		}
	case []interface{}:
		if bv, ok := b.([]interface{}); ok {
			d.diffList(path, av, bv)
			return
		}
	}
	if !reflect.DeepEqual(a, b) {
		d.add("replace", path, b)
	}
}

func (d *differ) diffMap(path string, a, b map[string]interface{}) {
	for _, k := range sortedKeys(a) {
		if _, ok := b[k]; !ok {
			d.add("remove", path+"/"+Escape(k), nil)
		}
	}
	for _, k := range sortedKeys(b) {
		av, ok := a[k]
		if !ok {
			d.add("add", path+"/"+Escape(k), b[k])
			continue
		}
		d.diff(path+"/"+Escape(k), av, b[k])
	}
}

func (d *differ) diffList(path string, a, b []interface{}) {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var holes []int
	for i := 0; i < n; i++ {
		if b[i] == nil && a[i] != nil {
			holes = append(holes, i)
			continue
		}
		d.diff(path+"/"+strconv.Itoa(i), a[i], b[i])
	}
	for i := len(a) - 1; i >= n; i-- {
		d.add("remove", path+"/"+strconv.Itoa(i), nil)
	}
	for i := len(holes) - 1; i >= 0; i-- {
		d.add("remove", path+"/"+strconv.Itoa(holes[i]), nil)
	}
	for i := n; i < len(b); i++ {
		if b[i] != nil {
			d.add("add", path+"/-", b[i])
		}
	}
}

func sortedKeys(m map[string]interface{}) []string {
	res := make([]string, 0, len(m))
	for k := range m {
		res = append(res, k)
	}
	sort.Strings(res)
	return res
}

var escaper = strings.NewReplacer("~", "~0", "/", "~1")

// Escape returns key escaped as JSON pointer segment.
func Escape(key string) string { return escaper.Replace(key) }
