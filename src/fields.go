package src

import (
	"encoding/json"
	"time"

	"github.com/mb0/feather/dom"
	"github.com/mb0/feather/patch"
	"github.com/mb0/feather/prop"
	"github.com/pkg/errors"
)

// Server maintained properties. Sources set them if the feather declares them.
const (
	KeyCreated = "created"
	KeyUpdated = "updated"
)

// Stamp returns t formatted as server timestamp.
func Stamp(t time.Time) string { return t.UTC().Format(prop.DateTimeLayout) }

// PostFields assigns a new id if doc has none and sets the creation and update timestamps
// declared by f to now. It returns the record id and the changes as patch.
func PostFields(f *dom.Feather, doc map[string]interface{}, now string) (string, patch.Patch) {
	var res patch.Patch
	set := func(key string, val interface{}) {
		op := "add"
		if _, ok := doc[key]; ok {
			op = "replace"
		}
		res = append(res, patch.Op{Op: op, Path: "/" + patch.Escape(key), Value: val})
		doc[key] = val
	}
	key := f.ID()
	id, _ := doc[key].(string)
	if id == "" {
		id = prop.CreateID()
		set(key, id)
	}
	if f.Prop(KeyCreated) != nil {
		set(KeyCreated, now)
	}
	if f.Prop(KeyUpdated) != nil {
		set(KeyUpdated, now)
	}
	return id, res
}

// PatchFields returns the patch setting the update timestamp declared by f to now or nil.
func PatchFields(f *dom.Feather, now string) patch.Patch {
	if f.Prop(KeyUpdated) == nil {
		return nil
	}
	return patch.Patch{{Op: "add", Path: "/" + KeyUpdated, Value: now}}
}

// Doc returns the request data of a write as record document.
func Doc(data interface{}) (map[string]interface{}, error) {
	v, err := patch.Normalize(data)
	if err != nil {
		return nil, err
	}
	doc, ok := v.(map[string]interface{})
	if !ok {
		return nil, errors.Errorf("want record document got %T", data)
	}
	return doc, nil
}

// DataPatch returns the request data of a patch request as patch.
func DataPatch(data interface{}) (patch.Patch, error) {
	if p, ok := data.(patch.Patch); ok {
		return p, nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return patch.Decode(b)
}
