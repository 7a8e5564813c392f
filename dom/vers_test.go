package dom

import (
	"strings"
	"testing"
)

func TestManifest(t *testing.T) {
	c, err := ReadCatalog(strings.NewReader(`{
		"Contact": {"properties": {"id": {"type": "string"}, "name": {"type": "string"}}},
		"Tag": {"properties": {"id": {"type": "string"}}}
	}`))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	mf, err := Manifest(nil).Update(c)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(mf) != 2 || mf[0].Name != "Contact" || mf[0].Vers != 1 || len(mf[0].Hash) != 64 {
		t.Fatalf("want two first versions got %v", mf)
	}
	same, _ := mf.Update(c)
	if v, _ := same.Get("Tag"); v != mf[1] {
		t.Errorf("unchanged feather must keep its version got %v", v)
	}
	c.Feather("Tag").Description = "a label"
	next, _ := mf.Update(c)
	if v, ok := next.Get("Tag"); !ok || v.Vers != 2 || v.Hash == mf[1].Hash {
		t.Errorf("changed feather want version 2 got %v", v)
	}
	if _, ok := next.Get("Unicorn"); ok {
		t.Errorf("want no version for unknown feather")
	}
	mf = Manifest(nil).Set(Version{Name: "b"}).Set(Version{Name: "a"}).Set(Version{Name: "b", Vers: 3})
	if len(mf) != 2 || mf[0].Name != "a" || mf[1].Vers != 3 {
		t.Errorf("want sorted manifest got %v", mf)
	}
}
