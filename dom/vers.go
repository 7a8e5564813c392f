package dom

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// Version contains essential details to derive a new version number for a feather.
//
// Vers is a positive integer for known versions. The hash is a lowercase hex string of an sha256
// hash of the feather name and its JSON representation.
type Version struct {
	Name string `json:"name"`
	Vers int64  `json:"vers"`
	Hash string `json:"hash"`
}

// Manifest is set of versions sorted by name, usually for all feathers of one catalog.
type Manifest []Version

func (mf Manifest) idx(name string) int {
	return sort.Search(len(mf), func(i int) bool { return mf[i].Name >= name })
}

// Get returns the version for the feather name or false if no version was found.
func (mf Manifest) Get(name string) (Version, bool) {
	i := mf.idx(name)
	if i >= len(mf) || mf[i].Name != name {
		return Version{}, false
	}
	return mf[i], true
}

// Set inserts a version into the manifest and returns the result.
func (mf Manifest) Set(v Version) Manifest {
	i := mf.idx(v.Name)
	if i >= len(mf) {
		return append(mf, v)
	}
	if mf[i].Name != v.Name {
		mf = append(mf[:i+1], mf[i:]...)
	}
	mf[i] = v
	return mf
}

// Hash returns the version hash of feather f.
func Hash(f *Feather) (string, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write([]byte(f.Name))
	h.Write(b)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Update returns a new manifest with the versions of all feathers in c. Feathers that are new or
// have changed since the versions recorded in mf get the next version number.
func (mf Manifest) Update(c *Catalog) (Manifest, error) {
	res := make(Manifest, 0, len(c.Feathers))
	for _, f := range c.Feathers {
		hash, err := Hash(f)
		if err != nil {
			return nil, err
		}
		v, ok := mf.Get(f.Name)
		if !ok {
			v = Version{Name: f.Name}
		}
		if v.Hash != hash {
			v.Vers++
			v.Hash = hash
		}
		res = res.Set(v)
	}
	return res, nil
}
