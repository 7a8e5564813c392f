// Package srchub serves data sources to remote models over hub connections.
//
// A data request is a hub message with subject 'data', a token and the source request as body.
// The reply carries the same subject and token and a result with either the raw response or an
// error message and code. Clients may subscribe to the write events of resources with the
// subjects 'sub' and 'unsub' and receive 'update' messages for watched topics. Servers may
// serve the catalog manifest with subject 'manifest', so clients can detect diverging catalogs.
package srchub

import (
	"encoding/json"

	"github.com/mb0/feather/dom"
	"github.com/mb0/feather/hub"
	"github.com/mb0/feather/src"
	"github.com/pkg/errors"
)

const (
	SubjData   = "data"
	SubjSub    = "sub"
	SubjUnsub  = "unsub"
	SubjHist   = "hist"
	SubjUpdate = "update"
	SubjManif  = "manifest"
	subjBcast  = "_bcast"
)

// Error codes for source errors that clients map back to the sentinel errors.
const (
	CodeConflict = "conflict"
	CodeNotFound = "notfound"
)

// DataRes is the reply body of a data request.
type DataRes struct {
	Res  json.RawMessage `json:"res,omitempty"`
	Err  string          `json:"err,omitempty"`
	Code string          `json:"code,omitempty"`
}

// ManifRes is the reply body of a manifest request.
type ManifRes struct {
	Res dom.Manifest `json:"res"`
}

// RemoteError is an error returned by a remote data service.
type RemoteError struct {
	Msg  string
	Code string
}

func (e *RemoteError) Error() string { return e.Msg }

// Unwrap returns the sentinel error for known error codes.
func (e *RemoteError) Unwrap() error {
	switch e.Code {
	case CodeConflict:
		return src.ErrConflict
	case CodeNotFound:
		return src.ErrNotFound
	}
	return nil
}

func errRes(err error) DataRes {
	res := DataRes{Err: err.Error()}
	switch {
	case errors.Is(err, src.ErrConflict):
		res.Code = CodeConflict
	case errors.Is(err, src.ErrNotFound):
		res.Code = CodeNotFound
	}
	return res
}

// decode unmarshals the raw message body or converts the message data into v.
func decode(m *hub.Msg, v interface{}) error {
	if len(m.Raw) == 0 {
		if m.Data == nil {
			return errors.Errorf("empty %s message", m.Subj)
		}
		b, err := json.Marshal(m.Data)
		if err != nil {
			return err
		}
		return json.Unmarshal(b, v)
	}
	return json.Unmarshal(m.Raw, v)
}
