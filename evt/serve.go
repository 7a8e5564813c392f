package evt

import (
	"encoding/json"
	"time"

	"github.com/mb0/feather/hub"
)

// decode unmarshals the raw message body or uses the data if it already has the request type.
func decode(m *hub.Msg, req interface{}) error {
	if len(m.Raw) == 0 && m.Data != nil {
		b, err := json.Marshal(m.Data)
		if err != nil {
			return err
		}
		return json.Unmarshal(b, req)
	}
	return json.Unmarshal(m.Raw, req)
}

type SubReq struct {
	List []Watch `json:"list"`
}

type SubRes struct {
	Res *Update `json:"res,omitempty"`
	Err string  `json:"err,omitempty"`
}

// SubFunc serves subscription requests and returns the events since the watched revisions.
type SubFunc func(*hub.Msg, SubReq) (*Update, error)

func (f SubFunc) Serve(m *hub.Msg) interface{} {
	var req SubReq
	err := decode(m, &req)
	if err != nil {
		return SubRes{Err: err.Error()}
	}
	res, err := f(m, req)
	if err != nil {
		return SubRes{Err: err.Error()}
	}
	return SubRes{Res: res}
}

type UnsReq struct {
	List []Watch `json:"list"`
}

type UnsRes struct {
	Res bool   `json:"res,omitempty"`
	Err string `json:"err,omitempty"`
}

type UnsFunc func(*hub.Msg, UnsReq) (bool, error)

func (f UnsFunc) Serve(m *hub.Msg) interface{} {
	var req UnsReq
	err := decode(m, &req)
	if err != nil {
		return UnsRes{Err: err.Error()}
	}
	res, err := f(m, req)
	if err != nil {
		return UnsRes{Err: err.Error()}
	}
	return UnsRes{Res: res}
}

type HistReq struct {
	Sig
}

type HistRes struct {
	Res *Update `json:"res,omitempty"`
	Err string  `json:"err,omitempty"`
}

// HistFunc serves the event history of a record signature.
type HistFunc func(*hub.Msg, HistReq) (*Update, error)

func (f HistFunc) Serve(m *hub.Msg) interface{} {
	var req HistReq
	err := decode(m, &req)
	if err != nil {
		return HistRes{Err: err.Error()}
	}
	res, err := f(m, req)
	if err != nil {
		return HistRes{Err: err.Error()}
	}
	return HistRes{Res: res}
}

// Hist returns a history function for ledger l.
func Hist(l Ledger) HistFunc {
	return func(_ *hub.Msg, req HistReq) (*Update, error) {
		evs, err := l.Events(time.Time{}, req.Top)
		if err != nil {
			return nil, err
		}
		return &Update{Rev: l.Rev(), Evs: Collect(evs, req.Sig)}, nil
	}
}
