// Package src defines the data source boundary models use to fetch and persist their data.
//
// Requests address resources by data path. The path of a single record is '/data/<resource>/<id>'
// where resource is the spinal case feather name. New records are posted to the plural resource
// path without id.
//
//	GET    /data/contact/<id>     response: record document
//	GET    /data/contacts         response: list of record documents
//	POST   /data/contacts         data: record document          response: patch
//	PATCH  /data/contact/<id>     data: patch                    response: patch
//	DELETE /data/contact/<id>     response: patch or empty
//
// The request data of writes is wrapped as {"data": ...}. Responses of writes are patches the
// client applies to the document it sent, allowing the source to assign ids or computed fields.
package src

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/markbates/inflect"
	"github.com/pkg/errors"
)

// Method is a request method.
type Method string

const (
	GET    Method = "GET"
	POST   Method = "POST"
	PATCH  Method = "PATCH"
	DELETE Method = "DELETE"
)

// Request is a data source request.
type Request struct {
	Method Method      `json:"method"`
	Path   string      `json:"path"`
	Data   interface{} `json:"data,omitempty"`
}

func (r *Request) String() string { return string(r.Method) + " " + r.Path }

// Body returns the request data wrapped as data object or nil.
func (r *Request) Body() interface{} {
	if r.Data == nil {
		return nil
	}
	return map[string]interface{}{"data": r.Data}
}

// Source is the interface for data sources. Implementations must be safe for concurrent use.
type Source interface {
	Request(ctx context.Context, req *Request) (json.RawMessage, error)
}

// SourceFunc implements Source for simple functions.
type SourceFunc func(context.Context, *Request) (json.RawMessage, error)

func (f SourceFunc) Request(ctx context.Context, req *Request) (json.RawMessage, error) {
	return f(ctx, req)
}

var (
	// ErrConflict is returned when a source rejects a write because its data diverged.
	ErrConflict = errors.New("conflict")
	// ErrNotFound is returned when a source has no record for a request path.
	ErrNotFound = errors.New("not found")
)

// TransportError wraps any other error returned by a source request.
type TransportError struct {
	Req *Request
	Err error
}

func (e *TransportError) Error() string { return e.Req.String() + ": " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }
func (e *TransportError) Cause() error  { return e.Err }

// Wrap returns err wrapped as transport error for req, unless err is nil or a conflict.
func Wrap(req *Request, err error) error {
	if err == nil || errors.Is(err, ErrConflict) {
		return err
	}
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	return &TransportError{Req: req, Err: err}
}

// Path returns the data path for the resource name and an optional id.
func Path(name, id string) string {
	res := "/data/" + inflect.Dasherize(name)
	if id != "" {
		res += "/" + url.PathEscape(id)
	}
	return res
}

// ParsePath returns the resource and id segments of a data path or an error.
func ParsePath(path string) (res, id string, err error) {
	if !strings.HasPrefix(path, "/data/") {
		return "", "", errors.Errorf("invalid data path %q", path)
	}
	parts := strings.Split(strings.TrimPrefix(path, "/data/"), "/")
	if len(parts) > 2 || parts[0] == "" || len(parts) == 2 && parts[1] == "" {
		return "", "", errors.Errorf("invalid data path %q", path)
	}
	res = parts[0]
	if len(parts) == 2 {
		id, err = url.PathUnescape(parts[1])
		if err != nil {
			return "", "", errors.Wrapf(err, "invalid data path %q", path)
		}
	}
	return res, id, nil
}
