package prop

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/mb0/feather/dom"
	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
)

// Formatter converts between the representation callers use and the internal store of a cell.
type Formatter struct {
	// ToType converts input to the internal type. Nil input usually stays nil.
	ToType func(interface{}) (interface{}, error)
	// FromType formats the internal value for output.
	FromType func(interface{}) interface{}
	// Default returns the default value for properties without declared default.
	Default func() interface{}
}

func (f Formatter) toType(v interface{}) (interface{}, error) {
	if f.ToType == nil {
		return v, nil
	}
	return f.ToType(v)
}

func (f Formatter) fromType(v interface{}) interface{} {
	if f.FromType == nil {
		return v
	}
	return f.FromType(v)
}

// ScaleDefault is the number of fraction digits numbers are rounded to without declared scale.
const ScaleDefault = 2

const (
	DateLayout     = "2006-01-02"
	DateTimeLayout = time.RFC3339Nano
)

// Types maps scalar type names to formatters.
var Types = map[string]Formatter{
	"string":  {ToType: toString},
	"boolean": {ToType: toBool, Default: func() interface{} { return false }},
	"integer": {ToType: toInt, Default: func() interface{} { return int64(0) }},
	"number":  Number(ScaleDefault),
	"object":  {ToType: toObject},
	"array":   {ToType: toArray, Default: func() interface{} { return []interface{}{} }},
}

// Formats maps format names to formatters. Formats take precedence over types.
var Formats = map[string]Formatter{
	"date":     {ToType: toDate, Default: func() interface{} { return Today() }},
	"dateTime": {ToType: toDateTime},
	"money":    {ToType: toMoney},
	"password": Types["string"],
	"email":    Types["string"],
	"url":      Types["string"],
	"tel":      Types["string"],
	"color":    {ToType: toString, Default: func() interface{} { return "#000000" }},
	"textArea": Types["string"],
}

// DefaultFuncs maps names to functions that can be used as property default by appending
// parenthesis like "createId()".
var DefaultFuncs = map[string]func() interface{}{
	"createId": func() interface{} { return CreateID() },
	"now":      func() interface{} { return time.Now().UTC().Format(DateTimeLayout) },
	"today":    func() interface{} { return Today() },
}

// CreateID returns a new unique and sortable identifier.
func CreateID() string { return ulid.Make().String() }

// Today returns the current local date.
func Today() string { return time.Now().Format(DateLayout) }

// Lookup returns the formatter for the scalar declaration p. Formats are looked up first.
func Lookup(p *dom.Prop) Formatter {
	if f, ok := Formats[p.Format]; ok {
		return f
	}
	if p.Type == "number" {
		if p.Scale != nil {
			return Number(*p.Scale)
		}
		return Number(ScaleDefault)
	}
	return Types[p.Type]
}

// Number returns a number formatter rounding to scale fraction digits.
func Number(scale int) Formatter {
	pow := math.Pow(10, float64(scale))
	return Formatter{
		ToType: func(v interface{}) (interface{}, error) {
			f, err := toFloat(v)
			if f == nil || err != nil {
				return f, err
			}
			return math.Round(f.(float64)*pow) / pow, nil
		},
		Default: func() interface{} { return float64(0) },
	}
}

func toString(v interface{}) (interface{}, error) {
	switch s := v.(type) {
	case nil, string:
		return v, nil
	case []byte:
		return string(s), nil
	case fmt.Stringer:
		return s.String(), nil
	case bool, int, int32, int64, float32, float64:
		return fmt.Sprint(s), nil
	}
	return nil, errors.Errorf("cannot convert %T to string", v)
}

func toBool(v interface{}) (interface{}, error) {
	switch b := v.(type) {
	case nil, bool:
		return v, nil
	case string:
		return strconv.ParseBool(b)
	}
	f, err := toFloat(v)
	if err != nil {
		return nil, errors.Errorf("cannot convert %T to boolean", v)
	}
	return f.(float64) != 0, nil
}

func toInt(v interface{}) (interface{}, error) {
	switch n := v.(type) {
	case nil:
		return nil, nil
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case json.Number:
		return n.Int64()
	case string:
		return strconv.ParseInt(n, 10, 64)
	}
	f, err := toFloat(v)
	if err != nil {
		return nil, errors.Errorf("cannot convert %T to integer", v)
	}
	return int64(math.Round(f.(float64))), nil
}

func toFloat(v interface{}) (interface{}, error) {
	switch n := v.(type) {
	case nil:
		return nil, nil
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		return strconv.ParseFloat(n, 64)
	}
	return nil, errors.Errorf("cannot convert %T to number", v)
}

func toDate(v interface{}) (interface{}, error) {
	switch d := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return d.Format(DateLayout), nil
	case string:
		if d == "" {
			return nil, nil
		}
		if len(d) > len(DateLayout) {
			t, err := time.Parse(time.RFC3339, d)
			if err == nil {
				return t.Format(DateLayout), nil
			}
		}
		t, err := time.Parse(DateLayout, d)
		if err != nil {
			return nil, errors.Errorf("invalid date %q", d)
		}
		return t.Format(DateLayout), nil
	}
	return nil, errors.Errorf("cannot convert %T to date", v)
}

func toDateTime(v interface{}) (interface{}, error) {
	switch d := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return d.UTC().Format(DateTimeLayout), nil
	case string:
		if d == "" {
			return nil, nil
		}
		_, err := time.Parse(time.RFC3339, d)
		if err != nil {
			return nil, errors.Errorf("invalid date time %q", d)
		}
		return d, nil
	}
	return nil, errors.Errorf("cannot convert %T to date time", v)
}

func toObject(v interface{}) (interface{}, error) {
	switch v.(type) {
	case nil, map[string]interface{}:
		return v, nil
	}
	var res map[string]interface{}
	err := normalize(v, &res)
	if err != nil {
		return nil, errors.Errorf("cannot convert %T to object", v)
	}
	return res, nil
}

func toArray(v interface{}) (interface{}, error) {
	switch v.(type) {
	case nil, []interface{}:
		return v, nil
	}
	var res []interface{}
	err := normalize(v, &res)
	if err != nil {
		return nil, errors.Errorf("cannot convert %T to array", v)
	}
	return res, nil
}

func toMoney(v interface{}) (interface{}, error) {
	o, err := toObject(v)
	if o == nil || err != nil {
		return o, err
	}
	m := o.(map[string]interface{})
	amount, err := toFloat(m["amount"])
	if err != nil {
		return nil, errors.Wrap(err, "money amount")
	}
	if amount == nil {
		amount = float64(0)
	}
	cur, _ := m["currency"].(string)
	return map[string]interface{}{"amount": amount, "currency": cur}, nil
}

func normalize(v, res interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, res)
}
