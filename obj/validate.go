package obj

import (
	"github.com/mb0/feather/rule"
	"github.com/pkg/errors"
)

// Validator returns an error if the model is not valid.
type Validator func(m *Model) error

// ValidationError describes why a model is invalid. Key names the property if any.
type ValidationError struct {
	Key string
	Msg string
	Err error
}

func (e *ValidationError) Error() string {
	if e.Msg == "" && e.Err != nil {
		return e.Err.Error()
	}
	return e.Msg
}

func (e *ValidationError) Unwrap() error { return e.Err }

// OnValidate adds a validator. Validators run in the order they were added.
func (m *Model) OnValidate(v Validator) { m.validators = append(m.validators, v) }

// IsValid runs the validators until the first failure. The failure is recorded as last error and
// passed to the error handlers.
func (m *Model) IsValid() bool {
	for _, v := range m.validators {
		err := v(m)
		if err == nil {
			continue
		}
		var ve *ValidationError
		if !errors.As(err, &ve) {
			err = &ValidationError{Err: err}
		}
		m.doError(err)
		return false
	}
	return true
}

func validateRequired(m *Model) error {
	for _, k := range m.keys {
		p := m.data[k]
		if p.IsRequired() && p.Get() == nil {
			return &ValidationError{Key: k, Msg: `"` + k + `" is required`}
		}
	}
	return nil
}

func ruleValidator(set *rule.Set) Validator {
	return func(m *Model) error {
		err := set.Check(m.JSON())
		var v *rule.Violation
		if errors.As(err, &v) {
			return &ValidationError{Msg: v.Error(), Err: err}
		}
		return err
	}
}
