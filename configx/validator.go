package configx

import (
	stderrors "errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"go.eggybyte.com/o11y/core/errors"
)

// ValidatorOption configures the validator.
type ValidatorOption func(*validator.Validate)

// NewValidator creates a validator that also checks nested structs marked required.
func NewValidator(opts ...ValidatorOption) *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// validator.Validate caches struct metadata and is safe for concurrent use.
var defaultValidator = NewValidator()

// ValidateStruct checks target against its validate tags; a nil v uses the
// package validator. Failures carry CodeInvalidArgument and describe every
// failing field, e.g. "Config.MeterRatio must be gte 1".
func ValidateStruct(v *validator.Validate, target any) error {
	if v == nil {
		v = defaultValidator
	}
	err := v.Struct(target)
	if err == nil {
		return nil
	}

	var fields validator.ValidationErrors
	if !stderrors.As(err, &fields) {
		return errors.Wrap(errors.CodeInvalidArgument, "configx.ValidateStruct", err)
	}
	msgs := make([]string, 0, len(fields))
	for _, fe := range fields {
		msgs = append(msgs, describe(fe))
	}
	return errors.Wrapf(errors.CodeInvalidArgument, "configx.ValidateStruct", err, "%s", strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Namespace() + " failed " + fe.Tag()
	}
	return fe.Namespace() + " must be " + fe.Tag() + " " + fe.Param()
}
