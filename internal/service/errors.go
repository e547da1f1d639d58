package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/zeebo/errs"
)

// Error kinds returned by the services.  The HTTP layer maps each class to
// a status code and shows the message after the class prefix to the user.
var (
	ErrValidation   = errs.Class("validation")
	ErrUnauthorized = errs.Class("unauthorized")
	ErrForbidden    = errs.Class("forbidden")
	ErrNotFound     = errs.Class("not found")
	ErrMailDelivery = errs.Class("mail delivery")
)

// newValidator returns a validator that reports fields by their json name.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validate checks in against its struct tags and turns the first failure
// into an ErrValidation with a readable message.
func validate(v *validator.Validate, in any) error {
	err := v.Struct(in)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return ErrValidation.Wrap(err)
	}
	fe := fieldErrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return ErrValidation.New("%s is required", field)
	case "email":
		return ErrValidation.New("%s must be a valid email address", field)
	case "min":
		if fe.Kind() == reflect.String {
			return ErrValidation.New("%s must be at least %s characters", field, fe.Param())
		}
		return ErrValidation.New("%s must be at least %s", field, fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return ErrValidation.New("%s must be at most %s characters", field, fe.Param())
		}
		return ErrValidation.New("%s must be at most %s", field, fe.Param())
	case "len":
		return ErrValidation.New("%s must contain exactly %s entries", field, fe.Param())
	}
	return ErrValidation.New("%s is invalid", field)
}

// Message returns the user-facing text of a classified error: the message
// without the class prefix errs adds.
func Message(err error) string {
	msg := err.Error()
	for _, cls := range []*errs.Class{&ErrValidation, &ErrUnauthorized, &ErrForbidden, &ErrNotFound, &ErrMailDelivery} {
		if cls.Has(err) {
			return strings.TrimPrefix(msg, fmt.Sprintf("%s: ", string(*cls)))
		}
	}
	return msg
}
