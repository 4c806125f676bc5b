package dto

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"catalog/pkg/rpc"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

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

// Validate checks s against its validate tags and reports failures as a
// client error.
func Validate(s any) error {
	if err := validate.Struct(s); err != nil {
		return validationError("", err)
	}
	return nil
}

// ValidateIDs checks a bare list of product ids.
func ValidateIDs(ids []uint) error {
	if err := validate.Var(ids, "required,min=1,dive,gte=1"); err != nil {
		return validationError("ids", err)
	}
	return nil
}

func validationError(field string, err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return rpc.BadRequest(err.Error())
	}

	messages := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		name := e.Field()
		if name == "" || field != "" {
			name = field
		}
		messages = append(messages, fmt.Sprintf("Field '%s' failed on the '%s' tag", name, e.Tag()))
	}
	return rpc.BadRequest("Validation failed: " + strings.Join(messages, "; "))
}
