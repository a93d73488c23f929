package core

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"tourism/internal/types"
)

// Validator wraps go-playground/validator and reports failures as
// *types.AppError keyed by JSON field names.
type Validator struct {
	v *validator.Validate
}

// NewValidator creates a Validator that names fields by their json tag.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	return &Validator{v: v}
}

// ValidateStruct checks s against its validate tags. A missing required
// field yields validation_missing_required_field; any other rule yields
// validation_invalid_field. Details carry the failing field and rule.
func (v *Validator) ValidateStruct(s any) error {
	err := v.v.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "validation failed", err)
	}

	fe := verrs[0]
	details := map[string]any{"field": fe.Field(), "rule": fe.Tag()}
	if fe.Param() != "" {
		details["param"] = fe.Param()
	}
	if fe.Tag() == "required" {
		return types.NewAppErrorWithDetails(types.ErrCodeValidationMissingField,
			fe.Field()+" is required", err, details)
	}
	return types.NewAppErrorWithDetails(errCodeValidationInvalidField,
		fe.Field()+" is invalid", err, details)
}

const errCodeValidationInvalidField types.ErrorCode = "validation_invalid_field"
