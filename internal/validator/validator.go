// Package validator is a thin wrapper around go-playground/validator with
// standardized error formatting.
package validator

import (
	"errors"
	"fmt"

	gvalidator "github.com/go-playground/validator/v10"
	"github.com/mr-tron/base58"
)

// ErrValidationFailed is the first error in the chain returned by Validate.
var ErrValidationFailed = errors.New("struct validation failed")

var validator *gvalidator.Validate

const errStringFormat = "'%s': value '%v' does not meet the requirements for the '%s' validation"

func init() {
	validator = gvalidator.New(gvalidator.WithRequiredStructEnabled())
	_ = validator.RegisterValidation("solpubkey", validatePublicKey)
}

// validatePublicKey accepts base58 strings that decode to 32 bytes.
func validatePublicKey(fl gvalidator.FieldLevel) bool {
	decoded, err := base58.Decode(fl.Field().String())
	return err == nil && len(decoded) == 32
}

func formatError(err error) error {
	var validationErrors gvalidator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	errs := []error{ErrValidationFailed}
	for _, validationErr := range validationErrors {
		errs = append(errs, fmt.Errorf(errStringFormat,
			validationErr.Field(),
			validationErr.Value(),
			validationErr.Tag(),
		))
	}

	return errors.Join(errs...)
}

// Validate checks v against its `validate` struct tags. On failure the
// returned error matches ErrValidationFailed and lists every failing field.
func Validate(v any) error {
	if err := validator.Struct(v); err != nil {
		return formatError(err)
	}
	return nil
}
