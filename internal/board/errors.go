package board

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Errors returned by Store mutations. The board is unchanged whenever a
// mutation returns an error.
var (
	ErrNotReady      = errors.New("board is not loaded")
	ErrNoBoard       = errors.New("no board selected")
	ErrUnknownColumn = errors.New("unknown column")
	ErrUnknownCard   = errors.New("unknown card")
	ErrWIPLimit      = errors.New("column is at its WIP limit")
	ErrInvalid       = errors.New("invalid input")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// check validates v against its struct tags and wraps failures in
// ErrInvalid.
func check(what string, v any) error {
	if err := validate.Struct(v); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return fmt.Errorf("%w: %s field %s failed %q: %w", ErrInvalid, what, fe.Field(), fe.Tag(), err)
		}
		return fmt.Errorf("%w: %s: %w", ErrInvalid, what, err)
	}
	return nil
}

// checkCardID rejects ids that cannot be stored as a document key.
func checkCardID(id string) error {
	if err := validate.Var(id, "required,excludesall=.$"); err != nil {
		return fmt.Errorf("%w: card id %q: %w", ErrInvalid, id, err)
	}
	return nil
}
