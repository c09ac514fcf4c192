package core

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return err.Fields[0].Field + ": " + err.Fields[0].Error
		}
		return "invalid input"
	}
	return err.Err.Error()
}

// NotFoundError reports a referenced entity that does not exist.
type NotFoundError struct {
	Entity string
}

func NewNotFoundError(entity string) *NotFoundError {
	return &NotFoundError{Entity: entity}
}

func (err NotFoundError) Error() string {
	return err.Entity + " not found"
}

// OverpaymentError reports a payment larger than the balance left on a student fee.
type OverpaymentError struct {
	Amount    decimal.Decimal
	Remaining decimal.Decimal
}

func (err OverpaymentError) Error() string {
	return fmt.Sprintf("payment of %s exceeds the remaining balance of %s",
		err.Amount.StringFixed(2), err.Remaining.StringFixed(2))
}

// InsufficientStockError reports a distribution larger than the available quantity.
type InsufficientStockError struct {
	Requested int
	Available int
}

func (err InsufficientStockError) Error() string {
	return fmt.Sprintf("requested quantity %d exceeds the available stock of %d", err.Requested, err.Available)
}

// PersistenceError hides a store failure from callers. The cause stays reachable for logging.
type PersistenceError struct {
	Op  string
	Err error
}

func (err *PersistenceError) Error() string {
	return "could not complete " + err.Op
}

func (err *PersistenceError) Unwrap() error { return err.Err }

// StoreError passes the error taxonomy through and turns anything else into a PersistenceError.
func StoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	switch errors.Cause(err).(type) {
	case *ValidationError, validator.ValidationErrors, *NotFoundError,
		*OverpaymentError, *InsufficientStockError, *PersistenceError:
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

func IsNotFound(err error) bool {
	_, ok := errors.Cause(err).(*NotFoundError)
	return ok
}

func IsValidation(err error) bool {
	switch errors.Cause(err).(type) {
	case *ValidationError, validator.ValidationErrors:
		return true
	}
	return false
}

func IsPersistence(err error) bool {
	var perr *PersistenceError
	return errors.As(err, &perr)
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
