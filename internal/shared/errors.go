package shared

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation indicates malformed or out-of-range input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a uniqueness or referential violation.
	ErrConflict = errors.New("conflict")
	// ErrInsufficientStock indicates one or more lines exceed quantity on hand.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInvalidState indicates the record is in a state that forbids the operation.
	ErrInvalidState = errors.New("invalid state")
	// ErrForbidden indicates the actor lacks the role for the operation.
	ErrForbidden = errors.New("forbidden")
	// ErrBackend indicates an unexpected storage failure.
	ErrBackend = errors.New("backend failure")
	// ErrBusy indicates lock contention; the caller may retry.
	ErrBusy = errors.New("database busy")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrRateLimited indicates too many attempts within the window.
	ErrRateLimited = errors.New("too many attempts")
)

// Error carries a kind sentinel together with a human readable message.
type Error struct {
	Kind    error
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Message != "" {
		b.WriteString(e.Message)
	} else if e.Kind != nil {
		b.WriteString(e.Kind.Error())
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Is matches the kind sentinel.
func (e *Error) Is(target error) bool {
	return e.Kind != nil && target == e.Kind
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds an Error of the given kind.
func Errorf(kind error, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches kind and op to a lower level error.
func Wrap(kind error, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Validation is shorthand for Errorf(ErrValidation, ...).
func Validation(op, format string, args ...any) error {
	return Errorf(ErrValidation, op, format, args...)
}

// NotFound is shorthand for Errorf(ErrNotFound, ...).
func NotFound(op, format string, args ...any) error {
	return Errorf(ErrNotFound, op, format, args...)
}

// Conflict is shorthand for Errorf(ErrConflict, ...).
func Conflict(op, format string, args ...any) error {
	return Errorf(ErrConflict, op, format, args...)
}

// Shortage describes a single line that cannot be fulfilled.
type Shortage struct {
	SKU       string `json:"sku"`
	Name      string `json:"name"`
	Available int    `json:"available"`
	Requested int    `json:"requested"`
	Missing   bool   `json:"missing,omitempty"`
}

func (s Shortage) String() string {
	if s.Missing {
		return fmt.Sprintf("product %s not found in inventory", s.SKU)
	}
	name := s.Name
	if name == "" {
		name = s.SKU
	}
	return fmt.Sprintf("%s: only %d in stock, requested %d", name, s.Available, s.Requested)
}

// InsufficientStockError lists every shortfall found while validating a sale.
type InsufficientStockError struct {
	Shortages []Shortage
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Shortages))
	for _, s := range e.Shortages {
		parts = append(parts, s.String())
	}
	return "insufficient stock: " + strings.Join(parts, "; ")
}

// Is reports a match for ErrInsufficientStock.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// IsRetryable reports whether err is transient lock contention.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrBusy)
}
