package service

import (
	"context"
	"errors"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrorKind classifies a failure for the caller: validation errors are the
// client's to fix, everything else is ours.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindStorage    ErrorKind = "storage"
	KindNetwork    ErrorKind = "network"
	KindUnknown    ErrorKind = "unknown"
)

// CheckoutError carries an explicit kind. Op names the step that failed.
type CheckoutError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *CheckoutError) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *CheckoutError) Unwrap() error { return e.Err }

// KindOf classifies any error returned by this package. Errors that carry
// no explicit kind are inferred from their chain.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var ce *CheckoutError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	if IsValidation(err) {
		return KindValidation
	}
	if isNetworkError(err) {
		return KindNetwork
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) || errors.Is(err, pgx.ErrNoRows) || errors.Is(err, pgx.ErrTxClosed) {
		return KindStorage
	}
	return KindUnknown
}

// IsValidation reports whether err is a client-correctable input problem.
func IsValidation(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

var validationErrors = []error{
	ErrCustomerNameRequired,
	ErrContactRequired,
	ErrDeliveryDateRequired,
	ErrInvalidDeliveryDate,
	ErrAddressRequired,
	ErrEmptyItems,
	ErrInvalidItem,
	ErrInvalidRetrievalMethod,
	ErrInvalidPaymentMethod,
	ErrProductUnavailable,
	ErrDateUnavailable,
	ErrInvalidStatus,
	ErrInvalidItemOp,
	ErrInvalidSortOrder,
}

func isNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return true
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// storageErr wraps a database failure, keeping connection problems apart
// from query problems.
func storageErr(op string, err error) error {
	kind := KindStorage
	if isNetworkError(err) {
		kind = KindNetwork
	}
	return &CheckoutError{Kind: kind, Op: op, Err: err}
}

func validationErr(err error) error {
	return &CheckoutError{Kind: KindValidation, Err: err}
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
