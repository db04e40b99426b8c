package database

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure for callers that must react to it.
type Kind int

const (
	KindStorage Kind = iota
	KindNotFound
	KindValidation
	KindPermission
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindPermission:
		return "permission"
	default:
		return "storage"
	}
}

// HTTPStatus maps the kind to a response code.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindPermission:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Sentinels usable with errors.Is against any *OpError.
var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrPermission = errors.New("permission denied")
)

// OpError describes a failed data service operation.
type OpError struct {
	Op       string
	Kind     Kind
	Resource string
	ID       int64
	Err      error
}

func (e *OpError) Error() string {
	if e.ID != 0 {
		return fmt.Sprintf("%s %s %d: %v", e.Op, e.Resource, e.ID, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Resource, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func (e *OpError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrValidation:
		return e.Kind == KindValidation
	case ErrPermission:
		return e.Kind == KindPermission
	}
	return false
}

// Message is the text safe to show a client. Storage details stay server side.
func (e *OpError) Message() string {
	switch e.Kind {
	case KindStorage:
		return "internal server error"
	case KindNotFound:
		return e.Resource + " not found"
	default:
		return e.Err.Error()
	}
}

// KindOf returns the kind of err, or KindStorage for foreign errors.
func KindOf(err error) Kind {
	var oe *OpError
	if errors.As(err, &oe) {
		return oe.Kind
	}
	return KindStorage
}

func notFound(op, resource string, id int64) error {
	return &OpError{Op: op, Kind: KindNotFound, Resource: resource, ID: id, Err: ErrNotFound}
}

func invalid(op, resource string, id int64, format string, args ...any) error {
	return &OpError{Op: op, Kind: KindValidation, Resource: resource, ID: id, Err: fmt.Errorf(format, args...)}
}

func denied(op, resource string, id int64, format string, args ...any) error {
	return &OpError{Op: op, Kind: KindPermission, Resource: resource, ID: id, Err: fmt.Errorf(format, args...)}
}

// storageErr wraps a driver error. Errors that are already classified pass
// through untouched so the innermost operation keeps its kind.
func storageErr(op, resource string, id int64, err error) error {
	if err == nil {
		return nil
	}
	var oe *OpError
	if errors.As(err, &oe) {
		return err
	}
	return &OpError{Op: op, Kind: KindStorage, Resource: resource, ID: id, Err: err}
}
