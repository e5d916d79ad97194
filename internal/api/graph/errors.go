package graph

import (
	"errors"

	"go.uber.org/zap"

	"github.com/taskstream/backend/internal/domain/task"
	"github.com/taskstream/backend/pkg/security/auth"
)

const (
	codeValidation      = "VALIDATION_FAILED"
	codeNotFound        = "NOT_FOUND"
	codeForbidden       = "FORBIDDEN"
	codeUnauthenticated = "UNAUTHENTICATED"
	codeKeyUnavailable  = "KEY_UNAVAILABLE"
	codeInternal        = "INTERNAL"
)

// resolverError carries a machine-readable code into the GraphQL error
// extensions.
type resolverError struct {
	err  error
	code string
}

func (e *resolverError) Error() string {
	return e.err.Error()
}

func (e *resolverError) Unwrap() error {
	return e.err
}

// Extensions implements gqlerrors.ExtendedError.
func (e *resolverError) Extensions() map[string]interface{} {
	return map[string]interface{}{"code": e.code}
}

// wrapErr maps domain errors onto response error codes. Anything
// unclassified is logged and replaced with a generic internal error so no
// internals leak to the caller.
func (r *Resolver) wrapErr(err error) error {
	switch {
	case errors.Is(err, task.ErrInvalidInput):
		return &resolverError{err: err, code: codeValidation}
	case errors.Is(err, task.ErrTaskNotFound):
		return &resolverError{err: err, code: codeNotFound}
	case errors.Is(err, task.ErrForbidden):
		return &resolverError{err: err, code: codeForbidden}
	case errors.Is(err, task.ErrUnauthenticated):
		return &resolverError{err: err, code: codeUnauthenticated}
	case errors.Is(err, auth.ErrKeyUnavailable):
		return &resolverError{err: err, code: codeKeyUnavailable}
	case errors.Is(err, auth.ErrInvalidToken):
		return &resolverError{err: err, code: codeUnauthenticated}
	default:
		r.logger.Error("resolver failure", zap.Error(err))
		return &resolverError{err: errors.New("internal error"), code: codeInternal}
	}
}
