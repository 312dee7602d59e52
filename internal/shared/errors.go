package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates malformed input or an unknown reference inside an atomic request.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates the operation is blocked by live references.
	ErrConflict = errors.New("conflict")
	// ErrDuplicate indicates a uniqueness violation.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrUnavailable indicates the backing store timed out or is unreachable. Safe to retry.
	ErrUnavailable = errors.New("unavailable")
)

// KindOf returns a stable label for the error kind, suitable for logs and metric labels.
func KindOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrDuplicate):
		return "duplicate"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	default:
		return "internal"
	}
}

// UserSafeMessage hides internal error details from API consumers.
func UserSafeMessage(err error) string {
	if KindOf(err) == "internal" {
		return "internal error"
	}
	return err.Error()
}
