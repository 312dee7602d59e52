package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/shakil5281/HrHub-sub001/internal/platform/db"
	"github.com/shakil5281/HrHub-sub001/internal/shared"
)

var (
	// ErrNotFound indicates that the requested record does not exist.
	ErrNotFound = fmt.Errorf("rbac: %w", shared.ErrNotFound)
	// ErrValidation rejects malformed input or a batch containing unknown permission codes.
	ErrValidation = fmt.Errorf("rbac: %w", shared.ErrValidation)
	// ErrDuplicateCode indicates a catalog code collision.
	ErrDuplicateCode = fmt.Errorf("rbac: permission code %w", shared.ErrDuplicate)
	// ErrInUse blocks edits or deletion of a permission that is still referenced.
	ErrInUse = fmt.Errorf("rbac: permission in use: %w", shared.ErrConflict)
	// ErrUnavailable indicates the backing store timed out or could not be reached.
	ErrUnavailable = fmt.Errorf("rbac: store %w", shared.ErrUnavailable)
)

// storeError lifts timeouts and connectivity failures into ErrUnavailable and leaves every other error as is.
func storeError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, shared.ErrUnavailable) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || db.IsUnavailable(err) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}
