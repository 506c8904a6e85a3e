package shared

import "errors"

var (
	// ErrValidation indicates malformed input such as a missing field or an unknown permission.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates a uniqueness violation or a mutation blocked by existing references.
	ErrConflict = errors.New("conflict")
	// ErrForbidden indicates the principal is not permitted to perform the action.
	ErrForbidden = errors.New("not permitted")
	// ErrUnauthorized indicates no principal could be resolved for the request.
	ErrUnauthorized = errors.New("unauthenticated")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrEmptyTargetSet indicates a fan-out operation matched no recipients.
	ErrEmptyTargetSet = errors.New("no eligible targets")
	// ErrTransaction indicates an atomic unit could not commit. Nothing was applied.
	ErrTransaction = errors.New("transaction failed")
)

// UserSafeMessage returns a message that can be shown to API clients without
// leaking storage details.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrForbidden):
		return ErrForbidden.Error()
	case errors.Is(err, ErrTransaction):
		return "the operation could not be completed"
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrConflict),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrEmptyTargetSet),
		errors.Is(err, ErrUnauthorized):
		return err.Error()
	default:
		return "internal error"
	}
}
