package conversation

import "errors"

// Error taxonomy surfaced by the loader tiers. Handlers map these to response
// codes; nothing in this package panics across the API boundary.
var (
	// ErrConnectivity: the durable store or a provider proxy was unreachable
	// after the retry budget. Retryable.
	ErrConnectivity = errors.New("upstream unreachable")

	// ErrUnauthorized: no session or no owned assistants where required.
	ErrUnauthorized = errors.New("not authorized")

	// ErrNotFound: the requested phone number has no records. Tiers answer
	// this with a well-formed empty shell, not a failure.
	ErrNotFound = errors.New("conversation not found")

	// ErrBadShape: malformed upstream payload that could not be degraded.
	ErrBadShape = errors.New("malformed record payload")
)

// ErrorCode returns the wire code for a taxonomy error, or "INTERNAL" for
// anything unclassified.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrConnectivity):
		return "CONNECTIVITY"
	case errors.Is(err, ErrUnauthorized):
		return "UNAUTHORIZED"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrBadShape):
		return "DATA_SHAPE"
	default:
		return "INTERNAL"
	}
}

// Retryable reports whether the caller may usefully retry.
func Retryable(err error) bool {
	return errors.Is(err, ErrConnectivity)
}
