// Package stageerr classifies the fatal errors a stage can raise, so
// the driver can decide an exit code without string-matching error
// messages. Backpressure (queue-full) is deliberately excluded, since
// that's expected flow control, not a failure.
package stageerr

// Kind classifies a fatal error.
type Kind int

const (
	// OptionError is bad CLI input, caught before any stage starts.
	OptionError Kind = iota
	// FilterInitError means the probabilistic filter failed to allocate.
	FilterInitError
	// StoreOpenError means the KV store could not be created/opened.
	StoreOpenError
	// StoreWriteError means a batched write to the KV store failed.
	StoreWriteError
	// StoreReadError means a point read returned a non-{OK,NotFound} status.
	StoreReadError
	// InvalidRequest means a Request arrived with an unrecognised Kind.
	InvalidRequest
	// HasherInternalError means the digest primitive itself failed. The
	// driver also uses it when the database stage exits without a
	// confirmed result (for example after ctx is cancelled).
	HasherInternalError
)

func (k Kind) String() string {
	switch k {
	case OptionError:
		return "OptionError"
	case FilterInitError:
		return "FilterInitError"
	case StoreOpenError:
		return "StoreOpenError"
	case StoreWriteError:
		return "StoreWriteError"
	case StoreReadError:
		return "StoreReadError"
	case InvalidRequest:
		return "InvalidRequest"
	case HasherInternalError:
		return "HasherInternalError"
	default:
		return "UnknownError"
	}
}

// Error wraps an underlying error with a Kind, so callers can classify
// a failure (errors.As) without parsing messages.
type Error struct {
	Kind Kind
	Err  error
}

func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}
