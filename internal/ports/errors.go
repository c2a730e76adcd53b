package ports

import "errors"

// TransientError marks a failure worth retrying: store timeouts, broken
// connections, provider 5xx responses. Adapters wrap such errors so retry
// policies can classify without knowing driver or provider internals.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether any error in the chain is a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
