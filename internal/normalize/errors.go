package normalize

import "fmt"

// DecodeError describes a payload, or part of one, the normalizer could
// not interpret. It is reported as a diagnostic and never aborts a refresh.
type DecodeError struct {
	// Path locates the offending value ("$" is the document root).
	Path string

	// Reason is a short description of the problem.
	Reason string
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %s", e.Path, e.Reason)
}
