package sentinel

// Compile-time check that Error satisfies the error interface.
var _ error = Error("")

// Error is a string-backed error type that can be declared const.
// Unlike errors.New, which allocates a pointer that must live in a var,
// an Error constant cannot be reassigned.
//
// Because Error is a comparable type, the == comparison used by errors.Is
// matches it correctly through wrapped error chains.
type Error string

// Error implements the error interface.
func (e Error) Error() string {
	return string(e)
}
