package expr

// Error is an evaluation failure. Its message is shown to the user as the
// result of the expression.
type Error struct {
	Message string
}

func (e *Error) Error() string { return e.Message }

var (
	// ErrNotAvailable is returned for malformed expressions and unknown names.
	ErrNotAvailable = &Error{Message: "not available"}

	// ErrNotArray is returned for an index applied to a non-array.
	ErrNotArray = &Error{Message: "TypeError: value is not an array"}

	// ErrNotReference is returned for a member access on a primitive.
	ErrNotReference = &Error{Message: "TypeError: value is not a reference type"}

	// ErrIndexNotInteger is returned for an index that is not an integer kind.
	ErrIndexNotInteger = &Error{Message: "TypeError: array index is not an integer value"}

	// ErrNullPointer is returned for an index or member access on null.
	ErrNullPointer = &Error{Message: "NullPointerException"}

	// ErrOutOfBounds is returned for an index outside the array.
	ErrOutOfBounds = &Error{Message: "BoundsError: array index out of bounds"}

	// ErrMethodCall is returned for any call; methods are never invoked.
	ErrMethodCall = &Error{Message: "Error: method calls are not supported"}
)

// NoSuchFieldError reports a member access naming a field the object lacks.
func NoSuchFieldError(name string) *Error {
	return &Error{Message: "no such field: " + name}
}
