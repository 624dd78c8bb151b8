package modelstore

// duplicateModelError indicates an Add with a key already in the store.
type duplicateModelError struct{ key string }

func (e duplicateModelError) Error() string { return "duplicate model key: " + e.key }

// ErrDuplicateModel constructs an error for a key collision on Add.
func ErrDuplicateModel(key string) error { return duplicateModelError{key: key} }

// IsDuplicateModel reports whether err indicates a key collision.
func IsDuplicateModel(err error) bool {
	_, ok := err.(duplicateModelError)
	return ok
}

// unknownModelError indicates a key with no record in the store.
type unknownModelError struct{ key string }

func (e unknownModelError) Error() string { return "unknown model key: " + e.key }

// ErrUnknownModel constructs an error for a missing store key.
func ErrUnknownModel(key string) error { return unknownModelError{key: key} }

// IsUnknownModel reports whether err indicates a missing store key.
func IsUnknownModel(err error) bool {
	_, ok := err.(unknownModelError)
	return ok
}
