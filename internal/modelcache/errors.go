package modelcache

// modelNotFoundError indicates a cache key with no record.
type modelNotFoundError struct{ key string }

func (e modelNotFoundError) Error() string { return "model not found in cache: " + e.key }

// ErrModelNotFound constructs an error for a missing cache key.
func ErrModelNotFound(key string) error { return modelNotFoundError{key: key} }

// IsModelNotFound reports whether err indicates a missing cache key.
func IsModelNotFound(err error) bool {
	_, ok := err.(modelNotFoundError)
	return ok
}

// duplicateKeyError indicates a Put with a key already in the cache.
type duplicateKeyError struct{ key string }

func (e duplicateKeyError) Error() string { return "duplicate cache key: " + e.key }

// ErrDuplicateKey constructs an error for a key collision on Put.
func ErrDuplicateKey(key string) error { return duplicateKeyError{key: key} }

// IsDuplicateKey reports whether err indicates a key collision.
func IsDuplicateKey(err error) bool {
	_, ok := err.(duplicateKeyError)
	return ok
}

// modelLockedError indicates an eviction attempt on an in-use record.
type modelLockedError struct{ key string }

func (e modelLockedError) Error() string { return "model is locked: " + e.key }

// ErrModelLocked constructs an error for dropping a locked record.
func ErrModelLocked(key string) error { return modelLockedError{key: key} }

// IsModelLocked reports whether err indicates an in-use record.
func IsModelLocked(err error) bool {
	_, ok := err.(modelLockedError)
	return ok
}
