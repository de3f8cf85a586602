package lifecycle

import "errors"

var (
	// ErrDestroyed is returned by every call after Manager.Destroy.
	ErrDestroyed = errors.New("lifecycle manager destroyed")

	// ErrNotAvailable marks an element whose state rejects content updates.
	ErrNotAvailable = errors.New("not available for updates")
)

// IsDestroyed reports whether err stems from use after Destroy.
func IsDestroyed(err error) bool { return errors.Is(err, ErrDestroyed) }
