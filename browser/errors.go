package browser

import "fmt"

// LocatorNotFoundError is returned when an element query did not match
// within the session timeout.
type LocatorNotFoundError struct {
	Session string
	Locator Locator
	Err     error
}

func (e *LocatorNotFoundError) Error() string {
	return fmt.Sprintf("browser: %s: locator not found: %s: %v", e.Session, e.Locator, e.Err)
}

func (e *LocatorNotFoundError) Unwrap() error { return e.Err }
