package domain

import (
	"errors"
	"fmt"
)

var (
	ErrContainerNotFound   = errors.New("container not found")
	ErrDependencyNoIP      = errors.New("dependency has no IP address")
	ErrDependencyNotLoaded = errors.New("dependency is not loaded")
	ErrFeedClosed          = errors.New("daemon event feed closed")
	ErrImageNotFound       = errors.New("image not found")
	ErrInvalidImage        = errors.New("invalid image declaration")
	ErrMockError           = errors.New("mock error")
	ErrUnknownImage        = errors.New("unknown image")
)

// DependencyError reports a dependency that keeps a container from running.
// Its message is shown to the user as is.
type DependencyError struct {
	Dependency string
	Err        error
}

func (e *DependencyError) Error() string {
	if errors.Is(e.Err, ErrDependencyNoIP) {
		return fmt.Sprintf("Container %q does not have an IP address", e.Dependency)
	}
	return fmt.Sprintf("Container %q is not loaded", e.Dependency)
}

func (e *DependencyError) Unwrap() error {
	return e.Err
}
