package goroutinelimits

import (
	"context"
	"errors"
)

const (
	DefaultMaxConcurrentPulls = 2
)

var ErrInvalidLimit = errors.New("limit must be at least 1")

/*
limit the number of goroutines doing the same heavy work (image pulls) to a
specific number, see this idiom: https://play.golang.org/p/seEp-erXjG6
*/
type CoroutineGuardian struct {
	Guard chan struct{}
}

func CreateCoroutineGuardian(maximumRoutines int) (*CoroutineGuardian, error) {
	if maximumRoutines < 1 {
		return nil, ErrInvalidLimit
	}
	return &CoroutineGuardian{Guard: make(chan struct{}, maximumRoutines)}, nil
}

func (guardi *CoroutineGuardian) Wait() {
	guardi.Guard <- struct{}{}
}

// WaitContext is Wait, giving up when ctx is done.
func (guardi *CoroutineGuardian) WaitContext(ctx context.Context) error {
	select {
	case guardi.Guard <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (guardi *CoroutineGuardian) Release() {
	<-guardi.Guard
}
