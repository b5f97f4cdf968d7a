package ports

import "github.com/kubescape/dockwatch/core/domain"

// Store is the port implemented by the state store. Dispatch is the only way
// to change state; reads always return the latest applied state.
type Store interface {
	Dispatch(action domain.Action)
	ImageState(id string) (domain.ImageState, bool)
	Notifications() []domain.Notification
}

// Executor runs blocking work off the caller's goroutine.
type Executor interface {
	Submit(task func())
}
