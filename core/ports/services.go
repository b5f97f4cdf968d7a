package ports

import (
	"context"

	"github.com/kubescape/dockwatch/core/domain"
)

// ReconcilerService is the port implemented by the business component
// ReconcilerService. Operations only enqueue work: their effects are observed
// through State. The returned error is domain.ErrUnknownImage for an id that
// is not in the catalog.
type ReconcilerService interface {
	Check(ctx context.Context, id string) error
	Fetch(ctx context.Context, id string) error
	Image(id string) (domain.ManagedImage, error)
	Notifications() []domain.Notification
	Ready(ctx context.Context) bool
	RemoveContainer(ctx context.Context, id string) error
	RemoveImage(ctx context.Context, id string) error
	Run(ctx context.Context, id string) error
	State(id string) (domain.ImageState, error)
	States() []domain.ImageState
	Stop(ctx context.Context, id string) error
}
