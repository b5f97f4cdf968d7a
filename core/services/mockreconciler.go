package services

import (
	"context"

	"github.com/kubescape/dockwatch/core/domain"
	"github.com/kubescape/dockwatch/core/ports"
)

type MockReconcilerService struct {
	happy bool
}

var _ ports.ReconcilerService = (*MockReconcilerService)(nil)

func NewMockReconcilerService(happy bool) *MockReconcilerService {
	return &MockReconcilerService{happy: happy}
}

func (m MockReconcilerService) Check(context.Context, string) error {
	return m.result()
}

func (m MockReconcilerService) Fetch(context.Context, string) error {
	return m.result()
}

func (m MockReconcilerService) Image(id string) (domain.ManagedImage, error) {
	if m.happy {
		return domain.ManagedImage{ID: id, Path: id, Label: id}, nil
	}
	return domain.ManagedImage{}, domain.ErrUnknownImage
}

func (m MockReconcilerService) Notifications() []domain.Notification {
	return []domain.Notification{}
}

func (m MockReconcilerService) Ready(context.Context) bool {
	return m.happy
}

func (m MockReconcilerService) RemoveContainer(context.Context, string) error {
	return m.result()
}

func (m MockReconcilerService) RemoveImage(context.Context, string) error {
	return m.result()
}

func (m MockReconcilerService) Run(context.Context, string) error {
	return m.result()
}

func (m MockReconcilerService) State(id string) (domain.ImageState, error) {
	if m.happy {
		return domain.NewImageState(id), nil
	}
	return domain.ImageState{}, domain.ErrUnknownImage
}

func (m MockReconcilerService) States() []domain.ImageState {
	return []domain.ImageState{}
}

func (m MockReconcilerService) Stop(context.Context, string) error {
	return m.result()
}

func (m MockReconcilerService) result() error {
	if m.happy {
		return nil
	}
	return domain.ErrUnknownImage
}
