package domain

import (
	"slices"
	"strings"
)

// ImageState is the store-owned, mutable view of one managed image.
// DaemonID is empty until the daemon has reported an id for the image.
// Ports and ContainerIP are only set while Status is StatusRunning.
type ImageState struct {
	ID          string      `json:"id"`
	Status      ImageStatus `json:"status"`
	DaemonID    string      `json:"daemonId,omitempty"`
	Ports       []string    `json:"ports,omitempty"`
	ContainerIP string      `json:"containerIp,omitempty"`
}

// NewImageState returns the initial state of an image.
func NewImageState(id string) ImageState {
	return ImageState{ID: id, Status: StatusNotAvailable}
}

// ShareablePorts returns the ports bound on every host interface, the ones
// reachable from other devices on the network.
func (s ImageState) ShareablePorts() []string {
	var shareable []string
	for _, port := range s.Ports {
		if strings.HasPrefix(port, "0.0.0.0:") {
			shareable = append(shareable, port)
		}
	}
	return shareable
}

func (s ImageState) Clone() ImageState {
	s.Ports = slices.Clone(s.Ports)
	return s
}
