package domain

// Container is the daemon's view of a container created from a managed image.
type Container struct {
	ID      string
	State   string
	Running bool
	// Ports are host bindings formatted as host-ip:host-port.
	Ports []string
	IP    string
}

// Exited reports whether the container has stopped.
func (c Container) Exited() bool {
	return c.State == "exited"
}

// ContainerSpec describes a container to create and start.
type ContainerSpec struct {
	Reference   string
	Hostname    string
	Ports       []string
	Volumes     []string
	Env         []string
	NetworkMode string
	ExtraHosts  map[string]string
}

// PullProgress is one line of pull progress reported by the daemon.
type PullProgress struct {
	ID       string
	Status   string
	Progress string
}
