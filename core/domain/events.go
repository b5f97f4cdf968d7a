package domain

// DaemonEvent is an image or container event from the daemon's feed, decoded
// once at the adapter boundary. Implementations: ImagePulled, ImageDeleted,
// ContainerStarted, ContainerDied and ContainerDestroyed.
type DaemonEvent interface {
	isDaemonEvent()
}

// ImagePulled reports a completed pull of Reference.
type ImagePulled struct {
	Reference string
}

// ImageDeleted reports the removal of the image with daemon id ImageID.
type ImageDeleted struct {
	ImageID string
}

// ContainerStarted reports that a container created from Origin started.
type ContainerStarted struct {
	ContainerID string
	Origin      string
}

// ContainerDied reports that a container created from Origin exited.
type ContainerDied struct {
	ContainerID string
	Origin      string
}

// ContainerDestroyed reports that a container created from Origin was removed.
type ContainerDestroyed struct {
	ContainerID string
	Origin      string
}

func (ImagePulled) isDaemonEvent()        {}
func (ImageDeleted) isDaemonEvent()       {}
func (ContainerStarted) isDaemonEvent()   {}
func (ContainerDied) isDaemonEvent()      {}
func (ContainerDestroyed) isDaemonEvent() {}
