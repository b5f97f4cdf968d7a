package domain

// ImageStatus is the observed lifecycle status of a managed image.
type ImageStatus string

const (
	StatusNotAvailable ImageStatus = "NOT_AVAILABLE"
	StatusFetching     ImageStatus = "FETCHING"
	StatusAvailable    ImageStatus = "AVAILABLE"
	StatusCreated      ImageStatus = "CREATED"
	StatusRunning      ImageStatus = "RUNNING"
	StatusError        ImageStatus = "ERROR"
)

// Valid reports whether s is one of the known statuses.
func (s ImageStatus) Valid() bool {
	switch s {
	case StatusNotAvailable, StatusFetching, StatusAvailable, StatusCreated, StatusRunning, StatusError:
		return true
	}
	return false
}

// Description is the sentence shown under the image heading in menus.
func (s ImageStatus) Description() string {
	switch s {
	case StatusNotAvailable:
		return "Image needs to be fetched"
	case StatusFetching:
		return "Image is being fetched"
	case StatusAvailable:
		return "Image is ready but container is not running"
	case StatusCreated:
		return "Container is created but not running"
	case StatusRunning:
		return "Container is running"
	case StatusError:
		return "Image has an error, please check the logs"
	}
	return ""
}

// Trigger is something that moves an image through the status machine,
// either a completed container operation or an observed daemon event.
type Trigger string

const (
	TriggerFetchRequested     Trigger = "fetch-requested"
	TriggerPullCompleted      Trigger = "pull-completed"
	TriggerPullFailed         Trigger = "pull-failed"
	TriggerFetchCancelled     Trigger = "fetch-cancelled"
	TriggerContainerRunning   Trigger = "container-running"
	TriggerContainerCreated   Trigger = "container-created"
	TriggerContainerDied      Trigger = "container-died"
	TriggerContainerDestroyed Trigger = "container-destroyed"
	TriggerImageDeleted       Trigger = "image-deleted"
	TriggerDaemonError        Trigger = "daemon-error"

	// Outcomes of an authoritative check. A check may land on any status.
	TriggerCheckNotAvailable Trigger = "check-not-available"
	TriggerCheckAvailable    Trigger = "check-available"
	TriggerCheckCreated      Trigger = "check-created"
	TriggerCheckRunning      Trigger = "check-running"
)

var targets = map[Trigger]ImageStatus{
	TriggerFetchRequested:     StatusFetching,
	TriggerPullCompleted:      StatusAvailable,
	TriggerPullFailed:         StatusError,
	TriggerFetchCancelled:     StatusNotAvailable,
	TriggerContainerRunning:   StatusRunning,
	TriggerContainerCreated:   StatusCreated,
	TriggerContainerDied:      StatusCreated,
	TriggerContainerDestroyed: StatusAvailable,
	TriggerImageDeleted:       StatusNotAvailable,
	TriggerDaemonError:        StatusError,
	TriggerCheckNotAvailable:  StatusNotAvailable,
	TriggerCheckAvailable:     StatusAvailable,
	TriggerCheckCreated:       StatusCreated,
	TriggerCheckRunning:       StatusRunning,
}

// edges holds the transitions that are only legal from specific statuses.
var edges = map[ImageStatus]map[Trigger]bool{
	StatusNotAvailable: {
		TriggerFetchRequested: true,
		TriggerPullCompleted:  true,
	},
	StatusFetching: {
		TriggerFetchRequested: true,
		TriggerPullCompleted:  true,
		TriggerPullFailed:     true,
		TriggerFetchCancelled: true,
	},
	StatusAvailable: {
		TriggerContainerRunning: true,
		TriggerContainerCreated: true,
		TriggerPullCompleted:    true,
	},
	StatusCreated: {
		TriggerContainerRunning:   true,
		TriggerContainerCreated:   true,
		TriggerContainerDestroyed: true,
	},
	StatusRunning: {
		TriggerContainerRunning:   true,
		TriggerContainerDied:      true,
		TriggerContainerDestroyed: true,
	},
	StatusError: {
		TriggerFetchRequested: true,
		TriggerPullCompleted:  true,
	},
}

func fromAnyStatus(t Trigger) bool {
	switch t {
	case TriggerImageDeleted, TriggerDaemonError,
		TriggerCheckNotAvailable, TriggerCheckAvailable, TriggerCheckCreated, TriggerCheckRunning:
		return true
	}
	return false
}

// Next returns the status reached from current when t fires. The boolean is
// false when the transition table has no such edge; the returned status is
// still the trigger's target because triggers report what the daemon says is
// true, and the daemon is authoritative.
//
// A pull observed while a container exists does not change the status: the
// container is unaffected by a new copy of its image.
func Next(current ImageStatus, t Trigger) (ImageStatus, bool) {
	target, ok := targets[t]
	if !ok {
		return current, false
	}
	if t == TriggerPullCompleted && (current == StatusCreated || current == StatusRunning) {
		return current, true
	}
	if fromAnyStatus(t) {
		return target, true
	}
	return target, edges[current][t]
}
