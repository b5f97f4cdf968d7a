package domain

import "time"

// Action is a state change dispatched into the store. The set of actions is
// closed: SetStatus, SetDaemonID and NotifyUser.
type Action interface {
	isAction()
}

// SetStatus moves an image to Status. Ports and IP are only kept when Status
// is StatusRunning. ClearDaemonID forgets the daemon id, used when the daemon
// reports that exact image as deleted.
type SetStatus struct {
	Image         string
	Status        ImageStatus
	Ports         []string
	IP            string
	ClearDaemonID bool
}

// SetDaemonID records the daemon's own id for an image.
type SetDaemonID struct {
	Image    string
	DaemonID string
}

// NotifyUser surfaces a message to the user.
type NotifyUser struct {
	Notification Notification
}

func (SetStatus) isAction()   {}
func (SetDaemonID) isAction() {}
func (NotifyUser) isAction()  {}

type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

type Notification struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Content  string    `json:"content"`
	Severity Severity  `json:"severity"`
	Time     time.Time `json:"time"`
}
