package domain

// JobStatus represents the lifecycle state of a download Job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

var allowedTransitions = map[JobStatus]map[JobStatus]bool{
	JobStatusPending: {
		JobStatusPending:   true,
		JobStatusRunning:   true,
		JobStatusCompleted: true,
		JobStatusFailed:    true,
		JobStatusCancelled: true,
	},
	JobStatusRunning: {
		JobStatusRunning:   true,
		JobStatusCompleted: true,
		JobStatusFailed:    true,
		JobStatusCancelled: true,
	},
	JobStatusCompleted: {JobStatusCompleted: true},
	JobStatusFailed:    {JobStatusFailed: true},
	JobStatusCancelled: {JobStatusCancelled: true},
}

// String returns the wire representation of the status.
func (s JobStatus) String() string {
	return string(s)
}

// IsKnown reports whether s is one of the five lifecycle states.
func (s JobStatus) IsKnown() bool {
	_, ok := allowedTransitions[s]
	return ok
}

// IsTerminal returns true for completed, failed and cancelled.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// IsCancellable returns true while the job has not reached a terminal state.
func (s JobStatus) IsCancellable() bool {
	return s == JobStatusPending || s == JobStatusRunning
}

// CanTransition reports whether moving from one status to another keeps the
// lifecycle moving forward. Staying in the same status is always allowed.
func CanTransition(from, to JobStatus) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// ListView selects which collection the panel is displaying.
type ListView string

const (
	ListViewQueue   ListView = "queue"
	ListViewHistory ListView = "history"
)

// IsValid reports whether v is a known view.
func (v ListView) IsValid() bool {
	return v == ListViewQueue || v == ListViewHistory
}
