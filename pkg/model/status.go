package model

// Status represents the lifecycle state of a Job.
type Status string

const (
	StatusInactive Status = "inactive"
	StatusQueued   Status = "queued"
	StatusActive   Status = "active"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// Code returns the one-letter code used by the tabular status listing.
func (s Status) Code() string {
	switch s {
	case StatusInactive:
		return "I"
	case StatusQueued:
		return "Q"
	case StatusActive:
		return "A"
	}
	return "?"
}

// IsTerminal returns true if the job is in a final state. Inactive jobs
// stay queryable until their retention deadline elapses, then are swept.
func (s Status) IsTerminal() bool {
	return s == StatusInactive
}

// ValidTransitions defines the allowed state transitions for Jobs. The
// sequence is strictly queued → active → inactive; a job never regresses
// to queued after it has been claimed.
var ValidTransitions = map[Status][]Status{
	StatusQueued: {StatusActive},
	StatusActive: {StatusInactive},
}

// CanTransitionTo returns true if moving from the current status to next is valid.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range ValidTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
