package domain

// JobStatus enumerates the remote prediction lifecycle states.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusSucceeded  JobStatus = "succeeded"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCanceled   JobStatus = "canceled"
)

// Terminal reports whether no further status transition is permitted.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusCanceled:
		return true
	}
	return false
}

// Rank places statuses in the partial order
// Pending < Processing < {Succeeded, Failed, Canceled}. Transitions never
// move to a lower rank.
func (s JobStatus) Rank() int {
	switch s {
	case JobStatusPending:
		return 0
	case JobStatusProcessing:
		return 1
	case JobStatusSucceeded, JobStatusFailed, JobStatusCanceled:
		return 2
	}
	return 0
}

// PredictionJob represents one in-flight remote prediction.
type PredictionJob struct {
	ID         string
	Status     JobStatus
	OutputURLs []string
}

// Advance applies a newly observed status, keeping transitions forward-only.
// A status that would move backwards is ignored, and a terminal status is
// never replaced.
func (j *PredictionJob) Advance(next JobStatus) {
	if j.Status.Terminal() {
		return
	}
	if next.Rank() < j.Status.Rank() {
		return
	}
	j.Status = next
}
