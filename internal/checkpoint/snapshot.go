package checkpoint

import "onboarding/internal/domain"

// Snapshot is the result of querying every checkpoint at once. Steps whose
// query failed are present in Errors and absent from Records; readers treat
// them as not completed.
type Snapshot struct {
	Records map[domain.StepID]domain.Record
	Errors  map[domain.StepID]error
}

func newSnapshot() Snapshot {
	return Snapshot{
		Records: make(map[domain.StepID]domain.Record, len(domain.AllSteps)),
		Errors:  make(map[domain.StepID]error),
	}
}

// Record returns the record for step, or an incomplete one when the query
// has not settled.
func (s Snapshot) Record(step domain.StepID) domain.Record {
	if r, ok := s.Records[step]; ok {
		return r
	}
	return domain.Incomplete(step)
}

// Completed reports whether step is known to be complete.
func (s Snapshot) Completed(step domain.StepID) bool {
	return s.Record(step).Completed
}

// Settled reports whether the query for step produced a definitive answer.
func (s Snapshot) Settled(step domain.StepID) bool {
	_, ok := s.Records[step]
	return ok
}

// SettledCount is the number of steps with a definitive answer.
func (s Snapshot) SettledCount() int {
	return len(s.Records)
}
