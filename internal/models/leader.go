package models

// QueueEntry is one enrollment in a course queue with its rank.
type QueueEntry struct {
	Position   int              `json:"position"`
	Enrollment Enrollment       `json:"enrollment"`
	Implied    EnrollmentStatus `json:"implied_status"`
	Consistent bool             `json:"consistent"`
}

// CourseQueue is the queue of one course as seen from some vantage point.
type CourseQueue struct {
	Course   Course       `json:"course"`
	Accepted int          `json:"accepted"`
	Waiting  int          `json:"waiting"`
	Entries  []QueueEntry `json:"entries"`
}

// LeaderState is the locally stored view of one leader.
type LeaderState struct {
	Leader     string        `json:"leader"`
	Consistent bool          `json:"consistent"`
	Courses    []CourseQueue `json:"courses"`
}

// GlobalQueue is a course queue reconciled across every reachable leader.
type GlobalQueue struct {
	CourseQueue
	Reached []string          `json:"reached"`
	Skipped map[string]string `json:"skipped,omitempty"`
}
