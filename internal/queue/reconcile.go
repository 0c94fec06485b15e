package queue

import (
	"sort"

	"github.com/noah-isme/sma-enrollment-sync/internal/models"
)

// Decision is the result of reconciling a course queue.
type Decision struct {
	// Status and Position describe the new attempt, when one was supplied.
	// Position is 1-indexed and zero when there was no attempt.
	Status   models.EnrollmentStatus
	Position int
	// Changes lists existing enrollments whose stored status differs from
	// the recomputed one.
	Changes []models.StatusChange
	// Queue is the full ordered sequence with recomputed statuses.
	Queue []models.Enrollment
}

// Less orders enrollments by timestamp, breaking ties by id.
func Less(a, b models.Enrollment) bool {
	if !a.EnrolledAt.Equal(b.EnrolledAt) {
		return a.EnrolledAt.Before(b.EnrolledAt)
	}
	return a.ID < b.ID
}

// Order sorts records in place by queue position.
func Order(records []models.Enrollment) {
	sort.SliceStable(records, func(i, j int) bool { return Less(records[i], records[j]) })
}

// StatusAt returns the status of the 1-indexed position for capacity.
func StatusAt(position, capacity int) models.EnrollmentStatus {
	if position <= capacity {
		return models.EnrollmentStatusAccepted
	}
	return models.EnrollmentStatusRejected
}

// Reconcile recomputes accept/reject for the queue of one course.
//
// records is the global snapshot; it is not modified. A record whose id
// equals ignoreID is dropped before ranking, which is how a removed
// enrollment stops competing for its own seat. attempt, when non-nil, is
// merge-inserted at the position its timestamp dictates and its decision is
// reported through Status/Position rather than Changes. Removed records in
// the input are ignored.
func Reconcile(records []models.Enrollment, capacity int, attempt *models.Enrollment, ignoreID string) Decision {
	ordered := make([]models.Enrollment, 0, len(records)+1)
	for _, r := range records {
		if r.Status == models.EnrollmentStatusRemoved {
			continue
		}
		if ignoreID != "" && r.ID == ignoreID {
			continue
		}
		if attempt != nil && r.ID == attempt.ID {
			continue
		}
		ordered = append(ordered, r)
	}
	Order(ordered)

	if attempt != nil {
		idx := sort.Search(len(ordered), func(i int) bool { return Less(*attempt, ordered[i]) })
		ordered = append(ordered, models.Enrollment{})
		copy(ordered[idx+1:], ordered[idx:])
		ordered[idx] = *attempt
	}

	decision := Decision{Queue: ordered}
	for i := range ordered {
		position := i + 1
		computed := StatusAt(position, capacity)
		current := ordered[i]
		ordered[i].Status = computed

		if attempt != nil && current.ID == attempt.ID {
			decision.Status = computed
			decision.Position = position
			continue
		}
		if current.Status != computed {
			decision.Changes = append(decision.Changes, models.StatusChange{
				EnrollmentID: current.ID,
				StudentName:  current.StudentName,
				From:         current.Status,
				To:           computed,
			})
		}
	}
	return decision
}

// Check reports whether records (already reconciled) satisfy the queue
// invariant: ordered by position, the first capacity non-removed entries are
// accepted and all later ones rejected.
func Check(records []models.Enrollment, capacity int) bool {
	active := make([]models.Enrollment, 0, len(records))
	for _, r := range records {
		if r.Status != models.EnrollmentStatusRemoved {
			active = append(active, r)
		}
	}
	Order(active)
	for i, r := range active {
		if r.Status != StatusAt(i+1, capacity) {
			return false
		}
	}
	return true
}
