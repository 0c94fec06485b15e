// Package queue decides which enrollments of a course hold a seat. Every
// decision is recomputed from a globally ordered snapshot: the first
// capacity non-removed enrollments by (enrolled_at, id) are accepted and the
// rest are waitlisted as rejected, so any leader reaches the same answer.
package queue
