package models

import "time"

// Tombstone records the deletion of a course or enrollment with the same id.
type Tombstone struct {
	ID        string    `db:"id" json:"id"`
	DeletedAt time.Time `db:"deleted_at" json:"deleted_at"`
}
