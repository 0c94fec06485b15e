package models

import "time"

// Course is a catalog entry with a fixed number of seats.
type Course struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Capacity     int       `db:"capacity" json:"capacity"`
	IsDeleted    bool      `db:"is_deleted" json:"is_deleted"`
	LastModified time.Time `db:"last_modified" json:"last_modified"`
}
