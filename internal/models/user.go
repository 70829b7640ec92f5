package models

import "time"

type User struct {
	ID         uint64    `db:"id"`
	ExternalID string    `db:"external_id"`
	CreatedAt  time.Time `db:"created_at"`
}
