package model

import (
	"time"
)

// Session is a named scanning context. A purged session has no row at all;
// deleted_at is set iff status is 'deleted'.
type Session struct {
	ID             string        `db:"id" json:"id"`
	OwnerID        *string       `db:"owner_id" json:"ownerId,omitempty"`
	Name           *string       `db:"name" json:"name,omitempty"`
	Status         SessionStatus `db:"status" json:"status"`
	CreatedAt      time.Time     `db:"created_at" json:"createdAt"`
	LastActivityAt time.Time     `db:"last_activity_at" json:"lastActivityAt"`
	DeletedAt      *time.Time    `db:"deleted_at" json:"deletedAt,omitempty"`
}

type CreateSessionParams struct {
	ID      string
	OwnerID *string
	Name    *string
}
