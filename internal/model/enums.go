package model

type SessionStatus string

const (
	SessionStatusActive  SessionStatus = "active"
	SessionStatusDeleted SessionStatus = "deleted"
)
