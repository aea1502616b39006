package model

import (
	"time"
)

// AccessPolicy is the per-session visibility record, created lazily on first
// update. Sessions without a row get DefaultAccessPolicy.
type AccessPolicy struct {
	SessionID       string     `db:"session_id" json:"sessionId"`
	IsPublic        bool       `db:"is_public" json:"isPublic"`
	PasswordHash    *string    `db:"password_hash" json:"-"`
	AccessCode      *string    `db:"access_code" json:"accessCode,omitempty"`
	MaxParticipants *int       `db:"max_participants" json:"maxParticipants,omitempty"`
	AllowAnonymous  bool       `db:"allow_anonymous" json:"allowAnonymous"`
	ExpiresAt       *time.Time `db:"expires_at" json:"expiresAt,omitempty"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updatedAt"`
}

// HasPassword reports whether read access is password-protected.
func (p *AccessPolicy) HasPassword() bool {
	return p.PasswordHash != nil && *p.PasswordHash != ""
}

// DefaultAccessPolicy is the permissive policy used when no row exists.
func DefaultAccessPolicy(sessionID string) *AccessPolicy {
	return &AccessPolicy{
		SessionID:      sessionID,
		IsPublic:       true,
		AllowAnonymous: true,
	}
}

// UpdateAccessPolicyParams carries partial-update fields; nil fields are left
// unchanged by the upsert.
type UpdateAccessPolicyParams struct {
	IsPublic        *bool      `json:"isPublic,omitempty"`
	PasswordHash    *string    `json:"-"`
	AccessCode      *string    `json:"accessCode,omitempty"`
	MaxParticipants *int       `json:"maxParticipants,omitempty"`
	AllowAnonymous  *bool      `json:"allowAnonymous,omitempty"`
	ExpiresAt       *time.Time `json:"expiresAt,omitempty"`
}
