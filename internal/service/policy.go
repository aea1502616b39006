package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/scanbridge/relay-server-go/internal/errors"
	"github.com/scanbridge/relay-server-go/internal/model"
	"github.com/scanbridge/relay-server-go/internal/repository"
	"github.com/scanbridge/relay-server-go/internal/util"
)

type UpdatePolicyParams struct {
	IsPublic        *bool      `json:"isPublic,omitempty"`
	Password        *string    `json:"password,omitempty"`
	AccessCode      *string    `json:"accessCode,omitempty"`
	MaxParticipants *int       `json:"maxParticipants,omitempty"`
	AllowAnonymous  *bool      `json:"allowAnonymous,omitempty"`
	ExpiresAt       *time.Time `json:"expiresAt,omitempty"`
}

type AccessPolicyService struct {
	policyRepo  repository.AccessPolicyRepository
	sessionRepo repository.SessionRepository
}

func NewAccessPolicyService(
	policyRepo repository.AccessPolicyRepository,
	sessionRepo repository.SessionRepository,
) *AccessPolicyService {
	return &AccessPolicyService{
		policyRepo:  policyRepo,
		sessionRepo: sessionRepo,
	}
}

// Get returns the stored policy, or the permissive default when none exists.
func (s *AccessPolicyService) Get(ctx context.Context, sessionID string) (*model.AccessPolicy, error) {
	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if session == nil {
		return nil, apperrors.NotFound("Session")
	}

	policy, err := s.policyRepo.FindBySessionID(ctx, sessionID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if policy == nil {
		return model.DefaultAccessPolicy(sessionID), nil
	}
	return policy, nil
}

// Update applies only the fields present in the request, gated on ownership
// exactly like session mutations. A supplied password is stored as a bcrypt
// hash; an empty password clears protection.
func (s *AccessPolicyService) Update(ctx context.Context, sessionID string, params UpdatePolicyParams, actor *string) (*model.AccessPolicy, error) {
	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if session == nil {
		return nil, apperrors.NotFound("Session")
	}
	if session.OwnerID != nil {
		if actor == nil {
			return nil, apperrors.Unauthorized("Authentication required for this session")
		}
		if !util.ConstantTimeEqual(*session.OwnerID, *actor) {
			return nil, apperrors.Forbidden("You do not own this session")
		}
	}

	upsert := model.UpdateAccessPolicyParams{
		IsPublic:        params.IsPublic,
		AccessCode:      params.AccessCode,
		MaxParticipants: params.MaxParticipants,
		AllowAnonymous:  params.AllowAnonymous,
		ExpiresAt:       params.ExpiresAt,
	}
	if params.Password != nil {
		if *params.Password == "" {
			empty := ""
			upsert.PasswordHash = &empty
		} else {
			hash, err := util.HashPassword(*params.Password)
			if err != nil {
				return nil, apperrors.Internal("Failed to hash password")
			}
			upsert.PasswordHash = &hash
		}
	}

	policy, err := s.policyRepo.Upsert(ctx, sessionID, upsert)
	if err != nil {
		return nil, apperrors.Database(err)
	}

	log.Info().Str("sessionId", sessionID).Msg("access policy updated")
	return policy, nil
}

// Verify grants access unconditionally when the policy is public or has no
// password. Otherwise a missing password is PasswordRequired and a mismatch
// is PasswordInvalid; bcrypt comparison is constant-time by construction.
func (s *AccessPolicyService) Verify(ctx context.Context, sessionID string, password string) error {
	policy, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	if policy.IsPublic || !policy.HasPassword() {
		return nil
	}
	if password == "" {
		return apperrors.PasswordRequired()
	}
	if !util.CheckPasswordHash(password, *policy.PasswordHash) {
		return apperrors.PasswordInvalid()
	}
	return nil
}
