package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/scanbridge/relay-server-go/internal/database"
	apperrors "github.com/scanbridge/relay-server-go/internal/errors"
	"github.com/scanbridge/relay-server-go/internal/model"
	"github.com/scanbridge/relay-server-go/internal/repository"
	"github.com/scanbridge/relay-server-go/internal/util"
)

// TxRunner runs a function inside a database transaction. *database.DB
// satisfies it; tests substitute a pass-through.
type TxRunner interface {
	WithTx(ctx context.Context, fn database.TxFunc) error
}

type CreateSessionParams struct {
	RequestedID *string
	Name        *string
}

type SessionService struct {
	tx          TxRunner
	sessionRepo repository.SessionRepository
	policyRepo  repository.AccessPolicyRepository
	scanRepo    repository.ScanRepository
}

func NewSessionService(
	tx TxRunner,
	sessionRepo repository.SessionRepository,
	policyRepo repository.AccessPolicyRepository,
	scanRepo repository.ScanRepository,
) *SessionService {
	return &SessionService{
		tx:          tx,
		sessionRepo: sessionRepo,
		policyRepo:  policyRepo,
		scanRepo:    scanRepo,
	}
}

// Create mints a session owned by actor (or owner-less when actor is nil).
// A requested id that already exists is reused when the caller matches the
// stored owner, which makes create-or-join idempotent for reconnecting
// producers. A collision under a different owner is a Conflict.
func (s *SessionService) Create(ctx context.Context, actor *string, params CreateSessionParams) (*model.Session, error) {
	id := ""
	if params.RequestedID != nil && *params.RequestedID != "" {
		if !util.IsValidSessionID(*params.RequestedID) {
			return nil, apperrors.InvalidInput("sessionId", "must be 4-64 URL-safe characters")
		}
		existing, err := s.sessionRepo.FindByID(ctx, *params.RequestedID)
		if err != nil {
			return nil, apperrors.Database(err)
		}
		if existing != nil {
			if !sameOwner(existing.OwnerID, actor) {
				return nil, apperrors.Conflict("Session id is already in use")
			}
			return existing, nil
		}
		id = *params.RequestedID
	} else {
		id = uuid.NewString()
	}

	session, err := s.sessionRepo.Create(ctx, model.CreateSessionParams{
		ID:      id,
		OwnerID: actor,
		Name:    params.Name,
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}

	log.Info().
		Str("sessionId", session.ID).
		Bool("owned", session.OwnerID != nil).
		Msg("session created")

	return session, nil
}

// Get returns the session or NotFound; a purged session has no row.
func (s *SessionService) Get(ctx context.Context, id string) (*model.Session, error) {
	session, err := s.sessionRepo.FindByID(ctx, id)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if session == nil {
		return nil, apperrors.NotFound("Session")
	}
	return session, nil
}

// ScanCount reports the ledger size without loading the records.
func (s *SessionService) ScanCount(ctx context.Context, id string) (int, error) {
	count, err := s.scanRepo.CountBySessionID(ctx, id)
	if err != nil {
		return 0, apperrors.Database(err)
	}
	return count, nil
}

func (s *SessionService) List(ctx context.Context, status model.SessionStatus, ownerID *string) ([]model.Session, error) {
	var (
		sessions []model.Session
		err      error
	)
	switch status {
	case model.SessionStatusDeleted:
		sessions, err = s.sessionRepo.ListDeleted(ctx, ownerID)
	default:
		sessions, err = s.sessionRepo.ListActive(ctx, ownerID)
	}
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return sessions, nil
}

func (s *SessionService) Rename(ctx context.Context, id string, name string, actor *string) (*model.Session, error) {
	session, err := s.loadAuthorized(ctx, id, actor)
	if err != nil {
		return nil, err
	}

	if err := s.sessionRepo.Rename(ctx, session.ID, name); err != nil {
		return nil, apperrors.Database(err)
	}
	session.Name = &name

	log.Info().Str("sessionId", id).Msg("session renamed")
	return session, nil
}

// SoftDelete marks the session deleted. Already-deleted sessions are a
// state conflict, mirroring Restore.
func (s *SessionService) SoftDelete(ctx context.Context, id string, actor *string) error {
	session, err := s.loadAuthorized(ctx, id, actor)
	if err != nil {
		return err
	}
	if session.Status == model.SessionStatusDeleted {
		return apperrors.Conflict("Session is already deleted")
	}

	affected, err := s.sessionRepo.SoftDelete(ctx, id)
	if err != nil {
		return apperrors.Database(err)
	}
	if affected == 0 {
		return apperrors.Conflict("Session is already deleted")
	}

	log.Info().Str("sessionId", id).Msg("session soft-deleted")
	return nil
}

// Restore only succeeds from the deleted state.
func (s *SessionService) Restore(ctx context.Context, id string, actor *string) error {
	session, err := s.loadAuthorized(ctx, id, actor)
	if err != nil {
		return err
	}
	if session.Status != model.SessionStatusDeleted {
		return apperrors.Conflict("Session is not deleted")
	}

	affected, err := s.sessionRepo.Restore(ctx, id)
	if err != nil {
		return apperrors.Database(err)
	}
	if affected == 0 {
		return apperrors.Conflict("Session is not deleted")
	}

	log.Info().Str("sessionId", id).Msg("session restored")
	return nil
}

// PermanentDelete removes the session, its access policy, and every scan
// record as one atomic unit. Partial cascades are a correctness violation,
// hence the single transaction.
func (s *SessionService) PermanentDelete(ctx context.Context, id string, actor *string) error {
	if _, err := s.loadAuthorized(ctx, id, actor); err != nil {
		return err
	}

	var purgedScans int64
	err := s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := s.policyRepo.WithTx(tx).DeleteBySessionID(ctx, id); err != nil {
			return fmt.Errorf("delete access policy: %w", err)
		}
		n, err := s.scanRepo.WithTx(tx).DeleteBySessionID(ctx, id)
		if err != nil {
			return fmt.Errorf("delete scan records: %w", err)
		}
		purgedScans = n
		if _, err := s.sessionRepo.WithTx(tx).Delete(ctx, id); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		return nil
	})
	if err != nil {
		return apperrors.Database(err)
	}

	log.Info().
		Str("sessionId", id).
		Int64("purgedScans", purgedScans).
		Msg("session permanently deleted")
	return nil
}

// loadAuthorized re-reads current ownership before every mutation. Owned
// sessions require the matching identity; owner-less sessions accept any
// caller.
func (s *SessionService) loadAuthorized(ctx context.Context, id string, actor *string) (*model.Session, error) {
	session, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.OwnerID == nil {
		return session, nil
	}
	if actor == nil {
		return nil, apperrors.Unauthorized("Authentication required for this session")
	}
	if !util.ConstantTimeEqual(*session.OwnerID, *actor) {
		return nil, apperrors.Forbidden("You do not own this session")
	}
	return session, nil
}

func sameOwner(ownerID, actor *string) bool {
	if ownerID == nil && actor == nil {
		return true
	}
	if ownerID == nil || actor == nil {
		return false
	}
	return *ownerID == *actor
}
