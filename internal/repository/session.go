package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/scanbridge/relay-server-go/internal/database"
	"github.com/scanbridge/relay-server-go/internal/model"
)

type SessionRepository interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
	Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error)
	Rename(ctx context.Context, id string, name string) error
	SoftDelete(ctx context.Context, id string) (int64, error)
	Restore(ctx context.Context, id string) (int64, error)
	Delete(ctx context.Context, id string) (int64, error)
	ListActive(ctx context.Context, ownerID *string) ([]model.Session, error)
	ListDeleted(ctx context.Context, ownerID *string) ([]model.Session, error)
	FindDeletedBefore(ctx context.Context, cutoff time.Time) ([]model.Session, error)
	CountDeletedBefore(ctx context.Context, cutoff time.Time) (int, error)
	TouchActivity(ctx context.Context, id string, at time.Time) error
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) SessionRepository
}

type sessionRepo struct {
	db database.DBTX
}

func NewSessionRepository(db *sqlx.DB) SessionRepository {
	return &sessionRepo{db: db}
}

func (r *sessionRepo) WithTx(tx *sqlx.Tx) SessionRepository {
	return &sessionRepo{db: tx}
}

func (r *sessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM sessions WHERE id = $1
	`, id)
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		INSERT INTO sessions (id, owner_id, name, status)
		VALUES ($1, $2, $3, 'active')
		RETURNING *
	`, params.ID, params.OwnerID, params.Name)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) Rename(ctx context.Context, id string, name string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET name = $2 WHERE id = $1
	`, id, name)
	return err
}

func (r *sessionRepo) SoftDelete(ctx context.Context, id string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET
			status = 'deleted',
			deleted_at = $2
		WHERE id = $1 AND status = 'active'
	`, id, time.Now())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *sessionRepo) Restore(ctx context.Context, id string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET
			status = 'active',
			deleted_at = NULL
		WHERE id = $1 AND status = 'deleted'
	`, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *sessionRepo) Delete(ctx context.Context, id string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM sessions WHERE id = $1
	`, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *sessionRepo) ListActive(ctx context.Context, ownerID *string) ([]model.Session, error) {
	return r.list(ctx, model.SessionStatusActive, ownerID)
}

func (r *sessionRepo) ListDeleted(ctx context.Context, ownerID *string) ([]model.Session, error) {
	return r.list(ctx, model.SessionStatusDeleted, ownerID)
}

func (r *sessionRepo) list(ctx context.Context, status model.SessionStatus, ownerID *string) ([]model.Session, error) {
	sessions := []model.Session{}
	if ownerID != nil {
		err := r.db.SelectContext(ctx, &sessions, `
			SELECT * FROM sessions
			WHERE status = $1 AND owner_id = $2
			ORDER BY last_activity_at DESC
		`, status, *ownerID)
		return sessions, err
	}
	err := r.db.SelectContext(ctx, &sessions, `
		SELECT * FROM sessions
		WHERE status = $1
		ORDER BY last_activity_at DESC
	`, status)
	return sessions, err
}

func (r *sessionRepo) FindDeletedBefore(ctx context.Context, cutoff time.Time) ([]model.Session, error) {
	sessions := []model.Session{}
	err := r.db.SelectContext(ctx, &sessions, `
		SELECT * FROM sessions
		WHERE status = 'deleted' AND deleted_at < $1
		ORDER BY deleted_at ASC
	`, cutoff)
	return sessions, err
}

func (r *sessionRepo) CountDeletedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM sessions
		WHERE status = 'deleted' AND deleted_at < $1
	`, cutoff)
	return count, err
}

func (r *sessionRepo) TouchActivity(ctx context.Context, id string, at time.Time) error {
	// GREATEST keeps last_activity_at monotonic under concurrent appends.
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET last_activity_at = GREATEST(last_activity_at, $2)
		WHERE id = $1
	`, id, at)
	return err
}
