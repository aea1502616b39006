package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/scanbridge/relay-server-go/internal/database"
	"github.com/scanbridge/relay-server-go/internal/model"
)

type AccessPolicyRepository interface {
	FindBySessionID(ctx context.Context, sessionID string) (*model.AccessPolicy, error)
	Upsert(ctx context.Context, sessionID string, params model.UpdateAccessPolicyParams) (*model.AccessPolicy, error)
	DeleteBySessionID(ctx context.Context, sessionID string) (int64, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) AccessPolicyRepository
}

type accessPolicyRepo struct {
	db database.DBTX
}

func NewAccessPolicyRepository(db *sqlx.DB) AccessPolicyRepository {
	return &accessPolicyRepo{db: db}
}

func (r *accessPolicyRepo) WithTx(tx *sqlx.Tx) AccessPolicyRepository {
	return &accessPolicyRepo{db: tx}
}

func (r *accessPolicyRepo) FindBySessionID(ctx context.Context, sessionID string) (*model.AccessPolicy, error) {
	var policy model.AccessPolicy
	err := r.db.GetContext(ctx, &policy, `
		SELECT * FROM access_policies WHERE session_id = $1
	`, sessionID)
	return HandleNotFound(&policy, err)
}

// Upsert creates the policy row lazily and applies only the non-nil fields;
// COALESCE keeps existing values for fields absent from the request.
func (r *accessPolicyRepo) Upsert(ctx context.Context, sessionID string, params model.UpdateAccessPolicyParams) (*model.AccessPolicy, error) {
	var policy model.AccessPolicy
	err := r.db.GetContext(ctx, &policy, `
		INSERT INTO access_policies (
			session_id, is_public, password_hash, access_code,
			max_participants, allow_anonymous, expires_at, updated_at
		)
		VALUES (
			$1,
			COALESCE($2, TRUE),
			$3, $4, $5,
			COALESCE($6, TRUE),
			$7, NOW()
		)
		ON CONFLICT (session_id) DO UPDATE SET
			is_public        = COALESCE($2, access_policies.is_public),
			password_hash    = COALESCE($3, access_policies.password_hash),
			access_code      = COALESCE($4, access_policies.access_code),
			max_participants = COALESCE($5, access_policies.max_participants),
			allow_anonymous  = COALESCE($6, access_policies.allow_anonymous),
			expires_at       = COALESCE($7, access_policies.expires_at),
			updated_at       = NOW()
		RETURNING *
	`, sessionID, params.IsPublic, params.PasswordHash, params.AccessCode,
		params.MaxParticipants, params.AllowAnonymous, params.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return &policy, nil
}

func (r *accessPolicyRepo) DeleteBySessionID(ctx context.Context, sessionID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM access_policies WHERE session_id = $1
	`, sessionID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
