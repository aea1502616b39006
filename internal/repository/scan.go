package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/scanbridge/relay-server-go/internal/database"
	"github.com/scanbridge/relay-server-go/internal/model"
)

type ScanRepository interface {
	Create(ctx context.Context, params model.CreateScanParams) (*model.ScanRecord, error)
	ListBySessionID(ctx context.Context, sessionID string) ([]model.ScanRecord, error)
	CountBySessionID(ctx context.Context, sessionID string) (int, error)
	DeleteByID(ctx context.Context, id int64) (int64, error)
	DeleteByIDs(ctx context.Context, ids []int64) (int64, error)
	DeleteBySessionID(ctx context.Context, sessionID string) (int64, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) ScanRepository
}

type scanRepo struct {
	db database.DBTX
}

func NewScanRepository(db *sqlx.DB) ScanRepository {
	return &scanRepo{db: db}
}

func (r *scanRepo) WithTx(tx *sqlx.Tx) ScanRepository {
	return &scanRepo{db: tx}
}

func (r *scanRepo) Create(ctx context.Context, params model.CreateScanParams) (*model.ScanRecord, error) {
	var record model.ScanRecord
	err := r.db.GetContext(ctx, &record, `
		INSERT INTO scan_records (session_id, code, scan_timestamp)
		VALUES ($1, $2, $3)
		RETURNING *
	`, params.SessionID, params.Code, params.ScanTimestamp)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// ListBySessionID returns the ledger in arrival order. The id tiebreak keeps
// the order total when two inserts land on the same timestamp.
func (r *scanRepo) ListBySessionID(ctx context.Context, sessionID string) ([]model.ScanRecord, error) {
	records := []model.ScanRecord{}
	err := r.db.SelectContext(ctx, &records, `
		SELECT * FROM scan_records
		WHERE session_id = $1
		ORDER BY recorded_at ASC, id ASC
	`, sessionID)
	return records, err
}

func (r *scanRepo) CountBySessionID(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM scan_records WHERE session_id = $1
	`, sessionID)
	return count, err
}

func (r *scanRepo) DeleteByID(ctx context.Context, id int64) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM scan_records WHERE id = $1
	`, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *scanRepo) DeleteByIDs(ctx context.Context, ids []int64) (int64, error) {
	query, args, err := sqlx.In(`DELETE FROM scan_records WHERE id IN (?)`, ids)
	if err != nil {
		return 0, err
	}
	query = sqlx.Rebind(sqlx.DOLLAR, query)
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *scanRepo) DeleteBySessionID(ctx context.Context, sessionID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM scan_records WHERE session_id = $1
	`, sessionID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
