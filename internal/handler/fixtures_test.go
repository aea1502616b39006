package handler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"

	"github.com/scanbridge/relay-server-go/internal/database"
	"github.com/scanbridge/relay-server-go/internal/middleware"
	"github.com/scanbridge/relay-server-go/internal/model"
	"github.com/scanbridge/relay-server-go/internal/repository"
	"github.com/scanbridge/relay-server-go/internal/service"
)

type passTx struct{}

func (passTx) WithTx(ctx context.Context, fn database.TxFunc) error {
	return fn(nil)
}

// memSessionRepo is an in-memory SessionRepository for endpoint tests.
type memSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]model.Session
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: make(map[string]model.Session)}
}

func (r *memSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		return &s, nil
	}
	return nil, nil
}

func (r *memSessionRepo) Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	s := model.Session{
		ID:             params.ID,
		OwnerID:        params.OwnerID,
		Name:           params.Name,
		Status:         model.SessionStatusActive,
		CreatedAt:      now,
		LastActivityAt: now,
	}
	r.sessions[params.ID] = s
	return &s, nil
}

func (r *memSessionRepo) Rename(ctx context.Context, id string, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.sessions[id]
	s.Name = &name
	r.sessions[id] = s
	return nil
}

func (r *memSessionRepo) SoftDelete(ctx context.Context, id string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.Status != model.SessionStatusActive {
		return 0, nil
	}
	now := time.Now()
	s.Status = model.SessionStatusDeleted
	s.DeletedAt = &now
	r.sessions[id] = s
	return 1, nil
}

func (r *memSessionRepo) Restore(ctx context.Context, id string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.Status != model.SessionStatusDeleted {
		return 0, nil
	}
	s.Status = model.SessionStatusActive
	s.DeletedAt = nil
	r.sessions[id] = s
	return 1, nil
}

func (r *memSessionRepo) Delete(ctx context.Context, id string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return 0, nil
	}
	delete(r.sessions, id)
	return 1, nil
}

func (r *memSessionRepo) list(status model.SessionStatus, ownerID *string) []model.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Session
	for _, s := range r.sessions {
		if s.Status != status {
			continue
		}
		if ownerID != nil && (s.OwnerID == nil || *s.OwnerID != *ownerID) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *memSessionRepo) ListActive(ctx context.Context, ownerID *string) ([]model.Session, error) {
	return r.list(model.SessionStatusActive, ownerID), nil
}

func (r *memSessionRepo) ListDeleted(ctx context.Context, ownerID *string) ([]model.Session, error) {
	return r.list(model.SessionStatusDeleted, ownerID), nil
}

func (r *memSessionRepo) FindDeletedBefore(ctx context.Context, cutoff time.Time) ([]model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Session
	for _, s := range r.sessions {
		if s.Status == model.SessionStatusDeleted && s.DeletedAt != nil && s.DeletedAt.Before(cutoff) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *memSessionRepo) CountDeletedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	found, _ := r.FindDeletedBefore(ctx, cutoff)
	return len(found), nil
}

func (r *memSessionRepo) TouchActivity(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok && at.After(s.LastActivityAt) {
		s.LastActivityAt = at
		r.sessions[id] = s
	}
	return nil
}

func (r *memSessionRepo) WithTx(tx *sqlx.Tx) repository.SessionRepository {
	return r
}

type memPolicyRepo struct {
	mu       sync.Mutex
	policies map[string]model.AccessPolicy
}

func newMemPolicyRepo() *memPolicyRepo {
	return &memPolicyRepo{policies: make(map[string]model.AccessPolicy)}
}

func (r *memPolicyRepo) FindBySessionID(ctx context.Context, sessionID string) (*model.AccessPolicy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.policies[sessionID]; ok {
		return &p, nil
	}
	return nil, nil
}

func (r *memPolicyRepo) Upsert(ctx context.Context, sessionID string, params model.UpdateAccessPolicyParams) (*model.AccessPolicy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.policies[sessionID]
	if !ok {
		p = *model.DefaultAccessPolicy(sessionID)
	}
	if params.IsPublic != nil {
		p.IsPublic = *params.IsPublic
	}
	if params.PasswordHash != nil {
		if *params.PasswordHash == "" {
			p.PasswordHash = nil
		} else {
			hash := *params.PasswordHash
			p.PasswordHash = &hash
		}
	}
	if params.AccessCode != nil {
		code := *params.AccessCode
		p.AccessCode = &code
	}
	if params.MaxParticipants != nil {
		n := *params.MaxParticipants
		p.MaxParticipants = &n
	}
	if params.AllowAnonymous != nil {
		p.AllowAnonymous = *params.AllowAnonymous
	}
	if params.ExpiresAt != nil {
		at := *params.ExpiresAt
		p.ExpiresAt = &at
	}
	p.UpdatedAt = time.Now()
	r.policies[sessionID] = p
	return &p, nil
}

func (r *memPolicyRepo) DeleteBySessionID(ctx context.Context, sessionID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.policies[sessionID]; !ok {
		return 0, nil
	}
	delete(r.policies, sessionID)
	return 1, nil
}

func (r *memPolicyRepo) WithTx(tx *sqlx.Tx) repository.AccessPolicyRepository {
	return r
}

type memScanRepo struct {
	mu      sync.Mutex
	nextID  int64
	records []model.ScanRecord
}

func newMemScanRepo() *memScanRepo {
	return &memScanRepo{nextID: 1}
}

func (r *memScanRepo) Create(ctx context.Context, params model.CreateScanParams) (*model.ScanRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record := model.ScanRecord{
		ID:            r.nextID,
		SessionID:     params.SessionID,
		Code:          params.Code,
		ScanTimestamp: params.ScanTimestamp,
		RecordedAt:    time.Now(),
	}
	r.nextID++
	r.records = append(r.records, record)
	return &record, nil
}

func (r *memScanRepo) ListBySessionID(ctx context.Context, sessionID string) ([]model.ScanRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.ScanRecord
	for _, rec := range r.records {
		if rec.SessionID == sessionID {
			out = append(out, rec)
		}
	}
	// arrival order with id tiebreak, matching the SQL contract
	sort.Slice(out, func(i, j int) bool {
		if out[i].RecordedAt.Equal(out[j].RecordedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].RecordedAt.Before(out[j].RecordedAt)
	})
	return out, nil
}

func (r *memScanRepo) CountBySessionID(ctx context.Context, sessionID string) (int, error) {
	records, _ := r.ListBySessionID(ctx, sessionID)
	return len(records), nil
}

func (r *memScanRepo) DeleteByID(ctx context.Context, id int64) (int64, error) {
	return r.DeleteByIDs(ctx, []int64{id})
}

func (r *memScanRepo) DeleteByIDs(ctx context.Context, ids []int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wanted := make(map[int64]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	var kept []model.ScanRecord
	var deleted int64
	for _, rec := range r.records {
		if wanted[rec.ID] {
			deleted++
			continue
		}
		kept = append(kept, rec)
	}
	r.records = kept
	return deleted, nil
}

func (r *memScanRepo) DeleteBySessionID(ctx context.Context, sessionID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kept []model.ScanRecord
	var deleted int64
	for _, rec := range r.records {
		if rec.SessionID == sessionID {
			deleted++
			continue
		}
		kept = append(kept, rec)
	}
	r.records = kept
	return deleted, nil
}

func (r *memScanRepo) WithTx(tx *sqlx.Tx) repository.ScanRepository {
	return r
}

// testEnv wires the in-memory repositories into real services and a router
// with the identity middleware, mirroring the production route layout.
type testEnv struct {
	router      chi.Router
	sessionRepo *memSessionRepo
	policyRepo  *memPolicyRepo
	scanRepo    *memScanRepo
	scanService *service.ScanService
}

func newTestEnv() *testEnv {
	sessionRepo := newMemSessionRepo()
	policyRepo := newMemPolicyRepo()
	scanRepo := newMemScanRepo()

	sessionService := service.NewSessionService(passTx{}, sessionRepo, policyRepo, scanRepo)
	policyService := service.NewAccessPolicyService(policyRepo, sessionRepo)
	scanService := service.NewScanService(scanRepo, sessionRepo, nil)
	exportService := service.NewExportService(scanService)

	r := chi.NewRouter()
	r.Use(middleware.NewIdentityMiddleware().Handler)
	r.Mount("/v1/sessions", NewSessionHandler(sessionService, exportService, nil).Routes())
	r.Mount("/v1/policies", NewPolicyHandler(policyService).Routes())
	r.Mount("/v1/scans", NewScanHandler(scanService).Routes())

	return &testEnv{
		router:      r,
		sessionRepo: sessionRepo,
		policyRepo:  policyRepo,
		scanRepo:    scanRepo,
		scanService: scanService,
	}
}
