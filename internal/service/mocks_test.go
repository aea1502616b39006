package service

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/mock"

	"github.com/scanbridge/relay-server-go/internal/database"
	"github.com/scanbridge/relay-server-go/internal/model"
	"github.com/scanbridge/relay-server-go/internal/repository"
)

// fakeTxRunner executes the function directly; the mocked repositories ignore
// the transaction handle.
type fakeTxRunner struct {
	err error
}

func (f *fakeTxRunner) WithTx(ctx context.Context, fn database.TxFunc) error {
	if f.err != nil {
		return f.err
	}
	return fn(nil)
}

type mockSessionRepo struct {
	mock.Mock
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Session), args.Error(1)
}

func (m *mockSessionRepo) Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Session), args.Error(1)
}

func (m *mockSessionRepo) Rename(ctx context.Context, id string, name string) error {
	args := m.Called(ctx, id, name)
	return args.Error(0)
}

func (m *mockSessionRepo) SoftDelete(ctx context.Context, id string) (int64, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockSessionRepo) Restore(ctx context.Context, id string) (int64, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockSessionRepo) Delete(ctx context.Context, id string) (int64, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockSessionRepo) ListActive(ctx context.Context, ownerID *string) ([]model.Session, error) {
	args := m.Called(ctx, ownerID)
	return args.Get(0).([]model.Session), args.Error(1)
}

func (m *mockSessionRepo) ListDeleted(ctx context.Context, ownerID *string) ([]model.Session, error) {
	args := m.Called(ctx, ownerID)
	return args.Get(0).([]model.Session), args.Error(1)
}

func (m *mockSessionRepo) FindDeletedBefore(ctx context.Context, cutoff time.Time) ([]model.Session, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).([]model.Session), args.Error(1)
}

func (m *mockSessionRepo) CountDeletedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	args := m.Called(ctx, cutoff)
	return args.Int(0), args.Error(1)
}

func (m *mockSessionRepo) TouchActivity(ctx context.Context, id string, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *mockSessionRepo) WithTx(tx *sqlx.Tx) repository.SessionRepository {
	return m
}

type mockPolicyRepo struct {
	mock.Mock
}

func (m *mockPolicyRepo) FindBySessionID(ctx context.Context, sessionID string) (*model.AccessPolicy, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AccessPolicy), args.Error(1)
}

func (m *mockPolicyRepo) Upsert(ctx context.Context, sessionID string, params model.UpdateAccessPolicyParams) (*model.AccessPolicy, error) {
	args := m.Called(ctx, sessionID, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AccessPolicy), args.Error(1)
}

func (m *mockPolicyRepo) DeleteBySessionID(ctx context.Context, sessionID string) (int64, error) {
	args := m.Called(ctx, sessionID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockPolicyRepo) WithTx(tx *sqlx.Tx) repository.AccessPolicyRepository {
	return m
}

type mockScanRepo struct {
	mock.Mock
}

func (m *mockScanRepo) Create(ctx context.Context, params model.CreateScanParams) (*model.ScanRecord, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ScanRecord), args.Error(1)
}

func (m *mockScanRepo) ListBySessionID(ctx context.Context, sessionID string) ([]model.ScanRecord, error) {
	args := m.Called(ctx, sessionID)
	return args.Get(0).([]model.ScanRecord), args.Error(1)
}

func (m *mockScanRepo) CountBySessionID(ctx context.Context, sessionID string) (int, error) {
	args := m.Called(ctx, sessionID)
	return args.Int(0), args.Error(1)
}

func (m *mockScanRepo) DeleteByID(ctx context.Context, id int64) (int64, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockScanRepo) DeleteByIDs(ctx context.Context, ids []int64) (int64, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockScanRepo) DeleteBySessionID(ctx context.Context, sessionID string) (int64, error) {
	args := m.Called(ctx, sessionID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockScanRepo) WithTx(tx *sqlx.Tx) repository.ScanRepository {
	return m
}

func strPtr(s string) *string { return &s }
