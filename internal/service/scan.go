package service

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/scanbridge/relay-server-go/internal/errors"
	"github.com/scanbridge/relay-server-go/internal/model"
	"github.com/scanbridge/relay-server-go/internal/relay"
	"github.com/scanbridge/relay-server-go/internal/repository"
)

type AppendScanParams struct {
	SessionID     string
	Code          string
	ScanTimestamp time.Time
}

type ScanService struct {
	scanRepo    repository.ScanRepository
	sessionRepo repository.SessionRepository
	hub         *relay.Hub

	// Serializes append+publish per session so broadcast order always equals
	// ledger arrival order. Striped so the lock set stays bounded no matter
	// how many sessions churn through; a stripe collision only costs some
	// cross-session contention.
	locks [64]sync.Mutex
}

func NewScanService(
	scanRepo repository.ScanRepository,
	sessionRepo repository.SessionRepository,
	hub *relay.Hub,
) *ScanService {
	return &ScanService{
		scanRepo:    scanRepo,
		sessionRepo: sessionRepo,
		hub:         hub,
	}
}

// Append validates, persists, and broadcasts one scan. The record is assigned
// its arrival time at insertion; the producer clock only ever fills
// scanTimestamp. Scans into deleted sessions are rejected.
func (s *ScanService) Append(ctx context.Context, params AppendScanParams) (*model.ScanRecord, error) {
	if params.SessionID == "" {
		return nil, apperrors.MissingRequired("sessionId")
	}
	if params.Code == "" {
		return nil, apperrors.MissingRequired("code")
	}
	if params.ScanTimestamp.IsZero() {
		return nil, apperrors.MissingRequired("timestamp")
	}

	session, err := s.sessionRepo.FindByID(ctx, params.SessionID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if session == nil {
		return nil, apperrors.NotFound("Session")
	}
	if session.Status != model.SessionStatusActive {
		return nil, apperrors.Conflict("Session is deleted; restore it before scanning")
	}

	lock := s.sessionLock(params.SessionID)
	lock.Lock()
	defer lock.Unlock()

	record, err := s.scanRepo.Create(ctx, model.CreateScanParams{
		SessionID:     params.SessionID,
		Code:          params.Code,
		ScanTimestamp: params.ScanTimestamp,
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}

	if err := s.sessionRepo.TouchActivity(ctx, params.SessionID, record.RecordedAt); err != nil {
		log.Warn().Err(err).Str("sessionId", params.SessionID).Msg("failed to touch session activity")
	}

	if s.hub != nil {
		event := relay.Event{Type: relay.EventNewScan, Data: record.ToRelayEventData()}
		if err := s.hub.Publish(ctx, params.SessionID, event); err != nil {
			log.Error().Err(err).Str("sessionId", params.SessionID).Msg("failed to publish scan event")
		}
	}

	log.Debug().
		Int64("scanId", record.ID).
		Str("sessionId", record.SessionID).
		Msg("scan appended")

	return record, nil
}

// ListBySession returns the ledger snapshot in arrival order for replay and
// export. The session must not be purged; deleted sessions remain readable.
func (s *ScanService) ListBySession(ctx context.Context, sessionID string) ([]model.ScanRecord, error) {
	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if session == nil {
		return nil, apperrors.NotFound("Session")
	}

	records, err := s.scanRepo.ListBySessionID(ctx, sessionID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return records, nil
}

// DeleteOne removes a single scan. A missing id is a no-op count of zero.
func (s *ScanService) DeleteOne(ctx context.Context, id int64) (int64, error) {
	affected, err := s.scanRepo.DeleteByID(ctx, id)
	if err != nil {
		return 0, apperrors.Database(err)
	}
	return affected, nil
}

// DeleteMany removes the listed scans, reporting how many existed. An empty
// id list is a validation error; unknown ids are skipped silently.
func (s *ScanService) DeleteMany(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, apperrors.ValidationError("At least one scan id is required")
	}
	affected, err := s.scanRepo.DeleteByIDs(ctx, ids)
	if err != nil {
		return 0, apperrors.Database(err)
	}

	log.Info().Int("requested", len(ids)).Int64("deleted", affected).Msg("bulk scan delete")
	return affected, nil
}

func (s *ScanService) sessionLock(sessionID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(sessionID))
	return &s.locks[h.Sum32()%uint32(len(s.locks))]
}
