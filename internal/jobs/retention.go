package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/scanbridge/relay-server-go/internal/database"
	"github.com/scanbridge/relay-server-go/internal/repository"
)

// TxRunner runs a function inside a database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn database.TxFunc) error
}

type SweepResult struct {
	PurgedSessions int   `json:"purgedSessions"`
	PurgedScans    int64 `json:"purgedScans"`
	Failed         int   `json:"failed"`
}

// RetentionSweeper purges sessions whose soft-delete age exceeds the
// retention window, cascading into their access policy and scan records.
// Each session's cascade is atomic; the batch across sessions is best-effort.
type RetentionSweeper struct {
	tx          TxRunner
	sessionRepo repository.SessionRepository
	policyRepo  repository.AccessPolicyRepository
	scanRepo    repository.ScanRepository
	window      time.Duration
	interval    time.Duration
	done        chan struct{}
}

func NewRetentionSweeper(
	tx TxRunner,
	sessionRepo repository.SessionRepository,
	policyRepo repository.AccessPolicyRepository,
	scanRepo repository.ScanRepository,
	window time.Duration,
	interval time.Duration,
) *RetentionSweeper {
	return &RetentionSweeper{
		tx:          tx,
		sessionRepo: sessionRepo,
		policyRepo:  policyRepo,
		scanRepo:    scanRepo,
		window:      window,
		interval:    interval,
		done:        make(chan struct{}),
	}
}

func (s *RetentionSweeper) Start() {
	go s.run()
	log.Info().
		Dur("interval", s.interval).
		Dur("window", s.window).
		Msg("retention sweeper started")
}

func (s *RetentionSweeper) Stop() {
	close(s.done)
	log.Info().Msg("retention sweeper stopped")
}

func (s *RetentionSweeper) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweepOnce()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sweepOnce()
		}
	}
}

func (s *RetentionSweeper) sweepOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := s.Sweep(ctx)
	if err != nil {
		log.Error().Err(err).Msg("retention sweep failed")
		return
	}
	if result.PurgedSessions > 0 || result.Failed > 0 {
		log.Info().
			Int("purgedSessions", result.PurgedSessions).
			Int64("purgedScans", result.PurgedScans).
			Int("failed", result.Failed).
			Msg("retention sweep completed")
	}
}

// Sweep purges every eligible session. A failed cascade is counted and
// logged but does not abort the remaining candidates; re-running finds
// nothing once a session is purged.
func (s *RetentionSweeper) Sweep(ctx context.Context) (*SweepResult, error) {
	cutoff := time.Now().Add(-s.window)

	candidates, err := s.sessionRepo.FindDeletedBefore(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("find purge candidates: %w", err)
	}

	result := &SweepResult{}
	for _, session := range candidates {
		var purgedScans int64
		err := s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
			if _, err := s.policyRepo.WithTx(tx).DeleteBySessionID(ctx, session.ID); err != nil {
				return fmt.Errorf("delete access policy: %w", err)
			}
			n, err := s.scanRepo.WithTx(tx).DeleteBySessionID(ctx, session.ID)
			if err != nil {
				return fmt.Errorf("delete scan records: %w", err)
			}
			purgedScans = n
			if _, err := s.sessionRepo.WithTx(tx).Delete(ctx, session.ID); err != nil {
				return fmt.Errorf("delete session: %w", err)
			}
			return nil
		})
		if err != nil {
			result.Failed++
			log.Error().Err(err).Str("sessionId", session.ID).Msg("failed to purge session")
			continue
		}

		result.PurgedSessions++
		result.PurgedScans += purgedScans
		log.Info().
			Str("sessionId", session.ID).
			Int64("purgedScans", purgedScans).
			Time("deletedAt", *session.DeletedAt).
			Msg("session purged by retention sweep")
	}

	return result, nil
}

// PendingCount reports how many sessions the next sweep would purge.
func (s *RetentionSweeper) PendingCount(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.window)
	return s.sessionRepo.CountDeletedBefore(ctx, cutoff)
}
