package expiry

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/peacelink/peacelink/internal/domain/peacelink"
)

const sweepBatch = 100

// Scheduler sweeps PeaceLinks past their approval deadline into expired.
// Races with user transitions are benign: the state machine rejects the
// sweep's trigger when someone else got there first, and the sweeper just
// moves on.
type Scheduler struct {
	links    peacelink.Repository
	expire   func(ctx context.Context, id uuid.UUID) error
	interval time.Duration
	logger   zerolog.Logger
	nowFn    func() time.Time
}

// New builds a scheduler. expire is escrow.Service.Expire with the result
// dropped.
func New(links peacelink.Repository, expire func(ctx context.Context, id uuid.UUID) error, interval time.Duration, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		links:    links,
		expire:   expire,
		interval: interval,
		logger:   logger.With().Str("service", "expiry").Logger(),
		nowFn:    func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc overrides the time source. Intended for tests.
func (s *Scheduler) SetNowFunc(now func() time.Time) {
	if now != nil {
		s.nowFn = now
	}
}

// Run sweeps on the configured interval until the context is canceled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep expires every overdue PeaceLink it can find, one batch at a time.
// It returns the number of PeaceLinks expired.
func (s *Scheduler) Sweep(ctx context.Context) int {
	var expired int
	for {
		overdue, err := s.links.ListExpired(ctx, s.nowFn(), sweepBatch)
		if err != nil {
			s.logger.Error().Err(err).Msg("expiry sweep: listing overdue peacelinks")
			return expired
		}
		if len(overdue) == 0 {
			return expired
		}
		var progressed bool
		for _, pl := range overdue {
			if err := s.expire(ctx, pl.ID); err != nil {
				if errors.Is(err, peacelink.ErrInvalidTransition) || errors.Is(err, peacelink.ErrTerminalState) {
					// Lost the race to a user transition.
					s.logger.Debug().Err(err).Str("peaceLinkId", pl.ID.String()).Msg("expiry skipped")
					continue
				}
				s.logger.Error().Err(err).Str("peaceLinkId", pl.ID.String()).Msg("expiry failed")
				continue
			}
			expired++
			progressed = true
		}
		if !progressed {
			return expired
		}
		if len(overdue) < sweepBatch {
			return expired
		}
	}
}
