// Package ranking computes the team leaderboard.
//
// A ranking is a full scan: every team ID is listed, each team is read as
// one snapshot through SnapshotSource and scored by the scoring engine, and
// the results are sorted. Nothing is cached; two calls over unchanged data
// return identical output.
package ranking

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sakif/teamrally/internal/apperror"
	"github.com/sakif/teamrally/internal/model"
	"github.com/sakif/teamrally/internal/scoring"
)

const (
	DefaultLimit   = 20
	MaxLimit       = 100
	DefaultWorkers = 8
)

// SnapshotSource is where team data comes from. The SQLite store
// implements it; an incremental implementation could replace the full scan
// without touching callers.
type SnapshotSource interface {
	ListTeamIDs(ctx context.Context) ([]string, error)
	TeamSnapshot(ctx context.Context, teamID string) (*model.TeamSnapshot, error)
}

// Recorder receives scan timings. *metrics.Metrics implements it.
type Recorder interface {
	RecordRankingScan(teams int, d time.Duration)
}

// Service ranks teams by engagement score.
type Service struct {
	source  SnapshotSource
	engine  *scoring.Engine
	workers int
	metrics Recorder
	logger  *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithWorkers bounds how many snapshots are read and scored at once.
func WithWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithRecorder reports every scan to r.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.metrics = r }
}

// NewService creates a ranking Service.
func NewService(source SnapshotSource, engine *scoring.Engine, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		source:  source,
		engine:  engine,
		workers: DefaultWorkers,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TopRankings returns at most limit teams ordered by score, highest first.
// Equal scores are ordered by ascending team ID. A limit of 0 means
// DefaultLimit; anything outside 0..MaxLimit is a validation error.
func (s *Service) TopRankings(ctx context.Context, limit int) ([]model.RankingEntry, error) {
	if limit == 0 {
		limit = DefaultLimit
	}
	if limit < 1 || limit > MaxLimit {
		return nil, apperror.ValidationFailed("limit", fmt.Sprintf("limit must be between 1 and %d", MaxLimit))
	}

	entries, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// scan scores every team and returns them all, sorted.
func (s *Service) scan(ctx context.Context) ([]model.RankingEntry, error) {
	start := time.Now()

	ids, err := s.source.ListTeamIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("ranking: listing teams: %w", err)
	}

	// Each worker writes only its own index, so results needs no lock.
	results := make([]*model.RankingEntry, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, id := range ids {
		g.Go(func() error {
			snap, err := s.source.TeamSnapshot(gctx, id)
			if err != nil {
				// Listed a moment ago but gone now: leave it out.
				if errors.Is(err, apperror.ErrNotFound) {
					s.logger.Debug("team vanished during ranking scan", slog.String("teamID", id))
					return nil
				}
				return fmt.Errorf("ranking: snapshot of team %s: %w", id, err)
			}
			results[i] = &model.RankingEntry{
				TeamID:   snap.TeamID,
				TeamName: snap.TeamName,
				Score:    s.engine.Score(snap),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	entries := make([]model.RankingEntry, 0, len(results))
	for _, r := range results {
		if r != nil {
			entries = append(entries, *r)
		}
	}
	Sort(entries)

	elapsed := time.Since(start)
	if s.metrics != nil {
		s.metrics.RecordRankingScan(len(entries), elapsed)
	}
	s.logger.Debug("ranking scan complete",
		slog.Int("teams", len(entries)),
		slog.Duration("duration", elapsed),
	)
	return entries, nil
}

// Sort orders entries by descending score, then ascending team ID.
func Sort(entries []model.RankingEntry) {
	slices.SortFunc(entries, func(a, b model.RankingEntry) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.TeamID, b.TeamID)
	})
}
