// Package dataset loads dataset and quality indicator configuration from a
// directory of YAML files and serves it to concurrent analyses.
package dataset

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/dokanalyse/internal/model"
)

var (
	// ErrNoDatasets is returned when a load yields no valid dataset configuration.
	ErrNoDatasets = eris.New("dataset: no valid dataset configurations")
	// ErrUnknownDataset is returned for IDs without a configuration.
	ErrUnknownDataset = eris.New("dataset: unknown dataset")
	// ErrMultipleCoverageIndicators marks a dataset with more than one coverage indicator.
	ErrMultipleCoverageIndicators = eris.New("dataset: a dataset can only have one coverage quality indicator")
	// ErrNotInitialized is returned by reads before Initialize succeeded.
	ErrNotInitialized = eris.New("dataset: store not initialized")
)

// DefaultTTL is how long a loaded snapshot is served before reloading.
const DefaultTTL = 300 * time.Second

type snapshot struct {
	order      []uuid.UUID
	datasets   map[uuid.UUID]*model.DatasetConfig
	indicators map[uuid.UUID][]model.QualityIndicator
	coverage   map[uuid.UUID]int
	issues     []Issue
	loadedAt   time.Time
}

func buildSnapshot(l *loaded, now time.Time) (*snapshot, error) {
	s := &snapshot{
		datasets:   make(map[uuid.UUID]*model.DatasetConfig, len(l.datasets)),
		indicators: make(map[uuid.UUID][]model.QualityIndicator, len(l.datasets)),
		coverage:   make(map[uuid.UUID]int, len(l.datasets)),
		issues:     l.issues,
		loadedAt:   now,
	}

	for _, cfg := range l.datasets {
		if _, dup := s.datasets[cfg.DatasetID]; dup {
			zap.L().Warn("dataset: duplicate dataset_id, keeping first", zap.Stringer("dataset_id", cfg.DatasetID))
			s.issues = append(s.issues, Issue{Err: eris.Errorf("dataset: duplicate dataset_id %s", cfg.DatasetID)})
			continue
		}
		s.datasets[cfg.DatasetID] = cfg
		s.order = append(s.order, cfg.DatasetID)
	}
	if len(s.order) == 0 {
		return nil, ErrNoDatasets
	}

	for _, id := range s.order {
		var list []model.QualityIndicator
		for i := range l.quality {
			if l.quality[i].AppliesTo(id) {
				list = append(list, l.quality[i].Indicators...)
			}
		}
		s.indicators[id] = list

		n := 0
		for i := range list {
			if list[i].Type == model.IndicatorCoverage {
				n++
			}
		}
		s.coverage[id] = n
		if n > 1 {
			zap.L().Error("dataset: multiple coverage indicators",
				zap.Stringer("dataset_id", id),
				zap.Int("count", n),
			)
		}
	}

	return s, nil
}

// Store serves dataset configuration from an immutable snapshot that is
// reloaded from disk once it is older than the TTL.
type Store struct {
	dir  string
	ttl  time.Duration
	snap atomic.Pointer[snapshot]

	nowFunc func() time.Time
}

// NewStore creates a store reading *.yml and *.yaml files from dir.
func NewStore(dir string, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{dir: dir, ttl: ttl, nowFunc: time.Now}
}

// Initialize performs the first load. Any failure is fatal to the caller.
func (s *Store) Initialize(ctx context.Context) error {
	if err := s.Reload(ctx); err != nil {
		return err
	}
	snap := s.snap.Load()
	zap.L().Info("dataset: configuration loaded",
		zap.String("dir", s.dir),
		zap.Int("datasets", len(snap.order)),
		zap.Int("skipped", len(snap.issues)),
	)
	return nil
}

// Reload reads the directory and swaps in a new snapshot. On error the
// previous snapshot stays in place.
func (s *Store) Reload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l, err := loadDir(s.dir)
	if err != nil {
		return err
	}
	snap, err := buildSnapshot(l, s.nowFunc())
	if err != nil {
		return eris.Wrapf(err, "dataset: load %s", s.dir)
	}
	s.snap.Store(snap)
	return nil
}

// current returns the snapshot, reloading it first when it has expired.
// Concurrent callers may each reload; the last store wins.
func (s *Store) current() (*snapshot, error) {
	snap := s.snap.Load()
	if snap == nil {
		return nil, ErrNotInitialized
	}
	if s.nowFunc().Sub(snap.loadedAt) < s.ttl {
		return snap, nil
	}

	if err := s.Reload(context.Background()); err != nil {
		zap.L().Error("dataset: reload failed, serving previous configuration", zap.Error(err))
		return snap, nil
	}
	return s.snap.Load(), nil
}

// Datasets returns every dataset configuration in load order.
func (s *Store) Datasets() ([]*model.DatasetConfig, error) {
	snap, err := s.current()
	if err != nil {
		return nil, err
	}
	out := make([]*model.DatasetConfig, 0, len(snap.order))
	for _, id := range snap.order {
		out = append(out, snap.datasets[id])
	}
	return out, nil
}

// Dataset returns the configuration of one dataset.
func (s *Store) Dataset(id uuid.UUID) (*model.DatasetConfig, error) {
	snap, err := s.current()
	if err != nil {
		return nil, err
	}
	cfg, ok := snap.datasets[id]
	if !ok {
		return nil, eris.Wrapf(ErrUnknownDataset, "dataset: %s", id)
	}
	return cfg, nil
}

// QualityIndicators returns the global and dataset-specific indicators that
// apply to a dataset, in file order.
func (s *Store) QualityIndicators(id uuid.UUID) ([]model.QualityIndicator, error) {
	snap, err := s.current()
	if err != nil {
		return nil, err
	}
	return snap.indicators[id], nil
}

// CoverageIndicator returns the dataset's coverage indicator, nil when none is
// configured, or ErrMultipleCoverageIndicators.
func (s *Store) CoverageIndicator(id uuid.UUID) (*model.QualityIndicator, error) {
	snap, err := s.current()
	if err != nil {
		return nil, err
	}
	switch n := snap.coverage[id]; {
	case n == 0:
		return nil, nil
	case n > 1:
		return nil, eris.Wrapf(ErrMultipleCoverageIndicators, "dataset: %s has %d", id, n)
	}
	for _, qi := range snap.indicators[id] {
		if qi.Type == model.IndicatorCoverage {
			qi := qi
			return &qi, nil
		}
	}
	return nil, nil
}

// Issues returns the documents skipped by the last successful load.
func (s *Store) Issues() []Issue {
	snap := s.snap.Load()
	if snap == nil {
		return nil
	}
	return snap.issues
}

// CoverageViolations lists datasets with more than one coverage indicator.
func (s *Store) CoverageViolations() []uuid.UUID {
	snap := s.snap.Load()
	if snap == nil {
		return nil
	}
	var out []uuid.UUID
	for _, id := range snap.order {
		if snap.coverage[id] > 1 {
			out = append(out, id)
		}
	}
	return out
}
