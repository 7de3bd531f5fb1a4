// internal/historian/historian.go

// Package historian drains the room activity queue into Postgres in batches and
// marks rooms abandoned once they go quiet.
package historian

import (
	"context"
	"sync"
	"time"

	"github.com/jason-s-yu/realms/internal/config"
	"github.com/jason-s-yu/realms/internal/models"
	"github.com/sirupsen/logrus"
)

// Source yields queued activity records. Pop returns nil, nil when nothing arrived in time.
type Source interface {
	Pop(ctx context.Context, timeout time.Duration) (*models.ActivityRecord, error)
}

// ActivityWriter persists batches and applies the inactivity rule.
type ActivityWriter interface {
	InsertActivityBatch(ctx context.Context, records []models.ActivityRecord) error
	MarkRoomsAbandoned(ctx context.Context, cutoff time.Time) ([]string, error)
}

type Service struct {
	source Source
	writer ActivityWriter
	log    *logrus.Logger

	batchSize  int
	flushDelay time.Duration
	inactivity time.Duration
	sweepEvery time.Duration
	popTimeout time.Duration

	batchMu sync.Mutex
	batch   []models.ActivityRecord

	now func() time.Time
}

func New(source Source, writer ActivityWriter, cfg config.HistorianConfig, logger *logrus.Logger) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.FlushDelay <= 0 {
		cfg.FlushDelay = 500 * time.Millisecond
	}
	if cfg.Inactivity <= 0 {
		cfg.Inactivity = 2 * time.Hour
	}
	sweep := cfg.Inactivity / 4
	if sweep > time.Minute {
		sweep = time.Minute
	}
	return &Service{
		source:     source,
		writer:     writer,
		log:        logger,
		batchSize:  cfg.BatchSize,
		flushDelay: cfg.FlushDelay,
		inactivity: cfg.Inactivity,
		sweepEvery: sweep,
		popTimeout: 3 * time.Second,
		batch:      make([]models.ActivityRecord, 0, cfg.BatchSize),
		now:        time.Now,
	}
}

// Run consumes the queue until ctx is cancelled, then flushes what is left.
func (s *Service) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); s.readLoop(ctx) }()
	go func() { defer wg.Done(); s.flushLoop(ctx) }()
	go func() { defer wg.Done(); s.inactivityLoop(ctx) }()

	s.log.Info("realms historian started")
	<-ctx.Done()
	wg.Wait()

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Flush(flushCtx)
	s.log.Info("realms historian stopped")
}

func (s *Service) readLoop(ctx context.Context) {
	for ctx.Err() == nil {
		rec, err := s.source.Pop(ctx, s.popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.WithError(err).Error("failed to pop activity record")
			continue
		}
		if rec == nil {
			continue
		}
		s.Add(ctx, *rec)
	}
}

func (s *Service) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(s.flushDelay)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Flush(ctx)
		}
	}
}

func (s *Service) inactivityLoop(ctx context.Context) {
	ticker := time.NewTicker(s.sweepEvery)
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

// Add batches the record, flushing when the batch is full. Records without a
// timestamp are stamped with the current time.
func (s *Service) Add(ctx context.Context, rec models.ActivityRecord) {
	if rec.Timestamp == 0 {
		rec.Timestamp = s.now().UnixMilli()
	}

	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	s.batch = append(s.batch, rec)
	if len(s.batch) >= s.batchSize {
		s.flushLocked(ctx)
	}
}

// Flush writes any pending records.
func (s *Service) Flush(ctx context.Context) {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	s.flushLocked(ctx)
}

// flushLocked assumes batchMu is held.
func (s *Service) flushLocked(ctx context.Context) {
	if len(s.batch) == 0 {
		return
	}
	batchCopy := make([]models.ActivityRecord, len(s.batch))
	copy(batchCopy, s.batch)
	s.batch = s.batch[:0]

	if err := s.writer.InsertActivityBatch(ctx, batchCopy); err != nil {
		s.log.WithError(err).WithField("records", len(batchCopy)).Error("failed to flush activity batch")
		return
	}
	s.log.WithField("records", len(batchCopy)).Debug("flushed activity batch")
}

// Sweep marks rooms idle for longer than the inactivity window as abandoned.
// Pending records are flushed first so their rooms' activity clocks are current.
func (s *Service) Sweep(ctx context.Context) {
	s.Flush(ctx)

	cutoff := s.now().Add(-s.inactivity)
	codes, err := s.writer.MarkRoomsAbandoned(ctx, cutoff)
	if err != nil {
		s.log.WithError(err).Error("failed to mark idle rooms abandoned")
		return
	}
	for _, code := range codes {
		s.log.WithField("room", code).Info("marked room abandoned due to inactivity")
	}
}
