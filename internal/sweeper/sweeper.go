// Package sweeper implements the Expiry sweeper (X): a periodic background
// task that expires stale reservations, grounded on the reference expiry
// worker's ticker/scan/process shape.
package sweeper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/transitline/ticketing-core/internal/domain"
	"github.com/transitline/ticketing-core/internal/obsv"
	"github.com/transitline/ticketing-core/internal/store"
	"github.com/transitline/ticketing-core/pkg/logger"
	"github.com/transitline/ticketing-core/pkg/redis"
)

const (
	defaultScanInterval = 30 * time.Second
	defaultBatchSize    = 100
)

// Config configures a Sweeper.
type Config struct {
	Write        store.WriteRepository
	ScanInterval time.Duration
	BatchSize    int

	// Lock is an optional Redis client used as a leader-election hint
	// across sweeper replicas; nil means every replica scans every tick
	// (still safe, just redundant — row locks in the write store are the
	// real correctness guard).
	Lock *redis.Client
}

// Sweeper periodically expires RESERVED bookings past their expiresAt
// (§4.5). Designed to run as a single logical worker per deployment; extra
// replicas waste work but row locks keep double-expiry impossible.
type Sweeper struct {
	write        store.WriteRepository
	scanInterval time.Duration
	batchSize    int
	lock         *leaderLock

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New builds a Sweeper from cfg, applying defaults for zero-valued fields.
func New(cfg Config) *Sweeper {
	interval := cfg.ScanInterval
	if interval <= 0 {
		interval = defaultScanInterval
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &Sweeper{
		write:        cfg.Write,
		scanInterval: interval,
		batchSize:    batch,
		lock:         newLeaderLock(cfg.Lock, interval*2),
	}
}

// Start launches the background scan loop. Safe to call once; a second call
// before Stop returns an error.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("sweeper: already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	logger.Info("sweeper: starting")
	s.wg.Add(1)
	go s.loop(ctx)
	return nil
}

// Stop signals the loop to exit and waits for it to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	logger.Info("sweeper: stopping")
	s.wg.Wait()
	logger.Info("sweeper: stopped")
}

func (s *Sweeper) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.scanInterval)
	defer ticker.Stop()

	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick implements one scan-and-expire pass (§4.5). Per-booking failures are
// logged and do not abort the batch.
func (s *Sweeper) tick(ctx context.Context) {
	if !s.lock.acquire(ctx) {
		logger.Debug("sweeper: another replica holds the lock, skipping tick")
		return
	}
	defer s.lock.release(ctx)

	expired, err := s.write.GetExpiredReservations(ctx, s.batchSize)
	if err != nil {
		logger.Error("sweeper: failed to list expired reservations", "err", err)
		return
	}
	if len(expired) == 0 {
		return
	}

	logger.Info("sweeper: expiring reservations", "count", len(expired))
	var n int64
	for _, b := range expired {
		if err := s.expireOne(ctx, b); err != nil {
			logger.Error("sweeper: failed to expire booking", "bookingId", b.ID, "err", err)
			continue
		}
		n++
	}
	obsv.RecordSweeperExpired(ctx, n)
}

func (s *Sweeper) expireOne(ctx context.Context, b *domain.Booking) error {
	_, err := s.write.ExpireReservation(ctx, b.ID, "", uuid.New().String())
	if err != nil {
		if domain.IsInvalidState(err) {
			// Lost the race to a concurrent Confirm/Cancel; nothing to do.
			return nil
		}
		return err
	}
	return nil
}
