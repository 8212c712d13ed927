// Package scheduler runs recurring market scans on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/krx-quant/internal/scanner"
	"github.com/yourusername/krx-quant/internal/strategy"
)

// MarketScanner is the scan operation a job invokes
type MarketScanner interface {
	ScanMarket(ctx context.Context, scanType strategy.SignalType, minConfidence float64, limit int) ([]scanner.ScanResult, error)
}

// ScanJob describes one scheduled scan
type ScanJob struct {
	Cron          string
	ScanType      strategy.SignalType
	MinConfidence float64
	Limit         int
	Timeout       time.Duration
}

// Scheduler manages scheduled market scans
type Scheduler struct {
	cron            *cron.Cron
	scanner         MarketScanner
	logger          *logrus.Entry
	mu              sync.RWMutex
	isRunning       bool
	jobIDs          []cron.EntryID
	lastResults     []scanner.ScanResult
	lastRun         time.Time
	lastErr         error
	gracefulTimeout time.Duration
	now             func() time.Time
}

// NewScheduler creates a scheduler whose cron expressions are evaluated in loc
func NewScheduler(scan MarketScanner, loc *time.Location, logger *logrus.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		cron:            cron.New(cron.WithLocation(loc)),
		scanner:         scan,
		logger:          logger.WithField("component", "scheduler"),
		jobIDs:          make([]cron.EntryID, 0),
		gracefulTimeout: 30 * time.Second,
		now:             time.Now,
	}
}

// ScheduleMarketScan adds a recurring scan
func (s *Scheduler) ScheduleMarketScan(job ScanJob) (cron.EntryID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return 0, fmt.Errorf("cannot schedule job while scheduler is running")
	}
	if job.ScanType != strategy.SignalBuy && job.ScanType != strategy.SignalSell {
		return 0, fmt.Errorf("scan type must be BUY or SELL, got %q", job.ScanType)
	}
	if job.Limit <= 0 {
		job.Limit = 20
	}
	if job.Timeout <= 0 {
		job.Timeout = 10 * time.Minute
	}

	entryID, err := s.cron.AddFunc(job.Cron, func() {
		ctx, cancel := context.WithTimeout(context.Background(), job.Timeout)
		defer cancel()
		if _, err := s.RunScan(ctx, job); err != nil {
			s.logger.WithError(err).Error("Scheduled market scan failed")
		}
	})
	if err != nil {
		return 0, fmt.Errorf("failed to add job: %w", err)
	}

	s.jobIDs = append(s.jobIDs, entryID)
	s.logger.WithFields(logrus.Fields{
		"cron":      job.Cron,
		"scan_type": job.ScanType,
	}).Info("Scheduled market scan")

	return entryID, nil
}

// RunScan executes job immediately and records the ranked results
func (s *Scheduler) RunScan(ctx context.Context, job ScanJob) ([]scanner.ScanResult, error) {
	results, err := s.scanner.ScanMarket(ctx, job.ScanType, job.MinConfidence, job.Limit)
	s.mu.Lock()
	s.lastErr = err
	if err == nil {
		s.lastResults = results
		s.lastRun = s.now()
	}
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	for rank, r := range results {
		s.logger.WithFields(logrus.Fields{
			"rank":       rank + 1,
			"stock_code": r.StockCode,
			"stock_name": r.StockName,
			"signal":     r.Signal,
			"confidence": r.Confidence,
			"price":      r.CurrentPrice,
		}).Info("Scan opportunity")
	}
	return results, nil
}

// LastResults returns the most recent scan results and when they were produced
func (s *Scheduler) LastResults() ([]scanner.ScanResult, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]scanner.ScanResult(nil), s.lastResults...), s.lastRun
}

// LastScan reports when the last successful scan ran, how many results it kept, and
// the error of the most recent attempt if it failed
func (s *Scheduler) LastScan() (time.Time, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRun, len(s.lastResults), s.lastErr
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}

	if len(s.jobIDs) == 0 {
		return fmt.Errorf("no jobs scheduled")
	}

	s.cron.Start()
	s.isRunning = true
	s.logger.WithField("jobs", len(s.jobIDs)).Info("Scheduler started")

	return nil
}

// Stop waits for running jobs up to the graceful timeout and stops the scheduler
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	// in-flight jobs take the lock to store their results
	select {
	case <-s.cron.Stop().Done():
		s.logger.Info("Scheduler stopped")
		return nil
	case <-time.After(s.gracefulTimeout):
		return fmt.Errorf("scheduler stop timed out after %s", s.gracefulTimeout)
	}
}

// IsRunning returns whether the scheduler is currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetNextRun returns the time of the next scheduled job run
func (s *Scheduler) GetNextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning || len(s.jobIDs) == 0 {
		return time.Time{}
	}

	nextRun := time.Time{}
	for _, jobID := range s.jobIDs {
		entry := s.cron.Entry(jobID)
		if entry.Valid() {
			nextTime := entry.Next
			if nextRun.IsZero() || nextTime.Before(nextRun) {
				nextRun = nextTime
			}
		}
	}

	return nextRun
}

// Entries returns information about scheduled entries
func (s *Scheduler) Entries() []cron.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]cron.Entry, 0, len(s.jobIDs))
	for _, jobID := range s.jobIDs {
		entry := s.cron.Entry(jobID)
		if entry.Valid() {
			entries = append(entries, entry)
		}
	}

	return entries
}

// RemoveJob removes a scheduled job
func (s *Scheduler) RemoveJob(jobID cron.EntryID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("cannot remove job while scheduler is running")
	}

	s.cron.Remove(jobID)
	for i, id := range s.jobIDs {
		if id == jobID {
			s.jobIDs = append(s.jobIDs[:i], s.jobIDs[i+1:]...)
			break
		}
	}
	s.logger.WithField("job_id", jobID).Info("Removed job")

	return nil
}
