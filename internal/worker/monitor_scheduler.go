package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/civic-kit/grievance-service/internal/service"
)

// CycleRunner runs one monitoring pass.
type CycleRunner interface {
	RunCycle(ctx context.Context) (*service.CycleReport, error)
}

// MonitorScheduler runs monitoring cycles on a cron schedule. A tick that
// arrives while a cycle is still running is skipped.
type MonitorScheduler struct {
	runner  CycleRunner
	cron    *cron.Cron
	timeout time.Duration
	logger  *zap.Logger

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewMonitorScheduler parses schedule (standard five-field cron) and
// registers the cycle. timeout bounds each cycle; zero means no bound.
func NewMonitorScheduler(runner CycleRunner, schedule string, timeout time.Duration, logger *zap.Logger) (*MonitorScheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	ctx, cancel := context.WithCancel(context.Background())
	s := &MonitorScheduler{
		runner:  runner,
		cron:    cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger))),
		timeout: timeout,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
	if _, err := s.cron.AddFunc(schedule, s.tick); err != nil {
		cancel()
		return nil, fmt.Errorf("invalid monitor schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start begins ticking in the background.
func (s *MonitorScheduler) Start() {
	s.cron.Start()
	s.logger.Info("monitor scheduler started", zap.Int("entries", len(s.cron.Entries())))
}

// Stop cancels a running cycle and waits for it to return.
func (s *MonitorScheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("monitor scheduler stopped")
}

// RunNow runs a cycle immediately unless one is already in progress.
func (s *MonitorScheduler) RunNow(ctx context.Context) (*service.CycleReport, bool, error) {
	if !s.acquire() {
		return nil, false, nil
	}
	defer s.release()
	report, err := s.run(ctx)
	return report, true, err
}

func (s *MonitorScheduler) tick() {
	if !s.acquire() {
		s.logger.Warn("previous monitoring cycle still running, tick skipped")
		return
	}
	defer s.release()
	if _, err := s.run(s.ctx); err != nil {
		s.logger.Error("monitoring cycle failed", zap.Error(err))
	}
}

func (s *MonitorScheduler) run(ctx context.Context) (*service.CycleReport, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return s.runner.RunCycle(ctx)
}

func (s *MonitorScheduler) acquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	return true
}

func (s *MonitorScheduler) release() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}
