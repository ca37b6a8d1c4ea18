package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/commercekit/stripe-service/internal/dto"
	"github.com/commercekit/stripe-service/pkg/kafka"
	"github.com/commercekit/stripe-service/pkg/logger"
)

// producer is the slice of kafka.Producer the workers need
type producer interface {
	ProduceJSON(ctx context.Context, topic, key string, value any, headers map[string]string) error
}

var _ producer = (*kafka.Producer)(nil)

// SchedulerConfig contains configuration for the renewal scheduler
type SchedulerConfig struct {
	// Interval is the time between renewal runs
	Interval time.Duration
}

// DefaultSchedulerConfig returns default configuration
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{Interval: time.Hour}
}

// Scheduler periodically kicks off a renewal run by publishing an init
// message. The heavy lifting happens in the consumers, so several service
// instances can run the scheduler; duplicate runs only cost duplicate scans.
type Scheduler struct {
	producer producer
	config   *SchedulerConfig
	log      *logger.Logger
	stopCh   chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
}

// NewScheduler creates a renewal scheduler
func NewScheduler(prod producer, config *SchedulerConfig, log *logger.Logger) *Scheduler {
	if config == nil {
		config = DefaultSchedulerConfig()
	}
	return &Scheduler{
		producer: prod,
		config:   config,
		log:      log,
		stopCh:   make(chan struct{}),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("renewal scheduler already running")
	}
	s.running = true
	s.mu.Unlock()

	s.log.Info(fmt.Sprintf("Starting renewal scheduler with interval %s", s.config.Interval))

	s.wg.Add(1)
	go s.run(ctx)

	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	s.log.Info("Renewal scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if err := s.Trigger(ctx); err != nil {
				s.log.Error(fmt.Sprintf("Failed to trigger renewal run: %v", err))
			}
		}
	}
}

// Trigger publishes one init message, starting a renewal run immediately
func (s *Scheduler) Trigger(ctx context.Context) error {
	msg := &dto.ReAuthorizeInitMessage{
		JobID:       uuid.New().String(),
		ScheduledAt: time.Now().UTC().Format(time.RFC3339),
	}

	if err := s.producer.ProduceJSON(ctx, dto.TopicReAuthorizeInit, msg.JobID, msg, nil); err != nil {
		return fmt.Errorf("failed to publish renewal init: %w", err)
	}

	s.log.Info(fmt.Sprintf("Scheduled renewal run %s", msg.JobID))
	return nil
}
