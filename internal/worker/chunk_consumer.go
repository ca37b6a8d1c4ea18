package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/commercekit/stripe-service/internal/dto"
	"github.com/commercekit/stripe-service/internal/metrics"
	"github.com/commercekit/stripe-service/internal/reauthorize"
	"github.com/commercekit/stripe-service/internal/repository"
	"github.com/commercekit/stripe-service/pkg/kafka"
	"github.com/commercekit/stripe-service/pkg/logger"
	"github.com/commercekit/stripe-service/pkg/retry"
)

// ChunkConsumer executes the renewals in chunk messages. Each transaction is
// isolated: one declined or failing renewal never blocks the rest of the
// chunk. The executor re-checks applicability against live state, so chunks
// queued before a capture or cancellation simply skip those transactions.
type ChunkConsumer struct {
	consumer *kafka.Consumer
	repo     repository.TransactionRepository
	executor *reauthorize.Executor
	retrier  *retry.Retrier
	metrics  *metrics.Metrics
	log      *logger.Logger
	stopCh   chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
}

// NewChunkConsumer creates a chunk consumer
func NewChunkConsumer(consumer *kafka.Consumer, repo repository.TransactionRepository, executor *reauthorize.Executor, m *metrics.Metrics, log *logger.Logger) *ChunkConsumer {
	return &ChunkConsumer{
		consumer: consumer,
		repo:     repo,
		executor: executor,
		metrics:  m,
		retrier: retry.New(&retry.Config{
			MaxRetries:      2,
			InitialInterval: time.Second,
			MaxInterval:     5 * time.Second,
			Multiplier:      2.0,
			JitterFactor:    0.1,
		}),
		log:    log,
		stopCh: make(chan struct{}),
	}
}

// Start starts consuming chunk messages
func (c *ChunkConsumer) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("chunk consumer already running")
	}
	c.running = true
	c.mu.Unlock()

	c.log.Info("Starting renewal chunk consumer")

	c.wg.Add(1)
	go c.consume(ctx)

	return nil
}

// Stop stops the consumer
func (c *ChunkConsumer) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.mu.Unlock()

	close(c.stopCh)
	c.wg.Wait()
	c.log.Info("Renewal chunk consumer stopped")
}

func (c *ChunkConsumer) consume(ctx context.Context) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		default:
		}

		records, err := c.consumer.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Error(fmt.Sprintf("Failed to poll chunk messages: %v", err))
			time.Sleep(time.Second)
			continue
		}
		if len(records) == 0 {
			continue
		}

		for _, record := range records {
			if err := c.handleChunk(ctx, record.Value); err != nil {
				c.log.Error(fmt.Sprintf("Failed to process renewal chunk: %v", err))
			}
		}

		if err := c.consumer.CommitRecords(ctx, records); err != nil {
			c.log.Error(fmt.Sprintf("Failed to commit chunk messages: %v", err))
		}
	}
}

// handleChunk renews every still-applicable transaction in the chunk
func (c *ChunkConsumer) handleChunk(ctx context.Context, payload []byte) error {
	var msg dto.ReAuthorizeChunkMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("malformed chunk message: %w", err)
	}

	transactions, err := c.repo.GetByIDs(ctx, msg.PaymentTransactionIDs)
	if err != nil {
		return fmt.Errorf("failed to load chunk transactions: %w", err)
	}

	if c.metrics != nil {
		c.metrics.RenewalChunkSize.Record(ctx, float64(len(transactions)))
	}

	failed := 0
	for _, tx := range transactions {
		// Transient failures get a couple of retries; the executor re-checks
		// applicability on each attempt so retrying after a conflict is safe.
		tx := tx
		err := c.retrier.Do(ctx, func(ctx context.Context) error {
			return c.executor.ReAuthorize(ctx, tx)
		})
		if err != nil {
			failed++
			c.log.Error(fmt.Sprintf("Renewal of transaction %d in run %s failed: %v", tx.ID, msg.JobID, err))
		}
		if c.metrics != nil {
			outcome := "processed"
			if err != nil {
				outcome = "failed"
			}
			c.metrics.RecordRenewal(ctx, outcome)
		}
	}

	c.log.Info(fmt.Sprintf("Processed renewal chunk for run %s: %d transactions, %d errors", msg.JobID, len(transactions), failed))
	return nil
}
