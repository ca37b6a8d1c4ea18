package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/commercekit/stripe-service/internal/dto"
	"github.com/commercekit/stripe-service/internal/reauthorize"
	"github.com/commercekit/stripe-service/pkg/kafka"
	"github.com/commercekit/stripe-service/pkg/logger"
)

// FanoutConsumer turns renewal init messages into chunk messages. It scans
// the candidate window through the provider and publishes fixed-size chunks
// so the renewal work spreads across every chunk consumer in the group.
type FanoutConsumer struct {
	consumer  *kafka.Consumer
	producer  producer
	provider  reauthorize.Provider
	chunkSize int
	log       *logger.Logger
	stopCh    chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
	running   bool
}

// NewFanoutConsumer creates a fanout consumer
func NewFanoutConsumer(consumer *kafka.Consumer, prod producer, provider reauthorize.Provider, chunkSize int, log *logger.Logger) *FanoutConsumer {
	if chunkSize <= 0 {
		chunkSize = 100
	}
	return &FanoutConsumer{
		consumer:  consumer,
		producer:  prod,
		provider:  provider,
		chunkSize: chunkSize,
		log:       log,
		stopCh:    make(chan struct{}),
	}
}

// Start starts consuming init messages
func (c *FanoutConsumer) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("fanout consumer already running")
	}
	c.running = true
	c.mu.Unlock()

	c.log.Info("Starting renewal fanout consumer")

	c.wg.Add(1)
	go c.consume(ctx)

	return nil
}

// Stop stops the consumer
func (c *FanoutConsumer) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.mu.Unlock()

	close(c.stopCh)
	c.wg.Wait()
	c.log.Info("Renewal fanout consumer stopped")
}

func (c *FanoutConsumer) consume(ctx context.Context) {
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
			c.log.Error(fmt.Sprintf("Failed to poll init messages: %v", err))
			time.Sleep(time.Second)
			continue
		}
		if len(records) == 0 {
			continue
		}

		for _, record := range records {
			if err := c.handleInit(ctx, record.Value); err != nil {
				// the next scheduled run covers whatever this one missed
				c.log.Error(fmt.Sprintf("Failed to fan out renewal run: %v", err))
			}
		}

		if err := c.consumer.CommitRecords(ctx, records); err != nil {
			c.log.Error(fmt.Sprintf("Failed to commit init messages: %v", err))
		}
	}
}

// handleInit scans candidates and publishes them in chunks
func (c *FanoutConsumer) handleInit(ctx context.Context, payload []byte) error {
	var msg dto.ReAuthorizeInitMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("malformed init message: %w", err)
	}

	chunks := 0
	total := 0
	pending := make([]int64, 0, c.chunkSize)

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		chunk := &dto.ReAuthorizeChunkMessage{
			JobID:                 msg.JobID,
			PaymentTransactionIDs: pending,
		}
		if err := c.producer.ProduceJSON(ctx, dto.TopicReAuthorizeChunk, msg.JobID, chunk, nil); err != nil {
			return fmt.Errorf("failed to publish renewal chunk: %w", err)
		}
		chunks++
		total += len(pending)
		pending = make([]int64, 0, c.chunkSize)
		return nil
	}

	err := c.provider.EachBatch(ctx, func(ids []int64) error {
		for _, id := range ids {
			pending = append(pending, id)
			if len(pending) == c.chunkSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := flush(); err != nil {
		return err
	}

	c.log.Info(fmt.Sprintf("Renewal run %s fanned out %d candidates over %d chunks", msg.JobID, total, chunks))
	return nil
}
