package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/chess-tournaments/internal/config"
	"github.com/chess-tournaments/internal/domain"
	"github.com/chess-tournaments/internal/validation"
)

// ResultReporter records finished games
type ResultReporter interface {
	ReportResult(ctx context.Context, outcome domain.GameOutcome) (*domain.ReportOutcome, error)
}

// Consumer consumes game results from Kafka
type Consumer struct {
	config        *config.KafkaConfig
	reporter      ResultReporter
	logger        *slog.Logger
	consumerGroup sarama.ConsumerGroup
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	ready         chan bool
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(cfg *config.KafkaConfig, reporter ResultReporter, logger *slog.Logger) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	saramaConfig.Consumer.Return.Errors = true

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, err
	}

	return newConsumer(cfg, reporter, logger, consumerGroup), nil
}

func newConsumer(cfg *config.KafkaConfig, reporter ResultReporter, logger *slog.Logger, group sarama.ConsumerGroup) *Consumer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		config:        cfg,
		reporter:      reporter,
		logger:        logger,
		consumerGroup: group,
		ctx:           ctx,
		cancel:        cancel,
		ready:         make(chan bool),
	}
}

// Start begins consuming messages from Kafka
func (c *Consumer) Start() error {
	c.logger.Info("starting Kafka consumer",
		"brokers", c.config.Brokers,
		"topic", c.config.ResultsTopic,
		"group_id", c.config.GroupID,
	)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			handler := &consumerGroupHandler{
				consumer: c,
				ready:    c.ready,
			}

			if err := c.consumerGroup.Consume(c.ctx, []string{c.config.ResultsTopic}, handler); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				c.logger.Error("error from consumer", "error", err)
			}

			if c.ctx.Err() != nil {
				return
			}

			c.ready = make(chan bool)
		}
	}()

	// Wait until consumer is ready
	select {
	case <-c.ready:
		c.logger.Info("Kafka consumer ready")
	case <-c.ctx.Done():
		return c.ctx.Err()
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-c.ctx.Done():
				return
			case err, ok := <-c.consumerGroup.Errors():
				if !ok {
					return
				}
				c.logger.Error("consumer group error", "error", err)
			}
		}
	}()

	return nil
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() error {
	c.logger.Info("stopping Kafka consumer")
	c.cancel()
	c.wg.Wait()
	return c.consumerGroup.Close()
}

// process decodes one result message and reports it. Malformed or rejected
// results are logged and dropped; only transient failures are retried.
func (c *Consumer) process(ctx context.Context, value []byte) {
	var outcome domain.GameOutcome
	if err := json.Unmarshal(value, &outcome); err != nil {
		c.logger.Warn("failed to unmarshal result", "error", err)
		return
	}
	if err := validation.Struct(&outcome); err != nil {
		c.logger.Warn("invalid game result", "match_id", outcome.MatchID, "error", err)
		return
	}

	attempts := c.config.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		reportCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		report, err := c.reporter.ReportResult(reportCtx, outcome)
		cancel()
		if err == nil {
			c.logger.Debug("result consumed",
				"match_id", outcome.MatchID,
				"already_final", report.AlreadyFinal,
				"replay_required", report.ReplayRequired,
			)
			return
		}
		if permanent(err) {
			c.logger.Warn("result rejected", "match_id", outcome.MatchID, "error", err)
			return
		}
		c.logger.Error("failed to report result",
			"match_id", outcome.MatchID,
			"attempt", attempt,
			"error", err,
		)
		if attempt < attempts {
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.config.RetryDelay):
			}
		}
	}
}

// permanent reports whether retrying the same result can never succeed
func permanent(err error) bool {
	return domain.IsNotFoundError(err) || domain.IsInvalidInputError(err) || domain.IsConflictError(err)
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler
type consumerGroupHandler struct {
	consumer *Consumer
	ready    chan bool
}

// Setup is called at the beginning of a new session
func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	close(h.ready)
	return nil
}

// Cleanup is called at the end of a session
func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim reports results one at a time; the offset is marked once the result has been handled
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-session.Context().Done():
			return nil

		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			h.consumer.process(session.Context(), message.Value)
			session.MarkMessage(message, "")
		}
	}
}
