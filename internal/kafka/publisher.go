package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/chess-tournaments/internal/config"
	"github.com/chess-tournaments/internal/domain"
)

// Publisher writes tournament events to Kafka for downstream consumers
type Publisher struct {
	producer sarama.AsyncProducer
	topic    string
	timeout  time.Duration
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// NewPublisher creates an async producer for the events topic
func NewPublisher(cfg *config.KafkaConfig, logger *slog.Logger) (*Publisher, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Flush.Frequency = 100 * time.Millisecond
	saramaConfig.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("creating producer: %w", err)
	}
	return newPublisher(producer, cfg, logger), nil
}

const defaultInputTimeout = 5 * time.Second

func newPublisher(producer sarama.AsyncProducer, cfg *config.KafkaConfig, logger *slog.Logger) *Publisher {
	p := &Publisher{
		producer: producer,
		topic:    cfg.EventsTopic,
		timeout:  cfg.FlushTimeout,
		logger:   logger,
	}
	if p.timeout <= 0 {
		p.timeout = defaultInputTimeout
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for err := range producer.Errors() {
			p.logger.Error("failed to publish event", "topic", p.topic, "error", err.Err)
		}
	}()
	return p
}

// Name implements events.Sink
func (p *Publisher) Name() string {
	return "kafka"
}

// Handle implements events.Sink. Events are keyed by tournament so one
// tournament's events stay ordered within a partition.
func (p *Publisher) Handle(ctx context.Context, event domain.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	key := event.TournamentID
	if update, ok := event.Data.(domain.RatingsUpdated); ok && key == "" {
		key = update.PlayerID
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(event.Type)},
		},
	}

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case p.producer.Input() <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("producer input full after %s", p.timeout)
	}
}

// Close flushes pending messages and closes the producer
func (p *Publisher) Close() error {
	err := p.producer.Close()
	p.wg.Wait()
	return err
}
