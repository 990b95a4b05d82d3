package kafka

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/XIAA25/queueing-system-home-arcade/internal/config"
	"github.com/XIAA25/queueing-system-home-arcade/internal/domain"
)

// SessionPublisher emits completed-turn events to the session topic for the
// downstream reward consumer. Publishing is fire-and-forget: a broker outage
// costs events, never queue state.
type SessionPublisher struct {
	producer sarama.AsyncProducer
	topic    string
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// NewSessionPublisher creates a Kafka session publisher.
func NewSessionPublisher(cfg *config.KafkaConfig, logger *slog.Logger) (*SessionPublisher, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Flush.Frequency = 100 * time.Millisecond
	saramaConfig.Producer.Return.Successes = false
	saramaConfig.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, err
	}

	p := &SessionPublisher{
		producer: producer,
		topic:    cfg.Topic,
		logger:   logger,
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for err := range producer.Errors() {
			p.logger.Error("session event delivery failed", "error", err)
		}
	}()

	return p, nil
}

// PublishSession sends one completed-turn event, keyed by participant so a
// player's sessions stay ordered per partition.
func (p *SessionPublisher) PublishSession(ev domain.SessionEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("failed to marshal session event", "error", err)
		return
	}
	p.producer.Input() <- &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(ev.Participant),
		Value: sarama.ByteEncoder(data),
	}
}

// Close flushes pending events and shuts the producer down.
func (p *SessionPublisher) Close() error {
	err := p.producer.Close()
	p.wg.Wait()
	return err
}
