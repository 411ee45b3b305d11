// Package events publishes recorded predictions to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"

	"firequest/pipeline"
)

// KafkaConfig holds the producer settings. Publishing is disabled when
// BootstrapServers is empty.
type KafkaConfig struct {
	BootstrapServers string `yaml:"bootstrap_servers" split_words:"true"`
	SecurityProtocol string `yaml:"security_protocol" split_words:"true"`
	SASLMechanism    string `yaml:"sasl_mechanism" split_words:"true"`
	SASLUsername     string `yaml:"sasl_username" split_words:"true"`
	SASLPassword     string `yaml:"sasl_password" split_words:"true"`
	Topic            string `yaml:"topic" split_words:"true"`
	Acks             string `yaml:"acks" split_words:"true"`
	LingerMS         int    `yaml:"linger_ms" split_words:"true"`
}

// Enabled reports whether bootstrap servers are configured.
func (c KafkaConfig) Enabled() bool {
	return c.BootstrapServers != ""
}

func (c KafkaConfig) configMap() *kafka.ConfigMap {
	cm := &kafka.ConfigMap{
		"bootstrap.servers":  c.BootstrapServers,
		"acks":               orDefault(c.Acks, "all"),
		"linger.ms":          c.LingerMS,
		"enable.idempotence": true,
		"request.timeout.ms": 30000,
	}
	if c.SecurityProtocol != "" {
		_ = cm.SetKey("security.protocol", c.SecurityProtocol)
	}
	if c.SASLMechanism != "" {
		_ = cm.SetKey("sasl.mechanism", c.SASLMechanism)
		_ = cm.SetKey("sasl.username", c.SASLUsername)
		_ = cm.SetKey("sasl.password", c.SASLPassword)
	}
	return cm
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// PredictionEvent is the message value written for each prediction.
type PredictionEvent struct {
	SessionID  string           `json:"session_id"`
	Code       int              `json:"code"`
	Label      string           `json:"label"`
	Confidence *float64         `json:"confidence,omitempty"`
	Reading    pipeline.Reading `json:"reading"`
	Warnings   []string         `json:"warnings,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
}

// NewPredictionEvent builds the message value for rec.
func NewPredictionEvent(rec pipeline.Record) PredictionEvent {
	return PredictionEvent{
		SessionID:  rec.SessionID,
		Code:       rec.Result.Code,
		Label:      rec.Result.Label,
		Confidence: rec.Result.Confidence,
		Reading:    rec.Reading,
		Warnings:   rec.Warnings,
		Timestamp:  rec.At,
	}
}

// producer is the subset of *kafka.Producer the publisher uses.
type producer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	Flush(timeoutMs int) int
	Close()
}

// Publisher sends one message per prediction, keyed by session id.
type Publisher struct {
	producer     producer
	topic        string
	deliveryChan chan kafka.Event
	logger       *zap.Logger

	sent   atomic.Int64
	acked  atomic.Int64
	failed atomic.Int64

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewPublisher connects a producer. The topic defaults to
// "fire-predictions".
func NewPublisher(cfg KafkaConfig, logger *zap.Logger) (*Publisher, error) {
	p, err := kafka.NewProducer(cfg.configMap())
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}
	return newPublisher(p, orDefault(cfg.Topic, "fire-predictions"), logger), nil
}

func newPublisher(p producer, topic string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	pub := &Publisher{
		producer:     p,
		topic:        topic,
		deliveryChan: make(chan kafka.Event, 1000),
		logger:       logger,
	}
	pub.wg.Add(1)
	go pub.handleDeliveryReports()
	logger.Info("kafka publisher initialized", zap.String("topic", topic))
	return pub
}

func (p *Publisher) handleDeliveryReports() {
	defer p.wg.Done()
	for e := range p.deliveryChan {
		m, ok := e.(*kafka.Message)
		if !ok {
			continue
		}
		if m.TopicPartition.Error != nil {
			p.failed.Add(1)
			p.logger.Warn("prediction event delivery failed", zap.Error(m.TopicPartition.Error))
			continue
		}
		p.acked.Add(1)
	}
}

// RecordPrediction implements pipeline.Recorder. It does not wait for the
// broker to acknowledge the message.
func (p *Publisher) RecordPrediction(ctx context.Context, rec pipeline.Record) error {
	payload, err := json.Marshal(NewPredictionEvent(rec))
	if err != nil {
		return fmt.Errorf("failed to serialize prediction event: %w", err)
	}
	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &p.topic, Partition: kafka.PartitionAny},
		Key:            []byte(rec.SessionID),
		Value:          payload,
		Headers: []kafka.Header{
			{Key: "label", Value: []byte(rec.Result.Label)},
		},
	}
	if err := p.producer.Produce(msg, p.deliveryChan); err != nil {
		p.failed.Add(1)
		return fmt.Errorf("produce prediction event: %w", err)
	}
	p.sent.Add(1)
	return nil
}

// Stats returns sent, acknowledged and failed message counts.
func (p *Publisher) Stats() (sent, acked, failed int64) {
	return p.sent.Load(), p.acked.Load(), p.failed.Load()
}

// Close flushes outstanding messages and stops the delivery handler.
func (p *Publisher) Close() {
	p.closeOnce.Do(func() {
		if remaining := p.producer.Flush(5000); remaining > 0 {
			p.logger.Warn("unflushed prediction events", zap.Int("remaining", remaining))
		}
		p.producer.Close()
		close(p.deliveryChan)
		p.wg.Wait()
	})
}
