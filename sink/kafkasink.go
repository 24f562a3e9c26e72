package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/Abhaythakor/fingerprintweb/config"
	"github.com/Abhaythakor/fingerprintweb/model"
	"github.com/Abhaythakor/fingerprintweb/util"
)

// KafkaConfig holds configuration for the Kafka producer.
type KafkaConfig struct {
	Brokers     []string
	Topic       string
	Acks        string
	Compression string

	SASLMechanism string
	SASLUser      string
	SASLPassword  string

	TLSCAPath     string
	TLSSkipVerify bool
}

// KafkaSink produces one message per result, keyed by URL so rescans of a page land on
// the same partition.
type KafkaSink struct {
	config   KafkaConfig
	scanID   string
	producer *kafka.Producer
	done     chan struct{}
}

var errProducerNotStarted = errors.New("kafka producer not initialized")

// NewKafkaSinkFromEnv reads KAFKA_* variables.
func NewKafkaSinkFromEnv(scanID string) *KafkaSink {
	brokers := config.GetList("KAFKA_BROKERS")
	if len(brokers) == 0 {
		brokers = []string{"localhost:9092"}
	}
	return &KafkaSink{
		scanID: scanID,
		config: KafkaConfig{
			Brokers:       brokers,
			Topic:         config.GetOr("KAFKA_TOPIC", "fingerprintweb.results"),
			Acks:          config.GetOr("KAFKA_ACKS", "all"),
			Compression:   config.GetOr("KAFKA_COMPRESSION", ""),
			SASLMechanism: config.GetOr("KAFKA_SASL_MECHANISM", ""),
			SASLUser:      config.GetOr("KAFKA_SASL_USER", ""),
			SASLPassword:  config.GetOr("KAFKA_SASL_PASSWORD", ""),
			TLSCAPath:     config.GetOr("KAFKA_TLS_CA", ""),
			TLSSkipVerify: config.GetBool("KAFKA_TLS_SKIP_VERIFY", false),
		},
	}
}

// NewKafkaSink creates a KafkaSink with explicit brokers and topic.
func NewKafkaSink(brokers []string, topic, scanID string) *KafkaSink {
	return &KafkaSink{
		scanID: scanID,
		config: KafkaConfig{Brokers: brokers, Topic: topic, Acks: "all"},
	}
}

func (s *KafkaSink) Name() string { return "kafka" }

// configMap translates the config into librdkafka properties.
func (s *KafkaSink) configMap() kafka.ConfigMap {
	cm := kafka.ConfigMap{
		"bootstrap.servers": strings.Join(s.config.Brokers, ","),
		"acks":              s.config.Acks,
		"retries":           10,
		"retry.backoff.ms":  100,
		"linger.ms":         10,
	}
	if s.config.Compression != "" {
		cm["compression.type"] = s.config.Compression
	}
	if s.config.SASLMechanism != "" {
		cm["security.protocol"] = "SASL_SSL"
		cm["sasl.mechanism"] = s.config.SASLMechanism
		if s.config.SASLUser != "" {
			cm["sasl.username"] = s.config.SASLUser
		}
		if s.config.SASLPassword != "" {
			cm["sasl.password"] = s.config.SASLPassword
		}
	}
	if s.config.TLSCAPath != "" {
		if s.config.SASLMechanism == "" {
			cm["security.protocol"] = "SSL"
		}
		cm["ssl.ca.location"] = s.config.TLSCAPath
	}
	if s.config.TLSSkipVerify {
		cm["ssl.endpoint.identification.algorithm"] = "none"
	}
	return cm
}

func (s *KafkaSink) Start(ctx context.Context) error {
	cm := s.configMap()
	producer, err := kafka.NewProducer(&cm)
	if err != nil {
		return fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	s.producer = producer
	s.done = make(chan struct{})
	go s.handleDeliveryReports(ctx)
	return nil
}

// message builds the record for r.
func (s *KafkaSink) message(r model.Result) (*kafka.Message, error) {
	value, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize result: %w", err)
	}
	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &s.config.Topic, Partition: kafka.PartitionAny},
		Key:            []byte(r.URL),
		Value:          value,
		Headers: []kafka.Header{
			{Key: "scan_id", Value: []byte(s.scanID)},
			{Key: "schema", Value: []byte(Schema)},
		},
	}, nil
}

func (s *KafkaSink) Publish(ctx context.Context, r model.Result) error {
	if s.producer == nil {
		return errProducerNotStarted
	}
	msg, err := s.message(r)
	if err != nil {
		return err
	}
	if err := s.producer.Produce(msg, nil); err != nil {
		return fmt.Errorf("failed to produce message: %w", err)
	}
	return nil
}

// Close flushes outstanding messages, waiting up to 10 seconds.
func (s *KafkaSink) Close() error {
	if s.producer == nil {
		return nil
	}
	remaining := s.producer.Flush(10 * 1000)
	close(s.done)
	s.producer.Close()
	s.producer = nil
	if remaining > 0 {
		return fmt.Errorf("failed to flush %d remaining messages", remaining)
	}
	return nil
}

func (s *KafkaSink) handleDeliveryReports(ctx context.Context) {
	events := s.producer.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch e := ev.(type) {
			case *kafka.Message:
				if e.TopicPartition.Error != nil {
					util.Warn("Kafka delivery failed for %s: %v", e.Key, e.TopicPartition.Error)
				}
			case kafka.Error:
				util.Warn("Kafka error: %v", e)
			}
		}
	}
}
