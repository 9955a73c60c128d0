package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/shortontech/goprint/internal/event"
)

const schemaVersion = "goprint.v1"

// KafkaConfig holds configuration for Kafka producer
type KafkaConfig struct {
	Brokers     []string
	Topic       string
	Acks        string
	Compression string

	// SASL config
	SASLMechanism string
	SASLUser      string
	SASLPassword  string

	// TLS config
	TLSCAPath     string
	TLSSkipVerify bool
}

// KafkaSink produces fingerprint events keyed by fingerprint, so every
// sighting of one visitor lands on the same partition in order.
type KafkaSink struct {
	config   KafkaConfig
	producer *kafka.Producer
}

// NewKafkaSinkFromEnv creates a KafkaSink from environment variables
func NewKafkaSinkFromEnv() *KafkaSink {
	brokers := strings.Split(getEnvOr("KAFKA_BROKERS", "localhost:9092"), ",")
	for i, broker := range brokers {
		brokers[i] = strings.TrimSpace(broker)
	}

	return &KafkaSink{config: KafkaConfig{
		Brokers:       brokers,
		Topic:         getEnvOr("KAFKA_TOPIC", "goprint.fingerprints"),
		Acks:          getEnvOr("KAFKA_ACKS", "all"),
		Compression:   getEnvOr("KAFKA_COMPRESSION", ""),
		SASLMechanism: os.Getenv("KAFKA_SASL_MECHANISM"),
		SASLUser:      os.Getenv("KAFKA_SASL_USER"),
		SASLPassword:  os.Getenv("KAFKA_SASL_PASSWORD"),
		TLSCAPath:     os.Getenv("KAFKA_TLS_CA"),
		TLSSkipVerify: getBoolEnv("KAFKA_TLS_SKIP_VERIFY", false),
	}}
}

// NewKafkaSink creates a KafkaSink with explicit configuration
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		config: KafkaConfig{
			Brokers: brokers,
			Topic:   topic,
			Acks:    "all",
		},
	}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) configMap() kafka.ConfigMap {
	cm := kafka.ConfigMap{
		"bootstrap.servers": strings.Join(s.config.Brokers, ","),
		"acks":              s.config.Acks,
		"retries":           10,
		"retry.backoff.ms":  100,
		"batch.size":        16384,
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

	go s.handleDeliveryReports(ctx)

	log.Printf("sink/kafka: producing to %s via %s", s.config.Topic, strings.Join(s.config.Brokers, ","))
	return nil
}

// message builds the record for e. Events without a fingerprint fall back
// to their event id as key.
func (s *KafkaSink) message(e event.Event) (*kafka.Message, error) {
	value, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize event: %w", err)
	}

	headers := []kafka.Header{
		{Key: "event_type", Value: []byte(e.Type)},
		{Key: "schema", Value: []byte(schemaVersion)},
	}
	if level := e.RiskLevel(); level != "" {
		headers = append(headers, kafka.Header{Key: "risk_level", Value: []byte(level)})
	}

	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &s.config.Topic,
			Partition: kafka.PartitionAny,
		},
		Key:     []byte(e.Key()),
		Value:   value,
		Headers: headers,
	}, nil
}

func (s *KafkaSink) Enqueue(e event.Event) error {
	if s.producer == nil {
		return fmt.Errorf("kafka producer not initialized")
	}
	msg, err := s.message(e)
	if err != nil {
		return err
	}
	if err := s.producer.Produce(msg, nil); err != nil {
		return fmt.Errorf("failed to produce message: %w", err)
	}
	return nil
}

func (s *KafkaSink) Close() error {
	if s.producer == nil {
		return nil
	}

	// wait up to 10 seconds for in-flight messages
	if remaining := s.producer.Flush(10 * 1000); remaining > 0 {
		s.producer.Close()
		return fmt.Errorf("failed to flush %d remaining messages", remaining)
	}
	s.producer.Close()
	return nil
}

func (s *KafkaSink) handleDeliveryReports(ctx context.Context) {
	events := s.producer.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev := ev.(type) {
			case *kafka.Message:
				if ev.TopicPartition.Error != nil {
					log.Printf("sink/kafka: delivery failed for key %s: %v", ev.Key, ev.TopicPartition.Error)
				}
			case kafka.Error:
				log.Printf("sink/kafka: client error: %v", ev)
			}
		}
	}
}
