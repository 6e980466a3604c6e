package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/lo"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/hdb-property-etl/internal/config"
	"github.com/couchcryptid/hdb-property-etl/internal/domain"
	"github.com/couchcryptid/hdb-property-etl/internal/observability"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes enriched property records to a Kafka topic.
// It implements pipeline.Loader.
type Writer struct {
	writer    messageWriter
	topic     string
	batchSize int
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewWriter creates a Kafka producer for the configured topic.
func NewWriter(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		BatchSize:              cfg.KafkaBatchSize,
		AllowAutoTopicCreation: true,
	}
	return newWriter(w, cfg.KafkaTopic, cfg.KafkaBatchSize, logger, metrics)
}

func newWriter(mw messageWriter, topic string, batchSize int, logger *slog.Logger, metrics *observability.Metrics) *Writer {
	return &Writer{
		writer:    mw,
		topic:     topic,
		batchSize: batchSize,
		logger:    logger,
		metrics:   metrics,
	}
}

// Name identifies the sink in logs and metrics.
func (w *Writer) Name() string { return "kafka" }

// LoadTable publishes one message per record, batchSize messages per
// WriteMessages call. Only the upstream columns are carried in the payload.
func (w *Writer) LoadTable(ctx context.Context, columns []string, records []domain.EnrichedRecord) error {
	if len(records) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(records))
	for i := range records {
		msg, err := serializeToMessage(columns, records[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}

	for n, batch := range lo.Chunk(msgs, w.batchSize) {
		if err := w.writer.WriteMessages(ctx, batch...); err != nil {
			return fmt.Errorf("publish batch %d to %s: %w", n+1, w.topic, err)
		}
		w.metrics.RecordsWritten.WithLabelValues(w.Name()).Add(float64(len(batch)))
	}
	w.logger.Info("enriched records published", "topic", w.topic, "records", len(records))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// propertyMessage is the JSON value of a published record.
type propertyMessage struct {
	Fields      map[string]string   `json:"fields"`
	Area        *string             `json:"area"`
	Address     string              `json:"address"`
	Location    *domain.Coordinates `json:"location"`
	ProcessedAt time.Time           `json:"processed_at"`
}

// MessageKey identifies a block: "blk_no|street".
func MessageKey(r domain.PropertyRecord) string {
	return r.BlockNumber() + "|" + r.Street()
}

func serializeToMessage(columns []string, r domain.EnrichedRecord) (kafkago.Message, error) {
	fields := make(map[string]string, len(columns))
	for _, c := range columns {
		fields[c] = r.Get(c)
	}
	data, err := json.Marshal(propertyMessage{
		Fields:      fields,
		Area:        r.Area,
		Address:     r.Address,
		Location:    r.Location,
		ProcessedAt: r.ProcessedAt,
	})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize property %s: %w", MessageKey(r.PropertyRecord), err)
	}
	return kafkago.Message{
		Key:   []byte(MessageKey(r.PropertyRecord)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "town", Value: []byte(r.TownCode())},
			{Key: "processed_at", Value: []byte(r.ProcessedAt.Format(time.RFC3339))},
		},
	}, nil
}
