package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/rgutierrez/trade-journal/internal/models"
)

// BatchReconciler is the slice of the import engine the consumer needs.
type BatchReconciler interface {
	Reconcile(ctx context.Context, portfolioID int, records []models.ImportRecord) (*models.ReconciliationSummary, error)
}

// Consumer feeds broker execution events through the import reconciler, so
// streaming executions get the same matching and idempotency rules as file
// imports. Each event is reconciled as a single-record batch.
type Consumer struct {
	reader     *kafka.Reader
	reconciler BatchReconciler
	log        zerolog.Logger
}

// NewConsumer creates a Kafka consumer for broker execution events
func NewConsumer(brokers []string, topic, groupID string, reconciler BatchReconciler, log zerolog.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: time.Second,
	})

	return &Consumer{
		reader:     reader,
		reconciler: reconciler,
		log:        log,
	}
}

// Start begins consuming messages until the context is cancelled
func (c *Consumer) Start(ctx context.Context) error {
	c.log.Info().Str("topic", c.reader.Config().Topic).Msg("starting execution consumer")

	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("execution consumer shutting down")
			return c.reader.Close()
		default:
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return c.reader.Close() // context cancelled, normal shutdown
				}
				c.log.Error().Err(err).Msg("error reading message")
				continue
			}

			if err := c.processMessage(ctx, msg); err != nil {
				c.log.Error().Err(err).
					Int("partition", msg.Partition).
					Int64("offset", msg.Offset).
					Msg("error processing message")
				// Continue processing other messages
			}
		}
	}
}

func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) error {
	var event models.ExecutionEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal execution event: %w", err)
	}

	if event.EventType != models.EventExecutionReported {
		c.log.Debug().Str("event_type", event.EventType).Msg("ignoring event")
		return nil
	}

	record, err := convertEventToRecord(event)
	if err != nil {
		return fmt.Errorf("failed to convert execution event: %w", err)
	}

	summary, err := c.reconciler.Reconcile(ctx, event.PortfolioID, []models.ImportRecord{record})
	if err != nil {
		return fmt.Errorf("failed to reconcile execution event: %w", err)
	}

	res := summary.Results[0]
	if res.Status == models.RecordFailed {
		return fmt.Errorf("execution event rejected: %s", res.Error)
	}

	c.log.Info().
		Str("ticker", record.Ticker).
		Str("status", res.Status).
		Int("trade_id", res.TradeID).
		Str("broker_ref", record.BrokerRef).
		Msg("execution event reconciled")

	return nil
}

// convertEventToRecord maps an ExecutionEvent to a normalized ImportRecord
func convertEventToRecord(event models.ExecutionEvent) (models.ImportRecord, error) {
	data := event.Data

	quantity, err := decimal.NewFromString(data.Quantity)
	if err != nil {
		return models.ImportRecord{}, fmt.Errorf("invalid quantity %q: %w", data.Quantity, err)
	}

	price, err := decimal.NewFromString(data.Price)
	if err != nil {
		return models.ImportRecord{}, fmt.Errorf("invalid price %q: %w", data.Price, err)
	}

	orderDate := event.Timestamp
	if data.ExecutedAt != "" {
		parsed, err := time.Parse(time.RFC3339, data.ExecutedAt)
		if err != nil {
			return models.ImportRecord{}, fmt.Errorf("invalid executed_at %q: %w", data.ExecutedAt, err)
		}
		orderDate = parsed
	}

	return models.ImportRecord{
		Ticker:     data.Symbol,
		Side:       data.Side,
		Instrument: data.Instrument,
		OrderType:  data.OrderType,
		Quantity:   quantity,
		Price:      price,
		OrderDate:  orderDate,
		BrokerRef:  data.OrderID,
	}, nil
}
