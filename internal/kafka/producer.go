package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/rgutierrez/trade-journal/internal/models"
)

// Producer publishes trade lifecycle events
type Producer struct {
	writer *kafka.Writer
	topic  string
}

// NewProducer creates a new Kafka producer for trade events
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
	}

	return &Producer{
		writer: writer,
		topic:  topic,
	}
}

// PublishTradeOpened publishes a trade opened event
func (p *Producer) PublishTradeOpened(ctx context.Context, trade *models.Trade) error {
	event := models.TradeEvent{
		EventType: models.EventTradeOpened,
		Trade:     trade,
		Ticker:    trade.Ticker,
		Timestamp: time.Now(),
	}
	return p.publish(ctx, trade.Ticker, event)
}

// PublishTradeClosed publishes a trade closed event
func (p *Producer) PublishTradeClosed(ctx context.Context, trade *models.Trade) error {
	event := models.TradeEvent{
		EventType: models.EventTradeClosed,
		Trade:     trade,
		Ticker:    trade.Ticker,
		Timestamp: time.Now(),
	}
	return p.publish(ctx, trade.Ticker, event)
}

func (p *Producer) publish(ctx context.Context, key string, event models.TradeEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal trade event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("failed to publish trade event: %w", err)
	}
	return nil
}

// Close closes the underlying writer
func (p *Producer) Close() error {
	return p.writer.Close()
}
