package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"cargoquote/internal/log"
	"cargoquote/internal/modules/history"
)

// Acceptor records that a quote was turned into an order.
type Acceptor interface {
	MarkAccepted(ctx context.Context, quoteID, orderID string, at time.Time) error
}

// OrderAccepted is the payload of an order.accepted event.
type OrderAccepted struct {
	QuoteID    string    `json:"quoteId"`
	OrderID    string    `json:"orderId"`
	AcceptedAt time.Time `json:"acceptedAt"`
}

// AcceptanceConsumer is a sarama.ConsumerGroupHandler feeding order acceptances into history.
type AcceptanceConsumer struct {
	acceptor Acceptor
	logger   *zap.Logger
}

var _ sarama.ConsumerGroupHandler = (*AcceptanceConsumer)(nil)

func NewAcceptanceConsumer(acceptor Acceptor, logger *zap.Logger) *AcceptanceConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AcceptanceConsumer{acceptor: acceptor, logger: logger}
}

func (c *AcceptanceConsumer) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (c *AcceptanceConsumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim marks a message once it is handled or known to be unprocessable.
// A storage failure ends the session so the message is redelivered.
func (c *AcceptanceConsumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := c.handleMessage(session.Context(), msg); err != nil {
				return err
			}
			session.MarkMessage(msg, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

// handleMessage returns an error only for failures worth retrying.
func (c *AcceptanceConsumer) handleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	logger := c.logger.With(
		zap.String("topic", msg.Topic),
		zap.Int32("partition", msg.Partition),
		zap.Int64("offset", msg.Offset))

	var evt Event
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		logger.Warn("dropping undecodable event", zap.Error(err))
		return nil
	}
	if evt.Type != "" && evt.Type != TypeOrderAccepted {
		logger.Debug("ignoring event", zap.String("type", evt.Type))
		return nil
	}
	var payload OrderAccepted
	if err := json.Unmarshal(evt.Data, &payload); err != nil {
		logger.Warn("dropping undecodable order.accepted payload", zap.Error(err))
		return nil
	}

	ctx = log.WithOrderID(ctx, payload.OrderID)
	err := c.acceptor.MarkAccepted(ctx, payload.QuoteID, payload.OrderID, payload.AcceptedAt)
	switch {
	case err == nil:
		logger.Info("quote accepted", zap.String("quote_id", payload.QuoteID), zap.String("order_id", payload.OrderID))
		return nil
	case errors.Is(err, history.ErrQuoteNotFound), errors.Is(err, history.ErrInvalidQuoteID):
		logger.Warn("acceptance for unknown quote", zap.String("quote_id", payload.QuoteID), zap.Error(err))
		return nil
	default:
		return fmt.Errorf("mark quote %s accepted: %w", payload.QuoteID, err)
	}
}

// Run consumes topics until ctx is cancelled, rejoining the group after every rebalance.
func Run(ctx context.Context, group sarama.ConsumerGroup, topics []string, handler sarama.ConsumerGroupHandler, logger *zap.Logger) error {
	go func() {
		for err := range group.Errors() {
			logger.Error("kafka consumer error", zap.Error(err))
		}
	}()
	for {
		if err := group.Consume(ctx, topics, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			logger.Error("kafka consume failed", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}
