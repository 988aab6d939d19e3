package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"topup-api/internal/models"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// Transaction lifecycle event types
const (
	EventTransactionCreated = "transaction.created"
	EventTransactionSettled = "transaction.settled"
	EventWalletDebited      = "wallet.debited"
)

// TransactionEvent is published on every lifecycle change
type TransactionEvent struct {
	EventID   string    `json:"event_id"`
	Type      string    `json:"type"`
	TxID      string    `json:"transaction_id"`
	AccountID string    `json:"account_id,omitempty"`
	Game      string    `json:"game"`
	Amount    string    `json:"amount"`
	Currency  string    `json:"currency"`
	Status    string    `json:"status"`
	Credited  string    `json:"credited,omitempty"`
	At        time.Time `json:"at"`
}

// NewTransactionEvent snapshots tx into an event of the given type
func NewTransactionEvent(eventType string, tx *models.Transaction) TransactionEvent {
	ev := TransactionEvent{
		EventID:  uuid.NewString(),
		Type:     eventType,
		TxID:     tx.TxID,
		Game:     tx.Game,
		Amount:   tx.Amount.StringFixed(2),
		Currency: tx.Currency,
		Status:   tx.Status,
		At:       time.Now().UTC(),
	}
	if tx.AccountID != nil {
		ev.AccountID = *tx.AccountID
	}
	return ev
}

// EventPublisher emits transaction events
type EventPublisher interface {
	Publish(ctx context.Context, event TransactionEvent) error
	Close() error
}

// KafkaPublisher writes events to one topic, keyed by transaction id so
// every event of a transaction lands on the same partition.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			WriteTimeout: 10 * time.Second,
		},
	}
}

func (k *KafkaPublisher) Publish(ctx context.Context, event TransactionEvent) error {
	msg, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if err := k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.TxID),
		Value: msg,
		Time:  event.At,
	}); err != nil {
		return fmt.Errorf("%w: publish %s: %v", ErrExternalService, event.Type, err)
	}
	return nil
}

func (k *KafkaPublisher) Close() error {
	return k.writer.Close()
}

// NoopPublisher is used when no brokers are configured
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, TransactionEvent) error { return nil }
func (NoopPublisher) Close() error                                    { return nil }
