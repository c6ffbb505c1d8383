package handler

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/odl-go/circulation-service/circulation/internal/model"
)

type updateLoan func(ctx context.Context, loanUID string, doc model.StatusDocument) error

// Consumer applies loan status notifications arriving over Kafka. Applying
// a notification is idempotent, so redelivery after a failed mark is safe.
type Consumer struct {
	updateLoanHandler updateLoan
	log               *zap.Logger
	ready             chan bool
}

func NewConsumer(updateLoan updateLoan, log *zap.Logger) *Consumer {
	return &Consumer{
		updateLoanHandler: updateLoan,
		log:               log.Named("consumer"),
		ready:             make(chan bool),
	}
}

func (consumer *Consumer) Setup(sarama.ConsumerGroupSession) error {
	// Mark the consumer as ready
	close(consumer.ready)
	return nil
}

// Cleanup is run at the end of a session, once all ConsumeClaim goroutines have exited.
func (consumer *Consumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (consumer *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				consumer.log.Warn("message channel was closed")
				return nil
			}
			var note model.LoanStatusNotification
			if err := json.Unmarshal(message.Value, &note); err != nil {
				consumer.log.Error("", zap.Error(err))
				session.MarkMessage(message, "")
				continue
			}
			if !model.KnownStatus(note.Document.Status) {
				consumer.log.Warn("unknown loan status", zap.String("status", note.Document.Status), zap.String("loanUid", note.LoanUID))
				session.MarkMessage(message, "")
				continue
			}

			if err := consumer.updateLoanHandler(context.Background(), note.LoanUID, note.Document); err != nil {
				consumer.log.Error("consumer.updateLoanHandler", zap.Error(err))
				continue
			}

			consumer.log.Debug("Message claimed:", zap.String("value", string(message.Value)), zap.Time("timestamp", message.Timestamp), zap.String("topic", message.Topic))
			session.MarkMessage(message, "")
		case <-session.Context().Done():
			return nil
		}
	}
}
