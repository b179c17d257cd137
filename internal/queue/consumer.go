package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/faceapi/internal/models"
	"github.com/your-org/faceapi/internal/resultcode"
)

type MessageHandler func(ctx context.Context, msg jetstream.Msg) error

type Consumer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewConsumer(natsURL string) (*Consumer, error) {
	nc, js, err := connect(natsURL)
	if err != nil {
		return nil, err
	}
	return &Consumer{nc: nc, js: js}, nil
}

func DecodeReindexTask(data []byte) (models.ReindexTask, error) {
	var task models.ReindexTask
	if err := json.Unmarshal(data, &task); err != nil {
		return task, fmt.Errorf("decode reindex task: %w", err)
	}
	return task, nil
}

func DecodeIdentityEvent(data []byte) (models.IdentityEvent, error) {
	var ev models.IdentityEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, fmt.Errorf("decode identity event: %w", err)
	}
	return ev, nil
}

// settle acks a handled message, naks a retryable failure and terminates one
// that can never succeed.
func settle(msg jetstream.Msg, err error) {
	switch {
	case err == nil:
		_ = msg.Ack()
	case resultcode.Of(err).Retryable():
		_ = msg.Nak()
	default:
		_ = msg.Term()
	}
}

// ConsumeReindex starts consuming tasks from the REINDEX stream.
// workerCount determines how many goroutines process messages concurrently.
func (c *Consumer) ConsumeReindex(ctx context.Context, consumerName string, handler MessageHandler, workerCount int) error {
	stream, err := c.js.Stream(ctx, ReindexStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", ReindexStreamName, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       60 * time.Second,
		MaxDeliver:    5,
		FilterSubject: ReindexSubjectBase + ".>",
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	msgCh := make(chan jetstream.Msg, workerCount*2)

	go func() {
		defer close(msgCh)
		for {
			if ctx.Err() != nil {
				return
			}

			batch, err := cons.Fetch(workerCount, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Warn("fetch reindex tasks", "error", err)
				time.Sleep(time.Second)
				continue
			}

			for msg := range batch.Messages() {
				select {
				case msgCh <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	for i := 0; i < workerCount; i++ {
		go func(workerID int) {
			for msg := range msgCh {
				err := handler(ctx, msg)
				if err != nil {
					slog.Error("process reindex task", "worker", workerID, "error", err, "subject", msg.Subject())
				}
				settle(msg, err)
			}
		}(i)
	}

	slog.Info("reindex consumer started", "consumer", consumerName, "workers", workerCount)
	return nil
}

// ConsumeEvents starts consuming identity events (for the API to broadcast via WebSocket).
func (c *Consumer) ConsumeEvents(ctx context.Context, consumerName string, handler MessageHandler) error {
	stream, err := c.js.Stream(ctx, IdentityStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", IdentityStreamName, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       10 * time.Second,
		MaxDeliver:    3,
		FilterSubject: IdentitySubjectBase + ".>",
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	go func() {
		for {
			if ctx.Err() != nil {
				return
			}

			batch, err := cons.Fetch(10, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				time.Sleep(time.Second)
				continue
			}

			for msg := range batch.Messages() {
				err := handler(ctx, msg)
				if err != nil {
					slog.Error("process identity event", "error", err)
				}
				settle(msg, err)
			}
		}
	}()

	slog.Info("event consumer started", "consumer", consumerName)
	return nil
}

func (c *Consumer) Close() {
	c.nc.Close()
}
