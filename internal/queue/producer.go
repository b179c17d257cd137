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
)

const (
	ReindexStreamName   = "REINDEX"
	ReindexSubjectBase  = "reindex"
	IdentityStreamName  = "IDENTITY"
	IdentitySubjectBase = "identity"
)

// EventSubject is identity.<kind>.<action>.
func EventSubject(ev models.IdentityEvent) string {
	return fmt.Sprintf("%s.%s.%s", IdentitySubjectBase, ev.Kind, ev.Action)
}

// TaskSubject is reindex.<image id>.
func TaskSubject(task models.ReindexTask) string {
	return fmt.Sprintf("%s.%s", ReindexSubjectBase, task.ImageID)
}

func connect(natsURL string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create jetstream context: %w", err)
	}
	return nc, js, nil
}

type Producer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewProducer(natsURL string) (*Producer, error) {
	nc, js, err := connect(natsURL)
	if err != nil {
		return nil, err
	}
	return &Producer{nc: nc, js: js}, nil
}

// EnsureStreams creates JetStream streams if they don't exist.
// Retries up to 30 times (1s apart) to handle NATS startup delay.
func (p *Producer) EnsureStreams(ctx context.Context) error {
	streams := []jetstream.StreamConfig{
		{
			Name:        ReindexStreamName,
			Subjects:    []string{ReindexSubjectBase + ".>"},
			Retention:   jetstream.WorkQueuePolicy,
			MaxAge:      24 * time.Hour,
			MaxMsgs:     1000000,
			Storage:     jetstream.FileStorage,
			Discard:     jetstream.DiscardOld,
			Duplicates:  10 * time.Minute,
			Description: "Re-index tasks for enrolled images",
		},
		{
			Name:        IdentityStreamName,
			Subjects:    []string{IdentitySubjectBase + ".>"},
			Retention:   jetstream.InterestPolicy,
			MaxAge:      24 * time.Hour,
			MaxMsgs:     1000000,
			Storage:     jetstream.FileStorage,
			Description: "Group, person and image changes",
		},
	}

	const maxAttempts = 30
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		allOK := true
		for _, cfg := range streams {
			opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			_, err := p.js.CreateOrUpdateStream(opCtx, cfg)
			cancel()
			if err != nil {
				allOK = false
				if attempt == maxAttempts {
					return fmt.Errorf("create stream %s: %w (after %d attempts)", cfg.Name, err, maxAttempts)
				}
				slog.Warn("ensure NATS stream (retrying...)", "name", cfg.Name, "attempt", attempt, "error", err)
				break
			}
			slog.Info("ensured NATS stream", "name", cfg.Name)
		}
		if allOK {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(1 * time.Second):
		}
	}
	return nil
}

// PublishIdentityEvent publishes an identity change.
func (p *Producer) PublishIdentityEvent(ctx context.Context, ev models.IdentityEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal identity event: %w", err)
	}
	if _, err := p.js.Publish(ctx, EventSubject(ev), payload); err != nil {
		return fmt.Errorf("publish identity event: %w", err)
	}
	return nil
}

// PublishReindexTask queues a re-index task. Repeated requests for the same
// image within the stream's duplicate window are dropped by JetStream.
func (p *Producer) PublishReindexTask(ctx context.Context, task models.ReindexTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal reindex task: %w", err)
	}
	_, err = p.js.Publish(ctx, TaskSubject(task), payload, jetstream.WithMsgID(task.ImageID.String()))
	if err != nil {
		return fmt.Errorf("publish reindex task: %w", err)
	}
	return nil
}

// QueueDepth returns the number of pending messages in the REINDEX stream.
func (p *Producer) QueueDepth(ctx context.Context) (uint64, error) {
	stream, err := p.js.Stream(ctx, ReindexStreamName)
	if err != nil {
		return 0, err
	}
	info, err := stream.Info(ctx)
	if err != nil {
		return 0, err
	}
	return info.State.Msgs, nil
}

func (p *Producer) Ping() error {
	if !p.nc.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return nil
}

func (p *Producer) Close() {
	p.nc.Close()
}
