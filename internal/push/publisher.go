package push

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"github.com/noah-isme/printstore/internal/queue"
)

// QueueKind is the delivery channel's task kind.
const QueueKind = "push-notification"

// Enqueuer is the delivery channel's write side.
type Enqueuer interface {
	Enqueue(ctx context.Context, t queue.Task) (bool, error)
}

// Publisher sends payloads onto the delivery channel.
type Publisher struct {
	Queue Enqueuer
}

// wireMessage always carries every field, as the storefront sender does.
type wireMessage struct {
	Title string  `json:"title"`
	Body  string  `json:"body"`
	URL   string  `json:"url"`
	JobID *string `json:"job_id"`
	Icon  string  `json:"icon"`
}

// Send encodes p and enqueues it. An empty URL or icon gets the default.
// It returns the idempotency key used for the message.
func (p Publisher) Send(ctx context.Context, payload Payload) (string, error) {
	if p.Queue == nil {
		return "", errors.New("push: publisher queue not configured")
	}
	raw, err := Encode(payload)
	if err != nil {
		return "", err
	}
	key := uuid.NewString()
	if _, err := p.Queue.Enqueue(ctx, queue.Task{Kind: QueueKind, Payload: raw, IdempotencyKey: key}); err != nil {
		return "", err
	}
	return key, nil
}

// Encode renders the wire form of payload.
func Encode(payload Payload) ([]byte, error) {
	msg := wireMessage{
		Title: payload.Title,
		Body:  payload.Body,
		URL:   orDefault(payload.URL, DefaultURL),
		Icon:  orDefault(payload.Icon, DefaultIcon),
	}
	if payload.JobID != "" {
		id := payload.JobID
		msg.JobID = &id
	}
	return json.Marshal(msg)
}
