package push

import (
	"context"

	"github.com/noah-isme/printstore/internal/queue"
)

// Consumer adapts the delivery channel to the agent. Every delivery runs as
// host work so shutdown waits for displays in progress.
type Consumer struct {
	Agent *Agent
	Host  *Host
}

// Handle is a queue.Worker handler. A display failure is returned so the
// channel retries it. The result is the display's own, even when ctx ends
// first, so a notification already shown is acked rather than redelivered.
// Host.Drain bounds the wait.
func (c Consumer) Handle(ctx context.Context, task queue.Task) error {
	return <-c.Host.WaitUntil(ctx, "push", func(ctx context.Context) error {
		_, err := c.Agent.HandlePush(ctx, PushEvent{Data: task.Payload})
		return err
	})
}
