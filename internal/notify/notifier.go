package notify

import (
	"context"
)

// Notifier delivers out-of-band alerts, currently only for tasks that
// exhausted their retry budget.
type Notifier interface {
	Send(ctx context.Context, title, body string) error
}

// NoOpNotifier does nothing. Used when no notification channel is configured.
type NoOpNotifier struct{}

func (n *NoOpNotifier) Send(ctx context.Context, title, body string) error {
	return nil
}
