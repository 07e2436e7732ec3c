// Package mail provides the outbound transports a dispatch run sends through.
package mail

import (
	"context"
	"strings"

	"github.com/mailgoatai/mailgoat-sub001/internal/models"
)

// Sender delivers one job. Implementations own their retry and timeout
// behavior; to the dispatcher a retrying transport is just a slow one.
type Sender interface {
	Send(ctx context.Context, job models.Job) error
}

// SendFunc adapts a plain function to Sender.
type SendFunc func(ctx context.Context, job models.Job) error

func (f SendFunc) Send(ctx context.Context, job models.Job) error {
	return f(ctx, job)
}

// IsThrottle reports whether an error looks like the remote end rate-limiting
// us. Detection is by message pattern so every transport feeds the controller
// the same way.
func IsThrottle(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate limit") || strings.Contains(msg, "429")
}
