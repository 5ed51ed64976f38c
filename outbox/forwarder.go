package outbox

import (
	"context"
	"time"

	"github.com/mlindqvist/zkdistributed/logger"
)

// Forwarder periodically calls Service.ForwardPending until its context
// is cancelled, meant to be registered as an appkit.Application task.
type Forwarder struct {
	service  *Service
	interval time.Duration
}

// NewForwarder returns a Forwarder polling service every interval.
func NewForwarder(service *Service, interval time.Duration) *Forwarder {
	return &Forwarder{service: service, interval: interval}
}

// Start blocks, forwarding pending messages every interval, until ctx is
// cancelled.
func (f *Forwarder) Start(ctx context.Context) error {
	log := logger.Ctx(ctx)
	log.Info().Dur("interval", f.interval).Msg("starting leadership outbox forwarder")

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("stopping leadership outbox forwarder")
			return nil
		case <-ticker.C:
			if err := f.service.ForwardPending(ctx); err != nil {
				log.Error().Err(err).Msg("outbox forwarding cycle failed")
			}
		}
	}
}
