package relay

import (
	"context"
	"time"

	"brokerbox/outbox-relay/log"
)

// Start schedules Tick on a fixed interval until ctx is cancelled. The
// returned channel closes once the loop has stopped; because each tick runs
// inline in the scheduling goroutine, an in-flight tick always finishes
// before shutdown completes, cancellation only stops further scheduling.
func Start(ctx context.Context, r *Relay, interval time.Duration) <-chan struct{} {
	log.Logger.Info("starting outbox relay polling")

	done := make(chan struct{})
	go func() {
		defer close(done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				// ticks run against a fresh context so that shutdown does
				// not abort a half-finished pass and burn retry budget
				r.Tick(context.Background())
			case <-ctx.Done():
				log.Logger.Info("stopping outbox relay polling")
				return
			}
		}
	}()

	return done
}
