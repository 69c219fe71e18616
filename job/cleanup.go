package job

import (
	"context"
	"time"

	"brokerbox/outbox-relay/config"
	"brokerbox/outbox-relay/log"
)

type SentDeleter interface {
	DeleteSent(ctx context.Context, olderThan time.Time) (int64, error)
}

type cleanup struct {
	sd        SentDeleter
	retention time.Duration
}

// RunCleanup deletes sent outbox records older than the configured
// retention window. Retention is deliberately outside the relay core: this
// job is the external process that owns it.
func RunCleanup(ctx context.Context, repo SentDeleter, cfg *config.Config) int {
	j := newCleanup(repo, cfg.GetSentRetentionDuration())

	_, err := j.Execute(ctx)
	if err != nil {
		return 1
	}

	return 0
}

func newCleanup(sd SentDeleter, retention time.Duration) *cleanup {
	return &cleanup{
		sd:        sd,
		retention: retention,
	}
}

func (c *cleanup) Execute(ctx context.Context) (int64, error) {
	rows, err := c.sd.DeleteSent(ctx, time.Now().Add(-c.retention))
	if err != nil {
		log.Logger.WithError(err).Error("an error occurred whilst deleting sent outbox records")
		return 0, err
	}

	log.Logger.Infof("deleted %d sent outbox records", rows)

	return rows, nil
}
