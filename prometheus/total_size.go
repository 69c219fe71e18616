package prometheus

import (
	"context"
	"time"

	"brokerbox/outbox-relay/log"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var outboxTotalSize prom.Gauge

type totalSizer interface {
	GetTotalSize(ctx context.Context) (uint, error)
}

func init() {
	outboxTotalSize = promauto.NewGauge(prom.GaugeOpts{
		Name: "outbox_total_size",
		Help: "The total size of the outbox, including sent and failed messages",
	})
}

func ObserveTotalSize(ctx context.Context, sizer totalSizer) {
	for {
		size, err := sizer.GetTotalSize(ctx)
		if err != nil {
			log.Logger.WithError(err).Error("an error occurred determining the total size of the outbox")
			time.Sleep(time.Second * 1)
			continue
		}

		select {
		case <-ctx.Done():
			return
		default:
			outboxTotalSize.Set(float64(size))

			time.Sleep(time.Second * 1)
		}
	}
}
