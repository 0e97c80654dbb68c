package main

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/iar/pkg/assets"
	"github.com/platinummonkey/iar/pkg/observability"
)

// statsTimeout bounds one refresh of the asset gauges
const statsTimeout = 30 * time.Second

type statsSource interface {
	Stats(ctx context.Context) (*assets.Stats, error)
}

// refreshStats copies the register-wide counts into the asset gauges
func refreshStats(ctx context.Context, src statsSource, metrics *observability.Metrics) error {
	stats, err := src.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh asset stats: %w", err)
	}
	metrics.AssetsTotal.Set(float64(stats.All.Total))
	metrics.AssetsCompleted.Set(float64(stats.All.Completed))
	metrics.AssetsWithPersonalData.Set(float64(stats.All.WithPersonalData))
	return nil
}

// scheduleStats refreshes the asset gauges on schedule. The returned
// scheduler is not started.
func scheduleStats(schedule string, src statsSource, metrics *observability.Metrics, logger *observability.Logger) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		defer observability.RecoverPanic(logger, "asset stats refresh")

		ctx, cancel := context.WithTimeout(context.Background(), statsTimeout)
		defer cancel()
		if err := refreshStats(ctx, src, metrics); err != nil {
			logger.WithError(err).Error("Asset stats refresh failed")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid stats schedule %q: %w", schedule, err)
	}
	return c, nil
}
