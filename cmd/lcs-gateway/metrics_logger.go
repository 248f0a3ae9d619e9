package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ampiolux/lcs-gateway/internal/metrics"
)

func startMetricsLogger(ctx context.Context, interval time.Duration, l *slog.Logger, wg *sync.WaitGroup) {
	if interval <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				snap := metrics.Snap()
				l.Info("metrics_snapshot",
					"frames_encoded", snap.FramesEncoded,
					"frames_decoded", snap.FramesDecoded,
					"malformed", snap.Malformed,
					"timeouts", snap.Timeouts,
					"reconnects", snap.Reconnects,
					"errors", snap.Errors,
				)
			case <-ctx.Done():
				return
			}
		}
	}()
}
