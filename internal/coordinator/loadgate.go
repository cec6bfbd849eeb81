package coordinator

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const loadPollInterval = 5 * time.Second

// waitForLoad blocks until the 1-minute load average drops below ceiling.
// Back-pressure only: it delays partition starts, never affects ones in
// flight. A zero ceiling, or a platform without load readings, passes
// immediately.
func waitForLoad(ctx context.Context, ceiling float64) error {
	if ceiling <= 0 {
		return nil
	}

	for {
		load, ok := loadAverage()
		if !ok || load < ceiling {
			return nil
		}
		zap.L().Info("load ceiling exceeded, delaying partition start",
			zap.Float64("load", load),
			zap.Float64("ceiling", ceiling),
		)
		timer := time.NewTimer(loadPollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
