// Package timing provides the human-like delay primitives shared by the
// orchestration services and the site adapter.
package timing

import (
	"context"
	"math/rand/v2"
	"time"
)

// HumanDelay returns a Gaussian-shaped random duration clamped to [min, max],
// centered between them. Scripted traffic with uniform or fixed pacing is easy
// to fingerprint; a bell curve around a midpoint reads closer to a person.
// Pure function of its bounds; uses the shared process-level generator.
func HumanDelay(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	mean := float64(min+max) / 2
	stddev := float64(max-min) / 6
	d := time.Duration(mean + rand.NormFloat64()*stddev)
	if d < min {
		return min
	}
	if d > max {
		return max
	}
	return d
}

// Sleep blocks for d or until the context is canceled, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
