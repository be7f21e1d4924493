package clustering

import (
	"fmt"
	"math"

	"github.com/meshnet/pkg/models"
)

// Weights holds the leadership scoring weights. Battery dominates because
// leadership duties (routing, relay) drain the elected device fastest;
// proximity matters because a distant leader degrades link quality for every
// member. The four weights must sum to 1.0.
type Weights struct {
	Battery    float64 `json:"battery"`
	Proximity  float64 `json:"proximity"`
	Stability  float64 `json:"stability"`
	Capability float64 `json:"capability"`
}

// DefaultWeights returns the standard leadership weighting.
func DefaultWeights() Weights {
	return Weights{
		Battery:    0.4,
		Proximity:  0.3,
		Stability:  0.2,
		Capability: 0.1,
	}
}

const weightSumTolerance = 1e-9

// Validate checks that the weights sum to 1.0 within floating-point tolerance.
func (w Weights) Validate() error {
	sum := w.Battery + w.Proximity + w.Stability + w.Capability
	if math.Abs(sum-1.0) > weightSumTolerance {
		return fmt.Errorf("%w: sum is %g, want 1.0", ErrInvalidWeights, sum)
	}
	return nil
}

// Score maps a device snapshot to a leadership fitness value in [0, 1].
// It is a total function: any well-formed snapshot produces a score.
func (w Weights) Score(d models.Device) float64 {
	battery := clamp01(d.BatteryLevel / 100.0)
	proximity := clamp01((d.RSSI + 100.0) / 100.0)

	return battery*w.Battery +
		proximity*w.Proximity +
		d.ConnectionStability*w.Stability +
		capabilityScore(d)*w.Capability
}

// capabilityScore rates device hardware in [0, 1]. CPU, RAM and storage are
// normalized against typical mobile ranges. The radio term is a priority
// chain: only the strongest supported standard counts.
func capabilityScore(d models.Device) float64 {
	score := math.Min(1.0, d.CPUCores/8.0) * 0.3
	score += math.Min(1.0, d.RAMGB/16.0) * 0.3
	score += math.Min(1.0, d.StorageGB/512.0) * 0.2

	switch {
	case d.Supports5G:
		score += 0.2
	case d.SupportsWiFi6:
		score += 0.15
	case d.SupportsWiFi5:
		score += 0.1
	}

	return math.Min(1.0, score)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
