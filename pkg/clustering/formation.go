// Package clustering implements the local cluster decision core for a
// battery-powered peer mesh: each node independently groups its visible
// neighbors into a bounded cluster and elects a leader with a weighted
// multi-criteria score. The core is pure, synchronous computation over
// caller-supplied snapshots; it performs no I/O and retains no references
// to caller data across calls.
package clustering

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/meshnet/pkg/models"
)

var (
	// ErrNoDevices is returned when formation is requested with zero
	// candidate devices. Callers should skip the cycle and retry on the
	// next discovery refresh.
	ErrNoDevices = errors.New("cannot form cluster with empty device list")

	// ErrInvalidClusterSize is returned when the requested cluster bound
	// is not a positive integer.
	ErrInvalidClusterSize = errors.New("max cluster size must be positive")

	// ErrInvalidWeights is returned when scoring weights do not sum to 1.0.
	ErrInvalidWeights = errors.New("invalid scoring weights")
)

// DefaultMinBatteryLevel is the battery percentage below which a member is
// pruned during optimization.
const DefaultMinBatteryLevel = 20.0

// Config configures an Engine. Zero-value fields fall back to defaults.
type Config struct {
	Weights         Weights
	MinBatteryLevel float64
	IDGenerator     IDGenerator
}

// Engine forms and optimizes clusters. It is stateless between calls and
// safe for concurrent use on distinct cluster values; concurrent calls on
// the same cluster value must be serialized by the caller.
type Engine struct {
	weights    Weights
	minBattery float64
	idGen      IDGenerator
}

// NewEngine builds an engine from cfg, validating the scoring weights.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Weights == (Weights{}) {
		cfg.Weights = DefaultWeights()
	}
	if err := cfg.Weights.Validate(); err != nil {
		return nil, err
	}
	if cfg.MinBatteryLevel == 0 {
		cfg.MinBatteryLevel = DefaultMinBatteryLevel
	}
	if cfg.IDGenerator == nil {
		cfg.IDGenerator = NewRandomIDGenerator()
	}
	return &Engine{
		weights:    cfg.Weights,
		minBattery: cfg.MinBatteryLevel,
		idGen:      cfg.IDGenerator,
	}, nil
}

// Weights returns the engine's scoring weights.
func (e *Engine) Weights() Weights {
	return e.weights
}

// MinBatteryLevel returns the pruning threshold used by OptimizeCluster.
func (e *Engine) MinBatteryLevel() float64 {
	return e.minBattery
}

// FormCluster groups the given devices into a cluster bounded by maxSize and
// elects a leader. The input slice is copied, never mutated: members are
// sorted by descending RSSI, truncated to maxSize, and the highest-scoring
// member becomes leader. Exact score ties resolve to the stronger signal.
func (e *Engine) FormCluster(devices []models.Device, maxSize int) (models.Cluster, error) {
	if len(devices) == 0 {
		return models.Cluster{}, ErrNoDevices
	}
	if maxSize <= 0 {
		return models.Cluster{}, fmt.Errorf("%w: got %d", ErrInvalidClusterSize, maxSize)
	}

	members := make([]models.Device, len(devices))
	copy(members, devices)
	sort.SliceStable(members, func(i, j int) bool {
		return members[i].RSSI > members[j].RSSI
	})
	if len(members) > maxSize {
		members = members[:maxSize]
	}

	return models.Cluster{
		ID:                e.idGen.NewID(),
		Leader:            e.electLeader(members),
		Members:           members,
		FormationTime:     time.Now(),
		MaxSize:           maxSize,
		AverageRSSI:       averageRSSI(members),
		TotalBatteryLevel: totalBattery(members),
	}, nil
}

// electLeader picks the highest-scoring device. members must be non-empty
// and sorted by descending RSSI: a candidate replaces the incumbent only on
// a strictly greater score, so ties go to the stronger signal.
func (e *Engine) electLeader(members []models.Device) models.Device {
	best := members[0]
	bestScore := e.weights.Score(best)
	for _, d := range members[1:] {
		if score := e.weights.Score(d); score > bestScore {
			best = d
			bestScore = score
		}
	}
	return best
}

func averageRSSI(members []models.Device) float64 {
	if len(members) == 0 {
		return 0
	}
	sum := 0.0
	for _, d := range members {
		sum += d.RSSI
	}
	return sum / float64(len(members))
}

func totalBattery(members []models.Device) float64 {
	total := 0.0
	for _, d := range members {
		total += d.BatteryLevel
	}
	return total
}
