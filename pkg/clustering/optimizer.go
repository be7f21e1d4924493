package clustering

import "github.com/meshnet/pkg/models"

// OptimizeCluster prunes members whose battery fell below the engine's
// minimum level, re-elects the leader if it was pruned, and recomputes the
// aggregate metrics. The returned cluster is authoritative; the input value
// is not modified. Identity fields (id, formation time, max size) carry
// over unchanged.
//
// Pruning to zero members is not an error: the last-known leader is left in
// place and callers decide whether to disband via Cluster.Empty.
func (e *Engine) OptimizeCluster(cluster models.Cluster) models.Cluster {
	kept := make([]models.Device, 0, len(cluster.Members))
	for _, d := range cluster.Members {
		if d.BatteryLevel >= e.minBattery {
			kept = append(kept, d)
		}
	}
	cluster.Members = kept

	if !cluster.HasMember(cluster.Leader.ID) && len(kept) > 0 {
		cluster.Leader = e.electLeader(kept)
	}

	cluster.AverageRSSI = averageRSSI(kept)
	cluster.TotalBatteryLevel = totalBattery(kept)
	return cluster
}
