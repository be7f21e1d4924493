package models

import "time"

// Cluster is a bounded group of peer devices with one elected leader, formed
// by each node from its local neighbor view. Members hold copies of the
// discovery snapshots, ordered by descending RSSI at formation time.
type Cluster struct {
	ID                string    `json:"id"`
	Leader            Device    `json:"leader"`
	Members           []Device  `json:"members"`
	FormationTime     time.Time `json:"formation_time"`
	MaxSize           int       `json:"max_size"`
	AverageRSSI       float64   `json:"average_rssi"`
	TotalBatteryLevel float64   `json:"total_battery_level"`
}

// Empty reports whether the cluster has no members left. Optimization may
// prune a cluster down to empty; disbanding it is the caller's decision.
func (c Cluster) Empty() bool {
	return len(c.Members) == 0
}

// HasMember reports whether a device with the given id is a current member.
func (c Cluster) HasMember(id string) bool {
	for _, m := range c.Members {
		if m.ID == id {
			return true
		}
	}
	return false
}
