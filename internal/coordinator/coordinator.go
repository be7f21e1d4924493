// Package coordinator drives the clustering core on the node's schedule:
// every refresh interval it takes a discovery snapshot, forms a cluster when
// it holds none, and otherwise re-submits the held cluster to the optimizer
// with refreshed member state. The resulting view is published over MQTT for
// the dashboard and any coordination layer above.
package coordinator

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/meshnet/pkg/clustering"
	"github.com/meshnet/pkg/models"
)

// stateTopic is the per-node topic carrying the authoritative cluster view.
const stateTopic = "mesh/cluster/%s/state"

// SnapshotSource yields the devices currently visible to this node.
type SnapshotSource interface {
	Snapshot() []models.Device
}

// Publisher sends the cluster state to the mesh broker.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

type Coordinator struct {
	nodeID         string
	source         SnapshotSource
	publisher      Publisher
	engine         *clustering.Engine
	interval       time.Duration
	maxClusterSize int

	mu         sync.RWMutex
	current    models.Cluster
	hasCluster bool

	stopChan chan struct{}
	stopOnce sync.Once
}

func New(nodeID string, source SnapshotSource, publisher Publisher,
	engine *clustering.Engine, interval time.Duration, maxClusterSize int) *Coordinator {
	return &Coordinator{
		nodeID:         nodeID,
		source:         source,
		publisher:      publisher,
		engine:         engine,
		interval:       interval,
		maxClusterSize: maxClusterSize,
		stopChan:       make(chan struct{}),
	}
}

// Start launches the periodic decision loop.
func (c *Coordinator) Start() {
	log.Printf("[Coordinator][%s] Starting decision loop (interval=%s, max_cluster_size=%d)",
		c.nodeID, c.interval, c.maxClusterSize)
	go c.loop()
}

// Stop terminates the decision loop. Safe to call more than once.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() { close(c.stopChan) })
}

func (c *Coordinator) loop() {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.refresh()
		case <-c.stopChan:
			return
		}
	}
}

// RefreshNow runs one decision cycle immediately, outside the ticker.
func (c *Coordinator) RefreshNow() {
	c.refresh()
}

// Current returns the held cluster and whether one exists.
func (c *Coordinator) Current() (models.Cluster, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current, c.hasCluster
}

// refresh runs one decision cycle: form when no cluster is held, optimize
// otherwise. A cluster pruned down to empty is disbanded so the next cycle
// forms a fresh one.
func (c *Coordinator) refresh() {
	devices := c.source.Snapshot()

	c.mu.Lock()
	if !c.hasCluster {
		cluster, err := c.engine.FormCluster(devices, c.maxClusterSize)
		if err != nil {
			c.mu.Unlock()
			if errors.Is(err, clustering.ErrNoDevices) {
				log.Printf("[Coordinator][%s] No neighbors visible, skipping cycle", c.nodeID)
			} else {
				log.Printf("[Coordinator][%s] Formation failed: %v", c.nodeID, err)
			}
			return
		}
		c.current = cluster
		c.hasCluster = true
		log.Printf("[Coordinator][%s] Formed cluster %s: %d members, leader=%s",
			c.nodeID, cluster.ID, len(cluster.Members), cluster.Leader.ID)
	} else {
		before := len(c.current.Members)
		previousLeader := c.current.Leader.ID

		refreshed := refreshMembers(c.current, devices)
		c.current = c.engine.OptimizeCluster(refreshed)

		if pruned := before - len(c.current.Members); pruned > 0 {
			log.Printf("[Coordinator][%s] Optimized cluster %s: pruned %d low-battery members",
				c.nodeID, c.current.ID, pruned)
		}
		if c.current.Leader.ID != previousLeader {
			log.Printf("[Coordinator][%s] Leader changed %s -> %s",
				c.nodeID, previousLeader, c.current.Leader.ID)
		}
		if c.current.Empty() {
			log.Printf("[Coordinator][%s] Cluster %s emptied, disbanding", c.nodeID, c.current.ID)
			c.hasCluster = false
		}
	}
	state := c.current
	c.mu.Unlock()

	c.publishState(state)
}

// refreshMembers overlays the latest discovery observations onto the held
// cluster so optimization sees current battery and signal readings. Members
// without a fresh observation keep their formation-time snapshot.
func refreshMembers(cluster models.Cluster, latest []models.Device) models.Cluster {
	byID := make(map[string]models.Device, len(latest))
	for _, d := range latest {
		byID[d.ID] = d
	}

	members := make([]models.Device, len(cluster.Members))
	for i, m := range cluster.Members {
		if fresh, ok := byID[m.ID]; ok {
			members[i] = fresh
		} else {
			members[i] = m
		}
	}
	cluster.Members = members

	if fresh, ok := byID[cluster.Leader.ID]; ok {
		cluster.Leader = fresh
	}
	return cluster
}

func (c *Coordinator) publishState(cluster models.Cluster) {
	payload, err := json.Marshal(cluster)
	if err != nil {
		log.Printf("[Coordinator][%s] Failed to marshal cluster state: %v", c.nodeID, err)
		return
	}
	topic := fmt.Sprintf(stateTopic, c.nodeID)
	if err := c.publisher.Publish(topic, payload, 0, true); err != nil {
		log.Printf("[Coordinator][%s] Failed to publish cluster state: %v", c.nodeID, err)
	}
}
