// Package discovery is the input boundary of the clustering core: it ingests
// neighbor beacons published by the radio scanner and maintains the freshest
// snapshot per peer. The clustering engine consumes immutable copies of this
// view once per decision cycle.
package discovery

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/meshnet/internal/mqttclient"
	"github.com/meshnet/pkg/models"
)

const beaconTopic = "mesh/discovery/#"

type observation struct {
	device models.Device
	seenAt time.Time
}

// Registry tracks the devices currently visible to this node. Peers not
// heard from within the TTL are dropped from snapshots.
type Registry struct {
	mqtt   *mqttclient.Client
	nodeID string
	ttl    time.Duration
	mu     sync.Mutex
	peers  map[string]observation
	now    func() time.Time
}

func New(m *mqttclient.Client, nodeID string, ttl time.Duration) *Registry {
	return &Registry{
		mqtt:   m,
		nodeID: nodeID,
		ttl:    ttl,
		peers:  make(map[string]observation),
		now:    time.Now,
	}
}

// Start subscribes to the beacon topic.
func (r *Registry) Start() error {
	if err := r.mqtt.Subscribe(beaconTopic, 0, r.handle); err != nil {
		return fmt.Errorf("subscribe %s: %w", beaconTopic, err)
	}
	log.Printf("[Discovery][%s] Listening for neighbor beacons on %s", r.nodeID, beaconTopic)
	return nil
}

func (r *Registry) handle(_ mqtt.Client, msg mqtt.Message) {
	if err := r.ingest(msg.Payload()); err != nil {
		log.Printf("[Discovery][%s] Dropping beacon: %v", r.nodeID, err)
	}
}

func (r *Registry) ingest(payload []byte) error {
	var d models.Device
	if err := json.Unmarshal(payload, &d); err != nil {
		return fmt.Errorf("parse beacon: %w", err)
	}
	if d.ID == "" {
		return fmt.Errorf("beacon missing device id")
	}
	r.Observe(d)
	return nil
}

// Observe records a fresh snapshot of a peer. The node's own beacon is
// ignored: a node does not cluster with itself.
func (r *Registry) Observe(d models.Device) {
	if d.ID == r.nodeID {
		return
	}
	r.mu.Lock()
	r.peers[d.ID] = observation{device: d, seenAt: r.now()}
	r.mu.Unlock()
}

// Snapshot returns a fresh copy of every device heard within the TTL window,
// expiring the rest. Callers own the returned slice.
func (r *Registry) Snapshot() []models.Device {
	cutoff := r.now().Add(-r.ttl)

	r.mu.Lock()
	defer r.mu.Unlock()

	devices := make([]models.Device, 0, len(r.peers))
	for id, obs := range r.peers {
		if obs.seenAt.Before(cutoff) {
			delete(r.peers, id)
			continue
		}
		devices = append(devices, obs.device)
	}
	return devices
}

// PeerCount returns the number of tracked peers, including any not yet
// expired by a Snapshot call.
func (r *Registry) PeerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}
