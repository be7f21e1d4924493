package coordinator

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/meshnet/pkg/clustering"
	"github.com/meshnet/pkg/models"
)

type fakeSource struct {
	devices []models.Device
}

func (f *fakeSource) Snapshot() []models.Device {
	out := make([]models.Device, len(f.devices))
	copy(out, f.devices)
	return out
}

type fakePublisher struct {
	topics   []string
	payloads [][]byte
}

func (f *fakePublisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	f.topics = append(f.topics, topic)
	f.payloads = append(f.payloads, payload)
	return nil
}

func newTestCoordinator(t *testing.T, source *fakeSource, publisher *fakePublisher) *Coordinator {
	t.Helper()
	engine, err := clustering.NewEngine(clustering.Config{
		IDGenerator: clustering.IDGeneratorFunc(func() string { return "cluster_fixed" }),
	})
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	return New("node1", source, publisher, engine, time.Second, 5)
}

// TestCoordinator_Refresh tests the form/optimize decision cycle
func TestCoordinator_Refresh(t *testing.T) {
	t.Run("first cycle forms and publishes a cluster", func(t *testing.T) {
		source := &fakeSource{devices: []models.Device{
			{ID: "A", RSSI: -40, BatteryLevel: 90, ConnectionStability: 0.9},
			{ID: "B", RSSI: -70, BatteryLevel: 95, ConnectionStability: 0.95},
		}}
		publisher := &fakePublisher{}
		coord := newTestCoordinator(t, source, publisher)

		coord.refresh()

		cluster, ok := coord.Current()
		if !ok {
			t.Fatal("Expected a cluster after the first cycle")
		}
		if len(cluster.Members) != 2 {
			t.Errorf("Expected 2 members, got %d", len(cluster.Members))
		}
		if cluster.Leader.ID != "A" {
			t.Errorf("Expected leader A, got %s", cluster.Leader.ID)
		}

		if len(publisher.topics) != 1 {
			t.Fatalf("Expected 1 published state, got %d", len(publisher.topics))
		}
		if !strings.Contains(publisher.topics[0], "node1") {
			t.Errorf("Expected per-node topic, got %s", publisher.topics[0])
		}

		var published models.Cluster
		if err := json.Unmarshal(publisher.payloads[0], &published); err != nil {
			t.Fatalf("Published state is not valid JSON: %v", err)
		}
		if published.ID != "cluster_fixed" {
			t.Errorf("Expected published cluster id cluster_fixed, got %s", published.ID)
		}
	})

	t.Run("no neighbors means no cluster and no publish", func(t *testing.T) {
		source := &fakeSource{}
		publisher := &fakePublisher{}
		coord := newTestCoordinator(t, source, publisher)

		coord.refresh()

		if _, ok := coord.Current(); ok {
			t.Error("Expected no cluster with an empty neighborhood")
		}
		if len(publisher.topics) != 0 {
			t.Errorf("Expected no publishes, got %d", len(publisher.topics))
		}
	})

	t.Run("later cycles optimize with refreshed readings", func(t *testing.T) {
		source := &fakeSource{devices: []models.Device{
			{ID: "A", RSSI: -40, BatteryLevel: 90, ConnectionStability: 0.9},
			{ID: "B", RSSI: -70, BatteryLevel: 95, ConnectionStability: 0.95},
		}}
		publisher := &fakePublisher{}
		coord := newTestCoordinator(t, source, publisher)

		coord.refresh()

		// A's battery drains below the pruning threshold between cycles.
		source.devices[0].BatteryLevel = 5
		coord.refresh()

		cluster, ok := coord.Current()
		if !ok {
			t.Fatal("Expected the cluster to survive optimization")
		}
		if len(cluster.Members) != 1 || cluster.Members[0].ID != "B" {
			t.Fatalf("Expected members [B], got %+v", cluster.Members)
		}
		if cluster.Leader.ID != "B" {
			t.Errorf("Expected re-elected leader B, got %s", cluster.Leader.ID)
		}
		if cluster.ID != "cluster_fixed" {
			t.Errorf("Optimization must not regenerate the id, got %s", cluster.ID)
		}
	})

	t.Run("emptied cluster disbands and reforms next cycle", func(t *testing.T) {
		source := &fakeSource{devices: []models.Device{
			{ID: "A", RSSI: -40, BatteryLevel: 90},
		}}
		publisher := &fakePublisher{}
		coord := newTestCoordinator(t, source, publisher)

		coord.refresh()
		source.devices[0].BatteryLevel = 2
		coord.refresh()

		if _, ok := coord.Current(); ok {
			t.Error("Expected the emptied cluster to disband")
		}

		source.devices[0].BatteryLevel = 80
		coord.refresh()

		cluster, ok := coord.Current()
		if !ok {
			t.Fatal("Expected a fresh cluster once the neighbor recovered")
		}
		if len(cluster.Members) != 1 || cluster.Members[0].ID != "A" {
			t.Errorf("Expected members [A], got %+v", cluster.Members)
		}
	})

	t.Run("members missing a fresh observation are kept as-is", func(t *testing.T) {
		source := &fakeSource{devices: []models.Device{
			{ID: "A", RSSI: -40, BatteryLevel: 90},
			{ID: "B", RSSI: -70, BatteryLevel: 95},
		}}
		publisher := &fakePublisher{}
		coord := newTestCoordinator(t, source, publisher)

		coord.refresh()

		// B stops beaconing but its last snapshot is still healthy.
		source.devices = source.devices[:1]
		coord.refresh()

		cluster, _ := coord.Current()
		if !cluster.HasMember("B") {
			t.Error("Member without a fresh observation should keep its snapshot")
		}
	})
}
