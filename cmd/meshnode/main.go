package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/meshnet/internal/api"
	"github.com/meshnet/internal/coordinator"
	"github.com/meshnet/internal/discovery"
	"github.com/meshnet/internal/mqttclient"
	"github.com/meshnet/internal/websocket"
	"github.com/meshnet/pkg/clustering"
)

func main() {
	nodeID := flag.String("node_id", "node1", "node identifier (must be unique)")
	broker := flag.String("broker", "tcp://localhost:1883", "MQTT broker URL")
	port := flag.Int("port", 8080, "HTTP port for the status API")
	interval := flag.Duration("interval", 5*time.Second, "cluster refresh interval")
	ttl := flag.Duration("peer_ttl", 15*time.Second, "discard peers not heard within this window")
	maxSize := flag.Int("max_cluster_size", 8, "maximum cluster size")
	minBattery := flag.Float64("min_battery", clustering.DefaultMinBatteryLevel, "battery percentage below which members are pruned")
	flag.Parse()

	log.Printf("Starting mesh node %s (broker=%s)", *nodeID, *broker)

	mqttc, err := mqttclient.New(mqttclient.Options{
		BrokerURL: *broker,
		ClientID:  fmt.Sprintf("meshnode-%s-%d", *nodeID, time.Now().UnixNano()),
	})
	if err != nil {
		log.Fatalf("MQTT client error: %v", err)
	}
	defer mqttc.Close()

	registry := discovery.New(mqttc, *nodeID, *ttl)
	if err := registry.Start(); err != nil {
		log.Fatalf("Discovery error: %v", err)
	}

	engine, err := clustering.NewEngine(clustering.Config{MinBatteryLevel: *minBattery})
	if err != nil {
		log.Fatalf("Engine config error: %v", err)
	}

	coord := coordinator.New(*nodeID, registry, mqttc, engine, *interval, *maxSize)
	coord.Start()
	defer coord.Stop()

	// The dashboard feed gets its own broker session so a slow websocket
	// consumer never backs up the node's own subscription.
	wsClient, err := mqttclient.New(mqttclient.Options{
		BrokerURL: *broker,
		ClientID:  fmt.Sprintf("meshnode-ws-%s-%d", *nodeID, time.Now().UnixNano()),
	})
	var hub *websocket.Hub
	if err != nil {
		log.Printf("[WebSocket] Disabled, MQTT client error: %v", err)
	} else {
		defer wsClient.Close()
		hub = websocket.NewHub(wsClient)
		go hub.Run()
	}

	server := api.New(*nodeID, coord, registry, hub)
	go func() {
		if err := server.Start(*port); err != nil {
			log.Fatalf("API server error: %v", err)
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	log.Printf("[%s] Shutting down...", *nodeID)
}
