// The scanner stands in for the radio discovery subsystem: it publishes
// neighbor beacons to the mesh broker, either from scan lines read off a
// serial-attached radio module or from a simulated neighborhood.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/tarm/serial"

	"github.com/meshnet/internal/mqttclient"
	"github.com/meshnet/pkg/models"
)

func main() {
	port := flag.String("port", "/dev/ttyUSB0", "serial port of the radio module")
	baud := flag.Int("baud", 115200, "serial baud rate")
	broker := flag.String("broker", "tcp://localhost:1883", "mqtt broker")
	sim := flag.Bool("sim", true, "simulate a neighborhood instead of reading serial")
	scanInterval := flag.Duration("scan_interval", 2*time.Second, "simulated scan cadence")
	flag.Parse()

	mqttc, err := mqttclient.New(mqttclient.Options{
		BrokerURL: *broker,
		ClientID:  fmt.Sprintf("mesh-scanner-%d", time.Now().UnixNano()),
	})
	if err != nil {
		log.Fatalf("mqtt connect: %v", err)
	}
	defer mqttc.Close()

	if *sim {
		simulate(mqttc, *scanInterval)
		return
	}

	s, err := serial.OpenPort(&serial.Config{Name: *port, Baud: *baud})
	if err != nil {
		log.Fatalf("open serial: %v", err)
	}

	scanner := bufio.NewScanner(s)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		device, err := parseScanLine(line)
		if err != nil {
			log.Printf("bad scan line %q: %v", line, err)
			continue
		}
		publishBeacon(mqttc, device)
	}
	if err := scanner.Err(); err != nil {
		log.Printf("serial read err: %v", err)
	}
}

// parseScanLine decodes one neighbor report from the radio module:
//
//	id,rssi,battery,stability,cpu_cores,ram_gb,storage_gb,radio
//
// where radio is one of 5g, wifi6, wifi5 or empty.
func parseScanLine(line string) (models.Device, error) {
	parts := strings.Split(line, ",")
	if len(parts) < 7 {
		return models.Device{}, fmt.Errorf("expected at least 7 fields, got %d", len(parts))
	}

	fields := make([]float64, 6)
	for i := 0; i < 6; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[i+1]), 64)
		if err != nil {
			return models.Device{}, fmt.Errorf("field %d: %w", i+1, err)
		}
		fields[i] = v
	}

	d := models.Device{
		ID:                  strings.TrimSpace(parts[0]),
		RSSI:                fields[0],
		BatteryLevel:        fields[1],
		ConnectionStability: fields[2],
		CPUCores:            fields[3],
		RAMGB:               fields[4],
		StorageGB:           fields[5],
	}
	if d.ID == "" {
		return models.Device{}, fmt.Errorf("missing device id")
	}

	if len(parts) >= 8 {
		switch strings.ToLower(strings.TrimSpace(parts[7])) {
		case "5g":
			d.Supports5G = true
		case "wifi6":
			d.SupportsWiFi6 = true
		case "wifi5":
			d.SupportsWiFi5 = true
		}
	}
	return d, nil
}

// simulate publishes a small wandering neighborhood: signal and battery
// drift each scan so clusters form, optimize and occasionally re-elect.
func simulate(mqttc *mqttclient.Client, interval time.Duration) {
	type peer struct {
		device models.Device
		drain  float64
	}

	radios := []string{"5g", "wifi6", "wifi5", ""}
	peers := make([]*peer, 0, 5)
	for i := 0; i < 5; i++ {
		d := models.Device{
			ID:                  fmt.Sprintf("peer_%d", i+1),
			RSSI:                -30 - rand.Float64()*60,
			BatteryLevel:        40 + rand.Float64()*60,
			ConnectionStability: 0.5 + rand.Float64()*0.5,
			CPUCores:            float64(int(2) << rand.Intn(3)),
			RAMGB:               float64(int(2) << rand.Intn(4)),
			StorageGB:           float64(int(32) << rand.Intn(5)),
		}
		switch radios[rand.Intn(len(radios))] {
		case "5g":
			d.Supports5G = true
		case "wifi6":
			d.SupportsWiFi6 = true
		case "wifi5":
			d.SupportsWiFi5 = true
		}
		peers = append(peers, &peer{device: d, drain: 0.1 + rand.Float64()*0.4})
	}

	log.Printf("Simulating %d neighbors every %s", len(peers), interval)
	for {
		for _, p := range peers {
			p.device.RSSI += rand.Float64()*6 - 3
			if p.device.RSSI > -20 {
				p.device.RSSI = -20
			}
			if p.device.RSSI < -95 {
				p.device.RSSI = -95
			}
			p.device.BatteryLevel -= p.drain
			if p.device.BatteryLevel < 5 {
				p.device.BatteryLevel = 100 // recharged
			}
			publishBeacon(mqttc, p.device)
		}
		time.Sleep(interval)
	}
}

func publishBeacon(mqttc *mqttclient.Client, d models.Device) {
	payload, err := json.Marshal(d)
	if err != nil {
		log.Printf("marshal beacon: %v", err)
		return
	}
	topic := "mesh/discovery/" + d.ID
	if err := mqttc.Publish(topic, payload, 0, false); err != nil {
		log.Printf("publish err: %v", err)
	} else {
		log.Printf("beacon %s rssi=%.1f battery=%.1f", d.ID, d.RSSI, d.BatteryLevel)
	}
}
