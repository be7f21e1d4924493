// Package websocket feeds live cluster state to dashboard clients. The hub
// subscribes to every node's cluster topic on the broker and fans updates
// out to connected websockets.
package websocket

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"

	"github.com/meshnet/internal/mqttclient"
	"github.com/meshnet/pkg/models"
)

const clusterStateTopic = "mesh/cluster/+/state"

var upgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// ClusterUpdate is the message broadcast to dashboard clients whenever a
// node publishes new cluster state.
type ClusterUpdate struct {
	NodeID     string         `json:"node_id"`
	Cluster    models.Cluster `json:"cluster"`
	ReceivedAt time.Time      `json:"received_at"`
}

type Hub struct {
	clients    map[*Client]bool
	broadcast  chan ClusterUpdate
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	mqttClient *mqttclient.Client
}

type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan ClusterUpdate
}

func NewHub(mqttClient *mqttclient.Client) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan ClusterUpdate, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		mqttClient: mqttClient,
	}
}

func (h *Hub) Run() {
	if err := h.mqttClient.Subscribe(clusterStateTopic, 0, h.handleClusterState); err != nil {
		log.Printf("[WebSocket] Failed to subscribe to %s: %v", clusterStateTopic, err)
	} else {
		log.Printf("[WebSocket] Subscribed to %s", clusterStateTopic)
	}

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			log.Printf("[WebSocket] Client connected. Total clients: %d", total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			log.Printf("[WebSocket] Client disconnected. Total clients: %d", total)

		case update := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- update:
				default:
					// slow client, drop the update rather than block the hub
				}
			}
			h.mu.RUnlock()
		}
	}
}

// handleClusterState decodes a node's published cluster and queues it for
// broadcast. The node id comes from the topic: mesh/cluster/<node>/state.
func (h *Hub) handleClusterState(_ mqtt.Client, msg mqtt.Message) {
	var cluster models.Cluster
	if err := json.Unmarshal(msg.Payload(), &cluster); err != nil {
		log.Printf("[WebSocket] Failed to parse cluster state: %v", err)
		return
	}

	update := ClusterUpdate{
		NodeID:     nodeIDFromTopic(msg.Topic()),
		Cluster:    cluster,
		ReceivedAt: time.Now(),
	}

	select {
	case h.broadcast <- update:
	default:
		log.Printf("[WebSocket] Broadcast channel full, dropping update")
	}
}

func nodeIDFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) == 4 {
		return parts[2]
	}
	return ""
}

// ServeWS upgrades an HTTP request to a websocket and attaches it to the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WebSocket] Failed to upgrade connection: %v", err)
		return
	}

	client := &Client{hub: h, conn: conn, send: make(chan ClusterUpdate, 64)}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[WebSocket] Read error: %v", err)
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case update, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			data, err := json.Marshal(update)
			if err != nil {
				log.Printf("[WebSocket] Failed to marshal update: %v", err)
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// GetClientCount returns the number of connected dashboard clients.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
