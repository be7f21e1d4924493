package mqttclient

import (
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type Options struct {
	BrokerURL string
	ClientID  string
}

// Client is a thin wrapper around the paho client with the connection
// settings every meshnet process uses.
type Client struct {
	raw mqtt.Client
}

func New(opts Options) (*Client, error) {
	o := mqtt.NewClientOptions()
	o.AddBroker(opts.BrokerURL)
	o.SetClientID(opts.ClientID)
	o.SetConnectRetry(true)
	o.SetConnectRetryInterval(2 * time.Second)
	o.SetAutoReconnect(true)
	o.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("[MQTT] Connection lost: %v", err)
	})

	c := mqtt.NewClient(o)
	token := c.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return &Client{raw: c}, nil
}

func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	token := c.raw.Publish(topic, qos, retained, payload)
	token.Wait()
	return token.Error()
}

func (c *Client) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	token := c.raw.Subscribe(topic, qos, handler)
	token.Wait()
	return token.Error()
}

func (c *Client) Close() {
	c.raw.Disconnect(250)
}
