// Package bus connects to the mesh MQTT broker. It subscribes to the node
// report topic and publishes operator commands.
package bus

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// ErrTransport is returned when the broker cannot be reached or a
// publish does not complete.
var ErrTransport = errors.New("transport failure")

// Defaults matching the mesh firmware
const (
	DefaultBroker       = "tcp://localhost:1884"
	DefaultInfoTopic    = "mesh/network/info"
	DefaultCommandTopic = "mesh/cmd"
)

// Config holds broker connection settings
type Config struct {
	Broker         string
	ClientID       string
	InfoTopic      string
	CommandTopic   string
	QoS            byte
	ConnectTimeout time.Duration
}

// MessageHandler receives every message from the info topic
type MessageHandler func(topic string, payload []byte)

// Client is a thin wrapper over a paho client
type Client struct {
	cfg     Config
	handler MessageHandler

	// newClient is mqtt.NewClient outside tests
	newClient func(*mqtt.ClientOptions) mqtt.Client

	mu         sync.RWMutex
	client     mqtt.Client
	subscribed chan mqtt.Token
}

// New creates a bus client. Nothing is dialed until Connect.
func New(cfg Config, handler MessageHandler) *Client {
	if cfg.Broker == "" {
		cfg.Broker = DefaultBroker
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "meshview-" + uuid.NewString()[:8]
	}
	if cfg.InfoTopic == "" {
		cfg.InfoTopic = DefaultInfoTopic
	}
	if cfg.CommandTopic == "" {
		cfg.CommandTopic = DefaultCommandTopic
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	return &Client{cfg: cfg, handler: handler, newClient: mqtt.NewClient}
}

// Config returns the effective settings
func (c *Client) Config() Config {
	return c.cfg
}

func (c *Client) options() *mqtt.ClientOptions {
	return mqtt.NewClientOptions().
		AddBroker(c.cfg.Broker).
		SetClientID(c.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(c.cfg.ConnectTimeout).
		SetConnectTimeout(c.cfg.ConnectTimeout).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Printf("Broker connection lost: %v", err)
		})
}

// Subscribing on every connect restores the subscription after a reconnect.
// The first subscribe token after Connect is handed to Connect.
func (c *Client) onConnect(client mqtt.Client) {
	log.Printf("Connected to broker %s", c.cfg.Broker)
	tok := client.Subscribe(c.cfg.InfoTopic, c.cfg.QoS, c.onMessage)

	c.mu.RLock()
	subscribed := c.subscribed
	c.mu.RUnlock()
	if subscribed != nil {
		select {
		case subscribed <- tok:
		default:
		}
	}

	go func() {
		tok.Wait()
		if err := tok.Error(); err != nil {
			log.Printf("Subscribe to %s failed: %v", c.cfg.InfoTopic, err)
			return
		}
		log.Printf("Subscribed to %s", c.cfg.InfoTopic)
	}()
}

func (c *Client) onMessage(_ mqtt.Client, msg mqtt.Message) {
	if c.handler == nil {
		return
	}
	c.handler(msg.Topic(), msg.Payload())
}

// Connect dials the broker and waits for the first connection and for the
// info-topic subscription, so replies to anything published afterwards are
// delivered. If ctx ends first an error is returned but the client keeps
// retrying in the background until Close.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.client != nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: already connected", ErrTransport)
	}
	subscribed := make(chan mqtt.Token, 1)
	c.subscribed = subscribed
	client := c.newClient(c.options())
	c.client = client
	c.mu.Unlock()

	if err := wait(ctx, client.Connect()); err != nil {
		return fmt.Errorf("%w: connect %s: %v", ErrTransport, c.cfg.Broker, err)
	}

	select {
	case tok := <-subscribed:
		if err := wait(ctx, tok); err != nil {
			return fmt.Errorf("%w: subscribe %s: %v", ErrTransport, c.cfg.InfoTopic, err)
		}
	case <-ctx.Done():
		return fmt.Errorf("%w: subscribe %s: %v", ErrTransport, c.cfg.InfoTopic, ctx.Err())
	}
	return nil
}

// Publish sends payload to the command topic
func (c *Client) Publish(ctx context.Context, payload []byte) error {
	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()

	if client == nil || !client.IsConnected() {
		return fmt.Errorf("%w: not connected to broker", ErrTransport)
	}
	if err := wait(ctx, client.Publish(c.cfg.CommandTopic, c.cfg.QoS, false, payload)); err != nil {
		return fmt.Errorf("%w: publish %s: %v", ErrTransport, c.cfg.CommandTopic, err)
	}
	return nil
}

// Close disconnects from the broker
func (c *Client) Close() {
	c.mu.Lock()
	client := c.client
	c.client = nil
	c.mu.Unlock()

	if client != nil {
		client.Disconnect(250)
		log.Println("Disconnected from broker")
	}
}

func wait(ctx context.Context, tok mqtt.Token) error {
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
