// Package eventbus wraps the MQTT connection to the local broker and
// relays history events into the ingest writer.
package eventbus

import (
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const publishTimeout = 5 * time.Second

// Options configures the eventbus connection.
type Options struct {
	// URL is the broker address, e.g. "tcp://eventbus:1883".
	URL string
	// ClientID is prefixed to a random suffix to avoid collisions
	// between restarted instances.
	ClientID string
	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Client is a thin wrapper over the paho MQTT client.
type Client struct {
	mqtt mqtt.Client
	log  *slog.Logger
}

// Connect dials the broker. The underlying client keeps retrying and
// reconnecting in the background; publishes during a disconnect fail
// fast and are treated as best-effort by callers.
func Connect(opts Options) (*Client, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	clientID := fmt.Sprintf("%s-%s", opts.ClientID, uuid.NewString()[:8])
	conf := mqtt.NewClientOptions().
		AddBroker(opts.URL).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(2 * time.Second).
		SetOnConnectHandler(func(mqtt.Client) {
			log.Info("eventbus connected", "url", opts.URL)
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn("eventbus connection lost", "error", err)
		})

	client := mqtt.NewClient(conf)
	token := client.Connect()
	// With connect retry enabled the token only fails on fatal
	// configuration errors; a down broker is retried in the background.
	if token.WaitTimeout(time.Second) && token.Error() != nil {
		return nil, fmt.Errorf("eventbus connect: %w", token.Error())
	}
	return &Client{mqtt: client, log: log}, nil
}

// Publish sends one message with QoS 0.
func (c *Client) Publish(topic string, payload []byte) error {
	token := c.mqtt.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	return token.Error()
}

// Subscribe registers a handler for a topic filter. Handlers run on the
// paho router goroutine and must not block.
func (c *Client) Subscribe(filter string, handler func(topic string, payload []byte)) error {
	token := c.mqtt.Subscribe(filter, 0, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe to %s: %w", filter, err)
	}
	c.log.Info("eventbus subscribed", "filter", filter)
	return nil
}

// Close disconnects from the broker.
func (c *Client) Close() {
	c.mqtt.Disconnect(250)
}
