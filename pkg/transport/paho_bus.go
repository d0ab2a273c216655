package transport

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// PahoOptions configures the production MQTT-backed Bus.
type PahoOptions struct {
	Broker     string // e.g. tcp://broker.internal:1883
	ClientID   string
	ConnectWait time.Duration
	TLSConfig  *tls.Config
	Logger     *slog.Logger
}

// pahoBus wraps a paho.mqtt.golang client behind the Bus interface.
type pahoBus struct {
	client mqtt.Client
	logger *slog.Logger
}

// NewPahoBus connects to the broker described by opts and returns a
// ready Bus, or an error if the connection could not be established
// within ConnectWait.
func NewPahoBus(opts PahoOptions) (Bus, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(false). // reconnection is the agent's 3-strike keepalive responsibility
		SetCleanSession(true).
		SetConnectTimeout(opts.ConnectWait).
		SetOnConnectHandler(func(mqtt.Client) {
			logger.Info("transport: connected", "broker", opts.Broker, "client_id", opts.ClientID)
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("transport: connection lost", "error", err)
		})

	if opts.TLSConfig != nil {
		clientOpts.SetTLSConfig(opts.TLSConfig)
	}

	client := mqtt.NewClient(clientOpts)
	token := client.Connect()
	wait := opts.ConnectWait
	if wait <= 0 {
		wait = 5 * time.Second
	}
	if !token.WaitTimeout(wait) {
		return nil, fmt.Errorf("transport: connect to %s timed out after %s", opts.Broker, wait)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("transport: connect to %s: %w", opts.Broker, err)
	}

	return &pahoBus{client: client, logger: logger}, nil
}

func (b *pahoBus) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := b.client.Publish(topic, qos, retained, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("transport: publish %s: %w", topic, err)
	}
	return nil
}

func (b *pahoBus) Subscribe(topic string, handler func(topic string, payload []byte)) error {
	token := b.client.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("transport: subscribe %s: %w", topic, err)
	}
	return nil
}

func (b *pahoBus) Unsubscribe(topic string) error {
	token := b.client.Unsubscribe(topic)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("transport: unsubscribe %s: %w", topic, err)
	}
	return nil
}

func (b *pahoBus) Disconnect(quiesceMillis uint) {
	b.client.Disconnect(quiesceMillis)
}
