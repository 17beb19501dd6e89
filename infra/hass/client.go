package hass

import (
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Client is the minimal MQTT surface the bridge needs. Tests substitute an
// in-memory implementation.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload string) error
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error
	Close()
}

type pahoClient struct {
	client mqtt.Client
}

// Connect dials the broker and returns a connected client.
func Connect(cfg Config) (Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetConnectTimeout(5 * time.Second).
		SetAutoReconnect(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return &pahoClient{client: client}, nil
}

func (p *pahoClient) Publish(topic string, qos byte, retained bool, payload string) error {
	token := p.client.Publish(topic, qos, retained, payload)
	token.Wait()
	return token.Error()
}

func (p *pahoClient) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	token := p.client.Subscribe(topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	token.Wait()
	return token.Error()
}

func (p *pahoClient) Close() {
	if p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}
