package config

import (
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTSettings selects the broker and session of one process. With
// PersistentSession the broker keeps the client's subscriptions across
// reconnects and paho resumes them.
type MQTTSettings struct {
	Broker            string
	ClientID          string
	PersistentSession bool
}

func mqttOptions(s MQTTSettings, logger *slog.Logger) *mqtt.ClientOptions {
	return mqtt.NewClientOptions().
		AddBroker(s.Broker).
		SetClientID(s.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second).
		SetCleanSession(!s.PersistentSession).
		SetResumeSubs(s.PersistentSession).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("mqtt connection lost", "client_id", s.ClientID, "error", err)
		}).
		SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
			logger.Info("mqtt reconnecting", "client_id", s.ClientID)
		})
}

func NewMQTT(s MQTTSettings, logger *slog.Logger) (mqtt.Client, error) {
	client := mqtt.NewClient(mqttOptions(s, logger))
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", s.Broker, token.Error())
	}
	return client, nil
}
