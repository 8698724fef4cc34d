package config

import (
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const amqpHeartbeat = 10 * time.Second

// rabbitConfig names the connection so each process is identifiable in the
// management UI.
func rabbitConfig(connectionName string) amqp.Config {
	props := amqp.NewConnectionProperties()
	props.SetClientConnectionName(connectionName)
	return amqp.Config{
		Heartbeat:  amqpHeartbeat,
		Locale:     "en_US",
		Properties: props,
	}
}

func NewRabbitMQ(cfg *Config, connectionName string) (*amqp.Connection, error) {
	conn, err := amqp.DialConfig(cfg.RabbitMQURL, rabbitConfig(connectionName))
	if err != nil {
		return nil, fmt.Errorf("rabbitmq connect %s: %w", connectionName, err)
	}
	return conn, nil
}
