package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/propsearch/poolcore/internal/logging"
)

// Routing keys for the operational events exchange. The exchange itself is
// declared as a topic exchange so a dashboard can bind on "scaling.#" or
// "health.#" independently.
const (
	ScalingRoutingKey = "scaling.applied"
	HealthRoutingKey  = "health.transition"
)

// AMQPConfig configures the publisher connection.
type AMQPConfig struct {
	URL      string
	Exchange string
}

// AMQPPublisher republishes scaling/health events onto a topic exchange for
// an external operations dashboard. This is an observability convenience:
// no component reads pool state back from the bus, so publish failures are
// logged and swallowed rather than surfaced to callers.
type AMQPPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	log      *logging.Logger
}

// NewAMQPPublisher dials url and declares a durable topic exchange named by
// cfg.Exchange.
func NewAMQPPublisher(cfg AMQPConfig, log *logging.Logger) (*AMQPPublisher, error) {
	conn, err := amqp.DialConfig(cfg.URL, amqp.Config{Heartbeat: 10 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("notify: dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("notify: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("notify: declare exchange: %w", err)
	}

	return &AMQPPublisher{conn: conn, channel: ch, exchange: cfg.Exchange, log: log}, nil
}

func (p *AMQPPublisher) publish(routingKey string, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err = p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
		Timestamp:   time.Now(),
	})
	if err != nil && p.log != nil {
		p.log.WithError(err).Warn("notify: amqp publish failed")
	}
}

func (p *AMQPPublisher) OnPoolScaled(e ScalingEvent)           { p.publish(ScalingRoutingKey, e) }
func (p *AMQPPublisher) OnSlowRequest(e SlowRequestEvent)      { p.publish("request.slow", e) }
func (p *AMQPPublisher) OnHighUtilization(e HighUtilizationEvent) { p.publish("pool.high_utilization", e) }

// Close tears down the channel and connection.
func (p *AMQPPublisher) Close() error {
	p.channel.Close()
	return p.conn.Close()
}
