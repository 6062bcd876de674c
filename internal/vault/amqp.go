package vault

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	dErrors "attesto/pkg/domain-errors"
)

const (
	// DefaultExchange is the direct exchange delete instructions publish to.
	DefaultExchange = "attesto.vault"
	// DefaultQueue is bound to the exchange at startup so instructions
	// published before any storage worker connects are not lost.
	DefaultQueue = "attesto.vault.delete"
	// DefaultRoutingKey routes instructions to the delete queue.
	DefaultRoutingKey = "vault.delete"
)

// AMQPNotifier publishes delete instructions to a RabbitMQ exchange as
// persistent JSON messages. The queue topology is declared on construction,
// so publisher and storage worker agree on it regardless of start order.
type AMQPNotifier struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	queue      string
	routingKey string
}

type AMQPOption func(n *AMQPNotifier)

func WithExchange(exchange string) AMQPOption {
	return func(n *AMQPNotifier) {
		if exchange != "" {
			n.exchange = exchange
		}
	}
}

func WithQueue(queue string) AMQPOption {
	return func(n *AMQPNotifier) {
		if queue != "" {
			n.queue = queue
		}
	}
}

func WithRoutingKey(key string) AMQPOption {
	return func(n *AMQPNotifier) {
		if key != "" {
			n.routingKey = key
		}
	}
}

// NewAMQPNotifier dials the broker and declares the durable exchange, queue,
// and binding delete instructions travel over.
func NewAMQPNotifier(url string, opts ...AMQPOption) (*AMQPNotifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to connect to vault broker")
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to open vault channel")
	}

	n := &AMQPNotifier{
		conn:       conn,
		channel:    channel,
		exchange:   DefaultExchange,
		queue:      DefaultQueue,
		routingKey: DefaultRoutingKey,
	}
	for _, opt := range opts {
		opt(n)
	}

	if err := channel.ExchangeDeclare(n.exchange, "direct", true, false, false, false, nil); err != nil {
		n.Close()
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to declare vault exchange")
	}
	if _, err := channel.QueueDeclare(n.queue, true, false, false, false, nil); err != nil {
		n.Close()
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to declare vault queue")
	}
	if err := channel.QueueBind(n.queue, n.routingKey, n.exchange, false, nil); err != nil {
		n.Close()
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to bind vault queue")
	}
	return n, nil
}

// NotifyDelete publishes the instruction with persistent delivery so it
// survives a broker restart while waiting for the storage worker.
func (n *AMQPNotifier) NotifyDelete(ctx context.Context, instruction DeleteInstruction) error {
	body, err := json.Marshal(instruction)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode delete instruction")
	}
	err = n.channel.PublishWithContext(ctx, n.exchange, n.routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		Timestamp:    time.Now().UTC(),
		DeliveryMode: amqp.Persistent,
		MessageId:    instruction.TokenID.String(),
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to publish delete instruction")
	}
	return nil
}

// Close releases the channel and connection.
func (n *AMQPNotifier) Close() {
	if n.channel != nil {
		_ = n.channel.Close()
	}
	if n.conn != nil {
		_ = n.conn.Close()
	}
}
