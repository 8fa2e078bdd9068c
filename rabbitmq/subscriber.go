package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"citypulse/metrics"
	"citypulse/models"

	"github.com/streadway/amqp"
)

const defaultConcurrency = 4

// TaskHandler processes one classification task. A nil return Acks the
// delivery; an error Nacks it with a single requeue, after which the
// redelivered copy is dropped.
type TaskHandler func(ctx context.Context, task models.ClassifyTask) error

// Subscriber consumes classification tasks with a small worker pool.
type Subscriber struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string

	handler     TaskHandler
	concurrency int

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewSubscriber connects, declares the durable queue and binds it to the
// exchange under the given routing key.
func NewSubscriber(amqpURL, exchangeName, queueName, routingKey string, handler TaskHandler) (*Subscriber, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = channel.ExchangeDeclare(exchangeName, "direct", true, false, false, false, nil)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	_, err = channel.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // auto-delete
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := channel.QueueBind(queueName, routingKey, exchangeName, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}

	if err := channel.Qos(defaultConcurrency, 0, false); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	metrics.RabbitMQConnected.Set(1)
	metrics.RabbitMQLastConnectSeconds.Set(metrics.NowUnixSeconds())

	return &Subscriber{
		conn:        conn,
		channel:     channel,
		queue:       queueName,
		handler:     handler,
		concurrency: defaultConcurrency,
	}, nil
}

// Start launches the worker pool. It returns immediately; workers run until
// Stop is called or the channel closes.
func (s *Subscriber) Start(ctx context.Context) error {
	deliveries, err := s.channel.Consume(
		s.queue, // queue
		"",      // consumer tag
		false,   // auto-ack
		false,   // exclusive
		false,   // no-local
		false,   // no-wait
		nil,     // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	ctx, s.cancel = context.WithCancel(ctx)
	for i := 0; i < s.concurrency; i++ {
		s.wg.Add(1)
		go s.worker(ctx, deliveries)
	}

	log.Printf("rabbitmq: consuming %s with %d workers", s.queue, s.concurrency)
	return nil
}

func (s *Subscriber) worker(ctx context.Context, deliveries <-chan amqp.Delivery) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case delivery, ok := <-deliveries:
			if !ok {
				metrics.RabbitMQConnected.Set(0)
				return
			}
			s.handle(ctx, delivery)
		}
	}
}

func (s *Subscriber) handle(ctx context.Context, delivery amqp.Delivery) {
	var task models.ClassifyTask
	if err := json.Unmarshal(delivery.Body, &task); err != nil {
		log.Printf("rabbitmq: dropping malformed task: %v", err)
		if err := delivery.Nack(false, false); err != nil {
			log.Printf("rabbitmq: nack error: %v", err)
		}
		return
	}

	if err := s.handler(ctx, task); err != nil {
		// One requeue per delivery; the broker flags the retry copy as
		// redelivered so we do not loop forever on a poison task.
		requeue := !delivery.Redelivered
		log.Printf("rabbitmq: task for issue %d failed (requeue=%v): %v", task.IssueID, requeue, err)
		if err := delivery.Nack(false, requeue); err != nil {
			log.Printf("rabbitmq: nack error: %v", err)
		}
		return
	}

	if err := delivery.Ack(false); err != nil {
		log.Printf("rabbitmq: ack error: %v", err)
	}
}

// Stop cancels the workers, waits for in-flight tasks and closes the
// connection.
func (s *Subscriber) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()

	metrics.RabbitMQConnected.Set(0)

	if s.channel != nil {
		s.channel.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
