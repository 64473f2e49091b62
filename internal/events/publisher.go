package events

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const defaultQueue = "user.events"

type Config struct {
	URL   string
	Queue string
}

// ConfigFromEnv reads RABBITMQ_URL (or AMQP_URL) and AMQP_QUEUE. An empty URL
// means events are only logged.
func ConfigFromEnv() Config {
	url := os.Getenv("RABBITMQ_URL")
	if url == "" {
		url = os.Getenv("AMQP_URL")
	}
	q := os.Getenv("AMQP_QUEUE")
	if q == "" {
		q = defaultQueue
	}
	return Config{URL: url, Queue: q}
}

// LogPublisher writes every event to the structured log.
type LogPublisher struct {
	logger *zap.SugaredLogger
}

func NewLogPublisher(logger *zap.SugaredLogger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, e Event) error {
	p.logger.Infow("user event",
		"event_id", e.ID,
		"type", e.Type,
		"user_id", e.UserID,
		"email", e.Email,
	)
	return nil
}

// AMQPPublisher publishes events as persistent JSON messages to a durable
// queue on the default exchange. One connection is shared; each publish opens
// its own short-lived channel so concurrent requests never share one.
type AMQPPublisher struct {
	queue  string
	logger *zap.SugaredLogger

	mu   sync.Mutex
	conn *amqp.Connection
}

func NewAMQPPublisher(cfg Config, logger *zap.SugaredLogger) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	queue := cfg.Queue
	if queue == "" {
		queue = defaultQueue
	}
	p := &AMQPPublisher{queue: queue, logger: logger, conn: conn}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	defer ch.Close()
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp queue declare: %w", err)
	}
	return p, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn == nil || conn.IsClosed() {
		p.logger.Warnw("amqp connection closed; dropping event", "type", e.Type, "event_id", e.ID)
		return amqp.ErrClosed
	}

	ch, err := conn.Channel()
	if err != nil {
		p.logger.Warnw("amqp channel open failed", "err", err)
		return err
	}
	defer ch.Close()

	err = ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    e.ID,
		Type:         e.Type,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		p.logger.Warnw("amqp publish failed", "type", e.Type, "err", err)
		return err
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil
	return err
}

// Multi fans an event out to several publishers and returns the first error.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var first error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}
