package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"tfassist/internal/domain/entity"
	"tfassist/internal/domain/repository"
	"tfassist/internal/infrastructure/metrics"
)

const (
	Exchange     = "tfassist.events"
	ExchangeType = "topic"
)

// RoutingKey is terraform.<kind>.<status>, e.g. terraform.validate.failed.
func RoutingKey(rec *entity.RequestRecord) string {
	return fmt.Sprintf("terraform.%s.%s", rec.Kind, rec.Status)
}

// Publisher sends records to a durable RabbitMQ topic exchange.
type Publisher struct {
	url    string
	logger *slog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

var _ repository.RecordNotifier = (*Publisher)(nil)

func NewPublisher(url string, attempts int, logger *slog.Logger) (*Publisher, error) {
	p := &Publisher{url: url, logger: logger}
	if err := p.connect(attempts); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Publisher) connect(attempts int) error {
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		p.conn, err = amqp.Dial(p.url)
		if err == nil {
			break
		}
		p.logger.Warn("rabbitmq connection failed, retrying", "attempt", attempt, "err", err)
		if attempt < attempts {
			time.Sleep(time.Duration(attempt) * time.Second)
		}
	}
	if err != nil {
		return fmt.Errorf("rabbitmq connect after %d attempts: %w", attempts, err)
	}

	p.ch, err = p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}

	return p.ch.ExchangeDeclare(
		Exchange,
		ExchangeType,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
}

func (p *Publisher) Notify(ctx context.Context, rec *entity.RequestRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	// amqp channels are not safe for concurrent publishing
	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.ch.PublishWithContext(ctx,
		Exchange,
		RoutingKey(rec),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    rec.ID,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		metrics.IncError("amqp_publisher", "publish")
		return fmt.Errorf("publish %s: %w", rec.ID, err)
	}
	return nil
}

func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}
