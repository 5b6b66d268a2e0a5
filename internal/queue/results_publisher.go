// Package queue hands settled auction results to other league systems over
// RabbitMQ.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/alanyoungcy/leagueauction/internal/crypto"
	"github.com/alanyoungcy/leagueauction/internal/domain"
)

// DefaultResultsQueue is the durable queue final rosters are published to.
const DefaultResultsQueue = "auction.results"

const resultsMessageType = "auction.results"

// ResultsPublisher publishes one persistent JSON message per finished
// auction. The connection is opened lazily and re-opened after a failed
// publish.
type ResultsPublisher struct {
	url    string
	queue  string
	signer *crypto.HMACSigner
	logger *slog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewResultsPublisher creates a publisher for the broker at url. An empty
// queue name uses DefaultResultsQueue.
func NewResultsPublisher(url, queue string, logger *slog.Logger) *ResultsPublisher {
	if queue == "" {
		queue = DefaultResultsQueue
	}
	return &ResultsPublisher{
		url:    url,
		queue:  queue,
		logger: logger.With(slog.String("component", "results_publisher")),
	}
}

// WithSigner attaches HMAC signature headers to every message.
func (p *ResultsPublisher) WithSigner(s *crypto.HMACSigner) *ResultsPublisher {
	p.signer = s
	return p
}

// PublishResults sends the results of one auction. The auction id doubles
// as the message id so consumers can drop duplicates.
func (p *ResultsPublisher) PublishResults(ctx context.Context, res domain.AuctionResults) error {
	body, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("rabbitmq: marshal results %s: %w", res.AuctionID, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return err
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    res.AuctionID,
		Type:         resultsMessageType,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if p.signer != nil {
		msg.Headers = amqp.Table{}
		for k, v := range p.signer.Headers(body) {
			msg.Headers[k] = v
		}
	}
	if err := ch.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
		p.reset()
		return fmt.Errorf("rabbitmq: publish results %s: %w", res.AuctionID, err)
	}

	p.logger.InfoContext(ctx, "auction results published",
		slog.String("auction_id", res.AuctionID),
		slog.String("queue", p.queue),
		slog.Int("rosters", len(res.Rosters)),
	)
	return nil
}

// channel returns an open channel, dialing and declaring the queue when
// needed. Callers hold p.mu.
func (p *ResultsPublisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.reset()

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq: channel open: %w", err)
	}
	if _, err := ch.QueueDeclare(
		p.queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq: queue declare %s: %w", p.queue, err)
	}

	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *ResultsPublisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

// Close releases the broker connection.
func (p *ResultsPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
	return nil
}
