// Package amqp publishes and consumes the pipeline's refresh messages.
package amqp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

const (
	// Routing keys double as queue names on the direct exchange.
	RefreshRequestQueue    = "refresh_requests"
	SnapshotRefreshedQueue = "snapshot_refreshed"
)

type Client struct {
	conn         *amqp091.Connection
	channel      *amqp091.Channel
	exchangeName string
}

func NewClient(url, exchangeName string) (*Client, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	client := &Client{
		conn:         conn,
		channel:      channel,
		exchangeName: exchangeName,
	}

	if err := client.setup(); err != nil {
		client.Close()
		return nil, fmt.Errorf("setup exchange and queues: %w", err)
	}

	return client, nil
}

func (c *Client) setup() error {
	err := c.channel.ExchangeDeclare(
		c.exchangeName, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	for _, queue := range []string{RefreshRequestQueue, SnapshotRefreshedQueue} {
		if _, err := c.channel.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", queue, err)
		}
		if err := c.channel.QueueBind(queue, queue, c.exchangeName, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", queue, err)
		}
	}

	return nil
}

// PublishRefreshRequest asks the worker to rebuild the snapshot.
func (c *Client) PublishRefreshRequest(ctx context.Context, requestedBy string) error {
	body, err := NewRefreshRequest(requestedBy).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal refresh request: %w", err)
	}
	if err := c.publish(ctx, RefreshRequestQueue, body); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Published refresh request", "requested_by", requestedBy)
	return nil
}

// PublishSnapshotRefreshed announces a rebuilt snapshot.
func (c *Client) PublishSnapshotRefreshed(ctx context.Context, msg *SnapshotRefreshed) error {
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal snapshot refreshed: %w", err)
	}
	if err := c.publish(ctx, SnapshotRefreshedQueue, body); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Published snapshot refreshed",
		"pledges", msg.Pledges,
		"payments", msg.Payments)
	return nil
}

func (c *Client) publish(ctx context.Context, routingKey string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := c.channel.PublishWithContext(
		ctx,
		c.exchangeName,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish to %s: %w", routingKey, err)
	}
	return nil
}

// ConsumeRefreshRequests delivers each refresh request to handler until the
// context is cancelled. Handler errors nack the message without requeueing:
// a failed rebuild retries on the next request, not in a loop.
func (c *Client) ConsumeRefreshRequests(ctx context.Context, handler func(context.Context, *RefreshRequest) error) error {
	deliveries, err := c.channel.Consume(
		RefreshRequestQueue,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("consume %s: %w", RefreshRequestQueue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			msg, err := RefreshRequestFromJSON(delivery.Body)
			if err != nil {
				slog.WarnContext(ctx, "Discarding malformed refresh request", "error", err)
				delivery.Nack(false, false)
				continue
			}
			if err := handler(ctx, msg); err != nil {
				slog.ErrorContext(ctx, "Refresh request failed", "error", err)
				delivery.Nack(false, false)
				continue
			}
			delivery.Ack(false)
		}
	}
}

func (c *Client) Close() error {
	var errs []error
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("channel: %w", err))
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("connection: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close amqp client: %v", errs)
	}
	return nil
}
