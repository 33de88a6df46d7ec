// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

package events

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	natsgo "github.com/nats-io/nats.go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/recordsync/internal/config"
	"github.com/tomtom215/recordsync/internal/logging"
	"github.com/tomtom215/recordsync/internal/metrics"
	recsync "github.com/tomtom215/recordsync/internal/sync"
)

// DefaultTopic is used when no topic is configured.
const DefaultTopic = "sync_completed"

// Metadata keys set on every outcome message.
const (
	MetadataCollection = "collection"
	MetadataSuccess    = "success"
	MetadataRunID      = "run_id"
)

// ErrPublisherClosed is returned by PublishOutcome after Close.
var ErrPublisherClosed = errors.New("publisher is closed")

// Publisher publishes sync outcomes. It implements sync.OutcomePublisher.
type Publisher struct {
	publisher message.Publisher
	topic     string
	breaker   *gobreaker.CircuitBreaker[struct{}]

	mu     sync.RWMutex
	closed bool
}

// NewPublisher wraps any Watermill publisher.
func NewPublisher(pub message.Publisher, topic string) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Publisher{
		publisher: pub,
		topic:     topic,
		breaker:   newBreaker(),
	}
}

func newBreaker() *gobreaker.CircuitBreaker[struct{}] {
	return gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "event-publisher",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Event publisher circuit breaker state changed")
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})
}

// NewNATSPublisher connects to cfg.URL and publishes with JetStream,
// provisioning the stream on first use.
func NewNATSPublisher(cfg config.NATSConfig, logger watermill.LoggerAdapter) (*Publisher, error) {
	if logger == nil {
		logger = logging.NewWatermillLogger()
	}

	natsOpts := []natsgo.Option{
		natsgo.Name("recordsync"),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{
				"url": nc.ConnectedUrl(),
			})
		}),
	}

	wmConfig := wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:      false,
			AutoProvision: true,
			TrackMsgId:    true,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}

	pub, err := wmNats.NewPublisher(wmConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill publisher: %w", err)
	}

	logging.Info().Str("url", cfg.URL).Str("topic", cfg.Topic).Msg("NATS outcome publisher connected")
	return NewPublisher(pub, cfg.Topic), nil
}

// Topic returns the topic outcomes are published to.
func (p *Publisher) Topic() string {
	return p.topic
}

// NewOutcomeMessage encodes out as a Watermill message with a fresh id.
func NewOutcomeMessage(out recsync.Outcome) (*message.Message, error) {
	return newOutcomeMessage(watermill.NewUUID(), out)
}

func newOutcomeMessage(id string, out recsync.Outcome) (*message.Message, error) {
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("marshal outcome: %w", err)
	}
	msg := message.NewMessage(id, data)
	msg.Metadata.Set(MetadataCollection, out.Collection)
	msg.Metadata.Set(MetadataSuccess, strconv.FormatBool(out.Success))
	msg.Metadata.Set(MetadataRunID, out.RunID)
	// JetStream deduplication.
	msg.Metadata.Set(natsgo.MsgIdHdr, msg.UUID)
	return msg, nil
}

// DecodeOutcome is the inverse of NewOutcomeMessage.
func DecodeOutcome(msg *message.Message) (recsync.Outcome, error) {
	var out recsync.Outcome
	if err := json.Unmarshal(msg.Payload, &out); err != nil {
		return recsync.Outcome{}, fmt.Errorf("unmarshal outcome: %w", err)
	}
	return out, nil
}

// PublishOutcome publishes out to the configured topic.
func (p *Publisher) PublishOutcome(ctx context.Context, out recsync.Outcome) error {
	return p.publishWithID(ctx, watermill.NewUUID(), out)
}

// publishWithID publishes out as message id. Re-publishing the same id
// is deduplicated by JetStream.
func (p *Publisher) publishWithID(ctx context.Context, id string, out recsync.Outcome) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}

	msg, err := newOutcomeMessage(id, out)
	if err != nil {
		return err
	}
	msg.SetContext(ctx)

	_, err = p.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, p.publisher.Publish(p.topic, msg)
	})
	if err != nil {
		metrics.EventsPublished.WithLabelValues("error").Inc()
		return fmt.Errorf("publish outcome for %s: %w", out.Collection, err)
	}
	metrics.EventsPublished.WithLabelValues("success").Inc()
	return nil
}

// Close shuts down the underlying publisher.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.publisher.Close()
}
