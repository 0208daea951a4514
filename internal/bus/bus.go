// Package bus wraps the NATS pub/sub connection shared by every pipeline
// component. Subjects map directly onto the spec's event names
// (`anomaly.detected`, `incidents.created`, ...); publish failures retry
// with exponential backoff before falling back to a dead-letter subject
// (§4.1-§4.4, §7).
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/platformbuilds/fleetops-core/internal/metrics"
	"github.com/platformbuilds/fleetops-core/pkg/logger"
)

// Envelope is the wire format for every published event: the subject, the
// publish time, and the payload as raw JSON, delivered to subscribers byte
// for byte as it was marshalled.
type Envelope struct {
	Subject    string          `json:"subject"`
	PublishedAt time.Time      `json:"published_at"`
	Payload    json.RawMessage `json:"payload"`
}

// Bus is a thin NATS wrapper providing retrying publish and DLQ routing.
type Bus struct {
	nc        *nats.Conn
	log       logger.Logger
	dlqPrefix string
}

// Config mirrors internal/config.BusConfig without importing it, to avoid
// a dependency cycle; cmd/* binaries construct this from the loaded
// config.
type Config struct {
	URL              string
	MaxReconnects    int
	ReconnectWait    time.Duration
	DLQSubjectPrefix string
}

// Connect dials the NATS server with automatic reconnect enabled.
func Connect(cfg Config, log logger.Logger) (*Bus, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("bus: disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info("bus: reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("bus: connect %s: %w", cfg.URL, err)
	}
	prefix := cfg.DLQSubjectPrefix
	if prefix == "" {
		prefix = "dlq"
	}
	return &Bus{nc: nc, log: log, dlqPrefix: prefix}, nil
}

// Close drains and closes the underlying connection.
func (b *Bus) Close() {
	_ = b.nc.Drain()
}

// backoffSchedule is the §4 retry ladder: 50ms, 100ms, 200ms, 400ms, then
// the 2s cap. Publish makes one initial attempt plus up to five retry
// attempts, one after each delay.
var backoffSchedule = []time.Duration{
	50 * time.Millisecond,
	100 * time.Millisecond,
	200 * time.Millisecond,
	400 * time.Millisecond,
	2 * time.Second,
}

// Publish marshals payload, retries with the §4 backoff ladder on
// transient NATS errors, and routes to `<dlqPrefix>.<subject>` after
// exhausting the ladder. A publish that cannot succeed is recorded as a
// DLQ event rather than blocking the pipeline; an error is returned only
// when the payload cannot be marshalled or the DLQ publish fails too.
func (b *Bus) Publish(ctx context.Context, subject string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("bus: marshal payload for %s: %w", subject, err)
	}
	env := Envelope{Subject: subject, PublishedAt: time.Now(), Payload: raw}
	envRaw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("bus: marshal envelope for %s: %w", subject, err)
	}

	var lastErr error
retryLoop:
	for attempt := 0; attempt <= len(backoffSchedule); attempt++ {
		if attempt > 0 {
			metrics.BusPublishRetries.WithLabelValues(subject).Inc()
			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
				break retryLoop
			case <-time.After(backoffSchedule[attempt-1]):
			}
		}
		if err := b.nc.Publish(subject, envRaw); err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	b.log.Error("bus: publish exhausted retries, routing to DLQ", "subject", subject, "error", lastErr)
	metrics.BusDLQTotal.WithLabelValues(subject).Inc()
	dlqSubject := b.dlqPrefix + "." + subject
	if err := b.nc.Publish(dlqSubject, envRaw); err != nil {
		b.log.Error("bus: DLQ publish also failed", "subject", dlqSubject, "error", err)
		return fmt.Errorf("bus: publish and DLQ publish both failed for %s: %w", subject, err)
	}
	return nil
}

// Handler processes one decoded payload. Returning a non-nil error does
// not retry the subscription message — retry semantics live in the
// component (e.g. the detector's worker pool, not the bus).
type Handler func(ctx context.Context, raw json.RawMessage) error

// Subscribe registers handler on subject. Each incoming envelope is
// unwrapped and its Payload handed to handler; envelope decode failures
// are logged and dropped rather than crashing the subscriber.
func (b *Bus) Subscribe(subject, queueGroup string, handler Handler) (*nats.Subscription, error) {
	cb := func(msg *nats.Msg) {
		var env Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			b.log.Error("bus: malformed envelope, dropping", "subject", subject, "error", err)
			return
		}
		if err := handler(context.Background(), env.Payload); err != nil {
			b.log.Error("bus: handler error", "subject", subject, "error", err)
		}
	}
	if queueGroup != "" {
		return b.nc.QueueSubscribe(subject, queueGroup, cb)
	}
	return b.nc.Subscribe(subject, cb)
}
