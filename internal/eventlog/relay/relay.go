// Package relay exports event log entries to Kafka. It polls the log from a
// durable cursor and publishes every entry at least once: the cursor only
// advances after the broker acknowledges the batch, so a crash between
// publish and checkpoint re-sends rather than drops.
//
// Downstream consumers deduplicate on the entry ID.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"attesto/internal/eventlog"
)

const (
	defaultInterval  = 2 * time.Second
	defaultBatchSize = 200
	defaultCursor    = "kafka-export"
)

// Producer is the broker surface the relay needs. *kgo.Client satisfies it.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Relay drains the event log into a Kafka topic.
type Relay struct {
	log      eventlog.Log
	cursors  eventlog.CursorStore
	producer Producer
	topic    string

	logger     *slog.Logger
	metrics    *Metrics
	interval   time.Duration
	batchSize  uint64
	cursorName string
}

// Option configures the Relay.
type Option func(*Relay)

// WithLogger sets a logger for drain progress and publish failures.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(r *Relay) {
		r.metrics = m
	}
}

// WithInterval sets the poll interval.
func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithBatchSize caps how many entries one drain iteration publishes.
func WithBatchSize(n uint64) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithCursorName names the checkpoint, letting several relays share one log.
func WithCursorName(name string) Option {
	return func(r *Relay) {
		if name != "" {
			r.cursorName = name
		}
	}
}

func New(log eventlog.Log, cursors eventlog.CursorStore, producer Producer, topic string, opts ...Option) *Relay {
	r := &Relay{
		log:        log,
		cursors:    cursors,
		producer:   producer,
		topic:      topic,
		interval:   defaultInterval,
		batchSize:  defaultBatchSize,
		cursorName: defaultCursor,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run polls until the context is cancelled. Publish failures are logged and
// retried on the next tick; they never stop the relay.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.Drain(ctx); err != nil {
				if r.metrics != nil {
					r.metrics.IncPublishFailures()
				}
				if r.logger != nil {
					r.logger.ErrorContext(ctx, "event export failed, will retry",
						"topic", r.topic,
						"error", err,
					)
				}
			}
		}
	}
}

// Drain publishes everything between the cursor and the current head,
// checkpointing after each acknowledged batch. It returns the number of
// entries published.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	cursor, err := r.cursors.LoadCursor(ctx, r.cursorName)
	if err != nil {
		return 0, err
	}
	head, err := r.log.Head(ctx)
	if err != nil {
		return 0, err
	}

	published := 0
	for cursor < head {
		to := cursor + r.batchSize
		if to > head {
			to = head
		}
		entries, err := r.log.Range(ctx, cursor+1, to)
		if err != nil {
			return published, err
		}
		if len(entries) == 0 {
			break
		}

		records := make([]*kgo.Record, 0, len(entries))
		for i := range entries {
			rec, err := r.record(entries[i])
			if err != nil {
				return published, err
			}
			records = append(records, rec)
		}
		if err := r.producer.ProduceSync(ctx, records...).FirstErr(); err != nil {
			return published, fmt.Errorf("produce event batch: %w", err)
		}

		// Checkpoint only after the broker acknowledged the batch.
		if err := r.cursors.SaveCursor(ctx, r.cursorName, to); err != nil {
			return published, err
		}
		published += len(entries)
		cursor = to

		if r.metrics != nil {
			r.metrics.AddExported(len(entries))
			r.metrics.SetLag(head - cursor)
		}
	}

	if r.metrics != nil {
		r.metrics.SetLag(head - cursor)
	}
	return published, nil
}

// record keys by token ID so all transitions of one token land in the same
// partition, preserving their relative order for consumers.
func (r *Relay) record(e eventlog.Entry) (*kgo.Record, error) {
	value, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode event %d: %w", e.Sequence, err)
	}
	return &kgo.Record{
		Topic: r.topic,
		Key:   []byte(e.TokenID.String()),
		Value: value,
	}, nil
}

// EnsureTopic creates the export topic with broker defaults if it does not
// exist yet.
func EnsureTopic(ctx context.Context, client *kgo.Client, topic string) error {
	adm := kadm.NewClient(client)

	resp, err := adm.CreateTopics(ctx, -1, -1, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	for _, res := range resp {
		if res.Err != nil && !errors.Is(res.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", res.Topic, res.Err)
		}
	}
	return nil
}
