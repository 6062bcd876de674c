package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"attesto/internal/eventlog"
	"attesto/internal/eventlog/store/memory"
	id "attesto/pkg/domain"
)

// fakeProducer records produced batches. failAfter > 0 makes every call past
// that count fail, so tests can land one batch and break the next.
type fakeProducer struct {
	mu        sync.Mutex
	records   []*kgo.Record
	calls     int
	failAfter int
}

func (f *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failAfter > 0 && f.calls > f.failAfter {
		return kgo.ProduceResults{{Err: errors.New("broker unavailable")}}
	}
	results := make(kgo.ProduceResults, 0, len(rs))
	for _, r := range rs {
		f.records = append(f.records, r)
		results = append(results, kgo.ProduceResult{Record: r})
	}
	return results
}

func (f *fakeProducer) published() []*kgo.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*kgo.Record, len(f.records))
	copy(out, f.records)
	return out
}

func seedLog(t *testing.T, log *memory.Log, n int) []eventlog.Entry {
	t.Helper()
	entries := make([]eventlog.Entry, 0, n)
	for i := 0; i < n; i++ {
		tokenID, err := id.ParseTokenID(fmt.Sprintf("%02x", i+1) + strings.Repeat("ab", 31))
		require.NoError(t, err)
		sealed, err := log.Append(context.Background(), eventlog.Entry{
			ID:        id.NewEventID(),
			TokenID:   tokenID,
			Kind:      eventlog.KindMinted,
			Actor:     "clinic-operator",
			NewStatus: "active",
			Timestamp: time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC),
		})
		require.NoError(t, err)
		entries = append(entries, sealed)
	}
	return entries
}

func TestDrainPublishesFromCursor(t *testing.T) {
	log := memory.NewLog()
	seeded := seedLog(t, log, 5)
	producer := &fakeProducer{}
	r := New(log, log, producer, "attesto.audit.events")

	n, err := r.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	records := producer.published()
	require.Len(t, records, 5)
	assert.Equal(t, "attesto.audit.events", records[0].Topic)
	assert.Equal(t, seeded[0].TokenID.String(), string(records[0].Key))

	var entry eventlog.Entry
	require.NoError(t, json.Unmarshal(records[0].Value, &entry))
	assert.Equal(t, seeded[0].EntryHash, entry.EntryHash)

	cursor, err := log.LoadCursor(context.Background(), defaultCursor)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), cursor)

	// Nothing new: the next drain is a no-op.
	n, err = r.Drain(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, producer.published(), 5)
}

func TestDrainResumesFromSavedCursor(t *testing.T) {
	log := memory.NewLog()
	seedLog(t, log, 5)
	require.NoError(t, log.SaveCursor(context.Background(), defaultCursor, 3))

	producer := &fakeProducer{}
	r := New(log, log, producer, "attesto.audit.events")

	n, err := r.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	records := producer.published()
	require.Len(t, records, 2)

	var entry eventlog.Entry
	require.NoError(t, json.Unmarshal(records[0].Value, &entry))
	assert.Equal(t, uint64(4), entry.Sequence)
}

func TestDrainBatchesLargeBacklogs(t *testing.T) {
	log := memory.NewLog()
	seedLog(t, log, 5)
	producer := &fakeProducer{}
	r := New(log, log, producer, "attesto.audit.events", WithBatchSize(2))

	n, err := r.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, 3, producer.calls, "5 entries at batch size 2 need 3 batches")

	cursor, err := log.LoadCursor(context.Background(), defaultCursor)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), cursor)
}

func TestDrainFailureKeepsCursor(t *testing.T) {
	log := memory.NewLog()
	seedLog(t, log, 5)
	r := New(log, log, alwaysFailProducer{}, "attesto.audit.events")

	_, err := r.Drain(context.Background())
	require.Error(t, err)

	cursor, err := log.LoadCursor(context.Background(), defaultCursor)
	require.NoError(t, err)
	assert.Zero(t, cursor, "cursor must not advance past unacknowledged entries")

	// The retry with a healthy producer publishes everything.
	producer := &fakeProducer{}
	r.producer = producer
	n, err := r.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Len(t, producer.published(), 5)
}

type alwaysFailProducer struct{}

func (alwaysFailProducer) ProduceSync(context.Context, ...*kgo.Record) kgo.ProduceResults {
	return kgo.ProduceResults{{Err: errors.New("broker unavailable")}}
}

func TestDrainCheckpointsPerBatch(t *testing.T) {
	log := memory.NewLog()
	seedLog(t, log, 4)

	// First batch of 2 lands, second call fails.
	producer := &fakeProducer{failAfter: 1}
	r := New(log, log, producer, "attesto.audit.events", WithBatchSize(2))

	_, err := r.Drain(context.Background())
	require.Error(t, err)

	cursor, err := log.LoadCursor(context.Background(), defaultCursor)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), cursor, "acknowledged batch must be checkpointed before the failure")
	assert.Len(t, producer.published(), 2)
}

func TestRunStopsOnCancel(t *testing.T) {
	log := memory.NewLog()
	seedLog(t, log, 2)
	producer := &fakeProducer{}
	r := New(log, log, producer, "attesto.audit.events", WithInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- r.Run(ctx)
	}()

	assert.Eventually(t, func() bool {
		return len(producer.published()) == 2
	}, 2*time.Second, 5*time.Millisecond, "ticks should drain the backlog")

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop after cancel")
	}
}
