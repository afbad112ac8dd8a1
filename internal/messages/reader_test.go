package messages

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowgate/internal/flowrequest/models"
	"flowgate/internal/platform/config"
	"flowgate/internal/platform/metrics"
	dErrors "flowgate/pkg/domain-errors"
)

const dest = "dest-1"

// newRetainedLog holds offsets [3, 32]: thirty messages, the first three
// removed by retention.
func newRetainedLog() *MemoryLog {
	log := NewMemoryLog()
	for i := range 33 {
		log.Append(dest, "ch-1", []byte(fmt.Sprintf("payload-%d", i)))
	}
	log.Truncate(dest, 3)
	return log
}

func newReader(log PartitionLog) (*Reader, *metrics.Metrics) {
	m := metrics.NewWithRegisterer(prometheus.NewRegistry())
	return New(log, config.MessagesConfig{DefaultLimit: 5, MaxLimit: 10}, m), m
}

func ptr(v int64) *int64 { return &v }

func ids(msgs []models.Message) []int64 {
	out := make([]int64, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func requireOutOfRange(t *testing.T, err error, first, last int64) {
	t.Helper()
	var oor *OutOfRangeError
	require.True(t, errors.As(err, &oor), "expected OutOfRangeError, got %v", err)
	assert.Equal(t, Bounds{FirstID: first, LastID: last}, oor.Bounds)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestGetOne(t *testing.T) {
	r, _ := newReader(newRetainedLog())
	ctx := context.Background()

	for _, id := range []int64{3, 15, 32} {
		msg, err := r.GetOne(ctx, dest, id)
		require.NoError(t, err)
		assert.Equal(t, id, msg.ID)
		assert.Equal(t, fmt.Sprintf("payload-%d", id), string(msg.Data))
		assert.Equal(t, "ch-1", msg.ChannelID)
	}

	for _, id := range []int64{0, 2, 33} {
		_, err := r.GetOne(ctx, dest, id)
		requireOutOfRange(t, err, 3, 32)
	}
}

func TestGetRange(t *testing.T) {
	tests := []struct {
		name        string
		query       RangeQuery
		wantIDs     []int64
		wantSkipped int64
	}{
		{name: "defaults start at first id", query: RangeQuery{}, wantIDs: []int64{3, 4, 5, 6, 7}},
		{name: "window inside range", query: RangeQuery{Start: ptr(6), Limit: ptr(3)}, wantIDs: []int64{6, 7, 8}},
		{name: "limit clamped to max", query: RangeQuery{Start: ptr(3), Limit: ptr(11)}, wantIDs: []int64{3, 4, 5, 6, 7, 8, 9, 10, 11, 12}},
		{name: "window truncated at last id", query: RangeQuery{Start: ptr(30), Limit: ptr(5)}, wantIDs: []int64{30, 31, 32}},
		{name: "start below first id is skipped", query: RangeQuery{Start: ptr(0), Limit: ptr(5)}, wantIDs: []int64{3, 4}, wantSkipped: 3},
		{name: "start one below first id", query: RangeQuery{Start: ptr(2), Limit: ptr(2)}, wantIDs: []int64{3}, wantSkipped: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newReader(newRetainedLog())
			w, err := r.GetRange(context.Background(), dest, tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.wantIDs, ids(w.Messages))
			assert.Equal(t, int64(30), w.TotalCount)
			assert.Equal(t, tt.wantSkipped, w.Skipped)
		})
	}
}

func TestGetRange_OutOfRange(t *testing.T) {
	r, m := newReader(newRetainedLog())
	ctx := context.Background()

	_, err := r.GetRange(ctx, dest, RangeQuery{Start: ptr(33)})
	requireOutOfRange(t, err, 3, 32)

	// upper bound 0+2-1 = 1 < 3
	_, err = r.GetRange(ctx, dest, RangeQuery{Start: ptr(0), Limit: ptr(2)})
	requireOutOfRange(t, err, 3, 32)

	assert.Equal(t, float64(2), promtest.ToFloat64(m.MessagesRead.WithLabelValues("get_range", "not_found")))
}

func TestGetRange_NegativeParameters(t *testing.T) {
	r, _ := newReader(newRetainedLog())
	ctx := context.Background()

	_, err := r.GetRange(ctx, dest, RangeQuery{Limit: ptr(-1)})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = r.GetRange(ctx, dest, RangeQuery{Start: ptr(-4)})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestInfo(t *testing.T) {
	r, _ := newReader(newRetainedLog())
	info, err := r.Info(context.Background(), dest)
	require.NoError(t, err)
	assert.Equal(t, &Info{StartID: 3, LastID: 32, Count: 30}, info)
}

func TestEmptyPartition(t *testing.T) {
	r, _ := newReader(NewMemoryLog())
	ctx := context.Background()

	info, err := r.Info(ctx, "unknown")
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.Count)

	_, err = r.GetRange(ctx, "unknown", RangeQuery{})
	requireOutOfRange(t, err, 0, -1)

	_, err = r.GetOne(ctx, "unknown", 0)
	requireOutOfRange(t, err, 0, -1)
}

type failingLog struct{}

func (failingLog) Offsets(context.Context, string) (int64, int64, error) {
	return 0, 0, errors.New("broker unreachable")
}

func (failingLog) Fetch(context.Context, string, int64, int) ([]models.Message, error) {
	return nil, errors.New("broker unreachable")
}

func TestBrokerFailureIsGatewayError(t *testing.T) {
	r, _ := newReader(failingLog{})
	_, err := r.Info(context.Background(), dest)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeGateway))
}
