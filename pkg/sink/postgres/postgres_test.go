package postgres

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xentelar/kflow/pkg/models"
)

func TestBucketStart(t *testing.T) {
	ts := time.Date(2026, 8, 28, 15, 4, 5, 0, time.UTC)

	tests := []struct {
		name       string
		bucketDays int
		expected   time.Time
	}{
		{
			name:       "daily bucket floors to midnight",
			bucketDays: 1,
			expected:   time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC),
		},
		{
			name:       "weekly bucket floors to bucket boundary",
			bucketDays: 7,
			expected:   time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC),
		},
		{
			name:       "zero falls back to daily",
			bucketDays: 0,
			expected:   time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, bucketStart(ts, tt.bucketDays))
		})
	}
}

func TestPartitionNameRoundTrip(t *testing.T) {
	start := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)

	name := partitionName("op_stat", start)
	assert.Equal(t, "op_stat_p20260828", name)

	parsed, ok := parsePartitionStart("op_stat", name)
	require.True(t, ok)
	assert.Equal(t, start, parsed)
}

func TestParsePartitionStartIgnoresUnrelatedChildren(t *testing.T) {
	_, ok := parsePartitionStart("op_stat", "op_stat_default")
	assert.False(t, ok)

	_, ok = parsePartitionStart("op_stat", "fun_top_p20260828")
	assert.False(t, ok)
}

func TestTupleToTime(t *testing.T) {
	ts, err := tupleToTime([]any{uint64(1700000000), uint64(250000), uint64(42)})
	require.NoError(t, err)
	assert.Equal(t, time.Unix(1700000000, 250000*1000).UTC(), ts)
}

func TestTupleToTimeRejectsBadShapes(t *testing.T) {
	for _, v := range []any{nil, "now", []any{1, 2}, []any{"a", "b", "c"}} {
		_, err := tupleToTime(v)
		assert.ErrorIs(t, err, ErrBadTimeValue)
	}
}

func TestEncodeJSONValue(t *testing.T) {
	assert.Equal(t, `"primary"`, encodeJSONValue("primary"))
	assert.Equal(t, `42`, encodeJSONValue(uint64(42)))
	assert.Equal(t, `{"foo":"bar"}`, encodeJSONValue(map[any]any{"foo": "bar"}))
	assert.Equal(t, `[1,"two"]`, encodeJSONValue([]any{uint64(1), "two"}))
	assert.Equal(t, `[]`, encodeJSONValue([]any{}))
}

func TestEncodeJSONValueFallback(t *testing.T) {
	// channels cannot be marshaled; the textual rendering is used instead.
	got := encodeJSONValue(make(chan int))
	assert.Contains(t, got, "chan")
}

func TestRowArgsPreservesFieldOrder(t *testing.T) {
	cfg := models.SinkConfig{
		Table:  "node_role",
		Fields: []string{"node", "ts", "data"},
		Partitioning: models.Partitioning{
			BucketDays:    1,
			RetentionDays: 30,
			IndexFields:   []string{"ts"},
		},
	}

	rec := &models.DecodedRecord{
		Type: models.RecordNodeRole,
		Fields: []models.FieldValue{
			{Name: "node", Value: "nodeA"},
			{Name: "ts", Value: []any{uint64(1700000000), uint64(0), uint64(0)}},
			{Name: "data", Value: map[any]any{"foo": "bar"}},
		},
	}

	args, ts, err := rowArgs(cfg, rec, "ts")
	require.NoError(t, err)
	require.Len(t, args, 4)

	_, ok := args[0].(uuid.UUID)
	assert.True(t, ok)

	assert.Equal(t, `"nodeA"`, args[1])
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), args[2])
	assert.Equal(t, `{"foo":"bar"}`, args[3])
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), ts)
}

func TestRowArgsMissingField(t *testing.T) {
	cfg := models.SinkConfig{
		Table:        "node_role",
		Fields:       []string{"node", "ts", "data"},
		Partitioning: models.Partitioning{IndexFields: []string{"ts"}},
	}

	rec := &models.DecodedRecord{
		Type: models.RecordNodeRole,
		Fields: []models.FieldValue{
			{Name: "node", Value: "nodeA"},
			{Name: "ts", Value: []any{uint64(1), uint64(2), uint64(3)}},
			{Name: "wrong", Value: nil},
		},
	}

	_, _, err := rowArgs(cfg, rec, "ts")
	assert.Error(t, err)
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, `"op_stat"`, quoteIdent("op_stat"))
	assert.Equal(t, `"bad""name"`, quoteIdent(`bad"name`))
}
