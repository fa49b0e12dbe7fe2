package telemetrywriter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/xentelar/kflow/pkg/decoder"
	"github.com/xentelar/kflow/pkg/logger"
	"github.com/xentelar/kflow/pkg/models"
	"github.com/xentelar/kflow/pkg/router"
	"github.com/xentelar/kflow/pkg/sink"
)

type fakeMsg struct {
	data    []byte
	subject string
	meta    *jetstream.MsgMetadata

	acked bool
	naked bool
}

func (m *fakeMsg) Data() []byte    { return m.data }
func (m *fakeMsg) Subject() string { return m.subject }
func (m *fakeMsg) Reply() string   { return "" }

func (m *fakeMsg) Headers() nats.Header { return nil }

func (m *fakeMsg) Metadata() (*jetstream.MsgMetadata, error) {
	if m.meta != nil {
		return m.meta, nil
	}

	return &jetstream.MsgMetadata{NumDelivered: 1}, nil
}

func (m *fakeMsg) Ack() error { m.acked = true; return nil }

func (m *fakeMsg) DoubleAck(context.Context) error { m.acked = true; return nil }

func (m *fakeMsg) Nak() error { m.naked = true; return nil }

func (m *fakeMsg) NakWithDelay(time.Duration) error { m.naked = true; return nil }

func (m *fakeMsg) InProgress() error { return nil }

func (m *fakeMsg) Term() error { return nil }

func (m *fakeMsg) TermWithReason(string) error { return nil }

func encodePayload(t *testing.T, values ...any) []byte {
	t.Helper()

	data, err := cbor.Marshal(values)
	require.NoError(t, err)

	return data
}

func nodeRoleMsg(t *testing.T, node string) *fakeMsg {
	t.Helper()

	return &fakeMsg{
		subject: "telemetry.records",
		data: encodePayload(t, "node_role", node,
			[]any{1700, 0, 0}, map[string]any{"role": "primary"}),
	}
}

func newTestProcessor(t *testing.T) (*Processor, *sink.MockSink) {
	t.Helper()

	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	mockSink := sink.NewMockSink(ctrl)

	log := logger.NewTestLogger()
	codec, err := decoder.NewCBORCodec()
	require.NoError(t, err)

	dec := decoder.New(codec, log)
	rtr := router.New(models.PipelineConfig{})

	return NewProcessor(dec, rtr, mockSink, log), mockSink
}

func TestProcessBatchWritesGroupedRecords(t *testing.T) {
	proc, mockSink := newTestProcessor(t)

	msgs := []jetstream.Msg{
		nodeRoleMsg(t, "a@host"),
		nodeRoleMsg(t, "b@host"),
	}

	mockSink.EXPECT().
		EnsureTable(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, cfg models.SinkConfig) error {
			assert.Equal(t, "node_role", cfg.Table)
			return nil
		})

	mockSink.EXPECT().
		WriteRows(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, cfg models.SinkConfig, records []*models.DecodedRecord) error {
			assert.Equal(t, "node_role", cfg.Table)
			assert.Len(t, records, 2)
			assert.Equal(t, []string{"node", "ts", "data"}, cfg.Fields)

			return nil
		})

	processed, err := proc.ProcessBatch(context.Background(), msgs)
	require.NoError(t, err)
	assert.Len(t, processed, 2)
}

func TestProcessBatchDroppedRecordsCountAsProcessed(t *testing.T) {
	proc, _ := newTestProcessor(t)

	msgs := []jetstream.Msg{
		&fakeMsg{data: []byte{0xff, 0x00, 0x13}},
		&fakeMsg{data: encodePayload(t, "mystery", 1, 2)},
	}

	// No sink expectations: drops never reach the sink.
	processed, err := proc.ProcessBatch(context.Background(), msgs)
	require.NoError(t, err)
	assert.Len(t, processed, 2)
}

func TestProcessBatchSinkFailureExcludesGroup(t *testing.T) {
	proc, mockSink := newTestProcessor(t)

	writeErr := errors.New("connection refused")

	mockSink.EXPECT().EnsureTable(gomock.Any(), gomock.Any()).Return(nil)
	mockSink.EXPECT().WriteRows(gomock.Any(), gomock.Any(), gomock.Any()).Return(writeErr)

	bad := &fakeMsg{data: []byte{0xff}}
	good := nodeRoleMsg(t, "a@host")

	processed, err := proc.ProcessBatch(context.Background(), []jetstream.Msg{bad, good})
	require.ErrorIs(t, err, writeErr)

	// The drop is finished; the record that hit the sink failure is not.
	require.Len(t, processed, 1)
	assert.Same(t, bad, processed[0])
}

func TestProcessBatchEnsuresTableOnce(t *testing.T) {
	proc, mockSink := newTestProcessor(t)

	mockSink.EXPECT().EnsureTable(gomock.Any(), gomock.Any()).Return(nil).Times(1)
	mockSink.EXPECT().WriteRows(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(2)

	for range 2 {
		_, err := proc.ProcessBatch(context.Background(), []jetstream.Msg{nodeRoleMsg(t, "a@host")})
		require.NoError(t, err)
	}
}

func TestProcessBatchEmpty(t *testing.T) {
	proc, _ := newTestProcessor(t)

	processed, err := proc.ProcessBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, processed)
}

func TestPruneExpiredCoversEveryTable(t *testing.T) {
	proc, mockSink := newTestProcessor(t)

	tables := make(map[string]int)

	mockSink.EXPECT().
		PruneExpired(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, cfg models.SinkConfig) (int, error) {
			tables[cfg.Table]++
			return 1, nil
		}).
		Times(len(models.RecordTypes()))

	require.NoError(t, proc.PruneExpired(context.Background()))

	for _, rt := range models.RecordTypes() {
		assert.Equal(t, 1, tables[string(rt)], "table %s not pruned", rt)
	}
}

func TestPruneExpiredPropagatesError(t *testing.T) {
	proc, mockSink := newTestProcessor(t)

	pruneErr := errors.New("pg is down")

	mockSink.EXPECT().PruneExpired(gomock.Any(), gomock.Any()).Return(0, pruneErr)

	err := proc.PruneExpired(context.Background())
	require.ErrorIs(t, err, pruneErr)
}
