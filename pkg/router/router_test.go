package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xentelar/kflow/pkg/models"
	"github.com/xentelar/kflow/pkg/schema"
)

func TestRouteDefaults(t *testing.T) {
	r := New(models.PipelineConfig{})

	cfg, err := r.Route(models.RecordNodeRole)
	require.NoError(t, err)

	assert.Equal(t, "node_role", cfg.Table)
	assert.Equal(t, []string{"node", "ts", "data"}, cfg.Fields)
	assert.Equal(t, 1, cfg.Partitioning.BucketDays)
	assert.Equal(t, 30, cfg.Partitioning.RetentionDays)
	assert.Equal(t, []string{"ts"}, cfg.Partitioning.IndexFields)
}

func TestRouteConfiguredPartitioning(t *testing.T) {
	r := New(models.PipelineConfig{PartitionDays: 7, RetentionDays: 90})

	cfg, err := r.Route(models.RecordOpStat)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Partitioning.BucketDays)
	assert.Equal(t, 90, cfg.Partitioning.RetentionDays)
}

func TestRouteUnknownType(t *testing.T) {
	r := New(models.PipelineConfig{})

	_, err := r.Route(models.RecordType("cpu_gauge"))
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestRouteFieldOrderMatchesSchema(t *testing.T) {
	r := New(models.PipelineConfig{})

	for _, rt := range models.RecordTypes() {
		cfg, err := r.Route(rt)
		require.NoError(t, err)

		entry, ok := schema.Lookup(rt)
		require.True(t, ok)
		assert.Equal(t, entry.FieldNames(), cfg.Fields, "field order for %s", rt)
	}
}

func TestRouteMemoized(t *testing.T) {
	r := New(models.PipelineConfig{})

	first, err := r.Route(models.RecordAppTop)
	require.NoError(t, err)

	second, err := r.Route(models.RecordAppTop)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}
