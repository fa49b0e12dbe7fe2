package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xentelar/kflow/pkg/models"
)

func TestLookupCoversAllRecordTypes(t *testing.T) {
	for _, rt := range models.RecordTypes() {
		t.Run(string(rt), func(t *testing.T) {
			entry, ok := Lookup(rt)
			require.True(t, ok)
			assert.NotEmpty(t, entry.Table)
			assert.NotEmpty(t, entry.Fields)

			for _, f := range entry.Fields {
				assert.NotEmpty(t, f.Name)
			}
		})
	}
}

func TestLookupUnknownType(t *testing.T) {
	_, ok := Lookup(models.RecordType("cpu_gauge"))
	assert.False(t, ok)
}

func TestOpStatEntry(t *testing.T) {
	entry, ok := Lookup(models.RecordOpStat)
	require.True(t, ok)

	assert.Equal(t, "op_stat", entry.Table)
	assert.Equal(t, []string{"name", "data", "unit", "sess", "node", "ts"}, entry.FieldNames())
}

func TestNodeRoleEntry(t *testing.T) {
	entry, ok := Lookup(models.RecordNodeRole)
	require.True(t, ok)

	assert.Equal(t, "node_role", entry.Table)
	assert.Equal(t, []string{"node", "ts", "data"}, entry.FieldNames())
}

func TestBareFieldAppliesIdentity(t *testing.T) {
	f := Bare("node")

	v, err := f.Apply("nodeA")
	require.NoError(t, err)
	assert.Equal(t, "nodeA", v)
}

func TestTransformedFieldAppliesFunc(t *testing.T) {
	entry, ok := Lookup(models.RecordOpStat)
	require.True(t, ok)

	// "unit" is capped at 10 runes.
	v, err := entry.Fields[2].Apply("milliseconds-per-call")
	require.NoError(t, err)
	assert.Equal(t, "millisecon", v)
}

func TestFieldNamesMatchFieldOrder(t *testing.T) {
	for _, rt := range models.RecordTypes() {
		entry, ok := Lookup(rt)
		require.True(t, ok)

		names := entry.FieldNames()
		require.Len(t, names, len(entry.Fields))

		for i, f := range entry.Fields {
			assert.Equal(t, f.Name, names[i])
		}
	}
}
