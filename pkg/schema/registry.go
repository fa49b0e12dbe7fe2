// Package schema is the static registry correlating each record type's wire
// shape to its storage shape. It is the single source of truth for the
// decode contract: changing an entry changes what the decoder accepts for
// that type and what the sink router hands downstream.
package schema

import (
	"github.com/xentelar/kflow/pkg/models"
	"github.com/xentelar/kflow/pkg/transform"
)

// FieldSpec describes one positional field: its storage name and the
// transform applied to the raw value. Transforms are bound to concrete
// function references at registry construction, so there is no symbolic
// lookup at decode time. A nil Transform means the value passes through
// unchanged.
type FieldSpec struct {
	Name      string
	Transform transform.Func
}

// Bare declares a field whose value is stored unchanged.
func Bare(name string) FieldSpec {
	return FieldSpec{Name: name}
}

// Transformed declares a field whose value runs through fn before storage.
func Transformed(name string, fn transform.Func) FieldSpec {
	return FieldSpec{Name: name, Transform: fn}
}

// Apply runs the field's transform, or the identity for bare fields.
func (f FieldSpec) Apply(v any) (any, error) {
	if f.Transform == nil {
		return v, nil
	}

	return f.Transform(v)
}

// Entry maps one record type to its sink table and ordered field
// specifications. The field count is the arity contract a raw record's
// positional values must satisfy.
type Entry struct {
	Table  string
	Fields []FieldSpec
}

// FieldNames returns the field names in declaration order.
func (e Entry) FieldNames() []string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Name
	}

	return names
}

var entries = map[models.RecordType]Entry{
	models.RecordOpStat: {
		Table: "op_stat",
		Fields: []FieldSpec{
			Transformed("name", transform.ToString(60)),
			Transformed("data", transform.ToString(50)),
			Transformed("unit", transform.ToString(10)),
			Transformed("sess", transform.Nullable),
			Bare("node"),
			Transformed("ts", transform.Timestamp),
		},
	},
	models.RecordProcTop: {
		Table: "proc_top",
		Fields: []FieldSpec{
			Bare("node"),
			Transformed("ts", transform.Timestamp),
			Transformed("pid", transform.ToString(30)),
			Bare("dreductions"),
			Bare("dmemory"),
			Bare("reductions"),
			Bare("memory"),
			Bare("message_queue_len"),
			Transformed("current_function", transform.FormatFunction),
			Transformed("initial_call", transform.FormatFunction),
			Transformed("registered_name", transform.ToString(40)),
			Bare("stack_size"),
			Bare("heap_size"),
			Bare("total_heap_size"),
			Transformed("current_stacktrace", transform.FormatStacktrace),
			Transformed("group_leader", transform.ToString(30)),
		},
	},
	models.RecordFunTop: {
		Table: "fun_top",
		Fields: []FieldSpec{
			Bare("node"),
			Transformed("ts", transform.Timestamp),
			Transformed("fun", transform.FormatFunction),
			Transformed("fun_type", transform.ToString(20)),
			Bare("num_processes"),
		},
	},
	models.RecordAppTop: {
		Table: "app_top",
		Fields: []FieldSpec{
			Bare("node"),
			Transformed("ts", transform.Timestamp),
			Transformed("application", transform.ToString(40)),
			Transformed("unit", transform.ToString(10)),
			Bare("value"),
		},
	},
	models.RecordNodeRole: {
		Table: "node_role",
		Fields: []FieldSpec{
			Bare("node"),
			Transformed("ts", transform.Timestamp),
			Bare("data"),
		},
	},
}

// Lookup returns the entry for a record type. ok is false for tags outside
// the fixed set.
func Lookup(rt models.RecordType) (Entry, bool) {
	e, ok := entries[rt]

	return e, ok
}
