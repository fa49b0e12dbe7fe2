package models

// RecordType identifies the shape of one telemetry record. The set is fixed
// at compile time; tags outside it are dropped by the decoder.
type RecordType string

const (
	RecordOpStat   RecordType = "op_stat"
	RecordProcTop  RecordType = "proc_top"
	RecordFunTop   RecordType = "fun_top"
	RecordAppTop   RecordType = "app_top"
	RecordNodeRole RecordType = "node_role"
)

// RecordTypes lists every known record type, in schema declaration order.
func RecordTypes() []RecordType {
	return []RecordType{RecordOpStat, RecordProcTop, RecordFunTop, RecordAppTop, RecordNodeRole}
}

// FieldValue is one named, transformed value of a decoded record.
type FieldValue struct {
	Name  string
	Value any
}

// DecodedRecord is the validated, transformed form of one raw record.
// Field order matches the schema field order and is preserved for the sink's
// column ordering. Records are never mutated after the decoder builds them.
type DecodedRecord struct {
	Type   RecordType
	Fields []FieldValue
}

// Get returns the value for the named field.
func (r *DecodedRecord) Get(name string) (any, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}

	return nil, false
}

// FieldNames returns the field names in schema order.
func (r *DecodedRecord) FieldNames() []string {
	names := make([]string, len(r.Fields))
	for i, f := range r.Fields {
		names[i] = f.Name
	}

	return names
}

// Partitioning carries the time-bucketed storage layout parameters the sink
// applies to a table.
type Partitioning struct {
	BucketDays    int      `json:"bucket_days"`
	RetentionDays int      `json:"retention_days"`
	IndexFields   []string `json:"index_fields"`
}

// SinkConfig is the per-record-type table configuration handed to the sink
// together with each matching decoded record.
type SinkConfig struct {
	Table        string       `json:"table"`
	Fields       []string     `json:"fields"`
	Partitioning Partitioning `json:"partitioning"`
}
