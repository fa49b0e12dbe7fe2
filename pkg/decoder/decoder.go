// Package decoder turns opaque telemetry payloads into validated, transformed
// records, or drops them. Decode is all-or-nothing per record: either every
// schema field is present in the output or the record yields a DropError and
// one warn-level diagnostic. Nothing here blocks, retries or keeps state, so
// any number of payloads may be decoded concurrently.
package decoder

import (
	"fmt"

	"github.com/xentelar/kflow/pkg/logger"
	"github.com/xentelar/kflow/pkg/models"
	"github.com/xentelar/kflow/pkg/schema"
)

// Decoder decodes raw payloads against the schema registry.
type Decoder struct {
	codec Codec
	log   logger.Logger
}

// New creates a Decoder using the given payload codec.
func New(codec Codec, log logger.Logger) *Decoder {
	return &Decoder{codec: codec, log: log}
}

// Decode parses, validates and transforms one payload. On failure it emits
// exactly one diagnostic and returns a *DropError; it never panics and never
// produces a partial record.
func (d *Decoder) Decode(payload []byte) (*models.DecodedRecord, error) {
	tag, values, err := d.codec.Decode(payload)
	if err != nil {
		d.log.Warn().
			Str("reason", string(DropDecodeError)).
			Hex("payload", payload).
			Err(err).
			Msg("dropping undecodable payload")

		return nil, &DropError{Reason: DropDecodeError, Err: err}
	}

	entry, ok := schema.Lookup(models.RecordType(tag))
	if !ok {
		d.log.Warn().
			Str("reason", string(DropUnknownType)).
			Str("tag", tag).
			Interface("values", values).
			Msg("dropping record with unknown type")

		return nil, &DropError{Reason: DropUnknownType, Tag: tag}
	}

	if len(values) != len(entry.Fields) {
		d.log.Warn().
			Str("reason", string(DropArityMismatch)).
			Str("tag", tag).
			Int("want", len(entry.Fields)).
			Int("got", len(values)).
			Interface("values", values).
			Msg("dropping record with mismatched arity")

		return nil, &DropError{
			Reason: DropArityMismatch,
			Tag:    tag,
			Err:    fmt.Errorf("schema has %d fields, payload has %d values", len(entry.Fields), len(values)),
		}
	}

	record, err := applyTransforms(models.RecordType(tag), entry, values)
	if err != nil {
		d.log.Warn().
			Str("reason", string(DropTransformError)).
			Str("tag", tag).
			Hex("payload", payload).
			Err(err).
			Msg("dropping record that failed transform")

		return nil, &DropError{Reason: DropTransformError, Tag: tag, Err: err}
	}

	return record, nil
}

// applyTransforms zips field specs with values positionally. A recover
// converts any unexpected fault inside a transform into an ordinary error,
// so one poisoned record cannot abort processing of the next.
func applyTransforms(rt models.RecordType, entry schema.Entry, values []any) (rec *models.DecodedRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			rec = nil
			err = fmt.Errorf("transform panic: %v", r)
		}
	}()

	fields := make([]models.FieldValue, len(entry.Fields))

	for i, spec := range entry.Fields {
		v, terr := spec.Apply(values[i])
		if terr != nil {
			return nil, fmt.Errorf("field %q: %w", spec.Name, terr)
		}

		fields[i] = models.FieldValue{Name: spec.Name, Value: v}
	}

	return &models.DecodedRecord{Type: rt, Fields: fields}, nil
}
