package decoder

import (
	"errors"
	"fmt"
)

// DropReason classifies why a record was discarded. Every decode failure
// maps to exactly one reason; none of them propagate as fatal errors.
type DropReason string

const (
	// DropDecodeError means the payload could not be parsed into a tagged
	// tuple shape at all.
	DropDecodeError DropReason = "decode_error"
	// DropUnknownType means the tag matched no schema registry entry.
	DropUnknownType DropReason = "unknown_type"
	// DropArityMismatch means the value count differed from the schema's
	// field count for a recognized type.
	DropArityMismatch DropReason = "arity_mismatch"
	// DropTransformError means a field transform rejected its input or an
	// unexpected fault occurred while applying transforms.
	DropTransformError DropReason = "transform_error"
)

// DropError is the error returned by Decode for every discarded record.
// Callers that need the taxonomy use AsDrop; callers that only care about
// success treat it as an ordinary error.
type DropError struct {
	Reason DropReason
	Tag    string
	Err    error
}

func (e *DropError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("record dropped (%s): %v", e.Reason, e.Err)
	}

	return fmt.Sprintf("record dropped (%s)", e.Reason)
}

func (e *DropError) Unwrap() error {
	return e.Err
}

// AsDrop extracts a DropError from err, if one is in its chain.
func AsDrop(err error) (*DropError, bool) {
	var d *DropError
	if errors.As(err, &d) {
		return d, true
	}

	return nil, false
}
