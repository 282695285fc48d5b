package temporal

import (
	"github.com/google/uuid"

	"github.com/kartikbazzad/chronodb/internal/errors"
)

// Codec wraps and unwraps a document's stable identifier with interval
// metadata and builds successor versions. All transformations are
// copy-on-write: input documents are never mutated.
type Codec struct {
	clock Clock
}

func NewCodec(clock Clock) *Codec {
	return &Codec{clock: clock}
}

// Wrap moves the document's identifier into the composite temporal form:
//
//	{_id: X, a: 1} =>
//	{_id: {_id: X, transaction_start: {t,i}, transaction_end: null}, a: 1}
//
// Calling Wrap on an already-wrapped document returns it unchanged, so the
// operation is idempotent and safe on retries. A missing identifier is
// synthesized.
func (c *Codec) Wrap(doc map[string]interface{}) map[string]interface{} {
	return c.WrapAt(doc, c.clock.Next())
}

// WrapAt is Wrap with an explicit start timestamp; Advance uses it to make
// the successor's start bit-identical to the predecessor's end.
func (c *Codec) WrapAt(doc map[string]interface{}, start Timestamp) map[string]interface{} {
	if IsWrapped(doc) {
		return doc
	}

	id, ok := doc[FieldID]
	if !ok {
		id = uuid.NewString()
	}

	composite := map[string]interface{}{
		FieldID:    id,
		FieldStart: start.Value(),
		FieldEnd:   nil,
	}

	out := make(map[string]interface{}, len(doc)+1)
	for k, v := range doc {
		out[k] = v
	}
	out[FieldID] = composite
	return out
}

// IsWrapped reports whether the document already carries interval metadata
// inside its identifier.
func IsWrapped(doc map[string]interface{}) bool {
	composite, ok := doc[FieldID].(map[string]interface{})
	if !ok {
		return false
	}
	_, ok = composite[FieldStart]
	return ok
}

// Close returns a copy of the version with its transaction_end set to a
// fresh clock value. The version must carry a transaction_end field
// (errors.ErrNotTemporal otherwise) and it must still be open
// (errors.ErrVersionClosed otherwise); history is immutable.
func (c *Codec) Close(version map[string]interface{}) (map[string]interface{}, error) {
	composite, ok := version[FieldID].(map[string]interface{})
	if !ok {
		return nil, errors.ErrNotTemporal
	}
	end, present := composite[FieldEnd]
	if !present {
		return nil, errors.ErrNotTemporal
	}
	if end != nil {
		return nil, errors.ErrVersionClosed
	}

	newComposite := make(map[string]interface{}, len(composite))
	for k, v := range composite {
		newComposite[k] = v
	}
	newComposite[FieldEnd] = c.clock.Next().Value()

	out := make(map[string]interface{}, len(version))
	for k, v := range version {
		out[k] = v
	}
	out[FieldID] = newComposite
	return out, nil
}

// Advance builds the successor version from the just-closed predecessor and
// the caller's desired new fields. The successor keeps the stable identifier
// and starts exactly where the predecessor ended, which enforces the
// no-gap/no-overlap chain invariant by construction.
func (c *Codec) Advance(newFields, closedPrev map[string]interface{}) (map[string]interface{}, error) {
	composite, ok := closedPrev[FieldID].(map[string]interface{})
	if !ok {
		return nil, errors.ErrNotTemporal
	}
	end, present := composite[FieldEnd]
	if !present {
		return nil, errors.ErrNotTemporal
	}
	start, ok := ParseTimestamp(end)
	if !ok {
		return nil, errors.ErrOpenPredecessor
	}

	doc := make(map[string]interface{}, len(newFields)+1)
	doc[FieldID] = composite[FieldID]
	for k, v := range newFields {
		if k == FieldID {
			continue
		}
		doc[k] = v
	}

	return c.WrapAt(doc, start), nil
}

// StableID extracts the stable identifier shared by all versions of a chain.
func StableID(doc map[string]interface{}) (interface{}, bool) {
	if composite, ok := doc[FieldID].(map[string]interface{}); ok {
		id, ok := composite[FieldID]
		return id, ok
	}
	id, ok := doc[FieldID]
	return id, ok
}

// IntervalEnd returns the version's end timestamp. open is true when the
// version is still current.
func IntervalEnd(doc map[string]interface{}) (ts Timestamp, open bool, err error) {
	composite, ok := doc[FieldID].(map[string]interface{})
	if !ok {
		return Timestamp{}, false, errors.ErrNotTemporal
	}
	end, present := composite[FieldEnd]
	if !present {
		return Timestamp{}, false, errors.ErrNotTemporal
	}
	if end == nil {
		return Timestamp{}, true, nil
	}
	ts, ok = ParseTimestamp(end)
	if !ok {
		return Timestamp{}, false, errors.ErrNotTemporal
	}
	return ts, false, nil
}

// IntervalStart returns the version's start timestamp.
func IntervalStart(doc map[string]interface{}) (Timestamp, error) {
	composite, ok := doc[FieldID].(map[string]interface{})
	if !ok {
		return Timestamp{}, errors.ErrNotTemporal
	}
	ts, ok := ParseTimestamp(composite[FieldStart])
	if !ok {
		return Timestamp{}, errors.ErrNotTemporal
	}
	return ts, nil
}
