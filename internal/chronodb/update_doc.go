package chronodb

import (
	"fmt"

	"github.com/kartikbazzad/chronodb/internal/errors"
	"github.com/kartikbazzad/chronodb/internal/temporal"
)

// updateMode distinguishes a full-replacement update document from an
// operator document.
type updateMode int

const (
	updateReplace updateMode = iota
	updateOperators
)

// classifyUpdate validates the update document shape. A document where every
// top-level key is a $-operator applies operators; a document with none is a
// full replacement. Mixing the two is rejected before any version is
// touched.
func classifyUpdate(update map[string]interface{}) (updateMode, error) {
	operators := 0
	plain := 0
	for k := range update {
		if len(k) > 0 && k[0] == '$' {
			operators++
		} else {
			plain++
		}
	}
	if operators > 0 && plain > 0 {
		return 0, errors.ErrMixedUpdate
	}
	if operators > 0 {
		for k := range update {
			switch k {
			case "$set", "$unset", "$inc":
			default:
				return 0, fmt.Errorf("unknown operator %q: %w", k, errors.ErrMixedUpdate)
			}
		}
		return updateOperators, nil
	}
	return updateReplace, nil
}

// applyUpdate computes the successor's fields from the current version's
// fields and the update document. The current version is never mutated; the
// identifier is handled by the codec, not here.
func applyUpdate(current, update map[string]interface{}, mode updateMode) (map[string]interface{}, error) {
	if mode == updateReplace {
		out := make(map[string]interface{}, len(update))
		for k, v := range update {
			if k == temporal.FieldID {
				continue
			}
			out[k] = deepCopyValue(v)
		}
		return out, nil
	}

	out := make(map[string]interface{}, len(current))
	for k, v := range current {
		if k == temporal.FieldID {
			continue
		}
		out[k] = deepCopyValue(v)
	}

	if sets, ok := update["$set"].(map[string]interface{}); ok {
		for path, value := range sets {
			segments, err := splitPath(path)
			if err != nil {
				return nil, err
			}
			if err := setPath(out, segments, deepCopyValue(value)); err != nil {
				return nil, err
			}
		}
	} else if _, present := update["$set"]; present {
		return nil, fmt.Errorf("$set requires an object: %w", errors.ErrMixedUpdate)
	}

	if unsets, ok := update["$unset"].(map[string]interface{}); ok {
		for path := range unsets {
			segments, err := splitPath(path)
			if err != nil {
				return nil, err
			}
			deletePath(out, segments)
		}
	} else if _, present := update["$unset"]; present {
		return nil, fmt.Errorf("$unset requires an object: %w", errors.ErrMixedUpdate)
	}

	if incs, ok := update["$inc"].(map[string]interface{}); ok {
		for path, delta := range incs {
			segments, err := splitPath(path)
			if err != nil {
				return nil, err
			}
			n, numOK := asFloat(delta)
			if !numOK {
				return nil, fmt.Errorf("$inc requires a numeric delta for %q: %w", path, errors.ErrInvalidPath)
			}
			if err := incPath(out, segments, n); err != nil {
				return nil, err
			}
		}
	} else if _, present := update["$inc"]; present {
		return nil, fmt.Errorf("$inc requires an object: %w", errors.ErrMixedUpdate)
	}

	return out, nil
}
