package chronodb

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kartikbazzad/chronodb/internal/errors"
	"github.com/kartikbazzad/chronodb/internal/temporal"
)

// splitPath parses a dotted update path into segments. The identifier and
// its interval metadata are never writable through an update operator.
func splitPath(path string) ([]string, error) {
	if path == "" {
		return nil, errors.ErrInvalidPath
	}
	segments := strings.Split(path, ".")
	for _, seg := range segments {
		if seg == "" {
			return nil, fmt.Errorf("empty segment in %q: %w", path, errors.ErrInvalidPath)
		}
	}
	if segments[0] == temporal.FieldID || segments[0] == temporal.SelectorField {
		return nil, fmt.Errorf("reserved field %q: %w", segments[0], errors.ErrInvalidPath)
	}
	return segments, nil
}

// getPath retrieves the value at a dotted path.
func getPath(doc map[string]interface{}, path []string) (interface{}, bool) {
	var current interface{} = doc
	for _, segment := range path {
		switch v := current.(type) {
		case map[string]interface{}:
			val, exists := v[segment]
			if !exists {
				return nil, false
			}
			current = val
		case []interface{}:
			index, err := strconv.Atoi(segment)
			if err != nil || index < 0 || index >= len(v) {
				return nil, false
			}
			current = v[index]
		default:
			return nil, false
		}
	}
	return current, true
}

// setPath sets a value at a dotted path, creating intermediate objects as
// needed. Primitives along the way are replaced by objects.
func setPath(doc map[string]interface{}, path []string, value interface{}) error {
	current := doc
	for i := 0; i < len(path)-1; i++ {
		segment := path[i]
		val, exists := current[segment]
		if !exists {
			next := make(map[string]interface{})
			current[segment] = next
			current = next
			continue
		}
		switch v := val.(type) {
		case map[string]interface{}:
			current = v
		case []interface{}:
			return fmt.Errorf("cannot set key %q on array: %w", segment, errors.ErrInvalidPath)
		default:
			next := make(map[string]interface{})
			current[segment] = next
			current = next
		}
	}
	current[path[len(path)-1]] = value
	return nil
}

// deletePath removes the value at a dotted path. A missing path is not an
// error; unset is idempotent.
func deletePath(doc map[string]interface{}, path []string) {
	current := doc
	for i := 0; i < len(path)-1; i++ {
		next, ok := current[path[i]].(map[string]interface{})
		if !ok {
			return
		}
		current = next
	}
	delete(current, path[len(path)-1])
}

// incPath adds delta to the numeric value at a dotted path, creating the
// field at delta when absent.
func incPath(doc map[string]interface{}, path []string, delta float64) error {
	cur, exists := getPath(doc, path)
	if !exists {
		return setPath(doc, path, delta)
	}
	n, ok := asFloat(cur)
	if !ok {
		return fmt.Errorf("cannot increment non-numeric field %q: %w",
			strings.Join(path, "."), errors.ErrInvalidPath)
	}
	return setPath(doc, path, n+delta)
}

func asFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	default:
		return 0, false
	}
}

// deepCopyValue copies a decoded JSON value so operator application never
// aliases the predecessor version's fields.
func deepCopyValue(v interface{}) interface{} {
	switch x := v.(type) {
	case map[string]interface{}:
		return deepCopyDoc(x)
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, e := range x {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}

func deepCopyDoc(doc map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		out[k] = deepCopyValue(v)
	}
	return out
}
