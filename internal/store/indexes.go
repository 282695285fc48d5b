package store

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kartikbazzad/chronodb/internal/errors"
	"github.com/kartikbazzad/chronodb/internal/query"
)

// indexDef is one index definition. Unique indexes keep an encoded-key map
// and are enforced on insert and update. Non-unique definitions are retained
// so the catalog can persist them, but maintain no structure: this store
// does not plan index-backed scans.
type indexDef struct {
	name   string
	fields []string
	unique bool
	keys   map[string]Loc
}

// EnsureIndex defines an index over the given dotted field paths. Defining
// the same index twice is a no-op. A unique index is validated against every
// live record before it is accepted.
//
// A null value encodes distinctly from every concrete value, so uniqueness
// over a field holding an open/closed interval end is scoped to open
// versions: historic versions always carry distinct concrete ends.
func (c *Collection) EnsureIndex(name string, fields []string, unique bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.indexes[name]; exists {
		return nil
	}

	def := &indexDef{name: name, fields: fields, unique: unique}
	if unique {
		def.keys = make(map[string]Loc)
		for loc := uint64(0); loc < uint64(len(c.slots)); loc++ {
			if !c.slots[loc].live {
				continue
			}
			doc, err := c.docLocked(loc)
			if err != nil {
				return err
			}
			key := encodeIndexKey(doc, fields)
			if prev, dup := def.keys[key]; dup {
				return fmt.Errorf("%w: index %s, records %d and %d", errors.ErrUniqueViolation, name, prev, loc)
			}
			def.keys[key] = loc
		}
	}
	c.indexes[name] = def
	return nil
}

// Indexes returns the defined index names.
func (c *Collection) Indexes() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.indexes))
	for name := range c.indexes {
		names = append(names, name)
	}
	return names
}

// checkUniqueLocked validates a candidate document against every unique
// index. exclude is the record being updated, whose own keys do not count.
func (c *Collection) checkUniqueLocked(doc map[string]interface{}, exclude *Loc) error {
	for _, def := range c.indexes {
		if !def.unique {
			continue
		}
		key := encodeIndexKey(doc, def.fields)
		if loc, dup := def.keys[key]; dup {
			if exclude != nil && loc == *exclude {
				continue
			}
			return fmt.Errorf("%w: index %s", errors.ErrUniqueViolation, def.name)
		}
	}
	return nil
}

func (c *Collection) indexInsertLocked(doc map[string]interface{}, loc Loc) {
	for _, def := range c.indexes {
		if !def.unique {
			continue
		}
		def.keys[encodeIndexKey(doc, def.fields)] = loc
	}
}

func (c *Collection) indexRemoveLocked(doc map[string]interface{}, loc Loc) {
	for _, def := range c.indexes {
		if !def.unique {
			continue
		}
		key := encodeIndexKey(doc, def.fields)
		if cur, ok := def.keys[key]; ok && cur == loc {
			delete(def.keys, key)
		}
	}
}

// encodeIndexKey builds a stable string key from the document's values at
// the index fields. A missing field encodes like null.
func encodeIndexKey(doc map[string]interface{}, fields []string) string {
	parts := make([]string, len(fields))
	for i, field := range fields {
		val, ok := query.Lookup(doc, field)
		if !ok {
			val = nil
		}
		parts[i] = encodeIndexValue(val)
	}
	return strings.Join(parts, "\x1f")
}

func encodeIndexValue(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return "\x00"
	case string:
		return "s:" + x
	case bool:
		return fmt.Sprintf("b:%t", x)
	case float64:
		return fmt.Sprintf("f:%v", x)
	case map[string]interface{}:
		// timestamp-shaped values get a canonical encoding
		if t, tok := x["t"]; tok {
			if i, iok := x["i"]; iok && len(x) == 2 {
				return fmt.Sprintf("ts:%v.%v", t, i)
			}
		}
		raw, _ := json.Marshal(x)
		return "j:" + string(raw)
	default:
		raw, _ := json.Marshal(x)
		return "j:" + string(raw)
	}
}
