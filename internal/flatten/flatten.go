// Package flatten converts nested source records into flat rows matching a
// resource's pre-declared schema.
package flatten

import (
	"fmt"
	"strings"
	"time"

	"github.com/pmichalski/clocksync/internal/pipeline"
	"github.com/pmichalski/clocksync/pkg/models"
)

// millisPerHour converts source-native millisecond durations to decimal hours.
const millisPerHour = 3_600_000

// ImportTimestampColumn is appended to every row with the wall-clock time of
// the flattening call.
const ImportTimestampColumn = "import_timestamp"

// Flattener normalizes nested records against one resource schema. The
// column set it produces is identical for every record of a run: absent
// optional fields are emitted as NULLs, and a flattened column that is not
// declared in the schema is a fatal schema mismatch.
type Flattener struct {
	Schema *models.Schema
	// Now is overridable in tests; defaults to time.Now.
	Now func() time.Time
}

func NewFlattener(schema *models.Schema) *Flattener {
	return &Flattener{Schema: schema}
}

// Flatten recursively descends into nested mappings, joining keys with an
// underscore under the parent prefix. For arrays only the first element is
// flattened; later elements are dropped, not merged or indexed. Downstream
// tables were built on this lossy policy, so it is kept as-is.
func (f *Flattener) Flatten(record map[string]any) (models.FlatRow, error) {
	flat := make(map[string]any)
	walk(record, "", flat)

	for name := range flat {
		if name == ImportTimestampColumn {
			continue
		}
		if _, ok := f.Schema.Lookup(name); !ok {
			return nil, fmt.Errorf("%w: unexpected column %q", pipeline.ErrSchemaMismatch, name)
		}
	}

	now := time.Now
	if f.Now != nil {
		now = f.Now
	}

	row := make(models.FlatRow, len(f.Schema.Columns))
	for _, col := range f.Schema.Columns {
		if col.Name == ImportTimestampColumn {
			row[col.Name] = now()
			continue
		}
		val, ok := flat[col.Name]
		if !ok || val == nil {
			row[col.Name] = nil
			continue
		}
		coerced, err := coerce(val, col)
		if err != nil {
			return nil, fmt.Errorf("%w: column %q: %v", pipeline.ErrSchemaMismatch, col.Name, err)
		}
		row[col.Name] = coerced
	}
	return row, nil
}

func walk(value any, prefix string, out map[string]any) {
	switch v := value.(type) {
	case map[string]any:
		for key, child := range v {
			walk(child, join(prefix, key), out)
		}
	case []any:
		if len(v) > 0 {
			walk(v[0], prefix, out)
		}
	default:
		if prefix != "" {
			out[prefix] = v
		}
	}
}

func join(prefix, key string) string {
	name := Normalize(key)
	if prefix == "" {
		return name
	}
	if name == "" {
		return prefix
	}
	return prefix + "_" + name
}

// Normalize lowercases a key and collapses every run of non-alphanumeric
// characters into a single underscore, trimming leading and trailing ones.
func Normalize(name string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(name) {
		isAlnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if !isAlnum {
			pendingSep = b.Len() > 0
			continue
		}
		if pendingSep {
			b.WriteByte('_')
			pendingSep = false
		}
		b.WriteRune(r)
	}
	return b.String()
}
