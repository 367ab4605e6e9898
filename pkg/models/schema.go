package models

// ColumnType enumerates the scalar types a warehouse column can hold.
type ColumnType string

const (
	ColString    ColumnType = "string"
	ColFloat     ColumnType = "float"
	ColBool      ColumnType = "bool"
	ColInt       ColumnType = "int"
	ColTimestamp ColumnType = "timestamp"
	ColDate      ColumnType = "date"
)

// Column describes one column of a resource's flat schema. Names are already
// normalized (lowercase, underscore-joined). Duration marks a column whose
// source value is a millisecond count to be stored as decimal hours.
type Column struct {
	Name     string
	Type     ColumnType
	Nullable bool
	Duration bool
}

// Schema is the fixed, pre-declared column set for one resource type.
// Every FlatRow of a run carries exactly these columns; missing source
// fields are materialized as NULLs, never as absent keys.
type Schema struct {
	Columns []Column
}

func (s *Schema) Names() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// Lookup returns the column with the given normalized name.
func (s *Schema) Lookup(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}
