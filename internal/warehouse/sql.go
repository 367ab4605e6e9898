// Package warehouse merges staged batches into permanent SQL Server tables
// through per-batch transient tables.
package warehouse

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/pmichalski/clocksync/pkg/models"
)

// rowSeqColumn orders rows within one batch so that the merge can keep the
// last occurrence of a duplicated key. It exists only in transient tables.
const rowSeqColumn = "_row_seq"

func sqlType(t models.ColumnType) string {
	switch t {
	case models.ColFloat:
		return "FLOAT"
	case models.ColBool:
		return "BIT"
	case models.ColInt:
		return "BIGINT"
	case models.ColTimestamp:
		return "DATETIME2"
	case models.ColDate:
		return "DATE"
	default:
		return "NVARCHAR(MAX)"
	}
}

func quote(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// TransientName derives a collision-free transient table name for one batch.
// Overlapping runs against the same target never share a transient table.
func TransientName(target string) string {
	return fmt.Sprintf("%s_stg_%s", target, uuid.NewString()[:8])
}

func columnDefs(schema *models.Schema) []string {
	defs := make([]string, 0, len(schema.Columns)+1)
	for _, col := range schema.Columns {
		null := "NULL"
		if !col.Nullable {
			null = "NOT NULL"
		}
		defs = append(defs, fmt.Sprintf("%s %s %s", quote(col.Name), sqlType(col.Type), null))
	}
	return defs
}

// CreateTransientSQL builds the transient table for one batch. It carries the
// batch schema plus the row sequence column.
func CreateTransientSQL(table string, schema *models.Schema) string {
	defs := append(columnDefs(schema), fmt.Sprintf("%s BIGINT NOT NULL", quote(rowSeqColumn)))
	return fmt.Sprintf("CREATE TABLE %s (\n    %s\n)", quote(table), strings.Join(defs, ",\n    "))
}

// EnsureTargetSQL creates the permanent target table if it does not exist.
func EnsureTargetSQL(table string, schema *models.Schema) string {
	return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL\nCREATE TABLE %s (\n    %s\n)",
		strings.ReplaceAll(table, "'", "''"), quote(table), strings.Join(columnDefs(schema), ",\n    "))
}

// DropSQL drops a transient table, tolerating it already being gone.
func DropSQL(table string) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s", quote(table))
}

// MergeSQL builds the upsert from a transient table into the target. The
// source side is deduplicated first: when a batch carries the same merge key
// more than once, only the last occurrence (highest row sequence) survives,
// so applying the batch equals applying its rows one by one in order. Rows
// whose key exists in the target are updated, the rest inserted.
func MergeSQL(target, source string, schema *models.Schema, keys []string) string {
	keySet := make(map[string]bool, len(keys))
	for _, k := range keys {
		keySet[k] = true
	}

	cols := make([]string, len(schema.Columns))
	for i, col := range schema.Columns {
		cols[i] = quote(col.Name)
	}
	quotedKeys := make([]string, len(keys))
	for i, k := range keys {
		quotedKeys[i] = quote(k)
	}

	var on, updates, inserts []string
	for _, k := range quotedKeys {
		on = append(on, fmt.Sprintf("tgt.%s = src.%s", k, k))
	}
	for _, col := range schema.Columns {
		q := quote(col.Name)
		inserts = append(inserts, "src."+q)
		if !keySet[col.Name] {
			updates = append(updates, fmt.Sprintf("tgt.%s = src.%s", q, q))
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "MERGE INTO %s AS tgt\n", quote(target))
	fmt.Fprintf(&b, "USING (\n")
	fmt.Fprintf(&b, "    SELECT %s FROM (\n", strings.Join(cols, ", "))
	fmt.Fprintf(&b, "        SELECT %s,\n", strings.Join(cols, ", "))
	fmt.Fprintf(&b, "            ROW_NUMBER() OVER (PARTITION BY %s ORDER BY %s DESC) AS rn\n",
		strings.Join(quotedKeys, ", "), quote(rowSeqColumn))
	fmt.Fprintf(&b, "        FROM %s\n", quote(source))
	fmt.Fprintf(&b, "    ) dedup WHERE rn = 1\n")
	fmt.Fprintf(&b, ") AS src\n")
	fmt.Fprintf(&b, "ON %s\n", strings.Join(on, " AND "))
	if len(updates) > 0 {
		fmt.Fprintf(&b, "WHEN MATCHED THEN UPDATE SET %s\n", strings.Join(updates, ", "))
	}
	fmt.Fprintf(&b, "WHEN NOT MATCHED THEN INSERT (%s) VALUES (%s);",
		strings.Join(cols, ", "), strings.Join(inserts, ", "))
	return b.String()
}
