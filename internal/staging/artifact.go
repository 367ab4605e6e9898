package staging

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/pmichalski/clocksync/pkg/models"
)

// ArrowSchema maps a resource's declared schema to the artifact schema. All
// fields are nullable at the artifact level; nullability is enforced by the
// warehouse, not the transfer format.
func ArrowSchema(s *models.Schema) *arrow.Schema {
	fields := make([]arrow.Field, len(s.Columns))
	for i, col := range s.Columns {
		fields[i] = arrow.Field{Name: col.Name, Type: arrowType(col.Type), Nullable: true}
	}
	return arrow.NewSchema(fields, nil)
}

func arrowType(t models.ColumnType) arrow.DataType {
	switch t {
	case models.ColFloat:
		return arrow.PrimitiveTypes.Float64
	case models.ColBool:
		return arrow.FixedWidthTypes.Boolean
	case models.ColInt:
		return arrow.PrimitiveTypes.Int64
	case models.ColTimestamp:
		return arrow.FixedWidthTypes.Timestamp_us
	case models.ColDate:
		return arrow.FixedWidthTypes.Date32
	default:
		return arrow.BinaryTypes.String
	}
}

// Encode serializes the rows of one batch to an Arrow IPC file using the
// batch's fixed schema.
func Encode(schema *models.Schema, rows []models.FlatRow) ([]byte, error) {
	aschema := ArrowSchema(schema)
	b := array.NewRecordBuilder(memory.DefaultAllocator, aschema)
	defer b.Release()

	for _, row := range rows {
		for i, col := range schema.Columns {
			if err := appendValue(b.Field(i), col, row[col.Name]); err != nil {
				return nil, fmt.Errorf("column %q: %w", col.Name, err)
			}
		}
	}

	rec := b.NewRecord()
	defer rec.Release()

	var buf bytes.Buffer
	w, err := ipc.NewFileWriter(&buf, ipc.WithSchema(aschema), ipc.WithAllocator(memory.DefaultAllocator))
	if err != nil {
		return nil, fmt.Errorf("creating artifact writer: %w", err)
	}
	if err := w.Write(rec); err != nil {
		return nil, fmt.Errorf("writing record batch: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing artifact: %w", err)
	}
	return buf.Bytes(), nil
}

func appendValue(fb array.Builder, col models.Column, val any) error {
	if val == nil {
		fb.AppendNull()
		return nil
	}
	switch b := fb.(type) {
	case *array.StringBuilder:
		s, ok := val.(string)
		if !ok {
			return fmt.Errorf("expected string, got %T", val)
		}
		b.Append(s)
	case *array.Float64Builder:
		f, ok := val.(float64)
		if !ok {
			return fmt.Errorf("expected float64, got %T", val)
		}
		b.Append(f)
	case *array.BooleanBuilder:
		v, ok := val.(bool)
		if !ok {
			return fmt.Errorf("expected bool, got %T", val)
		}
		b.Append(v)
	case *array.Int64Builder:
		v, ok := val.(int64)
		if !ok {
			return fmt.Errorf("expected int64, got %T", val)
		}
		b.Append(v)
	case *array.TimestampBuilder:
		t, ok := val.(time.Time)
		if !ok {
			return fmt.Errorf("expected time, got %T", val)
		}
		b.Append(arrow.Timestamp(t.UnixMicro()))
	case *array.Date32Builder:
		t, ok := val.(time.Time)
		if !ok {
			return fmt.Errorf("expected time, got %T", val)
		}
		b.Append(arrow.Date32FromTime(t))
	default:
		return fmt.Errorf("unsupported builder %T", fb)
	}
	return nil
}

// Decode reads an Arrow IPC artifact back into flat rows, in row order.
// Used by the merge loader to feed the warehouse bulk copy.
func Decode(data []byte, schema *models.Schema) ([]models.FlatRow, error) {
	rdr, err := ipc.NewFileReader(bytes.NewReader(data), ipc.WithAllocator(memory.DefaultAllocator))
	if err != nil {
		return nil, fmt.Errorf("opening artifact: %w", err)
	}
	defer rdr.Close()

	var rows []models.FlatRow
	for {
		rec, err := rdr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading record batch: %w", err)
		}
		for i := 0; i < int(rec.NumRows()); i++ {
			row := make(models.FlatRow, len(schema.Columns))
			for j, col := range schema.Columns {
				row[col.Name] = columnValue(rec.Column(j), i)
			}
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func columnValue(arr arrow.Array, i int) any {
	if arr.IsNull(i) {
		return nil
	}
	switch a := arr.(type) {
	case *array.String:
		return a.Value(i)
	case *array.Float64:
		return a.Value(i)
	case *array.Boolean:
		return a.Value(i)
	case *array.Int64:
		return a.Value(i)
	case *array.Timestamp:
		return a.Value(i).ToTime(arrow.Microsecond)
	case *array.Date32:
		return a.Value(i).ToTime()
	default:
		return nil
	}
}
