package export

import (
	"bytes"
	"fmt"

	"github.com/parquet-go/parquet-go"

	"github.com/regdbot/regdbot/internal/backend"
)

// EncodeResult is an encoded query result ready for upload or local write.
type EncodeResult struct {
	Data        []byte
	RecordCount int64
}

// EncodeResultToParquet encodes a materialized query result. The parquet
// schema is derived per column from the first non-nil value; columns whose
// values are all nil encode as optional strings. Every field is optional
// because result rows routinely carry NULLs.
func EncodeResultToParquet(result backend.Result) (EncodeResult, error) {
	if len(result.Columns) == 0 {
		return EncodeResult{}, fmt.Errorf("result has no columns")
	}

	kinds := columnKinds(result)
	group := parquet.Group{}
	for i, column := range result.Columns {
		group[column] = parquet.Optional(kinds[i].node())
	}
	schema := parquet.NewSchema("result", group)

	rows := make([]map[string]any, 0, len(result.Rows))
	for _, row := range result.Rows {
		record := make(map[string]any, len(result.Columns))
		for i, column := range result.Columns {
			if i >= len(row) {
				break
			}
			value, err := kinds[i].coerce(row[i])
			if err != nil {
				return EncodeResult{}, fmt.Errorf("column %q: %w", column, err)
			}
			record[column] = value
		}
		rows = append(rows, record)
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[map[string]any](buf, schema)
	if len(rows) > 0 {
		if _, err := writer.Write(rows); err != nil {
			return EncodeResult{}, fmt.Errorf("write parquet rows: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return EncodeResult{}, fmt.Errorf("close parquet writer: %w", err)
	}

	return EncodeResult{Data: buf.Bytes(), RecordCount: int64(len(rows))}, nil
}

type columnKind int

const (
	kindString columnKind = iota
	kindInt
	kindFloat
	kindBool
)

func columnKinds(result backend.Result) []columnKind {
	kinds := make([]columnKind, len(result.Columns))
	for i := range result.Columns {
		kinds[i] = kindString
		for _, row := range result.Rows {
			if i >= len(row) || row[i] == nil {
				continue
			}
			kinds[i] = kindOf(row[i])
			break
		}
	}
	return kinds
}

func kindOf(value any) columnKind {
	switch value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return kindInt
	case float32, float64:
		return kindFloat
	case bool:
		return kindBool
	default:
		return kindString
	}
}

func (k columnKind) node() parquet.Node {
	switch k {
	case kindInt:
		return parquet.Int(64)
	case kindFloat:
		return parquet.Leaf(parquet.DoubleType)
	case kindBool:
		return parquet.Leaf(parquet.BooleanType)
	default:
		return parquet.String()
	}
}

// coerce narrows driver values to the column's parquet type. Nil passes
// through as a missing optional value.
func (k columnKind) coerce(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	switch k {
	case kindInt:
		switch typed := value.(type) {
		case int:
			return int64(typed), nil
		case int8:
			return int64(typed), nil
		case int16:
			return int64(typed), nil
		case int32:
			return int64(typed), nil
		case int64:
			return typed, nil
		case uint:
			return int64(typed), nil
		case uint8:
			return int64(typed), nil
		case uint16:
			return int64(typed), nil
		case uint32:
			return int64(typed), nil
		case uint64:
			return int64(typed), nil
		default:
			return nil, fmt.Errorf("value %#v is not an integer", value)
		}
	case kindFloat:
		switch typed := value.(type) {
		case float32:
			return float64(typed), nil
		case float64:
			return typed, nil
		default:
			return nil, fmt.Errorf("value %#v is not a float", value)
		}
	case kindBool:
		typed, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("value %#v is not a bool", value)
		}
		return typed, nil
	default:
		return fmt.Sprint(value), nil
	}
}
