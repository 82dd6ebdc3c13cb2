package frame

import (
	"bytes"
	"context"

	dfgo "github.com/rocketlaunchr/dataframe-go"
	"github.com/rocketlaunchr/dataframe-go/imports"

	"github.com/Simbamon/ML-Flow/internal/dataset"
)

func loadDataFrameGo(ctx context.Context, data []byte, delimiter rune) (*dataset.Table, error) {
	df, err := imports.LoadFromCSV(ctx, bytes.NewReader(data), imports.CSVLoadOptions{
		Comma:          delimiter,
		InferDataTypes: true,
	})
	if err != nil {
		return nil, err
	}
	return FromDataFrameGo(df), nil
}

// FromDataFrameGo converts a dataframe-go DataFrame.
func FromDataFrameGo(df *dfgo.DataFrame) *dataset.Table {
	t := &dataset.Table{Columns: make([]dataset.Column, len(df.Series))}
	for i, s := range df.Series {
		t.Columns[i] = dataset.Column{Name: s.Name(), Type: dataFrameGoType(s.Type())}
	}
	n := df.NRows()
	t.Rows = make([][]string, n)
	for row := 0; row < n; row++ {
		cells := make([]string, len(df.Series))
		for j, s := range df.Series {
			cells[j] = s.ValueString(row)
		}
		t.Rows[row] = cells
	}
	return t
}

func dataFrameGoType(typ string) string {
	switch typ {
	case "int64":
		return dataset.TypeLong
	case "float64":
		return dataset.TypeDouble
	default:
		return dataset.TypeString
	}
}
