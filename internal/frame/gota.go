package frame

import (
	"bytes"
	"context"
	"strconv"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/pkg/errors"

	"github.com/Simbamon/ML-Flow/internal/dataset"
)

func loadGota(_ context.Context, data []byte, delimiter rune) (*dataset.Table, error) {
	df := dataframe.ReadCSV(bytes.NewReader(data), dataframe.WithDelimiter(delimiter))
	if df.Err != nil {
		return nil, df.Err
	}
	return FromGota(df)
}

// FromGota converts a gota DataFrame.
func FromGota(df dataframe.DataFrame) (*dataset.Table, error) {
	if df.Err != nil {
		return nil, errors.Wrap(df.Err, "dataframe carries an error")
	}
	names := df.Names()
	types := df.Types()
	t := &dataset.Table{Columns: make([]dataset.Column, len(names))}
	for i, name := range names {
		t.Columns[i] = dataset.Column{Name: name, Type: gotaType(types[i])}
	}
	// Records() renders floats with %f and missing values as NaN, so cells
	// are read from the series elements instead.
	cols := make([]series.Series, len(names))
	for j, name := range names {
		cols[j] = df.Col(name)
	}
	n := df.Nrow()
	t.Rows = make([][]string, n)
	for i := 0; i < n; i++ {
		row := make([]string, len(cols))
		for j, col := range cols {
			e := col.Elem(i)
			switch {
			case e.IsNA():
				row[j] = ""
			case types[j] == series.Float:
				row[j] = strconv.FormatFloat(e.Float(), 'g', -1, 64)
			default:
				row[j] = e.String()
			}
		}
		t.Rows[i] = row
	}
	return t, nil
}

func gotaType(typ series.Type) string {
	switch typ {
	case series.Int:
		return dataset.TypeLong
	case series.Float:
		return dataset.TypeDouble
	case series.Bool:
		return dataset.TypeBoolean
	default:
		return dataset.TypeString
	}
}
