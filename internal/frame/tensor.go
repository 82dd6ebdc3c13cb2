package frame

import (
	"strconv"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/Simbamon/ML-Flow/internal/dataset"
)

// ToTensor packs the named columns (all columns when none are named) into a
// float64 matrix with one row per table row.
func ToTensor(t *dataset.Table, columns ...string) (*tensor.Dense, error) {
	if t.NumRows() == 0 {
		return nil, errors.New("cannot build a tensor from an empty table")
	}
	idx := make([]int, 0, len(columns))
	if len(columns) == 0 {
		for i := range t.Columns {
			idx = append(idx, i)
		}
	}
	for _, name := range columns {
		i := t.ColumnIndex(name)
		if i < 0 {
			return nil, errors.Errorf("column %q is not in the table", name)
		}
		idx = append(idx, i)
	}

	rows, cols := t.NumRows(), len(idx)
	b := make([]float64, 0, rows*cols)
	for r, row := range t.Rows {
		for _, j := range idx {
			v, err := strconv.ParseFloat(row[j], 64)
			if err != nil {
				return nil, errors.Wrapf(err, "row %d column %q is not numeric", r, t.Columns[j].Name)
			}
			b = append(b, v)
		}
	}
	return tensor.New(tensor.WithShape(rows, cols), tensor.WithBacking(b)), nil
}
