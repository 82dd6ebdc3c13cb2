package frame

import (
	"bytes"
	"context"
	"encoding/csv"

	"github.com/pkg/errors"
	"github.com/tobgu/qframe"
	qcsv "github.com/tobgu/qframe/config/csv"
	"github.com/tobgu/qframe/types"

	"github.com/Simbamon/ML-Flow/internal/dataset"
)

func loadQFrame(_ context.Context, data []byte, delimiter rune) (*dataset.Table, error) {
	if delimiter <= 0 || delimiter > 127 {
		return nil, errors.Errorf("qframe needs a single-byte delimiter, got %q", delimiter)
	}
	qf := qframe.ReadCSV(bytes.NewReader(data), qcsv.Delimiter(byte(delimiter)))
	if qf.Err != nil {
		return nil, qf.Err
	}
	return FromQFrame(qf)
}

// FromQFrame converts a QFrame. Cells are rendered through its CSV writer.
func FromQFrame(qf qframe.QFrame) (*dataset.Table, error) {
	if qf.Err != nil {
		return nil, errors.Wrap(qf.Err, "qframe carries an error")
	}
	names := qf.ColumnNames()
	colTypes := qf.ColumnTypes()
	t := &dataset.Table{Columns: make([]dataset.Column, len(names))}
	for i, name := range names {
		t.Columns[i] = dataset.Column{Name: name, Type: qframeType(colTypes[i])}
	}
	if qf.Len() == 0 {
		return t, nil
	}

	var buf bytes.Buffer
	if err := qf.ToCSV(&buf); err != nil {
		return nil, errors.Wrap(err, "Unable to render qframe")
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "Unable to read rendered qframe")
	}
	if len(records) > 1 {
		t.Rows = records[1:]
	}
	return t, nil
}

func qframeType(typ types.DataType) string {
	switch typ {
	case types.Int:
		return dataset.TypeLong
	case types.Float:
		return dataset.TypeDouble
	case types.Bool:
		return dataset.TypeBoolean
	default:
		return dataset.TypeString
	}
}
