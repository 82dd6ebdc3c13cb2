// Package frame reads CSV data into a dataset.Table through one of several
// dataframe libraries.
package frame

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"net/http"
	"sort"
	"strconv"

	"github.com/pkg/errors"

	"github.com/Simbamon/ML-Flow/internal/dataset"
)

// Backend names.
const (
	Gota        = "gota"
	QFrame      = "qframe"
	DataFrameGo = "dataframe-go"
)

// Loader parses CSV bytes split on delimiter into a table.
type Loader func(ctx context.Context, data []byte, delimiter rune) (*dataset.Table, error)

var loaders = map[string]Loader{
	Gota:        loadGota,
	QFrame:      loadQFrame,
	DataFrameGo: loadDataFrameGo,
}

// Backends lists the known backend names, sorted.
func Backends() []string {
	names := make([]string, 0, len(loaders))
	for name := range loaders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether backend is known.
func Has(backend string) bool {
	_, ok := loaders[backend]
	return ok
}

// Load parses data with the named backend.
func Load(ctx context.Context, backend string, data []byte, delimiter rune) (*dataset.Table, error) {
	load, ok := loaders[backend]
	if !ok {
		return nil, errors.Errorf("unknown frame backend %q, want one of %v", backend, Backends())
	}
	if len(data) == 0 {
		return nil, errors.New("CSV data is empty")
	}
	records, err := readRecords(data, delimiter)
	if err != nil {
		return nil, err
	}
	if len(records) == 1 {
		return headerTable(records[0]), nil
	}
	t, err := load(ctx, data, delimiter)
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to load CSV with %s", backend)
	}
	if len(t.Rows) != len(records)-1 {
		return nil, errors.Errorf("%s read %d rows, want %d", backend, len(t.Rows), len(records)-1)
	}
	if err := t.Validate(); err != nil {
		return nil, errors.Wrapf(err, "%s produced an invalid table", backend)
	}
	restoreMissing(t, records[1:])
	widenMissing(t)
	canonicalDoubles(t)
	return t, nil
}

// readRecords splits data into raw records, header first.
func readRecords(data []byte, delimiter rune) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = delimiter
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "Unable to read CSV records")
	}
	if len(records) == 0 {
		return nil, errors.New("CSV data has no header")
	}
	return records, nil
}

// headerTable is the table of a header-only CSV: no rows, every column a
// string column.
func headerTable(header []string) *dataset.Table {
	t := &dataset.Table{Columns: make([]dataset.Column, len(header))}
	for i, name := range header {
		t.Columns[i] = dataset.Column{Name: name, Type: dataset.TypeString}
	}
	return t
}

// restoreMissing puts back what the CSV held where a backend reports a
// missing value. Backends render missing cells as "" or "NaN" and cannot
// tell an empty cell from a literal NaN, so an empty raw cell stays "" and
// any other raw text is kept as written.
func restoreMissing(t *dataset.Table, raw [][]string) {
	for i, row := range t.Rows {
		for j, cell := range row {
			if j >= len(raw[i]) {
				continue
			}
			switch {
			case raw[i][j] == "":
				row[j] = ""
			case cell == "" || cell == "NaN":
				row[j] = raw[i][j]
			}
		}
	}
}

// widenMissing types a column with missing cells as double when every
// present cell is a number. Backends disagree on such columns (long, double
// or string), and a missing value cannot be held by a long.
func widenMissing(t *dataset.Table) {
	for j := range t.Columns {
		if t.Columns[j].Type == dataset.TypeDouble {
			continue
		}
		missing, numeric := false, true
		for _, row := range t.Rows {
			if row[j] == "" {
				missing = true
				continue
			}
			if _, err := strconv.ParseFloat(row[j], 64); err != nil {
				numeric = false
				break
			}
		}
		if missing && numeric {
			t.Columns[j].Type = dataset.TypeDouble
		}
	}
}

// canonicalDoubles rewrites double cells in shortest round-trip form so
// every backend yields the same text for the same value. Cells that are not
// numbers, such as an NA marker, are left as written.
func canonicalDoubles(t *dataset.Table) {
	for j, c := range t.Columns {
		if c.Type != dataset.TypeDouble {
			continue
		}
		for _, row := range t.Rows {
			if j >= len(row) || row[j] == "" {
				continue
			}
			if v, err := strconv.ParseFloat(row[j], 64); err == nil {
				row[j] = strconv.FormatFloat(v, 'g', -1, 64)
			}
		}
	}
}

// Fetch downloads url and returns its body.
func Fetch(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to build request for %s", url)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to fetch %s", url)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Errorf("fetch %s: unexpected status %s", url, resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to read %s", url)
	}
	return data, nil
}

// FetchTable downloads url and parses it with backend.
func FetchTable(ctx context.Context, client *http.Client, url, backend string, delimiter rune) (*dataset.Table, error) {
	data, err := Fetch(ctx, client, url)
	if err != nil {
		return nil, err
	}
	return Load(ctx, backend, data, delimiter)
}
