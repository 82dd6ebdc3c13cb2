package frame

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"

	"github.com/Simbamon/ML-Flow/internal/dataset"
)

const wineCSV = `"fixed acidity";"pH";"quality"
7.4;3.51;5
7.8;3.2;5
11.2;3.16;6
`

func TestLoad_Backends(t *testing.T) {
	ctx := context.Background()
	for _, backend := range Backends() {
		backend := backend
		t.Run(backend, func(t *testing.T) {
			tbl, err := Load(ctx, backend, []byte(wineCSV), ';')
			require.NoError(t, err)

			assert.Equal(t, []string{"fixed acidity", "pH", "quality"}, tbl.Names())
			assert.Equal(t, 3, tbl.NumRows())
			assert.Equal(t, 9, tbl.NumElements())

			assert.Equal(t, dataset.TypeDouble, tbl.Columns[0].Type)
			assert.Equal(t, dataset.TypeDouble, tbl.Columns[1].Type)
			assert.Equal(t, dataset.TypeLong, tbl.Columns[2].Type)

			q := tbl.ColumnIndex("quality")
			var quality []string
			for _, row := range tbl.Rows {
				quality = append(quality, row[q])
			}
			assert.Equal(t, []string{"5", "5", "6"}, quality)
		})
	}
}

func TestLoad_StringColumn(t *testing.T) {
	tbl, err := Load(context.Background(), Gota, []byte("name,score\nann,1\nbob,2\n"), ',')
	require.NoError(t, err)
	assert.Equal(t, dataset.TypeString, tbl.Columns[0].Type)
	assert.Equal(t, [][]string{{"ann", "1"}, {"bob", "2"}}, tbl.Rows)
}

func TestLoad_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := Load(ctx, "pandas", []byte(wineCSV), ';')
	assert.Error(t, err)

	_, err = Load(ctx, Gota, nil, ';')
	assert.Error(t, err)

	_, err = Load(ctx, QFrame, []byte(wineCSV), '→')
	assert.Error(t, err)
}

func TestHas(t *testing.T) {
	assert.True(t, Has(Gota))
	assert.True(t, Has(QFrame))
	assert.True(t, Has(DataFrameGo))
	assert.False(t, Has("pandas"))
	assert.Equal(t, []string{"dataframe-go", "gota", "qframe"}, Backends())
}

func TestFetchTable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/winequality-red.csv" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(wineCSV))
	}))
	defer srv.Close()
	ctx := context.Background()

	tbl, err := FetchTable(ctx, srv.Client(), srv.URL+"/winequality-red.csv", Gota, ';')
	require.NoError(t, err)
	assert.Equal(t, 3, tbl.NumRows())

	_, err = FetchTable(ctx, srv.Client(), srv.URL+"/missing.csv", Gota, ';')
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestToTensor(t *testing.T) {
	tbl := &dataset.Table{
		Columns: []dataset.Column{{Name: "a", Type: dataset.TypeDouble}, {Name: "b", Type: dataset.TypeString}, {Name: "c", Type: dataset.TypeLong}},
		Rows:    [][]string{{"1.5", "x", "2"}, {"2.5", "y", "3"}},
	}

	features, err := ToTensor(tbl, "a", "c")
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 2}, features.Shape())
	assert.Equal(t, []float64{1.5, 2, 2.5, 3}, features.Data())

	_, err = ToTensor(tbl)
	assert.Error(t, err, "column b is not numeric")

	_, err = ToTensor(tbl, "z")
	assert.Error(t, err)

	_, err = ToTensor(&dataset.Table{Columns: tbl.Columns})
	assert.Error(t, err)
}

type urlSource string

func (s urlSource) Type() string          { return "http" }
func (s urlSource) JSON() (string, error) { return `{"url": "` + string(s) + `"}`, nil }

func TestLoad_FloatCellsKeepPrecision(t *testing.T) {
	ctx := context.Background()
	for _, backend := range Backends() {
		backend := backend
		t.Run(backend, func(t *testing.T) {
			tbl, err := Load(ctx, backend, []byte(wineCSV), ';')
			require.NoError(t, err)
			assert.Equal(t, []string{"7.4", "3.51", "5"}, tbl.Rows[0])
			assert.Equal(t, []string{"11.2", "3.16", "6"}, tbl.Rows[2])

			a, err := Load(ctx, backend, []byte("a;b\n0.0000001;1\n"), ';')
			require.NoError(t, err)
			b, err := Load(ctx, backend, []byte("a;b\n0.0000002;1\n"), ';')
			require.NoError(t, err)
			assert.Equal(t, "1e-07", a.Rows[0][0])
			assert.Equal(t, "2e-07", b.Rows[0][0])

			dsA, err := dataset.FromTable(a, urlSource("http://example.com/a.csv"))
			require.NoError(t, err)
			dsB, err := dataset.FromTable(b, urlSource("http://example.com/a.csv"))
			require.NoError(t, err)
			assert.NotEqual(t, dsA.Digest(), dsB.Digest())

			features, err := ToTensor(a, "a")
			require.NoError(t, err)
			assert.Equal(t, []float64{1e-7}, features.Data())
		})
	}
}

func TestLoad_SameDigestAcrossBackends(t *testing.T) {
	ctx := context.Background()
	digests := make(map[string]string)
	for _, backend := range Backends() {
		tbl, err := Load(ctx, backend, []byte(wineCSV), ';')
		require.NoError(t, err, backend)
		ds, err := dataset.FromTable(tbl, urlSource("http://example.com/winequality-red.csv"))
		require.NoError(t, err, backend)
		digests[backend] = ds.Digest()
	}
	assert.Equal(t, digests[Gota], digests[QFrame])
	assert.Equal(t, digests[Gota], digests[DataFrameGo])
}

func TestLoad_HeaderOnly(t *testing.T) {
	ctx := context.Background()
	for _, backend := range Backends() {
		tbl, err := Load(ctx, backend, []byte("\"fixed acidity\";\"pH\"\n"), ';')
		require.NoError(t, err, backend)
		assert.Equal(t, 0, tbl.NumRows(), backend)
		assert.Equal(t, []dataset.Column{
			{Name: "fixed acidity", Type: dataset.TypeString},
			{Name: "pH", Type: dataset.TypeString},
		}, tbl.Columns, backend)
	}

	_, err := Load(ctx, Gota, []byte("\n\n"), ';')
	assert.Error(t, err)
}

func TestLoad_MissingCellsAgreeAcrossBackends(t *testing.T) {
	ctx := context.Background()
	digests := make(map[string]string)
	for _, backend := range Backends() {
		tbl, err := Load(ctx, backend, []byte("a;b\n1.5;1\n;2\n"), ';')
		require.NoError(t, err, backend)
		assert.Equal(t, [][]string{{"1.5", "1"}, {"", "2"}}, tbl.Rows, backend)
		assert.Equal(t, dataset.TypeDouble, tbl.Columns[0].Type, backend)
		assert.Equal(t, dataset.TypeLong, tbl.Columns[1].Type, backend)

		ds, err := dataset.FromTable(tbl, urlSource("http://example.com/a.csv"))
		require.NoError(t, err, backend)
		digests[backend] = ds.Digest()
	}
	assert.Equal(t, digests[Gota], digests[QFrame])
	assert.Equal(t, digests[Gota], digests[DataFrameGo])
}

func TestLoad_NaNIsNotAnEmptyCell(t *testing.T) {
	ctx := context.Background()
	for _, backend := range Backends() {
		backend := backend
		t.Run(backend, func(t *testing.T) {
			withNaN, err := Load(ctx, backend, []byte("a;b\nNaN;1\n1.5;2\n"), ';')
			require.NoError(t, err)
			empty, err := Load(ctx, backend, []byte("a;b\n;1\n1.5;2\n"), ';')
			require.NoError(t, err)

			assert.Equal(t, "NaN", withNaN.Rows[0][0])
			assert.Equal(t, "", empty.Rows[0][0])

			a, err := dataset.FromTable(withNaN, urlSource("http://example.com/a.csv"))
			require.NoError(t, err)
			b, err := dataset.FromTable(empty, urlSource("http://example.com/a.csv"))
			require.NoError(t, err)
			assert.NotEqual(t, a.Digest(), b.Digest())
		})
	}
}

func TestLoad_IntegerColumnWithGapsIsDouble(t *testing.T) {
	ctx := context.Background()
	for _, backend := range Backends() {
		tbl, err := Load(ctx, backend, []byte("a;b\n1;1\n;2\n"), ';')
		require.NoError(t, err, backend)
		assert.Equal(t, []dataset.Column{
			{Name: "a", Type: dataset.TypeDouble},
			{Name: "b", Type: dataset.TypeLong},
		}, tbl.Columns, backend)
		assert.Equal(t, [][]string{{"1", "1"}, {"", "2"}}, tbl.Rows, backend)
	}
}
