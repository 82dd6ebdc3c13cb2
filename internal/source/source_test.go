package source

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Simbamon/ML-Flow/internal/tracking"
)

const body = "a;b\n1;2\n"

func csvServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/attached":
			w.Header().Set("Content-Disposition", `attachment; filename="wine.csv"`)
		case "/evil":
			w.Header().Set("Content-Disposition", `attachment; filename="../../etc/passwd"`)
		case "/gone":
			http.Error(w, "gone", http.StatusGone)
			return
		case "/truncated.csv":
			w.Header().Set("Content-Length", "1024")
			_, _ = w.Write([]byte(body))
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPSource_Load(t *testing.T) {
	srv := csvServer(t)
	ctx := context.Background()

	cases := []struct {
		path string
		want string
	}{
		{"/data/winequality-red.csv", "winequality-red.csv"},
		{"/attached", "wine.csv"},
		{"/", fallbackName},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			dir := t.TempDir()
			s, err := NewHTTPSource(srv.URL + tc.path)
			require.NoError(t, err)
			s.Client = srv.Client()

			got, err := s.Load(ctx, dir)
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(dir, tc.want), got)

			b, err := os.ReadFile(got)
			require.NoError(t, err)
			assert.Equal(t, body, string(b))
		})
	}
}

func TestHTTPSource_LoadWithProgress(t *testing.T) {
	srv := csvServer(t)
	var progress bytes.Buffer
	s := &HTTPSource{URL: srv.URL + "/wine.csv", Client: srv.Client(), Progress: &progress}

	got, err := s.Load(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.FileExists(t, got)
	assert.NotEmpty(t, progress.String())
}

func TestHTTPSource_LoadTempDir(t *testing.T) {
	srv := csvServer(t)
	s := &HTTPSource{URL: srv.URL + "/wine.csv", Client: srv.Client()}

	got, err := s.Load(context.Background(), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(filepath.Dir(got)) })
	assert.Equal(t, "wine.csv", filepath.Base(got))
	assert.FileExists(t, got)
}

func TestHTTPSource_LoadErrors(t *testing.T) {
	srv := csvServer(t)
	ctx := context.Background()

	s := &HTTPSource{URL: srv.URL + "/evil", Client: srv.Client()}
	_, err := s.Load(ctx, t.TempDir())
	assert.Error(t, err)

	s = &HTTPSource{URL: srv.URL + "/gone", Client: srv.Client()}
	_, err = s.Load(ctx, t.TempDir())
	assert.Error(t, err)
}

func TestHTTPSource_LoadTruncatedLeavesNoFile(t *testing.T) {
	srv := csvServer(t)
	dir := t.TempDir()
	s := &HTTPSource{URL: srv.URL + "/truncated.csv", Client: srv.Client()}

	_, err := s.Load(context.Background(), dir)
	require.Error(t, err)
	assert.NoFileExists(t, filepath.Join(dir, "truncated.csv"))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestWriteFile_RemovesPartialFile(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "wine.csv")
	_, err := writeFile(dst, io.MultiReader(strings.NewReader("a;b\n"), failingReader{}))
	require.Error(t, err)
	assert.NoFileExists(t, dst)
}

func TestNewHTTPSource_RejectsScheme(t *testing.T) {
	_, err := NewHTTPSource("s3://bucket/wine.csv")
	assert.Error(t, err)
}

func TestLocalSource_Load(t *testing.T) {
	srcDir := t.TempDir()
	path := filepath.Join(srcDir, "wine.csv")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	ctx := context.Background()

	for _, uri := range []string{path, "file://" + path} {
		dst := t.TempDir()
		got, err := (&LocalSource{URI: uri}).Load(ctx, dst)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dst, "wine.csv"), got)
		b, err := os.ReadFile(got)
		require.NoError(t, err)
		assert.Equal(t, body, string(b))
	}

	got, err := (&LocalSource{URI: path}).Load(ctx, srcDir)
	require.NoError(t, err)
	assert.Equal(t, path, got)

	_, err = (&LocalSource{URI: "file://remote/wine.csv"}).Load(ctx, t.TempDir())
	assert.Error(t, err)

	_, err = (&LocalSource{URI: filepath.Join(srcDir, "missing.csv")}).Load(ctx, t.TempDir())
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	srv := csvServer(t)
	reg := Default(Config{HTTPClient: srv.Client()})
	assert.Equal(t, []string{TypeHTTP, TypeLocal}, reg.Types())

	s, err := reg.ForDataset(tracking.DatasetEntity{
		SourceType: TypeHTTP,
		Source:     `{"url": "` + srv.URL + `/wine.csv"}`,
	})
	require.NoError(t, err)
	require.IsType(t, &HTTPSource{}, s)
	assert.Equal(t, srv.Client(), s.(*HTTPSource).Client)

	raw, err := s.JSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"url": "`+srv.URL+`/wine.csv"}`, raw)

	got, err := s.Load(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.FileExists(t, got)

	local, err := reg.Resolve(TypeLocal, `{"uri": "/tmp/wine.csv"}`)
	require.NoError(t, err)
	assert.Equal(t, &LocalSource{URI: "/tmp/wine.csv"}, local)

	_, err = reg.Resolve("s3", `{}`)
	assert.True(t, errors.Is(err, ErrUnknownSourceType))
	assert.Contains(t, err.Error(), `"s3", want one of [http local]`)

	_, err = reg.Resolve(TypeHTTP, `{}`)
	assert.Error(t, err)
	_, err = reg.Resolve(TypeHTTP, `not json`)
	assert.Error(t, err)
}
