package source

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	pb "gopkg.in/cheggaaa/pb.v1"
)

const TypeHTTP = "http"

// fallbackName is used when neither the response nor the URL names the file.
const fallbackName = "dataset_source"

// HTTPSource is a dataset served over HTTP(S).
type HTTPSource struct {
	URL string

	Client   *http.Client
	Progress io.Writer
	Logger   *zap.Logger
}

type httpJSON struct {
	URL string `json:"url"`
}

func NewHTTPSource(rawURL string) (*HTTPSource, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to parse source URL %q", rawURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("source URL %q is not http or https", rawURL)
	}
	return &HTTPSource{URL: rawURL}, nil
}

func decodeHTTP(raw string) (*HTTPSource, error) {
	var j httpJSON
	if err := json.Unmarshal([]byte(raw), &j); err != nil {
		return nil, err
	}
	if j.URL == "" {
		return nil, errors.New("http source has no url")
	}
	return NewHTTPSource(j.URL)
}

func (s *HTTPSource) Type() string { return TypeHTTP }

func (s *HTTPSource) JSON() (string, error) {
	b, err := json.Marshal(httpJSON{URL: s.URL})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (s *HTTPSource) Load(ctx context.Context, dstDir string) (string, error) {
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return "", errors.Wrapf(err, "Unable to build request for %s", s.URL)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", errors.Wrapf(err, "Unable to download %s", s.URL)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", errors.Errorf("download %s: unexpected status %s", s.URL, resp.Status)
	}

	name, err := downloadName(resp, s.URL)
	if err != nil {
		return "", err
	}
	dir, err := destination(dstDir)
	if err != nil {
		return "", err
	}
	dst := filepath.Join(dir, name)

	var body io.Reader = resp.Body
	if s.Progress != nil {
		total := resp.ContentLength
		if total < 0 {
			total = 0
		}
		bar := pb.New64(total).SetUnits(pb.U_BYTES)
		bar.Output = s.Progress
		bar.SetRefreshRate(time.Second)
		bar.SetMaxWidth(80)
		bar.Prefix(name)
		bar.Start()
		defer bar.Finish()
		body = bar.NewProxyReader(resp.Body)
	}

	n, err := writeFile(dst, body)
	if err != nil {
		return "", err
	}
	logger.Info("downloaded dataset source", zap.String("url", s.URL), zap.String("path", dst), zap.Int64("bytes", n))
	return dst, nil
}

// downloadName picks the local file name: the Content-Disposition filename,
// then the last URL path element, then fallbackName.
func downloadName(resp *http.Response, rawURL string) (string, error) {
	name := ""
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			name = params["filename"]
		}
	}
	if name == "" {
		if u, err := url.Parse(rawURL); err == nil && u.Path != "" && u.Path != "/" {
			name = path.Base(u.Path)
		}
	}
	if name == "" || name == "." || name == "/" {
		return fallbackName, nil
	}
	if err := checkName(name); err != nil {
		return "", err
	}
	return name, nil
}

func checkName(name string) error {
	if strings.ContainsAny(name, `/\`) || name == ".." {
		return errors.Errorf("invalid download file name %q", name)
	}
	return nil
}

func destination(dstDir string) (string, error) {
	if dstDir == "" {
		dir, err := os.MkdirTemp("", "mlflow-data-")
		if err != nil {
			return "", errors.Wrap(err, "Unable to create download directory")
		}
		return dir, nil
	}
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return "", errors.Wrapf(err, "Unable to create %s", dstDir)
	}
	return dstDir, nil
}

func writeFile(dst string, r io.Reader) (int64, error) {
	f, err := os.Create(dst)
	if err != nil {
		return 0, errors.Wrapf(err, "Unable to create %s", dst)
	}
	n, err := io.Copy(f, r)
	if err != nil {
		f.Close()
		os.Remove(dst)
		return n, errors.Wrapf(err, "Unable to write %s", dst)
	}
	if err := f.Close(); err != nil {
		return n, errors.Wrapf(err, "Unable to close %s", dst)
	}
	return n, nil
}
