package source

import (
	"context"
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

const TypeLocal = "local"

// LocalSource is a dataset file on the local filesystem, as a path or a
// file:// URI.
type LocalSource struct {
	URI string
}

type localJSON struct {
	URI string `json:"uri"`
}

func decodeLocal(raw string) (*LocalSource, error) {
	var j localJSON
	if err := json.Unmarshal([]byte(raw), &j); err != nil {
		return nil, err
	}
	if j.URI == "" {
		return nil, errors.New("local source has no uri")
	}
	return &LocalSource{URI: j.URI}, nil
}

func (s *LocalSource) Type() string { return TypeLocal }

func (s *LocalSource) JSON() (string, error) {
	b, err := json.Marshal(localJSON{URI: s.URI})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Path returns the filesystem path the URI names.
func (s *LocalSource) Path() (string, error) {
	if !strings.HasPrefix(s.URI, "file:") {
		return s.URI, nil
	}
	u, err := url.Parse(s.URI)
	if err != nil {
		return "", errors.Wrapf(err, "Unable to parse %q", s.URI)
	}
	if u.Host != "" && u.Host != "localhost" {
		return "", errors.Errorf("file URI %q names a remote host", s.URI)
	}
	return u.Path, nil
}

func (s *LocalSource) Load(ctx context.Context, dstDir string) (string, error) {
	src, err := s.Path()
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	in, err := os.Open(src)
	if err != nil {
		return "", errors.Wrapf(err, "Unable to open %s", src)
	}
	defer in.Close()

	dir, err := destination(dstDir)
	if err != nil {
		return "", err
	}
	dst := filepath.Join(dir, filepath.Base(src))
	if abs, err := filepath.Abs(src); err == nil {
		if absDst, err := filepath.Abs(dst); err == nil && abs == absDst {
			return dst, nil
		}
	}
	if _, err := writeFile(dst, in); err != nil {
		return "", err
	}
	return dst, nil
}
