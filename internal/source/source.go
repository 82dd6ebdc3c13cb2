// Package source resolves dataset sources recorded on the tracking server
// and downloads their data.
package source

import (
	"context"
	"io"
	"net/http"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Simbamon/ML-Flow/internal/tracking"
)

// ErrUnknownSourceType is returned when no decoder handles a source type.
var ErrUnknownSourceType = errors.New("unknown dataset source type")

// Source is the origin of a dataset, able to fetch the data again.
type Source interface {
	Type() string
	JSON() (string, error)
	// Load places the data in dstDir, or in a new temporary directory when
	// dstDir is empty, and returns the local path.
	Load(ctx context.Context, dstDir string) (string, error)
}

// Decoder builds a Source from its JSON encoding.
type Decoder func(raw string) (Source, error)

type Registry struct {
	mu       sync.RWMutex
	decoders map[string]Decoder
}

func NewRegistry() *Registry {
	return &Registry{decoders: make(map[string]Decoder)}
}

// Config carries what sources need to load data.
type Config struct {
	HTTPClient *http.Client
	// Progress receives a download progress bar; nil disables it.
	Progress io.Writer
	Logger   *zap.Logger
}

// Default returns a registry that knows the http and local source types.
func Default(cfg Config) *Registry {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	r := NewRegistry()
	r.Register(TypeHTTP, func(raw string) (Source, error) {
		s, err := decodeHTTP(raw)
		if err != nil {
			return nil, err
		}
		s.Client = cfg.HTTPClient
		s.Progress = cfg.Progress
		s.Logger = cfg.Logger
		return s, nil
	})
	r.Register(TypeLocal, func(raw string) (Source, error) {
		return decodeLocal(raw)
	})
	return r
}

// Register adds or replaces the decoder for sourceType.
func (r *Registry) Register(sourceType string, d Decoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoders[sourceType] = d
}

// Types lists the registered source types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.decoders))
	for t := range r.decoders {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Resolve decodes the source of the given type.
func (r *Registry) Resolve(sourceType, raw string) (Source, error) {
	r.mu.RLock()
	d, ok := r.decoders[sourceType]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrUnknownSourceType, "%q, want one of %v", sourceType, r.Types())
	}
	s, err := d(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to decode %s source", sourceType)
	}
	return s, nil
}

// ForDataset resolves the source of a dataset read back from the server.
func (r *Registry) ForDataset(ds tracking.DatasetEntity) (Source, error) {
	return r.Resolve(ds.SourceType, ds.Source)
}
