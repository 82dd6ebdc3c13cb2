// Package lineage logs where a dataset came from to a tracking run, reads
// it back and fetches the original data again.
package lineage

import (
	"context"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Simbamon/ML-Flow/internal/config"
	"github.com/Simbamon/ML-Flow/internal/dataset"
	"github.com/Simbamon/ML-Flow/internal/frame"
	"github.com/Simbamon/ML-Flow/internal/logging"
	"github.com/Simbamon/ML-Flow/internal/source"
	"github.com/Simbamon/ML-Flow/internal/tracking"
)

// ContextLayout formats the default input context.
const ContextLayout = "2006-01-02T15:04:05Z"

var ErrNoDatasetInputs = errors.New("run has no dataset inputs")

type Pipeline struct {
	cfg      config.Config
	http     *http.Client
	tracker  *tracking.Client
	sources  *source.Registry
	logger   *zap.Logger
	out      io.Writer
	progress io.Writer
	now      func() time.Time
}

type Option func(*Pipeline)

func WithHTTPClient(hc *http.Client) Option {
	return func(p *Pipeline) { p.http = hc }
}

func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithOutput sets where reports go. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(p *Pipeline) { p.out = w }
}

// WithProgress sets where download progress bars go. Defaults to stderr.
func WithProgress(w io.Writer) Option {
	return func(p *Pipeline) { p.progress = w }
}

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New validates cfg and wires the tracking client and source registry.
func New(cfg config.Config, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	p := &Pipeline{
		cfg:      cfg,
		out:      os.Stdout,
		progress: os.Stderr,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = logging.OrNop(p.logger)
	if p.http == nil {
		p.http = &http.Client{Timeout: cfg.HTTPTimeout}
	}

	trackOpts := []tracking.Option{
		tracking.WithHTTPClient(p.http),
		tracking.WithLogger(p.logger.Named("tracking")),
		tracking.WithClock(p.now),
	}
	if cfg.Tracking.Token != "" {
		trackOpts = append(trackOpts, tracking.WithToken(cfg.Tracking.Token))
	} else if cfg.Tracking.Username != "" {
		trackOpts = append(trackOpts, tracking.WithBasicAuth(cfg.Tracking.Username, cfg.Tracking.Password))
	}
	tracker, err := tracking.NewClient(cfg.Tracking.URI, trackOpts...)
	if err != nil {
		return nil, err
	}
	p.tracker = tracker

	srcCfg := source.Config{HTTPClient: p.http, Logger: p.logger.Named("source")}
	if cfg.Progress {
		srcCfg.Progress = p.progress
	}
	p.sources = source.Default(srcCfg)
	return p, nil
}

// Tracker exposes the tracking client.
func (p *Pipeline) Tracker() *tracking.Client { return p.tracker }

// Logged is the outcome of Log.
type Logged struct {
	RunID   string
	Dataset *dataset.Dataset
	Context string
}

// Log fetches the configured CSV, describes it and logs it as an input of
// a new run in the configured experiment.
func (p *Pipeline) Log(ctx context.Context) (*Logged, error) {
	dc := p.cfg.Dataset
	delim, err := dc.DelimiterRune()
	if err != nil {
		return nil, err
	}
	src, err := source.NewHTTPSource(dc.SourceURL)
	if err != nil {
		return nil, err
	}

	table, err := frame.FetchTable(ctx, p.http, dc.SourceURL, dc.Backend, delim)
	if err != nil {
		return nil, err
	}
	p.logger.Info("loaded dataset",
		zap.String("url", dc.SourceURL),
		zap.String("backend", dc.Backend),
		zap.Int("rows", table.NumRows()),
		zap.Int("columns", table.NumCols()))

	ds, err := describe(table, src, dc)
	if err != nil {
		return nil, err
	}
	entity, err := ds.Entity()
	if err != nil {
		return nil, err
	}

	expID, err := p.tracker.SetExperiment(ctx, p.cfg.Tracking.Experiment)
	if err != nil {
		return nil, err
	}
	dataContext := dc.Context
	if dataContext == "" {
		dataContext = p.now().Format(ContextLayout)
	}
	runID, err := p.tracker.WithRun(ctx, expID, tracking.RunOptions{Name: p.cfg.Tracking.RunName},
		func(ctx context.Context, run *tracking.ActiveRun) error {
			return run.LogInput(ctx, entity, dataContext)
		})
	if err != nil {
		return nil, err
	}
	p.logger.Info("logged dataset input",
		zap.String("run_id", runID),
		zap.String("digest", ds.Digest()),
		zap.String("context", dataContext))
	return &Logged{RunID: runID, Dataset: ds, Context: dataContext}, nil
}

// describe builds the dataset in the configured format.
func describe(table *dataset.Table, src dataset.Source, dc config.DatasetConfig) (*dataset.Dataset, error) {
	if dc.Format != config.FormatTensor {
		opts := []dataset.Option{dataset.WithName(dc.Name)}
		if dc.Targets != "" {
			opts = append(opts, dataset.WithTargets(dc.Targets))
		}
		return dataset.FromTable(table, src, opts...)
	}

	features := dc.Features
	if len(features) == 0 {
		for _, name := range table.Names() {
			if name != dc.Targets {
				features = append(features, name)
			}
		}
	}
	if dc.Targets != "" && table.ColumnIndex(dc.Targets) < 0 {
		return nil, errors.Errorf("targets column %q is not in the dataset", dc.Targets)
	}
	if len(features) == 0 {
		return nil, errors.New("tensor dataset has no feature columns")
	}
	ft, err := frame.ToTensor(table, features...)
	if err != nil {
		return nil, err
	}
	return dataset.FromTensor(ft, src, dataset.WithName(dc.Name))
}

// Inspect fetches runID and returns its first dataset input.
func (p *Pipeline) Inspect(ctx context.Context, runID string) (tracking.DatasetInput, error) {
	run, err := p.tracker.GetRun(ctx, runID)
	if err != nil {
		return tracking.DatasetInput{}, err
	}
	if len(run.Inputs.DatasetInputs) == 0 {
		return tracking.DatasetInput{}, errors.Wrapf(ErrNoDatasetInputs, "run %s", runID)
	}
	return run.Inputs.DatasetInputs[0], nil
}

// Restore resolves the source of ds and downloads it into dstDir, or the
// configured download directory when dstDir is empty.
func (p *Pipeline) Restore(ctx context.Context, ds tracking.DatasetEntity, dstDir string) (string, error) {
	src, err := p.sources.ForDataset(ds)
	if err != nil {
		return "", err
	}
	if dstDir == "" {
		dstDir = p.cfg.DownloadDir
	}
	return src.Load(ctx, dstDir)
}

// Result is the outcome of Run.
type Result struct {
	Logged
	Input tracking.DatasetInput
	Path  string
}

// Run logs the dataset, reads the last active run back, reports the
// dataset it carries and downloads its source again.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	logged, err := p.Log(ctx)
	if err != nil {
		return nil, err
	}
	runID := p.tracker.LastActiveRunID()
	if runID == "" {
		return nil, tracking.ErrNoActiveRun
	}
	in, err := p.Inspect(ctx, runID)
	if err != nil {
		return nil, err
	}
	if err := Report(p.out, in.Dataset); err != nil {
		return nil, err
	}
	path, err := p.Restore(ctx, in.Dataset, "")
	if err != nil {
		return nil, err
	}
	p.logger.Info("restored dataset source", zap.String("path", path))
	return &Result{Logged: *logged, Input: in, Path: path}, nil
}
