// Package dataset builds dataset descriptors: the name, digest, source,
// schema and profile of a table that get logged as a run input.
package dataset

import (
	"github.com/pkg/errors"

	"github.com/Simbamon/ML-Flow/internal/tracking"
)

// DefaultName is used when no name is given.
const DefaultName = "dataset"

// Source is where a dataset came from.
type Source interface {
	Type() string
	JSON() (string, error)
}

type Dataset struct {
	name    string
	digest  string
	source  Source
	schema  string
	profile string
	targets string
}

type options struct {
	name    string
	digest  string
	targets string
}

type Option func(*options)

func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithDigest overrides the computed digest.
func WithDigest(digest string) Option {
	return func(o *options) { o.digest = digest }
}

// WithTargets names the column holding the labels.
func WithTargets(column string) Option {
	return func(o *options) { o.targets = column }
}

func collect(opts []Option) options {
	o := options{name: DefaultName}
	for _, opt := range opts {
		opt(&o)
	}
	if o.name == "" {
		o.name = DefaultName
	}
	return o
}

// FromTable describes t, read from src.
func FromTable(t *Table, src Source, opts ...Option) (*Dataset, error) {
	if t == nil {
		return nil, errors.New("table is nil")
	}
	if src == nil {
		return nil, errors.New("dataset source is nil")
	}
	if err := t.Validate(); err != nil {
		return nil, errors.Wrap(err, "Unable to describe table")
	}
	o := collect(opts)
	if o.targets != "" && t.ColumnIndex(o.targets) < 0 {
		return nil, errors.Errorf("targets column %q is not in the table", o.targets)
	}

	schema, err := tableSchema(t)
	if err != nil {
		return nil, err
	}
	profile, err := tableProfile(t)
	if err != nil {
		return nil, err
	}
	if o.digest == "" {
		o.digest = tableDigest(t)
	}
	return &Dataset{
		name:    o.name,
		digest:  o.digest,
		source:  src,
		schema:  schema,
		profile: profile,
		targets: o.targets,
	}, nil
}

func (d *Dataset) Name() string   { return d.name }
func (d *Dataset) Digest() string { return d.digest }
func (d *Dataset) Source() Source { return d.source }

// Schema is the JSON-encoded schema.
func (d *Dataset) Schema() string { return d.schema }

// Profile is the JSON-encoded profile.
func (d *Dataset) Profile() string { return d.profile }

// Targets is the label column, or "" when none was set.
func (d *Dataset) Targets() string { return d.targets }

// Entity converts d to the form logged to the tracking server.
func (d *Dataset) Entity() (tracking.DatasetEntity, error) {
	src, err := d.source.JSON()
	if err != nil {
		return tracking.DatasetEntity{}, errors.Wrap(err, "Unable to encode dataset source")
	}
	return tracking.DatasetEntity{
		Name:       d.name,
		Digest:     d.digest,
		SourceType: d.source.Type(),
		Source:     src,
		Schema:     d.schema,
		Profile:    d.profile,
	}, nil
}
