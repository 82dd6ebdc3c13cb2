// Package config loads settings from defaults, an optional YAML file and
// the environment, in that order of precedence.
package config

import (
	"net/url"
	"os"
	"time"
	"unicode/utf8"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/Simbamon/ML-Flow/internal/frame"
)

const (
	DefaultTrackingURI = "http://localhost:8080"
	DefaultExperiment  = "MLflow Data Versioning"
	DefaultSourceURL   = "http://archive.ics.uci.edu/ml/machine-learning-databases/wine-quality/winequality-red.csv"
	DefaultDelimiter   = ";"
)

// Dataset formats.
const (
	FormatTable  = "table"
	FormatTensor = "tensor"
)

type Config struct {
	Tracking TrackingConfig `yaml:"tracking"`
	Dataset  DatasetConfig  `yaml:"dataset"`

	// DownloadDir receives the re-downloaded source; empty means a new
	// temporary directory.
	DownloadDir string        `yaml:"download_dir" env:"MLFLOW_DATA_DOWNLOAD_DIR"`
	HTTPTimeout time.Duration `yaml:"http_timeout" env:"MLFLOW_DATA_HTTP_TIMEOUT"`
	Progress    bool          `yaml:"progress" env:"MLFLOW_DATA_PROGRESS"`
	Verbose     bool          `yaml:"verbose" env:"MLFLOW_DATA_VERBOSE"`
}

type TrackingConfig struct {
	URI        string `yaml:"uri" env:"MLFLOW_TRACKING_URI"`
	Token      string `yaml:"token" env:"MLFLOW_TRACKING_TOKEN"`
	Username   string `yaml:"username" env:"MLFLOW_TRACKING_USERNAME"`
	Password   string `yaml:"password" env:"MLFLOW_TRACKING_PASSWORD"`
	Experiment string `yaml:"experiment" env:"MLFLOW_EXPERIMENT_NAME"`
	RunName    string `yaml:"run_name" env:"MLFLOW_RUN_NAME"`
}

type DatasetConfig struct {
	SourceURL string `yaml:"source_url" env:"MLFLOW_DATA_SOURCE_URL"`
	Delimiter string `yaml:"delimiter" env:"MLFLOW_DATA_DELIMITER"`
	Backend   string `yaml:"backend" env:"MLFLOW_DATA_BACKEND"`
	Name      string `yaml:"name" env:"MLFLOW_DATA_NAME"`
	Targets   string `yaml:"targets" env:"MLFLOW_DATA_TARGETS"`
	// Format is table or tensor. A tensor dataset is built from Features,
	// or every column but Targets when Features is empty.
	Format   string   `yaml:"format" env:"MLFLOW_DATA_FORMAT"`
	Features []string `yaml:"features" env:"MLFLOW_DATA_FEATURES" envSeparator:","`
	// Context tags the logged input; empty means the current time.
	Context string `yaml:"context" env:"MLFLOW_DATA_CONTEXT"`
}

func Default() Config {
	return Config{
		Tracking: TrackingConfig{
			URI:        DefaultTrackingURI,
			Experiment: DefaultExperiment,
		},
		Dataset: DatasetConfig{
			SourceURL: DefaultSourceURL,
			Delimiter: DefaultDelimiter,
			Backend:   frame.Gota,
			Format:    FormatTable,
		},
		HTTPTimeout: 30 * time.Second,
		Progress:    true,
	}
}

// Load returns the defaults overlaid with the YAML file at path (skipped
// when path is empty) and then the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, errors.Wrapf(err, "Unable to read config %s", path)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, errors.Wrapf(err, "Unable to parse config %s", path)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, errors.Wrap(err, "Unable to parse environment")
	}
	return cfg, nil
}

// Validate checks the settings a run depends on.
func (c Config) Validate() error {
	u, err := url.Parse(c.Tracking.URI)
	if err != nil {
		return errors.Wrapf(err, "invalid tracking URI %q", c.Tracking.URI)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.Errorf("tracking URI %q must be http or https", c.Tracking.URI)
	}
	if c.Tracking.Experiment == "" {
		return errors.New("experiment name is empty")
	}
	if c.Dataset.SourceURL == "" {
		return errors.New("dataset source URL is empty")
	}
	if _, err := c.Dataset.DelimiterRune(); err != nil {
		return err
	}
	if !frame.Has(c.Dataset.Backend) {
		return errors.Errorf("unknown backend %q, want one of %v", c.Dataset.Backend, frame.Backends())
	}
	switch c.Dataset.Format {
	case FormatTable:
		if len(c.Dataset.Features) > 0 {
			return errors.New("features only apply to the tensor format")
		}
	case FormatTensor:
	default:
		return errors.Errorf("unknown dataset format %q, want %s or %s", c.Dataset.Format, FormatTable, FormatTensor)
	}
	if c.HTTPTimeout < 0 {
		return errors.Errorf("negative HTTP timeout %s", c.HTTPTimeout)
	}
	return nil
}

// DelimiterRune returns the single delimiter character. `\t` and "tab"
// both mean a tab.
func (d DatasetConfig) DelimiterRune() (rune, error) {
	switch d.Delimiter {
	case `\t`, "tab":
		return '\t', nil
	}
	if utf8.RuneCountInString(d.Delimiter) != 1 {
		return 0, errors.Errorf("delimiter %q must be a single character", d.Delimiter)
	}
	r, _ := utf8.DecodeRuneInString(d.Delimiter)
	return r, nil
}
