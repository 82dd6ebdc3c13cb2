package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Simbamon/ML-Flow/internal/config"
	"github.com/Simbamon/ML-Flow/internal/frame"
	"github.com/Simbamon/ML-Flow/internal/lineage"
	"github.com/Simbamon/ML-Flow/internal/logging"
)

// flags holds command line overrides; only flags the user set are applied.
type flags struct {
	configPath  string
	verbose     bool
	trackingURI string
	experiment  string
	runName     string
	sourceURL   string
	delimiter   string
	backend     string
	name        string
	targets     string
	format      string
	features    []string
	dataContext string
	downloadDir string
	noProgress  bool
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	doneChan := make(chan bool, 1)
	go cleanup(sigChan, doneChan, cancel)

	err := newRootCmd(os.Stdout).ExecuteContext(ctx)
	doneChan <- true
	cancel()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func cleanup(sigChan chan os.Signal, doneChan chan bool, cancel context.CancelFunc) {
	select {
	case sig := <-sigChan:
		fmt.Fprintf(os.Stderr, "received %s, stopping\n", sig)
		cancel()
	case <-doneChan:
		return
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	f := &flags{}
	var logger *zap.Logger

	root := &cobra.Command{
		Use:   "mlflow-data",
		Short: "Log dataset provenance to an MLflow tracking server",
		Long: `mlflow-data fetches a CSV over HTTP, describes it (source, digest, schema,
profile) and logs it as an input of an MLflow run. It can read the run back,
print the dataset it carries and download the dataset source again.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			verbose := f.verbose
			if cfg, err := config.Load(f.configPath); err == nil && cfg.Verbose {
				verbose = true
			}
			var err error
			logger, err = logging.New(verbose)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&f.configPath, "config", "c", "", "YAML config file")
	pf.BoolVarP(&f.verbose, "verbose", "v", false, "debug logging")
	pf.StringVar(&f.trackingURI, "tracking-uri", "", "tracking server URI (default "+config.DefaultTrackingURI+")")
	pf.StringVar(&f.experiment, "experiment", "", "experiment name (default \""+config.DefaultExperiment+"\")")
	pf.StringVar(&f.downloadDir, "download-dir", "", "where to download the dataset source (default a temp dir)")
	pf.BoolVar(&f.noProgress, "no-progress", false, "hide the download progress bar")

	pipeline := func(cmd *cobra.Command) (*lineage.Pipeline, error) {
		cfg, err := f.load(cmd)
		if err != nil {
			return nil, err
		}
		return lineage.New(cfg, lineage.WithLogger(logger), lineage.WithOutput(out))
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Log the dataset, read the run back and download the source again",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := pipeline(cmd)
			if err != nil {
				return err
			}
			res, err := p.Run(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Run ID: %s\nDataset source downloaded to: %s\n", res.RunID, res.Path)
			return nil
		},
	}

	logCmd := &cobra.Command{
		Use:   "log",
		Short: "Log the dataset as an input of a new run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := pipeline(cmd)
			if err != nil {
				return err
			}
			logged, err := p.Log(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Run ID: %s\nDataset digest: %s\n", logged.RunID, logged.Dataset.Digest())
			return nil
		},
	}
	for _, c := range []*cobra.Command{runCmd, logCmd} {
		fl := c.Flags()
		fl.StringVar(&f.runName, "run-name", "", "name of the run")
		fl.StringVar(&f.sourceURL, "source-url", "", "CSV to log (default the UCI red wine quality data)")
		fl.StringVarP(&f.delimiter, "delimiter", "d", "", "CSV delimiter (default \""+config.DefaultDelimiter+"\")")
		fl.StringVar(&f.backend, "backend", "", fmt.Sprintf("dataframe library to parse with, one of %v", frame.Backends()))
		fl.StringVar(&f.name, "name", "", "dataset name")
		fl.StringVar(&f.targets, "targets", "", "label column")
		fl.StringVar(&f.format, "format", "", "dataset format, "+config.FormatTable+" or "+config.FormatTensor+" (default \""+config.FormatTable+"\")")
		fl.StringSliceVar(&f.features, "features", nil, "feature columns of a tensor dataset (default every column but the targets)")
		fl.StringVar(&f.dataContext, "context", "", "input context tag (default the current time)")
	}

	showCmd := &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Print the dataset logged to a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := pipeline(cmd)
			if err != nil {
				return err
			}
			in, err := p.Inspect(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return lineage.Report(out, in.Dataset)
		},
	}

	fetchCmd := &cobra.Command{
		Use:   "fetch RUN_ID",
		Short: "Download the source of the dataset logged to a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := pipeline(cmd)
			if err != nil {
				return err
			}
			in, err := p.Inspect(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			path, err := p.Restore(cmd.Context(), in.Dataset, "")
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Dataset source downloaded to: %s\n", path)
			return nil
		},
	}

	root.AddCommand(runCmd, logCmd, showCmd, fetchCmd)
	return root
}

// load reads the config file and environment, then applies set flags.
func (f *flags) load(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return cfg, err
	}
	set := func(name string, dst *string, v string) {
		if cmd.Flags().Changed(name) {
			*dst = v
		}
	}
	set("tracking-uri", &cfg.Tracking.URI, f.trackingURI)
	set("experiment", &cfg.Tracking.Experiment, f.experiment)
	set("run-name", &cfg.Tracking.RunName, f.runName)
	set("source-url", &cfg.Dataset.SourceURL, f.sourceURL)
	set("delimiter", &cfg.Dataset.Delimiter, f.delimiter)
	set("backend", &cfg.Dataset.Backend, f.backend)
	set("name", &cfg.Dataset.Name, f.name)
	set("targets", &cfg.Dataset.Targets, f.targets)
	set("format", &cfg.Dataset.Format, f.format)
	set("context", &cfg.Dataset.Context, f.dataContext)
	if cmd.Flags().Changed("features") {
		cfg.Dataset.Features = f.features
	}
	set("download-dir", &cfg.DownloadDir, f.downloadDir)
	if f.noProgress {
		cfg.Progress = false
	}
	if f.verbose {
		cfg.Verbose = true
	}
	return cfg, nil
}
