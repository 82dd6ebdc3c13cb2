package tracking

import (
	"context"
	"net/url"
	"os"
	"os/user"
	"sort"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// RunOptions are the optional parts of a new run.
type RunOptions struct {
	Name string
	Tags map[string]string
}

// ActiveRun is a run started by this client that has not been ended yet.
type ActiveRun struct {
	client *Client
	info   RunInfo
}

func (r *ActiveRun) ID() string    { return r.info.RunID }
func (r *ActiveRun) Info() RunInfo { return r.info }

// StartRun creates a run in experimentID and makes it the last active run.
func (c *Client) StartRun(ctx context.Context, experimentID string, opts RunOptions) (*ActiveRun, error) {
	tags := mergeTags(systemTags(opts.Name), opts.Tags)
	userID, _ := lookupTag(tags, TagUser)

	req := struct {
		ExperimentID string `json:"experiment_id"`
		UserID       string `json:"user_id,omitempty"`
		RunName      string `json:"run_name,omitempty"`
		StartTime    Millis `json:"start_time"`
		Tags         []Tag  `json:"tags,omitempty"`
	}{experimentID, userID, opts.Name, millisOf(c.now()), tags}
	var reply struct {
		Run Run `json:"run"`
	}
	if err := c.post(ctx, "runs/create", req, &reply); err != nil {
		return nil, errors.Wrapf(err, "Unable to start run in experiment %s", experimentID)
	}
	if reply.Run.Info.RunID == "" {
		return nil, errors.New("tracking server returned a run without an id")
	}
	c.setLastRun(reply.Run.Info.RunID)
	c.logger.Info("started run",
		zap.String("run_id", reply.Run.Info.RunID),
		zap.String("run_name", reply.Run.Info.RunName),
		zap.String("experiment_id", experimentID))
	return &ActiveRun{client: c, info: reply.Run.Info}, nil
}

// LogInput attaches a dataset to the run, tagged with the given context.
// An empty context logs the input untagged.
func (r *ActiveRun) LogInput(ctx context.Context, ds DatasetEntity, dataContext string) error {
	return r.client.LogInputs(ctx, r.info.RunID, []DatasetInput{newInput(ds, dataContext)})
}

func newInput(ds DatasetEntity, dataContext string) DatasetInput {
	in := DatasetInput{Dataset: ds}
	if dataContext != "" {
		in.Tags = []Tag{{Key: TagDataContext, Value: dataContext}}
	}
	return in
}

// LogInputs logs dataset inputs to runID.
func (c *Client) LogInputs(ctx context.Context, runID string, inputs []DatasetInput) error {
	for i, in := range inputs {
		if in.Dataset.Name == "" || in.Dataset.Digest == "" || in.Dataset.SourceType == "" || in.Dataset.Source == "" {
			return errors.Errorf("dataset input %d is missing name, digest, source type or source", i)
		}
	}
	req := struct {
		RunID    string         `json:"run_id"`
		Datasets []DatasetInput `json:"datasets"`
	}{runID, inputs}
	if err := c.post(ctx, "runs/log-inputs", req, nil); err != nil {
		return errors.Wrapf(err, "Unable to log inputs to run %s", runID)
	}
	c.logger.Debug("logged inputs", zap.String("run_id", runID), zap.Int("count", len(inputs)))
	return nil
}

// End marks the run terminated with status.
func (r *ActiveRun) End(ctx context.Context, status RunStatus) error {
	if !status.Terminal() {
		return errors.Errorf("cannot end run with non-terminal status %s", status)
	}
	info, err := r.client.UpdateRun(ctx, r.info.RunID, status)
	if err != nil {
		return err
	}
	r.info = info
	r.client.logger.Info("ended run", zap.String("run_id", r.info.RunID), zap.String("status", string(status)))
	return nil
}

// UpdateRun sets the status of runID, stamping an end time on terminal
// statuses.
func (c *Client) UpdateRun(ctx context.Context, runID string, status RunStatus) (RunInfo, error) {
	req := struct {
		RunID   string    `json:"run_id"`
		Status  RunStatus `json:"status"`
		EndTime Millis    `json:"end_time,omitempty"`
	}{RunID: runID, Status: status}
	if status.Terminal() {
		req.EndTime = millisOf(c.now())
	}
	var reply struct {
		RunInfo RunInfo `json:"run_info"`
	}
	if err := c.post(ctx, "runs/update", req, &reply); err != nil {
		return RunInfo{}, errors.Wrapf(err, "Unable to update run %s", runID)
	}
	return reply.RunInfo, nil
}

// WithRun starts a run, calls fn with it and ends the run FINISHED when fn
// returns nil and FAILED otherwise. A panic in fn ends the run FAILED and is
// re-raised. The run is ended even when ctx is already cancelled.
func (c *Client) WithRun(ctx context.Context, experimentID string, opts RunOptions, fn func(context.Context, *ActiveRun) error) (string, error) {
	run, err := c.StartRun(ctx, experimentID, opts)
	if err != nil {
		return "", err
	}
	endCtx := context.WithoutCancel(ctx)

	defer func() {
		if p := recover(); p != nil {
			_ = run.End(endCtx, RunFailed)
			panic(p)
		}
	}()

	if fnErr := fn(ctx, run); fnErr != nil {
		if endErr := run.End(endCtx, RunFailed); endErr != nil {
			c.logger.Warn("unable to mark run failed", zap.String("run_id", run.ID()), zap.Error(endErr))
		}
		return run.ID(), fnErr
	}
	return run.ID(), run.End(endCtx, RunFinished)
}

// GetRun fetches a run with its dataset inputs.
func (c *Client) GetRun(ctx context.Context, runID string) (*Run, error) {
	if runID == "" {
		return nil, errors.New("run id is empty")
	}
	var reply struct {
		Run Run `json:"run"`
	}
	if err := c.get(ctx, "runs/get", url.Values{"run_id": {runID}}, &reply); err != nil {
		return nil, errors.Wrapf(err, "Unable to get run %s", runID)
	}
	return &reply.Run, nil
}

// GetLastActiveRun fetches the run most recently started through c.
func (c *Client) GetLastActiveRun(ctx context.Context) (*Run, error) {
	id := c.LastActiveRunID()
	if id == "" {
		return nil, ErrNoActiveRun
	}
	return c.GetRun(ctx, id)
}

func systemTags(runName string) []Tag {
	tags := []Tag{
		{Key: TagUser, Value: currentUser()},
		{Key: TagSourceName, Value: sourceName()},
		{Key: TagSourceType, Value: "LOCAL"},
	}
	if runName != "" {
		tags = append(tags, Tag{Key: TagRunName, Value: runName})
	}
	return tags
}

// mergeTags appends the caller's tags in key order. A caller tag replaces
// the system tag with the same key in place.
func mergeTags(system []Tag, caller map[string]string) []Tag {
	tags := make([]Tag, 0, len(system)+len(caller))
	for _, t := range system {
		if v, ok := caller[t.Key]; ok {
			t.Value = v
		}
		tags = append(tags, t)
	}
	keys := make([]string, 0, len(caller))
	for k := range caller {
		if _, ok := lookupTag(system, k); !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		tags = append(tags, Tag{Key: k, Value: caller[k]})
	}
	return tags
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	return "unknown"
}

func sourceName() string {
	if exe, err := os.Executable(); err == nil {
		return exe
	}
	if len(os.Args) > 0 {
		return os.Args[0]
	}
	return "mlflow-data"
}
