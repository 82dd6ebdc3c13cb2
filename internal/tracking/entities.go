package tracking

import (
	"bytes"
	"fmt"
	"strconv"
	"time"
)

// Tag keys the server and the Python client agree on.
const (
	TagDataContext = "mlflow.data.context"
	TagUser        = "mlflow.user"
	TagSourceName  = "mlflow.source.name"
	TagSourceType  = "mlflow.source.type"
	TagRunName     = "mlflow.runName"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunRunning   RunStatus = "RUNNING"
	RunScheduled RunStatus = "SCHEDULED"
	RunFinished  RunStatus = "FINISHED"
	RunFailed    RunStatus = "FAILED"
	RunKilled    RunStatus = "KILLED"
)

// Terminal reports whether a run in this status has ended.
func (s RunStatus) Terminal() bool {
	return s == RunFinished || s == RunFailed || s == RunKilled
}

// Millis is a unix timestamp in milliseconds. The server may encode int64
// fields either as JSON numbers or as strings.
type Millis int64

func millisOf(t time.Time) Millis {
	return Millis(t.UnixMilli())
}

// Time converts m back to a time.Time.
func (m Millis) Time() time.Time {
	return time.UnixMilli(int64(m))
}

func (m *Millis) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		*m = 0
		return nil
	}
	v, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q: %v", b, err)
	}
	*m = Millis(v)
	return nil
}

type Tag struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type Experiment struct {
	ExperimentID     string `json:"experiment_id"`
	Name             string `json:"name"`
	ArtifactLocation string `json:"artifact_location,omitempty"`
	LifecycleStage   string `json:"lifecycle_stage,omitempty"`
	Tags             []Tag  `json:"tags,omitempty"`
}

type RunInfo struct {
	RunID          string    `json:"run_id"`
	RunName        string    `json:"run_name,omitempty"`
	ExperimentID   string    `json:"experiment_id"`
	UserID         string    `json:"user_id,omitempty"`
	Status         RunStatus `json:"status"`
	StartTime      Millis    `json:"start_time,omitempty"`
	EndTime        Millis    `json:"end_time,omitempty"`
	ArtifactURI    string    `json:"artifact_uri,omitempty"`
	LifecycleStage string    `json:"lifecycle_stage,omitempty"`
}

type RunData struct {
	Tags []Tag `json:"tags,omitempty"`
}

// Tag returns the value of the run tag key, if set.
func (d RunData) Tag(key string) (string, bool) {
	return lookupTag(d.Tags, key)
}

// DatasetEntity is a dataset as the tracking server stores it. Source is
// the JSON encoding of the source, interpreted according to SourceType.
type DatasetEntity struct {
	Name       string `json:"name"`
	Digest     string `json:"digest"`
	SourceType string `json:"source_type"`
	Source     string `json:"source"`
	Schema     string `json:"schema,omitempty"`
	Profile    string `json:"profile,omitempty"`
}

func (d DatasetEntity) String() string {
	return fmt.Sprintf("<Dataset: digest='%s', name='%s', profile='%s', schema='%s', source='%s', source_type='%s'>",
		d.Digest, d.Name, d.Profile, d.Schema, d.Source, d.SourceType)
}

type DatasetInput struct {
	Tags    []Tag         `json:"tags,omitempty"`
	Dataset DatasetEntity `json:"dataset"`
}

// Context returns the mlflow.data.context tag of the input, or "".
func (in DatasetInput) Context() string {
	v, _ := lookupTag(in.Tags, TagDataContext)
	return v
}

type RunInputs struct {
	DatasetInputs []DatasetInput `json:"dataset_inputs,omitempty"`
}

type Run struct {
	Info   RunInfo   `json:"info"`
	Data   RunData   `json:"data"`
	Inputs RunInputs `json:"inputs"`
}

func lookupTag(tags []Tag, key string) (string, bool) {
	for _, t := range tags {
		if t.Key == key {
			return t.Value, true
		}
	}
	return "", false
}
