// Package trackingtest provides an in-memory tracking server for tests.
package trackingtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/Simbamon/ML-Flow/internal/tracking"
)

// Server implements the subset of the MLflow REST API the client uses.
type Server struct {
	*httptest.Server

	mu          sync.Mutex
	experiments map[string]*tracking.Experiment // by name
	runs        map[string]*tracking.Run
	failures    map[string]failure
	requests    []string
}

type failure struct {
	status int
	code   string
}

// New starts a server that is closed when t finishes.
func New(t testing.TB) *Server {
	s := &Server{
		experiments: make(map[string]*tracking.Experiment),
		runs:        make(map[string]*tracking.Run),
		failures:    make(map[string]failure),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/2.0/mlflow/experiments/get-by-name", s.getExperimentByName)
	mux.HandleFunc("/api/2.0/mlflow/experiments/create", s.createExperiment)
	mux.HandleFunc("/api/2.0/mlflow/runs/create", s.createRun)
	mux.HandleFunc("/api/2.0/mlflow/runs/update", s.updateRun)
	mux.HandleFunc("/api/2.0/mlflow/runs/log-inputs", s.logInputs)
	mux.HandleFunc("/api/2.0/mlflow/runs/get", s.getRun)
	s.Server = httptest.NewServer(s.record(mux))
	t.Cleanup(s.Close)
	return s
}

// Fail makes the next request to path fail with status and error code.
func (s *Server) Fail(path string, status int, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[path] = failure{status, code}
}

// AddExperiment seeds an experiment and returns its id.
func (s *Server) AddExperiment(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addExperiment(name)
}

// Run returns a copy of the stored run.
func (s *Server) Run(id string) (tracking.Run, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return tracking.Run{}, false
	}
	return *r, true
}

// Requests returns the request paths served so far, in order.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, r.URL.Path)
		f, fail := s.failures[r.URL.Path]
		delete(s.failures, r.URL.Path)
		s.mu.Unlock()
		if fail {
			writeError(w, f.status, f.code, "injected failure")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) addExperiment(name string) string {
	id := strconv.Itoa(len(s.experiments) + 1)
	s.experiments[name] = &tracking.Experiment{
		ExperimentID:   id,
		Name:           name,
		LifecycleStage: "active",
	}
	return id
}

func (s *Server) getExperimentByName(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("experiment_name")
	s.mu.Lock()
	exp, ok := s.experiments[name]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, tracking.CodeResourceDoesNotExist, "Could not find experiment with name '"+name+"'")
		return
	}
	writeJSON(w, map[string]interface{}{"experiment": exp})
}

func (s *Server) createExperiment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !decode(w, r, &req) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.experiments[req.Name]; ok {
		writeError(w, http.StatusBadRequest, tracking.CodeResourceAlreadyExist, "Experiment '"+req.Name+"' already exists.")
		return
	}
	writeJSON(w, map[string]string{"experiment_id": s.addExperiment(req.Name)})
}

func (s *Server) createRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ExperimentID string          `json:"experiment_id"`
		UserID       string          `json:"user_id"`
		RunName      string          `json:"run_name"`
		StartTime    tracking.Millis `json:"start_time"`
		Tags         []tracking.Tag  `json:"tags"`
	}
	if !decode(w, r, &req) {
		return
	}
	name := req.RunName
	if name == "" {
		name = "run-" + uuid.NewString()[:8]
	}
	run := &tracking.Run{
		Info: tracking.RunInfo{
			RunID:          uuid.New().String(),
			RunName:        name,
			ExperimentID:   req.ExperimentID,
			UserID:         req.UserID,
			Status:         tracking.RunRunning,
			StartTime:      req.StartTime,
			LifecycleStage: "active",
		},
		Data: tracking.RunData{Tags: req.Tags},
	}
	s.mu.Lock()
	s.runs[run.Info.RunID] = run
	s.mu.Unlock()
	writeJSON(w, map[string]interface{}{"run": run})
}

func (s *Server) updateRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RunID   string             `json:"run_id"`
		Status  tracking.RunStatus `json:"status"`
		EndTime tracking.Millis    `json:"end_time"`
	}
	if !decode(w, r, &req) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[req.RunID]
	if !ok {
		writeError(w, http.StatusNotFound, tracking.CodeResourceDoesNotExist, "Run '"+req.RunID+"' not found")
		return
	}
	run.Info.Status = req.Status
	run.Info.EndTime = req.EndTime
	writeJSON(w, map[string]interface{}{"run_info": run.Info})
}

func (s *Server) logInputs(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RunID    string                  `json:"run_id"`
		Datasets []tracking.DatasetInput `json:"datasets"`
	}
	if !decode(w, r, &req) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[req.RunID]
	if !ok {
		writeError(w, http.StatusNotFound, tracking.CodeResourceDoesNotExist, "Run '"+req.RunID+"' not found")
		return
	}
	run.Inputs.DatasetInputs = append(run.Inputs.DatasetInputs, req.Datasets...)
	writeJSON(w, struct{}{})
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("run_id")
	s.mu.Lock()
	run, ok := s.runs[id]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, tracking.CodeResourceDoesNotExist, "Run '"+id+"' not found")
		return
	}
	writeJSON(w, map[string]interface{}{"run": run})
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, tracking.CodeInvalidParameter, "expected POST")
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, tracking.CodeInvalidParameter, err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error_code": code, "message": msg})
}
