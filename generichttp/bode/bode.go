// Package bode provides an HTTP interface to frequency response sweeps
package bode

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"goji.io/pat"

	"github.com/nasa-jpl/bodesweep/bode"
	"github.com/nasa-jpl/bodesweep/server"
	"github.com/nasa-jpl/bodesweep/sweep"
)

// SweepRequest is the JSON body of a sweep start request
type SweepRequest struct {
	StartHz    float64 `json:"start_hz"`
	StopHz     float64 `json:"stop_hz"`
	Points     int     `json:"points"`
	Spacing    string  `json:"spacing"`
	Amplitude  float64 `json:"amplitude_vpp"`
	SettleSec  float64 `json:"settle_s"`
	MaxRetries int     `json:"max_retries"`
	MaxGain    float64 `json:"max_gain"`
}

// Spec converts the request to an engine spec
func (sr SweepRequest) Spec() (sweep.Spec, error) {
	spacing, err := sweep.ParseSpacing(sr.Spacing)
	if err != nil {
		return sweep.Spec{}, err
	}
	return sweep.Spec{
		Start:      sr.StartHz,
		Stop:       sr.StopHz,
		Points:     sr.Points,
		Spacing:    spacing,
		Amplitude:  sr.Amplitude,
		Settle:     time.Duration(sr.SettleSec * float64(time.Second)),
		MaxRetries: sr.MaxRetries,
		MaxGain:    sr.MaxGain,
	}, nil
}

// statusResponse is the JSON reply from the state and sweep routes
type statusResponse struct {
	State   string `json:"state"`
	Running bool   `json:"running"`
	Error   string `json:"error,omitempty"`
}

// Runner owns a sweep engine and exposes it over HTTP.  Sweeps run in a
// background goroutine; the latest completed result is retained until the
// next sweep starts.
type Runner struct {
	mu sync.Mutex

	engine  *sweep.Engine
	running bool
	result  *bode.ResultSeries
	runErr  error

	RouteTable server.RouteTable
}

// NewRunner wraps a sweep engine with an HTTP interface
func NewRunner(e *sweep.Engine) *Runner {
	r := &Runner{engine: e}
	rt := server.RouteTable{}
	rt[pat.Post("/sweep")] = r.StartSweep
	rt[pat.Post("/cancel")] = r.CancelSweep
	rt[pat.Get("/state")] = r.GetState
	rt[pat.Get("/result")] = r.GetResult
	rt[pat.Get("/result.csv")] = r.GetResultCSV
	r.RouteTable = rt
	return r
}

// RT satisfies server.HTTPer
func (r *Runner) RT() server.RouteTable {
	return r.RouteTable
}

// StartSweep validates the requested sweep and starts it in the background.
// It replies 409 if a sweep is already running and 400 if the spec is
// invalid; otherwise 202 with the engine state.
func (r *Runner) StartSweep(w http.ResponseWriter, req *http.Request) {
	var sr SweepRequest
	err := json.NewDecoder(req.Body).Decode(&sr)
	defer req.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	spec, err := sr.Spec()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := spec.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		http.Error(w, "a sweep is already running", http.StatusConflict)
		return
	}
	r.running = true
	r.result = nil
	r.runErr = nil
	r.mu.Unlock()
	go func() {
		result, err := r.engine.Run(spec)
		r.mu.Lock()
		r.running = false
		r.result = &result
		r.runErr = err
		r.mu.Unlock()
	}()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(statusResponse{State: r.engine.State().String(), Running: true})
}

// CancelSweep requests the running sweep stop after the in-flight point
func (r *Runner) CancelSweep(w http.ResponseWriter, req *http.Request) {
	r.engine.Cancel()
	w.WriteHeader(http.StatusOK)
}

// GetState reports the engine state and whether a sweep is in progress
func (r *Runner) GetState(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	resp := statusResponse{State: r.engine.State().String(), Running: r.running}
	if r.runErr != nil {
		resp.Error = r.runErr.Error()
	}
	r.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

// GetResult returns the most recent sweep result as JSON.  404 if no sweep
// has completed, 409 if one is still running.
func (r *Runner) GetResult(w http.ResponseWriter, req *http.Request) {
	rs, ok := r.snapshot(w)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(rs)
}

// GetResultCSV returns the most recent sweep result as CSV
func (r *Runner) GetResultCSV(w http.ResponseWriter, req *http.Request) {
	rs, ok := r.snapshot(w)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.WriteHeader(http.StatusOK)
	rs.EncodeCSV(w)
}

// snapshot returns the completed result, writing an error status and
// returning false if there is none to serve
func (r *Runner) snapshot(w http.ResponseWriter) (bode.ResultSeries, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		http.Error(w, "sweep still running", http.StatusConflict)
		return bode.ResultSeries{}, false
	}
	if r.result == nil {
		http.Error(w, "no sweep has completed", http.StatusNotFound)
		return bode.ResultSeries{}, false
	}
	return *r.result, true
}
