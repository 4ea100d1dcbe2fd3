package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/sig-0/p2prates/broadcast"
	"github.com/sig-0/p2prates/storage"
)

const (
	msgPipelineStarted        = "pipeline started"
	msgPipelineAlreadyRunning = "pipeline already running"
	msgPipelineStopped        = "pipeline stopped"
	msgPipelineNotRunning     = "pipeline is not running"
)

var (
	errPipelineDisabled   = errors.New("pipeline control is not enabled")
	errUnableToStart      = errors.New("unable to start pipeline")
	errNoSamples          = errors.New("no samples recorded yet")
	errNoRunningPipeline  = errors.New("no running pipeline")
	errInvalidLimit       = errors.New("invalid limit (must be a positive integer)")
	errUnableToEncodeData = errors.New("unable to encode data")
)

// EnsureRunning starts the registered pipeline,
// creating and registering one if there is none
func (s *Server) EnsureRunning(ctx context.Context) (*PipelineResponse, error) {
	if s.registry == nil {
		return nil, errPipelineDisabled
	}

	m, created, err := s.registry.Acquire(s.config.ListenAddress, s.factory)
	if err != nil {
		return nil, err
	}

	if created {
		s.logger.Info("pipeline created", "handle", s.config.ListenAddress)
	}

	resp := &PipelineResponse{
		Success: true,
		Message: msgPipelineStarted,
		Data:    broadcast.NewPayload(s.samples.Latest(ctx)),
	}

	if !m.Start() {
		resp.Message = msgPipelineAlreadyRunning
	}

	return resp, nil
}

// EnsureStopped stops and unregisters the pipeline, if any
func (s *Server) EnsureStopped(_ context.Context) *PipelineResponse {
	if s.registry == nil {
		return &PipelineResponse{
			Success: false,
			Message: msgPipelineNotRunning,
		}
	}

	m := s.registry.Release(s.config.ListenAddress)
	if m == nil {
		return &PipelineResponse{
			Success: false,
			Message: msgPipelineNotRunning,
		}
	}

	m.Close()

	return &PipelineResponse{
		Success: true,
		Message: msgPipelineStopped,
	}
}

func (s *Server) StartPipeline(w http.ResponseWriter, r *http.Request) {
	resp, err := s.EnsureRunning(r.Context())
	if err != nil {
		s.logger.Error(
			"unable to start pipeline",
			"err", err,
		)

		status := http.StatusInternalServerError
		if errors.Is(err, errPipelineDisabled) {
			status = http.StatusServiceUnavailable
		}

		writeError(w, status, errUnableToStart)

		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) StopPipeline(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.EnsureStopped(r.Context()))
}

func (s *Server) PipelineStatus(w http.ResponseWriter, r *http.Request) {
	resp := &StatusResponse{
		Latest: broadcast.NewPayload(s.samples.Latest(r.Context())),
	}

	if s.registry != nil {
		if m, _ := s.registry.Get(); m != nil {
			b := m.Broadcaster()

			resp.Running = m.IsRunning()
			resp.Subscribers = b.Connected()
			resp.Interval = b.Poller().Interval().String()
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) LatestRate(w http.ResponseWriter, r *http.Request) {
	sample := s.samples.Latest(r.Context())
	if sample == nil {
		writeError(w, http.StatusNotFound, errNoSamples)

		return
	}

	writeJSON(w, http.StatusOK, broadcast.NewPayload(sample))
}

func (s *Server) RateHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)

		return
	}

	samples := s.samples.History(r.Context(), limit)

	resp := &HistoryResponse{
		Results: make([]*broadcast.Payload, 0, len(samples)),
	}

	for _, sample := range samples {
		resp.Results = append(resp.Results, broadcast.NewPayload(sample))
	}

	writeJSON(w, http.StatusOK, resp)
}

// LiveRates hands the request over to the running pipeline's live feed
func (s *Server) LiveRates(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil {
		writeError(w, http.StatusServiceUnavailable, errNoRunningPipeline)

		return
	}

	m, _ := s.registry.Get()
	if m == nil || !m.IsRunning() {
		writeError(w, http.StatusServiceUnavailable, errNoRunningPipeline)

		return
	}

	m.Broadcaster().ServeHTTP(w, r)
}

// parseLimit parses the history limit. Clamping is up to the sample store
func parseLimit(limitRaw string) (int, error) {
	v := strings.TrimSpace(limitRaw)
	if v == "" {
		return storage.DefaultHistoryLimit, nil
	}

	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, errInvalidLimit
	}

	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		data, _ = json.Marshal(&ErrorResponse{Error: errUnableToEncodeData.Error()}) //nolint:errchkjson // static value
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_, _ = w.Write(data) //nolint:errcheck // Fine to ignore
}

func writeError(w http.ResponseWriter, status int, err error) {
	resp := &ErrorResponse{
		Error: err.Error(),
	}

	writeJSON(w, status, resp)
}
