package server

import "github.com/sig-0/p2prates/broadcast"

// PipelineResponse is the outcome of a pipeline control request
type PipelineResponse struct {
	Data    *broadcast.Payload `json:"data,omitempty"`
	Message string             `json:"message"`
	Success bool               `json:"success"`
}

// StatusResponse describes the pipeline state
type StatusResponse struct {
	Latest      *broadcast.Payload `json:"latest,omitempty"`
	Interval    string             `json:"interval,omitempty"`
	Running     bool               `json:"running"`
	Subscribers int                `json:"subscribers"`
}

type HistoryResponse struct {
	Results []*broadcast.Payload `json:"results"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
