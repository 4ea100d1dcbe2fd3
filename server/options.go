package server

import (
	"log/slog"

	"github.com/sig-0/p2prates/pipeline"
	"github.com/sig-0/p2prates/registry"
	"github.com/sig-0/p2prates/server/config"
)

type Option func(s *Server)

// WithLogger specifies the logger for the server
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithConfig specifies the config for the server
func WithConfig(c *config.Config) Option {
	return func(s *Server) {
		s.config = c
	}
}

// WithPipeline enables the pipeline control and live feed routes.
// Pipelines are created on demand using the factory, and kept
// in the registry under the server listen address
func WithPipeline(r *registry.Registry, factory pipeline.Factory) Option {
	return func(s *Server) {
		s.registry = r
		s.factory = factory
	}
}
