package dashboard

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// ReportsCreatedSubject carries a ReportCreated event per successful run.
const ReportsCreatedSubject = "lakedash.reports.created"

// EventPublisher publishes JSON events.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, v any) error
}

// ReportCreated is published after a report has been registered.
type ReportCreated struct {
	ReportName    string `json:"report_name"`
	ReportRef     string `json:"report_ref"`
	WorkspaceName string `json:"workspace_name"`
	InputRef      string `json:"input_ref"`
	Handle        string `json:"handle"`
}

// Status is the service health record returned by the status method.
type Status struct {
	State         string `json:"state"`
	Message       string `json:"message"`
	Version       string `json:"version"`
	GitURL        string `json:"git_url"`
	GitCommitHash string `json:"git_commit_hash"`
}

// Service runs the dashboard pipeline. It is immutable once built and safe
// for concurrent use.
type Service struct {
	assembler *Assembler
	publisher *Publisher
	events    EventPublisher
	status    Status
	logger    zerolog.Logger
}

// ServiceConfig wires a Service.
type ServiceConfig struct {
	Assembler *Assembler
	Publisher *Publisher
	// Events is optional.
	Events EventPublisher

	Version   string
	GitURL    string
	GitCommit string

	Logger zerolog.Logger
}

// NewService builds a Service from cfg.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Assembler == nil {
		return nil, errors.New("assembler is required")
	}
	if cfg.Publisher == nil {
		return nil, errors.New("publisher is required")
	}

	return &Service{
		assembler: cfg.Assembler,
		publisher: cfg.Publisher,
		events:    cfg.Events,
		status: Status{
			State:         "OK",
			Message:       "",
			Version:       cfg.Version,
			GitURL:        cfg.GitURL,
			GitCommitHash: cfg.GitCommit,
		},
		logger: cfg.Logger,
	}, nil
}

// Run assembles, uploads and registers a dashboard report for req.
func (s *Service) Run(ctx context.Context, req Request) (Result, error) {
	log := s.logger.With().Str("workspace", req.WorkspaceName).Str("input_ref", req.InputRef).Logger()
	log.Info().Msg("running genome datalake dashboard")

	bundle, err := s.assembler.Assemble(ctx, req.InputRef)
	if err != nil {
		return Result{}, err
	}

	res, err := s.publisher.Publish(ctx, bundle.Handle, req.WorkspaceName)
	if err != nil {
		return Result{}, err
	}
	log.Info().Str("report_name", res.ReportName).Str("report_ref", res.ReportRef).Msg("report created")

	if s.events != nil {
		event := ReportCreated{
			ReportName:    res.ReportName,
			ReportRef:     res.ReportRef,
			WorkspaceName: req.WorkspaceName,
			InputRef:      req.InputRef,
			Handle:        bundle.Handle,
		}
		if err := s.events.Publish(ctx, ReportsCreatedSubject, event); err != nil {
			log.Warn().Err(err).Msg("publish report event")
		}
	}

	return res, nil
}

// Status returns the static health record.
func (s *Service) Status() Status {
	return s.status
}
