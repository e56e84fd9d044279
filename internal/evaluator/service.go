package evaluator

import (
	"context"
	"fmt"
	"time"

	"actioner/internal/dispatch"
	"actioner/internal/label"
	"actioner/internal/logger"
	"actioner/internal/match"
	"actioner/internal/records"
	"actioner/internal/resolution"
	"actioner/pkg/metrics"
	"actioner/pkg/tracing"
)

type Resolver interface {
	Evaluate(ctx context.Context, m match.Message) (resolution.Result, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, m match.Message, actions []label.ActionLabel, reactions []label.ReactionLabel) (dispatch.Report, error)
}

// RecordWriter persists one record per matching bank entry.
type RecordWriter interface {
	PutMatchRecord(ctx context.Context, r records.MatchRecord) error
}

// Outcome is what processing one match produced.
type Outcome struct {
	Resolution resolution.Result
	Report     dispatch.Report
}

type Service struct {
	resolver   Resolver
	dispatcher Dispatcher
	records    RecordWriter
	now        func() time.Time
	logger     logger.Logger
}

type Option func(*Service)

// WithRecords writes a match record for every banked signal before
// resolution.
func WithRecords(w RecordWriter) Option {
	return func(s *Service) { s.records = w }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(resolver Resolver, dispatcher Dispatcher, log logger.Logger, opts ...Option) *Service {
	s := &Service{
		resolver:   resolver,
		dispatcher: dispatcher,
		now:        time.Now,
		logger:     log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Process records, resolves and dispatches one match. A returned error means
// the event should be delivered again.
func (s *Service) Process(ctx context.Context, m match.Message) (Outcome, error) {
	ctx, span := tracing.StartSpan(ctx, "evaluator", "process")
	defer span.End()

	if s.records != nil {
		if err := s.writeRecords(ctx, m); err != nil {
			return Outcome{}, err
		}
	}

	res, err := s.resolver.Evaluate(ctx, m)
	if err != nil {
		return Outcome{}, err
	}

	if len(res.Superseded) > 0 {
		s.logger.DebugwCtx(ctx, "Actions superseded",
			"superseded", labelValues(res.Superseded),
		)
	}

	if len(res.Actions) == 0 && len(res.Reactions) == 0 {
		s.logger.DebugwCtx(ctx, "No actions for match",
			"signals", len(m.MatchingBankedSignals),
			"catalog_generation", res.Generation,
		)
		return Outcome{Resolution: res}, nil
	}

	report, err := s.dispatcher.Dispatch(ctx, m, res.Actions, res.Reactions)
	if err != nil {
		return Outcome{Resolution: res, Report: report}, err
	}

	s.logger.InfowCtx(ctx, "Match evaluated",
		"actions", labelValues(res.Actions),
		"reactions", labelValues(res.Reactions),
		"catalog_generation", res.Generation,
	)
	return Outcome{Resolution: res, Report: report}, nil
}

func (s *Service) writeRecords(ctx context.Context, m match.Message) error {
	now := s.now().UTC()
	for _, sig := range m.MatchingBankedSignals {
		r := records.MatchRecord{
			ContentKey:  m.ContentKey,
			ContentHash: m.ContentHash,
			Timestamp:   now,
			BankEntryID: sig.BankedContentID,
			HashType:    records.SignalTypePDQ,
		}
		if err := s.records.PutMatchRecord(ctx, r); err != nil {
			metrics.RecordsWrittenTotal.WithLabelValues("error").Inc()
			return fmt.Errorf("failed to write match record for %s: %w", sig.BankedContentID, err)
		}
		metrics.RecordsWrittenTotal.WithLabelValues("success").Inc()
	}
	return nil
}

func labelValues[L interface{ Value() string }](labels []L) []string {
	out := make([]string, len(labels))
	for i, l := range labels {
		out[i] = l.Value()
	}
	return out
}
