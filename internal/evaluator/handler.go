package evaluator

import (
	"context"
	"time"

	"actioner/internal/broker"
	"actioner/internal/logger"
	"actioner/internal/match"
	"actioner/pkg/errors"
	"actioner/pkg/logging"
	"actioner/pkg/metrics"
)

type Handler struct {
	service *Service
	logger  logger.Logger
}

func NewHandler(service *Service, log logger.Logger) *Handler {
	return &Handler{service: service, logger: log}
}

// HandleMatchEvent is the consumer callback for the match topic. Malformed
// events are fatal so they go straight to the dead letter topic.
func (h *Handler) HandleMatchEvent(ctx context.Context, msg broker.Message) error {
	start := time.Now()

	m, err := match.DecodeEvent(msg.Value)
	if err != nil {
		h.observe("malformed", start)
		h.logger.WarnwCtx(ctx, "Dropping malformed match event", "error", err)
		return errors.ErrMalformedMessage.WithCause(err)
	}

	ctx = logging.WithContentKey(ctx, m.ContentKey)
	outcome, err := h.service.Process(ctx, m)
	if err != nil {
		h.observe("error", start)
		h.logger.ErrorwCtx(ctx, "Failed to process match event",
			"error", err,
			"delivered", len(outcome.Report.Delivered),
			"failed", len(outcome.Report.Failed),
		)
		return err
	}

	if len(outcome.Resolution.Actions) == 0 && len(outcome.Resolution.Reactions) == 0 {
		h.observe("no_action", start)
	} else {
		h.observe("dispatched", start)
	}
	return nil
}

func (h *Handler) observe(status string, start time.Time) {
	metrics.MatchesEvaluatedTotal.WithLabelValues(status).Inc()
	metrics.ObserveEvaluationDuration(time.Since(start), status)
}
