package performer

import (
	"context"

	"actioner/internal/broker"
	"actioner/internal/logger"
	"actioner/internal/match"
	"actioner/pkg/errors"
	"actioner/pkg/logging"
)

type Handler struct {
	executor *Executor
	logger   logger.Logger
}

func NewHandler(executor *Executor, log logger.Logger) *Handler {
	return &Handler{executor: executor, logger: log}
}

// HandleActionMessage is the consumer callback for the action topic.
func (h *Handler) HandleActionMessage(ctx context.Context, msg broker.Message) error {
	action, err := match.DecodeActionMessage(msg.Value)
	if err != nil {
		h.logger.WarnwCtx(ctx, "Dropping malformed action message", "error", err)
		return errors.ErrMalformedMessage.WithCause(err)
	}
	ctx = logging.WithContentKey(ctx, action.ContentKey)
	return h.executor.Execute(ctx, action)
}
