package catalog

import (
	"context"

	"actioner/internal/broker"
	"actioner/internal/logger"
)

type Reloader interface {
	Reload(ctx context.Context, skipJitter ...bool) error
}

// Handler reloads the catalog when a config update event arrives.
type Handler struct {
	reloader Reloader
	logger   logger.Logger
}

func NewHandler(reloader Reloader, log logger.Logger) *Handler {
	return &Handler{
		reloader: reloader,
		logger:   log,
	}
}

func (h *Handler) HandleUpdateEvent(ctx context.Context, msg broker.Message) error {
	event, err := DecodeUpdateEvent(msg.Value)
	if err != nil {
		h.logger.WarnwCtx(ctx, "Ignoring malformed config update event", "error", err)
		return nil
	}

	if event.EventType != EventTypeCatalogUpdated {
		return nil
	}

	h.logger.InfowCtx(ctx, "Received config update event",
		"config_type", event.ConfigType,
		"name", event.Name,
		"action", event.Action,
		"version", event.Version,
	)

	if err := h.reloader.Reload(ctx); err != nil {
		h.logger.ErrorwCtx(ctx, "Failed to reload catalog after config update", "error", err)
		return err
	}
	return nil
}
