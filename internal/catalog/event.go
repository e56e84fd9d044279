package catalog

import (
	"encoding/json"
	"fmt"
	"time"
)

// UpdateEvent is published on the config update topic whenever an entry is
// written or removed.
type UpdateEvent struct {
	EventType  string    `json:"event_type"`
	ConfigType string    `json:"config_type"`
	Name       string    `json:"name,omitempty"`
	Action     string    `json:"action"`
	Version    int       `json:"version,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	ChangedBy  string    `json:"changed_by,omitempty"`
}

const EventTypeCatalogUpdated = "catalog_updated"

const (
	ActionPut    = "put"
	ActionDelete = "delete"
	ActionReload = "reload"
)

func DecodeUpdateEvent(data []byte) (UpdateEvent, error) {
	var e UpdateEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return UpdateEvent{}, fmt.Errorf("failed to decode config update event: %w", err)
	}
	return e, nil
}
