package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"actioner/internal/broker"
)

// Notifier tells every running evaluator and performer that the catalog
// changed.
type Notifier struct {
	producer broker.Producer
	topic    string
}

func NewNotifier(producer broker.Producer, topic string) *Notifier {
	return &Notifier{
		producer: producer,
		topic:    topic,
	}
}

func (n *Notifier) NotifyPut(ctx context.Context, e Entry, changedBy string) error {
	return n.publish(ctx, UpdateEvent{
		EventType:  EventTypeCatalogUpdated,
		ConfigType: e.ConfigType,
		Name:       e.Name,
		Action:     ActionPut,
		Version:    e.Version,
		Timestamp:  time.Now().UTC(),
		ChangedBy:  changedBy,
	})
}

func (n *Notifier) NotifyDelete(ctx context.Context, configType, name, changedBy string) error {
	return n.publish(ctx, UpdateEvent{
		EventType:  EventTypeCatalogUpdated,
		ConfigType: configType,
		Name:       name,
		Action:     ActionDelete,
		Timestamp:  time.Now().UTC(),
		ChangedBy:  changedBy,
	})
}

func (n *Notifier) publish(ctx context.Context, event UpdateEvent) error {
	if n == nil || n.producer == nil || n.topic == "" {
		return nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal config event: %w", err)
	}

	return n.producer.Publish(ctx, n.topic, broker.Message{
		Key:     []byte(event.ConfigType),
		Value:   data,
		Headers: map[string]string{broker.HeaderMessageID: uuid.New().String()},
	})
}

// Editor writes entries to the store and notifies listeners of each change.
type Editor struct {
	writer   Writer
	notifier *Notifier
}

func NewEditor(writer Writer, notifier *Notifier) *Editor {
	return &Editor{writer: writer, notifier: notifier}
}

func (e *Editor) Put(ctx context.Context, entry Entry, changedBy string) (Entry, error) {
	saved, err := e.writer.Put(ctx, entry, changedBy)
	if err != nil {
		return Entry{}, err
	}
	if err := e.notifier.NotifyPut(ctx, saved, changedBy); err != nil {
		return saved, fmt.Errorf("entry saved but notification failed: %w", err)
	}
	return saved, nil
}

func (e *Editor) Delete(ctx context.Context, configType, name, changedBy string) error {
	if err := e.writer.Delete(ctx, configType, name); err != nil {
		return err
	}
	if err := e.notifier.NotifyDelete(ctx, configType, name, changedBy); err != nil {
		return fmt.Errorf("entry deleted but notification failed: %w", err)
	}
	return nil
}
