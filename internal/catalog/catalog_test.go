package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"actioner/internal/broker"
	"actioner/internal/config"
	"actioner/internal/label"
	"actioner/internal/logger"
	pkgerrors "actioner/pkg/errors"
	"actioner/pkg/health"
)

type fakeStore struct {
	mu      sync.Mutex
	entries []Entry
	err     error
	calls   int
}

func (s *fakeStore) List(ctx context.Context) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out, nil
}

func (s *fakeStore) set(entries []Entry, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = entries
	s.err = err
}

func ruleEntry(t *testing.T, name string) Entry {
	return must(t)(NewActionRuleEntry(ActionRule{Name: name, ActionLabel: label.Action(name)}))
}

func TestCatalogUnavailableBeforeFirstLoad(t *testing.T) {
	store := &fakeStore{err: errors.New("connection refused")}
	c := New(store, config.ReloadConfig{}, logger.NopLogger())

	_, err := c.Snapshot()
	assert.True(t, pkgerrors.IsCatalogUnavailable(err))

	require.Error(t, c.Reload(context.Background()))

	_, err = c.ListActionRules()
	assert.True(t, pkgerrors.IsCatalogUnavailable(err))
	assert.False(t, c.Degraded())

	err = c.HealthChecker().Check(context.Background())
	require.Error(t, err)
	var degraded *health.DegradedError
	assert.False(t, errors.As(err, &degraded))
}

func TestCatalogHotReload(t *testing.T) {
	store := &fakeStore{entries: []Entry{ruleEntry(t, "A")}}
	c := New(store, config.ReloadConfig{}, logger.NopLogger())

	require.NoError(t, c.Reload(context.Background()))
	before, err := c.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), before.Generation)

	store.set([]Entry{ruleEntry(t, "A"), ruleEntry(t, "B")}, nil)
	require.NoError(t, c.Reload(context.Background()))

	rules, err := c.ListActionRules()
	require.NoError(t, err)
	assert.Len(t, rules, 2)

	// A snapshot taken before the reload is unaffected.
	assert.Len(t, before.ActionRules(), 1)

	after, err := c.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), after.Generation)
}

func TestCatalogListActionsOrdered(t *testing.T) {
	store := &fakeStore{entries: []Entry{
		must(t)(NewActionEntry(Action{ActionLabel: label.Action("Notify"), Priority: 1})),
		must(t)(NewActionEntry(Action{
			ActionLabel:  label.Action("EnqueueForReview"),
			Priority:     2,
			SupersededBy: []label.ActionLabel{label.Action("Notify")},
		})),
	}}
	c := New(store, config.ReloadConfig{}, logger.NopLogger())
	require.NoError(t, c.Reload(context.Background()))

	actions, err := c.ListActions()
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, "EnqueueForReview", actions[0].ActionLabel.Value())
	assert.True(t, actions[0].IsSupersededBy(label.Action("Notify")))
	assert.Equal(t, 1, actions[1].Priority)
}

func TestCatalogDegradedModeKeepsLastSnapshot(t *testing.T) {
	store := &fakeStore{entries: []Entry{ruleEntry(t, "A")}}
	c := New(store, config.ReloadConfig{}, logger.NopLogger())
	require.NoError(t, c.Reload(context.Background()))

	store.set(nil, errors.New("connection refused"))
	require.Error(t, c.Reload(context.Background()))

	assert.True(t, c.Degraded())
	rules, err := c.ListActionRules()
	require.NoError(t, err)
	assert.Len(t, rules, 1)

	checkErr := c.HealthChecker().Check(context.Background())
	var degraded *health.DegradedError
	require.True(t, errors.As(checkErr, &degraded))
	assert.Contains(t, checkErr.Error(), "connection refused")

	registry := health.NewCheckerRegistry()
	registry.Register(c.HealthChecker())
	assert.Equal(t, health.StatusDegraded, registry.Check(context.Background()).Status)

	store.set([]Entry{ruleEntry(t, "A")}, nil)
	require.NoError(t, c.Reload(context.Background()))
	assert.False(t, c.Degraded())
	assert.NoError(t, c.HealthChecker().Check(context.Background()))
}

func TestCatalogReloadJitterRespectsContext(t *testing.T) {
	store := &fakeStore{}
	c := New(store, config.ReloadConfig{JitterMaxMilliseconds: 60000}, logger.NopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Either the jitter draw was zero or the cancelled context aborts the wait.
	if err := c.Reload(ctx); err != nil {
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 0, store.calls)
	}
	require.NoError(t, c.Reload(context.Background(), true))
}

func TestCatalogStartReloaderLoadsImmediately(t *testing.T) {
	store := &fakeStore{entries: []Entry{ruleEntry(t, "A")}}
	c := New(store, config.ReloadConfig{IntervalSeconds: 3600, JitterMaxMilliseconds: 60000}, logger.NopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.StartReloader(ctx) }()

	require.Eventually(t, func() bool {
		_, err := c.Snapshot()
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

type fakeProducer struct {
	mu       sync.Mutex
	messages []broker.Message
	topics   []string
}

func (p *fakeProducer) Publish(ctx context.Context, topic string, msg broker.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.messages = append(p.messages, msg)
	return nil
}

func (p *fakeProducer) Close() error { return nil }

type memoryWriter struct {
	fakeStore
}

func (w *memoryWriter) Put(ctx context.Context, e Entry, changedBy string) (Entry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, existing := range w.entries {
		if existing.ConfigType == e.ConfigType && existing.Name == e.Name {
			e.Version = existing.Version + 1
			w.entries[i] = e
			return e, nil
		}
	}
	e.Version = 1
	w.entries = append(w.entries, e)
	return e, nil
}

func (w *memoryWriter) Delete(ctx context.Context, configType, name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, existing := range w.entries {
		if existing.ConfigType == configType && existing.Name == name {
			w.entries = append(w.entries[:i], w.entries[i+1:]...)
			return nil
		}
	}
	return pkgerrors.ErrNotFound
}

func TestEditorChangesReachCatalogThroughUpdateEvents(t *testing.T) {
	store := &memoryWriter{}
	producer := &fakeProducer{}
	editor := NewEditor(store, NewNotifier(producer, "hma_config_updates"))

	c := New(store, config.ReloadConfig{JitterMaxMilliseconds: 0}, logger.NopLogger())
	handler := NewHandler(c, logger.NopLogger())
	ctx := context.Background()

	saved, err := editor.Put(ctx, ruleEntry(t, "A"), "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, saved.Version)

	require.Len(t, producer.messages, 1)
	assert.Equal(t, "hma_config_updates", producer.topics[0])
	assert.NotEmpty(t, producer.messages[0].Headers[broker.HeaderMessageID])

	event, err := DecodeUpdateEvent(producer.messages[0].Value)
	require.NoError(t, err)
	assert.Equal(t, EventTypeCatalogUpdated, event.EventType)
	assert.Equal(t, ActionPut, event.Action)
	assert.Equal(t, "A", event.Name)
	assert.Equal(t, 1, event.Version)
	assert.Equal(t, "alice", event.ChangedBy)

	require.NoError(t, handler.HandleUpdateEvent(ctx, producer.messages[0]))
	rules, err := c.ListActionRules()
	require.NoError(t, err)
	assert.Len(t, rules, 1)

	require.NoError(t, editor.Delete(ctx, "ActionRule", "A", "alice"))
	require.Len(t, producer.messages, 2)
	require.NoError(t, handler.HandleUpdateEvent(ctx, producer.messages[1]))
	rules, err = c.ListActionRules()
	require.NoError(t, err)
	assert.Empty(t, rules)

	assert.True(t, pkgerrors.IsNotFound(editor.Delete(ctx, "ActionRule", "A", "alice")))
	assert.Len(t, producer.messages, 2)
}

func TestHandlerIgnoresForeignAndMalformedEvents(t *testing.T) {
	store := &fakeStore{}
	c := New(store, config.ReloadConfig{}, logger.NopLogger())
	handler := NewHandler(c, logger.NopLogger())

	require.NoError(t, handler.HandleUpdateEvent(context.Background(), broker.Message{Value: []byte(`not json`)}))
	require.NoError(t, handler.HandleUpdateEvent(context.Background(), broker.Message{Value: []byte(`{"event_type":"filtering_rule_updated"}`)}))
	assert.Equal(t, 0, store.calls)
}

func TestHandlerReturnsReloadError(t *testing.T) {
	store := &fakeStore{err: errors.New("connection refused")}
	handler := NewHandler(New(store, config.ReloadConfig{}, logger.NopLogger()), logger.NopLogger())

	err := handler.HandleUpdateEvent(context.Background(), broker.Message{Value: []byte(`{"event_type":"catalog_updated","action":"reload"}`)})
	require.Error(t, err)
}
