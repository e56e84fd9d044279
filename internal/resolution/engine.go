package resolution

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"actioner/internal/catalog"
	"actioner/internal/config"
	"actioner/internal/constants"
	"actioner/internal/label"
	"actioner/internal/logger"
	"actioner/internal/match"
	"actioner/pkg/metrics"
	"actioner/pkg/tracing"
)

type SnapshotSource interface {
	Snapshot() (*catalog.Snapshot, error)
}

// Result is the outcome of evaluating one match against one snapshot.
type Result struct {
	Actions    []label.ActionLabel
	Reactions  []label.ReactionLabel
	Superseded []label.ActionLabel
	Generation uint64
}

// Engine decides which actions and reactions a match leads to. It holds no
// state of its own; every call reads one catalog snapshot.
type Engine struct {
	source          SnapshotSource
	policy          ReactionPolicy
	reactingDefault bool
	logger          logger.Logger
}

func NewEngine(source SnapshotSource, policy ReactionPolicy, cfg config.ReactingConfig, log logger.Logger) *Engine {
	if policy == nil {
		policy = SawThisTooPolicy{}
	}
	return &Engine{
		source:          source,
		policy:          policy,
		reactingDefault: cfg.Enabled,
		logger:          log,
	}
}

// Evaluate resolves actions and then reactions against a single snapshot.
func (e *Engine) Evaluate(ctx context.Context, m match.Message) (Result, error) {
	ctx, span := tracing.StartSpan(ctx, "resolution", "evaluate")
	defer span.End()

	snapshot, err := e.source.Snapshot()
	if err != nil {
		return Result{}, err
	}

	labels := m.Labels()
	actions, superseded := e.resolveActions(ctx, snapshot, labels)
	reactions := e.resolveReactions(ctx, snapshot, m, labels, actions)

	span.SetAttributes(
		attribute.Int64("catalog.generation", int64(snapshot.Generation)),
		attribute.Int("resolution.actions", len(actions)),
		attribute.Int("resolution.reactions", len(reactions)),
	)

	return Result{
		Actions:    actions,
		Reactions:  reactions,
		Superseded: superseded,
		Generation: snapshot.Generation,
	}, nil
}

// ResolveActionLabels returns the actions a match leads to after
// supersession. An empty result means no action.
func (e *Engine) ResolveActionLabels(ctx context.Context, m match.Message) ([]label.ActionLabel, error) {
	snapshot, err := e.source.Snapshot()
	if err != nil {
		return nil, err
	}
	actions, _ := e.resolveActions(ctx, snapshot, m.Labels())
	return actions, nil
}

// ResolveReactionLabels returns the reactions to send for a match given the
// actions already resolved for it. Disabled reacting yields an empty result.
func (e *Engine) ResolveReactionLabels(ctx context.Context, m match.Message, actions []label.ActionLabel) ([]label.ReactionLabel, error) {
	snapshot, err := e.source.Snapshot()
	if err != nil {
		return nil, err
	}
	return e.resolveReactions(ctx, snapshot, m, m.Labels(), actions), nil
}

func (e *Engine) resolveActions(ctx context.Context, snapshot *catalog.Snapshot, labels *label.Set) (kept, removed []label.ActionLabel) {
	matched := MatchRules(snapshot.ActionRules(), labels)
	kept, removed = Supersede(snapshot, matched)

	for _, l := range removed {
		metrics.LabelsSupersededTotal.WithLabelValues(l.Value()).Inc()
	}
	for _, l := range kept {
		metrics.LabelsResolvedTotal.WithLabelValues(string(label.KindAction), l.Value()).Inc()
	}

	if len(removed) > 0 {
		e.logger.DebugwCtx(ctx, "Superseded action labels",
			"superseded", labelValues(removed),
			"kept", labelValues(kept),
		)
	}
	return kept, removed
}

func (e *Engine) resolveReactions(ctx context.Context, snapshot *catalog.Snapshot, m match.Message, labels *label.Set, actions []label.ActionLabel) []label.ReactionLabel {
	if !e.ReactingEnabled(snapshot, m) {
		e.logger.DebugwCtx(ctx, "Reacting disabled for match")
		return []label.ReactionLabel{}
	}

	reactions := e.policy.Reactions(ctx, Evaluation{
		Snapshot: snapshot,
		Match:    m,
		Labels:   labels,
		Actions:  actions,
	})
	for _, r := range reactions {
		metrics.LabelsResolvedTotal.WithLabelValues(string(label.KindThreatExchangeReaction), r.Value()).Inc()
	}
	return reactions
}

// ReactingEnabled checks each signal's bank policy, then the global policy,
// then the configured default. One enabled signal is enough.
func (e *Engine) ReactingEnabled(snapshot *catalog.Snapshot, m match.Message) bool {
	global, hasGlobal := snapshot.ReactingEnabled(constants.ReactingScopeGlobal)
	fallback := e.reactingDefault
	if hasGlobal {
		fallback = global
	}

	if len(m.MatchingBankedSignals) == 0 {
		return fallback
	}

	for _, bankID := range m.BankIDs() {
		enabled, ok := snapshot.ReactingEnabled(bankID)
		if !ok {
			enabled = fallback
		}
		if enabled {
			return true
		}
	}
	return false
}

func labelValues[L interface{ Value() string }](labels []L) []string {
	out := make([]string, len(labels))
	for i, l := range labels {
		out[i] = l.Value()
	}
	return out
}
