package resolution

import (
	"context"

	"actioner/internal/catalog"
	"actioner/internal/label"
	"actioner/internal/logger"
	"actioner/internal/match"
	"actioner/pkg/cel"
	"actioner/pkg/metrics"
)

// SawThisToo acknowledges a match back to the source of the matched signal.
var SawThisToo = label.ThreatExchangeReaction("SAW_THIS_TOO")

// Evaluation is what a ReactionPolicy decides on.
type Evaluation struct {
	Snapshot *catalog.Snapshot
	Match    match.Message
	Labels   *label.Set
	Actions  []label.ActionLabel
}

// ReactionPolicy maps resolved actions to the reactions to send. It is only
// consulted when reacting is enabled for the match.
type ReactionPolicy interface {
	Reactions(ctx context.Context, ev Evaluation) []label.ReactionLabel
}

// SawThisTooPolicy acknowledges every reacting-enabled match with
// SAW_THIS_TOO, whether or not an action resolved.
type SawThisTooPolicy struct{}

func (SawThisTooPolicy) Reactions(ctx context.Context, ev Evaluation) []label.ReactionLabel {
	return []label.ReactionLabel{SawThisToo}
}

// RulePolicy evaluates the snapshot's reaction rules. A rule applies when its
// label constraints hold over the match labels plus the resolved actions and
// its condition, if any, evaluates to true. With no rules configured the
// fallback policy decides.
type RulePolicy struct {
	evaluator *cel.Evaluator
	fallback  ReactionPolicy
	logger    logger.Logger
}

func NewRulePolicy(evaluator *cel.Evaluator, fallback ReactionPolicy, log logger.Logger) *RulePolicy {
	return &RulePolicy{
		evaluator: evaluator,
		fallback:  fallback,
		logger:    log,
	}
}

func (p *RulePolicy) Reactions(ctx context.Context, ev Evaluation) []label.ReactionLabel {
	rules := ev.Snapshot.ReactionRules()
	if len(rules) == 0 {
		if p.fallback == nil {
			return []label.ReactionLabel{}
		}
		return p.fallback.Reactions(ctx, ev)
	}

	labels := label.NewSet(ev.Labels.Labels()...)
	actionValues := make([]string, 0, len(ev.Actions))
	for _, a := range ev.Actions {
		labels.Add(a.Label())
		actionValues = append(actionValues, a.Value())
	}

	var input *cel.Input
	seen := make(map[label.ReactionLabel]struct{}, len(rules))
	out := make([]label.ReactionLabel, 0, len(rules))

	for _, r := range rules {
		if _, ok := seen[r.ReactionLabel]; ok {
			continue
		}
		if !Applies(r.MustHaveLabels, r.MustNotHaveLabels, labels) {
			continue
		}

		if r.Condition != "" {
			if input == nil {
				in := conditionInput(ev.Match, actionValues)
				input = &in
			}
			ok, err := p.evaluator.EvaluateCondition(ctx, r.Condition, *input)
			if err != nil {
				metrics.RuleEvaluationErrorsTotal.WithLabelValues("ReactionRule", r.Name).Inc()
				p.logger.WarnwCtx(ctx, "Skipping reaction rule that failed to evaluate",
					"rule_name", r.Name,
					"error", err,
				)
				continue
			}
			if !ok {
				continue
			}
		}

		seen[r.ReactionLabel] = struct{}{}
		out = append(out, r.ReactionLabel)
	}
	return out
}

func conditionInput(m match.Message, actions []string) cel.Input {
	signals := make([]map[string]interface{}, 0, len(m.MatchingBankedSignals))
	for _, s := range m.MatchingBankedSignals {
		classifications := s.Classifications
		if classifications == nil {
			classifications = []string{}
		}
		signals = append(signals, map[string]interface{}{
			"banked_content_id": s.BankedContentID,
			"bank_id":           s.BankID,
			"bank_source":       s.BankSource,
			"classifications":   classifications,
		})
	}
	return cel.Input{
		ContentKey:  m.ContentKey,
		ContentHash: m.ContentHash,
		Signals:     signals,
		Actions:     actions,
	}
}
