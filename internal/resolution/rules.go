package resolution

import (
	"sort"

	"actioner/internal/catalog"
	"actioner/internal/label"
)

// Applies reports whether every must-have label is present and no
// must-not-have label is.
func Applies(mustHave, mustNotHave []label.Label, labels *label.Set) bool {
	return labels.ContainsAll(mustHave) && !labels.ContainsAny(mustNotHave)
}

// MatchRules returns the action labels of the applying rules in rule order,
// without duplicates.
func MatchRules(rules []catalog.ActionRule, labels *label.Set) []label.ActionLabel {
	seen := make(map[label.ActionLabel]struct{}, len(rules))
	out := make([]label.ActionLabel, 0, len(rules))
	for _, r := range rules {
		if !Applies(r.MustHaveLabels, r.MustNotHaveLabels, labels) {
			continue
		}
		if _, ok := seen[r.ActionLabel]; ok {
			continue
		}
		seen[r.ActionLabel] = struct{}{}
		out = append(out, r.ActionLabel)
	}
	return out
}

// ActionLookup resolves an action label to its definition.
type ActionLookup interface {
	Action(l label.ActionLabel) (catalog.Action, bool)
}

// Supersede drops every resolved label whose definition lists another label
// that is still present. Candidates are visited from lowest to highest
// priority, ties broken by resolution order, and passes repeat until one
// removes nothing. Labels without a definition are never dropped. kept
// preserves the input order.
func Supersede(actions ActionLookup, resolved []label.ActionLabel) (kept, removed []label.ActionLabel) {
	present := make(map[label.ActionLabel]bool, len(resolved))
	for _, l := range resolved {
		present[l] = true
	}

	type candidate struct {
		label    label.ActionLabel
		action   catalog.Action
		position int
	}
	candidates := make([]candidate, 0, len(resolved))
	for i, l := range resolved {
		if a, ok := actions.Action(l); ok {
			candidates = append(candidates, candidate{label: l, action: a, position: i})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].action.Priority != candidates[j].action.Priority {
			return candidates[i].action.Priority < candidates[j].action.Priority
		}
		return candidates[i].position < candidates[j].position
	})

	for {
		removedThisPass := false
		for _, c := range candidates {
			if !present[c.label] {
				continue
			}
			for _, by := range c.action.SupersededBy {
				if by != c.label && present[by] {
					present[c.label] = false
					removed = append(removed, c.label)
					removedThisPass = true
					break
				}
			}
		}
		if !removedThisPass {
			break
		}
	}

	kept = make([]label.ActionLabel, 0, len(resolved))
	for _, l := range resolved {
		if present[l] {
			kept = append(kept, l)
		}
	}
	return kept, removed
}
