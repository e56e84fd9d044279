package catalog

import (
	"sort"
	"time"

	"actioner/internal/constants"
	"actioner/internal/label"
)

// SkippedEntry is a stored entry the snapshot left out because it could not
// be parsed.
type SkippedEntry struct {
	ConfigType string
	Name       string
	Err        error
}

// Snapshot is an immutable view of the catalog. Evaluations hold on to one
// snapshot for their whole duration.
type Snapshot struct {
	Generation uint64
	LoadedAt   time.Time

	rules         []ActionRule
	actions       map[label.ActionLabel]Action
	performers    map[string]PerformerConfig
	reacting      map[string]bool
	reactionRules []ReactionRule
	skipped       []SkippedEntry
	counts        map[string]int
}

// NewSnapshot parses entries in the order given. Entries of unknown type are
// ignored; malformed entries are reported through Skipped.
func NewSnapshot(entries []Entry) *Snapshot {
	s := &Snapshot{
		LoadedAt:   time.Now(),
		actions:    make(map[label.ActionLabel]Action),
		performers: make(map[string]PerformerConfig),
		reacting:   make(map[string]bool),
		counts:     make(map[string]int),
	}

	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		key := e.ConfigType + "\x00" + e.Name
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		if err := s.add(e); err != nil {
			s.skipped = append(s.skipped, SkippedEntry{ConfigType: e.ConfigType, Name: e.Name, Err: err})
			continue
		}
		s.counts[e.ConfigType]++
	}

	return s
}

func (s *Snapshot) add(e Entry) error {
	switch e.ConfigType {
	case constants.ConfigTypeActionRule:
		r, err := parseActionRule(e)
		if err != nil {
			return err
		}
		s.rules = append(s.rules, r)
	case constants.ConfigTypeAction:
		a, err := parseAction(e)
		if err != nil {
			return err
		}
		s.actions[a.ActionLabel] = a
	case constants.ConfigTypeActionPerformer:
		p, err := parsePerformer(e)
		if err != nil {
			return err
		}
		s.performers[p.Name] = p
	case constants.ConfigTypeReactingPolicy:
		p, err := parseReactingPolicy(e)
		if err != nil {
			return err
		}
		s.reacting[p.Scope] = p.Enabled
	case constants.ConfigTypeReactionRule:
		r, err := parseReactionRule(e)
		if err != nil {
			return err
		}
		s.reactionRules = append(s.reactionRules, r)
	}
	return nil
}

// ActionRules returns the rules in catalog order.
func (s *Snapshot) ActionRules() []ActionRule {
	out := make([]ActionRule, len(s.rules))
	copy(out, s.rules)
	return out
}

// Actions returns every action definition ordered by label value.
func (s *Snapshot) Actions() []Action {
	out := make([]Action, 0, len(s.actions))
	for _, a := range s.actions {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ActionLabel.Value() < out[j].ActionLabel.Value()
	})
	return out
}

func (s *Snapshot) Action(l label.ActionLabel) (Action, bool) {
	a, ok := s.actions[l]
	return a, ok
}

func (s *Snapshot) Performer(name string) (PerformerConfig, bool) {
	p, ok := s.performers[name]
	return p, ok
}

// ReactingEnabled returns the policy stored for scope, if any.
func (s *Snapshot) ReactingEnabled(scope string) (enabled bool, ok bool) {
	enabled, ok = s.reacting[scope]
	return enabled, ok
}

func (s *Snapshot) ReactionRules() []ReactionRule {
	out := make([]ReactionRule, len(s.reactionRules))
	copy(out, s.reactionRules)
	return out
}

func (s *Snapshot) Skipped() []SkippedEntry {
	out := make([]SkippedEntry, len(s.skipped))
	copy(out, s.skipped)
	return out
}

// Count returns how many entries of configType made it into the snapshot.
func (s *Snapshot) Count(configType string) int {
	return s.counts[configType]
}
