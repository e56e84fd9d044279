package catalog

import (
	"encoding/json"
	"fmt"
	"time"

	"actioner/internal/constants"
	"actioner/internal/label"
)

// Entry is one named, versioned configuration row. Fields holds the
// type-specific attributes as JSON.
type Entry struct {
	ConfigType string          `json:"config_type"`
	Name       string          `json:"name"`
	Subtype    string          `json:"subtype,omitempty"`
	Version    int             `json:"version"`
	Fields     json.RawMessage `json:"fields"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// EntryVersion is a historical copy of an entry written on every Put.
type EntryVersion struct {
	ID         string
	ConfigType string
	Name       string
	Subtype    string
	Version    int
	Fields     json.RawMessage
	ChangedBy  string
	CreatedAt  time.Time
}

// ActionRule maps a combination of labels on a match to an action.
// By convention Name equals ActionLabel's value.
type ActionRule struct {
	Name              string
	ActionLabel       label.ActionLabel
	MustHaveLabels    []label.Label
	MustNotHaveLabels []label.Label
}

// Action describes how an action label competes with the others resolved for
// the same match. A higher Priority is more important.
type Action struct {
	ActionLabel  label.ActionLabel
	Priority     int
	SupersededBy []label.ActionLabel
}

// IsSupersededBy reports whether other is listed in a's superseded-by set.
func (a Action) IsSupersededBy(other label.ActionLabel) bool {
	for _, s := range a.SupersededBy {
		if s == other {
			return true
		}
	}
	return false
}

// PerformerConfig names the webhook variant and carries its settings
// undecoded; the performer registry owns their shape.
type PerformerConfig struct {
	Name    string
	Subtype string
	Version int
	Fields  json.RawMessage
}

// ReactingPolicy switches reactions on or off for one bank, or for every
// bank when Scope is "*".
type ReactingPolicy struct {
	Scope   string
	Enabled bool
}

type ReactionRule struct {
	Name              string
	ReactionLabel     label.ReactionLabel
	MustHaveLabels    []label.Label
	MustNotHaveLabels []label.Label
	Condition         string
}

type actionRuleFields struct {
	ActionLabel       *label.Label  `json:"action_label"`
	MustHaveLabels    []label.Label `json:"must_have_labels"`
	MustNotHaveLabels []label.Label `json:"must_not_have_labels"`
}

type actionFields struct {
	Priority     int           `json:"priority"`
	SupersededBy []label.Label `json:"superseded_by"`
}

type reactingPolicyFields struct {
	Enabled *bool `json:"enabled"`
}

type reactionRuleFields struct {
	ReactionLabel     *label.Label  `json:"reaction_label"`
	MustHaveLabels    []label.Label `json:"must_have_labels"`
	MustNotHaveLabels []label.Label `json:"must_not_have_labels"`
	Condition         string        `json:"condition,omitempty"`
}

func decodeFields(e Entry, v interface{}) error {
	if len(e.Fields) == 0 {
		return fmt.Errorf("%s %q has no fields", e.ConfigType, e.Name)
	}
	if err := json.Unmarshal(e.Fields, v); err != nil {
		return fmt.Errorf("%s %q has malformed fields: %w", e.ConfigType, e.Name, err)
	}
	return nil
}

func validateLabels(e Entry, field string, labels []label.Label) error {
	for i, l := range labels {
		if err := l.Validate(); err != nil {
			return fmt.Errorf("%s %q: %s[%d]: %w", e.ConfigType, e.Name, field, i, err)
		}
	}
	return nil
}

func parseActionRule(e Entry) (ActionRule, error) {
	var f actionRuleFields
	if err := decodeFields(e, &f); err != nil {
		return ActionRule{}, err
	}

	actionLabel := label.Action(e.Name)
	if f.ActionLabel != nil {
		if f.ActionLabel.Kind() != label.KindAction || f.ActionLabel.Value == "" {
			return ActionRule{}, fmt.Errorf("%s %q: action_label %s is not an action label", e.ConfigType, e.Name, f.ActionLabel)
		}
		actionLabel = label.Action(f.ActionLabel.Value)
	}

	if err := validateLabels(e, "must_have_labels", f.MustHaveLabels); err != nil {
		return ActionRule{}, err
	}
	if err := validateLabels(e, "must_not_have_labels", f.MustNotHaveLabels); err != nil {
		return ActionRule{}, err
	}

	return ActionRule{
		Name:              e.Name,
		ActionLabel:       actionLabel,
		MustHaveLabels:    f.MustHaveLabels,
		MustNotHaveLabels: f.MustNotHaveLabels,
	}, nil
}

func parseAction(e Entry) (Action, error) {
	var f actionFields
	if err := decodeFields(e, &f); err != nil {
		return Action{}, err
	}

	superseded := make([]label.ActionLabel, 0, len(f.SupersededBy))
	for i, l := range f.SupersededBy {
		if l.Kind() != label.KindAction || l.Value == "" {
			return Action{}, fmt.Errorf("%s %q: superseded_by[%d] %s is not an action label", e.ConfigType, e.Name, i, l)
		}
		superseded = append(superseded, label.Action(l.Value))
	}

	return Action{
		ActionLabel:  label.Action(e.Name),
		Priority:     f.Priority,
		SupersededBy: superseded,
	}, nil
}

func parsePerformer(e Entry) (PerformerConfig, error) {
	if e.Subtype == "" {
		return PerformerConfig{}, fmt.Errorf("%s %q has no subtype", e.ConfigType, e.Name)
	}
	if !json.Valid(e.Fields) {
		return PerformerConfig{}, fmt.Errorf("%s %q has malformed fields", e.ConfigType, e.Name)
	}
	return PerformerConfig{
		Name:    e.Name,
		Subtype: e.Subtype,
		Version: e.Version,
		Fields:  e.Fields,
	}, nil
}

func parseReactingPolicy(e Entry) (ReactingPolicy, error) {
	var f reactingPolicyFields
	if err := decodeFields(e, &f); err != nil {
		return ReactingPolicy{}, err
	}
	if f.Enabled == nil {
		return ReactingPolicy{}, fmt.Errorf("%s %q is missing enabled", e.ConfigType, e.Name)
	}
	return ReactingPolicy{Scope: e.Name, Enabled: *f.Enabled}, nil
}

func parseReactionRule(e Entry) (ReactionRule, error) {
	var f reactionRuleFields
	if err := decodeFields(e, &f); err != nil {
		return ReactionRule{}, err
	}

	if f.ReactionLabel == nil || f.ReactionLabel.Kind() != label.KindThreatExchangeReaction || f.ReactionLabel.Value == "" {
		return ReactionRule{}, fmt.Errorf("%s %q: reaction_label must be a %s label", e.ConfigType, e.Name, label.KindThreatExchangeReaction)
	}
	if err := validateLabels(e, "must_have_labels", f.MustHaveLabels); err != nil {
		return ReactionRule{}, err
	}
	if err := validateLabels(e, "must_not_have_labels", f.MustNotHaveLabels); err != nil {
		return ReactionRule{}, err
	}

	return ReactionRule{
		Name:              e.Name,
		ReactionLabel:     label.ThreatExchangeReaction(f.ReactionLabel.Value),
		MustHaveLabels:    f.MustHaveLabels,
		MustNotHaveLabels: f.MustNotHaveLabels,
		Condition:         f.Condition,
	}, nil
}

// NewActionRuleEntry builds the stored form of r.
func NewActionRuleEntry(r ActionRule) (Entry, error) {
	al := r.ActionLabel.Label()
	return newEntry(constants.ConfigTypeActionRule, r.Name, "", actionRuleFields{
		ActionLabel:       &al,
		MustHaveLabels:    nonNil(r.MustHaveLabels),
		MustNotHaveLabels: nonNil(r.MustNotHaveLabels),
	})
}

func NewActionEntry(a Action) (Entry, error) {
	superseded := make([]label.Label, 0, len(a.SupersededBy))
	for _, s := range a.SupersededBy {
		superseded = append(superseded, s.Label())
	}
	return newEntry(constants.ConfigTypeAction, a.ActionLabel.Value(), "", actionFields{
		Priority:     a.Priority,
		SupersededBy: superseded,
	})
}

func NewReactingPolicyEntry(p ReactingPolicy) (Entry, error) {
	enabled := p.Enabled
	return newEntry(constants.ConfigTypeReactingPolicy, p.Scope, "", reactingPolicyFields{Enabled: &enabled})
}

func NewReactionRuleEntry(r ReactionRule) (Entry, error) {
	rl := r.ReactionLabel.Label()
	return newEntry(constants.ConfigTypeReactionRule, r.Name, "", reactionRuleFields{
		ReactionLabel:     &rl,
		MustHaveLabels:    nonNil(r.MustHaveLabels),
		MustNotHaveLabels: nonNil(r.MustNotHaveLabels),
		Condition:         r.Condition,
	})
}

func NewPerformerEntry(name, subtype string, fields interface{}) (Entry, error) {
	return newEntry(constants.ConfigTypeActionPerformer, name, subtype, fields)
}

func newEntry(configType, name, subtype string, fields interface{}) (Entry, error) {
	data, err := json.Marshal(fields)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to marshal %s %q: %w", configType, name, err)
	}
	return Entry{ConfigType: configType, Name: name, Subtype: subtype, Fields: data}, nil
}

func nonNil(labels []label.Label) []label.Label {
	if labels == nil {
		return []label.Label{}
	}
	return labels
}
