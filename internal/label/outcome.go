package label

import (
	"encoding/json"
	"fmt"
)

// ActionLabel identifies which downstream action to take. Only the value is
// instance data; the key is always KindAction.
type ActionLabel struct {
	value string
}

func Action(value string) ActionLabel {
	return ActionLabel{value: value}
}

func (a ActionLabel) Value() string { return a.value }

func (a ActionLabel) Label() Label { return Of(KindAction, a.value) }

func (a ActionLabel) String() string { return a.Label().String() }

func (a ActionLabel) Equal(other any) bool { return a.Label().Equal(other) }

func (a ActionLabel) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Label())
}

func (a *ActionLabel) UnmarshalJSON(data []byte) error {
	var l Label
	if err := json.Unmarshal(data, &l); err != nil {
		return err
	}
	if l.Kind() != KindAction {
		return fmt.Errorf("expected a %s label, got key %q", KindAction, l.Key)
	}
	a.value = l.Value
	return nil
}

// ReactionLabel identifies the acknowledgment sent back to ThreatExchange.
type ReactionLabel struct {
	value string
}

func ThreatExchangeReaction(value string) ReactionLabel {
	return ReactionLabel{value: value}
}

func (r ReactionLabel) Value() string { return r.value }

func (r ReactionLabel) Label() Label { return Of(KindThreatExchangeReaction, r.value) }

func (r ReactionLabel) String() string { return r.Label().String() }

func (r ReactionLabel) Equal(other any) bool { return r.Label().Equal(other) }

func (r ReactionLabel) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Label())
}

func (r *ReactionLabel) UnmarshalJSON(data []byte) error {
	var l Label
	if err := json.Unmarshal(data, &l); err != nil {
		return err
	}
	if l.Kind() != KindThreatExchangeReaction {
		return fmt.Errorf("expected a %s label, got key %q", KindThreatExchangeReaction, l.Key)
	}
	r.value = l.Value
	return nil
}

// Reactions sent when nothing more specific is configured.
const (
	ReactionSawThisToo     = "SAW_THIS_TOO"
	ReactionFalsePositive  = "FALSE_POSITIVE"
	ReactionTruePositive   = "TRUE_POSITIVE"
	ReactionUnspecified    = "UnspecifiedThreatExchangeReaction"
	ActionUnspecified      = "UnspecifiedAction"
	ActionEnqueueForReview = "EnqueueForReview"
)
