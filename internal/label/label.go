package label

import (
	"encoding/json"
	"fmt"
)

// Kind is the fixed key shared by every label of one kind.
type Kind string

const (
	KindClassification                Kind = "Classification"
	KindBankSourceClassification      Kind = "BankSourceClassification"
	KindBankIDClassification          Kind = "BankIDClassification"
	KindBankedContentIDClassification Kind = "BankedContentIDClassification"
	KindAction                        Kind = "Action"
	KindThreatExchangeReaction        Kind = "ThreatExchangeReaction"
)

var knownKinds = map[Kind]struct{}{
	KindClassification:                {},
	KindBankSourceClassification:      {},
	KindBankIDClassification:          {},
	KindBankedContentIDClassification: {},
	KindAction:                        {},
	KindThreatExchangeReaction:        {},
}

// IsKnown reports whether k is one of the fixed label kinds.
func (k Kind) IsKnown() bool {
	_, ok := knownKinds[k]
	return ok
}

// Label is a key/value classification tag. Labels are comparable and can be
// used as map keys; two labels are equal iff key and value match.
type Label struct {
	Key   string `json:"K" bson:"K"`
	Value string `json:"V" bson:"V"`
}

func New(key, value string) Label {
	return Label{Key: key, Value: value}
}

func Of(kind Kind, value string) Label {
	return Label{Key: string(kind), Value: value}
}

func Classification(value string) Label {
	return Of(KindClassification, value)
}

func BankSourceClassification(value string) Label {
	return Of(KindBankSourceClassification, value)
}

func BankIDClassification(value string) Label {
	return Of(KindBankIDClassification, value)
}

func BankedContentIDClassification(value string) Label {
	return Of(KindBankedContentIDClassification, value)
}

// Kind returns the label's key as a Kind. Generic labels return a Kind that
// is not IsKnown.
func (l Label) Kind() Kind {
	return Kind(l.Key)
}

// Equal accepts any value so callers holding untyped data never need a type
// switch. Non-label values are never equal.
func (l Label) Equal(other any) bool {
	switch o := other.(type) {
	case Label:
		return l == o
	case *Label:
		return o != nil && l == *o
	case ActionLabel:
		return l == o.Label()
	case ReactionLabel:
		return l == o.Label()
	default:
		return false
	}
}

// Validate rejects labels that can never match anything meaningful.
func (l Label) Validate() error {
	if l.Key == "" {
		return fmt.Errorf("label key is empty")
	}
	if l.Value == "" {
		return fmt.Errorf("label %q has empty value", l.Key)
	}
	return nil
}

func (l Label) String() string {
	return l.Key + ":" + l.Value
}

// ToMap returns the compact persisted form {"K": key, "V": value}.
func (l Label) ToMap() map[string]string {
	return map[string]string{"K": l.Key, "V": l.Value}
}

func FromMap(m map[string]string) (Label, error) {
	k, ok := m["K"]
	if !ok {
		return Label{}, fmt.Errorf("label is missing field K")
	}
	v, ok := m["V"]
	if !ok {
		return Label{}, fmt.Errorf("label is missing field V")
	}
	return Label{Key: k, Value: v}, nil
}

// UnmarshalJSON requires both K and V to be present.
func (l *Label) UnmarshalJSON(data []byte) error {
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("invalid label: %w", err)
	}
	parsed, err := FromMap(m)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
