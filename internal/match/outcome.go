package match

import (
	"encoding/json"
	"fmt"

	"actioner/internal/label"
)

// ActionMessage is a match message plus the one action the performer should
// carry out.
type ActionMessage struct {
	Message
	ActionLabel label.ActionLabel
}

func NewActionMessage(m Message, a label.ActionLabel) ActionMessage {
	return ActionMessage{Message: m, ActionLabel: a}
}

type actionWire struct {
	ContentKey            string         `json:"ContentKey"`
	ContentHash           string         `json:"ContentHash"`
	MatchingBankedSignals []BankedSignal `json:"MatchingBankedSignals"`
	ActionLabelValue      *string        `json:"ActionLabelValue"`
}

func (m ActionMessage) Encode() ([]byte, error) {
	v := m.ActionLabel.Value()
	return json.Marshal(actionWire{
		ContentKey:            m.ContentKey,
		ContentHash:           m.ContentHash,
		MatchingBankedSignals: m.signals(),
		ActionLabelValue:      &v,
	})
}

func DecodeActionMessage(data []byte) (ActionMessage, error) {
	var w actionWire
	if err := json.Unmarshal(data, &w); err != nil {
		return ActionMessage{}, fmt.Errorf("invalid action message: %w", err)
	}
	if w.ActionLabelValue == nil {
		return ActionMessage{}, fmt.Errorf("action message is missing ActionLabelValue")
	}
	return ActionMessage{
		Message: Message{
			ContentKey:            w.ContentKey,
			ContentHash:           w.ContentHash,
			MatchingBankedSignals: w.MatchingBankedSignals,
		},
		ActionLabel: label.Action(*w.ActionLabelValue),
	}, nil
}

// ReactionMessage is a match message plus the reaction to send back to the
// signal source.
type ReactionMessage struct {
	Message
	ReactionLabel label.ReactionLabel
}

func NewReactionMessage(m Message, r label.ReactionLabel) ReactionMessage {
	return ReactionMessage{Message: m, ReactionLabel: r}
}

type reactionWire struct {
	ContentKey            string         `json:"ContentKey"`
	ContentHash           string         `json:"ContentHash"`
	MatchingBankedSignals []BankedSignal `json:"MatchingBankedSignals"`
	ReactionLabelValue    *string        `json:"ReactionLabelValue"`
}

func (m ReactionMessage) Encode() ([]byte, error) {
	v := m.ReactionLabel.Value()
	return json.Marshal(reactionWire{
		ContentKey:            m.ContentKey,
		ContentHash:           m.ContentHash,
		MatchingBankedSignals: m.signals(),
		ReactionLabelValue:    &v,
	})
}

func DecodeReactionMessage(data []byte) (ReactionMessage, error) {
	var w reactionWire
	if err := json.Unmarshal(data, &w); err != nil {
		return ReactionMessage{}, fmt.Errorf("invalid reaction message: %w", err)
	}
	if w.ReactionLabelValue == nil {
		return ReactionMessage{}, fmt.Errorf("reaction message is missing ReactionLabelValue")
	}
	return ReactionMessage{
		Message: Message{
			ContentKey:            w.ContentKey,
			ContentHash:           w.ContentHash,
			MatchingBankedSignals: w.MatchingBankedSignals,
		},
		ReactionLabel: label.ThreatExchangeReaction(*w.ReactionLabelValue),
	}, nil
}
