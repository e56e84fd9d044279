package match

import (
	"encoding/json"
	"fmt"

	"actioner/internal/label"
)

// BankedSignal is the reference entry a piece of content matched against.
type BankedSignal struct {
	BankedContentID string   `json:"BankedContentId"`
	BankID          string   `json:"BankId"`
	BankSource      string   `json:"BankSource"`
	Classifications []string `json:"Classifications,omitempty"`
}

// Message is produced once per (content, hash type) match event.
type Message struct {
	ContentKey            string         `json:"ContentKey"`
	ContentHash           string         `json:"ContentHash"`
	MatchingBankedSignals []BankedSignal `json:"MatchingBankedSignals"`
}

func (m Message) Validate() error {
	if m.ContentKey == "" {
		return fmt.Errorf("match message has empty ContentKey")
	}
	if m.ContentHash == "" {
		return fmt.Errorf("match message %s has empty ContentHash", m.ContentKey)
	}
	return nil
}

// Labels derives the classification labels a match carries through its
// banked signals, in signal order with duplicates removed.
func (m Message) Labels() *label.Set {
	set := label.NewSet()
	for _, s := range m.MatchingBankedSignals {
		if s.BankSource != "" {
			set.Add(label.BankSourceClassification(s.BankSource))
		}
		if s.BankID != "" {
			set.Add(label.BankIDClassification(s.BankID))
		}
		if s.BankedContentID != "" {
			set.Add(label.BankedContentIDClassification(s.BankedContentID))
		}
		for _, c := range s.Classifications {
			if c != "" {
				set.Add(label.Classification(c))
			}
		}
	}
	return set
}

// BankIDs returns the distinct bank ids in signal order.
func (m Message) BankIDs() []string {
	seen := make(map[string]struct{}, len(m.MatchingBankedSignals))
	ids := make([]string, 0, len(m.MatchingBankedSignals))
	for _, s := range m.MatchingBankedSignals {
		if _, ok := seen[s.BankID]; ok {
			continue
		}
		seen[s.BankID] = struct{}{}
		ids = append(ids, s.BankID)
	}
	return ids
}

func (m Message) signals() []BankedSignal {
	if m.MatchingBankedSignals == nil {
		return []BankedSignal{}
	}
	return m.MatchingBankedSignals
}

func (m Message) Encode() ([]byte, error) {
	return json.Marshal(Message{
		ContentKey:            m.ContentKey,
		ContentHash:           m.ContentHash,
		MatchingBankedSignals: m.signals(),
	})
}

// Notification is the event-notification envelope the matcher publishes.
type Notification struct {
	Type      string `json:"Type,omitempty"`
	MessageID string `json:"MessageId,omitempty"`
	Message   string `json:"Message"`
	Timestamp string `json:"Timestamp,omitempty"`
}

// DecodeEvent accepts either a notification envelope wrapping a match
// message or a bare match message.
func DecodeEvent(data []byte) (Message, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return Message{}, fmt.Errorf("invalid match event: %w", err)
	}

	body := data
	if raw, ok := probe["Message"]; ok {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return Message{}, fmt.Errorf("notification Message is not a string: %w", err)
		}
		body = []byte(inner)
	}

	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return Message{}, fmt.Errorf("invalid match message: %w", err)
	}
	if err := msg.Validate(); err != nil {
		return Message{}, err
	}
	return msg, nil
}
