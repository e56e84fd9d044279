package records

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignalTypePDQ is the only hash type the pipeline currently produces.
const SignalTypePDQ = "pdq"

const (
	contentKeyPrefix = "c#"
	typeKeyPrefix    = "type#"
	bankEntryPrefix  = "te#"
)

// Item attribute names of the single-table layout.
const (
	AttrPK          = "PK"
	AttrSK          = "SK"
	AttrContentHash = "ContentHash"
	AttrQuality     = "Quality"
	AttrTimestamp   = "Timestamp"
	AttrHashType    = "HashType"
	AttrTEHash      = "TEHash"
	AttrGSI1PK      = "GSI1-PK"
	AttrGSI1SK      = "GSI1-SK"
	AttrGSI2PK      = "GSI2-PK"
)

// Item is one row of the single-table store.
type Item map[string]interface{}

func ContentKey(key string) string { return contentKeyPrefix + key }

func TypeKey(hashType string) string { return typeKeyPrefix + hashType }

func BankEntryKey(id string) string { return bankEntryPrefix + id }

// HashRecord is written once the hasher produced a hash for a piece of content.
type HashRecord struct {
	ContentKey  string
	ContentHash string
	Timestamp   time.Time
	Quality     int
	HashType    string
}

// MatchRecord is written once per bank entry a piece of content matched.
type MatchRecord struct {
	ContentKey  string
	ContentHash string
	Timestamp   time.Time
	BankEntryID string
	TEHash      string
	HashType    string
}

func (r HashRecord) hashType() string {
	if r.HashType == "" {
		return SignalTypePDQ
	}
	return r.HashType
}

func (r MatchRecord) hashType() string {
	if r.HashType == "" {
		return SignalTypePDQ
	}
	return r.HashType
}

func (r HashRecord) ToItem() Item {
	return Item{
		AttrPK:          ContentKey(r.ContentKey),
		AttrSK:          TypeKey(r.hashType()),
		AttrContentHash: r.ContentHash,
		AttrQuality:     r.Quality,
		AttrTimestamp:   formatTimestamp(r.Timestamp),
		AttrHashType:    r.hashType(),
	}
}

// QueueMessage is the payload handed to the matcher stage.
func (r HashRecord) QueueMessage() map[string]string {
	return map[string]string{
		"hash": r.ContentHash,
		"type": r.hashType(),
		"key":  r.ContentKey,
	}
}

func HashRecordFromItem(item Item) (HashRecord, error) {
	contentKey, err := trimmedKey(item, AttrPK, contentKeyPrefix)
	if err != nil {
		return HashRecord{}, err
	}
	hashType, err := trimmedKey(item, AttrSK, typeKeyPrefix)
	if err != nil {
		return HashRecord{}, err
	}
	ts, err := parseTimestamp(item)
	if err != nil {
		return HashRecord{}, err
	}
	quality, err := intAttr(item, AttrQuality)
	if err != nil {
		return HashRecord{}, err
	}
	return HashRecord{
		ContentKey:  contentKey,
		ContentHash: stringAttr(item, AttrContentHash),
		Timestamp:   ts,
		Quality:     quality,
		HashType:    hashType,
	}, nil
}

func (r MatchRecord) ToItem() Item {
	return Item{
		AttrPK:          ContentKey(r.ContentKey),
		AttrSK:          BankEntryKey(r.BankEntryID),
		AttrContentHash: r.ContentHash,
		AttrTimestamp:   formatTimestamp(r.Timestamp),
		AttrTEHash:      r.TEHash,
		AttrGSI1PK:      BankEntryKey(r.BankEntryID),
		AttrGSI1SK:      ContentKey(r.ContentKey),
		AttrHashType:    r.hashType(),
		AttrGSI2PK:      TypeKey(r.hashType()),
	}
}

func MatchRecordFromItem(item Item) (MatchRecord, error) {
	contentKey, err := trimmedKey(item, AttrPK, contentKeyPrefix)
	if err != nil {
		return MatchRecord{}, err
	}
	entryID, err := trimmedKey(item, AttrSK, bankEntryPrefix)
	if err != nil {
		return MatchRecord{}, err
	}
	ts, err := parseTimestamp(item)
	if err != nil {
		return MatchRecord{}, err
	}
	return MatchRecord{
		ContentKey:  contentKey,
		ContentHash: stringAttr(item, AttrContentHash),
		Timestamp:   ts,
		BankEntryID: entryID,
		TEHash:      stringAttr(item, AttrTEHash),
		HashType:    stringAttr(item, AttrHashType),
	}, nil
}

// IsMatchItem reports whether the item's sort key belongs to a match record.
func IsMatchItem(item Item) bool {
	return strings.HasPrefix(stringAttr(item, AttrSK), bankEntryPrefix)
}

func IsHashItem(item Item) bool {
	return strings.HasPrefix(stringAttr(item, AttrSK), typeKeyPrefix)
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTimestamp(item Item) (time.Time, error) {
	raw := stringAttr(item, AttrTimestamp)
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s %q: %w", AttrTimestamp, raw, err)
	}
	return ts, nil
}

func stringAttr(item Item, name string) string {
	if v, ok := item[name].(string); ok {
		return v
	}
	return ""
}

func trimmedKey(item Item, name, prefix string) (string, error) {
	v := stringAttr(item, name)
	if !strings.HasPrefix(v, prefix) {
		return "", fmt.Errorf("attribute %s=%q does not start with %q", name, v, prefix)
	}
	return strings.TrimPrefix(v, prefix), nil
}

func intAttr(item Item, name string) (int, error) {
	switch v := item[name].(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		return strconv.Atoi(v)
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("attribute %s has unsupported type %T", name, v)
	}
}
