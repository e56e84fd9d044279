package records

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CollectionName is the default collection holding every hash and match item.
const CollectionName = "hma_records"

type Store interface {
	PutHashRecord(ctx context.Context, r HashRecord) error
	PutMatchRecord(ctx context.Context, r MatchRecord) error
	QueryByContentKey(ctx context.Context, contentKey string) ([]HashRecord, []MatchRecord, error)
	QueryByBankEntry(ctx context.Context, bankEntryID string) ([]MatchRecord, error)
	QueryByHashType(ctx context.Context, hashType string) ([]MatchRecord, error)
}

type MongoStore struct {
	collection *mongo.Collection
}

// NewMongoStore uses collection, or CollectionName when it is empty.
func NewMongoStore(db *mongo.Database, collection string) *MongoStore {
	if collection == "" {
		collection = CollectionName
	}
	return &MongoStore{
		collection: db.Collection(collection),
	}
}

func (s *MongoStore) PutHashRecord(ctx context.Context, r HashRecord) error {
	return s.put(ctx, r.ToItem())
}

func (s *MongoStore) PutMatchRecord(ctx context.Context, r MatchRecord) error {
	return s.put(ctx, r.ToItem())
}

// put inserts the item unless one with the same (PK, SK) exists. Records are
// written once; a redelivered event leaves the stored item untouched.
func (s *MongoStore) put(ctx context.Context, item Item) error {
	filter := bson.M{AttrPK: item[AttrPK], AttrSK: item[AttrSK]}
	update := bson.M{"$setOnInsert": bson.M(item)}
	opts := options.Update().SetUpsert(true)

	if _, err := s.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to put record %v/%v: %w", item[AttrPK], item[AttrSK], err)
	}
	return nil
}

func (s *MongoStore) QueryByContentKey(ctx context.Context, contentKey string) ([]HashRecord, []MatchRecord, error) {
	items, err := s.find(ctx, bson.M{AttrPK: ContentKey(contentKey)}, AttrSK)
	if err != nil {
		return nil, nil, err
	}

	var hashes []HashRecord
	var matches []MatchRecord
	for _, item := range items {
		switch {
		case IsHashItem(item):
			r, err := HashRecordFromItem(item)
			if err != nil {
				return nil, nil, err
			}
			hashes = append(hashes, r)
		case IsMatchItem(item):
			r, err := MatchRecordFromItem(item)
			if err != nil {
				return nil, nil, err
			}
			matches = append(matches, r)
		}
	}
	return hashes, matches, nil
}

func (s *MongoStore) QueryByBankEntry(ctx context.Context, bankEntryID string) ([]MatchRecord, error) {
	items, err := s.find(ctx, bson.M{AttrGSI1PK: BankEntryKey(bankEntryID)}, AttrGSI1SK)
	if err != nil {
		return nil, err
	}
	return matchRecords(items)
}

func (s *MongoStore) QueryByHashType(ctx context.Context, hashType string) ([]MatchRecord, error) {
	items, err := s.find(ctx, bson.M{AttrGSI2PK: TypeKey(hashType)}, AttrTimestamp)
	if err != nil {
		return nil, err
	}
	return matchRecords(items)
}

func (s *MongoStore) find(ctx context.Context, filter bson.M, sortKey string) ([]Item, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: sortKey, Value: 1}}).
		SetProjection(bson.M{"_id": 0})

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode records: %w", err)
	}

	items := make([]Item, 0, len(docs))
	for _, d := range docs {
		items = append(items, Item(d))
	}
	return items, nil
}

func matchRecords(items []Item) ([]MatchRecord, error) {
	out := make([]MatchRecord, 0, len(items))
	for _, item := range items {
		r, err := MatchRecordFromItem(item)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
