// Package mongo implements DocumentStore on MongoDB collections.
//
// Batches run as an ordered bulk write of $set updates inside a multi-document
// transaction, so the deployment must be a replica set or sharded cluster.
package mongo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/getpup/fieldmigrate"
	"github.com/getpup/fieldmigrate/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DefaultMaxBatchSize bounds the number of updates per transaction.
// MongoDB has no hard limit, but large transactions hold locks and oplog space.
const DefaultMaxBatchSize = 1000

// Store is a MongoDB implementation of DocumentStore.
type Store struct {
	client       *mongo.Client
	db           *mongo.Database
	maxBatchSize int
}

// New creates a store over the named database of a connected client.
func New(client *mongo.Client, database string, maxBatchSize int) *Store {
	if maxBatchSize <= 0 {
		maxBatchSize = DefaultMaxBatchSize
	}
	return &Store{
		client:       client,
		db:           client.Database(database),
		maxBatchSize: maxBatchSize,
	}
}

// Connect dials uri and returns a store over database.
// Close the store to disconnect the client.
func Connect(ctx context.Context, uri, database string, maxBatchSize int) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return New(client, database, maxBatchSize), nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Insert adds a new record.
func (s *Store) Insert(ctx context.Context, collection string, rec fieldmigrate.Record) error {
	if rec.Ref == "" {
		return fmt.Errorf("insert document in %s: %w", collection, store.ErrEmptyRef)
	}
	doc := bson.M{}
	for k, v := range rec.Fields {
		doc[k] = v
	}
	doc["_id"] = refToID(rec.Ref)

	if _, err := s.db.Collection(collection).InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert document %s/%s: %w", collection, rec.Ref, err)
	}
	return nil
}

// Scan returns up to limit records whose _id sorts after the cursor, in
// ascending _id order. Collections may mix _id types; they come in MongoDB's
// type order (numbers, strings, binary, ObjectIDs, dates). An _id that has no
// ref form (null, bool, embedded document) fails the scan.
func (s *Store) Scan(ctx context.Context, collection, after string, limit int) ([]fieldmigrate.Record, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := s.db.Collection(collection).Find(ctx, scanFilter(after), opts)
	if err != nil {
		return nil, fmt.Errorf("find documents in %s: %w", collection, err)
	}

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("read documents in %s: %w", collection, err)
	}

	records := make([]fieldmigrate.Record, len(docs))
	for i, doc := range docs {
		rec, err := toRecord(doc)
		if err != nil {
			return nil, fmt.Errorf("read documents in %s: %w", collection, err)
		}
		records[i] = rec
	}
	return records, nil
}

// Get returns a single record.
// Returns store.ErrRecordNotFound if the record does not exist.
func (s *Store) Get(ctx context.Context, collection, ref string) (fieldmigrate.Record, error) {
	var doc bson.M
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": refToID(ref)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fieldmigrate.Record{}, store.ErrRecordNotFound
	}
	if err != nil {
		return fieldmigrate.Record{}, fmt.Errorf("get document %s/%s: %w", collection, ref, err)
	}
	return toRecord(doc)
}

// CommitBatch runs the updates as one ordered bulk write inside a transaction.
// If fewer documents match than updates were staged, the transaction is
// aborted and store.ErrRecordNotFound is returned.
func (s *Store) CommitBatch(ctx context.Context, collection string, updates []fieldmigrate.Update) error {
	if len(updates) > s.maxBatchSize {
		return fmt.Errorf("%w: %d updates, limit %d", store.ErrBatchTooLarge, len(updates), s.maxBatchSize)
	}
	if len(updates) == 0 {
		return nil
	}

	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	coll := s.db.Collection(collection)
	models := writeModels(updates)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		result, err := coll.BulkWrite(sc, models, options.BulkWrite().SetOrdered(true))
		if err != nil {
			return nil, err
		}
		if result.MatchedCount < int64(len(updates)) {
			return nil, fmt.Errorf("%d of %d documents matched: %w", result.MatchedCount, len(updates), store.ErrRecordNotFound)
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("commit batch to %s: %w", collection, err)
	}

	return nil
}

// MaxBatchSize implements DocumentStore.
func (s *Store) MaxBatchSize() int {
	return s.maxBatchSize
}

func writeModels(updates []fieldmigrate.Update) []mongo.WriteModel {
	models := make([]mongo.WriteModel, len(updates))
	for i, u := range updates {
		set := bson.D{}
		for _, f := range u.Fields {
			set = append(set, bson.E{Key: f.Name, Value: f.Value})
		}
		models[i] = mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": refToID(u.Ref)}).
			SetUpdate(bson.D{{Key: "$set", Value: set}})
	}
	return models
}

// idTypeOrder groups the BSON types an _id can take in the order MongoDB
// sorts them. $gt only matches values of the cursor's own group.
var idTypeOrder = [][]string{
	{"null"},
	{"double", "int", "long", "decimal"},
	{"string", "symbol"},
	{"object"},
	{"binData"},
	{"objectId"},
	{"bool"},
	{"date"},
	{"timestamp"},
	{"regex"},
}

func idTypeGroup(id any) int {
	switch id.(type) {
	case nil:
		return 0
	case float64, int32, int64, primitive.Decimal128:
		return 1
	case string, primitive.Symbol:
		return 2
	case bson.M, bson.D:
		return 3
	case primitive.Binary:
		return 4
	case primitive.ObjectID:
		return 5
	case bool:
		return 6
	case primitive.DateTime:
		return 7
	case primitive.Timestamp:
		return 8
	case primitive.Regex:
		return 9
	default:
		return -1
	}
}

// typesAfter lists the type aliases of every group sorting after id's group.
func typesAfter(id any) bson.A {
	g := idTypeGroup(id)
	if g < 0 {
		return nil
	}
	var later bson.A
	for _, aliases := range idTypeOrder[g+1:] {
		for _, alias := range aliases {
			later = append(later, alias)
		}
	}
	return later
}

// scanFilter selects the documents after the cursor in _id order: those of
// the cursor's type above it, and every _id of a type that sorts later.
func scanFilter(after string) bson.M {
	if after == "" {
		return bson.M{}
	}
	id := refToID(after)
	later := typesAfter(id)
	if len(later) == 0 {
		return bson.M{"_id": bson.M{"$gt": id}}
	}
	return bson.M{"$or": bson.A{
		bson.M{"_id": bson.M{"$gt": id}},
		bson.M{"_id": bson.M{"$type": later}},
	}}
}

func toRecord(doc bson.M) (fieldmigrate.Record, error) {
	ref, err := idToRef(doc["_id"])
	if err != nil {
		return fieldmigrate.Record{}, err
	}
	fields := make(map[string]any, len(doc))
	for k, v := range doc {
		if k == "_id" {
			continue
		}
		fields[k] = v
	}
	return fieldmigrate.Record{Ref: ref, Fields: fields}, nil
}

// typedRefPrefix opens the canonical Extended JSON of every non-string,
// non-ObjectID _id a ref can carry ({"$numberInt":"42"}, {"$binary":...}).
const typedRefPrefix = `{"$`

// refToID maps a ref back to the _id it was rendered from. ObjectIDs are
// rendered as 24-character hex strings, other typed _ids as canonical
// Extended JSON; everything else is a string _id.
func refToID(ref string) any {
	if len(ref) == 24 {
		if oid, err := primitive.ObjectIDFromHex(ref); err == nil {
			return oid
		}
	}
	if strings.HasPrefix(ref, typedRefPrefix) {
		var doc bson.D
		if err := bson.UnmarshalExtJSON([]byte(`{"_id":`+ref+`}`), true, &doc); err == nil && len(doc) == 1 {
			return doc[0].Value
		}
	}
	return ref
}

// idToRef renders an _id as a ref that refToID maps back to the same value.
func idToRef(id any) (string, error) {
	switch v := id.(type) {
	case primitive.ObjectID:
		return v.Hex(), nil
	case string:
		return v, nil
	}

	data, err := bson.MarshalExtJSON(bson.D{{Key: "_id", Value: id}}, true, false)
	if err != nil {
		return "", fmt.Errorf("encode _id %v: %w", id, err)
	}
	var wrapper struct {
		ID json.RawMessage `json:"_id"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return "", fmt.Errorf("encode _id %v: %w", id, err)
	}
	ref := string(wrapper.ID)
	if !strings.HasPrefix(ref, typedRefPrefix) {
		return "", fmt.Errorf("unsupported _id %s: must be a string, ObjectID, number, binary, date or timestamp", ref)
	}
	return ref, nil
}
