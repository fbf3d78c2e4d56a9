package dynamicdata

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type CollectionNotFoundError struct {
	Collection string
	Existing   []string
}

func (e *CollectionNotFoundError) Error() string {
	return fmt.Sprintf("collection '%v' does not exist, available collections: [%v]", e.Collection, strings.Join(e.Existing, ", "))
}

type DocumentNotFoundError struct {
	Collection string
	Id         string
}

func (e *DocumentNotFoundError) Error() string {
	return fmt.Sprintf("no document with id '%v' in collection '%v'", e.Id, e.Collection)
}

// Document is generic CRUD over tenant-defined collections. Filters arrive as
// JSON text and are decoded and coerced, never interpolated.
type Document struct {
	MaxDocs int
}

type DocumentQueryOptions struct {
	// Filter is a JSON object matched against documents.
	Filter string
	// Sort is a field name, prefixed with '-' for descending order.
	Sort  string
	Limit int
}

func (d *Document) clampLimit(limit int) int {
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	if d.MaxDocs > 0 && limit > d.MaxDocs {
		limit = d.MaxDocs
	}
	return limit
}

func (d *Document) Query(ctx context.Context, db *mongo.Database, collection string, opts DocumentQueryOptions) ([]map[string]interface{}, error) {
	defer observe(queryMetric, time.Now())

	if err := checkIdentifier(collection); err != nil {
		return nil, err
	}

	filter, err := parseFilter(opts.Filter)
	if err != nil {
		return nil, err
	}

	findOpts := options.Find().SetLimit(int64(d.clampLimit(opts.Limit)))
	if opts.Sort != "" {
		field, direction := strings.TrimPrefix(opts.Sort, "-"), 1
		if strings.HasPrefix(opts.Sort, "-") {
			direction = -1
		}
		if err := checkIdentifier(field); err != nil {
			return nil, err
		}
		findOpts.SetSort(bson.D{{Key: field, Value: direction}})
	}

	cursor, err := db.Collection(collection).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("error querying collection '%v': %w", collection, err)
	}
	defer cursor.Close(ctx)

	documents := make([]map[string]interface{}, 0)
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("error decoding document: %w", err)
		}
		documents = append(documents, FromStore(doc).(map[string]interface{}))
	}

	return documents, cursor.Err()
}

// Insert stores a document, generating an identity value when the caller
// omits one. Returns the document id.
func (d *Document) Insert(ctx context.Context, db *mongo.Database, collection string, document map[string]interface{}) (string, error) {
	defer observe(insertMetric, time.Now())

	if err := checkIdentifier(collection); err != nil {
		return "", err
	}

	native := ToNative(document).(map[string]interface{})
	if _, ok := native["_id"]; !ok {
		native["_id"] = primitive.NewObjectID()
	}

	result, err := db.Collection(collection).InsertOne(ctx, native)
	if err != nil {
		return "", fmt.Errorf("error inserting into collection '%v': %w", collection, err)
	}

	switch id := result.InsertedID.(type) {
	case primitive.ObjectID:
		return id.Hex(), nil
	default:
		return fmt.Sprintf("%v", id), nil
	}
}

func (d *Document) UpdateById(ctx context.Context, db *mongo.Database, collection, id string, document map[string]interface{}) error {
	defer observe(updateMetric, time.Now())

	if err := checkIdentifier(collection); err != nil {
		return err
	}

	// The identity field is immutable, so a body carrying nothing else has
	// no fields left to set.
	native := ToNative(document).(map[string]interface{})
	delete(native, "_id")
	if len(native) == 0 {
		return ErrEmptyRecord
	}

	if err := d.ensureCollection(ctx, db, collection); err != nil {
		return err
	}

	result, err := db.Collection(collection).UpdateOne(ctx, idFilter(id), bson.M{"$set": native})
	if err != nil {
		return fmt.Errorf("error updating collection '%v': %w", collection, err)
	}
	if result.MatchedCount == 0 {
		return &DocumentNotFoundError{Collection: collection, Id: id}
	}
	return nil
}

func (d *Document) DeleteById(ctx context.Context, db *mongo.Database, collection, id string) error {
	defer observe(deleteMetric, time.Now())

	if err := checkIdentifier(collection); err != nil {
		return err
	}
	if err := d.ensureCollection(ctx, db, collection); err != nil {
		return err
	}

	result, err := db.Collection(collection).DeleteOne(ctx, idFilter(id))
	if err != nil {
		return fmt.Errorf("error deleting from collection '%v': %w", collection, err)
	}
	if result.DeletedCount == 0 {
		return &DocumentNotFoundError{Collection: collection, Id: id}
	}
	return nil
}

func (d *Document) ListCollections(ctx context.Context, db *mongo.Database) ([]string, error) {
	names, err := db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("error listing collections: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

func (d *Document) ensureCollection(ctx context.Context, db *mongo.Database, collection string) error {
	names, err := db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return fmt.Errorf("error listing collections: %w", err)
	}
	for _, name := range names {
		if name == collection {
			return nil
		}
	}
	sort.Strings(names)
	return &CollectionNotFoundError{Collection: collection, Existing: names}
}

// idFilter builds an equality filter on the store's identity field. Ids that
// parse as object ids match as such, anything else matches as the raw value.
func idFilter(id string) bson.M {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return bson.M{"_id": oid}
	}
	return bson.M{"_id": id}
}

func parseFilter(filterJSON string) (bson.M, error) {
	if filterJSON == "" {
		return bson.M{}, nil
	}

	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(filterJSON), &raw); err != nil {
		return nil, fmt.Errorf("invalid filter, must be a json object: %w", err)
	}
	return bson.M(ToNative(raw).(map[string]interface{})), nil
}
