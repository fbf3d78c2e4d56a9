package materialize

import (
	"context"
	"fmt"
	"log/slog"

	"dbplane/controlplane/dbschema"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Document materializes the collection definitions of a schema into a
// tenant's document database. Collections are created explicitly because an
// empty collection is otherwise invisible until its first write. Index
// creation is idempotent by name.
func Document(ctx context.Context, db *mongo.Database, schemaDef *dbschema.SchemaDefinition) error {
	names, err := db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return fmt.Errorf("error listing collections: %w", err)
	}

	existing := make(map[string]struct{}, len(names))
	for _, name := range names {
		existing[name] = struct{}{}
	}

	for _, collection := range schemaDef.Collections {
		if _, ok := existing[collection.Name]; !ok {
			if err := db.CreateCollection(ctx, collection.Name); err != nil {
				return fmt.Errorf("error creating collection '%v': %w", collection.Name, err)
			}
			slog.Info("created collection", "collection", collection.Name)
		} else {
			slog.Info("collection already exists, skipping", "collection", collection.Name)
		}

		for _, index := range collection.Indexes {
			model := DocumentIndexModel(&index)
			if _, err := db.Collection(collection.Name).Indexes().CreateOne(ctx, model); err != nil {
				return fmt.Errorf("error creating index '%v' on collection '%v': %w", index.Name, collection.Name, err)
			}
			slog.Info("created index", "collection", collection.Name, "index", index.Name)
		}
	}

	return nil
}

// DocumentIndexModel builds an ascending compound index from an index
// definition. IsClustered does not apply to document indexes and is ignored.
func DocumentIndexModel(index *dbschema.IndexDefinition) mongo.IndexModel {
	keys := bson.D{}
	for _, col := range index.Columns {
		keys = append(keys, bson.E{Key: col, Value: 1})
	}

	opts := options.Index().SetName(index.Name)
	if index.IsUnique {
		opts.SetUnique(true)
	}

	return mongo.IndexModel{Keys: keys, Options: opts}
}
