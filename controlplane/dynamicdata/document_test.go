package dynamicdata

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestUpdateByIdRejectsEmptyDocument(t *testing.T) {
	d := &Document{}

	// A body carrying only the identity field leaves nothing to set; the
	// request is rejected before the store is touched.
	err := d.UpdateById(context.Background(), nil, "orders", "abc", map[string]interface{}{"_id": "abc"})
	assert.ErrorIs(t, err, ErrEmptyRecord)

	err = d.UpdateById(context.Background(), nil, "orders", "abc", map[string]interface{}{})
	assert.ErrorIs(t, err, ErrEmptyRecord)
}

func TestParseFilter(t *testing.T) {
	filter, err := parseFilter("")
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, bson.M{}, filter)

	filter, err = parseFilter(`{"age": {"$gt": 30}, "name": "alice"}`)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, bson.M{"age": map[string]interface{}{"$gt": int64(30)}, "name": "alice"}, filter)

	_, err = parseFilter(`[1, 2, 3]`)
	assert.Error(t, err)

	_, err = parseFilter(`not json`)
	assert.Error(t, err)
}

func TestIdFilter(t *testing.T) {
	oid := primitive.NewObjectID()
	assert.Equal(t, bson.M{"_id": oid}, idFilter(oid.Hex()))
	assert.Equal(t, bson.M{"_id": "custom-id"}, idFilter("custom-id"))
}

func TestDocumentClampLimit(t *testing.T) {
	data := Document{MaxDocs: 50}
	assert.Equal(t, DefaultQueryLimit, data.clampLimit(0))
	assert.Equal(t, DefaultQueryLimit, data.clampLimit(-1))
	assert.Equal(t, 10, data.clampLimit(10))
	assert.Equal(t, 50, data.clampLimit(500))

	unbounded := Document{}
	assert.Equal(t, 500, unbounded.clampLimit(500))
}
