package mongodb

import (
	"testing"

	"firestore-odm/internal/odm/store"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
)

func TestBuildFilter(t *testing.T) {
	assert.Equal(t, bson.M{"parent": "bands"}, buildFilter("bands", nil))

	got := buildFilter("bands/b1/albums", []store.Filter{
		{Field: "year", Operator: store.OpGreaterThanOrEqual, Value: 1970},
		{Field: "tags", Operator: store.OpArrayContains, Value: "live"},
	})
	assert.Equal(t, bson.M{"$and": []bson.M{
		{"parent": "bands/b1/albums"},
		{"data.year": bson.M{"$gte": 1970}},
		{"data.tags": bson.M{"$elemMatch": bson.M{"$eq": "live"}}},
	}}, got)
}

func TestSingleFilter_Operators(t *testing.T) {
	tests := []struct {
		op   store.Operator
		want bson.M
	}{
		{store.OpEqual, bson.M{"data.f": bson.M{"$eq": 1}}},
		{store.OpNotEqual, bson.M{"data.f": bson.M{"$exists": true, "$ne": 1}}},
		{store.OpLessThan, bson.M{"data.f": bson.M{"$lt": 1}}},
		{store.OpLessThanOrEqual, bson.M{"data.f": bson.M{"$lte": 1}}},
		{store.OpGreaterThan, bson.M{"data.f": bson.M{"$gt": 1}}},
		{store.OpIn, bson.M{"data.f": bson.M{"$in": 1}}},
		{store.OpNotIn, bson.M{"data.f": bson.M{"$exists": true, "$nin": 1}}},
		{store.OpArrayContainsAny, bson.M{"data.f": bson.M{"$elemMatch": bson.M{"$in": 1}}}},
	}
	for _, tt := range tests {
		t.Run(string(tt.op), func(t *testing.T) {
			assert.Equal(t, tt.want, singleFilter(store.Filter{Field: "f", Operator: tt.op, Value: 1}))
		})
	}
}

func TestBuildFindOptions(t *testing.T) {
	opts := buildFindOptions(store.Query{
		OrderBy: []store.Order{{Field: "year", Descending: true}},
		Limit:   5,
		Offset:  10,
	})

	assert.Equal(t, int64(5), *opts.Limit)
	assert.Equal(t, int64(10), *opts.Skip)
	assert.Equal(t, bson.D{{Key: "data.year", Value: -1}, {Key: "_id", Value: 1}}, opts.Sort)
}

func TestUpdateDocument(t *testing.T) {
	got := updateDocument(store.Document{"name": "Queen", "label.name": "EMI"})
	assert.Equal(t, bson.M{"data.name": "Queen", "data.label.name": "EMI"}, got)
}
