package mongodb

import (
	"firestore-odm/internal/odm/store"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// dataField maps a document field to its location inside the stored record
func dataField(field string) string {
	return fieldData + "." + field
}

// buildFilter translates a query into a filter scoped to one collection path
func buildFilter(collectionPath string, filters []store.Filter) bson.M {
	and := []bson.M{{fieldParent: collectionPath}}
	for _, f := range filters {
		and = append(and, singleFilter(f))
	}
	if len(and) == 1 {
		return and[0]
	}
	return bson.M{"$and": and}
}

func singleFilter(f store.Filter) bson.M {
	path := dataField(f.Field)

	switch f.Operator {
	case store.OpEqual:
		return bson.M{path: bson.M{"$eq": f.Value}}
	case store.OpNotEqual:
		return bson.M{path: bson.M{"$exists": true, "$ne": f.Value}}
	case store.OpGreaterThan:
		return bson.M{path: bson.M{"$gt": f.Value}}
	case store.OpGreaterThanOrEqual:
		return bson.M{path: bson.M{"$gte": f.Value}}
	case store.OpLessThan:
		return bson.M{path: bson.M{"$lt": f.Value}}
	case store.OpLessThanOrEqual:
		return bson.M{path: bson.M{"$lte": f.Value}}
	case store.OpIn:
		return bson.M{path: bson.M{"$in": f.Value}}
	case store.OpNotIn:
		return bson.M{path: bson.M{"$exists": true, "$nin": f.Value}}
	case store.OpArrayContains:
		return bson.M{path: bson.M{"$elemMatch": bson.M{"$eq": f.Value}}}
	case store.OpArrayContainsAny:
		return bson.M{path: bson.M{"$elemMatch": bson.M{"$in": f.Value}}}
	default:
		// unknown operators match nothing
		return bson.M{"_id": bson.M{"$exists": false}}
	}
}

func buildFindOptions(q store.Query) *options.FindOptions {
	opts := options.Find()
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	if q.Offset > 0 {
		opts.SetSkip(int64(q.Offset))
	}

	sort := bson.D{}
	for _, o := range q.OrderBy {
		order := 1
		if o.Descending {
			order = -1
		}
		sort = append(sort, bson.E{Key: dataField(o.Field), Value: order})
	}
	// stable results for equal sort keys
	sort = append(sort, bson.E{Key: fieldID, Value: 1})
	opts.SetSort(sort)
	return opts
}

// updateDocument turns a merge update into a $set on the data subdocument.
// Dotted keys already address nested fields.
func updateDocument(data store.Document) bson.M {
	set := bson.M{}
	for key, value := range data {
		set[dataField(key)] = value
	}
	return set
}
