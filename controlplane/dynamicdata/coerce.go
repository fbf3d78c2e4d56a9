package dynamicdata

import (
	"encoding/json"
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ToNative normalizes a generic decoded-JSON value into the representation
// handed to a store driver. Numbers prefer an integer representation when
// they fit exactly, objects and arrays recurse, null passes through as nil.
func ToNative(value interface{}) interface{} {
	switch v := value.(type) {
	case nil:
		return nil
	case float64:
		// float64(MaxInt64) rounds up to 2^63, so the upper bound must be
		// strict or the conversion overflows.
		if v == math.Trunc(v) && v >= math.MinInt64 && v < math.Exp2(63) {
			return int64(v)
		}
		return v
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v.String()
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for key, elem := range v {
			out[key] = ToNative(elem)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, elem := range v {
			out[i] = ToNative(elem)
		}
		return out
	default:
		return v
	}
}

// FromStore is the mirror conversion: store native values, including the
// document store's identifier and date types and nested documents, become
// plain JSON-representable values.
func FromStore(value interface{}) interface{} {
	switch v := value.(type) {
	case nil:
		return nil
	case primitive.ObjectID:
		return v.Hex()
	case primitive.DateTime:
		return v.Time().UTC()
	case primitive.Decimal128:
		return v.String()
	case primitive.Binary:
		return v.Data
	case primitive.M:
		out := make(map[string]interface{}, len(v))
		for key, elem := range v {
			out[key] = FromStore(elem)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for key, elem := range v {
			out[key] = FromStore(elem)
		}
		return out
	case primitive.D:
		out := make(map[string]interface{}, len(v))
		for _, elem := range v {
			out[elem.Key] = FromStore(elem.Value)
		}
		return out
	case primitive.A:
		out := make([]interface{}, len(v))
		for i, elem := range v {
			out[i] = FromStore(elem)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, elem := range v {
			out[i] = FromStore(elem)
		}
		return out
	case []byte:
		return string(v)
	case time.Time:
		return v.UTC()
	case int32:
		return int64(v)
	default:
		return v
	}
}
