package attribute

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DType is the declared data type of a user-defined attribute.
type DType string

const (
	Bool       DType = "bool"
	Int        DType = "int"
	Float      DType = "float"
	String     DType = "string"
	Keyword    DType = "keyword"
	Blob       DType = "blob"
	Enum       DType = "enum"
	Datetime   DType = "datetime"
	Geopos     DType = "geopos"
	FloatArray DType = "float_array"
)

// Definition declares one attribute of an entity type.
type Definition struct {
	Name    string      `json:"name"`
	DType   DType       `json:"dtype"`
	Size    int         `json:"size,omitempty"`
	Default interface{} `json:"default,omitempty"`
	Choices []string    `json:"choices,omitempty"`
}

// Schema is the ordered attribute definition list of an entity type.
type Schema []Definition

// Lookup returns the first definition named name.
func (s Schema) Lookup(name string) (Definition, bool) {
	for _, def := range s {
		if def.Name == name {
			return def, true
		}
	}
	return Definition{}, false
}

// Merge concatenates schemas in order. Earlier definitions win on lookup.
func Merge(schemas ...Schema) Schema {
	var out Schema
	for _, s := range schemas {
		out = append(out, s...)
	}
	return out
}

// Value is a typed attribute value. The concrete types below are the only
// implementations.
type Value interface {
	DType() DType
	// SQL returns the value as bound into a statement.
	SQL() interface{}
}

type (
	BoolValue     bool
	IntValue      int64
	FloatValue    float64
	StringValue   string
	EnumValue     string
	DatetimeValue time.Time
	FloatVector   []float32
)

// GeoPoint is a WGS84 coordinate.
type GeoPoint struct {
	Lat float64
	Lon float64
}

func (BoolValue) DType() DType     { return Bool }
func (IntValue) DType() DType      { return Int }
func (FloatValue) DType() DType    { return Float }
func (StringValue) DType() DType   { return String }
func (EnumValue) DType() DType     { return Enum }
func (DatetimeValue) DType() DType { return Datetime }
func (GeoPoint) DType() DType      { return Geopos }
func (FloatVector) DType() DType   { return FloatArray }

func (v BoolValue) SQL() interface{}   { return bool(v) }
func (v IntValue) SQL() interface{}    { return int64(v) }
func (v FloatValue) SQL() interface{}  { return float64(v) }
func (v StringValue) SQL() interface{} { return string(v) }
func (v EnumValue) SQL() interface{}   { return string(v) }
func (v DatetimeValue) SQL() interface{} {
	return time.Time(v).UTC().Format(time.RFC3339Nano)
}
func (v GeoPoint) SQL() interface{}    { return []float64{v.Lon, v.Lat} }
func (v FloatVector) SQL() interface{} { return []float32(v) }

// Coerce converts a raw value, as decoded from JSON or taken from a flat
// query string, into the Value for dtype.
func Coerce(dtype DType, raw interface{}) (Value, error) {
	switch dtype {
	case Bool:
		return coerceBool(raw), nil
	case Int:
		f, err := toFloat(raw)
		if err != nil {
			return nil, err
		}
		if f != math.Trunc(f) {
			return nil, Validationf("value %v is not an integer", raw)
		}
		return IntValue(int64(f)), nil
	case Float:
		f, err := toFloat(raw)
		if err != nil {
			return nil, err
		}
		return FloatValue(f), nil
	case String, Keyword, Blob:
		return StringValue(toString(raw)), nil
	case Enum:
		return EnumValue(toString(raw)), nil
	case Datetime:
		t, err := ParseTimestamp(toString(raw))
		if err != nil {
			return nil, err
		}
		return DatetimeValue(t), nil
	case Geopos:
		nums, err := toFloats(raw)
		if err != nil {
			return nil, err
		}
		if len(nums) != 2 {
			return nil, Validationf("geopos value must be [lon, lat]")
		}
		return GeoPoint{Lon: nums[0], Lat: nums[1]}, nil
	case FloatArray:
		nums, err := toFloats(raw)
		if err != nil {
			return nil, err
		}
		vec := make(FloatVector, len(nums))
		for i, n := range nums {
			vec[i] = float32(n)
		}
		return vec, nil
	}
	return nil, Validationf("unknown dtype %q", dtype)
}

// ConvertBoolean interprets "true"/"false" case-insensitively; any other
// non-empty string is true.
func ConvertBoolean(s string) bool {
	switch strings.ToLower(s) {
	case "false":
		return false
	case "true":
		return true
	}
	return s != ""
}

func coerceBool(raw interface{}) BoolValue {
	switch v := raw.(type) {
	case bool:
		return BoolValue(v)
	case string:
		return BoolValue(ConvertBoolean(v))
	case float64:
		return v != 0
	case nil:
		return false
	}
	return true
}

func toFloat(raw interface{}) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, Validationf("value %q is not numeric", v)
		}
		return f, nil
	}
	return 0, Validationf("value %v is not numeric", raw)
}

func toFloats(raw interface{}) ([]float64, error) {
	switch v := raw.(type) {
	case []float64:
		return v, nil
	case []float32:
		out := make([]float64, len(v))
		for i, f := range v {
			out[i] = float64(f)
		}
		return out, nil
	case []interface{}:
		out := make([]float64, len(v))
		for i, item := range v {
			f, err := toFloat(item)
			if err != nil {
				return nil, err
			}
			out[i] = f
		}
		return out, nil
	case string:
		var items []interface{}
		if err := json.Unmarshal([]byte(v), &items); err != nil {
			return nil, Validationf("value %q is not a numeric list", v)
		}
		return toFloats(items)
	}
	return nil, Validationf("value %v is not a numeric list", raw)
}

func toString(raw interface{}) string {
	switch v := raw.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	}
	return fmt.Sprint(raw)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
	"2006-01",
	"2006",
}

// ParseTimestamp accepts a full or partial ISO 8601 date string and returns
// it in UTC. Missing components default to their minimum.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, Validationf("could not parse %q as a timestamp", s)
}

// FormatTimestamp renders t as a fully qualified UTC timestamp string.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000+00:00")
}
