package attribute

import "strings"

// BuiltinPrefix marks a key that refers to a fixed column rather than a
// user-defined attribute.
const BuiltinPrefix = "$"

// SectionsKey is the multi-valued grouping attribute that stores the
// hierarchical section path of a media.
const SectionsKey = "tator_user_sections"

// SectionSearchKey is the query-tree attribute that triggers a saved
// section lookup.
const SectionSearchKey = "$section"

var builtinTypes = map[string]DType{
	"$x":                 Float,
	"$y":                 Float,
	"$u":                 Float,
	"$v":                 Float,
	"$width":             Float,
	"$height":            Float,
	"$fps":               Float,
	"$version":           Int,
	"$user":              Int,
	"$type":              Int,
	"$created_by":        Int,
	"$modified_by":       Int,
	"$frame":             Int,
	"$num_frames":        Int,
	"$section":           Int,
	"$id":                Int,
	"$created_datetime":  Datetime,
	"$modified_datetime": Datetime,
	"$name":              String,
	"$elemental_id":      String,
}

// foreign keys whose column carries an _id suffix
var builtinColumns = map[string]string{
	"$type":        "type_id",
	"$user":        "user_id",
	"$created_by":  "created_by_id",
	"$modified_by": "modified_by_id",
	"$section":     "section_id",
	"$version":     "version_id",
}

// IsBuiltin reports whether key names a built-in column.
func IsBuiltin(key string) bool {
	return strings.HasPrefix(key, BuiltinPrefix)
}

// BuiltinColumn maps a built-in key to its column name.
func BuiltinColumn(key string) string {
	if col, ok := builtinColumns[key]; ok {
		return col
	}
	return strings.TrimPrefix(key, BuiltinPrefix)
}

// Resolve returns the definition of key within schema. Built-in keys and the
// section grouping key resolve independently of the schema. The boolean is
// false when key is unknown; callers treat that as "matches nothing".
func Resolve(schema Schema, key string) (Definition, bool) {
	if IsBuiltin(key) {
		dtype, ok := builtinTypes[key]
		if !ok {
			return Definition{}, false
		}
		return Definition{Name: key, DType: dtype}, true
	}
	if key == SectionsKey {
		return Definition{Name: key, DType: String}, true
	}
	return schema.Lookup(key)
}
