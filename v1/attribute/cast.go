package attribute

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
)

// StoreColumn is the jsonb column holding the schemaless attribute mapping
// of every entity table.
const StoreColumn = "attributes"

// castTemplates render a typed projection of attributes->key. Each ? is bound
// to the attribute key.
var castTemplates = map[DType]string{
	Bool:     "(attributes -> ?)::boolean",
	Int:      "(attributes -> ?)::bigint",
	Float:    "(attributes -> ?)::double precision",
	String:   "(attributes -> ?)::text",
	Keyword:  "(attributes -> ?)::text",
	Blob:     "(attributes -> ?)::text",
	Enum:     "(attributes -> ?)::text",
	Datetime: "(attributes ->> ?)::timestamptz",
	Geopos: "ST_SetSRID(ST_MakePoint((attributes -> ? ->> 0)::double precision, " +
		"(attributes -> ? ->> 1)::double precision), 4326)::geography",
}

// ColumnType returns the relational type a dtype is projected to.
func ColumnType(def Definition) string {
	switch def.DType {
	case Bool:
		return "boolean"
	case Int:
		return "bigint"
	case Float:
		return "double precision"
	case String, Keyword, Blob, Enum:
		return "text"
	case Datetime:
		return "timestamptz"
	case Geopos:
		return "geography(Point,4326)"
	case FloatArray:
		return fmt.Sprintf("vector(%d)", def.Size)
	}
	return ""
}

// CastExpr returns the projection SQL and its bind variables for def. The
// boolean is false when the dtype has no scalar projection (float_array),
// in which case comparisons against it match nothing.
func CastExpr(def Definition) (string, []interface{}, bool) {
	tmpl, ok := castTemplates[def.DType]
	if !ok {
		return "", nil, false
	}
	vars := make([]interface{}, strings.Count(tmpl, "?"))
	for i := range vars {
		vars[i] = def.Name
	}
	return tmpl, vars, true
}

// IsStringLike reports whether values of dtype are stored as JSON strings and
// compared against their quoted text projection.
func IsStringLike(dtype DType) bool {
	switch dtype {
	case String, Keyword, Blob, Enum:
		return true
	}
	return false
}

// QuoteJSON renders s the way the attribute store holds a string scalar.
func QuoteJSON(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return `"` + s + `"`
	}
	return string(b)
}

var nonLetter = regexp.MustCompile(`[^a-zA-Z]`)

// Sanitize turns an attribute name into an identifier fragment.
func Sanitize(name string) string {
	return strings.ToLower(nonLetter.ReplaceAllString(name, "_"))
}

var plainName = regexp.MustCompile(`^[a-z]+$`)

// CastAlias names the projected column for an attribute. Names that do not
// survive sanitizing unchanged get a hash suffix so two attributes never
// share an alias.
func CastAlias(name string) string {
	if plainName.MatchString(name) {
		return "casted_" + name
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return fmt.Sprintf("casted_%s_%08x", Sanitize(name), h.Sum32())
}
