package attribute

import (
	"strconv"
	"strings"
)

// KVSeparator splits the name from the value in a flat filter pair.
const KVSeparator = "::"

// Filters carries the flat attribute filter parameters. Each entry is a
// name::value pair.
type Filters struct {
	Eq       []string `json:"attribute,omitempty" yaml:"attribute"`
	Lt       []string `json:"attribute_lt,omitempty" yaml:"attribute_lt"`
	Lte      []string `json:"attribute_lte,omitempty" yaml:"attribute_lte"`
	Gt       []string `json:"attribute_gt,omitempty" yaml:"attribute_gt"`
	Gte      []string `json:"attribute_gte,omitempty" yaml:"attribute_gte"`
	Contains []string `json:"attribute_contains,omitempty" yaml:"attribute_contains"`
	Distance []string `json:"attribute_distance,omitempty" yaml:"attribute_distance"`
	Null     []string `json:"attribute_null,omitempty" yaml:"attribute_null"`
}

// Values returns the pairs supplied for kind.
func (f Filters) Values(kind FilterKind) []string {
	switch kind {
	case FilterEq:
		return f.Eq
	case FilterLt:
		return f.Lt
	case FilterLte:
		return f.Lte
	case FilterGt:
		return f.Gt
	case FilterGte:
		return f.Gte
	case FilterContains:
		return f.Contains
	case FilterDistance:
		return f.Distance
	}
	return nil
}

// Empty reports whether no filter pair at all was supplied.
func (f Filters) Empty() bool {
	for _, kind := range FilterKinds {
		if len(f.Values(kind)) > 0 {
			return false
		}
	}
	return len(f.Null) == 0
}

// FilterOp is one resolved flat filter.
type FilterOp struct {
	Key  string
	Kind FilterKind
	Def  Definition
	// Value is the coerced comparison value. Distance filters carry
	// []float64{radiusKm, lat, lon}.
	Value interface{}
}

// NullFilter is one attribute_null pair.
type NullFilter struct {
	Key    string
	IsNull bool
}

// ParseFilterOps resolves every flat filter pair against schema. Pairs naming
// an attribute the schema does not declare are skipped; pairs whose operator
// is not allowed for the attribute's dtype fail.
func ParseFilterOps(f Filters, schema Schema) ([]FilterOp, error) {
	var ops []FilterOp
	for _, kind := range FilterKinds {
		for _, pair := range f.Values(kind) {
			op, ok, err := convertFilterValue(pair, schema, kind)
			if err != nil {
				return nil, err
			}
			if ok {
				ops = append(ops, op)
			}
		}
	}
	return ops, nil
}

// ParseNullFilters decodes attribute_null pairs.
func ParseNullFilters(f Filters) ([]NullFilter, error) {
	out := make([]NullFilter, 0, len(f.Null))
	for _, pair := range f.Null {
		key, value, ok := strings.Cut(pair, KVSeparator)
		if !ok {
			return nil, Validationf("attribute_null entry %q must be name%svalue", pair, KVSeparator)
		}
		out = append(out, NullFilter{Key: key, IsNull: ConvertBoolean(value)})
	}
	return out, nil
}

func convertFilterValue(pair string, schema Schema, kind FilterKind) (FilterOp, bool, error) {
	key, raw, ok := strings.Cut(pair, KVSeparator)
	if !ok {
		return FilterOp{}, false, Validationf("%s entry %q must be name%svalue", kind, pair, KVSeparator)
	}
	def, found := Resolve(schema, key)
	if !found {
		return FilterOp{}, false, nil
	}
	if err := Validate(kind, def.DType); err != nil {
		return FilterOp{}, false, err
	}

	op := FilterOp{Key: key, Kind: kind, Def: def}
	switch {
	case def.DType == Geopos:
		parts := strings.Split(raw, KVSeparator)
		if len(parts) != 3 {
			return FilterOp{}, false, Validationf("distance filter %q must be distance::lat::lon", pair)
		}
		nums := make([]float64, 3)
		for i, p := range parts {
			n, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return FilterOp{}, false, Validationf("distance filter %q has a non-numeric component", pair)
			}
			nums[i] = n
		}
		op.Value = nums
	case def.DType == Bool:
		op.Value = ConvertBoolean(raw)
	case def.DType == Int || def.DType == Float || def.DType == Datetime:
		v, err := Coerce(def.DType, raw)
		if err != nil {
			return FilterOp{}, false, err
		}
		op.Value = v.SQL()
	default:
		op.Value = raw
	}
	return op, true, nil
}
