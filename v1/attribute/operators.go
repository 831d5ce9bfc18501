package attribute

// FilterKind is a flat attribute filter parameter.
type FilterKind string

const (
	FilterEq       FilterKind = "attribute"
	FilterLt       FilterKind = "attribute_lt"
	FilterLte      FilterKind = "attribute_lte"
	FilterGt       FilterKind = "attribute_gt"
	FilterGte      FilterKind = "attribute_gte"
	FilterContains FilterKind = "attribute_contains"
	FilterDistance FilterKind = "attribute_distance"
)

// FilterKinds lists the flat filter parameters in evaluation order.
var FilterKinds = []FilterKind{
	FilterEq, FilterLt, FilterLte, FilterGt, FilterGte, FilterContains, FilterDistance,
}

var ordering = []DType{Float, Datetime, Int}

var allowedTypes = map[FilterKind][]DType{
	FilterEq:       {Bool, Float, Datetime, Keyword, String, Int, Enum},
	FilterLt:       ordering,
	FilterLte:      ordering,
	FilterGt:       ordering,
	FilterGte:      ordering,
	FilterContains: {Keyword, String, Enum},
	FilterDistance: {Geopos},
}

var operationOf = map[FilterKind]string{
	FilterEq:       OpEq,
	FilterLt:       OpLt,
	FilterLte:      OpLte,
	FilterGt:       OpGt,
	FilterGte:      OpGte,
	FilterContains: OpIContains,
	FilterDistance: OpDistanceLte,
}

// Operation returns the query-tree operation equivalent to k.
func (k FilterKind) Operation() string {
	return operationOf[k]
}

// Suffix is the lookup suffix k applies to a column, empty for equality.
func (k FilterKind) Suffix() string {
	if k == FilterEq {
		return ""
	}
	return "__" + operationOf[k]
}

// Query-tree leaf operations.
const (
	OpEq          = "eq"
	OpIn          = "in"
	OpLt          = "lt"
	OpLte         = "lte"
	OpGt          = "gt"
	OpGte         = "gte"
	OpRange       = "range"
	OpIContains   = "icontains"
	OpIStartsWith = "istartswith"
	OpIEndsWith   = "iendswith"
	OpIsNull      = "isnull"
	OpDateEq      = "date_eq"
	OpDateLt      = "date_lt"
	OpDateLte     = "date_lte"
	OpDateGt      = "date_gt"
	OpDateGte     = "date_gte"
	OpDateRange   = "date_range"
	OpDistanceLte = "distance_lte"
)

// operation -> the flat filter whose allow-list governs it; isnull is open to
// every dtype.
var operationKind = map[string]FilterKind{
	OpEq:          FilterEq,
	OpIn:          FilterEq,
	OpDateEq:      FilterEq,
	OpLt:          FilterLt,
	OpLte:         FilterLte,
	OpGt:          FilterGt,
	OpGte:         FilterGte,
	OpRange:       FilterGte,
	OpDateLt:      FilterLt,
	OpDateLte:     FilterLte,
	OpDateGt:      FilterGt,
	OpDateGte:     FilterGte,
	OpDateRange:   FilterGte,
	OpIContains:   FilterContains,
	OpIStartsWith: FilterContains,
	OpIEndsWith:   FilterContains,
	OpDistanceLte: FilterDistance,
	OpIsNull:      "",
}

// Allowed reports whether kind may be applied to dtype.
func Allowed(kind FilterKind, dtype DType) bool {
	for _, t := range allowedTypes[kind] {
		if t == dtype {
			return true
		}
	}
	return false
}

// Validate fails with an UnsupportedOperatorError when kind is not allowed
// for dtype.
func Validate(kind FilterKind, dtype DType) error {
	if !Allowed(kind, dtype) {
		return &UnsupportedOperatorError{Operation: string(kind), DType: dtype}
	}
	return nil
}

// ValidateOperation applies the allow-table to a query-tree operation.
func ValidateOperation(op string, dtype DType) error {
	kind, ok := operationKind[op]
	if !ok {
		return Validationf("unknown operation %q", op)
	}
	if kind == "" {
		return nil
	}
	if !Allowed(kind, dtype) {
		return &UnsupportedOperatorError{Operation: op, DType: dtype}
	}
	return nil
}
