package search

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm/clause"

	"github.com/Aleph-Alpha/annotation-engine/v1/attribute"
	"github.com/Aleph-Alpha/annotation-engine/v1/models"
	"github.com/Aleph-Alpha/annotation-engine/v1/queryset"
)

// Compiler turns search trees into predicates over one entity collection.
// Dynamic attributes are resolved against schema.
type Compiler struct {
	searcher *Searcher
	entity   models.Entity
	schema   attribute.Schema
}

// Compile returns the predicate for n and the casts it references. A nil
// predicate means n does not constrain the collection.
func (c *Compiler) Compile(ctx context.Context, n Node) (clause.Expression, *queryset.Casts, error) {
	casts := queryset.NewCasts()
	expr, err := c.compile(ctx, n, casts)
	if err != nil {
		return nil, nil, err
	}
	return expr, casts, nil
}

// Apply projects every cast n needs onto qs, once, and then filters by n.
func (c *Compiler) Apply(ctx context.Context, qs *queryset.QuerySet, n Node) (*queryset.QuerySet, error) {
	expr, casts, err := c.Compile(ctx, n)
	if err != nil {
		return nil, err
	}
	return qs.WithCasts(casts).Where(expr), nil
}

func (c *Compiler) compile(ctx context.Context, n Node, casts *queryset.Casts) (clause.Expression, error) {
	if n.IsLeaf() {
		return c.leaf(ctx, n, casts)
	}

	method := strings.ToLower(n.Method)
	switch method {
	case MethodAnd, MethodOr, MethodNot:
	default:
		return nil, attribute.Validationf("unknown search method %q", n.Method)
	}

	children := make([]clause.Expression, 0, len(n.Operations))
	for _, op := range n.Operations {
		expr, err := c.compile(ctx, op, casts)
		if err != nil {
			return nil, err
		}
		children = append(children, expr)
	}
	if len(children) == 0 {
		return nil, nil
	}

	switch method {
	case MethodNot:
		if len(children) != 1 {
			return nil, attribute.Validationf("NOT operator can only be applied to one suboperation")
		}
		return queryset.Not(children[0]), nil
	case MethodAnd:
		return queryset.And(children...), nil
	}
	return queryset.Or(children...), nil
}

func (c *Compiler) leaf(ctx context.Context, n Node, casts *queryset.Casts) (clause.Expression, error) {
	var expr clause.Expression
	if n.Attribute == attribute.SectionSearchKey {
		var err error
		if expr, err = c.section(ctx, n.Value); err != nil {
			return nil, err
		}
	} else {
		def, found := attribute.Resolve(c.schema, n.Attribute)
		if !found {
			// unknown attributes match nothing, inverted or not
			return queryset.Nothing, nil
		}
		var ok bool
		var err error
		if expr, ok, err = c.comparison(def, n, casts); err != nil {
			return nil, err
		} else if !ok {
			return queryset.Nothing, nil
		}
	}
	if n.Inverse {
		expr = queryset.Not(expr)
	}
	return expr, nil
}

// section matches rows belonging to the media a saved section selects.
func (c *Compiler) section(ctx context.Context, raw interface{}) (clause.Expression, error) {
	v, err := attribute.Coerce(attribute.Int, raw)
	if err != nil {
		return nil, err
	}
	section, err := c.searcher.catalog.Section(ctx, int64(v.(attribute.IntValue)))
	if err != nil {
		return nil, err
	}

	media, err := c.searcher.ScopeSection(ctx, c.searcher.Base(models.MustEntity(models.KindMedia)), section)
	if err != nil {
		return nil, err
	}
	found, err := media.Exists(ctx, c.searcher.db)
	if err != nil {
		return nil, err
	}
	if !found {
		return queryset.Nothing, nil
	}
	return c.entity.MediaMembership(media.Values(c.searcher.db, "id")), nil
}

// term is the left-hand side of a comparison.
type term struct {
	sql  string
	vars []interface{}
}

func (t term) cmp(rest string, vars ...interface{}) clause.Expression {
	all := make([]interface{}, 0, len(t.vars)+len(vars))
	all = append(all, t.vars...)
	all = append(all, vars...)
	return clause.Expr{SQL: t.sql + rest, Vars: all}
}

func isSubstring(op string) bool {
	switch op {
	case attribute.OpIContains, attribute.OpIStartsWith, attribute.OpIEndsWith:
		return true
	}
	return false
}

// comparison compiles a leaf on a resolved attribute. The boolean is false
// when the attribute has no comparable projection.
func (c *Compiler) comparison(def attribute.Definition, n Node, casts *queryset.Casts) (clause.Expression, bool, error) {
	op := strings.ToLower(n.Operation)
	if err := attribute.ValidateOperation(op, def.DType); err != nil {
		return nil, false, err
	}

	builtin := attribute.IsBuiltin(def.Name)
	var lhs term
	switch {
	case builtin:
		lhs = term{sql: attribute.BuiltinColumn(def.Name)}
		if isSubstring(op) {
			lhs.sql += "::text"
		}
	case isSubstring(op):
		// substring matches run on the raw stored text, not the typed cast
		casts.Add(def)
		lhs = term{sql: "(attributes ->> ?)", vars: []interface{}{def.Name}}
	default:
		alias, ok := casts.Add(def)
		if !ok {
			if op != attribute.OpIsNull {
				return nil, false, nil
			}
			lhs = term{sql: "(attributes -> ?)", vars: []interface{}{def.Name}}
		} else {
			lhs = term{sql: alias}
		}
	}

	expr, err := compareOp(lhs, def, builtin, op, n.Value)
	if err != nil {
		return nil, false, err
	}
	return expr, true, nil
}

func compareOp(lhs term, def attribute.Definition, builtin bool, op string, value interface{}) (clause.Expression, error) {
	switch op {
	case attribute.OpEq:
		v, err := operand(def, builtin, value)
		if err != nil {
			return nil, err
		}
		return lhs.cmp(" = ?", v), nil

	case attribute.OpIn:
		items, err := list(value)
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			return queryset.Nothing, nil
		}
		vals := make([]interface{}, len(items))
		for i, item := range items {
			if vals[i], err = operand(def, builtin, item); err != nil {
				return nil, err
			}
		}
		return lhs.cmp(" IN (?)", vals), nil

	case attribute.OpLt, attribute.OpLte, attribute.OpGt, attribute.OpGte:
		v, err := operand(def, builtin, value)
		if err != nil {
			return nil, err
		}
		return lhs.cmp(" "+comparators[op]+" ?", v), nil

	case attribute.OpRange:
		lo, hi, err := bounds(value, func(raw interface{}) (interface{}, error) {
			return operand(def, builtin, raw)
		})
		if err != nil {
			return nil, err
		}
		return lhs.cmp(" BETWEEN ? AND ?", lo, hi), nil

	case attribute.OpDateEq, attribute.OpDateLt, attribute.OpDateLte, attribute.OpDateGt, attribute.OpDateGte:
		ts, err := normalizeTimestamp(value)
		if err != nil {
			return nil, err
		}
		return lhs.cmp(" "+comparators[strings.TrimPrefix(op, "date_")]+" ?", ts), nil

	case attribute.OpDateRange:
		lo, hi, err := bounds(value, normalizeTimestamp)
		if err != nil {
			return nil, err
		}
		return lhs.cmp(" BETWEEN ? AND ?", lo, hi), nil

	case attribute.OpIContains, attribute.OpIStartsWith, attribute.OpIEndsWith:
		s, err := attribute.Coerce(attribute.String, value)
		if err != nil {
			return nil, err
		}
		return lhs.cmp(" ILIKE ?", likePattern(op, s.SQL().(string))), nil

	case attribute.OpIsNull:
		if isNull(value) {
			return lhs.cmp(" IS NULL"), nil
		}
		return lhs.cmp(" IS NOT NULL"), nil

	case attribute.OpDistanceLte:
		nums, err := attribute.Coerce(attribute.FloatArray, value)
		if err != nil {
			return nil, err
		}
		vec := nums.(attribute.FloatVector)
		if len(vec) != 3 {
			return nil, attribute.Validationf("distance value must be [distance_km, lat, lon]")
		}
		radius, lat, lon := float64(vec[0]), float64(vec[1]), float64(vec[2])
		return clause.Expr{
			SQL:  "ST_DWithin(" + lhs.sql + ", ST_SetSRID(ST_MakePoint(?, ?), 4326)::geography, ?, true)",
			Vars: append(append([]interface{}{}, lhs.vars...), lon, lat, radius*1000),
		}, nil
	}
	return nil, attribute.Validationf("unknown operation %q", op)
}

var comparators = map[string]string{
	attribute.OpEq:  "=",
	attribute.OpLt:  "<",
	attribute.OpLte: "<=",
	attribute.OpGt:  ">",
	attribute.OpGte: ">=",
}

// operand converts a leaf value to what the lhs column compares against.
// Dynamic string-like attributes are compared against their JSON text, so
// the value is quoted the same way.
func operand(def attribute.Definition, builtin bool, raw interface{}) (interface{}, error) {
	switch def.DType {
	case attribute.Bool, attribute.Int, attribute.Float:
		v, err := attribute.Coerce(def.DType, raw)
		if err != nil {
			return nil, err
		}
		return v.SQL(), nil
	case attribute.Geopos:
		return raw, nil
	}

	v, err := attribute.Coerce(attribute.String, raw)
	if err != nil {
		return nil, err
	}
	s := v.SQL().(string)
	if !builtin && attribute.IsStringLike(def.DType) {
		return attribute.QuoteJSON(s), nil
	}
	return s, nil
}

func normalizeTimestamp(raw interface{}) (interface{}, error) {
	v, err := attribute.Coerce(attribute.Datetime, raw)
	if err != nil {
		return nil, err
	}
	return attribute.FormatTimestamp(time.Time(v.(attribute.DatetimeValue))), nil
}

func list(raw interface{}) ([]interface{}, error) {
	switch v := raw.(type) {
	case []interface{}:
		return v, nil
	case []string:
		out := make([]interface{}, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, nil
	case []float64:
		out := make([]interface{}, len(v))
		for i, f := range v {
			out[i] = f
		}
		return out, nil
	case []int64:
		out := make([]interface{}, len(v))
		for i, n := range v {
			out[i] = n
		}
		return out, nil
	}
	return nil, attribute.Validationf("value %v is not a list", raw)
}

func bounds(raw interface{}, conv func(interface{}) (interface{}, error)) (interface{}, interface{}, error) {
	items, err := list(raw)
	if err != nil {
		return nil, nil, err
	}
	if len(items) != 2 {
		return nil, nil, attribute.Validationf("range value must have two elements")
	}
	lo, err := conv(items[0])
	if err != nil {
		return nil, nil, err
	}
	hi, err := conv(items[1])
	if err != nil {
		return nil, nil, err
	}
	return lo, hi, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePattern(op, s string) string {
	s = likeEscaper.Replace(s)
	switch op {
	case attribute.OpIStartsWith:
		return s + "%"
	case attribute.OpIEndsWith:
		return "%" + s
	}
	return "%" + s + "%"
}

func isNull(raw interface{}) bool {
	v, _ := attribute.Coerce(attribute.Bool, raw)
	return bool(v.(attribute.BoolValue))
}
