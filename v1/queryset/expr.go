package queryset

import (
	"strings"

	"gorm.io/gorm/clause"
)

// Nothing is a predicate no row satisfies.
var Nothing clause.Expression = clause.Expr{SQL: "FALSE"}

// A nil clause.Expression means "no constraint" throughout this package.

// And conjoins the non-nil expressions.
func And(exprs ...clause.Expression) clause.Expression {
	return join(" AND ", exprs)
}

// Or disjoins the non-nil expressions. Nil operands are dropped rather than
// widening the result to "no constraint".
func Or(exprs ...clause.Expression) clause.Expression {
	return join(" OR ", exprs)
}

// Not negates e. The negation of no constraint is no constraint.
func Not(e clause.Expression) clause.Expression {
	if e == nil {
		return nil
	}
	return clause.Expr{SQL: "NOT (?)", Vars: []interface{}{e}}
}

// Raw wraps a SQL fragment with bind variables.
func Raw(sql string, vars ...interface{}) clause.Expression {
	return clause.Expr{SQL: sql, Vars: vars}
}

// In matches column against a list of keys. An empty list matches nothing.
func In(column string, ids []int64) clause.Expression {
	if len(ids) == 0 {
		return Nothing
	}
	return clause.Expr{SQL: column + " IN (?)", Vars: []interface{}{ids}}
}

// InQuery matches column against the rows of a subquery (a *gorm.DB).
func InQuery(column string, sub interface{}) clause.Expression {
	return clause.Expr{SQL: column + " IN (?)", Vars: []interface{}{sub}}
}

func join(op string, exprs []clause.Expression) clause.Expression {
	kept := make([]interface{}, 0, len(exprs))
	for _, e := range exprs {
		if e != nil {
			kept = append(kept, e)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0].(clause.Expression)
	}
	parts := make([]string, len(kept))
	for i := range parts {
		parts[i] = "(?)"
	}
	return clause.Expr{SQL: strings.Join(parts, op), Vars: kept}
}
