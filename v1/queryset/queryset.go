package queryset

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Projection is a computed column added to the rows of a QuerySet.
type Projection struct {
	Alias string
	SQL   string
	Vars  []interface{}
}

type order struct {
	sql  string
	vars []interface{}
}

// QuerySet is a deferred, immutable query over one entity table. Every
// modifier returns a new QuerySet; nothing touches the database until one of
// the execution helpers is called.
//
// Projections are rendered once, in a derived table aliased to the entity
// table name, so filters and orderings can reference them as plain columns.
type QuerySet struct {
	table       string
	projections []Projection
	conds       []clause.Expression
	orders      []order
	offset      int
	limit       int
}

// New starts an unfiltered QuerySet over table.
func New(table string) *QuerySet {
	return &QuerySet{table: table, limit: -1}
}

// Table is the entity table the QuerySet selects from.
func (q *QuerySet) Table() string {
	return q.table
}

func (q *QuerySet) clone() *QuerySet {
	c := *q
	c.projections = append([]Projection(nil), q.projections...)
	c.conds = append([]clause.Expression(nil), q.conds...)
	c.orders = append([]order(nil), q.orders...)
	return &c
}

// Where narrows the set by every non-nil expression.
func (q *QuerySet) Where(exprs ...clause.Expression) *QuerySet {
	c := q.clone()
	for _, e := range exprs {
		if e != nil {
			c.conds = append(c.conds, e)
		}
	}
	return c
}

// Filter narrows the set by a raw SQL condition.
func (q *QuerySet) Filter(sql string, vars ...interface{}) *QuerySet {
	return q.Where(clause.Expr{SQL: sql, Vars: vars})
}

// Project adds computed columns. A projection whose alias is already present
// is ignored, so applying the same cast twice leaves one column.
func (q *QuerySet) Project(ps ...Projection) *QuerySet {
	c := q.clone()
	for _, p := range ps {
		if c.HasProjection(p.Alias) {
			continue
		}
		c.projections = append(c.projections, p)
	}
	return c
}

// WithCasts adds every projection collected in casts.
func (q *QuerySet) WithCasts(casts *Casts) *QuerySet {
	if casts == nil || casts.Len() == 0 {
		return q
	}
	return q.Project(casts.Projections()...)
}

// HasProjection reports whether alias is already projected.
func (q *QuerySet) HasProjection(alias string) bool {
	for _, p := range q.projections {
		if p.Alias == alias {
			return true
		}
	}
	return false
}

// Projections returns the computed columns in render order.
func (q *QuerySet) Projections() []Projection {
	return append([]Projection(nil), q.projections...)
}

// OrderBy appends an ordering term, e.g. "id DESC".
func (q *QuerySet) OrderBy(sql string, vars ...interface{}) *QuerySet {
	c := q.clone()
	c.orders = append(c.orders, order{sql: sql, vars: vars})
	return c
}

// Ordered reports whether any ordering term is set.
func (q *QuerySet) Ordered() bool {
	return len(q.orders) > 0
}

// Slice restricts the set to the half-open range [start, stop). Either bound
// may be nil.
func (q *QuerySet) Slice(start, stop *int) *QuerySet {
	c := q.clone()
	if start != nil && *start > 0 {
		c.offset = *start
	}
	if stop != nil {
		lim := *stop - c.offset
		if lim < 0 {
			lim = 0
		}
		c.limit = lim
	}
	return c
}

// Build renders the QuerySet onto a fresh session of db.
func (q *QuerySet) Build(db *gorm.DB) *gorm.DB {
	tx := db.Session(&gorm.Session{NewDB: true})
	if len(q.projections) > 0 {
		cols := make([]string, 0, len(q.projections)+1)
		cols = append(cols, q.table+".*")
		var vars []interface{}
		for _, p := range q.projections {
			cols = append(cols, fmt.Sprintf("%s AS %s", p.SQL, p.Alias))
			vars = append(vars, p.Vars...)
		}
		inner := db.Session(&gorm.Session{NewDB: true}).
			Table(q.table).
			Clauses(clause.Select{Expression: clause.Expr{SQL: strings.Join(cols, ", "), Vars: vars}})
		tx = tx.Table("(?) AS "+q.table, inner)
	} else {
		tx = tx.Table(q.table)
	}

	for _, cond := range q.conds {
		tx = tx.Where(cond)
	}

	if len(q.orders) > 0 {
		sqls := make([]string, len(q.orders))
		var vars []interface{}
		for i, o := range q.orders {
			sqls[i] = o.sql
			vars = append(vars, o.vars...)
		}
		tx = tx.Order(clause.OrderBy{Expression: clause.Expr{SQL: strings.Join(sqls, ", "), Vars: vars, WithoutParentheses: true}})
	}
	if q.offset > 0 {
		tx = tx.Offset(q.offset)
	}
	if q.limit >= 0 {
		tx = tx.Limit(q.limit)
	}
	return tx
}

// Values renders a subquery selecting one column of the set, for use as an
// IN (?) operand.
func (q *QuerySet) Values(db *gorm.DB, column string) *gorm.DB {
	return q.Build(db).Select(q.table + "." + column)
}

// IDs returns the primary keys of the set in order.
func (q *QuerySet) IDs(ctx context.Context, db *gorm.DB) ([]int64, error) {
	var ids []int64
	err := q.Build(db).WithContext(ctx).Pluck(q.table+".id", &ids).Error
	return ids, err
}

// Exists reports whether the set holds at least one row.
func (q *QuerySet) Exists(ctx context.Context, db *gorm.DB) (bool, error) {
	var ids []int64
	err := q.Build(db).WithContext(ctx).Limit(1).Pluck(q.table+".id", &ids).Error
	return len(ids) > 0, err
}

// Count returns the number of rows, honoring any slice.
func (q *QuerySet) Count(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.Session(&gorm.Session{NewDB: true}).
		WithContext(ctx).
		Table("(?) AS counted", q.Build(db)).
		Count(&n).Error
	return n, err
}

// Find loads the rows of the set into dest.
func (q *QuerySet) Find(ctx context.Context, db *gorm.DB, dest interface{}) error {
	return q.Build(db).WithContext(ctx).Find(dest).Error
}
