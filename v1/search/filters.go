package search

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm/clause"

	"github.com/Aleph-Alpha/annotation-engine/v1/attribute"
	"github.com/Aleph-Alpha/annotation-engine/v1/models"
	"github.com/Aleph-Alpha/annotation-engine/v1/queryset"
	"github.com/Aleph-Alpha/annotation-engine/v1/vector"
)

// AttributeFilter is the flat form of an attribute search: operator pairs,
// null checks and similarity queries, all ANDed.
type AttributeFilter struct {
	Ops    []attribute.FilterOp
	Nulls  []attribute.NullFilter
	Floats []vector.Query
	// TypePinned is set when the request restricted the collection to one
	// entity type. Similarity queries require it.
	TypePinned bool
}

// Empty reports whether f applies no constraint.
func (f AttributeFilter) Empty() bool {
	return len(f.Ops) == 0 && len(f.Nulls) == 0 && len(f.Floats) == 0
}

// ApplyAttributeFilters filters qs, a set of entity rows of type et, by f.
// The boolean reports whether anything in f applied to et; when it is false
// the caller should leave et out of a per-type union. An empty f returns qs
// unchanged and true.
func (s *Searcher) ApplyAttributeFilters(ctx context.Context, qs *queryset.QuerySet, entity models.Entity, et models.EntityType, f AttributeFilter) (*queryset.QuerySet, bool, error) {
	if f.Empty() {
		return qs, true, nil
	}
	if len(f.Floats) > 0 && !f.TypePinned {
		return nil, false, attribute.Validationf("Must supply 'type' if supplying a float_query.")
	}

	schema := et.Schema()
	applied := false

	var leaves []Node
	for _, op := range f.Ops {
		def, found := attribute.Resolve(schema, op.Key)
		if !found || !attribute.Allowed(op.Kind, def.DType) {
			continue
		}
		leaves = append(leaves, Leaf(op.Key, op.Kind.Operation(), op.Value))
	}
	if len(leaves) > 0 {
		var err error
		if qs, err = s.CompilerFor(entity, schema).Apply(ctx, qs, And(leaves...)); err != nil {
			return nil, false, err
		}
		applied = true
	}

	for _, null := range f.Nulls {
		expr, err := nullCheck(null)
		if err != nil {
			return nil, false, err
		}
		qs = qs.Where(expr)
		applied = true
	}

	for _, q := range f.Floats {
		if def, ok := schema.Lookup(q.Name); ok {
			var err error
			if qs, err = vector.Apply(qs, def, q); err != nil {
				return nil, false, err
			}
			qs = qs.Filter(entity.TypeColumn+" = ?", et.ID)
		}
		applied = true
	}
	return qs, applied, nil
}

// nullCheck treats an explicit JSON null and a missing key alike when
// IsNull is set, and requires a present non-null value otherwise.
func nullCheck(f attribute.NullFilter) (clause.Expression, error) {
	null, err := json.Marshal(map[string]interface{}{f.Key: nil})
	if err != nil {
		return nil, fmt.Errorf("encode null filter %q: %w", f.Key, err)
	}
	hasKey := datatypes.JSONQuery(attribute.StoreColumn).HasKey(f.Key)
	containsNull := clause.Expr{SQL: attribute.StoreColumn + " @> ?::jsonb", Vars: []interface{}{string(null)}}
	if f.IsNull {
		return queryset.Or(containsNull, queryset.Not(hasKey)), nil
	}
	return queryset.And(hasKey, queryset.Not(containsNull)), nil
}
