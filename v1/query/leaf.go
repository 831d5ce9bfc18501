package query

import (
	"context"

	"github.com/Aleph-Alpha/annotation-engine/v1/models"
	"github.com/Aleph-Alpha/annotation-engine/v1/queryset"
)

// Leaves builds the leaf query described by p.
func (e *Engine) Leaves(ctx context.Context, projectID int64, p LeafParams) (*queryset.QuerySet, error) {
	var qs *queryset.QuerySet
	err := e.observe(ctx, "query.leaves", models.KindLeaf, projectID, func(ctx context.Context) error {
		var err error
		qs, err = e.leaves(ctx, projectID, p)
		return err
	})
	return qs, err
}

// LeafIDs runs the leaf query and returns the matching ids in order.
func (e *Engine) LeafIDs(ctx context.Context, projectID int64, p LeafParams) ([]int64, error) {
	qs, err := e.Leaves(ctx, projectID, p)
	if err != nil {
		return nil, err
	}
	return qs.IDs(ctx, e.db)
}

// CountLeaves counts the rows the leaf query selects.
func (e *Engine) CountLeaves(ctx context.Context, projectID int64, p LeafParams) (int64, error) {
	qs, err := e.Leaves(ctx, projectID, p)
	if err != nil {
		return 0, err
	}
	return qs.Count(ctx, e.db)
}

func (e *Engine) leaves(ctx context.Context, projectID int64, p LeafParams) (*queryset.QuerySet, error) {
	entity := models.MustEntity(models.KindLeaf)
	s := e.searcher(projectID)
	qs := s.Base(entity)

	if p.LeafID != nil || p.IDs != nil {
		ids := append([]int64(nil), p.LeafID...)
		if p.IDs != nil {
			ids = append(ids, *p.IDs...)
		}
		qs = qs.Where(queryset.In("id", ids))
	}
	if p.Depth != nil {
		qs = qs.Filter("nlevel(path) = ?", *p.Depth)
	}
	if p.Name != nil {
		qs = qs.Filter("name = ?", *p.Name)
	}

	types, err := e.typeScope(ctx, entity, projectID, p.Type)
	if err != nil {
		return nil, err
	}
	af, err := attributeFilter(p.Filters, types, nil, p.Type != nil)
	if err != nil {
		return nil, err
	}
	if p.Type != nil {
		if qs, _, err = s.ApplyAttributeFilters(ctx, qs, entity, types[0], af); err != nil {
			return nil, err
		}
		qs = qs.Filter(entity.TypeColumn+" = ?", *p.Type)
	} else if !af.Empty() {
		if qs, err = unionByType(ctx, s, qs, entity, types, af); err != nil {
			return nil, err
		}
	}

	if qs, err = objectSearch(ctx, s, qs, entity, p.ObjectSearch, p.EncodedSearch); err != nil {
		return nil, err
	}
	return qs.OrderBy("id").Slice(p.Start, p.Stop), nil
}
