package query

import (
	"context"

	"github.com/Aleph-Alpha/annotation-engine/v1/models"
	"github.com/Aleph-Alpha/annotation-engine/v1/queryset"
)

// Files builds the file query described by p.
func (e *Engine) Files(ctx context.Context, projectID int64, p FileParams) (*queryset.QuerySet, error) {
	var qs *queryset.QuerySet
	err := e.observe(ctx, "query.files", models.KindFile, projectID, func(ctx context.Context) error {
		var err error
		qs, err = e.files(ctx, projectID, p)
		return err
	})
	return qs, err
}

// FileIDs runs the file query and returns the matching ids in order.
func (e *Engine) FileIDs(ctx context.Context, projectID int64, p FileParams) ([]int64, error) {
	qs, err := e.Files(ctx, projectID, p)
	if err != nil {
		return nil, err
	}
	return qs.IDs(ctx, e.db)
}

// CountFiles counts the rows the file query selects.
func (e *Engine) CountFiles(ctx context.Context, projectID int64, p FileParams) (int64, error) {
	qs, err := e.Files(ctx, projectID, p)
	if err != nil {
		return 0, err
	}
	return qs.Count(ctx, e.db)
}

func (e *Engine) files(ctx context.Context, projectID int64, p FileParams) (*queryset.QuerySet, error) {
	entity := models.MustEntity(models.KindFile)
	s := e.searcher(projectID)
	qs := s.Base(entity)

	if ids := append(append([]int64(nil), p.FileID...), p.IDs...); len(ids) > 0 {
		qs = qs.Where(queryset.In("id", ids))
	}
	if p.Name != nil {
		qs = qs.Filter("name = ?", *p.Name)
	}

	types, err := e.typeScope(ctx, entity, projectID, p.Meta)
	if err != nil {
		return nil, err
	}
	af, err := attributeFilter(p.Filters, types, nil, p.Meta != nil)
	if err != nil {
		return nil, err
	}
	if p.Meta != nil {
		if qs, _, err = s.ApplyAttributeFilters(ctx, qs, entity, types[0], af); err != nil {
			return nil, err
		}
		qs = qs.Filter(entity.TypeColumn+" = ?", *p.Meta)
	} else if !af.Empty() {
		if qs, err = unionByType(ctx, s, qs, entity, types, af); err != nil {
			return nil, err
		}
	}

	// with a LIMIT the planner otherwise walks the primary key index
	if p.Stop != nil {
		qs = qs.OrderBy("COALESCE(id, id)")
	} else {
		qs = qs.OrderBy("id")
	}
	return qs.Slice(p.Start, p.Stop), nil
}
