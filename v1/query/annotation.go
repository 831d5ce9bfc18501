package query

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm/clause"

	"github.com/Aleph-Alpha/annotation-engine/v1/attribute"
	"github.com/Aleph-Alpha/annotation-engine/v1/models"
	"github.com/Aleph-Alpha/annotation-engine/v1/queryset"
	"github.com/Aleph-Alpha/annotation-engine/v1/search"
)

// Annotations builds the localization or state query described by p. The
// returned set is ordered and sliced but not executed.
func (e *Engine) Annotations(ctx context.Context, projectID int64, kind models.Kind, p AnnotationParams) (*queryset.QuerySet, error) {
	var qs *queryset.QuerySet
	err := e.observe(ctx, "query.annotations", kind, projectID, func(ctx context.Context) error {
		var err error
		qs, err = e.annotations(ctx, projectID, kind, p)
		return err
	})
	return qs, err
}

// AnnotationIDs runs the annotation query and returns the matching ids in
// order.
func (e *Engine) AnnotationIDs(ctx context.Context, projectID int64, kind models.Kind, p AnnotationParams) ([]int64, error) {
	qs, err := e.Annotations(ctx, projectID, kind, p)
	if err != nil {
		return nil, err
	}
	return qs.IDs(ctx, e.db)
}

// CountAnnotations counts the rows the annotation query selects.
func (e *Engine) CountAnnotations(ctx context.Context, projectID int64, kind models.Kind, p AnnotationParams) (int64, error) {
	qs, err := e.Annotations(ctx, projectID, kind, p)
	if err != nil {
		return 0, err
	}
	return qs.Count(ctx, e.db)
}

func annotationEntity(kind models.Kind) (models.Entity, error) {
	switch kind {
	case models.KindLocalization, models.KindState:
		return models.MustEntity(kind), nil
	}
	return models.Entity{}, attribute.Validationf("%q is not an annotation kind", kind)
}

func (e *Engine) annotations(ctx context.Context, projectID int64, kind models.Kind, p AnnotationParams) (*queryset.QuerySet, error) {
	entity, err := annotationEntity(kind)
	if err != nil {
		return nil, err
	}
	s := e.searcher(projectID)
	qs := s.Base(entity)

	qs = qs.Where(identifierFilter(entity, p))

	if len(p.Version) > 0 {
		qs = qs.Where(queryset.In("version_id", p.Version))
	}
	if p.ElementalID != nil {
		id, err := uuid.Parse(*p.ElementalID)
		if err != nil {
			return nil, attribute.Validationf("elemental_id %q is not a valid uuid", *p.ElementalID)
		}
		qs = qs.Filter("elemental_id = ?", id.String())
	}
	if p.Frame != nil {
		qs = qs.Filter("frame = ?", *p.Frame)
	}
	if p.After != nil {
		qs = qs.Filter("id > ?", *p.After)
	}

	types, err := e.typeScope(ctx, entity, projectID, p.Type)
	if err != nil {
		return nil, err
	}
	af, err := attributeFilter(p.Filters, types, p.FloatArray, p.Type != nil)
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
	mediaTypes := search.MediaTypeIDs(types)

	if p.Section != nil {
		if qs, err = e.sectionScope(ctx, s, qs, entity, *p.Section, mediaTypes); err != nil {
			return nil, err
		}
	}
	if qs, err = e.relatedFilters(ctx, s, qs, entity, p.RelatedFilters.Filters(), mediaTypes); err != nil {
		return nil, err
	}
	if p.EncodedRelatedSearch != "" {
		if qs, err = e.encodedRelatedSearch(ctx, s, qs, entity, p.EncodedRelatedSearch, mediaTypes); err != nil {
			return nil, err
		}
	}

	if qs, err = objectSearch(ctx, s, qs, entity, p.ObjectSearch, p.EncodedSearch); err != nil {
		return nil, err
	}
	if len(p.RelatedID) > 0 {
		qs = qs.Where(relatedID(kind, p.RelatedID))
	}

	if p.Merge {
		parents := qs.Filter("parent_id IS NOT NULL").Values(e.db, "parent_id")
		qs = qs.Where(queryset.Not(queryset.InQuery("id", parents)))
	}
	if !p.ShowDeleted {
		qs = qs.Filter("variant_deleted = ?", false)
	}

	// a similarity query that projected a distance owns the ordering
	if !qs.Ordered() {
		if qs, err = SortBy(qs, p.SortBy); err != nil {
			return nil, err
		}
	}
	qs = qs.Slice(p.Start, p.Stop)

	e.logger.DebugWithContext(ctx, "annotation query built", nil, map[string]interface{}{
		"project": projectID,
		"kind":    string(kind),
		"types":   len(types),
	})
	return qs, nil
}

// identifierFilter restricts by media and by explicit or propagated ids.
func identifierFilter(entity models.Entity, p AnnotationParams) clause.Expression {
	var conds []clause.Expression

	mediaIDs := append(append([]int64(nil), p.MediaIDs...), p.MediaID...)
	if len(mediaIDs) > 0 {
		conds = append(conds, entity.MediaMembership(mediaIDs))
	}

	switch entity.Kind {
	case models.KindLocalization:
		var byID []clause.Expression
		if len(p.IDs) > 0 {
			byID = append(byID, queryset.In("id", p.IDs))
		}
		if len(p.StateIDs) > 0 {
			byID = append(byID, queryset.Raw(
				"id IN (SELECT state_localizations.localization_id FROM state_localizations WHERE state_localizations.state_id IN (?))",
				p.StateIDs,
			))
		}
		conds = append(conds, queryset.Or(byID...))
	case models.KindState:
		if len(p.LocalizationIDs) > 0 {
			conds = append(conds, queryset.Raw(
				"id IN (SELECT state_localizations.state_id FROM state_localizations WHERE state_localizations.localization_id IN (?))",
				p.LocalizationIDs,
			))
		}
		if len(p.IDs) > 0 {
			conds = append(conds, queryset.In("id", p.IDs))
		}
	}
	return queryset.And(conds...)
}

// relatedID matches annotations linked to the given annotations of the other
// kind.
func relatedID(kind models.Kind, ids []int64) clause.Expression {
	if kind == models.KindLocalization {
		return queryset.Raw(
			"id IN (SELECT state_localizations.localization_id FROM state_localizations WHERE state_localizations.state_id IN (?))", ids)
	}
	return queryset.Raw(
		"id IN (SELECT state_localizations.state_id FROM state_localizations WHERE state_localizations.localization_id IN (?))", ids)
}

// sectionScope keeps annotations on media the section selects, resolved once
// per relevant media type.
func (e *Engine) sectionScope(ctx context.Context, s *search.Searcher, qs *queryset.QuerySet, entity models.Entity, sectionID int64, mediaTypes []int64) (*queryset.QuerySet, error) {
	section, err := e.catalog.Section(ctx, sectionID)
	if err != nil {
		return nil, err
	}
	media := models.MustEntity(models.KindMedia)

	members := make([]clause.Expression, 0, len(mediaTypes))
	for _, mt := range mediaTypes {
		mqs, err := s.ScopeSection(ctx, s.Base(media).Filter(media.TypeColumn+" = ?", mt), section)
		if err != nil {
			return nil, err
		}
		members = append(members, entity.MediaMembership(mqs.Values(e.db, "id")))
	}
	if len(members) == 0 {
		return qs.Where(queryset.Nothing), nil
	}
	return qs.Where(queryset.Or(members...)), nil
}

// relatedFilters applies the related_* flat filters to the media of each
// relevant media type and keeps annotations on any matching media.
func (e *Engine) relatedFilters(ctx context.Context, s *search.Searcher, qs *queryset.QuerySet, entity models.Entity, f attribute.Filters, mediaTypes []int64) (*queryset.QuerySet, error) {
	if f.Empty() {
		return qs, nil
	}
	media := models.MustEntity(models.KindMedia)
	nulls, err := attribute.ParseNullFilters(f)
	if err != nil {
		return nil, err
	}

	var members []clause.Expression
	for _, mt := range mediaTypes {
		t, err := e.catalog.Type(ctx, media, mt)
		if err != nil {
			return nil, err
		}
		ops, err := attribute.ParseFilterOps(f, t.Schema())
		if err != nil {
			return nil, err
		}
		if len(ops) == 0 {
			continue
		}
		mqs, _, err := s.ApplyAttributeFilters(ctx, queryset.New(media.Table).Filter("project_id = ?", s.ProjectID()), media, t,
			search.AttributeFilter{Ops: ops, Nulls: nulls})
		if err != nil {
			return nil, err
		}
		members = append(members, entity.MediaMembership(mqs.Values(e.db, "id")))
	}
	if len(members) == 0 {
		return qs, nil
	}
	return qs.Where(queryset.Or(members...)), nil
}

// encodedRelatedSearch keeps annotations on media matching the encoded tree.
// When no media of any relevant type matches, nothing is returned.
func (e *Engine) encodedRelatedSearch(ctx context.Context, s *search.Searcher, qs *queryset.QuerySet, entity models.Entity, encoded string, mediaTypes []int64) (*queryset.QuerySet, error) {
	n, err := search.DecodeEncoded(encoded)
	if err != nil {
		return nil, err
	}
	media := models.MustEntity(models.KindMedia)
	compiler, err := s.Compiler(ctx, media)
	if err != nil {
		return nil, err
	}

	var members []clause.Expression
	for _, mt := range mediaTypes {
		mqs, err := compiler.Apply(ctx, s.Base(media).Filter(media.TypeColumn+" = ?", mt), n)
		if err != nil {
			return nil, err
		}
		found, err := mqs.Exists(ctx, e.db)
		if err != nil {
			return nil, err
		}
		if found {
			members = append(members, entity.MediaMembership(mqs.Values(e.db, "id")))
		}
	}
	if len(members) == 0 {
		return qs.Where(queryset.Nothing), nil
	}
	return qs.Where(queryset.Or(members...)), nil
}

// SortBy orders qs by the sort keys, or by id when none are given. A leading
// "-" sorts descending; a leading "$" names a built-in column and must be one
// of the known ones; any other key sorts on the stored attribute value.
func SortBy(qs *queryset.QuerySet, keys []string) (*queryset.QuerySet, error) {
	if len(keys) == 0 {
		return qs.OrderBy("id"), nil
	}
	for _, key := range keys {
		dir := ""
		if strings.HasPrefix(key, "-") {
			dir = " DESC"
			key = key[1:]
		}
		if attribute.IsBuiltin(key) {
			if _, ok := attribute.Resolve(nil, key); !ok {
				return nil, attribute.Validationf("unknown sort key %q", key)
			}
			qs = qs.OrderBy(attribute.BuiltinColumn(key) + dir)
		} else {
			qs = qs.OrderBy(attribute.StoreColumn+" -> ?"+dir, key)
		}
	}
	return qs, nil
}
