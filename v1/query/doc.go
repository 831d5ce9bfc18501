// Package query builds the annotation, leaf and file listings.
//
// Each request runs as a fixed pipeline of narrowing stages over a deferred
// queryset.QuerySet: identifier and scalar filters, flat attribute filters
// (for a pinned type, or unioned over every type of the project), section
// scoping, related media filters, search trees, merge-by-parent, ordering and
// slicing. Nothing is executed until one of the ID or Count helpers runs the
// set.
//
//	engine := query.NewEngine(db, search.NewCatalog(db), log,
//	    query.WithTracer(tr), query.WithMetrics(m))
//	ids, err := engine.AnnotationIDs(ctx, projectID, models.KindLocalization, query.AnnotationParams{
//	    Filters: attribute.Filters{Eq: []string{"Species::Fish"}},
//	    SortBy:  []string{"-$frame"},
//	})
//
// Malformed input fails with an error wrapping attribute.ErrValidation;
// references to missing sections or types wrap attribute.ErrNotFound.
package query
