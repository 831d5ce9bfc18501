package query

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Aleph-Alpha/annotation-engine/v1/attribute"
	"github.com/Aleph-Alpha/annotation-engine/v1/metrics"
	"github.com/Aleph-Alpha/annotation-engine/v1/models"
	"github.com/Aleph-Alpha/annotation-engine/v1/queryset"
	"github.com/Aleph-Alpha/annotation-engine/v1/search"
	"github.com/Aleph-Alpha/annotation-engine/v1/tracer"
	"github.com/Aleph-Alpha/annotation-engine/v1/vector"
)

// Logger is the logging surface of the engine.
type Logger interface {
	DebugWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
	InfoWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
}

// Engine builds and runs attribute queries. It holds no per-request state
// and is safe for concurrent use.
type Engine struct {
	db      *gorm.DB
	catalog search.Catalog
	logger  Logger
	tracer  *tracer.Tracer
	metrics metrics.QueryRecorder
}

// Option configures an Engine.
type Option func(*Engine)

// WithTracer wraps every query in a span.
func WithTracer(t *tracer.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithMetrics reports query counts and latency.
func WithMetrics(m metrics.QueryRecorder) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine returns an Engine reading from db.
func NewEngine(db *gorm.DB, catalog search.Catalog, logger Logger, opts ...Option) *Engine {
	e := &Engine{db: db, catalog: catalog, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) searcher(projectID int64) *search.Searcher {
	return search.NewSearcher(e.db, e.catalog, projectID)
}

// observe runs fn inside a span and reports its outcome.
func (e *Engine) observe(ctx context.Context, name string, kind models.Kind, projectID int64, fn func(ctx context.Context) error) error {
	start := time.Now()
	ctx, span := e.tracer.StartSpan(ctx, name)
	defer span.End()
	e.tracer.SetAttributes(span, map[string]interface{}{
		"project": projectID,
		"kind":    string(kind),
	})

	err := fn(ctx)
	if err != nil {
		e.tracer.RecordErrorOnSpan(span, err)
	}
	if e.metrics != nil {
		e.metrics.ObserveQuery(string(kind), start, err)
	}
	return err
}

// collectFilterOps parses the flat filters against every type and drops
// duplicates that arise when several types declare the same attribute.
func collectFilterOps(f attribute.Filters, types []models.EntityType) ([]attribute.FilterOp, error) {
	seen := map[string]bool{}
	var ops []attribute.FilterOp
	for _, t := range types {
		parsed, err := attribute.ParseFilterOps(f, t.Schema())
		if err != nil {
			return nil, err
		}
		for _, op := range parsed {
			key := fmt.Sprintf("%s|%s|%v", op.Kind, op.Key, op.Value)
			if seen[key] {
				continue
			}
			seen[key] = true
			ops = append(ops, op)
		}
	}
	return ops, nil
}

// typeScope resolves the entity types a request filters against: the pinned
// type, or every type of the project.
func (e *Engine) typeScope(ctx context.Context, entity models.Entity, projectID int64, pinned *int64) ([]models.EntityType, error) {
	if pinned != nil {
		t, err := e.catalog.Type(ctx, entity, *pinned)
		if err != nil {
			return nil, err
		}
		return []models.EntityType{t}, nil
	}
	return e.catalog.Types(ctx, entity, projectID)
}

// attributeFilter assembles the flat attribute filter of a request.
func attributeFilter(f attribute.Filters, types []models.EntityType, floats []vector.Query, pinned bool) (search.AttributeFilter, error) {
	ops, err := collectFilterOps(f, types)
	if err != nil {
		return search.AttributeFilter{}, err
	}
	nulls, err := attribute.ParseNullFilters(f)
	if err != nil {
		return search.AttributeFilter{}, err
	}
	return search.AttributeFilter{Ops: ops, Nulls: nulls, Floats: floats, TypePinned: pinned}, nil
}

// unionByType applies af to qs once per type and keeps the rows any type
// matched. A single qualifying type replaces qs outright; none matches
// nothing.
func unionByType(ctx context.Context, s *search.Searcher, qs *queryset.QuerySet, entity models.Entity, types []models.EntityType, af search.AttributeFilter) (*queryset.QuerySet, error) {
	var subs []*queryset.QuerySet
	for _, t := range types {
		sub, applied, err := s.ApplyAttributeFilters(ctx, qs, entity, t, af)
		if err != nil {
			return nil, err
		}
		if applied {
			subs = append(subs, sub.Filter(entity.TypeColumn+" = ?", t.ID))
		}
	}

	switch len(subs) {
	case 0:
		return qs.Where(queryset.Nothing), nil
	case 1:
		return subs[0], nil
	}
	members := make([]clause.Expression, len(subs))
	for i, sub := range subs {
		members[i] = queryset.InQuery("id", sub.Values(s.DB(), "id"))
	}
	return qs.Where(queryset.Or(members...)), nil
}

// objectSearch applies the plain and the encoded search trees, in that order.
func objectSearch(ctx context.Context, s *search.Searcher, qs *queryset.QuerySet, entity models.Entity, plain *search.Node, encoded string) (*queryset.QuerySet, error) {
	var err error
	if plain != nil {
		if qs, err = s.Apply(ctx, qs, entity, *plain); err != nil {
			return nil, err
		}
	}
	if encoded != "" {
		n, err := search.DecodeEncoded(encoded)
		if err != nil {
			return nil, err
		}
		if qs, err = s.Apply(ctx, qs, entity, n); err != nil {
			return nil, err
		}
	}
	return qs, nil
}
