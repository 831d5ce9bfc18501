package search

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Aleph-Alpha/annotation-engine/v1/attribute"
	"github.com/Aleph-Alpha/annotation-engine/v1/models"
	"github.com/Aleph-Alpha/annotation-engine/v1/queryset"
)

// IncidentAlias is the projected column holding how many related annotations
// matched a media row.
const IncidentAlias = "incident"

// relatedParallelism bounds the concurrent existence checks of a related search.
const relatedParallelism = 4

// Searcher compiles search trees for one project.
type Searcher struct {
	db      *gorm.DB
	catalog Catalog
	project int64
}

// NewSearcher returns a Searcher over projectID.
func NewSearcher(db *gorm.DB, catalog Catalog, projectID int64) *Searcher {
	return &Searcher{db: db, catalog: catalog, project: projectID}
}

func (s *Searcher) DB() *gorm.DB     { return s.db }
func (s *Searcher) Catalog() Catalog { return s.catalog }
func (s *Searcher) ProjectID() int64 { return s.project }

// Base is the project's live rows of entity. The variant_deleted flag is
// left to the caller.
func (s *Searcher) Base(entity models.Entity) *queryset.QuerySet {
	return queryset.New(entity.Table).
		Filter("project_id = ?", s.project).
		Filter("deleted = ?", false)
}

// Compiler returns a compiler for entity whose schema merges every entity
// type of the project.
func (s *Searcher) Compiler(ctx context.Context, entity models.Entity) (*Compiler, error) {
	types, err := s.catalog.Types(ctx, entity, s.project)
	if err != nil {
		return nil, err
	}
	return s.CompilerFor(entity, ProjectSchema(types)), nil
}

// CompilerFor returns a compiler for entity resolving against schema.
func (s *Searcher) CompilerFor(entity models.Entity, schema attribute.Schema) *Compiler {
	return &Compiler{searcher: s, entity: entity, schema: schema}
}

// Apply compiles n against the project schema of entity and filters qs by it.
func (s *Searcher) Apply(ctx context.Context, qs *queryset.QuerySet, entity models.Entity, n Node) (*queryset.QuerySet, error) {
	c, err := s.Compiler(ctx, entity)
	if err != nil {
		return nil, err
	}
	return c.Apply(ctx, qs, n)
}

// ScopeSection narrows a media set to what section selects: its section path
// first, then its media search, then its related annotation search.
func (s *Searcher) ScopeSection(ctx context.Context, media *queryset.QuerySet, section models.Section) (*queryset.QuerySet, error) {
	if section.TatorUserSections != nil && *section.TatorUserSections != "" {
		media = SectionPath(media, *section.TatorUserSections)
	}

	if section.HasObjectSearch() {
		n, err := Decode(section.ObjectSearch)
		if err != nil {
			return nil, err
		}
		if media, err = s.Apply(ctx, media, models.MustEntity(models.KindMedia), n); err != nil {
			return nil, err
		}
	}

	if section.HasRelatedObjectSearch() {
		n, err := Decode(section.RelatedObjectSearch)
		if err != nil {
			return nil, err
		}
		if media, err = s.RelatedSearch(ctx, media, n); err != nil {
			return nil, err
		}
	}
	return media, nil
}

// SectionPath keeps the media whose section grouping attribute equals path.
func SectionPath(media *queryset.QuerySet, path string) *queryset.QuerySet {
	casts := queryset.NewCasts()
	alias, _ := casts.Add(attribute.Definition{Name: attribute.SectionsKey, DType: attribute.String})
	return media.WithCasts(casts).Filter(alias+" = ?", attribute.QuoteJSON(path))
}

type relatedMatch struct {
	entity models.Entity
	qs     *queryset.QuerySet
}

// relatedMatches evaluates n against every state and localization type of
// the project and returns the per-type sets that are not empty, states
// first and then in type id order.
func (s *Searcher) relatedMatches(ctx context.Context, n Node) ([]relatedMatch, error) {
	var candidates []relatedMatch
	for _, kind := range models.Annotations {
		entity := models.MustEntity(kind)
		types, err := s.catalog.Types(ctx, entity, s.project)
		if err != nil {
			return nil, err
		}
		if len(types) == 0 {
			continue
		}
		compiler := s.CompilerFor(entity, ProjectSchema(types))
		for _, t := range types {
			qs := s.Base(entity).
				Filter(entity.TypeColumn+" = ?", t.ID).
				Filter("variant_deleted = ?", false)
			if qs, err = compiler.Apply(ctx, qs, n); err != nil {
				return nil, err
			}
			candidates = append(candidates, relatedMatch{entity: entity, qs: qs})
		}
	}

	found := make([]bool, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(relatedParallelism)
	for i := range candidates {
		i := i
		g.Go(func() error {
			ok, err := candidates[i].qs.Exists(gctx, s.db)
			found[i] = ok
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	matches := candidates[:0]
	for i, c := range candidates {
		if found[i] {
			matches = append(matches, c)
		}
	}
	return matches, nil
}

// RelatedSearch keeps the media owning at least one state or localization
// that satisfies n, and projects IncidentAlias: the largest number of
// matching annotations of any one type on that media.
func (s *Searcher) RelatedSearch(ctx context.Context, media *queryset.QuerySet, n Node) (*queryset.QuerySet, error) {
	matches, err := s.relatedMatches(ctx, n)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return media.Where(queryset.Nothing).Project(queryset.Projection{Alias: IncidentAlias, SQL: "0"}), nil
	}

	members := make([]clause.Expression, 0, len(matches))
	scores := make([]string, 0, len(matches))
	var vars []interface{}
	for _, m := range matches {
		table, rowColumn, mediaColumn, _ := m.entity.MediaLink()
		members = append(members, queryset.Raw(
			fmt.Sprintf("id IN (SELECT %[1]s.%[3]s FROM %[1]s WHERE %[1]s.%[2]s IN (?))", table, rowColumn, mediaColumn),
			m.qs.Values(s.db, "id"),
		))
		scores = append(scores, fmt.Sprintf(
			"(SELECT count(*) FROM %[1]s WHERE %[1]s.%[2]s IN (?) AND %[1]s.%[3]s = media.id GROUP BY %[1]s.%[3]s)",
			table, rowColumn, mediaColumn,
		))
		vars = append(vars, m.qs.Values(s.db, "id"))
	}

	score := scores[0]
	if len(scores) > 1 {
		score = "GREATEST(" + strings.Join(scores, ", ") + ")"
	}
	return media.
		Where(queryset.Or(members...)).
		Project(queryset.Projection{Alias: IncidentAlias, SQL: score, Vars: vars}), nil
}
