package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/Aleph-Alpha/annotation-engine/v1/attribute"
	"github.com/Aleph-Alpha/annotation-engine/v1/logger"
	"github.com/Aleph-Alpha/annotation-engine/v1/models"
	"github.com/Aleph-Alpha/annotation-engine/v1/queryset"
	"github.com/Aleph-Alpha/annotation-engine/v1/search"
	"github.com/Aleph-Alpha/annotation-engine/v1/vector"
)

type fakeCatalog struct {
	types    map[models.Kind][]models.EntityType
	sections map[int64]models.Section
}

func (c *fakeCatalog) Types(_ context.Context, entity models.Entity, _ int64) ([]models.EntityType, error) {
	return c.types[entity.Kind], nil
}

func (c *fakeCatalog) Type(_ context.Context, entity models.Entity, id int64) (models.EntityType, error) {
	for _, t := range c.types[entity.Kind] {
		if t.ID == id {
			return t, nil
		}
	}
	return models.EntityType{}, attribute.NotFoundf("%s type %d not found", entity.Kind, id)
}

func (c *fakeCatalog) Section(_ context.Context, id int64) (models.Section, error) {
	s, ok := c.sections[id]
	if !ok {
		return models.Section{}, attribute.NotFoundf("section %d not found", id)
	}
	return s, nil
}

type recorder struct {
	kinds []string
	errs  []error
}

func (r *recorder) ObserveQuery(kind string, _ time.Time, err error) {
	r.kinds = append(r.kinds, kind)
	r.errs = append(r.errs, err)
}

func defs(ds ...attribute.Definition) datatypes.JSONSlice[attribute.Definition] {
	return datatypes.JSONSlice[attribute.Definition](ds)
}

func int64p(v int64) *int64 { return &v }
func intp(v int) *int       { return &v }
func strp(v string) *string { return &v }

func newTestEngine(t *testing.T) (*Engine, *gorm.DB, *recorder) {
	t.Helper()
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN: "host=localhost user=test password=test dbname=test sslmode=disable",
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true})
	require.NoError(t, err)

	catalog := &fakeCatalog{
		types: map[models.Kind][]models.EntityType{
			models.KindLocalization: {
				{ID: 1, ProjectID: 7, AttributeTypes: defs(
					attribute.Definition{Name: "Species", DType: attribute.Enum},
					attribute.Definition{Name: "emb", DType: attribute.FloatArray, Size: 2},
				), MediaTypeIDs: []int64{30}},
				{ID: 2, ProjectID: 7, AttributeTypes: defs(
					attribute.Definition{Name: "Species", DType: attribute.String},
					attribute.Definition{Name: "count", DType: attribute.Int},
				), MediaTypeIDs: []int64{30, 31}},
			},
			models.KindState: {
				{ID: 3, ProjectID: 7, AttributeTypes: defs(attribute.Definition{Name: "Event", DType: attribute.String})},
			},
			models.KindMedia: {
				{ID: 30, ProjectID: 7, AttributeTypes: defs(attribute.Definition{Name: "camera", DType: attribute.String})},
				{ID: 31, ProjectID: 7},
			},
			models.KindLeaf: {
				{ID: 40, ProjectID: 7, AttributeTypes: defs(attribute.Definition{Name: "rank", DType: attribute.Int})},
			},
			models.KindFile: {
				{ID: 50, ProjectID: 7, AttributeTypes: defs(attribute.Definition{Name: "origin", DType: attribute.String})},
			},
		},
		sections: map[int64]models.Section{
			9: {ID: 9, ProjectID: 7, TatorUserSections: strp("9f0c")},
		},
	}
	rec := &recorder{}
	return NewEngine(db, catalog, logger.NewNop(), WithMetrics(rec)), db, rec
}

func render(db *gorm.DB, qs *queryset.QuerySet) string {
	return db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		var rows []map[string]interface{}
		return qs.Build(tx).Find(&rows)
	})
}

func TestAnnotations(t *testing.T) {
	ctx := context.Background()
	e, db, rec := newTestEngine(t)

	build := func(t *testing.T, kind models.Kind, p AnnotationParams) string {
		t.Helper()
		qs, err := e.Annotations(ctx, 7, kind, p)
		require.NoError(t, err)
		return render(db, qs)
	}

	t.Run("defaults", func(t *testing.T) {
		sql := build(t, models.KindLocalization, AnnotationParams{})
		assert.Contains(t, sql, "project_id = 7")
		assert.Contains(t, sql, "deleted = false")
		assert.Contains(t, sql, "variant_deleted = false")
		assert.Contains(t, sql, "ORDER BY id")
	})

	t.Run("show deleted variants", func(t *testing.T) {
		assert.NotContains(t, build(t, models.KindLocalization, AnnotationParams{ShowDeleted: true}), "variant_deleted")
	})

	t.Run("identifier filters", func(t *testing.T) {
		sql := build(t, models.KindLocalization, AnnotationParams{MediaID: []int64{5}, IDs: []int64{1, 2}, StateIDs: []int64{8}})
		assert.Contains(t, sql, "media_id IN (5)")
		assert.Contains(t, sql, "(id IN (1,2)) OR (id IN (SELECT state_localizations.localization_id FROM state_localizations WHERE state_localizations.state_id IN (8)))")

		sql = build(t, models.KindState, AnnotationParams{MediaIDs: []int64{5, 6}, LocalizationIDs: []int64{4}})
		assert.Contains(t, sql, "state_media.media_id IN (5,6)")
		assert.Contains(t, sql, "state_localizations.localization_id IN (4)")
	})

	t.Run("scalar filters", func(t *testing.T) {
		sql := build(t, models.KindLocalization, AnnotationParams{
			Version:     []int64{1, 2},
			ElementalID: strp("3F2504E0-4F89-11D3-9A0C-0305E82C3301"),
			Frame:       int64p(12),
			After:       int64p(100),
		})
		assert.Contains(t, sql, "version_id IN (1,2)")
		assert.Contains(t, sql, "elemental_id = '3f2504e0-4f89-11d3-9a0c-0305e82c3301'")
		assert.Contains(t, sql, "frame = 12")
		assert.Contains(t, sql, "id > 100")
	})

	t.Run("malformed elemental id", func(t *testing.T) {
		_, err := e.Annotations(ctx, 7, models.KindLocalization, AnnotationParams{ElementalID: strp("x'; DROP TABLE")})
		assert.True(t, errors.Is(err, attribute.ErrValidation))
	})

	t.Run("pinned type", func(t *testing.T) {
		sql := build(t, models.KindLocalization, AnnotationParams{
			Type:    int64p(2),
			Filters: attribute.Filters{Gt: []string{"count::3"}},
		})
		assert.Contains(t, sql, "casted_count > 3")
		assert.Contains(t, sql, "type_id = 2")
	})

	t.Run("unknown pinned type", func(t *testing.T) {
		_, err := e.Annotations(ctx, 7, models.KindLocalization, AnnotationParams{Type: int64p(99)})
		assert.True(t, errors.Is(err, attribute.ErrNotFound))
	})

	t.Run("union over types", func(t *testing.T) {
		sql := build(t, models.KindLocalization, AnnotationParams{
			Filters: attribute.Filters{Eq: []string{"Species::Fish"}},
		})
		assert.Contains(t, sql, "type_id = 1")
		assert.Contains(t, sql, "type_id = 2")
		assert.Contains(t, sql, ") OR (id IN (")
	})

	t.Run("single qualifying type replaces the set", func(t *testing.T) {
		sql := build(t, models.KindLocalization, AnnotationParams{
			Filters: attribute.Filters{Lt: []string{"count::3"}},
		})
		assert.Contains(t, sql, "casted_count < 3")
		assert.Contains(t, sql, "type_id = 2")
		assert.NotContains(t, sql, "type_id = 1")
	})

	t.Run("filters on undeclared attributes are ignored", func(t *testing.T) {
		sql := build(t, models.KindState, AnnotationParams{
			Filters: attribute.Filters{Eq: []string{"Species::Fish"}},
		})
		assert.NotContains(t, sql, "casted_")
		assert.NotContains(t, sql, "FALSE")
	})

	t.Run("disallowed operator", func(t *testing.T) {
		_, err := e.Annotations(ctx, 7, models.KindLocalization, AnnotationParams{
			Filters: attribute.Filters{Lt: []string{"Species::a"}},
		})
		var unsupported *attribute.UnsupportedOperatorError
		assert.True(t, errors.As(err, &unsupported))
	})

	t.Run("similarity without type", func(t *testing.T) {
		_, err := e.Annotations(ctx, 7, models.KindLocalization, AnnotationParams{
			FloatArray: []vector.Query{{Name: "emb", Center: []float32{1, 0}}},
		})
		assert.True(t, errors.Is(err, attribute.ErrValidation))
	})

	t.Run("similarity owns ordering", func(t *testing.T) {
		sql := build(t, models.KindLocalization, AnnotationParams{
			Type:       int64p(1),
			FloatArray: []vector.Query{{Name: "emb", Center: []float32{1, 0}, Order: vector.Desc}},
			SortBy:     []string{"$frame"},
		})
		assert.Contains(t, sql, "ORDER BY "+vector.Alias("emb")+" DESC")
		assert.NotContains(t, sql, "frame,")
		assert.NotContains(t, sql, "ORDER BY frame")
	})

	t.Run("undeclared vector keeps default ordering", func(t *testing.T) {
		sql := build(t, models.KindLocalization, AnnotationParams{
			Type:       int64p(1),
			FloatArray: []vector.Query{{Name: "missing", Center: []float32{1, 0}}},
			Start:      intp(0),
			Stop:       intp(5),
		})
		assert.NotContains(t, sql, vector.Alias("missing"))
		assert.Contains(t, sql, "ORDER BY id")
	})

	t.Run("section scope", func(t *testing.T) {
		sql := build(t, models.KindLocalization, AnnotationParams{Section: int64p(9)})
		assert.Contains(t, sql, `= '"9f0c"'`)
		assert.Contains(t, sql, "type_id = 30")
		assert.Contains(t, sql, "type_id = 31")

		_, err := e.Annotations(ctx, 7, models.KindLocalization, AnnotationParams{Section: int64p(10)})
		assert.True(t, errors.Is(err, attribute.ErrNotFound))
	})

	t.Run("related media filters", func(t *testing.T) {
		sql := build(t, models.KindLocalization, AnnotationParams{
			RelatedFilters: RelatedFilters{RelatedEq: []string{"camera::north"}},
		})
		assert.Contains(t, sql, `casted_camera = '"north"'`)
		assert.Contains(t, sql, "media_id IN (SELECT")
	})

	t.Run("encoded related search without matches", func(t *testing.T) {
		encoded, err := search.Encode(search.Leaf("camera", "eq", "south"))
		require.NoError(t, err)
		// dry-run sessions never return rows
		sql := build(t, models.KindLocalization, AnnotationParams{EncodedRelatedSearch: encoded})
		assert.Contains(t, sql, "FALSE")
	})

	t.Run("object search", func(t *testing.T) {
		n := search.Or(search.Leaf("Species", "icontains", "fi"), search.Leaf("$frame", "gte", 10))
		sql := build(t, models.KindLocalization, AnnotationParams{ObjectSearch: &n})
		assert.Contains(t, sql, `(attributes ->> 'Species') ILIKE '%fi%'`)
		assert.Contains(t, sql, "frame >= 10")
	})

	t.Run("related id", func(t *testing.T) {
		sql := build(t, models.KindState, AnnotationParams{RelatedID: []int64{3}})
		assert.Contains(t, sql, "SELECT state_localizations.state_id FROM state_localizations WHERE state_localizations.localization_id IN (3)")
	})

	t.Run("merge drops parents", func(t *testing.T) {
		sql := build(t, models.KindLocalization, AnnotationParams{Merge: true})
		assert.Contains(t, sql, `NOT (id IN (SELECT "localizations"."parent_id" FROM "localizations" WHERE`)
		assert.Contains(t, sql, "parent_id IS NOT NULL")
	})

	t.Run("sort and slice", func(t *testing.T) {
		sql := build(t, models.KindLocalization, AnnotationParams{
			SortBy: []string{"-$frame", "Species"},
			Start:  intp(2),
			Stop:   intp(5),
		})
		assert.Contains(t, sql, "ORDER BY frame DESC, attributes -> 'Species'")
		assert.Contains(t, sql, "LIMIT 3 OFFSET 2")
	})

	t.Run("unknown builtin sort key", func(t *testing.T) {
		_, err := e.Annotations(ctx, 7, models.KindLocalization, AnnotationParams{
			SortBy: []string{"$id; DELETE FROM localizations; --"},
		})
		assert.True(t, errors.Is(err, attribute.ErrValidation))
	})

	t.Run("not an annotation kind", func(t *testing.T) {
		_, err := e.Annotations(ctx, 7, models.KindMedia, AnnotationParams{})
		assert.True(t, errors.Is(err, attribute.ErrValidation))
	})

	assert.NotEmpty(t, rec.kinds)
	assert.Equal(t, "localization", rec.kinds[0])
}

func TestLeaves(t *testing.T) {
	ctx := context.Background()
	e, db, _ := newTestEngine(t)

	qs, err := e.Leaves(ctx, 7, LeafParams{Depth: intp(2), Name: strp("root"), Filters: attribute.Filters{Gte: []string{"rank::1"}}})
	require.NoError(t, err)
	sql := render(db, qs)
	assert.Contains(t, sql, "nlevel(path) = 2")
	assert.Contains(t, sql, "name = 'root'")
	assert.Contains(t, sql, "casted_rank >= 1")
	assert.Contains(t, sql, "ORDER BY id")

	empty := []int64{}
	qs, err = e.Leaves(ctx, 7, LeafParams{IDs: &empty})
	require.NoError(t, err)
	assert.Contains(t, render(db, qs), "FALSE")
}

func TestFiles(t *testing.T) {
	ctx := context.Background()
	e, db, _ := newTestEngine(t)

	qs, err := e.Files(ctx, 7, FileParams{Meta: int64p(50), Filters: attribute.Filters{Eq: []string{"origin::lab"}}, Stop: intp(10)})
	require.NoError(t, err)
	sql := render(db, qs)
	assert.Contains(t, sql, `casted_origin = '"lab"'`)
	assert.Contains(t, sql, "meta_id = 50")
	assert.Contains(t, sql, "ORDER BY COALESCE(id, id)")
	assert.Contains(t, sql, "LIMIT 10")

	qs, err = e.Files(ctx, 7, FileParams{FileID: []int64{1}, IDs: []int64{2}})
	require.NoError(t, err)
	assert.Contains(t, render(db, qs), "id IN (1,2)")
}

func TestSortBy(t *testing.T) {
	_, db, _ := newTestEngine(t)

	t.Run("default", func(t *testing.T) {
		qs, err := SortBy(queryset.New("states"), nil)
		require.NoError(t, err)
		assert.Contains(t, render(db, qs), "ORDER BY id")
	})

	t.Run("builtin columns", func(t *testing.T) {
		qs, err := SortBy(queryset.New("states"), []string{"$type", "-$created_datetime"})
		require.NoError(t, err)
		assert.Contains(t, render(db, qs), "ORDER BY type_id, created_datetime DESC")
	})

	t.Run("rejects unknown builtin", func(t *testing.T) {
		for _, key := range []string{"$id; DELETE FROM localizations; --", "-$nope", "$"} {
			qs, err := SortBy(queryset.New("localizations"), []string{key})
			assert.True(t, errors.Is(err, attribute.ErrValidation), key)
			assert.Nil(t, qs)
		}
	})

	t.Run("attribute keys are bound", func(t *testing.T) {
		qs, err := SortBy(queryset.New("states"), []string{"x'; DROP TABLE states; --"})
		require.NoError(t, err)
		assert.Contains(t, render(db, qs), `ORDER BY attributes -> 'x''; DROP TABLE states; --'`)
	})
}
