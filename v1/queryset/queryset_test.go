package queryset

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/Aleph-Alpha/annotation-engine/v1/attribute"
)

func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN: "host=localhost user=test password=test dbname=test sslmode=disable",
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true})
	require.NoError(t, err)
	return db
}

func render(db *gorm.DB, qs *QuerySet) string {
	return db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		var rows []map[string]interface{}
		return qs.Build(tx).Find(&rows)
	})
}

func intp(i int) *int { return &i }

func TestQuerySetBuild(t *testing.T) {
	db := dryRunDB(t)

	t.Run("plain filters", func(t *testing.T) {
		qs := New("localizations").
			Filter("project_id = ?", 7).
			Filter("deleted = ?", false).
			OrderBy("id")

		sql := render(db, qs)
		assert.Contains(t, sql, `FROM "localizations"`)
		assert.Contains(t, sql, "project_id = 7")
		assert.Contains(t, sql, "deleted = false")
		assert.Contains(t, sql, "ORDER BY id")
	})

	t.Run("projections render in a derived table", func(t *testing.T) {
		casts := NewCasts()
		alias, ok := casts.Add(attribute.Definition{Name: "length", DType: attribute.Float})
		require.True(t, ok)

		qs := New("localizations").WithCasts(casts).Filter(alias+" > ?", 2.5)
		sql := render(db, qs)
		assert.Contains(t, sql, "(SELECT localizations.*, (attributes -> 'length')::double precision AS casted_length")
		assert.Contains(t, sql, ") AS localizations")
		assert.Contains(t, sql, "casted_length > 2.5")
	})

	t.Run("applying the same cast twice projects once", func(t *testing.T) {
		def := attribute.Definition{Name: "Species", DType: attribute.Enum}
		first := NewCasts()
		first.Add(def)
		second := NewCasts()
		second.Add(def)
		second.Add(def)
		assert.Equal(t, 1, second.Len())

		qs := New("states").WithCasts(first).WithCasts(second)
		assert.Len(t, qs.Projections(), 1)
		assert.Equal(t, 1, strings.Count(render(db, qs), " AS "+attribute.CastAlias("Species")))
	})

	t.Run("slice is half open", func(t *testing.T) {
		sql := render(db, New("media").OrderBy("id").Slice(intp(2), intp(5)))
		assert.Contains(t, sql, "LIMIT 3")
		assert.Contains(t, sql, "OFFSET 2")

		sql = render(db, New("media").Slice(nil, intp(4)))
		assert.Contains(t, sql, "LIMIT 4")
		assert.NotContains(t, sql, "OFFSET")

		sql = render(db, New("media").Slice(intp(3), nil))
		assert.Contains(t, sql, "OFFSET 3")
		assert.NotContains(t, sql, "LIMIT")
	})

	t.Run("subquery operands", func(t *testing.T) {
		related := New("states").Filter("project_id = ?", 1)
		qs := New("localizations").Where(InQuery("id", New("state_localizations").
			Filter("state_id IN (?)", related.Values(db, "id")).
			Values(db, "localization_id")))

		sql := render(db, qs)
		assert.Contains(t, sql, `id IN (SELECT "state_localizations"."localization_id" FROM "state_localizations" WHERE state_id IN (SELECT "states"."id" FROM "states" WHERE project_id = 1))`)
	})

	t.Run("modifiers do not mutate the receiver", func(t *testing.T) {
		base := New("media")
		_ = base.Filter("id = ?", 1).OrderBy("id")
		assert.NotContains(t, render(db, base), "WHERE")
		assert.False(t, base.Ordered())
	})
}

func TestQuerySetCountWrapsSlice(t *testing.T) {
	db := dryRunDB(t)
	sql := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		var n int64
		return tx.Session(&gorm.Session{NewDB: true}).
			Table("(?) AS counted", New("media").Slice(nil, intp(2)).Build(tx)).
			Count(&n)
	})
	assert.Contains(t, sql, "SELECT count(*) FROM (SELECT * FROM \"media\" LIMIT 2) AS counted")

	n, err := New("media").Count(context.Background(), db)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestExpressions(t *testing.T) {
	db := dryRunDB(t)
	a := Raw("frame = ?", 1)
	b := Raw("version_id = ?", 2)

	assert.Nil(t, And())
	assert.Nil(t, Or(nil, nil))
	assert.Nil(t, Not(nil))
	assert.Equal(t, a, And(nil, a))
	assert.Equal(t, a, Or(a, nil))

	sql := render(db, New("localizations").Where(Not(Or(a, And(a, b)))))
	assert.Contains(t, sql, "NOT ((frame = 1) OR ((frame = 1) AND (version_id = 2)))")

	assert.Contains(t, render(db, New("media").Where(In("id", nil))), "WHERE FALSE")
	assert.Contains(t, render(db, New("media").Where(In("id", []int64{4, 5}))), "id IN (4,5)")
}
