package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"

	"github.com/Aleph-Alpha/annotation-engine/v1/attribute"
	"github.com/Aleph-Alpha/annotation-engine/v1/logger"
	"github.com/Aleph-Alpha/annotation-engine/v1/models"
	"github.com/Aleph-Alpha/annotation-engine/v1/postgres"
	"github.com/Aleph-Alpha/annotation-engine/v1/search"
	"github.com/Aleph-Alpha/annotation-engine/v1/vector"
)

var schemaDDL = []string{
	`CREATE EXTENSION IF NOT EXISTS vector`,
	`CREATE TABLE media_types (id bigint PRIMARY KEY, project_id bigint, name text, attribute_types jsonb, media_type_ids bigint[])`,
	`CREATE TABLE localization_types (id bigint PRIMARY KEY, project_id bigint, name text, attribute_types jsonb, media_type_ids bigint[])`,
	`CREATE TABLE state_types (id bigint PRIMARY KEY, project_id bigint, name text, attribute_types jsonb, media_type_ids bigint[])`,
	`CREATE TABLE sections (id bigint PRIMARY KEY, project_id bigint, name text, tator_user_sections text, object_search jsonb, related_object_search jsonb)`,
	`CREATE TABLE media (id bigint PRIMARY KEY, project_id bigint, type_id bigint, name text, object_key text, attributes jsonb DEFAULT '{}', deleted boolean DEFAULT false)`,
	`CREATE TABLE localizations (id bigint PRIMARY KEY, project_id bigint, type_id bigint, media_id bigint, version_id bigint, parent_id bigint,
		frame bigint DEFAULT 0, elemental_id uuid, attributes jsonb DEFAULT '{}', deleted boolean DEFAULT false, variant_deleted boolean DEFAULT false)`,
	`CREATE TABLE states (id bigint PRIMARY KEY, project_id bigint, type_id bigint, version_id bigint, parent_id bigint,
		frame bigint DEFAULT 0, elemental_id uuid, attributes jsonb DEFAULT '{}', deleted boolean DEFAULT false, variant_deleted boolean DEFAULT false)`,
	`CREATE TABLE state_media (state_id bigint, media_id bigint)`,
	`CREATE TABLE state_localizations (state_id bigint, localization_id bigint)`,
}

var seedSQL = []string{
	`INSERT INTO media_types VALUES (30, 7, 'video', '[{"name":"camera","dtype":"string"}]', NULL)`,
	`INSERT INTO localization_types VALUES
		(1, 7, 'box', '[{"name":"Species","dtype":"enum"},{"name":"emb","dtype":"float_array","size":2}]', '{30}'),
		(2, 7, 'dot', '[{"name":"Species","dtype":"string"},{"name":"count","dtype":"int"}]', '{30}')`,
	`INSERT INTO state_types VALUES (3, 7, 'track', '[{"name":"Event","dtype":"string"}]', '{30}')`,
	`INSERT INTO media (id, project_id, type_id, name, attributes) VALUES
		(100, 7, 30, 'a.mp4', '{"camera":"north","tator_user_sections":"s-north"}'),
		(101, 7, 30, 'b.mp4', '{"camera":"south"}')`,
	`INSERT INTO sections VALUES (9, 7, 'north', 's-north', NULL, NULL)`,
	// ten boxes on media 100 and 101, frames 0..9
	`INSERT INTO localizations (id, project_id, type_id, media_id, frame, attributes)
		SELECT g, 7, 1, CASE WHEN g % 2 = 0 THEN 100 ELSE 101 END, g - 1,
			jsonb_build_object('Species', CASE WHEN g <= 3 THEN 'Fish' ELSE 'Crab' END, 'emb', jsonb_build_array(g, 0))
		FROM generate_series(1, 10) AS g`,
	// a parent chain A <- B <- C and a dot
	`INSERT INTO localizations (id, project_id, type_id, media_id, parent_id, frame, attributes) VALUES
		(20, 7, 2, 100, NULL, 0, '{"Species":"Fish","count":1}'),
		(21, 7, 2, 100, 20, 0, '{"Species":"Fish","count":2}'),
		(22, 7, 2, 100, 21, 0, '{"Species":"Fish","count":3}')`,
	`INSERT INTO localizations (id, project_id, type_id, media_id, frame, deleted, attributes) VALUES
		(30, 7, 2, 100, 0, true, '{"Species":"Fish"}')`,
	`INSERT INTO states (id, project_id, type_id, attributes) VALUES (50, 7, 3, '{"Event":"spawn"}'), (51, 7, 3, '{}')`,
	`INSERT INTO state_media VALUES (50, 100), (51, 101)`,
	`INSERT INTO state_localizations VALUES (50, 1), (50, 2)`,
}

func setupDatabase(ctx context.Context, t *testing.T) *gorm.DB {
	t.Helper()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image: "pgvector/pgvector:pg16",
			Env: map[string]string{
				"POSTGRES_USER":     "testuser",
				"POSTGRES_PASSWORD": "testpass",
				"POSTGRES_DB":       "testdb",
			},
			ExposedPorts: []string{"5432/tcp"},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "5432")
	require.NoError(t, err)

	pg, err := postgres.NewPostgres(postgres.Config{Connection: postgres.Connection{
		Host: host, Port: port.Port(), User: "testuser", Password: "testpass", DbName: "testdb", SSLMode: "disable",
	}}, logger.NewNop())
	require.NoError(t, err)

	db := pg.DB()
	for _, stmt := range append(schemaDDL, seedSQL...) {
		require.NoError(t, db.Exec(stmt).Error, stmt)
	}
	return db
}

func TestQueryIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	db := setupDatabase(ctx, t)
	e := NewEngine(db, search.NewCatalog(db), logger.NewNop())

	ids := func(t *testing.T, kind models.Kind, p AnnotationParams) []int64 {
		t.Helper()
		got, err := e.AnnotationIDs(ctx, 7, kind, p)
		require.NoError(t, err)
		return got
	}

	t.Run("half open slice", func(t *testing.T) {
		got := ids(t, models.KindLocalization, AnnotationParams{Type: int64p(1), Start: intp(2), Stop: intp(5)})
		assert.Equal(t, []int64{3, 4, 5}, got)
	})

	t.Run("count honours filters", func(t *testing.T) {
		n, err := e.CountAnnotations(ctx, 7, models.KindLocalization, AnnotationParams{
			Filters: attribute.Filters{Eq: []string{"Species::Fish"}},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(6), n)
	})

	t.Run("merge keeps the newest variant", func(t *testing.T) {
		got := ids(t, models.KindLocalization, AnnotationParams{Type: int64p(2), Merge: true})
		assert.Equal(t, []int64{22}, got)
	})

	t.Run("vector similarity", func(t *testing.T) {
		upper := 2.0
		got := ids(t, models.KindLocalization, AnnotationParams{
			Type:       int64p(1),
			FloatArray: []vector.Query{{Name: "emb", Center: []float32{5, 0}, UpperBound: &upper}},
		})
		require.Len(t, got, 5)
		assert.Equal(t, int64(5), got[0])
		assert.ElementsMatch(t, []int64{3, 4, 5, 6, 7}, got)
	})

	t.Run("section scope", func(t *testing.T) {
		got := ids(t, models.KindLocalization, AnnotationParams{Type: int64p(1), Section: int64p(9)})
		assert.Equal(t, []int64{2, 4, 6, 8, 10}, got)
	})

	t.Run("related media filter", func(t *testing.T) {
		got := ids(t, models.KindState, AnnotationParams{RelatedFilters: RelatedFilters{RelatedEq: []string{"camera::south"}}})
		assert.Equal(t, []int64{51}, got)
	})

	t.Run("encoded related search", func(t *testing.T) {
		encoded, err := search.Encode(search.Leaf("camera", "eq", "north"))
		require.NoError(t, err)
		got := ids(t, models.KindState, AnnotationParams{EncodedRelatedSearch: encoded})
		assert.Equal(t, []int64{50}, got)

		encoded, err = search.Encode(search.Leaf("camera", "eq", "east"))
		require.NoError(t, err)
		assert.Empty(t, ids(t, models.KindState, AnnotationParams{EncodedRelatedSearch: encoded}))
	})

	t.Run("states through localizations", func(t *testing.T) {
		assert.Equal(t, []int64{50}, ids(t, models.KindState, AnnotationParams{LocalizationIDs: []int64{2}}))
		assert.Equal(t, []int64{1, 2}, ids(t, models.KindLocalization, AnnotationParams{StateIDs: []int64{50}}))
	})

	t.Run("null filter", func(t *testing.T) {
		got := ids(t, models.KindState, AnnotationParams{Type: int64p(3), Filters: attribute.Filters{Null: []string{"Event::true"}}})
		assert.Equal(t, []int64{51}, got)
	})

	t.Run("related search scores media", func(t *testing.T) {
		s := search.NewSearcher(db, search.NewCatalog(db), 7)
		media, err := s.RelatedSearch(ctx, s.Base(models.MustEntity(models.KindMedia)), search.Leaf("Species", "eq", "Fish"))
		require.NoError(t, err)

		var rows []struct {
			ID       int64
			Incident int64
		}
		require.NoError(t, media.OrderBy("id").Find(ctx, db, &rows))
		require.Len(t, rows, 2)
		// media 100 holds box 2 and the three dots, media 101 boxes 1 and 3
		assert.Equal(t, int64(100), rows[0].ID)
		assert.Equal(t, int64(3), rows[0].Incident)
		assert.Equal(t, int64(101), rows[1].ID)
		assert.Equal(t, int64(2), rows[1].Incident)
	})
}

