package search

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/Aleph-Alpha/annotation-engine/v1/attribute"
	"github.com/Aleph-Alpha/annotation-engine/v1/models"
	"github.com/Aleph-Alpha/annotation-engine/v1/postgres"
)

// Catalog looks up the schema records the engine compiles against.
type Catalog interface {
	// Types returns the entity types of a project for a collection, in id order.
	Types(ctx context.Context, entity models.Entity, projectID int64) ([]models.EntityType, error)
	// Type returns one entity type. A missing type is attribute.ErrNotFound.
	Type(ctx context.Context, entity models.Entity, id int64) (models.EntityType, error)
	// Section returns a saved section. A missing section is attribute.ErrNotFound.
	Section(ctx context.Context, id int64) (models.Section, error)
}

type gormCatalog struct {
	db *gorm.DB
}

// NewCatalog returns a Catalog reading from db.
func NewCatalog(db *gorm.DB) Catalog {
	return &gormCatalog{db: db}
}

func (c *gormCatalog) Types(ctx context.Context, entity models.Entity, projectID int64) ([]models.EntityType, error) {
	var types []models.EntityType
	err := c.db.WithContext(ctx).
		Table(entity.TypeTable).
		Where("project_id = ?", projectID).
		Order("id").
		Find(&types).Error
	if err != nil {
		return nil, postgres.TranslateError(err)
	}
	return types, nil
}

func (c *gormCatalog) Type(ctx context.Context, entity models.Entity, id int64) (models.EntityType, error) {
	var t models.EntityType
	err := c.db.WithContext(ctx).Table(entity.TypeTable).Where("id = ?", id).Take(&t).Error
	if err != nil {
		return models.EntityType{}, notFound(err, "%s type %d not found", entity.Kind, id)
	}
	return t, nil
}

func (c *gormCatalog) Section(ctx context.Context, id int64) (models.Section, error) {
	var s models.Section
	if err := c.db.WithContext(ctx).Where("id = ?", id).Take(&s).Error; err != nil {
		return models.Section{}, notFound(err, "section %d not found", id)
	}
	return s, nil
}

func notFound(err error, format string, args ...interface{}) error {
	err = postgres.TranslateError(err)
	if errors.Is(err, postgres.ErrRecordNotFound) {
		return attribute.NotFoundf(format, args...)
	}
	return err
}

// MediaTypeIDs collects the distinct media type ids the given annotation
// types apply to, in first-seen order.
func MediaTypeIDs(types []models.EntityType) []int64 {
	seen := map[int64]bool{}
	var ids []int64
	for _, t := range types {
		for _, id := range t.MediaTypeIDs {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// ProjectSchema merges the attribute definitions of every type. The first
// declaration of a name wins.
func ProjectSchema(types []models.EntityType) attribute.Schema {
	schemas := make([]attribute.Schema, len(types))
	for i, t := range types {
		schemas[i] = t.Schema()
	}
	return attribute.Merge(schemas...)
}
