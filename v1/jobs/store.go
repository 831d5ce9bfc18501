package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Aleph-Alpha/annotation-engine/v1/models"
	"github.com/Aleph-Alpha/annotation-engine/v1/postgres"
)

// Store is the persistence the runner and packager need.
type Store interface {
	Algorithm(ctx context.Context, id int64) (*models.Algorithm, error)
	ProjectExists(ctx context.Context, id int64) (bool, error)
	IsMember(ctx context.Context, projectID, userID int64) (bool, error)
	// MissingMedia returns the ids in ids that do not exist.
	MissingMedia(ctx context.Context, ids []int64) ([]int64, error)
	Media(ctx context.Context, ids []int64) ([]models.Media, error)
	MediaAnnotations(ctx context.Context, mediaID int64) ([]models.Localization, []models.State, error)
	// Token returns the user's API token, creating one if needed.
	Token(ctx context.Context, userID int64) (string, error)

	MarkRunning(ctx context.Context, jobID int64, podName string) error
	SaveResult(ctx context.Context, result *models.AlgorithmResult) error
	SavePackage(ctx context.Context, pkg *models.Package) error
	// FinishJob releases the job record.
	FinishJob(ctx context.Context, jobID int64) error
}

// Database yields the current connection; *postgres.Postgres satisfies it.
type Database interface {
	DB() *gorm.DB
	Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type gormStore struct {
	db Database
}

// NewStore returns a Store on db.
func NewStore(db Database) Store {
	return &gormStore{db: db}
}

func (s *gormStore) tx(ctx context.Context) *gorm.DB {
	return s.db.DB().WithContext(ctx)
}

func (s *gormStore) Algorithm(ctx context.Context, id int64) (*models.Algorithm, error) {
	var a models.Algorithm
	if err := s.tx(ctx).First(&a, id).Error; err != nil {
		return nil, postgres.TranslateError(err)
	}
	return &a, nil
}

func (s *gormStore) ProjectExists(ctx context.Context, id int64) (bool, error) {
	return s.exists(ctx, &models.Project{}, "id = ?", id)
}

func (s *gormStore) IsMember(ctx context.Context, projectID, userID int64) (bool, error) {
	return s.exists(ctx, &models.Membership{}, "project_id = ? AND user_id = ?", projectID, userID)
}

func (s *gormStore) exists(ctx context.Context, model interface{}, cond string, args ...interface{}) (bool, error) {
	var n int64
	if err := s.tx(ctx).Model(model).Where(cond, args...).Limit(1).Count(&n).Error; err != nil {
		return false, postgres.TranslateError(err)
	}
	return n > 0, nil
}

func (s *gormStore) MissingMedia(ctx context.Context, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var found []int64
	if err := s.tx(ctx).Model(&models.Media{}).Where("id IN ?", ids).Pluck("id", &found).Error; err != nil {
		return nil, postgres.TranslateError(err)
	}
	have := make(map[int64]bool, len(found))
	for _, id := range found {
		have[id] = true
	}
	var missing []int64
	for _, id := range ids {
		if !have[id] {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func (s *gormStore) Media(ctx context.Context, ids []int64) ([]models.Media, error) {
	var media []models.Media
	if len(ids) == 0 {
		return media, nil
	}
	if err := s.tx(ctx).Where("id IN ?", ids).Order("id").Find(&media).Error; err != nil {
		return nil, postgres.TranslateError(err)
	}
	return media, nil
}

func (s *gormStore) MediaAnnotations(ctx context.Context, mediaID int64) ([]models.Localization, []models.State, error) {
	var locs []models.Localization
	if err := s.tx(ctx).Where("media_id = ? AND deleted = ?", mediaID, false).Order("id").Find(&locs).Error; err != nil {
		return nil, nil, postgres.TranslateError(err)
	}
	var states []models.State
	err := s.tx(ctx).
		Where("deleted = ? AND id IN (?)", false,
			s.tx(ctx).Table("state_media").Select("state_id").Where("media_id = ?", mediaID)).
		Order("id").
		Find(&states).Error
	if err != nil {
		return nil, nil, postgres.TranslateError(err)
	}
	return locs, states, nil
}

func (s *gormStore) Token(ctx context.Context, userID int64) (string, error) {
	var key string
	err := s.db.Transaction(ctx, func(tx *gorm.DB) error {
		var tok models.Token
		err := tx.Where("user_id = ?", userID).First(&tok).Error
		if err == nil {
			key = tok.Key
			return nil
		}
		if !errors.Is(postgres.TranslateError(err), postgres.ErrRecordNotFound) {
			return err
		}
		tok = models.Token{Key: uuid.NewString(), UserID: userID, Created: time.Now().UTC()}
		if err := tx.Create(&tok).Error; err != nil {
			return err
		}
		key = tok.Key
		return nil
	})
	if err != nil {
		return "", postgres.TranslateError(err)
	}
	return key, nil
}

func (s *gormStore) MarkRunning(ctx context.Context, jobID int64, podName string) error {
	err := s.tx(ctx).Model(&models.Job{}).Where("id = ?", jobID).Update("pod_name", podName).Error
	return postgres.TranslateError(err)
}

func (s *gormStore) SaveResult(ctx context.Context, result *models.AlgorithmResult) error {
	if err := s.tx(ctx).Create(result).Error; err != nil {
		return fmt.Errorf("failed to save algorithm result: %w", postgres.TranslateError(err))
	}
	return nil
}

func (s *gormStore) SavePackage(ctx context.Context, pkg *models.Package) error {
	if err := s.tx(ctx).Create(pkg).Error; err != nil {
		return fmt.Errorf("failed to save package: %w", postgres.TranslateError(err))
	}
	return nil
}

func (s *gormStore) FinishJob(ctx context.Context, jobID int64) error {
	return postgres.TranslateError(s.tx(ctx).Delete(&models.Job{}, jobID).Error)
}
