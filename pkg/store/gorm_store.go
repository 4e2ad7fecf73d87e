package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"shotreview/pkg/domain"
)

const migrateLockID int64 = 51728194

// GormStore implements RecordStore using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&ScreenshotModel{}, &TagModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// SaveScreenshot inserts or updates a screenshot record.
func (s *GormStore) SaveScreenshot(ctx context.Context, shot domain.Screenshot) error {
	model, err := screenshotToModel(shot)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "job_id"}, {Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"image_ref", "storage_key", "comments", "tag_ids", "is_resolved", "is_cloud_stored", "updated_at",
		}),
	}).Create(&model).Error
}

// DeleteScreenshot removes one record.
func (s *GormStore) DeleteScreenshot(ctx context.Context, jobID string, id int64) error {
	return s.db.WithContext(ctx).Where("job_id = ? AND id = ?", jobID, id).Delete(&ScreenshotModel{}).Error
}

// DeleteJob removes every record of a job.
func (s *GormStore) DeleteJob(ctx context.Context, jobID string) error {
	return s.db.WithContext(ctx).Where("job_id = ?", jobID).Delete(&ScreenshotModel{}).Error
}

// ListScreenshots returns a job's records, newest first.
func (s *GormStore) ListScreenshots(ctx context.Context, jobID string) ([]domain.Screenshot, error) {
	var models []ScreenshotModel
	if err := s.db.WithContext(ctx).Where("job_id = ?", jobID).Order("created_at desc, id desc").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Screenshot, 0, len(models))
	for _, m := range models {
		shot, err := screenshotFromModel(m)
		if err != nil {
			return nil, err
		}
		out = append(out, shot)
	}
	return out, nil
}

// SaveTag inserts or updates a catalog entry.
func (s *GormStore) SaveTag(ctx context.Context, t domain.Tag) error {
	model := tagToModel(t)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "color", "client_visible"}),
	}).Create(&model).Error
}

// DeleteTag removes a catalog entry.
func (s *GormStore) DeleteTag(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Delete(&TagModel{}, "id = ?", id).Error
}

// ListTags returns the catalog in creation order.
func (s *GormStore) ListTags(ctx context.Context) ([]domain.Tag, error) {
	var models []TagModel
	if err := s.db.WithContext(ctx).Order("created_at asc, id asc").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Tag, 0, len(models))
	for _, m := range models {
		out = append(out, tagFromModel(m))
	}
	return out, nil
}

// Close closes the underlying pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
