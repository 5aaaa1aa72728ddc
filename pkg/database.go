package pkg

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/opencourse/exam-service/internal/config"
	"github.com/opencourse/exam-service/internal/models"
)

// InitDatabase opens the PostgreSQL connection and runs migrations.
func InitDatabase(cfg *config.Config) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		// TranslateError maps driver errors to gorm sentinels; the
		// submission repository relies on gorm.ErrDuplicatedKey.
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	}
	if cfg.Environment == "development" {
		gormConfig.Logger = gormlogger.Default.LogMode(gormlogger.Info)
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := migrate(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

func migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Exam{},
		&models.Question{},
		&models.Submission{},
		&models.Answer{},
		&models.Course{},
		&models.Enrollment{},
	); err != nil {
		return err
	}

	// Partial unique index: at most one in_progress submission per
	// (exam, student) pair. The attempt-limit transaction relies on a
	// concurrent insert failing here.
	return db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_submissions_active
		ON submissions (exam_id, student_id)
		WHERE status = 'in_progress'`).Error
}
