package db

import (
	"errors"
	"fmt"

	"docsign/internal/config"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type Store struct {
	DB *gorm.DB

	Certificates *CertificateRepository
	Signatures   *SignatureRepository
	Workflows    *WorkflowRepository
	AuditEvents  *AuditEventRepository
}

// NewStore opens postgres and applies pending migrations. An empty DSN yields
// a Store with a nil DB; callers fall back to the in-memory store.
func NewStore(cfg config.Config, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PostgresDSN == "" {
		logger.Warn("POSTGRES_DSN not set; starting in no-db mode")
		return &Store{}, nil
	}

	if cfg.MigrationsPath != "" {
		if err := RunMigrations(cfg.MigrationsPath, cfg.PostgresDSN); err != nil {
			return nil, err
		}
		logger.Info("migrations applied", zap.String("path", cfg.MigrationsPath))
	}

	gdb, err := gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return newStore(gdb), nil
}

func newStore(gdb *gorm.DB) *Store {
	return &Store{
		DB:           gdb,
		Certificates: NewCertificateRepository(gdb),
		Signatures:   NewSignatureRepository(gdb),
		Workflows:    NewWorkflowRepository(gdb),
		AuditEvents:  NewAuditEventRepository(gdb),
	}
}

func RunMigrations(path, dsn string) error {
	m, err := migrate.New("file://"+path, dsn)
	if err != nil {
		return fmt.Errorf("create migration instance: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
