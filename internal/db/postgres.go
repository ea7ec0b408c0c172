package db

import (
  "fmt"
  "time"
  "gorm.io/driver/postgres"
  "gorm.io/gorm"
  "github.com/moveatlas/moveatlas-backend/internal/types"
  "github.com/moveatlas/moveatlas-backend/internal/utils"
  "github.com/moveatlas/moveatlas-backend/internal/platform/logger"
)

type PostgresService struct {
  db *gorm.DB
  log *logger.Logger
}

func NewPostgresService(log *logger.Logger) (*PostgresService, error) {
  serviceLog := log.With("service", "PostgresService")

  log.Info("Loading environment variables...")
  postgresHost := utils.GetEnv("POSTGRES_HOST", "localhost", log)
  postgresPort := utils.GetEnv("POSTGRES_PORT", "5432", log)
  postgresUser := utils.GetEnv("POSTGRES_USER", "postgres", log)
  postgresPassword := utils.GetEnv("POSTGRES_PASSWORD", "", log)
  postgresName := utils.GetEnv("POSTGRES_NAME", "moveatlas", log)
  postgresSSLMode := utils.GetEnv("POSTGRES_SSLMODE", "disable", log)
  log.Debug("Environment variables loaded")

  dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", postgresUser, postgresPassword, postgresHost, postgresPort, postgresName, postgresSSLMode)

  log.Info("Connecting to Postgres...")
  db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
    DisableForeignKeyConstraintWhenMigrating: true,
  })
  if err != nil {
    log.Error("Failed to connect to Postgres", "error", err)
    return nil, fmt.Errorf("Failed to connect to Postgres: %w", err)
  }

  // Idle connections are recycled well inside typical proxy/firewall drop
  // windows so long-lived pipelines survive transient disconnects.
  sqlDB, err := db.DB()
  if err != nil {
    return nil, fmt.Errorf("Failed to access sql.DB: %w", err)
  }
  sqlDB.SetMaxOpenConns(utils.GetEnvAsInt("POSTGRES_MAX_OPEN_CONNS", 20, log))
  sqlDB.SetMaxIdleConns(utils.GetEnvAsInt("POSTGRES_MAX_IDLE_CONNS", 10, log))
  sqlDB.SetConnMaxIdleTime(60 * time.Second)

  if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
    log.Error("Failed to enable uuid-ossp extension", "error", err)
    return nil, fmt.Errorf("Failed to enable uuid-ossp extension: %w", err)
  }
  log.Info("uuid-ossp extension enabled")

  return &PostgresService{db: db, log: serviceLog}, nil
}

func (s *PostgresService) AutoMigrateAll() error {
  s.log.Info("Auto migrating postgres tables...")
  err := s.db.AutoMigrate(
    &types.Exercise{},
    &types.WorkoutRoutine{},
    &types.IngestJob{},
    &types.StoryCache{},
  )
  if err != nil {
    s.log.Error("Auto migration failed for postgres tables", "error", err)
    return err
  }
  return nil
}

func (s *PostgresService) DB() *gorm.DB {
  return s.db
}
