package db

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	types "github.com/dipteshhh/learnease-backend/internal/domain"
	"github.com/dipteshhh/learnease-backend/internal/platform/logger"
)

type Config struct {
	// Driver is "postgres" or "sqlite".
	Driver string
	// DSN overrides the host/port/user fields when set.
	DSN      string
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string

	MaxOpenConns int
	MaxIdleConns int
}

type PostgresService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPostgresService(logg *logger.Logger, cfg Config) (*PostgresService, error) {
	serviceLog := logg.With("service", "PostgresService")

	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	dialector, err := Dialector(cfg)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLog,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", driverName(cfg), err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if driverName(cfg) == "sqlite" {
		// sqlite serializes writers; a single connection avoids SQLITE_BUSY on conditional updates.
		sqlDB.SetMaxOpenConns(1)
	} else {
		if cfg.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	}

	serviceLog.Info("Database connected", "driver", driverName(cfg))
	return &PostgresService{db: db, log: serviceLog}, nil
}

// Dialector builds the gorm dialector for cfg.
func Dialector(cfg Config) (gorm.Dialector, error) {
	switch driverName(cfg) {
	case "postgres":
		return postgres.Open(postgresDSN(cfg)), nil
	case "sqlite":
		dsn := strings.TrimSpace(cfg.DSN)
		if dsn == "" {
			dsn = "learnease.db"
		}
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func driverName(cfg Config) string {
	d := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if d == "" {
		return "postgres"
	}
	return d
}

func postgresDSN(cfg Config) string {
	if dsn := strings.TrimSpace(cfg.DSN); dsn != "" {
		return dsn
	}
	sslmode := cfg.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Name,
		sslmode,
	)
}

func (s *PostgresService) DB() *gorm.DB { return s.db }

// AutoMigrateAll migrates every model owned by the service.
func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(types.Models()...)
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating tables...")
	if err := AutoMigrateAll(s.db); err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	return nil
}

func (s *PostgresService) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
