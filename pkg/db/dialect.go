package db

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/smallbiznis/logoforge/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var (
	ErrUnsupportedDialect = errors.New("unsupported_database_type")
	ErrMissingDatabase    = errors.New("database_location_required")
)

// Dialect picks the gorm driver for DATABASE_TYPE. Postgres is the production
// store; sqlite backs single-node and local runs.
func Dialect(cfg config.Config) (gorm.Dialector, error) {
	dsn, err := DSN(cfg)
	if err != nil {
		return nil, err
	}
	switch normalizeType(cfg.DBType) {
	case "postgres":
		return postgres.Open(dsn), nil
	case "mysql":
		return mysql.Open(dsn), nil
	default:
		return sqlite.Open(dsn), nil
	}
}

// DSN renders the connection string for the configured database.
func DSN(cfg config.Config) (string, error) {
	switch normalizeType(cfg.DBType) {
	case "postgres":
		if strings.TrimSpace(cfg.DBHost) == "" || strings.TrimSpace(cfg.DBName) == "" {
			return "", ErrMissingDatabase
		}
		sslMode := strings.TrimSpace(cfg.DBSSLMode)
		if sslMode == "" {
			sslMode = "disable"
		}
		return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
			cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort, sslMode), nil
	case "mysql":
		if strings.TrimSpace(cfg.DBHost) == "" || strings.TrimSpace(cfg.DBName) == "" {
			return "", ErrMissingDatabase
		}
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName), nil
	case "sqlite":
		path := strings.TrimSpace(cfg.DBPath)
		if path == "" {
			return "", ErrMissingDatabase
		}
		query := url.Values{}
		query.Set("_busy_timeout", "5000")
		query.Set("_foreign_keys", "on")
		if path != ":memory:" {
			query.Set("_journal_mode", "WAL")
		}
		return path + "?" + query.Encode(), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedDialect, cfg.DBType)
	}
}

func normalizeType(dbType string) string {
	dbType = strings.ToLower(strings.TrimSpace(dbType))
	if dbType == "postgresql" || dbType == "pgx" {
		return "postgres"
	}
	return dbType
}
