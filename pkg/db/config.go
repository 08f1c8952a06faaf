package db

import (
	"strings"
	"time"

	"github.com/smallbiznis/warrantyhub/internal/config"
)

const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
)

// Config describes the connection pool. Durations are already converted from
// the seconds the environment carries.
type Config struct {
	Type            string
	Host            string
	Port            string
	Name            string
	User            string
	Password        string
	SSLMode         string
	MaxIdleConn     int
	MaxOpenConn     int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// ConfigFrom extracts the database settings from the application config.
func ConfigFrom(cfg config.Config) Config {
	return Config{
		Type:            normalizeDriver(cfg.DBType),
		Host:            cfg.DBHost,
		Port:            cfg.DBPort,
		Name:            cfg.DBName,
		User:            cfg.DBUser,
		Password:        cfg.DBPassword,
		SSLMode:         cfg.DBSSLMode,
		MaxIdleConn:     cfg.DBMaxIdleConn,
		MaxOpenConn:     cfg.DBMaxOpenConn,
		ConnMaxLifetime: time.Duration(cfg.DBConnMaxLifetime) * time.Second,
		ConnMaxIdleTime: time.Duration(cfg.DBConnMaxIdleTime) * time.Second,
	}
}

// normalizeDriver accepts the common aliases operators put in DATABASE_TYPE.
func normalizeDriver(raw string) string {
	switch v := strings.ToLower(strings.TrimSpace(raw)); v {
	case "postgresql", "pg", "pgx":
		return DriverPostgres
	case "sqlite3":
		return DriverSQLite
	case "mariadb":
		return DriverMySQL
	default:
		return v
	}
}
