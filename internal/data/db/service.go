package db

import (
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/yungbote/membernode/internal/platform/logger"
)

// Service is a migrated database handle.
type Service interface {
	DB() *gorm.DB
	AutoMigrateAll() error
	Close() error
}

// Open selects the driver by name: "postgres" or "sqlite".
func Open(logg *logger.Logger, driver string) (Service, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "postgres", "postgresql", "pg":
		return NewPostgresService(logg)
	case "sqlite", "sqlite3":
		return NewSQLiteService(logg)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", driver)
	}
}
