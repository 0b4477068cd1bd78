package db

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/membernode/internal/domain"
	"github.com/yungbote/membernode/internal/platform/logger"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&types.Identifier{},
		&types.ScienceObject{},
		&types.Chain{},
		&types.ChainMember{},
		&types.EventLog{},
		&types.ObjectFormat{},
	)
}

// EnsureRevisionIndexes adds the composite indexes the chain walks and
// repair scans rely on. Statements are valid for both Postgres and SQLite.
func EnsureRevisionIndexes(db *gorm.DB) error {
	stmts := []struct{ name, sql string }{
		{"idx_chain_member_chain_identifier", `CREATE INDEX IF NOT EXISTS idx_chain_member_chain_identifier ON chain_member(chain_id, identifier_id);`},
		{"idx_science_object_head", `CREATE INDEX IF NOT EXISTS idx_science_object_head ON science_object(identifier_id) WHERE obsoleted_by_id IS NULL;`},
		{"idx_event_log_did_created_at", `CREATE INDEX IF NOT EXISTS idx_event_log_did_created_at ON event_log(did, created_at);`},
		{"idx_id_namespace_kind_did", `CREATE INDEX IF NOT EXISTS idx_id_namespace_kind_did ON id_namespace(kind, did);`},
	}
	for _, s := range stmts {
		if err := db.Exec(s.sql).Error; err != nil {
			return fmt.Errorf("create %s: %w", s.name, err)
		}
	}
	return nil
}

// DefaultFormats are registered on first migration so a fresh node accepts common uploads.
var DefaultFormats = []types.ObjectFormat{
	{FormatID: "application/octet-stream", FormatName: "Octet Stream", FormatType: types.FormatTypeData},
	{FormatID: "text/plain", FormatName: "Plain Text", FormatType: types.FormatTypeData},
	{FormatID: "text/csv", FormatName: "Comma Separated Values", FormatType: types.FormatTypeData},
	{FormatID: "application/json", FormatName: "JSON", FormatType: types.FormatTypeData},
	{FormatID: "application/netcdf", FormatName: "NetCDF", FormatType: types.FormatTypeData},
	{FormatID: "image/png", FormatName: "PNG Image", FormatType: types.FormatTypeData},
	{FormatID: "eml://ecoinformatics.org/eml-2.1.1", FormatName: "Ecological Metadata Language 2.1.1", FormatType: types.FormatTypeMetadata},
	{FormatID: "https://eml.ecoinformatics.org/eml-2.2.0", FormatName: "Ecological Metadata Language 2.2.0", FormatType: types.FormatTypeMetadata},
	{FormatID: "FGDC-STD-001-1998", FormatName: "FGDC Content Standard for Digital Geospatial Metadata", FormatType: types.FormatTypeMetadata},
	{FormatID: "http://www.isotc211.org/2005/gmd", FormatName: "ISO 19115", FormatType: types.FormatTypeMetadata},
	{FormatID: "http://www.openarchives.org/ore/terms", FormatName: "OAI-ORE Resource Map", FormatType: types.FormatTypeResource},
}

func EnsureDefaultFormats(db *gorm.DB) error {
	rows := make([]types.ObjectFormat, len(DefaultFormats))
	copy(rows, DefaultFormats)
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "format_id"}},
		DoNothing: true,
	}).Create(&rows).Error
}

// MigrateAll runs table, index and seed migrations.
func MigrateAll(db *gorm.DB) error {
	if err := AutoMigrateAll(db); err != nil {
		return err
	}
	if err := EnsureRevisionIndexes(db); err != nil {
		return err
	}
	return EnsureDefaultFormats(db)
}

func migrateWithLog(db *gorm.DB, log *logger.Logger) error {
	if err := AutoMigrateAll(db); err != nil {
		log.Error("Auto migration failed", "error", err)
		return err
	}
	if err := EnsureRevisionIndexes(db); err != nil {
		log.Error("Revision index migration failed", "error", err)
		return err
	}
	if err := EnsureDefaultFormats(db); err != nil {
		log.Error("Default format seeding failed", "error", err)
		return err
	}
	return nil
}
