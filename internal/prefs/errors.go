package prefs

import "codeberg.org/mutker/ventilator/internal/errors"

const (
	// Configuration Errors
	ErrInvalidDBPath = errors.ErrorCode("prefs_invalid_db_path")
	ErrInvalidScope  = errors.ErrorCode("prefs_invalid_scope")

	// Schema Errors
	ErrSchemaInitFailed       = errors.ErrorCode("prefs_schema_init_failed")
	ErrSchemaValidationFailed = errors.ErrorCode("prefs_schema_validation_failed")
	ErrSchemaMigrationFailed  = errors.ErrorCode("prefs_schema_migration_failed")
	ErrSchemaTooNew           = errors.ErrorCode("prefs_schema_too_new")

	// Storage Errors
	ErrStorageInit   = errors.ErrorCode("prefs_storage_init_failed")
	ErrStorageAccess = errors.ErrorCode("prefs_storage_access_failed")
	ErrStorageClose  = errors.ErrorCode("prefs_storage_close_failed")

	// Value Errors
	ErrInvalidValue    = errors.ErrorCode("prefs_invalid_value")
	ErrUnsupportedType = errors.ErrorCode("prefs_unsupported_type")
)
