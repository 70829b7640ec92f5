package db

import (
	"database/sql"
	"fmt"
)

// ColumnType represents expected column schema
type ColumnType struct {
	Name     string
	DataType string
	Nullable bool
}

// TableSchema represents expected table structure
type TableSchema struct {
	Name          string
	Columns       []ColumnType
	UniqueIndexes []string
}

// SchemaGuard validates database schema matches expectations
type SchemaGuard struct {
	db *sql.DB
}

// NewSchemaGuard creates a new schema guard
func NewSchemaGuard(db *sql.DB) *SchemaGuard {
	return &SchemaGuard{db: db}
}

// ValidateTable validates a table's columns and unique indexes
func (sg *SchemaGuard) ValidateTable(schema TableSchema) error {
	query := `
		SELECT COLUMN_NAME, DATA_TYPE, IS_NULLABLE
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = DATABASE()
		AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION
	`

	rows, err := sg.db.Query(query, schema.Name)
	if err != nil {
		return fmt.Errorf("failed to query table schema for %s: %w", schema.Name, err)
	}
	defer rows.Close()

	actualColumns := make(map[string]ColumnType)
	for rows.Next() {
		var colName, dataType, isNullable string
		if err := rows.Scan(&colName, &dataType, &isNullable); err != nil {
			return fmt.Errorf("failed to scan column info: %w", err)
		}
		actualColumns[colName] = ColumnType{
			Name:     colName,
			DataType: dataType,
			Nullable: isNullable == "YES",
		}
	}

	if len(actualColumns) == 0 {
		return fmt.Errorf("table %s does not exist or has no columns", schema.Name)
	}

	for _, expectedCol := range schema.Columns {
		actualCol, exists := actualColumns[expectedCol.Name]
		if !exists {
			return fmt.Errorf("table %s missing expected column: %s", schema.Name, expectedCol.Name)
		}

		// Check data type (case insensitive, allowing for variations like varchar(191) vs varchar)
		if !matchesDataType(actualCol.DataType, expectedCol.DataType) {
			return fmt.Errorf("table %s column %s has type %s, expected %s",
				schema.Name, expectedCol.Name, actualCol.DataType, expectedCol.DataType)
		}
	}

	for _, index := range schema.UniqueIndexes {
		exists, err := sg.uniqueIndexExists(schema.Name, index)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("table %s missing unique index: %s", schema.Name, index)
		}
	}

	return nil
}

// uniqueIndexExists checks INFORMATION_SCHEMA.STATISTICS for a unique index.
// At-most-once session ingestion relies on uq_sessions_session_id, so its
// absence is a startup failure, not a runtime surprise.
func (sg *SchemaGuard) uniqueIndexExists(table, index string) (bool, error) {
	query := `
		SELECT COUNT(*)
		FROM INFORMATION_SCHEMA.STATISTICS
		WHERE TABLE_SCHEMA = DATABASE()
		AND TABLE_NAME = ?
		AND INDEX_NAME = ?
		AND NON_UNIQUE = 0
	`

	var count int
	if err := sg.db.QueryRow(query, table, index).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to query index %s on %s: %w", index, table, err)
	}
	return count > 0, nil
}

// matchesDataType checks if data types are compatible (handles varchar(n), decimal(n,m), etc.)
func matchesDataType(actual, expected string) bool {
	if actual == expected {
		return true
	}

	// Handle base type matching (e.g., varchar matches varchar(191))
	if len(actual) >= len(expected) && actual[:len(expected)] == expected {
		return true
	}

	return false
}

// ValidateTables validates multiple tables
func (sg *SchemaGuard) ValidateTables(schemas []TableSchema) error {
	for _, schema := range schemas {
		if err := sg.ValidateTable(schema); err != nil {
			return err
		}
	}
	return nil
}
