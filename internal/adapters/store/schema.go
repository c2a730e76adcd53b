package store

import (
	"database/sql"
	"fmt"
)

// InitSchema creates the fact, staging, and distribution center tables if
// they do not exist. The staging table deliberately has no primary key:
// a backfill may stage the same (branch, zip) more than once and the merge
// collapses duplicates.
func InitSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS branch_distance (
			branch_number TEXT NOT NULL,
			zip_code TEXT NOT NULL,
			distance_meters NUMERIC,
			business_transit_days INTEGER,
			saturday_delivery BOOLEAN,
			PRIMARY KEY (branch_number, zip_code)
		);`,
		`CREATE TABLE IF NOT EXISTS branch_distance_staging (
			branch_number TEXT NOT NULL,
			zip_code TEXT NOT NULL,
			distance_meters NUMERIC,
			business_transit_days INTEGER,
			saturday_delivery BOOLEAN
		);`,
		`CREATE TABLE IF NOT EXISTS distribution_center (
			branch_number TEXT PRIMARY KEY,
			latitude DOUBLE PRECISION,
			longitude DOUBLE PRECISION,
			address1 TEXT,
			city TEXT,
			state TEXT,
			zip TEXT
		);`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}

	return nil
}
