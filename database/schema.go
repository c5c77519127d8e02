package database

import (
	"database/sql"
	"fmt"

	"github.com/apex/log"
)

// InitSchema creates the necessary database tables if they don't exist
func InitSchema(db *sql.DB) error {
	log.Info("Initializing report-workflow-service database schema...")

	reportsTableSQL := `
	CREATE TABLE IF NOT EXISTS reports(
		id VARCHAR(36) NOT NULL,
		category VARCHAR(32) NOT NULL,
		priority VARCHAR(16) NOT NULL,
		status VARCHAR(32) NOT NULL,
		title VARCHAR(200) NOT NULL,
		description TEXT,
		latitude DOUBLE NOT NULL DEFAULT 0,
		longitude DOUBLE NOT NULL DEFAULT 0,
		address VARCHAR(300) NOT NULL,
		district VARCHAR(100) NOT NULL,
		municipality VARCHAR(100) NOT NULL DEFAULT '',
		ward VARCHAR(100) NOT NULL DEFAULT '',
		department VARCHAR(100) NOT NULL DEFAULT '',
		reported_by VARCHAR(36) NOT NULL,
		assigned_to VARCHAR(36) NOT NULL DEFAULT '',
		assigned_department VARCHAR(100) NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		status_changed_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		resolved_at TIMESTAMP NULL DEFAULT NULL,
		version BIGINT NOT NULL DEFAULT 1,
		PRIMARY KEY (id),
		INDEX district_index (district),
		INDEX municipality_index (district, municipality),
		INDEX status_index (status),
		INDEX assigned_to_index (assigned_to),
		INDEX reported_by_index (reported_by),
		INDEX status_changed_index (status, status_changed_at)
	)`

	if _, err := db.Exec(reportsTableSQL); err != nil {
		return fmt.Errorf("failed to create reports table: %w", err)
	}
	log.Info("Reports table created/verified")

	historyTableSQL := `
	CREATE TABLE IF NOT EXISTS report_history(
		id BIGINT NOT NULL AUTO_INCREMENT,
		report_id VARCHAR(36) NOT NULL,
		kind VARCHAR(32) NOT NULL,
		status VARCHAR(32) NOT NULL,
		actor_id VARCHAR(36) NOT NULL,
		actor_role VARCHAR(32) NOT NULL,
		notes TEXT,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (id),
		INDEX report_id_index (report_id)
	)`

	if _, err := db.Exec(historyTableSQL); err != nil {
		return fmt.Errorf("failed to create report_history table: %w", err)
	}
	log.Info("Report_history table created/verified")

	staffTableSQL := `
	CREATE TABLE IF NOT EXISTS staff(
		id VARCHAR(36) NOT NULL,
		name VARCHAR(256) NOT NULL,
		email VARCHAR(256) NOT NULL DEFAULT '',
		role VARCHAR(32) NOT NULL,
		district VARCHAR(100) NOT NULL DEFAULT '',
		municipality VARCHAR(100) NOT NULL DEFAULT '',
		ward VARCHAR(100) NOT NULL DEFAULT '',
		department VARCHAR(100) NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (id),
		INDEX staff_district_index (district),
		INDEX staff_municipality_index (district, municipality)
	)`

	if _, err := db.Exec(staffTableSQL); err != nil {
		return fmt.Errorf("failed to create staff table: %w", err)
	}
	log.Info("Staff table created/verified")

	addFKConstraints(db)

	log.Info("Report-workflow-service database schema initialization completed")
	return nil
}

// addFKConstraints adds foreign key constraints for referential integrity
func addFKConstraints(db *sql.DB) {
	var count int
	err := db.QueryRow(`
		SELECT COUNT(*)
		FROM information_schema.TABLE_CONSTRAINTS
		WHERE CONSTRAINT_SCHEMA = DATABASE()
		AND CONSTRAINT_NAME = 'fk_report_history_report_id'
	`).Scan(&count)

	if err != nil {
		log.Warnf("Could not check for existing foreign key constraints: %v", err)
		return
	}

	if count == 0 {
		_, err := db.Exec(`
			ALTER TABLE report_history
			ADD CONSTRAINT fk_report_history_report_id
			FOREIGN KEY (report_id) REFERENCES reports(id) ON DELETE CASCADE
		`)
		if err != nil {
			log.Warnf("Could not add foreign key constraint for report_history: %v", err)
		} else {
			log.Info("Added foreign key constraint for report_history")
		}
	}
}
