package main

import (
	"log"
	"os"

	"travel-intel/internal/model"
	"travel-intel/pkg/database"

	"github.com/joho/godotenv"
)

func main() {
	// 1. Load Environment Variables
	if err := godotenv.Load(); err != nil {
		log.Println("Info: No .env file found, using system env")
	}

	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		log.Fatal("Error: DB_CONNECTION_STRING is not set")
	}

	// 2. Connect to Database using existing GORM helpers
	db, err := database.NewGormDBFromDSN(dsn)
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	log.Println("Starting dataset store migration...")

	// 3. AutoMigrate
	models := []interface{}{
		&model.DatasetVersion{},
		&model.DatasetDiff{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		log.Fatalf("Error: AutoMigrate failed: %v", err)
	}

	// 4. Post-Migration: Views
	postMigrationSQL := []string{
		// View: latest_datasets
		`CREATE OR REPLACE VIEW latest_datasets AS
		 SELECT DISTINCT ON (destination_id) destination_id, version_sequence, dataset_hash, produced_at
		 FROM dataset_versions
		 ORDER BY destination_id, version_sequence DESC;`,
	}
	for _, sql := range postMigrationSQL {
		if err := db.Exec(sql).Error; err != nil {
			log.Printf("Warn: Failed to execute post-migration SQL: %v", err)
		}
	}

	log.Println("✅ Success: Database migration completed successfully via GORM.")
}
