package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"branch-distance-service/internal/adapters/alert"
	"branch-distance-service/internal/adapters/store"
	"branch-distance-service/internal/config"
	"branch-distance-service/internal/domain"
	"branch-distance-service/internal/platform/db"
	"branch-distance-service/internal/services"

	"github.com/joho/godotenv"
)

// dbtool initializes the store schema and, with -load, runs a staged bulk
// import of fact rows from a JSON file (the backfill path).
func main() {
	loadPath := flag.String("load", "", "JSON file of fact rows to bulk-load via the staged write path")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found (using environment variables)")
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if strings.TrimSpace(databaseURL) == "" {
		log.Fatal("DATABASE_URL is required")
	}

	pool, err := db.Open(databaseURL)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	log.Println("Initializing store schema...")
	if err := store.InitSchema(pool); err != nil {
		log.Fatal(err)
	}
	log.Println("Schema ready.")

	if *loadPath == "" {
		return
	}

	facts, err := readFacts(*loadPath)
	if err != nil {
		log.Fatal(err)
	}

	storeTimeout, err := time.ParseDuration(config.Get("STORE_TIMEOUT", "6s"))
	if err != nil {
		log.Fatalf("parse STORE_TIMEOUT: %v", err)
	}
	backoff, err := time.ParseDuration(config.Get("WRITEBACK_RETRY_BACKOFF", "1s"))
	if err != nil {
		log.Fatalf("parse WRITEBACK_RETRY_BACKOFF: %v", err)
	}

	factStore := store.NewSQLFactStore(pool, storeTimeout)
	saver := services.NewWriteBack(factStore, alert.NopSink{}, backoff)

	log.Printf("Bulk loading %d facts...", len(facts))
	if err := saver.BulkSave(context.Background(), facts); err != nil {
		log.Fatalf("bulk load failed: %v", err)
	}
	log.Println("Bulk load complete.")
}

type factRow struct {
	BranchNumber        string   `json:"branchNumber"`
	ZipCode             string   `json:"zipCode"`
	DistanceMeters      *float64 `json:"distanceMeters"`
	BusinessTransitDays *int     `json:"businessTransitDays"`
	SaturdayDelivery    *bool    `json:"saturdayDelivery"`
}

func readFacts(path string) ([]domain.BranchFact, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read facts file: %w", err)
	}

	var rows []factRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("parse facts file %q: %w", path, err)
	}

	facts := make([]domain.BranchFact, 0, len(rows))
	for _, r := range rows {
		facts = append(facts, domain.BranchFact{
			BranchNumber:        r.BranchNumber,
			DestinationZip:      r.ZipCode,
			DistanceMeters:      r.DistanceMeters,
			BusinessTransitDays: r.BusinessTransitDays,
			SaturdayDelivery:    r.SaturdayDelivery,
		})
	}

	return facts, nil
}
