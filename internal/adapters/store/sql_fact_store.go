package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"branch-distance-service/internal/domain"
	"branch-distance-service/internal/platform/obs"
)

// SQLFactStore is the Postgres-backed gateway for branch distance/transit
// facts. Every call carries its own timeout; no transaction state outlives
// a single method call.
type SQLFactStore struct {
	DB      *sql.DB
	Timeout time.Duration
}

func NewSQLFactStore(db *sql.DB, timeout time.Duration) *SQLFactStore {
	if timeout <= 0 {
		timeout = 6 * time.Second
	}
	return &SQLFactStore{DB: db, Timeout: timeout}
}

// GetFacts reads stored facts for one destination and many branches in a
// single batched query. Branches without a row are absent from the result;
// a store failure is returned, never an empty slice, so callers can tell
// "no data" from "could not check".
func (s *SQLFactStore) GetFacts(
	ctx context.Context,
	destinationZip string,
	branchNumbers []string,
) (_ []domain.BranchFact, err error) {
	defer obs.Time(ctx, "store.GetFacts")(&err)

	if s.DB == nil {
		return nil, errors.New("fact store: db is nil")
	}
	if destinationZip == "" {
		return nil, errors.New("get facts: destination zip must not be empty")
	}

	uniq := dedupe(branchNumbers)
	if len(uniq) == 0 {
		return []domain.BranchFact{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	q := `
	SELECT branch_number, distance_meters, business_transit_days, saturday_delivery
	FROM branch_distance
	WHERE zip_code = $1
		AND branch_number = ANY($2::text[]);
	`

	rows, err := s.DB.QueryContext(ctx, q, destinationZip, uniq)
	if err != nil {
		return nil, fmt.Errorf("get facts: query branch_distance: %w", classify(err))
	}
	defer rows.Close()

	out := make([]domain.BranchFact, 0, len(uniq))
	for rows.Next() {
		var branch string
		var meters sql.NullFloat64
		var days sql.NullInt64
		var saturday sql.NullBool

		if err := rows.Scan(&branch, &meters, &days, &saturday); err != nil {
			return nil, fmt.Errorf("get facts: scan rows: %w", err)
		}

		fact := domain.BranchFact{
			BranchNumber:   branch,
			DestinationZip: destinationZip,
		}
		if meters.Valid {
			m := meters.Float64
			fact.DistanceMeters = &m
		}
		if days.Valid {
			d := int(days.Int64)
			fact.BusinessTransitDays = &d
		}
		if saturday.Valid {
			sd := saturday.Bool
			fact.SaturdayDelivery = &sd
		}

		out = append(out, fact)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get facts: row iteration: %w", classify(err))
	}

	return out, nil
}

// UpsertFact writes one fact, inserting on a new (branch, zip) key and
// otherwise updating only the columns the fact actually carries.
func (s *SQLFactStore) UpsertFact(ctx context.Context, fact domain.BranchFact) error {
	if s.DB == nil {
		return errors.New("fact store: db is nil")
	}
	if fact.BranchNumber == "" || fact.DestinationZip == "" {
		return errors.New("upsert fact: branch number and destination zip must not be empty")
	}

	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	q := `
	INSERT INTO branch_distance (branch_number, zip_code, distance_meters, business_transit_days, saturday_delivery)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (branch_number, zip_code) DO UPDATE
	SET distance_meters = COALESCE(EXCLUDED.distance_meters, branch_distance.distance_meters),
		business_transit_days = COALESCE(EXCLUDED.business_transit_days, branch_distance.business_transit_days),
		saturday_delivery = COALESCE(EXCLUDED.saturday_delivery, branch_distance.saturday_delivery);
	`

	_, err := s.DB.ExecContext(ctx, q,
		fact.BranchNumber, fact.DestinationZip,
		fact.DistanceMeters, fact.BusinessTransitDays, fact.SaturdayDelivery,
	)
	if err != nil {
		return fmt.Errorf("upsert fact branch=%q zip=%q: %w", fact.BranchNumber, fact.DestinationZip, classify(err))
	}

	return nil
}

// BulkStageInsert loads facts into the staging table inside one
// transaction. Staged rows are inert until MergeStaged runs.
func (s *SQLFactStore) BulkStageInsert(ctx context.Context, facts []domain.BranchFact) error {
	if s.DB == nil {
		return errors.New("fact store: db is nil")
	}
	if len(facts) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("stage insert: db begin: %w", classify(err))
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO branch_distance_staging (branch_number, zip_code, distance_meters, business_transit_days, saturday_delivery)
	VALUES ($1, $2, $3, $4, $5);
	`)
	if err != nil {
		return fmt.Errorf("stage insert: db prepare: %w", classify(err))
	}
	defer stmt.Close()

	for _, f := range facts {
		if f.BranchNumber == "" || f.DestinationZip == "" {
			return fmt.Errorf("stage insert: fact with empty branch number or zip")
		}

		if _, err := stmt.ExecContext(ctx, f.BranchNumber, f.DestinationZip,
			f.DistanceMeters, f.BusinessTransitDays, f.SaturdayDelivery); err != nil {
			return fmt.Errorf("stage insert branch=%q: %w", f.BranchNumber, classify(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("stage insert: commit: %w", classify(err))
	}

	return nil
}

// MergeStaged folds staged rows into branch_distance with upsert-by-key
// semantics. Duplicate staged keys collapse to one row; COALESCE keeps a
// staged row that carries only distance from nulling out transit columns.
func (s *SQLFactStore) MergeStaged(ctx context.Context) error {
	if s.DB == nil {
		return errors.New("fact store: db is nil")
	}

	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	q := `
	INSERT INTO branch_distance (branch_number, zip_code, distance_meters, business_transit_days, saturday_delivery)
	SELECT DISTINCT ON (branch_number, zip_code)
		branch_number, zip_code, distance_meters, business_transit_days, saturday_delivery
	FROM branch_distance_staging
	ON CONFLICT (branch_number, zip_code) DO UPDATE
	SET distance_meters = COALESCE(EXCLUDED.distance_meters, branch_distance.distance_meters),
		business_transit_days = COALESCE(EXCLUDED.business_transit_days, branch_distance.business_transit_days),
		saturday_delivery = COALESCE(EXCLUDED.saturday_delivery, branch_distance.saturday_delivery);
	`

	if _, err := s.DB.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("merge staged: %w", classify(err))
	}

	return nil
}

// TruncateStaged clears the staging table after a successful merge.
func (s *SQLFactStore) TruncateStaged(ctx context.Context) error {
	if s.DB == nil {
		return errors.New("fact store: db is nil")
	}

	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	if _, err := s.DB.ExecContext(ctx, `TRUNCATE branch_distance_staging;`); err != nil {
		return fmt.Errorf("truncate staged: %w", classify(err))
	}

	return nil
}

// dedupe trims and de-duplicates identifiers, preserving first-seen order.
func dedupe(values []string) []string {
	seen := map[string]struct{}{}
	uniq := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		uniq = append(uniq, v)
	}
	return uniq
}
