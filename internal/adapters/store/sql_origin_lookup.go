package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"branch-distance-service/internal/domain"
	"branch-distance-service/internal/platform/obs"
)

// SQLOriginLookup reads branch origin data from the distribution center
// table in the same store.
type SQLOriginLookup struct {
	DB      *sql.DB
	Timeout time.Duration
}

func NewSQLOriginLookup(db *sql.DB, timeout time.Duration) *SQLOriginLookup {
	if timeout <= 0 {
		timeout = 6 * time.Second
	}
	return &SQLOriginLookup{DB: db, Timeout: timeout}
}

func (s *SQLOriginLookup) GetOrigins(
	ctx context.Context,
	branchNumbers []string,
) (_ []domain.OriginLocation, err error) {
	defer obs.Time(ctx, "store.GetOrigins")(&err)

	if s.DB == nil {
		return nil, errors.New("origin lookup: db is nil")
	}

	uniq := dedupe(branchNumbers)
	if len(uniq) == 0 {
		return []domain.OriginLocation{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	q := `
	SELECT branch_number, latitude, longitude, address1, city, state, zip
	FROM distribution_center
	WHERE branch_number = ANY($1::text[]);
	`

	rows, err := s.DB.QueryContext(ctx, q, uniq)
	if err != nil {
		return nil, fmt.Errorf("get origins: query distribution_center: %w", classify(err))
	}
	defer rows.Close()

	out := make([]domain.OriginLocation, 0, len(uniq))
	for rows.Next() {
		var o domain.OriginLocation
		var lat, lon sql.NullFloat64
		var address1, city, state, zip sql.NullString

		if err := rows.Scan(&o.BranchNumber, &lat, &lon, &address1, &city, &state, &zip); err != nil {
			return nil, fmt.Errorf("get origins: scan rows: %w", err)
		}

		if lat.Valid {
			v := lat.Float64
			o.Latitude = &v
		}
		if lon.Valid {
			v := lon.Float64
			o.Longitude = &v
		}
		o.Address1 = address1.String
		o.City = city.String
		o.State = state.String
		o.Zip = zip.String

		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get origins: row iteration: %w", classify(err))
	}

	return out, nil
}

func (s *SQLOriginLookup) GetOriginZips(
	ctx context.Context,
	branchNumbers []string,
) (_ map[string]string, err error) {
	defer obs.Time(ctx, "store.GetOriginZips")(&err)

	if s.DB == nil {
		return nil, errors.New("origin lookup: db is nil")
	}

	uniq := dedupe(branchNumbers)
	if len(uniq) == 0 {
		return map[string]string{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	q := `
	SELECT branch_number, zip
	FROM distribution_center
	WHERE branch_number = ANY($1::text[]);
	`

	rows, err := s.DB.QueryContext(ctx, q, uniq)
	if err != nil {
		return nil, fmt.Errorf("get origin zips: query distribution_center: %w", classify(err))
	}
	defer rows.Close()

	out := make(map[string]string, len(uniq))
	for rows.Next() {
		var branch string
		var zip sql.NullString
		if err := rows.Scan(&branch, &zip); err != nil {
			return nil, fmt.Errorf("get origin zips: scan rows: %w", err)
		}
		out[branch] = zip.String
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get origin zips: row iteration: %w", classify(err))
	}

	return out, nil
}
