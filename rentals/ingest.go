package rentals

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"

	"github.com/hometrics/rentbot/foundation/client"
	"github.com/hometrics/rentbot/foundation/sqldb"
)

const rentalsSchema = `
	CREATE TABLE rentals (
		id            INTEGER PRIMARY KEY,
		zip           VARCHAR,
		city          VARCHAR,
		county        VARCHAR,
		state         VARCHAR,
		home_type     INTEGER,
		date          TIMESTAMP,
		rent          DOUBLE PRECISION,
		rent_adjusted DOUBLE PRECISION
	)`

// The dataset encodes zip code records as region type 0. Other region types
// (city, county, msa) duplicate the same data at coarser grain.
const regionTypeZip = 0

// Rental is one normalized record ready for insert.
type Rental struct {
	ID           int
	Zip          string
	City         string
	County       string
	State        string
	HomeType     int
	Date         time.Time
	Rent         float64
	RentAdjusted *float64
}

// IngestConfig tunes the dataset load.
type IngestConfig struct {
	MaxRows     int
	PageSize    int
	Concurrency int
	Log         client.Logger
}

func (cfg IngestConfig) defaults() IngestConfig {
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = 10_000
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Log == nil {
		cfg.Log = client.NoopLogger
	}
	return cfg
}

// Ingest loads the rentals dataset into the database, joining each zip code
// record against the geo table. The load is skipped when the table already
// holds rows so restarts don't re-download the dataset. It returns the number
// of rows inserted.
func Ingest(ctx context.Context, db *sqlx.DB, dc *DatasetClient, geo map[string]Geo, cfg IngestConfig) (int, error) {
	cfg = cfg.defaults()

	exists, count, err := tableStatus(ctx, db)
	if err != nil {
		return 0, fmt.Errorf("table status: %w", err)
	}

	if exists && count > 0 {
		cfg.Log(ctx, "ingest: table exists", "rows", count)
		return 0, nil
	}

	if !exists {
		if err := sqldb.ExecTx(ctx, db, rentalsSchema); err != nil {
			return 0, fmt.Errorf("create schema: %w", err)
		}
	}

	// Pages are fetched in waves of Concurrency so the filtered row count can
	// be checked between waves without tearing down the group.
	inserted := 0
	offset := 0
	total := -1
	badDates := 0

	for inserted < cfg.MaxRows && (total < 0 || offset < total) {
		pages := make([]RowsPage, cfg.Concurrency)

		launched := 0
		g, gctx := errgroup.WithContext(ctx)
		for i := 0; i < cfg.Concurrency; i++ {
			pageOffset := offset + i*cfg.PageSize
			if total >= 0 && pageOffset >= total {
				break
			}
			launched++

			g.Go(func() error {
				page, err := dc.Rows(gctx, pageOffset, cfg.PageSize)
				if err != nil {
					return fmt.Errorf("rows offset %d: %w", pageOffset, err)
				}

				pages[i] = page
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return inserted, err
		}

		// An empty dataset reports num_rows_total 0, so the total from a
		// fetched page must be accepted as-is or the loop never ends.
		fetched := 0
		var batch []Rental
		for _, page := range pages[:launched] {
			total = page.NumRowsTotal
			fetched += len(page.Rows)

			for _, item := range page.Rows {
				rental, why := normalize(item.Row, geo)
				if why == dropBadDate {
					badDates++
				}
				if why != dropNone {
					continue
				}

				rental.ID = inserted + len(batch) + 1
				batch = append(batch, rental)

				if inserted+len(batch) >= cfg.MaxRows {
					break
				}
			}

			if inserted+len(batch) >= cfg.MaxRows {
				break
			}
		}

		if len(batch) > 0 {
			if err := insertBatch(ctx, db, batch); err != nil {
				return inserted, fmt.Errorf("insert batch: %w", err)
			}

			inserted += len(batch)
			cfg.Log(ctx, "ingest: batch inserted", "rows", inserted)
		}

		// A wave with no raw rows means the dataset is exhausted regardless
		// of what the server reports as the total.
		if fetched == 0 {
			break
		}

		offset += cfg.Concurrency * cfg.PageSize
	}

	if badDates > 0 {
		cfg.Log(ctx, "ingest: dropped rows with unparseable dates", "rows", badDates)
	}

	return inserted, nil
}

type dropReason int

const (
	dropNone dropReason = iota
	dropFilter
	dropNoGeo
	dropBadDate
)

// normalize filters and converts a raw dataset row. The second return value
// reports why the row was dropped, or dropNone when it survived.
func normalize(row Row, geo map[string]Geo) (Rental, dropReason) {
	if row.RegionType != regionTypeZip || row.Rent == nil {
		return Rental{}, dropFilter
	}

	zip := NormalizeZip(row.Region)

	g, exists := geo[zip]
	if !exists {
		return Rental{}, dropNoGeo
	}

	date, err := parseDate(row.Date)
	if err != nil {
		return Rental{}, dropBadDate
	}

	return Rental{
		Zip:          zip,
		City:         g.City,
		County:       g.County,
		State:        g.State,
		HomeType:     row.HomeType,
		Date:         date,
		Rent:         *row.Rent,
		RentAdjusted: row.RentAdjusted,
	}, dropNone
}

func parseDate(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized date: %q", value)
}

// insertBatch writes the batch as one multi-row INSERT.
func insertBatch(ctx context.Context, db *sqlx.DB, batch []Rental) error {
	var sb strings.Builder
	sb.WriteString("INSERT INTO rentals (id, zip, city, county, state, home_type, date, rent, rent_adjusted) VALUES ")

	args := make([]any, 0, len(batch)*9)

	for i, r := range batch {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?, ?, ?)")

		args = append(args, r.ID, r.Zip, r.City, r.County, r.State, r.HomeType, r.Date, r.Rent, r.RentAdjusted)
	}

	query := db.Rebind(sb.String())

	if err := sqldb.ExecTx(ctx, db, query, args...); err != nil {
		return fmt.Errorf("exec: %w", err)
	}

	return nil
}

func tableStatus(ctx context.Context, db *sqlx.DB) (exists bool, count int, err error) {
	const q = `
		SELECT COUNT(*)
		FROM information_schema.tables
		WHERE table_name = 'rentals'`

	var tables int
	if err := db.QueryRowContext(ctx, q).Scan(&tables); err != nil {
		return false, 0, fmt.Errorf("check table: %w", err)
	}

	if tables == 0 {
		return false, 0, nil
	}

	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM rentals").Scan(&count); err != nil {
		return true, 0, fmt.Errorf("count rows: %w", err)
	}

	return true, count, nil
}
