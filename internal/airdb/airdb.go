// Package airdb archives fetched station batches and observer searches in a
// SQLite database.
package airdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/patrickmn/go-cache"
	"github.com/rubiojr/airdb/pkg/api"
	"github.com/tkrajina/gpxgo/gpx"
)

const (
	// fixed width so timestamps sort as text
	timeLayout = "2006-01-02T15:04:05.000000000Z"

	lastBatchKey = "last_batch"
)

const (
	defaultCacheExpirationMinutes      = 10
	defaultCacheCleanupMinutes         = 30
	defaultReducePrecisionDecimalPlace = 2
	defaultCacheSize                   = -1024 * 1024 // negative value for pages
	defaultPageSize                    = 4096
	decimalBase                        = 10
	deleteRecordsPause                 = 50
	deleteBatchSize                    = 1000
	clusterDistance                    = 1000.0 // meters
)

// ErrNoData is returned when the archive holds no batch yet.
var ErrNoData = errors.New("no data available")

type Storage struct {
	db    *sql.DB
	cache *cache.Cache
	log   *slog.Logger
}

// Batch is one archived fetch.
type Batch struct {
	FetchedAt time.Time
	Stations  []api.Station
}

// Reading is a station as it was in one archived batch.
type Reading struct {
	FetchedAt time.Time
	Station   api.Station
}

func NewStorage(ctx context.Context, dbPath string, logger *slog.Logger) (*Storage, error) {
	db, err := sql.Open("sqlite3", "file:"+dbPath)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	// pragmas are per connection
	db.SetMaxOpenConns(1)

	if err := configureSQLitePragmas(ctx, db, defaultCacheSize); err != nil {
		db.Close()
		return nil, err
	}

	if err := createTables(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating tables: %w", err)
	}

	s := &Storage{
		db:    db,
		cache: cache.New(defaultCacheExpirationMinutes*time.Minute, defaultCacheCleanupMinutes*time.Minute),
		log:   logger,
	}

	if err := s.createTrigger(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating trigger: %w", err)
	}

	return s, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS station_batches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		fetched_at TEXT UNIQUE NOT NULL,
		data TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_station_batches_fetched_at ON station_batches(fetched_at);

	CREATE TABLE IF NOT EXISTS station_readings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		fetched_at TEXT NOT NULL,
		station_id INTEGER NOT NULL,
		name TEXT,
		comment TEXT,
		status INTEGER,
		latitude TEXT,
		longitude TEXT,
		measurements TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_station_readings_station_id ON station_readings(station_id);
	CREATE INDEX IF NOT EXISTS idx_station_readings_fetched_at ON station_readings(fetched_at);

	CREATE TABLE IF NOT EXISTS location_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		latitude REAL NOT NULL,
		longitude REAL NOT NULL,
		distance REAL NOT NULL,
		search_count INTEGER NOT NULL DEFAULT 1,
		search_time TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		last_search TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_location_logs_coordinates ON location_logs (latitude, longitude);
	`

	_, err := db.ExecContext(ctx, createTableSQL)
	if err != nil {
		return fmt.Errorf("error creating table: %w", err)
	}
	return nil
}

// createTrigger expands every inserted batch into per-station readings.
func (s *Storage) createTrigger(ctx context.Context) error {
	createTriggerSQL := `
	CREATE TRIGGER IF NOT EXISTS insert_station_readings
	AFTER INSERT ON station_batches
	BEGIN
		INSERT INTO station_readings (
			fetched_at, station_id, name, comment, status, latitude, longitude, measurements
		)
		SELECT
			NEW.fetched_at,
			json_extract(station.value, '$.id'),
			json_extract(station.value, '$.name'),
			json_extract(station.value, '$.comment'),
			json_extract(station.value, '$.status'),
			json_extract(station.value, '$.latitude'),
			json_extract(station.value, '$.longitude'),
			json_extract(station.value, '$.measurements')
		FROM json_each(NEW.data) AS station;
	END;
	`

	_, err := s.db.ExecContext(ctx, createTriggerSQL)
	if err != nil {
		return fmt.Errorf("error creating trigger: %w", err)
	}

	return nil
}

func (s *Storage) Close() error {
	if s.cache != nil {
		s.cache.Flush()
	}
	return s.db.Close()
}

// SaveStations archives a fetched batch. Saving the same timestamp twice
// replaces the earlier batch.
func (s *Storage) SaveStations(ctx context.Context, fetchedAt time.Time, stations []api.Station) error {
	batch := make([]api.Station, len(stations))
	for i, st := range stations {
		if st.Measurements == nil {
			st.Measurements = map[string]*string{}
		}
		batch[i] = st
	}
	data, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("error marshaling stations: %w", err)
	}
	ts := fetchedAt.UTC().Format(timeLayout)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			s.log.Error("rollback error", "error", err)
		}
	}()

	// the trigger only adds readings, drop those of a replaced batch
	if _, err := tx.ExecContext(ctx, "DELETE FROM station_readings WHERE fetched_at = ?", ts); err != nil {
		return fmt.Errorf("error deleting readings: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT OR REPLACE INTO station_batches (fetched_at, data) VALUES (?, ?)", ts, string(data)); err != nil {
		return fmt.Errorf("error inserting data: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}

	s.cache.Flush()
	s.log.Debug("Saved station batch", "fetched_at", ts, "stations", len(stations))

	return nil
}

// LastStations returns the most recently archived batch.
func (s *Storage) LastStations(ctx context.Context) (*Batch, error) {
	if cached, found := s.cache.Get(lastBatchKey); found {
		s.log.Debug("Using cached data", "key", lastBatchKey)
		return cached.(*Batch), nil
	}

	var ts, data string
	err := s.db.QueryRowContext(ctx, "SELECT fetched_at, data FROM station_batches ORDER BY fetched_at DESC LIMIT 1").Scan(&ts, &data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoData
		}
		return nil, fmt.Errorf("error querying database: %w", err)
	}

	batch, err := decodeBatch(ts, data)
	if err != nil {
		return nil, err
	}
	s.cache.Set(lastBatchKey, batch, cache.DefaultExpiration)

	return batch, nil
}

// BatchTimes returns the fetch time of every archived batch, oldest first.
func (s *Storage) BatchTimes(ctx context.Context) ([]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT fetched_at FROM station_batches ORDER BY fetched_at ASC")
	if err != nil {
		return nil, fmt.Errorf("error querying batches: %w", err)
	}
	defer rows.Close()

	var times []time.Time
	for rows.Next() {
		var ts string
		if err := rows.Scan(&ts); err != nil {
			return nil, fmt.Errorf("error scanning batch: %w", err)
		}
		t, err := time.Parse(timeLayout, ts)
		if err != nil {
			s.log.Warn("Skipping batch with bad timestamp", "fetched_at", ts, "error", err)
			continue
		}
		times = append(times, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error: %w", err)
	}
	return times, nil
}

// StationHistory returns the archived readings of one station, newest first.
// A limit <= 0 returns all of them.
func (s *Storage) StationHistory(ctx context.Context, stationID, limit int) ([]Reading, error) {
	query := `SELECT fetched_at, station_id, name, comment, status, latitude, longitude, measurements
			  FROM station_readings
			  WHERE station_id = ?
			  ORDER BY fetched_at DESC, id ASC`
	args := []any{stationID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying station history: %w", err)
	}
	defer rows.Close()

	var readings []Reading
	for rows.Next() {
		var (
			ts           string
			name         sql.NullString
			comment      sql.NullString
			status       sql.NullInt64
			lat, lng     sql.NullString
			measurements sql.NullString
			r            Reading
		)
		if err := rows.Scan(&ts, &r.Station.ID, &name, &comment, &status, &lat, &lng, &measurements); err != nil {
			return nil, fmt.Errorf("error scanning reading: %w", err)
		}

		r.FetchedAt, err = time.Parse(timeLayout, ts)
		if err != nil {
			return nil, fmt.Errorf("error parsing timestamp %s: %w", ts, err)
		}
		r.Station.Name = name.String
		if comment.Valid {
			c := comment.String
			r.Station.Comment = &c
		}
		r.Station.Status = int(status.Int64)
		r.Station.Latitude = lat.String
		r.Station.Longitude = lng.String
		if measurements.Valid && measurements.String != "" {
			if err := json.Unmarshal([]byte(measurements.String), &r.Station.Measurements); err != nil {
				return nil, fmt.Errorf("error unmarshaling measurements: %w", err)
			}
		}
		readings = append(readings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return readings, nil
}

func decodeBatch(ts, data string) (*Batch, error) {
	fetchedAt, err := time.Parse(timeLayout, ts)
	if err != nil {
		return nil, fmt.Errorf("error parsing timestamp %s: %w", ts, err)
	}
	stations, err := api.DecodeStations([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("error unmarshaling data: %w", err)
	}
	return &Batch{FetchedAt: fetchedAt, Stations: stations}, nil
}

// DeleteOldBatches removes batches and readings older than daysOld days.
func (s *Storage) DeleteOldBatches(ctx context.Context, daysOld int) (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -daysOld).Format(timeLayout)
	s.log.Info("Starting cleanup of old records", "cutoff", cutoff)

	deleted := 0
	for {
		res, err := s.db.ExecContext(ctx, `
			DELETE FROM station_batches WHERE id IN (
				SELECT id FROM station_batches WHERE fetched_at < ? ORDER BY id LIMIT ?
			)`, cutoff, deleteBatchSize)
		if err != nil {
			return deleted, fmt.Errorf("error deleting station_batches: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return deleted, fmt.Errorf("error counting deleted rows: %w", err)
		}
		deleted += int(n)
		if n < deleteBatchSize {
			break
		}
		s.log.Debug("Deleted station_batches records", "count", deleted)
		time.Sleep(deleteRecordsPause * time.Millisecond)
	}

	if _, err := s.db.ExecContext(ctx, "DELETE FROM station_readings WHERE fetched_at < ?", cutoff); err != nil {
		return deleted, fmt.Errorf("error deleting station_readings: %w", err)
	}

	s.cache.Flush()
	s.log.Info("Completed cleanup", "deleted_batches", deleted)

	return deleted, nil
}

func (s *Storage) VacuumDatabase(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "PRAGMA incremental_vacuum(1000)")
	if err != nil {
		return fmt.Errorf("error performing incremental vacuum: %w", err)
	}

	return nil
}

// LogSearchLocation records an observer search. Nearby searches (same
// coordinates at two decimal places) are counted together.
func (s *Storage) LogSearchLocation(ctx context.Context, observer api.Coordinate, distance float64) error {
	newLat, newLong := reduceLocationPrecision(observer.Lat, observer.Lng, defaultReducePrecisionDecimalPlace)

	var id int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM location_logs
		WHERE latitude = ? AND longitude = ?
		LIMIT 1
	`, newLat, newLong).Scan(&id)

	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("error checking for existing location: %w", err)
	}

	if errors.Is(err, sql.ErrNoRows) {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO location_logs (latitude, longitude, distance)
			VALUES (?, ?, ?)
		`, newLat, newLong, distance)
		if err != nil {
			return fmt.Errorf("error logging search location: %w", err)
		}
		return nil
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE location_logs
		SET search_count = search_count + 1, last_search = CURRENT_TIMESTAMP, distance = ?
		WHERE id = ?
	`, distance, id)
	if err != nil {
		return fmt.Errorf("error updating search location: %w", err)
	}

	return nil
}

// LocationLog represents a row in the location_logs table
type LocationLog struct {
	ID          int64
	Latitude    float64
	Longitude   float64
	Distance    float64
	SearchCount int64
	SearchTime  time.Time
	LastSearch  time.Time
}

// LocationLogs retrieves location logs, most searched first.
// limit: maximum number of rows to return (0 for all)
func (s *Storage) LocationLogs(ctx context.Context, limit int) ([]LocationLog, error) {
	query := `SELECT id, latitude, longitude, distance, search_count, search_time, last_search
			  FROM location_logs
			  ORDER BY search_count DESC, id ASC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error retrieving location logs: %w", err)
	}
	defer rows.Close()

	var logs []LocationLog
	for rows.Next() {
		var logEntry LocationLog
		var searchTime, lastSearch string
		if err := rows.Scan(
			&logEntry.ID,
			&logEntry.Latitude,
			&logEntry.Longitude,
			&logEntry.Distance,
			&logEntry.SearchCount,
			&searchTime,
			&lastSearch,
		); err != nil {
			return nil, fmt.Errorf("error scanning location log: %w", err)
		}
		logEntry.SearchTime = parseSQLiteTime(searchTime)
		logEntry.LastSearch = parseSQLiteTime(lastSearch)
		logs = append(logs, logEntry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}

	return logs, nil
}

// PopularLocation represents a clustered area of searches with its popularity
type PopularLocation struct {
	Latitude    float64 `json:"lat"`
	Longitude   float64 `json:"lng"`
	SearchCount int64   `json:"weight"`
	Radius      float64 `json:"radius"` // largest search radius in the cluster, meters
}

// PopularLocations clusters logged searches within about a kilometer of each
// other, most popular first. A limit <= 0 returns every cluster.
func (s *Storage) PopularLocations(ctx context.Context, limit int) ([]PopularLocation, error) {
	logs, err := s.LocationLogs(ctx, 0)
	if err != nil {
		return nil, err
	}

	processed := make(map[int64]bool)
	var popular []PopularLocation

	for i, l := range logs {
		if processed[l.ID] {
			continue
		}
		processed[l.ID] = true

		cluster := PopularLocation{
			Latitude:    l.Latitude,
			Longitude:   l.Longitude,
			SearchCount: l.SearchCount,
			Radius:      l.Distance,
		}

		for j, other := range logs {
			if i == j || processed[other.ID] {
				continue
			}

			d := gpx.Distance2D(l.Latitude, l.Longitude, other.Latitude, other.Longitude, true)
			if d > clusterDistance {
				continue
			}
			processed[other.ID] = true

			// weighted average of the cluster center
			total := cluster.SearchCount + other.SearchCount
			cluster.Latitude = (cluster.Latitude*float64(cluster.SearchCount) +
				other.Latitude*float64(other.SearchCount)) / float64(total)
			cluster.Longitude = (cluster.Longitude*float64(cluster.SearchCount) +
				other.Longitude*float64(other.SearchCount)) / float64(total)
			cluster.SearchCount = total
			if other.Distance > cluster.Radius {
				cluster.Radius = other.Distance
			}
		}

		popular = append(popular, cluster)
	}

	sort.SliceStable(popular, func(i, j int) bool {
		return popular[i].SearchCount > popular[j].SearchCount
	})
	if limit > 0 && len(popular) > limit {
		popular = popular[:limit]
	}

	return popular, nil
}

func parseSQLiteTime(s string) time.Time {
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func reduceLocationPrecision(lat, lng float64, decimalPlaces int) (roundedLat, roundedLng float64) {
	factor := math.Pow(decimalBase, float64(decimalPlaces))
	roundedLat = math.Round(lat*factor) / factor
	roundedLng = math.Round(lng*factor) / factor
	return
}

func configureSQLitePragmas(ctx context.Context, db *sql.DB, cacheSize int) error {
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 10000;"); err != nil {
		return fmt.Errorf("error setting busy timeout: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("error setting journal mode: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA auto_vacuum = INCREMENTAL;"); err != nil {
		return fmt.Errorf("error setting auto vacuum: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA synchronous = NORMAL;"); err != nil {
		return fmt.Errorf("error setting synchronous: %w", err)
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA cache_size = %d;", cacheSize)); err != nil {
		return fmt.Errorf("error setting cache size: %w", err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA page_size = %d;", defaultPageSize)); err != nil {
		return fmt.Errorf("error setting page size: %w", err)
	}
	return nil
}
