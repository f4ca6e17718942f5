package catalog

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	_ "modernc.org/sqlite"

	"github.com/alexphiev/empreinte-enrich/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS places (
	id                TEXT PRIMARY KEY,
	name              TEXT NOT NULL,
	osm_id            TEXT,
	google_place_id   TEXT,
	website           TEXT,
	description       TEXT,
	lon               REAL,
	lat               REAL,
	source_score      INTEGER NOT NULL DEFAULT 0,
	enhancement_score INTEGER NOT NULL DEFAULT 0,
	score             INTEGER NOT NULL DEFAULT 0,
	photos_fetched_at DATETIME,
	created_at        DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at        DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS photos (
	id          TEXT PRIMARY KEY,
	place_id    TEXT NOT NULL REFERENCES places(id),
	reference   TEXT NOT NULL,
	attribution TEXT,
	source      TEXT NOT NULL,
	is_primary  INTEGER NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS generated_places (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT,
	status      TEXT,
	place_id    TEXT,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_places_osm_id ON places(osm_id);
CREATE INDEX IF NOT EXISTS idx_places_photos_fetched_at ON places(photos_fetched_at);
CREATE INDEX IF NOT EXISTS idx_photos_place_id ON photos(place_id);
CREATE INDEX IF NOT EXISTS idx_generated_places_status ON generated_places(status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const placeColumns = `id, name, osm_id, google_place_id, website, description,
	lon, lat, source_score, enhancement_score, score, photos_fetched_at, created_at, updated_at`

func (s *SQLiteStore) GetPlace(ctx context.Context, id string) (*model.Place, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+placeColumns+` FROM places WHERE id = ?`, id)
	return scanPlace(row)
}

func (s *SQLiteStore) GetPlaceByOSMID(ctx context.Context, osmID string) (*model.Place, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+placeColumns+` FROM places WHERE osm_id = ?`, osmID)
	return scanPlace(row)
}

func (s *SQLiteStore) InsertPlace(ctx context.Context, p *model.Place) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	var lon, lat any
	if x, y, ok := p.Centroid(); ok {
		lon, lat = x, y
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO places (id, name, osm_id, google_place_id, website, description,
			lon, lat, source_score, enhancement_score, score, photos_fetched_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, nilIfEmpty(p.OSMID), nilIfEmpty(p.GooglePlaceID),
		nilIfEmpty(p.Website), nilIfEmpty(p.Description),
		lon, lat, p.SourceScore, p.EnhancementScore, p.Score, p.PhotosFetchedAt, now, now,
	)
	return eris.Wrap(err, "sqlite: insert place")
}

func (s *SQLiteStore) ListPlaces(ctx context.Context, filter PlaceFilter) ([]model.Place, error) {
	query := `SELECT ` + placeColumns + ` FROM places WHERE 1=1`
	var args []any

	if filter.WithoutPhotos {
		query += ` AND photos_fetched_at IS NULL`
	}
	query += ` ORDER BY created_at ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list places")
	}
	defer rows.Close()

	var places []model.Place
	for rows.Next() {
		p, err := scanPlace(rows)
		if err != nil {
			return nil, err
		}
		places = append(places, *p)
	}
	return places, eris.Wrap(rows.Err(), "sqlite: list places iterate")
}

func (s *SQLiteStore) UpdateScores(ctx context.Context, id string, sourceScore, enhancementScore, score int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE places SET source_score = ?, enhancement_score = ?, score = ?, updated_at = ? WHERE id = ?`,
		sourceScore, enhancementScore, score, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update scores %s", id)
	}
	return checkRowsAffected(res, "place", id)
}

func (s *SQLiteStore) UpdateDescription(ctx context.Context, id, description string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE places SET description = ?, updated_at = ? WHERE id = ?`,
		description, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update description %s", id)
	}
	return checkRowsAffected(res, "place", id)
}

func (s *SQLiteStore) SetGooglePlaceID(ctx context.Context, id, googlePlaceID string) error {
	// First-found wins: only an empty slot is filled.
	_, err := s.db.ExecContext(ctx,
		`UPDATE places SET google_place_id = ?, updated_at = ?
		 WHERE id = ? AND (google_place_id IS NULL OR google_place_id = '')`,
		googlePlaceID, time.Now().UTC(), id,
	)
	return eris.Wrapf(err, "sqlite: set google place id %s", id)
}

func (s *SQLiteStore) MarkPhotosFetched(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE places SET photos_fetched_at = ?, updated_at = ? WHERE id = ?`,
		at.UTC(), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark photos fetched %s", id)
	}
	return checkRowsAffected(res, "place", id)
}

func (s *SQLiteStore) HasPhotos(ctx context.Context, placeID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM photos WHERE place_id = ?`, placeID).Scan(&n)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: has photos %s", placeID)
	}
	return n > 0, nil
}

func (s *SQLiteStore) SavePhotos(ctx context.Context, photos []model.Photo) error {
	if len(photos) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save photos")
	}
	defer tx.Rollback()

	for i := range photos {
		p := &photos[i]
		if p.ID == "" {
			p.ID = uuid.New().String()
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = time.Now().UTC()
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO photos (id, place_id, reference, attribution, source, is_primary, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.PlaceID, p.Reference, nilIfEmpty(p.Attribution), string(p.Source), p.IsPrimary, p.CreatedAt,
		)
		if err != nil {
			return eris.Wrap(err, "sqlite: insert photo")
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit save photos")
}

func (s *SQLiteStore) ListPendingGenerated(ctx context.Context, limit int) ([]model.GeneratedPlace, error) {
	query := `SELECT id, name, description, status, place_id, created_at
	          FROM generated_places WHERE status IS NULL ORDER BY created_at ASC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list pending generated")
	}
	defer rows.Close()

	var out []model.GeneratedPlace
	for rows.Next() {
		var gp model.GeneratedPlace
		var desc, status, placeID sql.NullString
		if err := rows.Scan(&gp.ID, &gp.Name, &desc, &status, &placeID, &gp.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan generated place")
		}
		gp.Description = desc.String
		if status.Valid {
			gp.Status = &status.String
		}
		if placeID.Valid {
			gp.PlaceID = &placeID.String
		}
		out = append(out, gp)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list pending generated iterate")
}

func (s *SQLiteStore) ResolveGenerated(ctx context.Context, id string, status model.MatchOutcome, placeID *string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE generated_places SET status = ?, place_id = ? WHERE id = ?`,
		string(status), placeID, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: resolve generated %s", id)
	}
	return checkRowsAffected(res, "generated place", id)
}

// InsertGenerated is used by tests and the webhook surface to stage a
// candidate row.
func (s *SQLiteStore) InsertGenerated(ctx context.Context, gp *model.GeneratedPlace) error {
	if gp.ID == "" {
		gp.ID = uuid.New().String()
	}
	if gp.CreatedAt.IsZero() {
		gp.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO generated_places (id, name, description, status, place_id, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		gp.ID, gp.Name, nilIfEmpty(gp.Description), gp.Status, gp.PlaceID, gp.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert generated place")
}

// helpers

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanPlace(row scannable) (*model.Place, error) {
	var p model.Place
	var osmID, googleID, website, description sql.NullString
	var lon, lat sql.NullFloat64
	var fetchedAt sql.NullTime

	err := row.Scan(&p.ID, &p.Name, &osmID, &googleID, &website, &description,
		&lon, &lat, &p.SourceScore, &p.EnhancementScore, &p.Score, &fetchedAt, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "scan place")
	}

	p.OSMID = osmID.String
	p.GooglePlaceID = googleID.String
	p.Website = website.String
	p.Description = description.String
	if lon.Valid && lat.Valid {
		p.Geometry = geom.NewPointFlat(geom.XY, []float64{lon.Float64, lat.Float64})
	}
	if fetchedAt.Valid {
		t := fetchedAt.Time
		p.PhotosFetchedAt = &t
	}
	return &p, nil
}
