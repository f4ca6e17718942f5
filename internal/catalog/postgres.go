package catalog

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/alexphiev/empreinte-enrich/internal/model"
)

// Pool is the subset of pgxpool.Pool the store needs; pgxmock satisfies
// it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS places (
	id                TEXT PRIMARY KEY,
	name              TEXT NOT NULL,
	osm_id            TEXT,
	google_place_id   TEXT,
	website           TEXT,
	description       TEXT,
	lon               DOUBLE PRECISION,
	lat               DOUBLE PRECISION,
	source_score      INTEGER NOT NULL DEFAULT 0,
	enhancement_score INTEGER NOT NULL DEFAULT 0,
	score             INTEGER NOT NULL DEFAULT 0,
	photos_fetched_at TIMESTAMPTZ,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS photos (
	id          TEXT PRIMARY KEY,
	place_id    TEXT NOT NULL REFERENCES places(id),
	reference   TEXT NOT NULL,
	attribution TEXT,
	source      TEXT NOT NULL,
	is_primary  BOOLEAN NOT NULL DEFAULT false,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS generated_places (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT,
	status      TEXT,
	place_id    TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_places_osm_id ON places(osm_id);
CREATE INDEX IF NOT EXISTS idx_places_photos_fetched_at ON places(photos_fetched_at);
CREATE INDEX IF NOT EXISTS idx_photos_place_id ON photos(place_id);
CREATE INDEX IF NOT EXISTS idx_generated_places_status ON generated_places(status);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

const pgPlaceColumns = `id, name, osm_id, google_place_id, website, description,
	lon, lat, source_score, enhancement_score, score, photos_fetched_at, created_at, updated_at`

func (s *PostgresStore) GetPlace(ctx context.Context, id string) (*model.Place, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgPlaceColumns+` FROM places WHERE id = $1`, id)
	return scanPGPlace(row)
}

func (s *PostgresStore) GetPlaceByOSMID(ctx context.Context, osmID string) (*model.Place, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgPlaceColumns+` FROM places WHERE osm_id = $1`, osmID)
	return scanPGPlace(row)
}

func (s *PostgresStore) InsertPlace(ctx context.Context, p *model.Place) error {
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

	_, err := s.pool.Exec(ctx,
		`INSERT INTO places (id, name, osm_id, google_place_id, website, description,
			lon, lat, source_score, enhancement_score, score, photos_fetched_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		p.ID, p.Name, nilIfEmpty(p.OSMID), nilIfEmpty(p.GooglePlaceID),
		nilIfEmpty(p.Website), nilIfEmpty(p.Description),
		lon, lat, p.SourceScore, p.EnhancementScore, p.Score, p.PhotosFetchedAt, now, now,
	)
	return eris.Wrap(err, "postgres: insert place")
}

func (s *PostgresStore) ListPlaces(ctx context.Context, filter PlaceFilter) ([]model.Place, error) {
	query := `SELECT ` + pgPlaceColumns + ` FROM places`
	if filter.WithoutPhotos {
		query += ` WHERE photos_fetched_at IS NULL`
	}
	query += ` ORDER BY created_at ASC LIMIT $1`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list places")
	}
	defer rows.Close()

	var places []model.Place
	for rows.Next() {
		p, err := scanPGPlace(rows)
		if err != nil {
			return nil, err
		}
		places = append(places, *p)
	}
	return places, eris.Wrap(rows.Err(), "postgres: list places iterate")
}

func (s *PostgresStore) UpdateScores(ctx context.Context, id string, sourceScore, enhancementScore, score int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE places SET source_score = $1, enhancement_score = $2, score = $3, updated_at = now() WHERE id = $4`,
		sourceScore, enhancementScore, score, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update scores %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "place %s", id)
	}
	return nil
}

func (s *PostgresStore) UpdateDescription(ctx context.Context, id, description string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE places SET description = $1, updated_at = now() WHERE id = $2`,
		description, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update description %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "place %s", id)
	}
	return nil
}

func (s *PostgresStore) SetGooglePlaceID(ctx context.Context, id, googlePlaceID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE places SET google_place_id = $1, updated_at = now()
		 WHERE id = $2 AND (google_place_id IS NULL OR google_place_id = '')`,
		googlePlaceID, id,
	)
	return eris.Wrapf(err, "postgres: set google place id %s", id)
}

func (s *PostgresStore) MarkPhotosFetched(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE places SET photos_fetched_at = $1, updated_at = now() WHERE id = $2`,
		at.UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark photos fetched %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "place %s", id)
	}
	return nil
}

func (s *PostgresStore) HasPhotos(ctx context.Context, placeID string) (bool, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(1) FROM photos WHERE place_id = $1`, placeID).Scan(&n)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: has photos %s", placeID)
	}
	return n > 0, nil
}

func (s *PostgresStore) SavePhotos(ctx context.Context, photos []model.Photo) error {
	if len(photos) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin save photos")
	}
	defer tx.Rollback(ctx)

	for i := range photos {
		p := &photos[i]
		if p.ID == "" {
			p.ID = uuid.New().String()
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = time.Now().UTC()
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO photos (id, place_id, reference, attribution, source, is_primary, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			p.ID, p.PlaceID, p.Reference, nilIfEmpty(p.Attribution), string(p.Source), p.IsPrimary, p.CreatedAt,
		)
		if err != nil {
			return eris.Wrap(err, "postgres: insert photo")
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit save photos")
}

func (s *PostgresStore) InsertGenerated(ctx context.Context, gp *model.GeneratedPlace) error {
	if gp.ID == "" {
		gp.ID = uuid.New().String()
	}
	if gp.CreatedAt.IsZero() {
		gp.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO generated_places (id, name, description, status, place_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		gp.ID, gp.Name, nilIfEmpty(gp.Description), gp.Status, gp.PlaceID, gp.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert generated place")
}

func (s *PostgresStore) ListPendingGenerated(ctx context.Context, limit int) ([]model.GeneratedPlace, error) {
	query := `SELECT id, name, description, status, place_id, created_at
	          FROM generated_places WHERE status IS NULL ORDER BY created_at ASC`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list pending generated")
	}
	defer rows.Close()

	var out []model.GeneratedPlace
	for rows.Next() {
		var gp model.GeneratedPlace
		var desc, status, placeID sql.NullString
		if err := rows.Scan(&gp.ID, &gp.Name, &desc, &status, &placeID, &gp.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan generated place")
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
	return out, eris.Wrap(rows.Err(), "postgres: list pending generated iterate")
}

func (s *PostgresStore) ResolveGenerated(ctx context.Context, id string, status model.MatchOutcome, placeID *string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE generated_places SET status = $1, place_id = $2 WHERE id = $3`,
		string(status), placeID, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: resolve generated %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "generated place %s", id)
	}
	return nil
}

func scanPGPlace(row pgx.Row) (*model.Place, error) {
	var p model.Place
	var osmID, googleID, website, description *string
	var lon, lat *float64
	var fetchedAt *time.Time

	err := row.Scan(&p.ID, &p.Name, &osmID, &googleID, &website, &description,
		&lon, &lat, &p.SourceScore, &p.EnhancementScore, &p.Score, &fetchedAt, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan place")
	}

	if osmID != nil {
		p.OSMID = *osmID
	}
	if googleID != nil {
		p.GooglePlaceID = *googleID
	}
	if website != nil {
		p.Website = *website
	}
	if description != nil {
		p.Description = *description
	}
	if lon != nil && lat != nil {
		p.Geometry = geom.NewPointFlat(geom.XY, []float64{*lon, *lat})
	}
	p.PhotosFetchedAt = fetchedAt
	return &p, nil
}
