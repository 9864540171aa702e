// Package modelstore archives encoded PSF models in a SQLite database.
package modelstore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"starpsf/pkg/starpsf"
)

// ErrNotFound is returned when no stored model matches a lookup.
var ErrNotFound = errors.New("model not found")

// schema.sql creates the model table and its lookup index.
//
//go:embed schema.sql
var schemaSQL string

// Record describes one stored model without its payload.
type Record struct {
	ID        uuid.UUID
	Field     string
	Extension int
	Format    string
	NDim      int
	NCoeff    int
	Width     int
	Height    int
	NComp     int
	AvgX      float64
	AvgY      float64
	PixStep   float32
	CreatedAt time.Time
}

// Store is a model archive.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// Open opens or creates the archive at path. ":memory:" keeps it in memory.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open model store: %w", err)
	}
	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize model store schema: %w", err)
	}
	logger.Debug("opened model store", zap.String("path", path))
	return &Store{db: db, logger: logger, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Save encodes m and stores it for the given field and extension.
func (s *Store) Save(ctx context.Context, field string, ext int, m *starpsf.Model) (uuid.UUID, error) {
	payload, err := starpsf.Marshal(m)
	if err != nil {
		return uuid.Nil, fmt.Errorf("encode model: %w", err)
	}
	id := uuid.New()
	avg := m.AveragePosition()
	query := `
		INSERT INTO psf_models (id, field, extension, format, ndim, ncoeff, width, height, ncomp,
			avg_x, avg_y, pix_step, created_ns, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		id.String(), field, ext, fmt.Sprintf("%s/%d", starpsf.FormatTag, starpsf.FormatVersion),
		m.NDim(), m.NCoeff(), m.Width(), m.Height(), m.NComp(),
		avg.X, avg.Y, float64(m.PixStep()), s.now().UnixNano(), payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert model: %w", err)
	}
	s.logger.Info("stored model",
		zap.String("id", id.String()),
		zap.String("field", field),
		zap.Int("extension", ext),
		zap.Int("bytes", len(payload)))
	return id, nil
}

// Load decodes the model stored under id.
func (s *Store) Load(ctx context.Context, id uuid.UUID) (*starpsf.Model, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM psf_models WHERE id = ?`, id.String()).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("query model %s: %w", id, err)
	}
	m, err := starpsf.Unmarshal(payload)
	if err != nil {
		return nil, fmt.Errorf("decode model %s: %w", id, err)
	}
	return m, nil
}

// Latest returns the most recently stored model of a field extension.
func (s *Store) Latest(ctx context.Context, field string, ext int) (Record, *starpsf.Model, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`, payload FROM psf_models
		WHERE field = ? AND extension = ?
		ORDER BY created_ns DESC, rowid DESC
		LIMIT 1
	`, field, ext)
	var payload []byte
	rec, err := scanRecord(row, &payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, nil, fmt.Errorf("%w: field %s extension %d", ErrNotFound, field, ext)
		}
		return Record{}, nil, fmt.Errorf("query latest model: %w", err)
	}
	m, err := starpsf.Unmarshal(payload)
	if err != nil {
		return Record{}, nil, fmt.Errorf("decode model %s: %w", rec.ID, err)
	}
	return rec, m, nil
}

// List returns the records of a field, oldest first. An empty field lists
// every record.
func (s *Store) List(ctx context.Context, field string) ([]Record, error) {
	query := `SELECT ` + recordColumns + ` FROM psf_models`
	var args []any
	if field != "" {
		query += ` WHERE field = ?`
		args = append(args, field)
	}
	query += ` ORDER BY created_ns, rowid`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan model record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

const recordColumns = `id, field, extension, format, ndim, ncoeff, width, height, ncomp, avg_x, avg_y, pix_step, created_ns`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner, extra ...any) (Record, error) {
	var (
		rec     Record
		id      string
		step    float64
		created int64
	)
	dest := []any{&id, &rec.Field, &rec.Extension, &rec.Format, &rec.NDim, &rec.NCoeff,
		&rec.Width, &rec.Height, &rec.NComp, &rec.AvgX, &rec.AvgY, &step, &created}
	if err := sc.Scan(append(dest, extra...)...); err != nil {
		return Record{}, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return Record{}, fmt.Errorf("parse model id %q: %w", id, err)
	}
	rec.ID = parsed
	rec.PixStep = float32(step)
	rec.CreatedAt = time.Unix(0, created)
	return rec, nil
}
