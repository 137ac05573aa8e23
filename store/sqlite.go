package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schema string

// ErrNotFound signals a missing prediction.
var ErrNotFound = errors.New("prediction not found")

// Prediction is one logged tagging request.
type Prediction struct {
	ID     string   `json:"id"`
	Tokens []string `json:"tokens"`
	Tags   []string `json:"tags"`
	// Score is nil when no finite path score exists (fallback tagging).
	Score     *float64  `json:"score"`
	Fallback  bool      `json:"fallback"`
	CreatedAt time.Time `json:"created_at"`
}

// Store handles database operations
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	// Initialize schema
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores p under a fresh id and returns the stored copy.
func (s *Store) Record(ctx context.Context, p Prediction) (*Prediction, error) {
	tokens, err := json.Marshal(p.Tokens)
	if err != nil {
		return nil, fmt.Errorf("encode tokens: %w", err)
	}
	tags, err := json.Marshal(p.Tags)
	if err != nil {
		return nil, fmt.Errorf("encode tags: %w", err)
	}

	var score sql.NullFloat64
	if p.Score != nil && !math.IsInf(*p.Score, 0) && !math.IsNaN(*p.Score) {
		score = sql.NullFloat64{Float64: *p.Score, Valid: true}
	}

	p.ID = uuid.New().String()
	p.CreatedAt = time.Now().UTC()
	if !score.Valid {
		p.Score = nil
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO predictions (id, tokens, tags, score, fallback, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		p.ID, string(tokens), string(tags), score, p.Fallback, p.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert prediction: %w", err)
	}
	return &p, nil
}

// Get retrieves a prediction by ID
func (s *Store) Get(ctx context.Context, id string) (*Prediction, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, tokens, tags, score, fallback, created_at FROM predictions WHERE id = ?",
		id,
	)
	p, err := scanPrediction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get prediction: %w", err)
	}
	return p, nil
}

// List returns recent predictions with pagination, newest first
func (s *Store) List(ctx context.Context, limit, offset int) ([]Prediction, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, tokens, tags, score, fallback, created_at FROM predictions ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?",
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list predictions: %w", err)
	}
	defer rows.Close()

	var out []Prediction
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan prediction: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPrediction(row scanner) (*Prediction, error) {
	var (
		p      Prediction
		tokens string
		tags   string
		score  sql.NullFloat64
	)
	if err := row.Scan(&p.ID, &tokens, &tags, &score, &p.Fallback, &p.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tokens), &p.Tokens); err != nil {
		return nil, fmt.Errorf("decode tokens: %w", err)
	}
	if err := json.Unmarshal([]byte(tags), &p.Tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	if score.Valid {
		v := score.Float64
		p.Score = &v
	}
	return &p, nil
}
