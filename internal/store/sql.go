package store

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/smukkama/helmet-monitor/internal/database"
	"github.com/smukkama/helmet-monitor/internal/reading"
)

// SQLStore appends readings as rows of a readings table (SQLite or PostgreSQL)
type SQLStore struct {
	db     *database.DB
	logger *zap.Logger
}

// NewSQL creates a store over an opened database with its schema in place
func NewSQL(db *database.DB, logger *zap.Logger) *SQLStore {
	return &SQLStore{db: db, logger: logger}
}

// Append inserts r as a new row
func (s *SQLStore) Append(ctx context.Context, r reading.Reading) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("%w: encode reading: %w", ErrWrite, err)
	}

	if err := s.db.InsertReading(ctx, r.PersonID, r.Timestamp, payload); err != nil {
		return fmt.Errorf("%w: insert reading: %w", ErrWrite, err)
	}
	return nil
}

// ReadAll returns all rows in insertion order. Rows that fail to decode are
// skipped; a failing query reads as an empty collection.
func (s *SQLStore) ReadAll(ctx context.Context) ([]reading.Reading, error) {
	payloads, err := s.db.ReadingPayloads(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.logger.Warn("failed to read readings table, treating as empty", zap.Error(err))
		return []reading.Reading{}, nil
	}

	return decodePayloads(payloads, s.logger), nil
}

// Close closes the database handle
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func decodePayloads(payloads [][]byte, logger *zap.Logger) []reading.Reading {
	readings := make([]reading.Reading, 0, len(payloads))
	for i, payload := range payloads {
		r, err := reading.Parse(payload)
		if err != nil {
			logger.Warn("skipping malformed stored reading", zap.Int("position", i), zap.Error(err))
			continue
		}
		readings = append(readings, r)
	}
	return readings
}
