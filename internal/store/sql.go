package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"time"

	"studyhub/internal/apperr"
	"studyhub/internal/db"
	"studyhub/internal/models"
)

// SQLStore keeps each test as a JSON document in the tests table, next to
// the columns List needs so listing never decodes question bodies.
type SQLStore struct {
	db     *sql.DB
	driver db.Driver
	locks  *KeyLock
}

func NewSQLStore(conn *sql.DB, driver db.Driver) *SQLStore {
	return &SQLStore{db: conn, driver: driver, locks: NewKeyLock()}
}

// DB exposes the pool, e.g. for the postgres session store.
func (s *SQLStore) DB() *sql.DB { return s.db }

func (s *SQLStore) Create(ctx context.Context, t *models.Test) (string, error) {
	PrepareNew(t)
	doc, err := json.Marshal(t)
	if err != nil {
		return "", apperr.Storage("encode test", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO tests (id,name,created_at,question_count,doc)
		VALUES ($1,$2,$3,$4,$5)`,
		t.ID, t.Name, t.CreatedAt.UnixMilli(), len(t.Questions), string(doc))
	if err != nil {
		return "", apperr.Storage("insert test", err)
	}
	log.Printf("INFO: %s store: created test %s (%d questions)", s.driver, t.ID, len(t.Questions))
	return t.ID, nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (*models.Test, error) {
	if err := CheckID(id); err != nil {
		return nil, err
	}
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM tests WHERE id=$1`, id).Scan(&doc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NotFound(id)
		}
		return nil, apperr.Storage("select test "+id, err)
	}
	return decodeDoc(id, doc)
}

func (s *SQLStore) List(ctx context.Context) ([]models.TestSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,name,created_at,question_count FROM tests ORDER BY created_at, id`)
	if err != nil {
		return nil, apperr.Storage("list tests", err)
	}
	defer rows.Close()

	out := []models.TestSummary{}
	for rows.Next() {
		var (
			ts      models.TestSummary
			created int64
		)
		if err := rows.Scan(&ts.ID, &ts.Name, &created, &ts.QuestionCount); err != nil {
			return nil, apperr.Storage("scan test row", err)
		}
		ts.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, ts)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("list tests", err)
	}
	return out, nil
}

func (s *SQLStore) AppendSubmission(ctx context.Context, testID string, sub models.Submission) error {
	return s.update(ctx, testID, func(t *models.Test) error {
		t.Results = append(t.Results, sub)
		return nil
	})
}

func (s *SQLStore) Close() error { return s.db.Close() }

// update reads, transforms and rewrites one document inside a transaction.
// Postgres additionally row-locks so separate processes serialize too.
func (s *SQLStore) update(ctx context.Context, id string, fn func(*models.Test) error) error {
	if err := CheckID(id); err != nil {
		return err
	}
	unlock := s.locks.Lock(id)
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Storage("begin transaction", err)
	}
	defer tx.Rollback() // no-op after Commit

	query := `SELECT doc FROM tests WHERE id=$1`
	if s.driver == db.DriverPostgres {
		query += ` FOR UPDATE`
	}
	var doc string
	if err := tx.QueryRowContext(ctx, query, id).Scan(&doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return NotFound(id)
		}
		return apperr.Storage("select test "+id, err)
	}
	t, err := decodeDoc(id, doc)
	if err != nil {
		return err
	}
	if err := fn(t); err != nil {
		return err
	}
	updated, err := json.Marshal(t)
	if err != nil {
		return apperr.Storage("encode test "+id, err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE tests SET doc=$1 WHERE id=$2`, string(updated), id); err != nil {
		return apperr.Storage("update test "+id, err)
	}
	if err := tx.Commit(); err != nil {
		return apperr.Storage("commit test "+id, err)
	}
	return nil
}

func decodeDoc(id, doc string) (*models.Test, error) {
	var t models.Test
	if err := json.Unmarshal([]byte(doc), &t); err != nil {
		return nil, apperr.Storage("decode test "+id, err)
	}
	return &t, nil
}
