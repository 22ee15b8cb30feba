package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"studyhub/internal/apperr"
	"studyhub/internal/models"

	"github.com/google/renameio/v2"
)

// FileStore keeps one JSON document per test under <base>/tests/<id>.json.
// Writes replace the whole file atomically.
type FileStore struct {
	dir   string
	locks *KeyLock
}

func NewFileStore(base string) (*FileStore, error) {
	if base == "" {
		base = "./data"
	}
	dir := filepath.Join(base, "tests")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", dir, err)
	}
	return &FileStore{dir: dir, locks: NewKeyLock()}, nil
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *FileStore) Create(ctx context.Context, t *models.Test) (string, error) {
	PrepareNew(t)
	unlock := s.locks.Lock(t.ID)
	defer unlock()

	if err := s.write(t); err != nil {
		return "", err
	}
	log.Printf("INFO: file store: created test %s (%d questions)", t.ID, len(t.Questions))
	return t.ID, nil
}

func (s *FileStore) Get(ctx context.Context, id string) (*models.Test, error) {
	if err := CheckID(id); err != nil {
		return nil, err
	}
	return s.read(id)
}

// listEntry decodes only what a summary needs; question bodies stay raw.
type listEntry struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	CreatedAt time.Time         `json:"createdAt"`
	Questions []json.RawMessage `json:"questions"`
}

func (s *FileStore) List(ctx context.Context) ([]models.TestSummary, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, apperr.Storage("read tests directory", err)
	}
	out := make([]models.TestSummary, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			return nil, apperr.Storage("read test "+e.Name(), err)
		}
		var le listEntry
		if err := json.Unmarshal(data, &le); err != nil {
			log.Printf("WARN: file store: skipping unreadable test file %s: %v", e.Name(), err)
			continue
		}
		out = append(out, models.TestSummary{
			ID:            le.ID,
			Name:          le.Name,
			CreatedAt:     le.CreatedAt,
			QuestionCount: len(le.Questions),
		})
	}
	SortSummaries(out)
	return out, nil
}

func (s *FileStore) AppendSubmission(ctx context.Context, testID string, sub models.Submission) error {
	return s.update(testID, func(t *models.Test) error {
		t.Results = append(t.Results, sub)
		return nil
	})
}

func (s *FileStore) Close() error { return nil }

// update is the only mutation path for existing tests.
func (s *FileStore) update(id string, fn func(*models.Test) error) error {
	if err := CheckID(id); err != nil {
		return err
	}
	unlock := s.locks.Lock(id)
	defer unlock()

	t, err := s.read(id)
	if err != nil {
		return err
	}
	if err := fn(t); err != nil {
		return err
	}
	return s.write(t)
}

func (s *FileStore) read(id string) (*models.Test, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, NotFound(id)
		}
		return nil, apperr.Storage("read test "+id, err)
	}
	var t models.Test
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, apperr.Storage("decode test "+id, err)
	}
	return &t, nil
}

func (s *FileStore) write(t *models.Test) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return apperr.Storage("encode test "+t.ID, err)
	}
	if err := renameio.WriteFile(s.path(t.ID), data, 0o644); err != nil {
		return apperr.Storage("write test "+t.ID, err)
	}
	return nil
}

// SortSummaries orders by CreatedAt, then ID.
func SortSummaries(out []models.TestSummary) {
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
}
