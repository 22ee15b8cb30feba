package store

import (
	"context"
	"fmt"
	"sync"

	"studyhub/internal/apperr"
	"studyhub/internal/models"

	"github.com/google/uuid"
)

// Store is the durable home of Test documents, keyed by test id.
//
// Every backend funnels mutation through a single read-modify-write step per
// key, so two AppendSubmission calls on the same test are applied one after
// the other and neither is lost.
type Store interface {
	Create(ctx context.Context, t *models.Test) (string, error)
	Get(ctx context.Context, id string) (*models.Test, error)
	List(ctx context.Context) ([]models.TestSummary, error)
	AppendSubmission(ctx context.Context, testID string, sub models.Submission) error
	Close() error
}

// PrepareNew assigns a fresh id and normalizes nil slices before a test is
// first written. It is shared by all backends.
func PrepareNew(t *models.Test) {
	t.ID = uuid.NewString()
	if t.Questions == nil {
		t.Questions = []models.Question{}
	}
	if t.Results == nil {
		t.Results = []models.Submission{}
	}
}

// CheckID rejects ids that could not have been issued by PrepareNew.
func CheckID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return NotFound(id)
	}
	return nil
}

// NotFound is the error every backend returns for a missing test.
func NotFound(id string) error {
	return apperr.NotFound(fmt.Sprintf("test %q not found", id))
}

// KeyLock hands out one mutex per key and forgets it once nobody holds it.
type KeyLock struct {
	mu    sync.Mutex
	locks map[string]*keyEntry
}

type keyEntry struct {
	mu   sync.Mutex
	refs int
}

func NewKeyLock() *KeyLock {
	return &KeyLock{locks: map[string]*keyEntry{}}
}

// Lock blocks until key is free and returns the matching unlock func.
func (k *KeyLock) Lock(key string) func() {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *KeyLock) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
