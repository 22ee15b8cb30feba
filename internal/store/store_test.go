package store_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"studyhub/internal/apperr"
	"studyhub/internal/db"
	"studyhub/internal/store"
	"studyhub/internal/store/storetest"
)

func TestFileStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := store.NewFileStore(t.TempDir())
		if err != nil {
			t.Fatalf("NewFileStore: %v", err)
		}
		return s
	})
}

func TestFileStoreSkipsForeignFiles(t *testing.T) {
	base := t.TempDir()
	s, err := store.NewFileStore(base)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := os.WriteFile(filepath.Join(base, "tests", "notes.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(base, "tests", "broken.json"), []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	list, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("List = %+v, want empty", list)
	}
}

func TestSQLiteStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		conn, err := db.Open(context.Background(), db.DriverSQLite, "", t.TempDir())
		if err != nil {
			t.Fatalf("db.Open: %v", err)
		}
		s := store.NewSQLStore(conn, db.DriverSQLite)
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	storetest.Run(t, func(t *testing.T) store.Store {
		ctx := context.Background()
		conn, err := db.Open(ctx, db.DriverPostgres, dsn, "")
		if err != nil {
			t.Fatalf("db.Open: %v", err)
		}
		if _, err := conn.ExecContext(ctx, `DELETE FROM tests`); err != nil {
			t.Fatalf("reset tests table: %v", err)
		}
		s := store.NewSQLStore(conn, db.DriverPostgres)
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestKeyLockSerializesSameKey(t *testing.T) {
	kl := store.NewKeyLock()
	var (
		mu      sync.Mutex
		active  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := kl.Lock("t1")
			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Fatalf("max concurrent holders = %d, want 1", maxSeen)
	}
}

func TestKeyLockIndependentKeys(t *testing.T) {
	kl := store.NewKeyLock()
	unlockA := kl.Lock("a")
	done := make(chan struct{})
	go func() {
		unlockB := kl.Lock("b")
		unlockB()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked behind a")
	}
	unlockA()
}

func TestCheckIDRejectsForeignIDs(t *testing.T) {
	for _, id := range []string{"", "q1", "../secret", "3d8e2f3a-9b4c"} {
		err := store.CheckID(id)
		if !apperr.Is(err, apperr.KindNotFound) {
			t.Fatalf("CheckID(%q) = %v, want not found", id, err)
		}
		if e, _ := apperr.As(err); e.Message != fmt.Sprintf("test %q not found", id) {
			t.Fatalf("CheckID(%q) message = %q", id, e.Message)
		}
	}
	if err := store.CheckID("3d8e2f3a-9b4c-4c55-8f0e-2a7b6c5d4e3f"); err != nil {
		t.Fatalf("CheckID on a uuid: %v", err)
	}
}
