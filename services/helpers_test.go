package services

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/parolam/breach-checker/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// memStore is an append-only in-memory store that never merges: every
// insert stays a separate row, like a MergeTree part before compaction.
type memStore struct {
	mu        sync.Mutex
	breaches  []models.Breach
	emails    []models.EmailLeak
	passwords []models.PasswordLeak

	queries int
	inserts int
	// failInsertAfter makes the (n+1)th leak insert fail; -1 disables it.
	failInsertAfter int
}

var errStoreDown = errors.New("store unreachable")

func newMemStore() *memStore {
	return &memStore{failInsertAfter: -1}
}

func (m *memStore) CreateIfMissing(ctx context.Context) error { return nil }
func (m *memStore) Ping(ctx context.Context) error            { return nil }
func (m *memStore) Close() error                              { return nil }

func (m *memStore) FindBreachID(ctx context.Context, name string) (uint32, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries++

	var (
		id    uint32
		found bool
	)
	for _, b := range m.breaches {
		if b.Name == name && (!found || b.ID < id) {
			id, found = b.ID, true
		}
	}
	return id, found, nil
}

func (m *memStore) MaxBreachID(ctx context.Context) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries++

	var maxID uint32
	for _, b := range m.breaches {
		if b.ID > maxID {
			maxID = b.ID
		}
	}
	return maxID, nil
}

func (m *memStore) InsertBreach(ctx context.Context, b models.Breach) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.breaches = append(m.breaches, b)
	return nil
}

func (m *memStore) Breaches(ctx context.Context, ids []uint32) ([]models.Breach, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries++

	want := make(map[uint32]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []models.Breach
	for _, b := range m.breaches {
		if want[b.ID] {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memStore) insertAllowed() error {
	if m.failInsertAfter >= 0 && m.inserts >= m.failInsertAfter {
		return errStoreDown
	}
	m.inserts++
	return nil
}

func (m *memStore) InsertEmailLeaks(ctx context.Context, rows []models.EmailLeak) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.insertAllowed(); err != nil {
		return err
	}
	m.emails = append(m.emails, rows...)
	return nil
}

func (m *memStore) InsertPasswordLeaks(ctx context.Context, rows []models.PasswordLeak) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.insertAllowed(); err != nil {
		return err
	}
	m.passwords = append(m.passwords, rows...)
	return nil
}

// EmailBreachIDs returns one id per stored row, duplicates included.
func (m *memStore) EmailBreachIDs(ctx context.Context, prefix, suffix string) ([]uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries++

	var ids []uint32
	for _, e := range m.emails {
		if e.EmailPrefix == prefix && e.EmailSuffix == suffix {
			ids = append(ids, e.BreachID)
		}
	}
	return ids, nil
}

// PasswordRange returns one entry per stored row without summing.
func (m *memStore) PasswordRange(ctx context.Context, prefix string) ([]models.SuffixCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries++

	var out []models.SuffixCount
	for _, p := range m.passwords {
		if p.HashPrefix == prefix {
			out = append(out, models.SuffixCount{Suffix: p.HashSuffix, Count: p.Prevalence})
		}
	}
	return out, nil
}

func (m *memStore) Stats(ctx context.Context) (models.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries++
	return models.Stats{
		EmailCount:    uint64(len(m.emails)),
		PasswordCount: uint64(len(m.passwords)),
		BreachCount:   uint64(len(m.breaches)),
	}, nil
}

func (m *memStore) queryCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queries
}

// writeFile creates dir/name under root with the given content.
func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
