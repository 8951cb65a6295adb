package skiplist

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/iconrender/internal/config"
)

type countingSaver struct {
	calls int
	err   error
}

func (c *countingSaver) Save() error {
	c.calls++
	return c.err
}

func TestAddIsIdempotent(t *testing.T) {
	var ids []uuid.UUID
	saver := &countingSaver{}
	s := New(&ids, saver, nil)
	id := uuid.New()

	assert.True(t, s.Add(id, "Eaglefire"))
	assert.False(t, s.Add(id, "Eaglefire"))

	assert.Equal(t, 1, s.Len())
	assert.Equal(t, []uuid.UUID{id}, ids)
	assert.Equal(t, 1, saver.calls, "second add must not save")
}

func TestNewDeduplicates(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	ids := []uuid.UUID{a, b, a, b, a}
	s := New(&ids, nil, nil)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []uuid.UUID{a, b}, ids)
}

func TestSaveFailureIsNotFatal(t *testing.T) {
	var ids []uuid.UUID
	saver := &countingSaver{err: errors.New("disk full")}
	s := New(&ids, saver, nil)
	id := uuid.New()

	assert.True(t, s.Add(id, "x"))
	assert.True(t, s.Contains(id))
}

func TestInsertReturnsSaveError(t *testing.T) {
	var ids []uuid.UUID
	saver := &countingSaver{err: errors.New("read-only file system")}
	s := New(&ids, saver, nil)
	id := uuid.New()

	added, err := s.Insert(id, "Operator Pick")
	assert.True(t, added)
	require.EqualError(t, err, "read-only file system")
	assert.True(t, s.Contains(id))

	added, err = s.Insert(id, "Operator Pick")
	assert.False(t, added)
	assert.NoError(t, err)
	assert.Equal(t, 1, saver.calls)
}

func TestRemove(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	ids := []uuid.UUID{a, b}
	saver := &countingSaver{}
	s := New(&ids, saver, nil)

	removed, err := s.Remove(a)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.False(t, s.Contains(a))
	assert.Equal(t, []uuid.UUID{b}, s.List())

	removed, err = s.Remove(a)
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Equal(t, 1, saver.calls)
}

func TestPersistReloadLookup(t *testing.T) {
	path := filepath.Join(t.TempDir(), config.FileName)
	store := config.Open(path, nil)
	cfg := store.Config()
	s := New(&cfg.SkipGuids, store, nil)

	listed := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for _, id := range listed {
		s.Add(id, "asset")
	}
	for _, id := range listed {
		require.True(t, s.Contains(id))
	}

	reloaded := config.Open(path, nil)
	rcfg := reloaded.Config()
	r := New(&rcfg.SkipGuids, reloaded, nil)
	for _, id := range listed {
		assert.True(t, r.Contains(id), "id %s lost across reload", id)
	}
	assert.False(t, r.Contains(uuid.New()))
}
