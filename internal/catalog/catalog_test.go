package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/iconrender/internal/asset"
)

const sample = `assets:
  - id: 00000000-0000-0000-0000-000000000002
    name: Sedan
    category: vehicle
  - id: 00000000-0000-0000-0000-000000000001
    name: Eaglefire
    category: items
    publisher: 111
    size_x: 4
    size_y: 2
`

func TestReadFileParsesAndNormalizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	recs, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, asset.CategoryItem, recs[0].Category)
	assert.Equal(t, uint64(111), recs[0].Publisher)
	assert.Equal(t, 4, recs[0].SizeX)
	assert.Equal(t, asset.CategoryVehicle, recs[1].Category)
	assert.Equal(t, uuid.MustParse("00000000-0000-0000-0000-000000000002"), recs[1].ID)
}

func TestReadFileRejectsUnknownCategory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	doc := "assets:\n  - id: 00000000-0000-0000-0000-000000000001\n    category: animal\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	_, err := ReadFile(path)
	require.Error(t, err)
}

func TestFileLoadingFlag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	c := NewFile(path, nil)
	assert.True(t, c.Loading())
	_, err := c.Query(context.Background(), Filter{})
	require.Error(t, err, "query while loading must fail")

	require.NoError(t, c.Load(context.Background()))
	assert.False(t, c.Loading())

	items, err := c.Query(context.Background(), Filter{Category: asset.CategoryItem})
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestFileLoadErrorIsReported(t *testing.T) {
	c := NewFile(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.Error(t, c.Load(context.Background()))
	assert.False(t, c.Loading())
	_, err := c.Query(context.Background(), Filter{})
	require.Error(t, err)
}

func TestMemoryFilterByPublisher(t *testing.T) {
	pub := uint64(222)
	m := NewMemory(
		asset.Record{ID: uuid.New(), Category: asset.CategoryItem, Publisher: 111},
		asset.Record{ID: uuid.New(), Category: asset.CategoryItem, Publisher: 222},
		asset.Record{ID: uuid.New(), Category: asset.CategoryVehicle, Publisher: 222},
		asset.Record{ID: uuid.New(), Category: asset.CategoryVehicle},
	)
	got, err := m.Query(context.Background(), Filter{Publisher: &pub})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = m.Query(context.Background(), Filter{Category: asset.CategoryVehicle, Publisher: &pub})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
