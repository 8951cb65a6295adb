package crashguard

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/loykin/iconrender/internal/asset"
)

// MarkerFile is the in-flight marker's name under the data root.
const MarkerFile = "pending_asset.txt"

var ErrMalformedMarker = errors.New("malformed in-flight marker")

// Marker names the one asset whose render call is executing, or was
// executing when the process died.
type Marker struct {
	ID       uuid.UUID
	Name     string
	Category asset.Category
}

func (m Marker) encode() []byte {
	return []byte(m.ID.String() + "\n" + m.Name + "\n" + string(m.Category))
}

// WriteMarker replaces the marker at path.
func WriteMarker(path string, m Marker) error {
	_ = os.MkdirAll(filepath.Dir(path), 0o750)
	return os.WriteFile(path, m.encode(), 0o600)
}

// ReadMarker reads a marker written by WriteMarker. The first line must be
// an asset id and at least three lines must be present.
func ReadMarker(path string) (Marker, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Marker{}, err
	}
	return parseMarker(string(b))
}

func parseMarker(s string) (Marker, error) {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	if len(lines) < 3 {
		return Marker{}, fmt.Errorf("%w: %d lines", ErrMalformedMarker, len(lines))
	}
	id, err := uuid.Parse(strings.TrimSpace(lines[0]))
	if err != nil {
		return Marker{}, fmt.Errorf("%w: %v", ErrMalformedMarker, err)
	}
	return Marker{
		ID:       id,
		Name:     strings.TrimSpace(lines[1]),
		Category: asset.Category(strings.TrimSpace(lines[2])),
	}, nil
}
