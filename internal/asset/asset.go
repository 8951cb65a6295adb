package asset

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Category distinguishes the two render paths.
type Category string

const (
	CategoryItem    Category = "item"
	CategoryVehicle Category = "vehicle"
)

// ParseCategory accepts the marker/catalog spelling of a category.
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "item", "items":
		return CategoryItem, nil
	case "vehicle", "vehicles":
		return CategoryVehicle, nil
	default:
		return "", fmt.Errorf("unknown asset category %q", s)
	}
}

// Dir returns the output directory name used under Extras.
func (c Category) Dir() string {
	if c == CategoryVehicle {
		return "Vehicles"
	}
	return "Items"
}

// Plural is the lower-case collection name used in override URLs.
func (c Category) Plural() string {
	if c == CategoryVehicle {
		return "vehicles"
	}
	return "items"
}

// Vec3 is an x/y/z triple used for angles, bounds and camera positions.
type Vec3 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// Vec3From builds a vector from a config slice. Fewer than three values
// yield the zero vector.
func Vec3From(v []float64) Vec3 {
	if len(v) < 3 {
		return Vec3{}
	}
	return Vec3{X: v[0], Y: v[1], Z: v[2]}
}

// Bounds is the axis-aligned bounding box of an asset's model.
type Bounds struct {
	Center Vec3 `json:"center" yaml:"center"`
	Size   Vec3 `json:"size" yaml:"size"`
}

// Record is one catalog entry. Records are owned by the catalog and are
// never mutated by the renderer.
type Record struct {
	ID        uuid.UUID `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	Category  Category  `json:"category" yaml:"category"`
	Publisher uint64    `json:"publisher,omitempty" yaml:"publisher,omitempty"`

	// Footprint in inventory cells; items only. Zero means 1.
	SizeX int `json:"size_x,omitempty" yaml:"size_x,omitempty"`
	SizeY int `json:"size_y,omitempty" yaml:"size_y,omitempty"`

	Bounds *Bounds `json:"bounds,omitempty" yaml:"bounds,omitempty"`
	// Paint is a default paint colour (#rrggbb) for paintable vehicles.
	Paint string `json:"paint,omitempty" yaml:"paint,omitempty"`
}

// IsWorkshop reports whether the asset comes from a third-party publisher.
func (r Record) IsWorkshop() bool { return r.Publisher != 0 }

// Key is the file name stem for the asset: the id without dashes, lower case.
func (r Record) Key() string { return Key(r.ID) }

// Key formats an id the way output files are named.
func Key(id uuid.UUID) string {
	return strings.ToLower(strings.ReplaceAll(id.String(), "-", ""))
}

// Footprint returns the item cell footprint, defaulting each axis to 1.
func (r Record) Footprint() (int, int) {
	x, y := r.SizeX, r.SizeY
	if x <= 0 {
		x = 1
	}
	if y <= 0 {
		y = 1
	}
	return x, y
}

func (r Record) String() string {
	return fmt.Sprintf("%s (%s)", r.ID, r.Name)
}
