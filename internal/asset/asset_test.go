package asset

import (
	"testing"

	"github.com/google/uuid"
)

func TestKeyStripsDashesAndLowercases(t *testing.T) {
	id := uuid.MustParse("2B0C4E1A-9F3D-4C8E-A1B2-3C4D5E6F7A8B")
	r := Record{ID: id}
	if got, want := r.Key(), "2b0c4e1a9f3d4c8ea1b23c4d5e6f7a8b"; got != want {
		t.Fatalf("Key() = %q, want %q", got, want)
	}
}

func TestParseCategory(t *testing.T) {
	cases := map[string]Category{
		"item":     CategoryItem,
		"Items":    CategoryItem,
		"vehicle":  CategoryVehicle,
		" VEHICLE": CategoryVehicle,
	}
	for in, want := range cases {
		got, err := ParseCategory(in)
		if err != nil {
			t.Fatalf("ParseCategory(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParseCategory(%q) = %q, want %q", in, got, want)
		}
	}
	if _, err := ParseCategory("barricade"); err == nil {
		t.Fatal("expected error for unknown category")
	}
}

func TestFootprintDefaults(t *testing.T) {
	x, y := Record{}.Footprint()
	if x != 1 || y != 1 {
		t.Fatalf("Footprint() = %d,%d; want 1,1", x, y)
	}
	x, y = Record{SizeX: 3, SizeY: 2}.Footprint()
	if x != 3 || y != 2 {
		t.Fatalf("Footprint() = %d,%d; want 3,2", x, y)
	}
}

func TestVec3FromShortSlice(t *testing.T) {
	if v := Vec3From([]float64{1, 2}); v != (Vec3{}) {
		t.Fatalf("expected zero vector, got %+v", v)
	}
	if v := Vec3From([]float64{10, 20, 30}); v != (Vec3{X: 10, Y: 20, Z: 30}) {
		t.Fatalf("unexpected vector %+v", v)
	}
}

func TestIsWorkshop(t *testing.T) {
	if (Record{}).IsWorkshop() {
		t.Fatal("zero publisher must be official")
	}
	if !(Record{Publisher: 111}).IsWorkshop() {
		t.Fatal("non-zero publisher must be workshop")
	}
}
