package render

import (
	"errors"
	"math"

	"github.com/loykin/iconrender/internal/asset"
)

// Fitter computes a camera framing for an asset at a given frame size.
type Fitter interface {
	Fit(rec asset.Record, frame Frame) Extent
}

var errNoBounds = errors.New("asset has no usable bounds")

// BoundsFitter frames the asset's bounding box with an orthographic camera.
// When the bounds are missing or degenerate it falls back to a biased
// extent centred on the origin.
type BoundsFitter struct {
	// Padding multiplies the tight extent. Zero means 1.05.
	Padding float64
	// Fallback is the ortho size used when no fit can be computed. Zero means 5.
	Fallback float64
	// Distance is how far the camera sits in front of the asset. Zero means 32.
	Distance float64
}

func (f BoundsFitter) Fit(rec asset.Record, frame Frame) Extent {
	e, err := f.exact(rec, frame)
	if err != nil {
		return f.fallback(rec)
	}
	return e
}

func (f BoundsFitter) exact(rec asset.Record, frame Frame) (Extent, error) {
	b := rec.Bounds
	if b == nil || frame.Width <= 0 || frame.Height <= 0 {
		return Extent{}, errNoBounds
	}
	w, h := math.Abs(b.Size.X), math.Abs(b.Size.Y)
	if w == 0 && h == 0 {
		return Extent{}, errNoBounds
	}
	aspect := float64(frame.Width) / float64(frame.Height)
	size := math.Max(h/2, w/(2*aspect)) * f.padding()
	if math.IsNaN(size) || math.IsInf(size, 0) || size <= 0 {
		return Extent{}, errNoBounds
	}
	cam := asset.Vec3{X: b.Center.X, Y: b.Center.Y, Z: b.Center.Z - math.Abs(b.Size.Z)/2 - f.distance()}
	return Extent{OrthoSize: size, Camera: cam}, nil
}

func (f BoundsFitter) fallback(rec asset.Record) Extent {
	size := f.Fallback
	if size <= 0 {
		size = 5
	}
	// vehicles are usually wider than tall; bias the camera up a little
	y := 0.0
	if rec.Category == asset.CategoryVehicle {
		y = size * 0.25
	}
	return Extent{OrthoSize: size, Camera: asset.Vec3{Y: y, Z: -f.distance()}}
}

func (f BoundsFitter) padding() float64 {
	if f.Padding <= 0 {
		return 1.05
	}
	return f.Padding
}

func (f BoundsFitter) distance() float64 {
	if f.Distance <= 0 {
		return 32
	}
	return f.Distance
}
