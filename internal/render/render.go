// Package render defines the contracts between the batch pipeline and the
// engine that actually draws icons. The engine is treated as an opaque and
// possibly crashing capability; everything here is about driving it safely.
package render

import (
	"context"
	"errors"

	"github.com/loykin/iconrender/internal/asset"
)

// ErrNoGeometry reports that the engine has no model for an asset. It is
// fatal to the asset.
var ErrNoGeometry = errors.New("render: asset has no geometry")

// Frame is the output resolution in pixels.
type Frame struct {
	Width  int
	Height int
}

// Extent is the camera framing produced by a Fitter.
type Extent struct {
	OrthoSize float64
	Camera    asset.Vec3
}

// Engine renders one vehicle at a time. LoadScene returning (nil, nil)
// means the asset has no geometry.
type Engine interface {
	LoadScene(ctx context.Context, rec asset.Record) (Scene, error)
	Capture(ctx context.Context, scene Scene, frame Frame, extent Extent) ([]byte, error)
}

// Scene is the transient object graph instantiated for one render attempt.
type Scene interface {
	ResetOrientation() error
	// Hide deactivates the named child object. Missing names are not errors.
	Hide(name string) error
	// NeutralizeAuxiliary resets rotor blades and other auxiliary layers
	// that would otherwise smear the capture.
	NeutralizeAuxiliary() error
	Rotate(angles asset.Vec3) error
	PlaceCamera(extent Extent) error
	Destroy()
}

// Painter is implemented by scenes that support a paint colour.
type Painter interface {
	ApplyPaint(color string) error
}

// IconRequest is one item capture handed to an ItemEngine.
type IconRequest struct {
	Asset      asset.Record
	Frame      Frame
	Angles     asset.Vec3
	OutputPath string
}

// Completion receives the encoded PNG, or the error that prevented it.
type Completion func(data []byte, err error)

// ItemEngine is the engine's own asynchronous icon facility. The engine
// calls the installed Hooks around its risky synchronous capture step and
// later invokes done from the tick goroutine.
type ItemEngine interface {
	SetHooks(h Hooks)
	RequestIcon(ctx context.Context, req IconRequest, done Completion) error
}
