package command

import (
	"errors"
	"strconv"
	"strings"

	"github.com/loykin/iconrender/internal/asset"
	"github.com/loykin/iconrender/internal/render"
)

var errDestroyed = errors.New("scene already destroyed")

// scene records the setup steps requested by the pipeline. The render
// command receives them as environment variables when Capture runs.
type scene struct {
	rec       asset.Record
	reset     bool
	hidden    []string
	neutral   bool
	angles    asset.Vec3
	extent    *render.Extent
	paint     string
	destroyed bool
}

func (s *scene) ResetOrientation() error {
	if s.destroyed {
		return errDestroyed
	}
	s.reset = true
	s.angles = asset.Vec3{}
	return nil
}

func (s *scene) Hide(name string) error {
	if s.destroyed {
		return errDestroyed
	}
	if name = strings.TrimSpace(name); name != "" {
		s.hidden = append(s.hidden, name)
	}
	return nil
}

func (s *scene) NeutralizeAuxiliary() error {
	if s.destroyed {
		return errDestroyed
	}
	s.neutral = true
	return nil
}

func (s *scene) Rotate(angles asset.Vec3) error {
	if s.destroyed {
		return errDestroyed
	}
	s.angles.X += angles.X
	s.angles.Y += angles.Y
	s.angles.Z += angles.Z
	return nil
}

func (s *scene) PlaceCamera(e render.Extent) error {
	if s.destroyed {
		return errDestroyed
	}
	s.extent = &e
	return nil
}

func (s *scene) ApplyPaint(color string) error {
	if s.destroyed {
		return errDestroyed
	}
	s.paint = color
	return nil
}

func (s *scene) Destroy() { s.destroyed = true }

// vars is the per-call environment handed to the render command.
func (s *scene) vars(action string, frame render.Frame) []string {
	v := []string{
		"ICON_ACTION=" + action,
		"ICON_ASSET_ID=" + s.rec.ID.String(),
		"ICON_ASSET_NAME=" + s.rec.Name,
		"ICON_CATEGORY=" + string(s.rec.Category),
		"ICON_PUBLISHER=" + strconv.FormatUint(s.rec.Publisher, 10),
		"ICON_WIDTH=" + strconv.Itoa(frame.Width),
		"ICON_HEIGHT=" + strconv.Itoa(frame.Height),
		"ICON_ANGLES=" + vec(s.angles),
		"ICON_RESET_ORIENTATION=" + strconv.FormatBool(s.reset),
		"ICON_NEUTRALIZE_AUX=" + strconv.FormatBool(s.neutral),
		"ICON_HIDE=" + strings.Join(s.hidden, ","),
	}
	if s.extent != nil {
		v = append(v,
			"ICON_ORTHO_SIZE="+strconv.FormatFloat(s.extent.OrthoSize, 'f', -1, 64),
			"ICON_CAMERA="+vec(s.extent.Camera),
		)
	}
	if s.paint != "" {
		v = append(v, "ICON_PAINT="+s.paint)
	}
	return v
}

func vec(v asset.Vec3) string {
	f := func(x float64) string { return strconv.FormatFloat(x, 'f', -1, 64) }
	return f(v.X) + "," + f(v.Y) + "," + f(v.Z)
}
