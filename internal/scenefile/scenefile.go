// Package scenefile loads scene descriptions from YAML.
package scenefile

import (
	"errors"
	"fmt"
	gomath "math"
	"os"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/Faultbox/midgard-shadows/internal/engine/camera"
	"github.com/Faultbox/midgard-shadows/internal/engine/lighting"
	"github.com/Faultbox/midgard-shadows/internal/engine/scene"
	"github.com/Faultbox/midgard-shadows/pkg/math"
)

// ErrEmpty is returned for a file with no primitives.
var ErrEmpty = errors.New("scenefile: no primitives")

// File is the YAML document.
type File struct {
	Camera     Camera      `yaml:"camera"`
	Primitives []Primitive `yaml:"primitives"`
	Lights     []Light     `yaml:"lights"`
}

// Camera places the orbit camera. A zero distance fits the camera to the
// scene bounds.
type Camera struct {
	Center   [3]float32 `yaml:"center"`
	Distance float32    `yaml:"distance"`
	Pitch    float32    `yaml:"pitch"` // degrees
	Yaw      float32    `yaml:"yaw"`   // degrees
	FOV      float32    `yaml:"fov"`   // degrees
	Near     float32    `yaml:"near"`
	Far      float32    `yaml:"far"`
}

// LOD is one distance band of a primitive.
type LOD struct {
	Min   float32 `yaml:"min"`
	Max   float32 `yaml:"max"`
	Index int8    `yaml:"index"`
}

// Primitive is a box-bounded scene object.
type Primitive struct {
	Name       string     `yaml:"name"`
	Center     [3]float32 `yaml:"center"`
	Extent     [3]float32 `yaml:"extent"`
	MinDraw    float32    `yaml:"min_draw_distance"`
	MaxDraw    float32    `yaml:"max_draw_distance"`
	LODs       []LOD      `yaml:"lods"`
	CastShadow bool       `yaml:"cast_shadow"`
	Movable    bool       `yaml:"movable"`
	Receives   *bool      `yaml:"receives_shadows"` // default true
	Occludable bool       `yaml:"occludable"`
	Blend      string     `yaml:"blend"` // opaque, masked, translucent, additive, modulate
	TwoSided   bool       `yaml:"two_sided"`
}

// Light is a shadow casting light.
type Light struct {
	Type      string     `yaml:"type"` // directional, point, spot
	Position  [3]float32 `yaml:"position"`
	Direction [3]float32 `yaml:"direction"`
	Radius    float32    `yaml:"radius"`
	ConeAngle float32    `yaml:"cone_angle"` // degrees
	Longitude float32    `yaml:"longitude"`  // directional, degrees
	Latitude  float32    `yaml:"latitude"`   // directional, degrees

	StaticShadowing     bool     `yaml:"static_shadowing"`
	TranslucentShadows  bool     `yaml:"translucent_shadows"`
	ReflectiveShadowMap bool     `yaml:"reflective_shadow_map"`
	Importance          *float32 `yaml:"importance"`
	DepthBiasScale      *float32 `yaml:"depth_bias_scale"`
}

var blendModes = map[string]scene.BlendMode{
	"":            scene.BlendOpaque,
	"opaque":      scene.BlendOpaque,
	"masked":      scene.BlendMasked,
	"translucent": scene.BlendTranslucent,
	"additive":    scene.BlendAdditive,
	"modulate":    scene.BlendModulate,
}

// Load reads and parses a scene file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scene %s: %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("scene %s: %w", path, err)
	}
	return f, nil
}

// Parse decodes a scene document and reports every invalid entry at once.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decoding: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks entries that cannot be turned into scene objects.
func (f *File) Validate() error {
	if len(f.Primitives) == 0 {
		return ErrEmpty
	}
	var err error
	for i, p := range f.Primitives {
		if _, ok := blendModes[p.Blend]; !ok {
			err = multierr.Append(err, fmt.Errorf("primitive %d (%s): unknown blend %q", i, p.Name, p.Blend))
		}
		if p.Extent[0] < 0 || p.Extent[1] < 0 || p.Extent[2] < 0 {
			err = multierr.Append(err, fmt.Errorf("primitive %d (%s): negative extent", i, p.Name))
		}
	}
	for i, l := range f.Lights {
		switch l.Type {
		case "directional":
		case "point", "spot":
			if l.Radius <= 0 {
				err = multierr.Append(err, fmt.Errorf("light %d: %s light needs a positive radius", i, l.Type))
			}
		default:
			err = multierr.Append(err, fmt.Errorf("light %d: unknown type %q", i, l.Type))
		}
	}
	return err
}

func vec(a [3]float32) math.Vec3 { return math.FromArray(a) }

func radians(deg float32) float32 { return deg * gomath.Pi / 180 }

// Build adds the file's primitives and lights to a new scene.
func (f *File) Build() *scene.Scene {
	sc := scene.New()
	for _, p := range f.Primitives {
		sc.Add(p.primitive())
	}
	for _, l := range f.Lights {
		sc.AddLight(l.light())
	}
	return sc
}

func (p Primitive) primitive() scene.Primitive {
	out := scene.Primitive{
		Name:                   p.Name,
		Bounds:                 math.NewBounds(vec(p.Center), vec(p.Extent)),
		MinDrawDistance:        p.MinDraw,
		MaxDrawDistance:        p.MaxDraw,
		CastShadow:             p.CastShadow,
		Movable:                p.Movable,
		ReceivesDynamicShadows: p.Receives == nil || *p.Receives,
		VisibilityID:           scene.NoVisibilityID,
		Material:               scene.FixedMaterial{Blend: blendModes[p.Blend], TwoSided: p.TwoSided},
	}
	if p.Occludable {
		out.Occlusion = scene.CanBeOccluded | scene.AllowApproximateOcclusion
	}
	for _, l := range p.LODs {
		out.LODs = append(out.LODs, scene.StaticMeshLOD{MinDistance: l.Min, MaxDistance: l.Max, LODIndex: l.Index})
	}
	return out
}

func (l Light) light() lighting.Light {
	var out lighting.Light
	switch l.Type {
	case "directional":
		out = lighting.NewSun(l.Longitude, l.Latitude)
	case "point":
		out = lighting.NewPointLight(vec(l.Position), l.Radius)
	case "spot":
		dir := vec(l.Direction)
		if dir.LengthSquared() == 0 {
			dir = math.Vec3{Y: -1}
		}
		out = lighting.NewSpotLight(vec(l.Position), dir, l.Radius, radians(l.ConeAngle))
	}
	out.HasStaticShadowing = l.StaticShadowing
	out.CastTranslucentShadows = l.TranslucentShadows
	out.CastReflectiveShadowMap = l.ReflectiveShadowMap
	if l.Importance != nil {
		out.Importance = *l.Importance
	}
	if l.DepthBiasScale != nil {
		out.DepthBiasScale = *l.DepthBiasScale
	}
	return out
}

// Bounds returns the union of every primitive's bounds.
func (f *File) Bounds() math.BoxSphereBounds {
	var b math.BoxSphereBounds
	for i, p := range f.Primitives {
		pb := math.NewBounds(vec(p.Center), vec(p.Extent))
		if i == 0 {
			b = pb
			continue
		}
		b = b.Union(pb)
	}
	return b
}

// OrbitCamera returns the camera described by the file.
func (f *File) OrbitCamera() *camera.OrbitCamera {
	c := camera.NewOrbitCamera()
	if f.Camera.FOV > 0 {
		c.Lens.FOV = radians(f.Camera.FOV)
	}
	if f.Camera.Near > 0 {
		c.Lens.Near = f.Camera.Near
	}
	if f.Camera.Far > 0 {
		c.Lens.Far = f.Camera.Far
	}
	if f.Camera.Distance <= 0 {
		c.FitToBounds(f.Bounds())
		return c
	}
	c.Center = vec(f.Camera.Center)
	c.Distance = f.Camera.Distance
	c.RotationX = radians(f.Camera.Pitch)
	c.RotationY = radians(f.Camera.Yaw)
	return c
}
