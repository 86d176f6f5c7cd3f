// Package config handles pipeline configuration loading and management.
package config

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/Faultbox/midgard-shadows/internal/logger"
)

// Config holds all pipeline settings.
type Config struct {
	Visibility VisibilityConfig `yaml:"visibility"`
	Occlusion  OcclusionConfig  `yaml:"occlusion"`
	Shadows    ShadowConfig     `yaml:"shadows"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// VisibilityConfig holds frustum, distance and fade settings.
type VisibilityConfig struct {
	FadeEnabled        bool    `yaml:"fade_enabled"`
	FadeTime           float32 `yaml:"fade_time"`            // seconds per fade transition
	FadeRadius         float32 `yaml:"fade_radius"`          // world units past max draw distance
	DrawDistanceScale  float32 `yaml:"draw_distance_scale"`  // multiplies every max draw distance
	ShowDistanceCulled bool    `yaml:"show_distance_culled"` // debug: disable distance culling
	ForcedLOD          int     `yaml:"forced_lod"`           // -1 disables
	Workers            int     `yaml:"workers"`              // 0 uses GOMAXPROCS
	WordsPerTask       int     `yaml:"words_per_task"`       // 64-primitive words per parallel task
}

// OcclusionMethod selects the dynamic occlusion strategy.
type OcclusionMethod string

// Recognised occlusion methods.
const (
	OcclusionNone  OcclusionMethod = "none"
	OcclusionQuery OcclusionMethod = "query"
	OcclusionHZB   OcclusionMethod = "hzb"
)

// OcclusionConfig holds occlusion culling settings.
type OcclusionConfig struct {
	Method              OcclusionMethod `yaml:"method"`
	AllowApproximate    bool            `yaml:"allow_approximate"`
	ProbablyVisibleTime float32         `yaml:"probably_visible_time"` // seconds
	MaxPixelsFraction   float32         `yaml:"max_pixels_fraction"`
	GroupSize           int             `yaml:"group_size"`
	HistoryEvictFrames  uint32          `yaml:"history_evict_frames"`
	HZBMaxTexels        int             `yaml:"hzb_max_texels"` // per axis
	RandomSeed          int64           `yaml:"random_seed"`
}

// ShadowConfig holds shadow scheduling and rendering settings.
type ShadowConfig struct {
	Enabled       bool `yaml:"enabled"`
	MaxResolution int  `yaml:"max_resolution"`
	MinResolution int  `yaml:"min_resolution"`
	AtlasSize     int  `yaml:"atlas_size"`
	AtlasPasses   int  `yaml:"atlas_passes"`
	Border        int  `yaml:"border"`

	NumCascades               int     `yaml:"num_cascades"`
	CascadeDistance           float32 `yaml:"cascade_distance"`
	CascadeDistribution       float32 `yaml:"cascade_distribution"`
	CascadeTransitionFraction float32 `yaml:"cascade_transition_fraction"`
	CascadeResolution         int     `yaml:"cascade_resolution"`

	FadeDistance    float32 `yaml:"fade_distance"`
	FadeResolution  int     `yaml:"fade_resolution"`
	TexelsPerPixel  float32 `yaml:"texels_per_pixel"`
	PerObject       bool    `yaml:"per_object"`
	Preshadows      bool    `yaml:"preshadows"`
	Translucent     bool    `yaml:"translucent"`
	Reflective      bool    `yaml:"reflective"`
	CubeResolution  int     `yaml:"cube_resolution"`
	CubeSlots       int     `yaml:"cube_slots"`
	RSMResolution   int     `yaml:"rsm_resolution"`
	TranslucentSize int     `yaml:"translucent_atlas_size"`

	PreshadowCacheSize int `yaml:"preshadow_cache_size"`
	PreshadowAtlasSize int `yaml:"preshadow_atlas_size"`

	CSMDepthBias    float32 `yaml:"csm_depth_bias"`
	PointDepthBias  float32 `yaml:"point_depth_bias"`
	SpotDepthBias   float32 `yaml:"spot_depth_bias"`
	TransitionScale float32 `yaml:"transition_scale"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // console or json
	LogFile    string `yaml:"log_file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Options converts the settings for logger.Init.
func (l LoggingConfig) Options() logger.Options {
	opts := logger.Options{Level: l.Level, Format: l.Format}
	if l.LogFile != "" {
		opts.File = logger.DefaultFileConfig(l.LogFile)
		if l.MaxSizeMB > 0 {
			opts.File.MaxSizeMB = l.MaxSizeMB
		}
		if l.MaxBackups > 0 {
			opts.File.MaxBackups = l.MaxBackups
		}
		if l.MaxAgeDays > 0 {
			opts.File.MaxAgeDays = l.MaxAgeDays
		}
	}
	return opts
}

// Frame is the immutable snapshot of settings read once per frame.
type Frame struct {
	Visibility VisibilityConfig
	Occlusion  OcclusionConfig
	Shadows    ShadowConfig
}

// Frame returns a copy of the pipeline settings for one frame.
func (c *Config) Frame() Frame {
	return Frame{
		Visibility: c.Visibility,
		Occlusion:  c.Occlusion,
		Shadows:    c.Shadows,
	}
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Visibility: VisibilityConfig{
			FadeEnabled:       true,
			FadeTime:          0.25,
			FadeRadius:        1000,
			DrawDistanceScale: 1,
			ForcedLOD:         -1,
			WordsPerTask:      4,
		},
		Occlusion: OcclusionConfig{
			Method:              OcclusionQuery,
			AllowApproximate:    true,
			ProbablyVisibleTime: 8,
			MaxPixelsFraction:   0.1,
			GroupSize:           8,
			HistoryEvictFrames:  30,
			HZBMaxTexels:        4,
			RandomSeed:          1,
		},
		Shadows: ShadowConfig{
			Enabled:                   true,
			MaxResolution:             2048,
			MinResolution:             32,
			AtlasSize:                 4096,
			AtlasPasses:               2,
			Border:                    4,
			NumCascades:               4,
			CascadeDistance:           6000,
			CascadeDistribution:       0.8,
			CascadeTransitionFraction: 0.1,
			CascadeResolution:         1024,
			FadeDistance:              4000,
			FadeResolution:            64,
			TexelsPerPixel:            1.27324,
			PerObject:                 true,
			Preshadows:                true,
			Translucent:               true,
			Reflective:                true,
			CubeResolution:            512,
			CubeSlots:                 4,
			RSMResolution:             256,
			TranslucentSize:           1024,
			PreshadowCacheSize:        32,
			PreshadowAtlasSize:        2048,
			CSMDepthBias:              20,
			PointDepthBias:            0.05,
			SpotDepthBias:             5,
			TransitionScale:           60,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: logger.FormatConsole,
		},
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var err error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			err = multierr.Append(err, fmt.Errorf(format, args...))
		}
	}

	v := c.Visibility
	check(v.FadeTime > 0, "visibility.fade_time must be positive, got %v", v.FadeTime)
	check(v.FadeRadius >= 0, "visibility.fade_radius must not be negative, got %v", v.FadeRadius)
	check(v.DrawDistanceScale > 0, "visibility.draw_distance_scale must be positive, got %v", v.DrawDistanceScale)
	check(v.Workers >= 0, "visibility.workers must not be negative, got %d", v.Workers)
	check(v.WordsPerTask > 0, "visibility.words_per_task must be positive, got %d", v.WordsPerTask)

	o := c.Occlusion
	switch o.Method {
	case OcclusionNone, OcclusionQuery, OcclusionHZB:
	default:
		check(false, "occlusion.method %q is not one of none, query, hzb", o.Method)
	}
	check(o.GroupSize > 0, "occlusion.group_size must be positive, got %d", o.GroupSize)
	check(o.MaxPixelsFraction > 0, "occlusion.max_pixels_fraction must be positive, got %v", o.MaxPixelsFraction)
	check(o.HZBMaxTexels >= 1, "occlusion.hzb_max_texels must be at least 1, got %d", o.HZBMaxTexels)

	s := c.Shadows
	check(isPow2(s.MaxResolution), "shadows.max_resolution must be a power of two, got %d", s.MaxResolution)
	check(s.MinResolution > 0 && s.MinResolution <= s.MaxResolution,
		"shadows.min_resolution must be in (0, max_resolution], got %d", s.MinResolution)
	check(s.AtlasSize >= s.MaxResolution+2*s.Border,
		"shadows.atlas_size %d cannot hold a max resolution shadow with border", s.AtlasSize)
	check(s.AtlasPasses >= 1, "shadows.atlas_passes must be at least 1, got %d", s.AtlasPasses)
	check(s.Border >= 0, "shadows.border must not be negative, got %d", s.Border)
	check(s.NumCascades >= 0 && s.NumCascades <= 8, "shadows.num_cascades must be in [0, 8], got %d", s.NumCascades)
	check(s.CascadeDistribution >= 0 && s.CascadeDistribution <= 1,
		"shadows.cascade_distribution must be in [0, 1], got %v", s.CascadeDistribution)
	check(s.CascadeTransitionFraction >= 0 && s.CascadeTransitionFraction < 1,
		"shadows.cascade_transition_fraction must be in [0, 1), got %v", s.CascadeTransitionFraction)
	check(s.PreshadowCacheSize >= 0, "shadows.preshadow_cache_size must not be negative, got %d", s.PreshadowCacheSize)
	check(s.CubeSlots >= 0, "shadows.cube_slots must not be negative, got %d", s.CubeSlots)
	check(s.TransitionScale > 0, "shadows.transition_scale must be positive, got %v", s.TransitionScale)

	l := c.Logging
	if _, lerr := logger.ParseLevel(l.Level); lerr != nil {
		check(false, "logging.level: %v", lerr)
	}
	check(l.Format == "" || l.Format == logger.FormatConsole || l.Format == logger.FormatJSON,
		"logging.format %q is not one of console, json", l.Format)

	return err
}

func isPow2(n int) bool {
	return n > 0 && n&(n-1) == 0
}
