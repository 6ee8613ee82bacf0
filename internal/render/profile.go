// Package render runs image and video jobs end to end: it validates the
// request, fetches sources, lays out and rasterizes captions, computes motion
// and timing, synthesizes the encoder pipeline and publishes the result.
package render

import (
	"errors"
	"fmt"
	"math"

	"github.com/maauso/reelcard-api/internal/filtergraph"
	"github.com/maauso/reelcard-api/internal/motion"
	"github.com/maauso/reelcard-api/internal/timing"
	"github.com/maauso/reelcard-api/internal/typography"
)

// ErrInvalidProfile is returned when a render profile fails validation.
var ErrInvalidProfile = errors.New("render: invalid profile")

// MaxCaptionLines bounds the max_lines request parameter.
const MaxCaptionLines = 20

// Profile holds the engine constants shared by every job.
type Profile struct {
	FrameRate int `yaml:"frame_rate"`
	MaxSlides int `yaml:"max_slides"`

	ImageWidth    int `yaml:"image_width"`
	ImageHeight   int `yaml:"image_height"`
	ImageMaxLines int `yaml:"image_max_lines"`
	JPEGQuality   int `yaml:"jpeg_quality"`
	BadgeSize     int `yaml:"badge_size"`
	BadgeMargin   int `yaml:"badge_margin"`

	VideoWidth    int `yaml:"video_width"`
	VideoHeight   int `yaml:"video_height"`
	VideoMaxLines int `yaml:"video_max_lines"`
	// CaptionBandRatio is the share of the frame height given to the caption layer.
	CaptionBandRatio float64 `yaml:"caption_band_ratio"`
	// SafeZoneRatio is the share of the frame height kept clear below the caption band.
	SafeZoneRatio float64 `yaml:"safe_zone_ratio"`

	Typography typography.Params   `yaml:"typography"`
	Motion     motion.Params       `yaml:"motion"`
	Timing     timing.Params       `yaml:"timing"`
	Encoder    filtergraph.Encoder `yaml:"encoder"`
}

// DefaultProfile returns the compiled-in profile.
func DefaultProfile() Profile {
	return Profile{
		FrameRate:        30,
		MaxSlides:        4,
		ImageWidth:       1080,
		ImageHeight:      1350,
		ImageMaxLines:    5,
		JPEGQuality:      90,
		BadgeSize:        160,
		BadgeMargin:      40,
		VideoWidth:       1080,
		VideoHeight:      1920,
		VideoMaxLines:    3,
		CaptionBandRatio: 0.40,
		SafeZoneRatio:    0.12,
		Typography:       typography.DefaultParams(),
		Motion:           motion.DefaultParams(),
		Timing:           timing.DefaultParams(),
		Encoder:          filtergraph.DefaultEncoder(),
	}
}

// Validate checks that the profile can drive a render.
func (p Profile) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(p.FrameRate >= 1 && p.FrameRate <= 120, "frame_rate %d out of [1,120]", p.FrameRate)
	check(p.MaxSlides >= 1, "max_slides must be positive")
	check(p.ImageWidth > 0 && p.ImageHeight > 0, "image size must be positive")
	check(p.VideoWidth > 0 && p.VideoHeight > 0 && p.VideoWidth%2 == 0 && p.VideoHeight%2 == 0,
		"video size %dx%d must be positive and even", p.VideoWidth, p.VideoHeight)
	check(inLines(p.ImageMaxLines) && inLines(p.VideoMaxLines), "default max lines must lie in [1,%d]", MaxCaptionLines)
	check(p.JPEGQuality >= 1 && p.JPEGQuality <= 100, "jpeg_quality %d out of [1,100]", p.JPEGQuality)
	check(p.CaptionBandRatio > 0 && p.CaptionBandRatio <= 1, "caption_band_ratio must lie in (0,1]")
	check(p.SafeZoneRatio >= 0 && p.CaptionBandRatio+p.SafeZoneRatio <= 1, "caption band and safe zone exceed the frame")
	check(p.Typography.TitleRatio > 0 && p.Typography.CharWidthFactor > 0, "typography ratios must be positive")
	check(p.Motion.PreScaleFactor >= 1, "motion pre_scale_factor must be at least 1")
	check(p.Motion.ZoomStart > 0 && p.Motion.ZoomMax >= p.Motion.ZoomStart, "motion zoom bounds are inconsistent")
	check(p.Timing.MinDuration > 0 && p.Timing.MaxDuration >= p.Timing.MinDuration, "timing duration bounds are inconsistent")
	check(p.Timing.TransitionDuration > 0 && p.Timing.TransitionDuration < p.Timing.MaxDuration,
		"transition_duration must be positive and below max_duration")
	check(p.Timing.Policy == timing.PolicyReject || p.Timing.Policy == timing.PolicyClamp,
		"offset_policy %q must be %q or %q", p.Timing.Policy, timing.PolicyReject, timing.PolicyClamp)
	check(p.Encoder.VideoCodec != "", "encoder video_codec is required")

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidProfile, errors.Join(errs...))
	}
	return nil
}

func inLines(n int) bool { return n >= 1 && n <= MaxCaptionLines }

// captionBand returns the caption layer size for a frame and where it sits.
func (p Profile) captionBand(out motion.Size) (motion.Size, filtergraph.Placement) {
	bandH := int(math.Round(float64(out.H) * p.CaptionBandRatio))
	safe := int(math.Round(float64(out.H) * p.SafeZoneRatio))
	return motion.Size{W: out.W, H: bandH}, filtergraph.Placement{X: 0, Y: max(0, out.H-bandH-safe)}
}
