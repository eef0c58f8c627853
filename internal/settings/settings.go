// Package settings holds the per-photo and batch-wide processing parameters
// and their persistence.
//
// Every photo in a batch owns a PhotoSettings record. Records flagged
// SyncWithGlobal resolve to the shared GlobalSettings at render time; the
// resolution happens fresh on every render via Resolve, never by sharing
// mutable state, so a global edit can never leave a stale copy behind.
package settings

import (
	"fmt"

	"github.com/scanlight/filmscan/internal/detect"
	"github.com/scanlight/filmscan/internal/mask"
)

// FilmType selects the inversion and base-subtraction policy.
type FilmType int

const (
	// BlackAndWhite is a monochrome negative: single luminance stretch,
	// inverted, replicated across channels.
	BlackAndWhite FilmType = iota

	// Colour is a color negative: stretched then inverted, with the film
	// base color acting as the stretch white point.
	Colour

	// Slide is reversal film: stretched only, base color as black point.
	Slide
)

// String returns the display name of the film type.
func (t FilmType) String() string {
	switch t {
	case BlackAndWhite:
		return "black & white"
	case Colour:
		return "colour negative"
	case Slide:
		return "slide"
	default:
		return fmt.Sprintf("film type %d", int(t))
	}
}

// Valid reports whether t is a known film type.
func (t FilmType) Valid() bool {
	return t >= BlackAndWhite && t <= Slide
}

// RGB8 is an 8-bit RGB triple, the precision the base-color picker works at.
type RGB8 struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// WhiteBalance holds signed temperature and tint shifts relative to as-shot,
// each in [-100, 100]. (0, 0) means no adjustment.
type WhiteBalance struct {
	Temp float64 `json:"temp"`
	Tint float64 `json:"tint"`
}

// Tone holds the exposure-stage adjustments applied after equalization.
// All-zero (with Saturation 100) is the identity.
type Tone struct {
	// Gamma adjusts midtone brightness, -100 to 100.
	Gamma float64 `json:"gamma"`

	// Shadows lifts or crushes values below the shadow knee, -100 to 100.
	Shadows float64 `json:"shadows"`

	// Highlights recovers or blows values above the highlight knee.
	Highlights float64 `json:"highlights"`

	// Saturation scales color saturation in percent; 100 is neutral.
	Saturation float64 `json:"saturation"`
}

// NeutralTone is the identity Tone.
var NeutralTone = Tone{Saturation: 100}

// Levels nudges the automatic stretch endpoints, the darkroom black point
// and white point sliders. Zero-zero keeps the pure histogram stretch.
type Levels struct {
	// BlackPoint shifts where the histogram black point lands, -100 to
	// 100. Positive lifts the blacks.
	BlackPoint float64 `json:"black_point"`

	// WhitePoint shifts where the histogram white point lands, -100 to
	// 100. Positive brightens toward clipping.
	WhitePoint float64 `json:"white_point"`
}

// PhotoSettings is the complete per-photo parameter record.
type PhotoSettings struct {
	// Thresholds bound the luminance band treated as photo during frame
	// detection.
	Thresholds mask.Pair `json:"thresholds"`

	// BorderCropPct trims the detected frame inward, percent of the long
	// dimension.
	BorderCropPct float64 `json:"border_crop_pct"`

	// CropOverride, when non-nil, replaces automatic frame detection with
	// a fixed rectangle.
	CropOverride *detect.Rect `json:"crop_override,omitempty"`

	// IgnoreBorderPct excludes per-edge bands from equalization
	// statistics (sprocket holes, film rebate).
	IgnoreBorderPct detect.BorderPct `json:"ignore_border_pct"`

	// FilmType selects the processing policy.
	FilmType FilmType `json:"film_type"`

	// BaseColor is the measured film-base color; nil means derive the
	// black/white points from the histogram alone.
	BaseColor *RGB8 `json:"base_color,omitempty"`

	// WhiteBalance is applied after inversion.
	WhiteBalance WhiteBalance `json:"white_balance"`

	// Levels nudges the stretch endpoints around the histogram cutoffs.
	Levels Levels `json:"levels"`

	// Tone is the post-equalization exposure adjustment.
	Tone Tone `json:"tone"`

	// Flip mirrors the cropped frame horizontally.
	Flip bool `json:"flip"`

	// Rotation turns the output clockwise in quarter turns, stored
	// modulo 4.
	Rotation int `json:"rotation"`

	// Reject marks the photo to be skipped when the batch is exported.
	Reject bool `json:"reject"`

	// SyncWithGlobal makes this photo follow the batch-wide settings.
	SyncWithGlobal bool `json:"sync_with_global"`
}

// GlobalSettings is the PhotoSettings-shaped record shared by every photo
// with SyncWithGlobal set.
type GlobalSettings = PhotoSettings

// Defaults returns the settings a freshly imported photo starts with:
// synced to global, mid-range thresholds, modest border trim.
func Defaults() PhotoSettings {
	return PhotoSettings{
		Thresholds:     mask.Pair{Dark: 10, Light: 90},
		BorderCropPct:  1,
		FilmType:       Colour,
		Tone:           NeutralTone,
		SyncWithGlobal: true,
	}
}

// Source identifies where a photo's effective settings come from.
type Source int

const (
	// UsesGlobal means the photo renders with the shared GlobalSettings.
	UsesGlobal Source = iota

	// Override means the photo renders with its own record.
	Override
)

// SettingsSource reports which variant the record resolves to.
func (s PhotoSettings) SettingsSource() Source {
	if s.SyncWithGlobal {
		return UsesGlobal
	}
	return Override
}

// Resolve returns the effective settings for a photo: the global record when
// the photo is synced, otherwise the photo's own. Pure function; neither
// argument is mutated, and callers must invoke it fresh on every render.
func Resolve(own PhotoSettings, global GlobalSettings) PhotoSettings {
	if own.SettingsSource() == UsesGlobal {
		eff := global
		// Sync selects shared processing parameters, not identity.
		eff.SyncWithGlobal = true
		eff.Reject = own.Reject
		return eff
	}
	return own
}

// Validate checks record invariants before a render.
func (s PhotoSettings) Validate() error {
	if err := s.Thresholds.Validate(); err != nil {
		return err
	}
	if !s.FilmType.Valid() {
		return fmt.Errorf("unknown film type %d", int(s.FilmType))
	}
	if s.CropOverride != nil && s.CropOverride.Empty() {
		return fmt.Errorf("crop override %+v has no area", *s.CropOverride)
	}
	return nil
}
