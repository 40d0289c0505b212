package types

import "strings"

// Orientation is the output aspect of a generated video.
type Orientation string

const (
	OrientationLandscape Orientation = "landscape"
	OrientationPortrait  Orientation = "portrait"
)

// ParseOrientation normalizes free-form input, defaulting to landscape.
func ParseOrientation(s string) Orientation {
	if strings.EqualFold(strings.TrimSpace(s), string(OrientationPortrait)) {
		return OrientationPortrait
	}
	return OrientationLandscape
}

// Opposite returns the other orientation.
func (o Orientation) Opposite() Orientation {
	if o == OrientationPortrait {
		return OrientationLandscape
	}
	return OrientationPortrait
}

// Canvas returns the fixed render resolution for the orientation.
func (o Orientation) Canvas() (width, height int) {
	if o == OrientationPortrait {
		return 1080, 1920
	}
	return 1920, 1080
}

// Scene is one segment of a generated script. Scenes are immutable once the
// script writer has produced them.
type Scene struct {
	Index       int    `json:"index"`
	SearchTerms string `json:"search_terms"` // 2-3 word footage query
	Caption     string `json:"caption,omitempty"`
	TimeLabel   string `json:"time_label,omitempty"`
}

// Script is the structured result of the language-model call.
type Script struct {
	Title     string  `json:"title"`
	Narration string  `json:"narration"`
	Scenes    []Scene `json:"scenes"`
}

// Options are the caller-facing knobs for one generation.
type Options struct {
	Prompt        string
	DurationSec   float64
	Orientation   Orientation
	Style         string
	MusicMood     string
	MusicVolume   float64
	IncludeSpeech bool
	Language      string
}

// Normalize fills defaults and clamps out-of-range values in place.
func (o *Options) Normalize() {
	if o.DurationSec <= 0 {
		o.DurationSec = 30
	}
	if o.Orientation != OrientationPortrait && o.Orientation != OrientationLandscape {
		o.Orientation = OrientationLandscape
	}
	if o.Language == "" {
		o.Language = "en"
	}
	if o.MusicVolume < 0 {
		o.MusicVolume = 0
	}
	if o.MusicVolume > 1 {
		o.MusicVolume = 1
	}
}
