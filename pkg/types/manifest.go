package types

import (
	"fmt"
	"strings"
)

// Category is the toolbox grouping a plugin declares in its manifest.
type Category string

const (
	CategoryMeter      Category = "meter"      // level / loudness meters
	CategoryAnalyzer   Category = "analyzer"   // spectrum, FFT-based views
	CategoryScope      Category = "scope"      // oscilloscope / goniometer
	CategoryStereo     Category = "stereo"     // stereo field views
	CategoryDecoration Category = "decoration" // non-audio visual elements
	CategoryUtility    Category = "utility"    // helper widgets
	CategoryVisualizer Category = "visualizer" // GPU effects, particles
	CategoryOther      Category = "other"
)

// ParseCategory maps a wire string to a Category, defaulting to CategoryOther
// for anything unrecognised so a newer runtime never breaks enumeration.
func ParseCategory(s string) Category {
	switch Category(strings.ToLower(s)) {
	case CategoryMeter, CategoryAnalyzer, CategoryScope, CategoryStereo,
		CategoryDecoration, CategoryUtility, CategoryVisualizer:
		return Category(strings.ToLower(s))
	default:
		return CategoryOther
	}
}

// Size is a width/height pair in logical pixels.
type Size struct {
	W int `json:"w"`
	H int `json:"h"`
}

// Manifest is the static declaration of a plugin: identity, category and
// default layout. Manifests are produced by the external runtime during
// discovery and are immutable once registered.
type Manifest struct {
	// Reverse-domain unique identifier, e.g. "com.example.spectrum_wheel".
	ID string `json:"id"`
	// Human-readable display name.
	Name string `json:"name"`
	// Semantic version string.
	Version string `json:"version,omitempty"`
	// Author name.
	Author string `json:"author,omitempty"`
	// One-line description.
	Description string `json:"description,omitempty"`
	// Toolbox grouping.
	Category Category `json:"category"`
	// Default size when first placed.
	DefaultSize Size `json:"default_size"`
	// Minimum allowed size.
	MinSize Size `json:"min_size,omitempty"`
	// Maximum allowed size; zero value means unlimited.
	MaxSize Size `json:"max_size,omitempty"`
	// Searchable tags.
	Tags []string `json:"tags,omitempty"`
	// Source file the runtime loaded the plugin from.
	SourceFile string `json:"source_file,omitempty"`
}

// Validate checks the invariants the bridge relies on: a non-empty name and a
// reverse-domain id with at least two dot-separated parts.
func (m Manifest) Validate() error {
	if m.ID == "" || m.Name == "" {
		return fmt.Errorf("manifest id and name are required")
	}
	if len(strings.Split(m.ID, ".")) < 2 {
		return fmt.Errorf("manifest id must be reverse-domain style (e.g. %q), got %q",
			"com.example.my_meter", m.ID)
	}
	return nil
}
