package models

import "fmt"

// StyleKey names one image-improvement operation a user can request.
type StyleKey string

const (
	StyleUnblur            StyleKey = "unblur"
	StyleCinematicLighting StyleKey = "cinematicLighting"
	StylePortraitBokeh     StyleKey = "portraitBokeh"
	StyleRemoveBackground  StyleKey = "removeBackground"
	StyleColorPop          StyleKey = "colorPop"
	StyleHDR               StyleKey = "hdr"
	StyleEnhanceDetail     StyleKey = "enhanceDetail"
	StyleUpscale           StyleKey = "upscale"
	StyleDenoise           StyleKey = "denoise"
)

// AllStyleKeys lists every recognised style in canonical order
var AllStyleKeys = []StyleKey{
	StyleUnblur,
	StyleCinematicLighting,
	StylePortraitBokeh,
	StyleRemoveBackground,
	StyleColorPop,
	StyleHDR,
	StyleEnhanceDetail,
	StyleUpscale,
	StyleDenoise,
}

// IsKnown reports whether k is one of the recognised style keys
func (k StyleKey) IsKnown() bool {
	for _, known := range AllStyleKeys {
		if k == known {
			return true
		}
	}
	return false
}

// EnhancementStyles is the style selection sent with one enhancement call.
// It marshals as {"unblur": true, "colorPop": false, ...}.
type EnhancementStyles map[StyleKey]bool

// NewStyles builds a selection with every given key enabled
func NewStyles(keys ...StyleKey) EnhancementStyles {
	s := make(EnhancementStyles, len(keys))
	for _, k := range keys {
		s[k] = true
	}
	return s
}

// Enabled returns the enabled keys in canonical order. Unknown keys are skipped.
func (s EnhancementStyles) Enabled() []StyleKey {
	var out []StyleKey
	for _, k := range AllStyleKeys {
		if s[k] {
			out = append(out, k)
		}
	}
	return out
}

// IsEmpty is true when no recognised style is enabled
func (s EnhancementStyles) IsEmpty() bool {
	return len(s.Enabled()) == 0
}

// Validate rejects keys that are not recognised
func (s EnhancementStyles) Validate() error {
	for k := range s {
		if !k.IsKnown() {
			return fmt.Errorf("unknown enhancement style %q", k)
		}
	}
	return nil
}

// Clone copies the selection
func (s EnhancementStyles) Clone() EnhancementStyles {
	if s == nil {
		return nil
	}
	out := make(EnhancementStyles, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// UnionStyles merges add into base keeping canonical order and no duplicates
func UnionStyles(base []StyleKey, add []StyleKey) []StyleKey {
	seen := make(map[StyleKey]bool, len(base)+len(add))
	for _, k := range base {
		seen[k] = true
	}
	for _, k := range add {
		seen[k] = true
	}
	out := make([]StyleKey, 0, len(seen))
	for _, k := range AllStyleKeys {
		if seen[k] {
			out = append(out, k)
			delete(seen, k)
		}
	}
	// keys outside the canonical list (older records) go last, in input order
	for _, k := range append(append([]StyleKey{}, base...), add...) {
		if seen[k] {
			out = append(out, k)
			delete(seen, k)
		}
	}
	return out
}

// ContainsAllStyles reports whether superset holds every key of subset
func ContainsAllStyles(superset, subset []StyleKey) bool {
	have := make(map[StyleKey]bool, len(superset))
	for _, k := range superset {
		have[k] = true
	}
	for _, k := range subset {
		if !have[k] {
			return false
		}
	}
	return true
}
