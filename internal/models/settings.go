package models

// GenerationSettings is a fully-resolved snapshot of generation parameters.
type GenerationSettings struct {
	Steps          int     `json:"steps"`
	CFGScale       float64 `json:"cfgScale"`
	Sampler        string  `json:"sampler"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	Seed           *int64  `json:"seed,omitempty"`
	NegativePrompt string  `json:"negativePrompt,omitempty"`
	ClipSkip       *int    `json:"clipSkip,omitempty"`
}

// SettingsOverride is a partial GenerationSettings. Nil fields mean "keep the
// base value"; set fields win when merged.
type SettingsOverride struct {
	Steps          *int     `json:"steps,omitempty"`
	CFGScale       *float64 `json:"cfgScale,omitempty"`
	Sampler        *string  `json:"sampler,omitempty"`
	Width          *int     `json:"width,omitempty"`
	Height         *int     `json:"height,omitempty"`
	Seed           *int64   `json:"seed,omitempty"`
	NegativePrompt *string  `json:"negativePrompt,omitempty"`
	ClipSkip       *int     `json:"clipSkip,omitempty"`
}

// DefaultSettings returns the baseline generation settings.
func DefaultSettings() GenerationSettings {
	return GenerationSettings{
		Steps:          30,
		CFGScale:       7.0,
		Sampler:        "Euler a",
		Width:          1024,
		Height:         1024,
		NegativePrompt: "blurry, low quality, watermark, text",
	}
}

// MergeSettings resolves an optional override against base settings. Each
// override field wins if present, otherwise the base value is kept.
func MergeSettings(base GenerationSettings, override *SettingsOverride) GenerationSettings {
	if override == nil {
		return base
	}

	out := base
	if override.Steps != nil {
		out.Steps = *override.Steps
	}
	if override.CFGScale != nil {
		out.CFGScale = *override.CFGScale
	}
	if override.Sampler != nil {
		out.Sampler = *override.Sampler
	}
	if override.Width != nil {
		out.Width = *override.Width
	}
	if override.Height != nil {
		out.Height = *override.Height
	}
	if override.Seed != nil {
		seed := *override.Seed
		out.Seed = &seed
	}
	if override.NegativePrompt != nil {
		out.NegativePrompt = *override.NegativePrompt
	}
	if override.ClipSkip != nil {
		cs := *override.ClipSkip
		out.ClipSkip = &cs
	}
	return out
}

// Helpers for building overrides in place.

func IntPtr(v int) *int             { return &v }
func Float64Ptr(v float64) *float64 { return &v }
func StringPtr(v string) *string    { return &v }
