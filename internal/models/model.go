package models

// ModelType classifies a catalogued asset.
type ModelType string

const (
	TypeCheckpoint  ModelType = "Checkpoint"
	TypeLoRA        ModelType = "LoRA"
	TypeVAE         ModelType = "VAE"
	TypeTextEncoder ModelType = "TextEncoder"
	TypeCLIP        ModelType = "CLIP"
	TypeControlNet  ModelType = "ControlNet"
	TypeIPAdapter   ModelType = "IPAdapter"
	TypeCLIPVision  ModelType = "CLIPVision"
	TypeEmbedding   ModelType = "Embedding"
	TypeCLIPEmbed   ModelType = "CLIPEmbed"
)

// ModelTypes lists every recognized type, in display order.
var ModelTypes = []ModelType{
	TypeCheckpoint,
	TypeCLIP,
	TypeCLIPEmbed,
	TypeCLIPVision,
	TypeControlNet,
	TypeEmbedding,
	TypeIPAdapter,
	TypeLoRA,
	TypeTextEncoder,
	TypeVAE,
}

// ParseModelType maps a string onto the closed enumeration. The ok result is
// false for anything outside it; callers at the import boundary decide what
// to do with unrecognized values.
func ParseModelType(s string) (ModelType, bool) {
	for _, t := range ModelTypes {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// ModelFamilies are the known base-model families offered by the UI. A model
// may carry any version string; unrecognized values are preserved verbatim.
var ModelFamilies = []string{
	"Flux v1",
	"Flux v1 - Kontext",
	"Flux v2",
	"Qwen v3",
	"SDXL",
	"SD v1.5",
	"SD v2",
	"SD v3",
	"SD v3.5",
	"Z-Index v1",
}

// Samplers is the recommended sampler list. Not enforced anywhere.
var Samplers = []string{
	"Euler a",
	"DPM++ 2M Karras",
	"DDIM",
	"UniPC",
}

// PromptEntry is an exhibited example of a model in use. Entries live only
// inside their owning Model record and are never persisted independently.
type PromptEntry struct {
	ID        string             `json:"id"`
	Text      string             `json:"text"`
	Settings  GenerationSettings `json:"settings"`
	ImageURL  string             `json:"imageUrl,omitempty"`
	CreatedAt int64              `json:"createdAt"`
}

// Model is a catalogued generative-image asset.
type Model struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Type         ModelType `json:"type"`
	Version      string    `json:"version"`
	Description  string    `json:"description"`
	ThumbnailURL string    `json:"thumbnailUrl,omitempty"`
	TriggerWords []string  `json:"triggerWords,omitempty"`
	Tags         []string  `json:"tags,omitempty"`
	FileLocation string    `json:"fileLocation,omitempty"`

	// Best global settings for this model; merged over defaults at use time.
	PreferredSettings *SettingsOverride `json:"preferredSettings,omitempty"`

	Prompts []PromptEntry `json:"prompts"`
}

// AddPrompt prepends an entry to the model's prompt gallery.
func (m *Model) AddPrompt(p PromptEntry) {
	m.Prompts = append([]PromptEntry{p}, m.Prompts...)
}

// EffectiveSettings resolves the model's preferred settings over the given
// base settings.
func (m *Model) EffectiveSettings(base GenerationSettings) GenerationSettings {
	return MergeSettings(base, m.PreferredSettings)
}

// AppState is the in-memory aggregate the UI observes. It mirrors the two
// persisted collections and is not stored directly.
type AppState struct {
	Models       []Model       `json:"models"`
	Combinations []Combination `json:"combinations"`
}
