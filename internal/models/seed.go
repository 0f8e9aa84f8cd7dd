package models

import "time"

// SeedState returns the fixed sample dataset used to populate an empty
// library on first launch: five models and one combination.
func SeedState() AppState {
	defaults := DefaultSettings()

	promptSettings := defaults
	promptSettings.Steps = 40

	comboSettings := defaults
	comboSettings.Steps = 40

	return AppState{
		Models: []Model{
			{
				ID:           "m1",
				Name:         "Juggernaut XL",
				Type:         TypeCheckpoint,
				Version:      "SDXL",
				Description:  "High quality photorealistic model.",
				ThumbnailURL: "https://picsum.photos/id/1/400/400",
				TriggerWords: []string{},
				Tags:         []string{"Realistic", "Photography", "Cinematic"},
				FileLocation: "/models/sdxl/juggernautXL_v9.safetensors",
				PreferredSettings: &SettingsOverride{
					Steps:    IntPtr(35),
					CFGScale: Float64Ptr(6.0),
					Sampler:  StringPtr("DPM++ 2M Karras"),
				},
				Prompts: []PromptEntry{
					{
						ID:        "p1",
						Text:      "A futuristic city with flying cars, cyberpunk style, neon lights",
						Settings:  promptSettings,
						ImageURL:  "https://picsum.photos/id/12/400/400",
						CreatedAt: time.Now().UnixMilli(),
					},
				},
			},
			{
				ID:           "m2",
				Name:         "DreamShaper 8",
				Type:         TypeCheckpoint,
				Version:      "SD v1.5",
				Description:  "Versatile artistic model.",
				ThumbnailURL: "https://picsum.photos/id/28/400/400",
				TriggerWords: []string{},
				Tags:         []string{"Artistic", "Illustration", "2.5D"},
				FileLocation: "/models/sd15/dreamshaper_8.safetensors",
				Prompts:      []PromptEntry{},
			},
			{
				ID:           "l1",
				Name:         "Pixel Art Style",
				Type:         TypeLoRA,
				Version:      "SDXL",
				Description:  "Generates pixel art assets.",
				ThumbnailURL: "https://picsum.photos/id/33/400/400",
				TriggerWords: []string{"pixel art", "8-bit"},
				Tags:         []string{"Game Asset", "Retro", "Pixel"},
				FileLocation: "/models/loras/pixel-art-xl.safetensors",
				PreferredSettings: &SettingsOverride{
					CFGScale: Float64Ptr(8.0),
				},
				Prompts: []PromptEntry{},
			},
			{
				ID:           "l2",
				Name:         "Glass Sculptures",
				Type:         TypeLoRA,
				Version:      "SDXL",
				Description:  "Makes things look like blown glass.",
				ThumbnailURL: "https://picsum.photos/id/45/400/400",
				TriggerWords: []string{"glass sculpture", "translucent"},
				Tags:         []string{"Abstract", "Material", "3D"},
				FileLocation: "/models/loras/glass-sculpture.safetensors",
				Prompts:      []PromptEntry{},
			},
			{
				ID:           "v1",
				Name:         "SDXL VAE",
				Type:         TypeVAE,
				Version:      "SDXL",
				Description:  "Standard VAE for vivid colors.",
				Tags:         []string{"Utility", "Color"},
				FileLocation: "/models/vae/sdxl_vae.safetensors",
				Prompts:      []PromptEntry{},
			},
		},
		Combinations: []Combination{
			{
				ID:           "c1",
				Name:         "Cyberpunk Pixel",
				Description:  "Best for retro-futuristic game assets",
				CheckpointID: "m1",
				VAEID:        "v1",
				LoRAIDs:      []string{"l1"},
				LoRAWeights:  map[string]float64{"l1": 0.8},
				Settings:     comboSettings,
			},
		},
	}
}
