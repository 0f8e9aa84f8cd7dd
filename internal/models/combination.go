package models

import "math"

// Combination is a named recipe: a checkpoint plus optional auxiliary models,
// weighted LoRAs and generation parameters.
//
// References are by id only; a combination pointing at a deleted model is
// tolerated and resolved to "Unknown" at display time.
type Combination struct {
	ID            string             `json:"id"`
	Name          string             `json:"name"`
	Description   string             `json:"description"`
	CheckpointID  string             `json:"checkpointId"`
	VAEID         string             `json:"vaeId,omitempty"`
	CLIPID        string             `json:"clipId,omitempty"`
	TextEncoderID string             `json:"textEncoderId,omitempty"`
	LoRAIDs       []string           `json:"loraIds"`
	LoRAWeights   map[string]float64 `json:"loraWeights"`
	Settings      GenerationSettings `json:"settings"`
	Notes         string             `json:"notes,omitempty"`
	TriggerWords  []string           `json:"triggerWords,omitempty"`
	ReferenceURL  string             `json:"referenceImageUrl,omitempty"`
}

// LoRAWeight returns the stored weight for a LoRA id, defaulting to 1.0 when
// no entry exists.
func (c *Combination) LoRAWeight(id string) float64 {
	if w, ok := c.LoRAWeights[id]; ok {
		return w
	}
	return 1.0
}

// ClampLoRAWeight restricts a weight to the valid [0, 2] range. Out-of-range
// inputs are clamped, never rejected. NaN and infinities become 0: they fail
// both range comparisons and a NaN weight can never be JSON-encoded for
// persistence.
func ClampLoRAWeight(w float64) float64 {
	if math.IsNaN(w) || math.IsInf(w, 0) {
		return 0
	}
	if w < 0 {
		return 0
	}
	if w > 2 {
		return 2
	}
	return w
}
