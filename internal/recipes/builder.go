package recipes

import (
	"errors"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"neurogallery/server/internal/models"
)

// ErrIncomplete rejects a save that is missing a name or a checkpoint. It is
// a local validation gate: nothing is produced and nothing reaches the store.
var ErrIncomplete = errors.New("recipe needs a name and a checkpoint")

// Builder assembles a Combination from user selections. It mirrors the form
// state: one recipe being created or edited at a time.
type Builder struct {
	mu sync.Mutex

	editingID     string
	name          string
	description   string
	checkpointID  string
	vaeID         string
	clipID        string
	textEncoderID string
	loraIDs       []string
	loraWeights   map[string]float64
	triggerWords  []string
	settings      models.GenerationSettings
}

func NewBuilder() *Builder {
	b := &Builder{}
	b.reset()
	return b
}

func (b *Builder) reset() {
	b.editingID = ""
	b.name = ""
	b.description = ""
	b.checkpointID = ""
	b.vaeID = ""
	b.clipID = ""
	b.textEncoderID = ""
	b.loraIDs = nil
	b.loraWeights = make(map[string]float64)
	b.triggerWords = nil
	b.settings = models.DefaultSettings()
}

// Clear resets every field to its empty default.
func (b *Builder) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reset()
}

// Load repopulates the builder from a stored combination for editing.
// Optional references become empty-string sentinels, never absent values.
func (b *Builder) Load(combo models.Combination) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.editingID = combo.ID
	b.name = combo.Name
	b.description = combo.Description
	b.checkpointID = combo.CheckpointID
	b.vaeID = combo.VAEID
	b.clipID = combo.CLIPID
	b.textEncoderID = combo.TextEncoderID

	b.loraIDs = make([]string, len(combo.LoRAIDs))
	copy(b.loraIDs, combo.LoRAIDs)

	b.loraWeights = make(map[string]float64, len(combo.LoRAWeights))
	for id, w := range combo.LoRAWeights {
		b.loraWeights[id] = w
	}

	b.triggerWords = make([]string, len(combo.TriggerWords))
	copy(b.triggerWords, combo.TriggerWords)

	b.settings = combo.Settings
}

// EditingID returns the id of the combination loaded for editing, if any.
func (b *Builder) EditingID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.editingID
}

func (b *Builder) SetName(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.name = name
}

func (b *Builder) SetDescription(desc string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.description = desc
}

func (b *Builder) SetCheckpoint(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.checkpointID = id
}

func (b *Builder) SetVAE(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.vaeID = id
}

func (b *Builder) SetCLIP(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clipID = id
}

func (b *Builder) SetTextEncoder(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.textEncoderID = id
}

func (b *Builder) SetSettings(s models.GenerationSettings) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.settings = s
}

// ToggleLoRA flips a LoRA selection. Toggling on seeds the weight at 1.0;
// toggling off removes both the id and its weight entry.
func (b *Builder) ToggleLoRA(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, existing := range b.loraIDs {
		if existing == id {
			b.loraIDs = append(b.loraIDs[:i], b.loraIDs[i+1:]...)
			delete(b.loraWeights, id)
			return
		}
	}

	b.loraIDs = append(b.loraIDs, id)
	b.loraWeights[id] = 1.0
}

// SelectedLoRAs returns the toggled-on LoRA ids in display order.
func (b *Builder) SelectedLoRAs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]string, len(b.loraIDs))
	copy(out, b.loraIDs)
	return out
}

// LoRAWeight returns the current weight for a selected LoRA.
func (b *Builder) LoRAWeight(id string) (float64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	w, ok := b.loraWeights[id]
	return w, ok
}

// SetLoRAWeight parses and stores a weight. Non-numeric input becomes 0 and
// the result is clamped to [0, 2].
func (b *Builder) SetLoRAWeight(id, raw string) {
	w, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		w = 0
	}
	w = models.ClampLoRAWeight(w)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.loraWeights[id] = w
}

// SetTriggerWords accepts a comma-delimited string: segments are trimmed,
// empties dropped and order preserved.
func (b *Builder) SetTriggerWords(raw string) {
	var words []string
	for _, segment := range strings.Split(raw, ",") {
		if word := strings.TrimSpace(segment); word != "" {
			words = append(words, word)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.triggerWords = words
}

// Save validates the working state and produces a persistable Combination.
// An id loaded for editing is reused; otherwise a new one is minted. On
// success the builder resets to its empty defaults.
func (b *Builder) Save() (models.Combination, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.name == "" || b.checkpointID == "" {
		return models.Combination{}, ErrIncomplete
	}

	id := b.editingID
	if id == "" {
		id = uuid.NewString()
	}

	loraIDs := make([]string, len(b.loraIDs))
	copy(loraIDs, b.loraIDs)

	weights := make(map[string]float64, len(b.loraWeights))
	for loraID, w := range b.loraWeights {
		weights[loraID] = models.ClampLoRAWeight(w)
	}

	triggerWords := make([]string, len(b.triggerWords))
	copy(triggerWords, b.triggerWords)

	combo := models.Combination{
		ID:            id,
		Name:          b.name,
		Description:   b.description,
		CheckpointID:  b.checkpointID,
		VAEID:         b.vaeID,
		CLIPID:        b.clipID,
		TextEncoderID: b.textEncoderID,
		LoRAIDs:       loraIDs,
		LoRAWeights:   weights,
		TriggerWords:  triggerWords,
		Settings:      b.settings,
	}

	b.reset()
	return combo, nil
}

// HandleDeleted resets the builder when the combination it is editing was
// deleted, so a stale record cannot be re-saved.
func (b *Builder) HandleDeleted(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.editingID == id {
		b.reset()
	}
}
