package recipes

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neurogallery/server/internal/models"
)

func TestSaveRequiresNameAndCheckpoint(t *testing.T) {
	b := NewBuilder()

	_, err := b.Save()
	assert.ErrorIs(t, err, ErrIncomplete)

	b.SetName("My Recipe")
	_, err = b.Save()
	assert.ErrorIs(t, err, ErrIncomplete, "a name alone is not enough")

	b.SetCheckpoint("m1")
	combo, err := b.Save()
	require.NoError(t, err)
	assert.Equal(t, "My Recipe", combo.Name)
	assert.Equal(t, "m1", combo.CheckpointID)
	assert.NotEmpty(t, combo.ID, "new recipes get a minted id")
}

func TestSaveResetsBuilder(t *testing.T) {
	b := NewBuilder()
	b.SetName("My Recipe")
	b.SetCheckpoint("m1")
	b.ToggleLoRA("l1")

	_, err := b.Save()
	require.NoError(t, err)

	// A second save starts from scratch
	_, err = b.Save()
	assert.ErrorIs(t, err, ErrIncomplete)
	assert.Empty(t, b.SelectedLoRAs())
}

func TestToggleLoRASeedsFullStrength(t *testing.T) {
	b := NewBuilder()

	b.ToggleLoRA("l1")
	assert.Equal(t, []string{"l1"}, b.SelectedLoRAs())

	w, ok := b.LoRAWeight("l1")
	require.True(t, ok)
	assert.Equal(t, 1.0, w)

	// Toggling off removes both the selection and the weight
	b.ToggleLoRA("l1")
	assert.Empty(t, b.SelectedLoRAs())
	_, ok = b.LoRAWeight("l1")
	assert.False(t, ok)
}

func TestSetLoRAWeightClampsAndParses(t *testing.T) {
	b := NewBuilder()
	b.ToggleLoRA("l1")

	b.SetLoRAWeight("l1", "1.35")
	w, _ := b.LoRAWeight("l1")
	assert.Equal(t, 1.35, w)

	b.SetLoRAWeight("l1", "5")
	w, _ = b.LoRAWeight("l1")
	assert.Equal(t, 2.0, w, "above range clamps to 2")

	b.SetLoRAWeight("l1", "-3")
	w, _ = b.LoRAWeight("l1")
	assert.Equal(t, 0.0, w, "below range clamps to 0")

	b.SetLoRAWeight("l1", "abc")
	w, _ = b.LoRAWeight("l1")
	assert.Equal(t, 0.0, w, "non-numeric input becomes 0")

	// strconv accepts these spellings, but a non-finite weight is useless
	// and NaN cannot even be JSON-encoded
	b.SetLoRAWeight("l1", "NaN")
	w, _ = b.LoRAWeight("l1")
	assert.Equal(t, 0.0, w, "NaN becomes 0")

	b.SetLoRAWeight("l1", "Inf")
	w, _ = b.LoRAWeight("l1")
	assert.Equal(t, 0.0, w, "infinity becomes 0")
}

func TestSaveWithNaNWeightStaysEncodable(t *testing.T) {
	b := NewBuilder()
	b.SetName("R1")
	b.SetCheckpoint("m1")
	b.ToggleLoRA("l1")
	b.SetLoRAWeight("l1", "NaN")

	combo, err := b.Save()
	require.NoError(t, err)
	assert.Equal(t, 0.0, combo.LoRAWeights["l1"])

	_, err = json.Marshal(combo)
	require.NoError(t, err, "saved combination must survive JSON encoding")
}

func TestSetTriggerWordsSplitsAndTrims(t *testing.T) {
	b := NewBuilder()
	b.SetName("r")
	b.SetCheckpoint("m1")
	b.SetTriggerWords(" pixel art ,, 8-bit,  ,retro ")

	combo, err := b.Save()
	require.NoError(t, err)
	assert.Equal(t, []string{"pixel art", "8-bit", "retro"}, combo.TriggerWords)
}

func TestLoadForEditingReusesID(t *testing.T) {
	b := NewBuilder()

	existing := models.Combination{
		ID:           "c1",
		Name:         "Cyberpunk Pixel",
		CheckpointID: "m1",
		VAEID:        "v1",
		LoRAIDs:      []string{"l1"},
		LoRAWeights:  map[string]float64{"l1": 0.8},
		Settings:     models.DefaultSettings(),
	}
	b.Load(existing)
	assert.Equal(t, "c1", b.EditingID())

	b.SetName("Cyberpunk Pixel v2")
	combo, err := b.Save()
	require.NoError(t, err)

	assert.Equal(t, "c1", combo.ID, "editing keeps the original id")
	assert.Equal(t, "Cyberpunk Pixel v2", combo.Name)
	assert.Equal(t, "v1", combo.VAEID)
	assert.Equal(t, 0.8, combo.LoRAWeights["l1"])
}

func TestLoadCopiesNotAliases(t *testing.T) {
	b := NewBuilder()

	existing := models.Combination{
		ID:           "c1",
		Name:         "Recipe",
		CheckpointID: "m1",
		LoRAIDs:      []string{"l1"},
		LoRAWeights:  map[string]float64{"l1": 0.8},
	}
	b.Load(existing)
	b.SetLoRAWeight("l1", "1.5")

	assert.Equal(t, 0.8, existing.LoRAWeights["l1"], "stored record must not change until save")
}

func TestHandleDeletedResetsMatchingEdit(t *testing.T) {
	b := NewBuilder()
	b.Load(models.Combination{ID: "c1", Name: "Recipe", CheckpointID: "m1"})

	b.HandleDeleted("other")
	assert.Equal(t, "c1", b.EditingID(), "unrelated deletion is ignored")

	b.HandleDeleted("c1")
	assert.Empty(t, b.EditingID())

	_, err := b.Save()
	assert.ErrorIs(t, err, ErrIncomplete, "stale record cannot be re-saved")
}

func TestSaveClampsLoadedWeights(t *testing.T) {
	b := NewBuilder()
	b.Load(models.Combination{
		ID:           "c1",
		Name:         "Recipe",
		CheckpointID: "m1",
		LoRAIDs:      []string{"l1"},
		LoRAWeights:  map[string]float64{"l1": 7.5},
	})

	combo, err := b.Save()
	require.NoError(t, err)
	assert.Equal(t, 2.0, combo.LoRAWeights["l1"])
}

func TestBuildRecipeEndToEnd(t *testing.T) {
	b := NewBuilder()

	b.SetName("Glass Pixel World")
	b.SetDescription("Retro assets with a glassy finish")
	b.SetCheckpoint("m1")
	b.SetVAE("v1")
	b.ToggleLoRA("l1")
	b.ToggleLoRA("l2")
	b.SetLoRAWeight("l2", "1.35")
	b.SetTriggerWords("pixel art, glass sculpture")

	settings := models.DefaultSettings()
	settings.Steps = 40
	b.SetSettings(settings)

	combo, err := b.Save()
	require.NoError(t, err)

	assert.Equal(t, []string{"l1", "l2"}, combo.LoRAIDs)
	assert.Equal(t, 1.0, combo.LoRAWeights["l1"])
	assert.Equal(t, 1.35, combo.LoRAWeights["l2"])
	assert.Equal(t, []string{"pixel art", "glass sculpture"}, combo.TriggerWords)
	assert.Equal(t, 40, combo.Settings.Steps)
}
