package importer

import (
	"context"
	"errors"
	"log"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"neurogallery/server/internal/interfaces"
	"neurogallery/server/internal/models"
)

// ErrNothingStaged rejects a confirm with no staged record.
var ErrNothingStaged = errors.New("no staged import to confirm")

// StagedModel is a single-file import awaiting explicit user confirmation.
// Unlike the batch path, nothing is persisted until ConfirmStaged.
type StagedModel struct {
	Model  models.Model `json:"model"`
	Digest string       `json:"digest"`
	// FromRegistry marks whether metadata came from a registry hit or from
	// filename fallback defaults.
	FromRegistry bool `json:"fromRegistry"`
}

// mapRegistryType maps a registry type tag onto the internal enumeration,
// with an explicit unrecognized outcome.
func mapRegistryType(s string) (models.ModelType, bool) {
	switch s {
	case "Checkpoint":
		return models.TypeCheckpoint, true
	case "LORA", "LoCon", "DoRA":
		return models.TypeLoRA, true
	case "TextualInversion":
		return models.TypeEmbedding, true
	case "VAE":
		return models.TypeVAE, true
	case "Controlnet":
		return models.TypeControlNet, true
	case "IPAdapter":
		return models.TypeIPAdapter, true
	default:
		return "", false
	}
}

// StageFile hashes an uploaded model file and stages exactly one importable
// record: from registry metadata on a hash hit, or from filename-derived
// defaults on a miss. Registry failures count as misses.
func (imp *Importer) StageFile(ctx context.Context, filename string, blob []byte) *StagedModel {
	digest := imp.hasher.Digest(blob)

	var enrichment *interfaces.Enrichment
	if imp.registry != nil {
		found, err := imp.registry.LookupByHash(ctx, digest)
		if err != nil {
			log.Printf("[Import] Registry lookup failed for %s: %v", digest, err)
		} else {
			enrichment = found
		}
	}

	staged := &StagedModel{Digest: digest}

	if enrichment != nil {
		modelType, ok := mapRegistryType(enrichment.SourceType)
		if !ok {
			// Registry returned a type outside the catalog's enumeration;
			// fall back to the checkpoint default explicitly.
			modelType = models.TypeCheckpoint
		}

		name := enrichment.CanonicalName
		if name == "" {
			name = nameFromFilename(filename)
		}
		version := enrichment.BaseFamily
		if version == "" {
			version = "SD v1.5"
		}

		staged.Model = models.Model{
			ID:           uuid.NewString(),
			Name:         name,
			Type:         modelType,
			Version:      version,
			Description:  enrichment.Description,
			ThumbnailURL: enrichment.ThumbnailURL,
			TriggerWords: enrichment.TriggerWords,
			Tags:         enrichment.Tags,
			FileLocation: filename,
			Prompts:      []models.PromptEntry{},
		}
		staged.FromRegistry = true
	} else {
		staged.Model = models.Model{
			ID:           uuid.NewString(),
			Name:         nameFromFilename(filename),
			Type:         models.TypeCheckpoint,
			Version:      "SD v1.5",
			TriggerWords: []string{},
			FileLocation: filename,
			Prompts:      []models.PromptEntry{},
		}
	}
	if staged.Model.TriggerWords == nil {
		staged.Model.TriggerWords = []string{}
	}

	imp.stagedMu.Lock()
	imp.staged = staged
	imp.stagedMu.Unlock()
	return staged
}

// Staged returns the record awaiting confirmation, if any.
func (imp *Importer) Staged() *StagedModel {
	imp.stagedMu.Lock()
	defer imp.stagedMu.Unlock()
	return imp.staged
}

// ConfirmStaged persists the staged record through the catalog and clears
// the stage.
func (imp *Importer) ConfirmStaged(ctx context.Context) (models.Model, error) {
	imp.stagedMu.Lock()
	defer imp.stagedMu.Unlock()

	if imp.staged == nil {
		return models.Model{}, ErrNothingStaged
	}

	m := imp.staged.Model
	imp.catalog.UpsertModel(ctx, m)
	imp.staged = nil
	return m, nil
}

// DiscardStaged drops the staged record without persisting it.
func (imp *Importer) DiscardStaged() {
	imp.stagedMu.Lock()
	defer imp.stagedMu.Unlock()
	imp.staged = nil
}

// nameFromFilename derives a display name from an uploaded file's name.
func nameFromFilename(filename string) string {
	base := filepath.Base(filename)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	name = strings.NewReplacer("_", " ", "-", " ").Replace(name)
	name = strings.TrimSpace(name)
	if name == "" {
		return "Unknown Model"
	}
	return name
}
