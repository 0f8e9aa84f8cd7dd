package importer

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"neurogallery/server/internal/interfaces"
	"neurogallery/server/internal/models"
)

// ThumbnailStrategy selects the optional per-record enrichment during a bulk
// import.
type ThumbnailStrategy string

const (
	ThumbnailNone     ThumbnailStrategy = "none"
	ThumbnailSearch   ThumbnailStrategy = "search"
	ThumbnailGenerate ThumbnailStrategy = "generate"
)

// Result reports the outcome of a bulk import. Partial success is normal;
// the counts are the user-visible signal, not a binary pass/fail.
type Result struct {
	Imported    int `json:"imported"`
	Skipped     int `json:"skipped"`
	Unsupported int `json:"unsupported"`
}

// Catalog is the slice of the state controller the importer needs.
type Catalog interface {
	Models() []models.Model
	BulkImportModels(ctx context.Context, ms []models.Model)
	UpsertModel(ctx context.Context, m models.Model)
}

// Importer converts externally-sourced records into catalog models without
// reintroducing duplicates.
type Importer struct {
	catalog  Catalog
	source   interfaces.ModelSource
	enricher interfaces.Enricher
	registry interfaces.ModelRegistry
	hasher   interfaces.Hasher

	// stagedMu guards staged; the stage endpoints are hit from concurrent
	// request goroutines.
	stagedMu sync.Mutex
	staged   *StagedModel
}

func NewImporter(catalog Catalog, source interfaces.ModelSource, enricher interfaces.Enricher, registry interfaces.ModelRegistry, hasher interfaces.Hasher) *Importer {
	return &Importer{
		catalog:  catalog,
		source:   source,
		enricher: enricher,
		registry: registry,
		hasher:   hasher,
	}
}

// sourceConfig is the config JSON an InvokeAI export stores per model.
type sourceConfig struct {
	Type           string   `json:"type"`
	Name           string   `json:"name"`
	Base           string   `json:"base"`
	Description    string   `json:"description"`
	TriggerPhrases []string `json:"trigger_phrases"`
	Path           string   `json:"path"`
}

// mapSourceType maps an InvokeAI type tag onto the internal enumeration.
// The mapping is total over the known tags; everything else is an explicit
// unrecognized outcome, never a silent default.
func mapSourceType(s string) (models.ModelType, bool) {
	switch s {
	case "main":
		return models.TypeCheckpoint, true
	case "lora":
		return models.TypeLoRA, true
	case "vae":
		return models.TypeVAE, true
	case "embedding":
		return models.TypeTextEncoder, true
	default:
		return "", false
	}
}

// mapSourceBase translates an InvokeAI base tag to a family name.
// Unrecognized tags are preserved verbatim; an empty tag becomes "Unknown".
func mapSourceBase(base string) string {
	switch base {
	case "sd-1":
		return "SD v1.5"
	case "sd-2":
		return "SD v2"
	case "sdxl":
		return "SDXL"
	case "flux":
		return "Flux v1"
	case "":
		return "Unknown"
	default:
		return base
	}
}

// ImportFromExport scans a third-party export, maps and dedups its rows, and
// commits the surviving models as one batch. Per-record enrichment failures
// never abort the batch; only a blob that cannot be scanned at all fails the
// import.
func (imp *Importer) ImportFromExport(ctx context.Context, path string, strategy ThumbnailStrategy) (Result, error) {
	rows, err := imp.source.Scan(ctx, path)
	if err != nil {
		return Result{}, err
	}

	existing := imp.catalog.Models()

	var result Result
	var incoming []models.Model

	for _, row := range rows {
		var cfg sourceConfig
		if err := json.Unmarshal(row.Config, &cfg); err != nil {
			log.Printf("[Import] Skipping malformed config for row %s: %v", row.ID, err)
			continue
		}

		modelType, ok := mapSourceType(cfg.Type)
		if !ok {
			result.Unsupported++
			continue
		}

		if isDuplicate(existing, row.ID, cfg.Name) {
			result.Skipped++
			continue
		}

		name := cfg.Name
		if name == "" {
			name = "Unknown Model"
		}

		model := models.Model{
			ID:           row.ID,
			Name:         name,
			Type:         modelType,
			Version:      mapSourceBase(cfg.Base),
			Description:  cfg.Description,
			TriggerWords: cfg.TriggerPhrases,
			FileLocation: cfg.Path,
			Prompts:      []models.PromptEntry{},
		}
		if model.TriggerWords == nil {
			model.TriggerWords = []string{}
		}

		if strategy != ThumbnailNone && imp.enricher != nil {
			if thumb := imp.fetchThumbnail(ctx, model.Name, string(model.Type), strategy); thumb != "" {
				model.ThumbnailURL = thumb
			}
		}

		incoming = append(incoming, model)
	}

	imp.catalog.BulkImportModels(ctx, incoming)
	result.Imported = len(incoming)
	return result, nil
}

// isDuplicate reports whether an incoming record collides with the catalog.
// An id match OR an exact name match alone is enough to skip it.
func isDuplicate(existing []models.Model, id, name string) bool {
	for _, m := range existing {
		if m.ID == id || m.Name == name {
			return true
		}
	}
	return false
}

// fetchThumbnail attempts the selected enrichment for one record. Failures
// are absorbed; the record imports without a thumbnail.
func (imp *Importer) fetchThumbnail(ctx context.Context, name, modelType string, strategy ThumbnailStrategy) string {
	var (
		thumb string
		err   error
	)
	switch strategy {
	case ThumbnailSearch:
		thumb, err = imp.enricher.FindThumbnail(ctx, name)
	case ThumbnailGenerate:
		thumb, err = imp.enricher.GenerateThumbnail(ctx, name, modelType)
	default:
		return ""
	}
	if err != nil {
		log.Printf("[Import] Thumbnail fetch failed for %q: %v", name, err)
		return ""
	}
	return thumb
}
