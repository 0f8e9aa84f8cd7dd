package importer

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neurogallery/server/internal/interfaces"
	"neurogallery/server/internal/models"
)

// fakeCatalog implements the Catalog slice of the state controller.
type fakeCatalog struct {
	mu       sync.Mutex
	existing []models.Model
	imported [][]models.Model
	upserted []models.Model
}

func (f *fakeCatalog) Models() []models.Model {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.existing
}

func (f *fakeCatalog) BulkImportModels(ctx context.Context, ms []models.Model) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.imported = append(f.imported, ms)
}

func (f *fakeCatalog) UpsertModel(ctx context.Context, m models.Model) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserted = append(f.upserted, m)
}

// fakeSource yields canned rows.
type fakeSource struct {
	rows []interfaces.RawModelRow
	err  error
}

func (f fakeSource) Scan(ctx context.Context, path string) ([]interfaces.RawModelRow, error) {
	return f.rows, f.err
}

// fakeEnricher counts calls and can fail.
type fakeEnricher struct {
	mu        sync.Mutex
	searches  int
	generates int
	fail      bool
}

func (f *fakeEnricher) GenerateDescription(ctx context.Context, name, modelType, knownTriggers string) (string, error) {
	return "a description", nil
}

func (f *fakeEnricher) FindThumbnail(ctx context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches++
	if f.fail {
		return "", errors.New("search failed")
	}
	return "https://example.com/thumb.png", nil
}

func (f *fakeEnricher) GenerateThumbnail(ctx context.Context, name, modelType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generates++
	if f.fail {
		return "", errors.New("generation failed")
	}
	return "data:image/png;base64,xyz", nil
}

func (f *fakeEnricher) EnhancePrompt(ctx context.Context, prompt string) (string, error) {
	return prompt, nil
}

func row(id, config string) interfaces.RawModelRow {
	return interfaces.RawModelRow{ID: id, Config: []byte(config)}
}

func TestImportFromExportMapsTypesAndBases(t *testing.T) {
	catalog := &fakeCatalog{}
	source := fakeSource{rows: []interfaces.RawModelRow{
		row("1", `{"type":"main","name":"Juggernaut","base":"sdxl","path":"/m/j.safetensors"}`),
		row("2", `{"type":"lora","name":"Pixel","base":"sd-1","trigger_phrases":["pixel art"]}`),
		row("3", `{"type":"vae","name":"FixVAE","base":"sd-2"}`),
		row("4", `{"type":"embedding","name":"NegEmb","base":"flux"}`),
		row("5", `{"type":"main","name":"Mystery","base":""}`),
		row("6", `{"type":"main","name":"Custom","base":"pony-v6"}`),
	}}
	imp := NewImporter(catalog, source, nil, nil, SHA256Hasher{})

	result, err := imp.ImportFromExport(context.Background(), "export.db", ThumbnailNone)
	require.NoError(t, err)
	assert.Equal(t, Result{Imported: 6}, result)

	require.Len(t, catalog.imported, 1)
	batch := catalog.imported[0]
	require.Len(t, batch, 6)

	assert.Equal(t, models.TypeCheckpoint, batch[0].Type)
	assert.Equal(t, "SDXL", batch[0].Version)
	assert.Equal(t, "/m/j.safetensors", batch[0].FileLocation)

	assert.Equal(t, models.TypeLoRA, batch[1].Type)
	assert.Equal(t, "SD v1.5", batch[1].Version)
	assert.Equal(t, []string{"pixel art"}, batch[1].TriggerWords)

	assert.Equal(t, models.TypeVAE, batch[2].Type)
	assert.Equal(t, "SD v2", batch[2].Version)

	assert.Equal(t, models.TypeTextEncoder, batch[3].Type)
	assert.Equal(t, "Flux v1", batch[3].Version)

	// Empty base becomes Unknown, unrecognized bases pass through verbatim
	assert.Equal(t, "Unknown", batch[4].Version)
	assert.Equal(t, "pony-v6", batch[5].Version)
}

func TestImportFromExportCountsUnsupported(t *testing.T) {
	catalog := &fakeCatalog{}
	source := fakeSource{rows: []interfaces.RawModelRow{
		row("1", `{"type":"main","name":"Keep"}`),
		row("2", `{"type":"controlnet_weird","name":"Skip me"}`),
		row("3", `{"type":"onnx","name":"Skip me too"}`),
	}}
	imp := NewImporter(catalog, source, nil, nil, SHA256Hasher{})

	result, err := imp.ImportFromExport(context.Background(), "export.db", ThumbnailNone)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, 2, result.Unsupported)
	assert.Equal(t, 0, result.Skipped)
}

func TestImportFromExportSkipsDuplicates(t *testing.T) {
	catalog := &fakeCatalog{existing: []models.Model{
		{ID: "1", Name: "Already Here"},
		{ID: "other", Name: "Foo"},
	}}
	source := fakeSource{rows: []interfaces.RawModelRow{
		// Same id, different name: still a duplicate
		row("1", `{"type":"main","name":"Renamed"}`),
		// Different id, same name: also a duplicate
		row("2", `{"type":"main","name":"Foo"}`),
		row("3", `{"type":"main","name":"Genuinely New"}`),
	}}
	imp := NewImporter(catalog, source, nil, nil, SHA256Hasher{})

	result, err := imp.ImportFromExport(context.Background(), "export.db", ThumbnailNone)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, 2, result.Skipped)

	require.Len(t, catalog.imported, 1)
	require.Len(t, catalog.imported[0], 1)
	assert.Equal(t, "Genuinely New", catalog.imported[0][0].Name)
}

func TestImportFromExportMalformedConfigSkipped(t *testing.T) {
	catalog := &fakeCatalog{}
	source := fakeSource{rows: []interfaces.RawModelRow{
		row("1", `{not json`),
		row("2", `{"type":"main","name":"Fine"}`),
	}}
	imp := NewImporter(catalog, source, nil, nil, SHA256Hasher{})

	result, err := imp.ImportFromExport(context.Background(), "export.db", ThumbnailNone)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)
}

func TestImportFromExportEmptyNameFallback(t *testing.T) {
	catalog := &fakeCatalog{}
	source := fakeSource{rows: []interfaces.RawModelRow{
		row("1", `{"type":"main","name":""}`),
	}}
	imp := NewImporter(catalog, source, nil, nil, SHA256Hasher{})

	_, err := imp.ImportFromExport(context.Background(), "export.db", ThumbnailNone)
	require.NoError(t, err)

	require.Len(t, catalog.imported, 1)
	assert.Equal(t, "Unknown Model", catalog.imported[0][0].Name)
}

func TestImportFromExportScanErrorAborts(t *testing.T) {
	catalog := &fakeCatalog{}
	source := fakeSource{err: errors.New("not a database")}
	imp := NewImporter(catalog, source, nil, nil, SHA256Hasher{})

	_, err := imp.ImportFromExport(context.Background(), "export.db", ThumbnailNone)
	assert.Error(t, err)
	assert.Empty(t, catalog.imported)
}

func TestImportThumbnailStrategies(t *testing.T) {
	rows := []interfaces.RawModelRow{
		row("1", `{"type":"main","name":"A"}`),
		row("2", `{"type":"lora","name":"B"}`),
	}

	t.Run("search", func(t *testing.T) {
		catalog := &fakeCatalog{}
		enricher := &fakeEnricher{}
		imp := NewImporter(catalog, fakeSource{rows: rows}, enricher, nil, SHA256Hasher{})

		_, err := imp.ImportFromExport(context.Background(), "export.db", ThumbnailSearch)
		require.NoError(t, err)

		assert.Equal(t, 2, enricher.searches)
		assert.Equal(t, 0, enricher.generates)
		assert.Equal(t, "https://example.com/thumb.png", catalog.imported[0][0].ThumbnailURL)
	})

	t.Run("generate", func(t *testing.T) {
		catalog := &fakeCatalog{}
		enricher := &fakeEnricher{}
		imp := NewImporter(catalog, fakeSource{rows: rows}, enricher, nil, SHA256Hasher{})

		_, err := imp.ImportFromExport(context.Background(), "export.db", ThumbnailGenerate)
		require.NoError(t, err)

		assert.Equal(t, 2, enricher.generates)
		assert.Equal(t, "data:image/png;base64,xyz", catalog.imported[0][0].ThumbnailURL)
	})

	t.Run("failures never abort the batch", func(t *testing.T) {
		catalog := &fakeCatalog{}
		enricher := &fakeEnricher{fail: true}
		imp := NewImporter(catalog, fakeSource{rows: rows}, enricher, nil, SHA256Hasher{})

		result, err := imp.ImportFromExport(context.Background(), "export.db", ThumbnailSearch)
		require.NoError(t, err)

		assert.Equal(t, 2, result.Imported)
		assert.Empty(t, catalog.imported[0][0].ThumbnailURL)
	})
}
