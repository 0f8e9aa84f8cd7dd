package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neurogallery/server/internal/cache"
	"neurogallery/server/internal/config"
	"neurogallery/server/internal/importer"
	"neurogallery/server/internal/interfaces"
	"neurogallery/server/internal/models"
	"neurogallery/server/internal/recipes"
	"neurogallery/server/internal/state"
)

// memStore satisfies the controller's persistence needs for handler tests.
type memStore struct {
	initial models.AppState
}

func (s *memStore) Initialize(ctx context.Context) (models.AppState, error) { return s.initial, nil }
func (s *memStore) PutModel(ctx context.Context, m models.Model) error      { return nil }
func (s *memStore) PutModels(ctx context.Context, ms []models.Model) error  { return nil }
func (s *memStore) DeleteModel(ctx context.Context, id string) error        { return nil }
func (s *memStore) PutCombination(ctx context.Context, c models.Combination) error {
	return nil
}
func (s *memStore) DeleteCombination(ctx context.Context, id string) error { return nil }

func newTestServer(t *testing.T, initial models.AppState) (*httptest.Server, *state.Controller) {
	t.Helper()

	confirm := interfaces.ConfirmerFunc(func(string) bool { return true })
	controller := state.NewController(&memStore{initial: initial}, confirm)
	require.NoError(t, controller.LoadInitial(context.Background()))

	cacheLayer := cache.NewMemoryCache()
	session := state.NewSession(cacheLayer, time.Hour)
	builder := recipes.NewBuilder()
	imp := importer.NewImporter(controller, nil, nil, nil, importer.SHA256Hasher{})

	handlers := NewHandlers(config.Default(), nil, controller, builder, session, imp, nil, cacheLayer)
	srv := httptest.NewServer(NewRouter(handlers))
	t.Cleanup(srv.Close)
	t.Cleanup(controller.Flush)

	return srv, controller
}

func getJSON(t *testing.T, url string, out interface{}) int {
	t.Helper()

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func doJSON(t *testing.T, method, url string, body interface{}, out interface{}) int {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, models.AppState{})

	var got map[string]interface{}
	status := getJSON(t, srv.URL+"/health", &got)

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", got["status"])
	assert.Equal(t, "neurogallery", got["service"])
}

func TestListModelsWithFilters(t *testing.T) {
	srv, _ := newTestServer(t, models.SeedState())

	var all []models.Model
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/models", &all))
	assert.Len(t, all, 5)

	var filtered []models.Model
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/models?query=pixel", &filtered))
	require.Len(t, filtered, 1)
	assert.Equal(t, "l1", filtered[0].ID)

	var byType []models.Model
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/models?type=LoRA", &byType))
	assert.Len(t, byType, 2)

	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/api/v1/models?type=bogus", nil))

	var tagged []models.Model
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/models?tags=Retro,Pixel", &tagged))
	require.Len(t, tagged, 1)
	assert.Equal(t, "l1", tagged[0].ID)
}

func TestSaveAndGetModel(t *testing.T) {
	srv, controller := newTestServer(t, models.AppState{})

	var saved models.Model
	status := doJSON(t, http.MethodPut, srv.URL+"/api/v1/models", models.Model{
		Name: "New Checkpoint",
		Type: models.TypeCheckpoint,
	}, &saved)
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, saved.ID, "create mints an id")

	var got models.Model
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/models/"+saved.ID, &got))
	assert.Equal(t, "New Checkpoint", got.Name)

	// The new model is selected
	sel, ok := controller.SelectedModel()
	require.True(t, ok)
	assert.Equal(t, saved.ID, sel.ID)
}

func TestSaveModelValidation(t *testing.T) {
	srv, _ := newTestServer(t, models.AppState{})

	assert.Equal(t, http.StatusBadRequest,
		doJSON(t, http.MethodPut, srv.URL+"/api/v1/models", models.Model{Type: models.TypeLoRA}, nil))

	assert.Equal(t, http.StatusBadRequest,
		doJSON(t, http.MethodPut, srv.URL+"/api/v1/models", models.Model{Name: "x", Type: "Weird"}, nil))
}

func TestDeleteModel(t *testing.T) {
	srv, controller := newTestServer(t, models.AppState{
		Models: []models.Model{{ID: "a", Name: "Doomed"}},
	})

	var got map[string]bool
	status := doJSON(t, http.MethodDelete, srv.URL+"/api/v1/models/a", nil, &got)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, got["deleted"])
	assert.Empty(t, controller.Models())
}

func TestAddPromptEndpoint(t *testing.T) {
	srv, controller := newTestServer(t, models.SeedState())

	var got models.Model
	status := doJSON(t, http.MethodPost, srv.URL+"/api/v1/models/m2/prompts", map[string]string{
		"text": "an astronaut riding a horse",
	}, &got)
	require.Equal(t, http.StatusOK, status)

	require.Len(t, got.Prompts, 1)
	assert.Equal(t, "an astronaut riding a horse", got.Prompts[0].Text)
	assert.NotEmpty(t, got.Prompts[0].ID)

	m, _ := controller.ModelByID("m2")
	assert.Len(t, m.Prompts, 1)
}

func TestSaveRecipeEndpoint(t *testing.T) {
	srv, controller := newTestServer(t, models.SeedState())

	var combo models.Combination
	status := doJSON(t, http.MethodPost, srv.URL+"/api/v1/combinations", recipeRequest{
		Name:         "Glass Pixels",
		CheckpointID: "m1",
		VAEID:        "v1",
		LoRAIDs:      []string{"l1", "l2"},
		LoRAWeights:  map[string]float64{"l2": 1.35},
		TriggerWords: "pixel art, glass sculpture",
	}, &combo)
	require.Equal(t, http.StatusOK, status)

	assert.Equal(t, "Glass Pixels", combo.Name)
	assert.Equal(t, []string{"l1", "l2"}, combo.LoRAIDs)
	assert.Equal(t, 1.0, combo.LoRAWeight("l1"))
	assert.Equal(t, 1.35, combo.LoRAWeight("l2"))
	assert.Equal(t, []string{"pixel art", "glass sculpture"}, combo.TriggerWords)

	assert.Len(t, controller.Combinations(), 2)
}

func TestSaveRecipeValidation(t *testing.T) {
	srv, _ := newTestServer(t, models.SeedState())

	// Missing checkpoint
	assert.Equal(t, http.StatusBadRequest,
		doJSON(t, http.MethodPost, srv.URL+"/api/v1/combinations", recipeRequest{Name: "No Base"}, nil))

	// Editing a combination that does not exist
	assert.Equal(t, http.StatusNotFound,
		doJSON(t, http.MethodPost, srv.URL+"/api/v1/combinations", recipeRequest{
			EditingID: "ghost", Name: "x", CheckpointID: "m1",
		}, nil))
}

func TestEditRecipeKeepsID(t *testing.T) {
	srv, _ := newTestServer(t, models.SeedState())

	var combo models.Combination
	status := doJSON(t, http.MethodPost, srv.URL+"/api/v1/combinations", recipeRequest{
		EditingID:    "c1",
		Name:         "Cyberpunk Pixel v2",
		CheckpointID: "m1",
		LoRAIDs:      []string{"l2"},
	}, &combo)
	require.Equal(t, http.StatusOK, status)

	assert.Equal(t, "c1", combo.ID)
	assert.Equal(t, "Cyberpunk Pixel v2", combo.Name)
	// Submitted selections replace the stored ones
	assert.Equal(t, []string{"l2"}, combo.LoRAIDs)
}

func TestSaveRecipeConcurrentRequests(t *testing.T) {
	srv, controller := newTestServer(t, models.SeedState())

	// Each request submits its own name, LoRA and weight; the shared form
	// must not let concurrent saves bleed into each other.
	const n = 8
	results := make(chan models.Combination, n)
	errs := make(chan error, n)
	expected := make(map[string]recipeRequest, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		lora := "l1"
		weight := 0.5 + float64(i)*0.1
		if i%2 == 1 {
			lora = "l2"
		}
		req := recipeRequest{
			Name:         fmt.Sprintf("Recipe %d", i),
			CheckpointID: "m1",
			LoRAIDs:      []string{lora},
			LoRAWeights:  map[string]float64{lora: weight},
		}
		expected[req.Name] = req
		go func() {
			defer wg.Done()

			var buf bytes.Buffer
			if err := json.NewEncoder(&buf).Encode(req); err != nil {
				errs <- err
				return
			}
			resp, err := http.Post(srv.URL+"/api/v1/combinations", "application/json", &buf)
			if err != nil {
				errs <- err
				return
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				errs <- fmt.Errorf("save returned %d", resp.StatusCode)
				return
			}
			var combo models.Combination
			if err := json.NewDecoder(resp.Body).Decode(&combo); err != nil {
				errs <- err
				return
			}
			results <- combo
		}()
	}
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		t.Fatal(err)
	}

	seen := make(map[string]bool)
	for combo := range results {
		assert.False(t, seen[combo.ID], "each save mints its own id")
		seen[combo.ID] = true

		// The returned recipe carries exactly the fields its own request
		// submitted, nothing from a concurrent one
		req, ok := expected[combo.Name]
		require.True(t, ok, "unexpected recipe %q", combo.Name)
		require.Len(t, combo.LoRAIDs, 1)
		assert.Equal(t, req.LoRAIDs, combo.LoRAIDs)
		assert.InDelta(t, req.LoRAWeights[req.LoRAIDs[0]], combo.LoRAWeight(req.LoRAIDs[0]), 1e-9)
		assert.Equal(t, "m1", combo.CheckpointID)
	}
	assert.Len(t, seen, n)

	// Seed combination plus one per request
	assert.Len(t, controller.Combinations(), n+1)
}

func TestDeleteCombination(t *testing.T) {
	srv, controller := newTestServer(t, models.SeedState())

	status := doJSON(t, http.MethodDelete, srv.URL+"/api/v1/combinations/c1", nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, controller.Combinations())
}

func TestTagsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, models.AppState{
		Models: []models.Model{
			{ID: "a", Tags: []string{"Retro", "Pixel"}},
			{ID: "b", Tags: []string{"Pixel"}},
		},
	})

	var tags []string
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/tags", &tags))
	assert.Equal(t, []string{"Pixel", "Retro"}, tags)
}

func TestSessionEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, models.AppState{})

	// Logged out by default
	assert.Equal(t, http.StatusNoContent, getJSON(t, srv.URL+"/api/v1/session", nil))

	var user interfaces.User
	status := doJSON(t, http.MethodPut, srv.URL+"/api/v1/session", interfaces.User{
		Name: "Alex", Email: "alex@example.com",
	}, &user)
	require.Equal(t, http.StatusOK, status)

	var got interfaces.User
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/session", &got))
	assert.Equal(t, "Alex", got.Name)

	// Sign out
	assert.Equal(t, http.StatusNoContent,
		doJSON(t, http.MethodDelete, srv.URL+"/api/v1/session", nil, nil))
	assert.Equal(t, http.StatusNoContent, getJSON(t, srv.URL+"/api/v1/session", nil))
}

func TestEnrichmentUnavailable(t *testing.T) {
	srv, _ := newTestServer(t, models.SeedState())

	// No enricher configured: enrichment endpoints degrade loudly
	assert.Equal(t, http.StatusServiceUnavailable,
		doJSON(t, http.MethodPost, srv.URL+"/api/v1/models/m1/describe", nil, nil))
	assert.Equal(t, http.StatusServiceUnavailable,
		doJSON(t, http.MethodPost, srv.URL+"/api/v1/prompts/enhance", map[string]string{"prompt": "a cat"}, nil))
}

func TestStagedImportLifecycleOverHTTP(t *testing.T) {
	srv, controller := newTestServer(t, models.AppState{})

	// Nothing staged yet
	assert.Equal(t, http.StatusNoContent, getJSON(t, srv.URL+"/api/v1/import/staged", nil))
	assert.Equal(t, http.StatusConflict,
		doJSON(t, http.MethodPost, srv.URL+"/api/v1/import/staged/confirm", nil, nil))

	// Stage a file upload
	var buf bytes.Buffer
	mw := newMultipartFile(t, &buf, "file", "dream_shaper-v8.safetensors", []byte("weights"))

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/import/file", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var staged importer.StagedModel
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&staged))
	assert.Equal(t, "dream shaper v8", staged.Model.Name)
	assert.False(t, staged.FromRegistry)

	// Confirm commits it to the catalog
	var confirmed models.Model
	status := doJSON(t, http.MethodPost, srv.URL+"/api/v1/import/staged/confirm", nil, &confirmed)
	require.Equal(t, http.StatusOK, status)
	controller.Flush()

	_, ok := controller.ModelByID(confirmed.ID)
	assert.True(t, ok)
	assert.Equal(t, http.StatusNoContent, getJSON(t, srv.URL+"/api/v1/import/staged", nil))
}

// newMultipartFile writes a single-file multipart body into buf and returns
// the content type to send with it.
func newMultipartFile(t *testing.T, buf *bytes.Buffer, field, filename string, data []byte) string {
	t.Helper()

	mw := multipart.NewWriter(buf)
	part, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	return mw.FormDataContentType()
}

func TestPreferencesRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t, models.AppState{})

	// Never saved: an empty object, not an error
	var empty map[string]interface{}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/settings", &empty))
	assert.Empty(t, empty)

	status := doJSON(t, http.MethodPut, srv.URL+"/api/v1/settings", map[string]interface{}{
		"theme": "dark", "gridSize": 4,
	}, nil)
	require.Equal(t, http.StatusOK, status)

	var got map[string]interface{}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/settings", &got))
	assert.Equal(t, "dark", got["theme"])
}

func TestReferenceEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, models.AppState{})

	var got struct {
		Types    []string                  `json:"types"`
		Families []string                  `json:"families"`
		Samplers []string                  `json:"samplers"`
		Defaults models.GenerationSettings `json:"defaults"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/reference", &got))

	assert.Len(t, got.Types, 10)
	assert.Contains(t, got.Families, "SDXL")
	assert.Contains(t, got.Samplers, "Euler a")
	assert.Equal(t, models.DefaultSettings(), got.Defaults)
}

func TestHistoryLifecycle(t *testing.T) {
	srv, _ := newTestServer(t, models.AppState{})

	var entries []map[string]interface{}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/history", &entries))
	assert.Empty(t, entries)

	doJSON(t, http.MethodPost, srv.URL+"/api/v1/history", map[string]string{"prompt": "first"}, nil)
	status := doJSON(t, http.MethodPost, srv.URL+"/api/v1/history", map[string]string{"prompt": "second"}, &entries)
	require.Equal(t, http.StatusOK, status)

	require.Len(t, entries, 2)
	assert.Equal(t, "second", entries[0]["prompt"], "newest entry first")

	// Missing prompt is rejected
	assert.Equal(t, http.StatusBadRequest,
		doJSON(t, http.MethodPost, srv.URL+"/api/v1/history", map[string]string{}, nil))

	require.Equal(t, http.StatusNoContent,
		doJSON(t, http.MethodDelete, srv.URL+"/api/v1/history", nil, nil))
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/history", &entries))
	assert.Empty(t, entries)
}
